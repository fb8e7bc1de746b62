package location

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kaireichart/live-location-map/events"
	"github.com/kaireichart/live-location-map/metrics"
)

// Tracker holds the latest sample and the accumulated path.
type Tracker struct {
	mu      sync.RWMutex
	current *Position
	path    []Position
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Record replaces the current sample and appends it to the path when both
// coordinates are non-zero. It reports whether the path grew.
func (t *Tracker) Record(pos Position) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = &pos
	if pos.Latitude == 0 || pos.Longitude == 0 {
		return false
	}
	t.path = append(t.path, pos)
	return true
}

// Current returns the latest sample, if any.
func (t *Tracker) Current() (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return Position{}, false
	}
	return *t.current, true
}

// Path returns a copy of the path in arrival order.
func (t *Tracker) Path() []Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Position, len(t.path))
	copy(out, t.path)
	return out
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.path)
}

// Clear empties the path. The current sample is kept so the marker stays.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.path = nil
	t.mu.Unlock()
}

func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Summary{
		PathLength: len(t.path),
		DistanceKm: PathDistanceKm(t.path),
	}
	if t.current != nil {
		c := *t.current
		s.Current = &c
	}
	return s
}

// Broadcaster pushes a typed message to every dashboard viewer.
type Broadcaster interface {
	Broadcast(msgType string, data any)
}

// Archiver stores appended path points.
type Archiver interface {
	Append(pos Position) error
}

// Service turns broker messages into tracker updates.
type Service struct {
	tracker     *Tracker
	broadcaster Broadcaster
	archiver    Archiver
	now         func() time.Time
}

// NewService wires a tracker to its outputs. broadcaster and archiver may
// be nil.
func NewService(tracker *Tracker, broadcaster Broadcaster, archiver Archiver) *Service {
	return &Service{
		tracker:     tracker,
		broadcaster: broadcaster,
		archiver:    archiver,
		now:         time.Now,
	}
}

func (s *Service) Tracker() *Tracker {
	return s.tracker
}

// HandleMessage decodes one payload and records it. Parse failures are
// logged and dropped.
func (s *Service) HandleMessage(topic string, payload []byte) {
	metrics.MessagesReceived.WithLabelValues(topic).Inc()

	pos, err := ParsePayload(payload)
	if err != nil {
		metrics.ParseErrors.Inc()
		log.Error().Err(err).Str("topic", topic).Msg("error parsing message")
		events.Record(events.TypeParseFailed, "Location", err.Error())
		return
	}
	pos.Timestamp = s.now()

	appended := s.tracker.Record(pos)
	length := s.tracker.Len()
	metrics.PathPoints.Set(float64(length))

	log.Debug().
		Float64("lat", pos.Latitude).
		Float64("lng", pos.Longitude).
		Bool("appended", appended).
		Int("path_length", length).
		Msg("location update")

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(MessageLocation, Update{
			Position:   pos,
			Appended:   appended,
			PathLength: length,
		})
	}

	if appended && s.archiver != nil {
		if err := s.archiver.Append(pos); err != nil {
			log.Error().Err(err).Msg("failed to archive position")
		}
	}
}

// ClearPath empties the path and tells viewers to drop their polyline.
func (s *Service) ClearPath() {
	s.tracker.Clear()
	metrics.PathPoints.Set(0)
	events.Record(events.TypePathCleared, "Operator", "")
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(MessagePathCleared, nil)
	}
}
