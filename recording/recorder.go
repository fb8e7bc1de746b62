package recording

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kaireichart/live-location-map/broker"
	"github.com/kaireichart/live-location-map/events"
	"github.com/kaireichart/live-location-map/location"
	"github.com/kaireichart/live-location-map/metrics"
)

// Recorder writes the live path into the store, one track per MQTT
// session. A session is identified by its client id, so auto-reconnects
// continue the same track while a manual reconnect starts a new one.
type Recorder struct {
	store *Store
	topic string
	now   func() time.Time

	mu       sync.Mutex
	trackID  int64
	clientID string
}

func NewRecorder(store *Store, topic string) *Recorder {
	return &Recorder{store: store, topic: topic, now: time.Now}
}

// Observe follows session status changes.
func (r *Recorder) Observe(st broker.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch st.State {
	case broker.StateConnected:
		if st.ClientID == r.clientID && r.trackID != 0 {
			return
		}
		r.endLocked()
		r.startLocked(st.ClientID)
	case broker.StateDisconnected:
		r.endLocked()
	}
}

// Append stores one path point in the current track.
func (r *Recorder) Append(pos location.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.trackID == 0 {
		r.startLocked(r.clientID)
		if r.trackID == 0 {
			metrics.RecordedPoints.WithLabelValues("error").Inc()
			return nil
		}
	}

	err := r.store.AddPoint(r.trackID, pos)
	if err != nil && r.trackDeletedLocked() {
		// The open track was deleted through the API; continue in a new one.
		log.Warn().Int64("track_id", r.trackID).Msg("open recording track was deleted, starting a new one")
		clientID := r.clientID
		r.trackID = 0
		r.startLocked(clientID)
		if r.trackID != 0 {
			err = r.store.AddPoint(r.trackID, pos)
		}
	}
	if err != nil {
		metrics.RecordedPoints.WithLabelValues("error").Inc()
		return err
	}
	metrics.RecordedPoints.WithLabelValues("ok").Inc()
	return nil
}

func (r *Recorder) trackDeletedLocked() bool {
	_, err := r.store.Track(r.trackID)
	return errors.Is(err, ErrTrackNotFound)
}

// TrackID returns the open track, or 0.
func (r *Recorder) TrackID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackID
}

// Close ends the open track.
func (r *Recorder) Close() {
	r.mu.Lock()
	r.endLocked()
	r.mu.Unlock()
}

func (r *Recorder) startLocked(clientID string) {
	id, err := r.store.StartTrack(clientID, r.topic, r.now())
	if err != nil {
		log.Error().Err(err).Msg("failed to start recording track")
		events.Record(events.TypeRecordingFailed, "Recording", err.Error())
		return
	}
	r.trackID = id
	r.clientID = clientID
	log.Info().Int64("track_id", id).Str("client_id", clientID).Msg("recording track started")
}

func (r *Recorder) endLocked() {
	if r.trackID == 0 {
		return
	}
	if err := r.store.EndTrack(r.trackID, r.now()); err != nil {
		log.Error().Err(err).Int64("track_id", r.trackID).Msg("failed to end recording track")
	} else {
		log.Info().Int64("track_id", r.trackID).Msg("recording track ended")
	}
	r.trackID = 0
	r.clientID = ""
}
