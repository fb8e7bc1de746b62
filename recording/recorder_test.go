package recording

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaireichart/live-location-map/broker"
	"github.com/kaireichart/live-location-map/location"
)

func newTestRecorder(t *testing.T) (*Recorder, *Store) {
	t.Helper()
	store := openTestStore(t)
	r := NewRecorder(store, "moveit")
	clock := t0
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return r, store
}

func connected(id string) broker.Status {
	return broker.Status{State: broker.StateConnected, Connected: true, ClientID: id}
}

func TestRecorderStartsTrackOnConnect(t *testing.T) {
	r, store := newTestRecorder(t)
	assert.Zero(t, r.TrackID())

	r.Observe(connected("test_client_1"))
	id := r.TrackID()
	require.NotZero(t, id)

	require.NoError(t, r.Append(location.Position{Latitude: 1, Longitude: 2, Timestamp: t0}))
	require.NoError(t, r.Append(location.Position{Latitude: 3, Longitude: 4, Timestamp: t0}))

	track, err := store.Track(id)
	require.NoError(t, err)
	assert.Equal(t, "test_client_1", track.ClientID)
	assert.Equal(t, "moveit", track.Topic)
	assert.Equal(t, 2, track.PointCount)
}

func TestRecorderReconnectKeepsTrack(t *testing.T) {
	r, _ := newTestRecorder(t)

	r.Observe(connected("test_client_1"))
	id := r.TrackID()

	r.Observe(broker.Status{State: broker.StateConnecting, ClientID: "test_client_1"})
	r.Observe(connected("test_client_1"))
	assert.Equal(t, id, r.TrackID())
}

func TestRecorderNewClientStartsNewTrack(t *testing.T) {
	r, store := newTestRecorder(t)

	r.Observe(connected("test_client_1"))
	first := r.TrackID()

	r.Observe(connected("test_client_2"))
	second := r.TrackID()
	assert.NotEqual(t, first, second)

	track, err := store.Track(first)
	require.NoError(t, err)
	assert.NotNil(t, track.EndedAt)
}

func TestRecorderDisconnectEndsTrack(t *testing.T) {
	r, store := newTestRecorder(t)

	r.Observe(connected("test_client_1"))
	id := r.TrackID()
	r.Observe(broker.Status{State: broker.StateDisconnected})
	assert.Zero(t, r.TrackID())

	track, err := store.Track(id)
	require.NoError(t, err)
	assert.NotNil(t, track.EndedAt)
}

func TestRecorderAppendWithoutSessionStartsTrack(t *testing.T) {
	r, store := newTestRecorder(t)

	require.NoError(t, r.Append(location.Position{Latitude: 1, Longitude: 2, Timestamp: t0}))
	id := r.TrackID()
	require.NotZero(t, id)

	r.Close()
	assert.Zero(t, r.TrackID())

	track, err := store.Track(id)
	require.NoError(t, err)
	assert.Equal(t, 1, track.PointCount)
	assert.NotNil(t, track.EndedAt)
}

func TestRecorderContinuesAfterOpenTrackDeleted(t *testing.T) {
	r, store := newTestRecorder(t)

	r.Observe(connected("test_client_1"))
	deleted := r.TrackID()
	require.NoError(t, r.Append(location.Position{Latitude: 1, Longitude: 2, Timestamp: t0}))
	require.NoError(t, store.DeleteTrack(deleted))

	require.NoError(t, r.Append(location.Position{Latitude: 3, Longitude: 4, Timestamp: t0}))
	current := r.TrackID()
	require.NotZero(t, current)
	assert.NotEqual(t, deleted, current)

	track, err := store.Track(current)
	require.NoError(t, err)
	assert.Equal(t, "test_client_1", track.ClientID)
	assert.Equal(t, 1, track.PointCount)

	var orphans int
	require.NoError(t, store.db.QueryRow(
		"SELECT COUNT(*) FROM point WHERE track_id NOT IN (SELECT id FROM track)",
	).Scan(&orphans))
	assert.Zero(t, orphans)
}
