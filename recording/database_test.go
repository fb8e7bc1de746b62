package recording

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaireichart/live-location-map/location"
)

var t0 = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreTrackLifecycle(t *testing.T) {
	store := openTestStore(t)

	id, err := store.StartTrack("test_client_abc", "moveit", t0)
	require.NoError(t, err)

	require.NoError(t, store.AddPoint(id, location.Position{Latitude: 34.7391, Longitude: 10.7102, Timestamp: t0}))
	require.NoError(t, store.AddPoint(id, location.Position{Latitude: 34.7401, Longitude: 10.7112, Timestamp: t0.Add(time.Second)}))

	track, err := store.Track(id)
	require.NoError(t, err)
	assert.Equal(t, "test_client_abc", track.ClientID)
	assert.Equal(t, "moveit", track.Topic)
	assert.True(t, track.StartedAt.Equal(t0))
	assert.Nil(t, track.EndedAt)
	assert.Equal(t, 2, track.PointCount)

	require.NoError(t, store.EndTrack(id, t0.Add(time.Minute)))
	track, err = store.Track(id)
	require.NoError(t, err)
	require.NotNil(t, track.EndedAt)
	assert.True(t, track.EndedAt.Equal(t0.Add(time.Minute)))

	points, err := store.Points(id)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 34.7391, points[0].Latitude)
	assert.Equal(t, 10.7112, points[1].Longitude)
	assert.True(t, points[1].Timestamp.Equal(t0.Add(time.Second)))
}

func TestStoreTracksNewestFirst(t *testing.T) {
	store := openTestStore(t)

	first, err := store.StartTrack("a", "moveit", t0)
	require.NoError(t, err)
	second, err := store.StartTrack("b", "moveit", t0.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.AddPoint(second, location.Position{Latitude: 1, Longitude: 1, Timestamp: t0}))

	tracks, err := store.Tracks()
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, second, tracks[0].ID)
	assert.Equal(t, 1, tracks[0].PointCount)
	assert.Equal(t, first, tracks[1].ID)
	assert.Equal(t, 0, tracks[1].PointCount)
}

func TestStoreUnknownTrack(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Track(42)
	assert.ErrorIs(t, err, ErrTrackNotFound)
	assert.ErrorIs(t, store.EndTrack(42, t0), ErrTrackNotFound)
	assert.ErrorIs(t, store.DeleteTrack(42), ErrTrackNotFound)

	points, err := store.Points(42)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestStoreDeleteTrack(t *testing.T) {
	store := openTestStore(t)

	id, err := store.StartTrack("a", "moveit", t0)
	require.NoError(t, err)
	require.NoError(t, store.AddPoint(id, location.Position{Latitude: 1, Longitude: 2, Timestamp: t0}))

	require.NoError(t, store.DeleteTrack(id))

	_, err = store.Track(id)
	assert.ErrorIs(t, err, ErrTrackNotFound)
	points, err := store.Points(id)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestStoreReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livemap.db")

	store, err := Open(path)
	require.NoError(t, err)
	id, err := store.StartTrack("a", "moveit", t0)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	track, err := store.Track(id)
	require.NoError(t, err)
	assert.Equal(t, "a", track.ClientID)
}

func TestStoreRejectsPointsForMissingTrack(t *testing.T) {
	store := openTestStore(t)

	err := store.AddPoint(42, location.Position{Latitude: 1, Longitude: 2, Timestamp: t0})
	assert.Error(t, err)

	var orphans int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM point").Scan(&orphans))
	assert.Zero(t, orphans)
}
