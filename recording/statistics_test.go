package recording

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaireichart/live-location-map/location"
)

func samplePoints() []location.Position {
	return []location.Position{
		{Latitude: 34.0, Longitude: 10.0, Timestamp: t0},
		{Latitude: 34.0, Longitude: 10.1, Timestamp: t0.Add(time.Hour)},
		{Latitude: 34.1, Longitude: 10.1, Timestamp: t0.Add(2 * time.Hour)},
	}
}

func TestCalculateTrackStatisticsEmpty(t *testing.T) {
	stats := CalculateTrackStatistics(nil)
	assert.Equal(t, 0, stats.PointCount)
	assert.Nil(t, stats.Bounds)
	assert.Nil(t, stats.SpeedKmh)
}

func TestCalculateTrackStatistics(t *testing.T) {
	points := samplePoints()
	stats := CalculateTrackStatistics(points)

	assert.Equal(t, 3, stats.PointCount)
	assert.InDelta(t, location.PathDistanceKm(points), stats.DistanceKm, 1e-9)
	assert.Equal(t, 7200.0, stats.DurationSeconds)

	require.NotNil(t, stats.Bounds)
	assert.Equal(t, 34.0, stats.Bounds.MinLat)
	assert.Equal(t, 34.1, stats.Bounds.MaxLat)
	assert.Equal(t, 10.0, stats.Bounds.MinLng)
	assert.Equal(t, 10.1, stats.Bounds.MaxLng)

	// One hour per segment, so speed equals segment length.
	require.NotNil(t, stats.SpeedKmh)
	assert.Equal(t, 2, stats.SpeedKmh.Count)
	assert.InDelta(t, 9.2, stats.SpeedKmh.Min, 0.2)
	assert.InDelta(t, 11.1, stats.SpeedKmh.Max, 0.2)
}

func TestCalculateTrackStatisticsSkipsZeroDurationSegments(t *testing.T) {
	points := []location.Position{
		{Latitude: 1, Longitude: 1, Timestamp: t0},
		{Latitude: 2, Longitude: 2, Timestamp: t0},
	}
	stats := CalculateTrackStatistics(points)
	assert.Greater(t, stats.DistanceKm, 0.0)
	assert.Nil(t, stats.SpeedKmh)
}

func TestCalculateDataStatistics(t *testing.T) {
	assert.Nil(t, calculateDataStatistics(nil))

	stats := calculateDataStatistics([]float64{4, 1, 3, 2})
	assert.Equal(t, 4, stats.Count)
	assert.Equal(t, 2.5, stats.Mean)
	assert.Equal(t, 2.5, stats.Median)
	assert.Equal(t, 1.25, stats.Variance)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 4.0, stats.Max)
	assert.Equal(t, 3.0, stats.Range)
}
