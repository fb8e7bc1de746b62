package recording

import (
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/kaireichart/live-location-map/location"
)

// CalculateTrackStatistics summarises the points of one track
func CalculateTrackStatistics(points []location.Position) *TrackStatistics {
	stats := &TrackStatistics{PointCount: len(points)}
	if len(points) == 0 {
		return stats
	}

	stats.DistanceKm = location.PathDistanceKm(points)
	stats.DurationSeconds = points[len(points)-1].Timestamp.Sub(points[0].Timestamp).Seconds()

	bound := lineString(points).Bound()
	stats.Bounds = &Bounds{
		MinLat: bound.Min.Lat(),
		MinLng: bound.Min.Lon(),
		MaxLat: bound.Max.Lat(),
		MaxLng: bound.Max.Lon(),
	}

	// Segment speeds; segments without elapsed time are skipped
	speeds := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		hours := points[i].Timestamp.Sub(points[i-1].Timestamp).Hours()
		if hours <= 0 {
			continue
		}
		speeds = append(speeds, location.PathDistanceKm(points[i-1:i+1])/hours)
	}
	if len(speeds) > 0 {
		stats.SpeedKmh = calculateDataStatistics(speeds)
	}

	return stats
}

// calculateDataStatistics calculates comprehensive statistics for a data series
func calculateDataStatistics(data []float64) *DataStatistics {
	if len(data) == 0 {
		return nil
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range data {
		sum += v
	}
	mean := sum / float64(len(data))

	variance := 0.0
	for _, v := range data {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(data))

	var median float64
	n := len(sorted)
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	} else {
		median = sorted[n/2]
	}

	return &DataStatistics{
		Count:    n,
		Mean:     mean,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
		Min:      sorted[0],
		Max:      sorted[n-1],
		Range:    sorted[n-1] - sorted[0],
		Median:   median,
	}
}

// lineString converts points to GeoJSON axis order (lng, lat).
func lineString(points []location.Position) orb.LineString {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, orb.Point{p.Longitude, p.Latitude})
	}
	return ls
}
