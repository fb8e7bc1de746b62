package recording

import "time"

// Track is one recorded MQTT session
type Track struct {
	ID         int64      `json:"id"`
	ClientID   string     `json:"client_id"`
	Topic      string     `json:"topic"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	PointCount int        `json:"point_count"`
}

// TrackStatistics summarises a recorded track
type TrackStatistics struct {
	PointCount      int             `json:"point_count"`
	DistanceKm      float64         `json:"distance_km"`
	DurationSeconds float64         `json:"duration_seconds"`
	SpeedKmh        *DataStatistics `json:"speed_kmh,omitempty"`
	Bounds          *Bounds         `json:"bounds,omitempty"`
}

// DataStatistics represents statistical measures for a data series
type DataStatistics struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Range    float64 `json:"range"`
	Median   float64 `json:"median"`
}

// Bounds is the bounding box of a track
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}
