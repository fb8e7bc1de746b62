package location

import "time"

// Position is one location sample received from the broker
type Position struct {
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// Update is pushed to dashboard viewers for every accepted message
type Update struct {
	Position   Position `json:"position"`
	Appended   bool     `json:"appended"`
	PathLength int      `json:"path_length"`
}

// Summary describes the current path
type Summary struct {
	Current    *Position `json:"current"`
	PathLength int       `json:"path_length"`
	DistanceKm float64   `json:"distance_km"`
}

// Message types broadcast to viewers.
const (
	MessageLocation    = "location"
	MessagePath        = "path"
	MessagePathCleared = "path_cleared"
)
