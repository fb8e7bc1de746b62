package location

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// ParsePayload decodes a query-string payload such as "lat=34.74&lng=10.71".
// Missing, empty, non-numeric or non-finite fields default to zero; a
// repeated key uses its first value. Pairs that fail to decode are skipped,
// so a broken unrelated pair does not drop the update. It is an error only
// when the payload is malformed and neither coordinate could be decoded.
func ParsePayload(payload []byte) (Position, error) {
	var pos Position

	values, err := url.ParseQuery(strings.TrimSpace(string(payload)))
	if err != nil && !values.Has("lat") && !values.Has("lng") {
		return pos, fmt.Errorf("invalid payload %q: %w", truncate(string(payload), 64), err)
	}

	pos.Latitude = numberOrZero(values.Get("lat"))
	pos.Longitude = numberOrZero(values.Get("lng"))
	return pos, nil
}

func numberOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// calculateDistanceKm calculates the great-circle distance between two points in kilometres
func calculateDistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0088 // mean Earth radius in kilometres
	lat1Rad := lat1 * math.Pi / 180
	lon1Rad := lon1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lon2Rad := lon2 * math.Pi / 180

	dlat := lat2Rad - lat1Rad
	dlon := lon2Rad - lon1Rad

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}

// PathDistanceKm sums the great-circle length of consecutive points.
func PathDistanceKm(path []Position) float64 {
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += calculateDistanceKm(
			path[i-1].Latitude, path[i-1].Longitude,
			path[i].Latitude, path[i].Longitude,
		)
	}
	return total
}

func degreesToDMS(decimalDegrees float64, isLatitude bool) string {
	absolute := math.Abs(decimalDegrees)

	degrees := int(absolute)
	minutesNotTruncated := (absolute - float64(degrees)) * 60
	minutes := int(minutesNotTruncated)
	seconds := (minutesNotTruncated - float64(minutes)) * 60

	var direction string
	if isLatitude {
		if decimalDegrees >= 0 {
			direction = "N"
		} else {
			direction = "S"
		}
	} else {
		if decimalDegrees >= 0 {
			direction = "E"
		} else {
			direction = "W"
		}
	}

	return fmt.Sprintf("%d°%d'%.2f\"%s", degrees, minutes, seconds, direction)
}
