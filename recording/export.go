package recording

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/xuri/excelize/v2"

	"github.com/kaireichart/live-location-map/location"
)

// Export formats accepted by the export endpoint.
const (
	FormatCSV     = "csv"
	FormatXLSX    = "xlsx"
	FormatGeoJSON = "geojson"
)

var pointHeader = []string{"Seq", "Timestamp", "Latitude", "Longitude"}

// ExportTrackCSV exports a track to a ZIP file containing the points and
// a one-row summary
func ExportTrackCSV(track *Track, points []location.Position) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	pointsData, err := generatePointsCSV(points)
	if err != nil {
		return nil, fmt.Errorf("failed to generate points CSV: %w", err)
	}
	summaryData, err := generateSummaryCSV(track, CalculateTrackStatistics(points))
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary CSV: %w", err)
	}

	entries := []struct {
		name string
		data []byte
	}{
		{"points.csv", pointsData},
		{"summary.csv", summaryData},
	}
	for _, e := range entries {
		f, err := w.Create(e.name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s in zip: %w", e.name, err)
		}
		if _, err := f.Write(e.data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", e.name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %w", err)
	}
	return buf, nil
}

func generatePointsCSV(points []location.Position) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	if err := writer.Write(pointHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i, p := range points {
		row := []string{
			strconv.Itoa(i + 1),
			p.Timestamp.UTC().Format(time.RFC3339Nano),
			strconv.FormatFloat(p.Latitude, 'f', -1, 64),
			strconv.FormatFloat(p.Longitude, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func generateSummaryCSV(track *Track, stats *TrackStatistics) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	rows := [][]string{
		{"TrackID", "ClientID", "Topic", "StartedAt", "Points", "DistanceKm", "DurationSeconds"},
		{
			strconv.FormatInt(track.ID, 10),
			track.ClientID,
			track.Topic,
			track.StartedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(stats.PointCount),
			fmt.Sprintf("%.3f", stats.DistanceKm),
			fmt.Sprintf("%.0f", stats.DurationSeconds),
		},
	}
	if err := writer.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write summary CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportTrackXLSX exports a track to a workbook with a Points and a
// Summary sheet
func ExportTrackXLSX(track *Track, points []location.Position) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	const pointsSheet, summarySheet = "Points", "Summary"
	if err := f.SetSheetName("Sheet1", pointsSheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := make([]interface{}, len(pointHeader))
	for i, h := range pointHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(pointsSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	for i, p := range points {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{i + 1, p.Timestamp.UTC().Format(time.RFC3339Nano), p.Latitude, p.Longitude}
		if err := f.SetSheetRow(pointsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	stats := CalculateTrackStatistics(points)
	summary := [][]interface{}{
		{"Track ID", track.ID},
		{"Client ID", track.ClientID},
		{"Topic", track.Topic},
		{"Started At", track.StartedAt.UTC().Format(time.RFC3339)},
		{"Points", stats.PointCount},
		{"Distance (km)", stats.DistanceKm},
		{"Duration (s)", stats.DurationSeconds},
	}
	if stats.SpeedKmh != nil {
		summary = append(summary,
			[]interface{}{"Mean speed (km/h)", stats.SpeedKmh.Mean},
			[]interface{}{"Max speed (km/h)", stats.SpeedKmh.Max},
		)
	}
	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write summary row: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf, nil
}

// ExportTrackGeoJSON exports a track as a feature collection: a LineString
// for the path (two or more points) and a Point for the last sample.
func ExportTrackGeoJSON(track *Track, points []location.Position) ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	if len(points) > 1 {
		path := geojson.NewFeature(lineString(points))
		path.Properties["track_id"] = track.ID
		path.Properties["client_id"] = track.ClientID
		path.Properties["topic"] = track.Topic
		path.Properties["started_at"] = points[0].Timestamp.UTC().Format(time.RFC3339)
		path.Properties["ended_at"] = points[len(points)-1].Timestamp.UTC().Format(time.RFC3339)
		fc.Append(path)
	}
	if len(points) > 0 {
		last := points[len(points)-1]
		current := geojson.NewFeature(orb.Point{last.Longitude, last.Latitude})
		current.Properties["track_id"] = track.ID
		current.Properties["timestamp"] = last.Timestamp.UTC().Format(time.RFC3339)
		fc.Append(current)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	return data, nil
}

// GenerateExportFilename generates a filename for a track export
func GenerateExportFilename(track *Track, format string) string {
	timestamp := track.StartedAt.UTC().Format("20060102_150405")
	ext := format
	if format == FormatCSV {
		ext = "zip"
	}
	return fmt.Sprintf("track_%d_%s.%s", track.ID, timestamp, ext)
}
