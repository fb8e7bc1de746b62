package recording

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

func (s *Store) SetupHandlers(r *mux.Router) {
	r.HandleFunc("/recording/tracks", s.handleGetTracks).Methods(http.MethodGet)
	r.HandleFunc("/recording/tracks/{id:[0-9]+}", s.handleGetTrack).Methods(http.MethodGet)
	r.HandleFunc("/recording/tracks/{id:[0-9]+}", s.handleDeleteTrack).Methods(http.MethodDelete)
	r.HandleFunc("/recording/tracks/{id:[0-9]+}/points", s.handleGetPoints).Methods(http.MethodGet)
	r.HandleFunc("/recording/tracks/{id:[0-9]+}/statistics", s.handleGetStatistics).Methods(http.MethodGet)
	r.HandleFunc("/recording/tracks/{id:[0-9]+}/export", s.handleExport).Methods(http.MethodGet)
}

func (s *Store) handleGetTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.Tracks()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get tracks: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, tracks)
}

func (s *Store) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	track, ok := s.trackFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, track)
}

func (s *Store) handleGetPoints(w http.ResponseWriter, r *http.Request) {
	track, ok := s.trackFromRequest(w, r)
	if !ok {
		return
	}
	points, err := s.Points(track.ID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get points: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, points)
}

func (s *Store) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	track, ok := s.trackFromRequest(w, r)
	if !ok {
		return
	}
	points, err := s.Points(track.ID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get points: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, CalculateTrackStatistics(points))
}

func (s *Store) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return
	}
	if err := s.DeleteTrack(id); err != nil {
		if errors.Is(err, ErrTrackNotFound) {
			http.Error(w, "Track not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Failed to delete track: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Store) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatXLSX && format != FormatGeoJSON {
		http.Error(w, "Invalid format. Use 'csv', 'xlsx' or 'geojson'", http.StatusBadRequest)
		return
	}

	track, ok := s.trackFromRequest(w, r)
	if !ok {
		return
	}
	points, err := s.Points(track.ID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get points: %v", err), http.StatusInternalServerError)
		return
	}

	var data []byte
	var contentType string
	switch format {
	case FormatCSV:
		buf, err := ExportTrackCSV(track, points)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to generate CSV files: %v", err), http.StatusInternalServerError)
			return
		}
		data, contentType = buf.Bytes(), "application/zip"
	case FormatXLSX:
		buf, err := ExportTrackXLSX(track, points)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to generate workbook: %v", err), http.StatusInternalServerError)
			return
		}
		data, contentType = buf.Bytes(), "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatGeoJSON:
		data, err = ExportTrackGeoJSON(track, points)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to generate GeoJSON: %v", err), http.StatusInternalServerError)
			return
		}
		contentType = "application/geo+json"
	}

	filename := GenerateExportFilename(track, format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

func (s *Store) trackFromRequest(w http.ResponseWriter, r *http.Request) (*Track, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid track ID", http.StatusBadRequest)
		return nil, false
	}
	track, err := s.Track(id)
	if err != nil {
		if errors.Is(err, ErrTrackNotFound) {
			http.Error(w, "Track not found", http.StatusNotFound)
			return nil, false
		}
		http.Error(w, fmt.Sprintf("Failed to get track: %v", err), http.StatusInternalServerError)
		return nil, false
	}
	return track, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
