package location

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

//go:generate go tool templ generate

func (s *Service) SetupHandlers(r *mux.Router) {
	r.HandleFunc("/location/current", s.handleCurrent).Methods(http.MethodGet)
	r.HandleFunc("/location/path", s.handlePath).Methods(http.MethodGet)
	r.HandleFunc("/location/position", s.handlePosition).Methods(http.MethodGet)
	r.HandleFunc("/location/path/clear", s.handleClearPath).Methods(http.MethodPost)
}

func (s *Service) handleCurrent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.tracker.Summary())
}

func (s *Service) handlePath(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.tracker.Path())
}

// HTMX Handlers

func (s *Service) handlePosition(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	err := PositionPanel(s.tracker.Summary()).Render(r.Context(), w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (s *Service) handleClearPath(w http.ResponseWriter, r *http.Request) {
	s.ClearPath()
	s.handlePosition(w, r)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
