package dashboard

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kaireichart/live-location-map/events"
)

//go:generate go tool templ generate

func (d *Dashboard) SetupHandlers(r *mux.Router) {
	r.HandleFunc("/", d.handleIndex).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(d.static))))
}

func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := PageData{
		Map:     d.cfg,
		Status:  d.status.Status(),
		Summary: d.summary.Summary(),
		Events:  events.Newest(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := Page(data).Render(r.Context(), w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
