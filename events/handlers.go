package events

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

//go:generate go tool templ generate

func SetupHandlers(r *mux.Router) {
	r.HandleFunc("/events", handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/events/list", handleEventsList).Methods(http.MethodGet)
}

// HTMX Handlers

func handleEventsList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	err := EventsList(Newest()).Render(r.Context(), w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(GetEvents()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Helper functions for templates

func formatEventType(eventType string) string {
	parts := strings.Split(eventType, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, " ")
}

func getEventTypeClass(eventType string) string {
	switch eventType {
	case TypeConnected, TypeSubscribed:
		return "bg-green-100 text-green-800"
	case TypeConnectFailed, TypeSubscribeFailed, TypeConnectionLost, TypeRecordingFailed:
		return "bg-red-100 text-red-800"
	case TypeParseFailed:
		return "bg-orange-100 text-orange-800"
	case TypeReconnecting, TypeConnectRequested:
		return "bg-yellow-100 text-yellow-800"
	case TypePathCleared:
		return "bg-purple-100 text-purple-800"
	default:
		return "bg-blue-100 text-blue-800"
	}
}
