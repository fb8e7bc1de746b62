package broker

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

//go:generate go tool templ generate

func (s *Session) SetupHandlers(r *mux.Router) {
	r.HandleFunc("/mqtt/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/mqtt/status.json", s.handleStatusJSON).Methods(http.MethodGet)
	r.HandleFunc("/mqtt/toggle", s.handleToggleHTMX).Methods(http.MethodPost)
	r.HandleFunc("/mqtt/publish", s.handlePublish).Methods(http.MethodPost)
	r.HandleFunc("/mqtt/subscribe", s.handleSubscribe).Methods(http.MethodPost)
	r.HandleFunc("/mqtt/unsubscribe", s.handleUnsubscribe).Methods(http.MethodPost)
}

// HTMX Handlers

func (s *Session) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	err := StatusCard(s.Status()).Render(r.Context(), w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (s *Session) handleToggleHTMX(w http.ResponseWriter, r *http.Request) {
	// Connection failures are already logged and shown through the status card.
	if err := s.Toggle(r.Context()); err != nil {
		log.Warn().Err(err).Msg("toggle failed")
	}
	s.handleStatus(w, r)
}

// JSON API handlers

func (s *Session) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Status())
}

func (s *Session) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	qos := 1
	if req.QoS != nil {
		qos = *req.QoS
	}
	if !validTopic(req.Topic, false) || qos < 0 || qos > 2 {
		http.Error(w, "Invalid topic or QoS", http.StatusBadRequest)
		return
	}
	if err := s.Publish(r.Context(), req.Topic, req.Message, byte(qos)); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Session) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTopicRequest(w, r)
	if !ok {
		return
	}
	if err := s.Subscribe(r.Context(), req.Topic, byte(req.QoS)); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Session) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTopicRequest(w, r)
	if !ok {
		return
	}
	if err := s.Unsubscribe(r.Context(), req.Topic); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeTopicRequest(w http.ResponseWriter, r *http.Request) (TopicRequest, bool) {
	var req TopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return req, false
	}
	if !validTopic(req.Topic, true) || req.QoS < 0 || req.QoS > 2 {
		http.Error(w, "Invalid topic or QoS", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotConnected) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	log.Error().Err(err).Msg("MQTT request failed")
	http.Error(w, err.Error(), http.StatusBadGateway)
}

// validTopic rejects empty topics, and wildcards unless filter is set.
func validTopic(topic string, filter bool) bool {
	if topic == "" {
		return false
	}
	if !filter && strings.ContainsAny(topic, "+#") {
		return false
	}
	return true
}

// Helper functions for templates

func toggleLabel(state State) string {
	if state == StateConnected {
		return "Disconnect"
	}
	return "Connect"
}
