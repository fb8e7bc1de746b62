package dashboard

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaireichart/live-location-map/broker"
	"github.com/kaireichart/live-location-map/config"
	"github.com/kaireichart/live-location-map/location"
)

type fixedStatus broker.Status

func (f fixedStatus) Status() broker.Status { return broker.Status(f) }

type fixedSummary location.Summary

func (f fixedSummary) Summary() location.Summary { return location.Summary(f) }

func newTestRouter(st broker.Status, sum location.Summary) *mux.Router {
	r := mux.NewRouter()
	New(config.Default().Map, fixedStatus(st), fixedSummary(sum)).SetupHandlers(r)
	return r
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestIndexRendersPage(t *testing.T) {
	st := broker.Status{State: broker.StateConnected, Connected: true, ClientID: "test_client_0123456789ab", Broker: "wss://broker.example.com:8884/mqtt", Topic: "moveit"}
	pos := location.Position{Latitude: 34.7391, Longitude: 10.7102, Timestamp: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	r := newTestRouter(st, location.Summary{Current: &pos, PathLength: 1})

	rec := get(r, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "Client is")
	assert.Contains(t, body, "test_client_0123456789ab")
	assert.Contains(t, body, "Disconnect")
	assert.Contains(t, body, "34.739100")
	assert.Contains(t, body, `data-center-lat="34.739108680466394"`)
	assert.Contains(t, body, `data-zoom="13"`)
	assert.Contains(t, body, `data-recenter-ms="2000"`)
	assert.Contains(t, body, `data-path-color="red"`)
	assert.Contains(t, body, `/static/dashboard.js`)
}

func TestIndexDisconnected(t *testing.T) {
	r := newTestRouter(broker.Status{State: broker.StateDisconnected}, location.Summary{})

	body := get(r, "/").Body.String()
	assert.Contains(t, body, "disconnected")
	assert.Contains(t, body, ">Connect</button>")
	assert.Contains(t, body, "No location received yet")
}

func TestMapViewEscapesAttributes(t *testing.T) {
	cfg := config.Default().Map
	cfg.Attribution = `"><script>alert(1)</script>`
	r := mux.NewRouter()
	New(cfg, fixedStatus{}, fixedSummary{}).SetupHandlers(r)

	body := get(r, "/").Body.String()
	assert.NotContains(t, body, "<script>alert(1)</script>")
}

func TestStaticAssets(t *testing.T) {
	r := newTestRouter(broker.Status{}, location.Summary{})

	rec := get(r, "/static/dashboard.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Current Location: ")
	assert.Contains(t, rec.Body.String(), "points.length > 1")

	rec = get(r, "/static/style.css")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, get(r, "/static/missing.js").Code)
}
