package dashboard

import (
	"embed"
	"io/fs"
	"strconv"

	"github.com/kaireichart/live-location-map/broker"
	"github.com/kaireichart/live-location-map/config"
	"github.com/kaireichart/live-location-map/events"
	"github.com/kaireichart/live-location-map/location"
)

//go:embed static/*
var staticFiles embed.FS

// StatusSource reports the broker session state.
type StatusSource interface {
	Status() broker.Status
}

// SummarySource reports the current position and path.
type SummarySource interface {
	Summary() location.Summary
}

// Dashboard serves the operator page and its assets.
type Dashboard struct {
	cfg     config.MapConfig
	status  StatusSource
	summary SummarySource
	static  fs.FS
}

func New(cfg config.MapConfig, status StatusSource, summary SummarySource) *Dashboard {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return &Dashboard{cfg: cfg, status: status, summary: summary, static: sub}
}

// PageData is everything the first render needs; later updates arrive
// over the WebSocket.
type PageData struct {
	Map     config.MapConfig
	Status  broker.Status
	Summary location.Summary
	Events  []events.Event
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
