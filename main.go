package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/kaireichart/live-location-map/broker"
	"github.com/kaireichart/live-location-map/config"
	"github.com/kaireichart/live-location-map/dashboard"
	"github.com/kaireichart/live-location-map/events"
	"github.com/kaireichart/live-location-map/live"
	"github.com/kaireichart/live-location-map/location"
	"github.com/kaireichart/live-location-map/logging"
	"github.com/kaireichart/live-location-map/metrics"
	"github.com/kaireichart/live-location-map/recording"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Init("info", "console")
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(cfg.Logging.Level, cfg.Logging.Format)

	if err := events.Init(cfg.Events.LogDir); err != nil {
		log.Warn().Err(err).Msg("event log file unavailable, keeping events in memory only")
	}
	metrics.InitMetrics()

	var (
		store    *recording.Store
		recorder *recording.Recorder
		archiver location.Archiver
	)
	if cfg.Recording.Enabled {
		store, err = recording.Open(cfg.Recording.DBPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open recording database")
		}
		recorder = recording.NewRecorder(store, cfg.MQTT.Topic)
		archiver = recorder
	}

	tracker := location.NewTracker()
	var session *broker.Session

	hub := live.NewHub(func() []live.Message {
		msgs := []live.Message{
			{Type: "status", Data: session.Status()},
			{Type: location.MessagePath, Data: tracker.Path()},
		}
		if pos, ok := tracker.Current(); ok {
			msgs = append(msgs, live.Message{
				Type: location.MessageLocation,
				Data: location.Update{Position: pos, PathLength: tracker.Len()},
			})
		}
		return msgs
	})

	service := location.NewService(tracker, hub, archiver)
	session = broker.NewSession(cfg.MQTT, broker.Options{
		OnMessage: service.HandleMessage,
		OnStatus: func(st broker.Status) {
			hub.Broadcast("status", st)
			if recorder != nil {
				recorder.Observe(st)
			}
		},
	})
	events.SetListener(func(e events.Event) {
		hub.Broadcast("event", e)
	})

	r := mux.NewRouter()
	hub.SetupHandlers(r)
	session.SetupHandlers(r)
	service.SetupHandlers(r)
	events.SetupHandlers(r)
	if store != nil {
		store.SetupHandlers(r)
	}
	r.Handle("/metrics", promhttp.Handler())
	dashboard.New(cfg.Map, session, tracker).SetupHandlers(r)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MQTT.AutoConnect {
		go func() {
			if err := session.Connect(ctx); err != nil {
				log.Warn().Err(err).Msg("initial MQTT connect failed, use the dashboard to retry")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down server")
	}
	if err := session.Disconnect(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error disconnecting from MQTT broker")
	}
	hub.Close()
	if recorder != nil {
		recorder.Close()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("error closing recording database")
		}
	}
	if err := events.Close(); err != nil {
		log.Error().Err(err).Msg("error closing event log")
	}
}
