package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dsalearning/dsa-recorder/internal/app"
	"github.com/dsalearning/dsa-recorder/internal/audio"
	"github.com/dsalearning/dsa-recorder/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// defaultCard is the card id used when none is given.
const defaultCard = "inbox"

// services is everything a command needs to record. close tears it down in
// reverse order of construction.
type services struct {
	app     *app.App
	ctrl    *audio.Controller
	store   *storage.Store
	metrics *http.Server
}

func setup(status app.StatusUpdater) (*services, error) {
	backend, err := audio.NewBackend(cfg.Audio.Backend)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctrl := audio.NewController(backend, audio.ControllerOptions{
		QueueSize:       cfg.Audio.QueueSize,
		PreferredDevice: cfg.Audio.Device,
		Logger:          log,
		Metrics:         audio.NewMetrics(reg),
	})

	store, err := storage.Open(cfg.DatabasePath(), log)
	if err != nil {
		_ = ctrl.Close()
		return nil, err
	}

	rt := &services{
		ctrl:  ctrl,
		store: store,
		app: app.New(app.Config{
			Recorder:      ctrl,
			Store:         store,
			Config:        cfg,
			Logger:        log,
			StatusUpdater: status,
		}),
	}

	if cfg.Metrics.Listen != "" {
		rt.metrics = serveMetrics(cfg.Metrics.Listen, reg)
	}
	return rt, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}

// close stops any recording, shuts down the capture thread and closes the
// database.
func (rt *services) close(ctx context.Context) error {
	var errs []error
	if err := rt.app.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if rt.metrics != nil {
		if err := rt.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := rt.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
