package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evalgo/cascade/cascadehttp"
	"github.com/evalgo/cascade/config"
	"github.com/evalgo/cascade/db"
	"github.com/evalgo/cascade/diagnostics"
	"github.com/evalgo/cascade/engine"
	"github.com/evalgo/cascade/event"
	"github.com/evalgo/cascade/metrics"
	"github.com/evalgo/cascade/qstack"
	"github.com/evalgo/cascade/revision"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only debug HTTP surface over a live database",
	Long: `serve builds a fresh engine Database wired to a Tracker, a Prometheus
Metrics collector, and (when configured) a diagnostics.Recorder, then serves
GET /stats and GET /operations until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("http-port", 0, "debug HTTP port (default from config/env)")
	serveCmd.Flags().String("diagnostics-path", "", "bbolt file to append the event timeline to (default from config/env)")
	_ = viper.BindPFlag("http-port", serveCmd.Flags().Lookup("http-port"))
	_ = viper.BindPFlag("diagnostics-path", serveCmd.Flags().Lookup("diagnostics-path"))
}

func runServe(cmd *cobra.Command, args []string) error {
	opts := config.LoadServeOptions("CASCADE")
	if port := viper.GetInt("http-port"); port != 0 {
		opts.HTTPPort = port
	}
	if path := viper.GetString("diagnostics-path"); path != "" {
		opts.DiagnosticsPath = path
	}

	engineOpts, err := engineOptionsFromViper()
	if err != nil {
		return fmt.Errorf("cascadectl: invalid engine options: %w", err)
	}

	tracker := cascadehttp.NewTracker(opts.TrackerCapacity)
	metricsSink := metrics.New(opts.MetricsNamespace)
	sinks := event.Multi{tracker, metricsSink}

	var recorder *diagnostics.Recorder
	if opts.DiagnosticsPath != "" {
		var err error
		recorder, err = diagnostics.Open(opts.DiagnosticsPath)
		if err != nil {
			return fmt.Errorf("cascadectl: opening diagnostics recorder: %w", err)
		}
		defer recorder.Close()
		sinks = append(sinks, recorder)
		log.WithField("path", opts.DiagnosticsPath).Info("recording event timeline")
	}

	database := db.New(sinks)

	server := cascadehttp.NewServer(tracker, cascadehttp.ServerConfig{
		Port:            opts.HTTPPort,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	})

	workloadCtx, stopWorkload := context.WithCancel(context.Background())
	defer stopWorkload()
	go runDemoWorkload(workloadCtx, database, engineOpts)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", opts.HTTPPort)
		log.WithField("addr", addr).Info("serving debug HTTP surface")
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("cascadectl: debug server: %w", err)
	case <-sigCh:
		log.Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// runDemoWorkload registers one input/function pair on database and nudges
// the input forward on a timer until ctx is cancelled, so /stats and
// /operations have real fetch activity to show instead of sitting empty.
// The function's memo store is capped at opts.EvictionCapacity, the same
// knob the live "run" scenarios exercise.
func runDemoWorkload(ctx context.Context, database *db.Database, opts config.EngineOptions) {
	counter := db.RegisterInput[int](database)
	cell := counter.New(0, revision.Low)
	doubled := db.RegisterFunction[int, int](database, opts.EvictionCapacity, func(h *qstack.Handle, _ int) int {
		v, _ := counter.Get(cell, h)
		return v * 2
	})

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			database.NewRevision()
			if err := counter.Set(cell, n, revision.Low); err != nil {
				log.WithError(err).Warn("demo workload: set failed")
				continue
			}
			if _, err := engine.Fetch(doubled, database.NewHandle(), 0); err != nil {
				log.WithError(err).Warn("demo workload: fetch failed")
			}
		}
	}
}
