// presence-replay runs a presence session over recorded detections.
// Events are logged, and optionally stored in SQLite and broadcast to WebSocket clients.
//
// Usage:
//
//	go run ./cmd/presence-replay -replay detections.jsonl
//	go run ./cmd/presence-replay -replay detections.jsonl -config presence.json -store events.db
//	go run ./cmd/presence-replay -replay detections.jsonl -realtime -relay :8080
//
// Each input line is one frame: a JSON array of boxes with optional labels.
// Without -realtime the frames are processed in virtual time as fast as possible.
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

	"github.com/LdDl/presence-go/internal/log"
	"github.com/LdDl/presence-go/internal/timeutil"
	"github.com/LdDl/presence-go/relay"
	"github.com/LdDl/presence-go/session"
	"github.com/LdDl/presence-go/store"
)

func main() {
	replayPath := flag.String("replay", "", "Path to recorded detections (JSON lines)")
	configPath := flag.String("config", "", "Path to JSON engine options; defaults are used when empty")
	storePath := flag.String("store", "", "SQLite file to store events in; disabled when empty")
	relayAddr := flag.String("relay", "", "Listen address of the WebSocket relay, e.g. :8080; disabled when empty")
	level := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	realtime := flag.Bool("realtime", false, "Wait the real frame interval between frames")
	source := flag.String("source", "replay", "Source name used in log records")
	flag.Parse()

	log.Init(*level)
	logger := log.With("component", "presence-replay")

	if *replayPath == "" {
		logger.Error("-replay is required")
		os.Exit(2)
	}

	cfg := session.DefaultEngineConfig()
	if *configPath != "" {
		var err error
		cfg, err = session.LoadEngineConfig(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}

	file, err := os.Open(*replayPath)
	if err != nil {
		logger.Error("failed to open replay", "path", *replayPath, "error", err)
		os.Exit(1)
	}
	defer file.Close()

	sinks := session.MultiSink{session.LogSink{Logger: log.With("component", "events", "source", *source)}}

	if *storePath != "" {
		events, err := store.Open(*storePath)
		if err != nil {
			logger.Error("failed to open event store", "path", *storePath, "error", err)
			os.Exit(1)
		}
		defer events.Close()
		sinks = append(sinks, events)
	}

	var server *http.Server
	if *relayAddr != "" {
		hub := relay.NewHub()
		defer hub.Close()
		sinks = append(sinks, hub)

		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		server = &http.Server{
			Addr:              *relayAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("relay listening", "addr", *relayAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("relay server failed", "error", err)
			}
		}()
	}

	var clock timeutil.Clock = timeutil.RealClock{}
	if !*realtime {
		clock = timeutil.NewMockClock(time.Now())
	}

	s, err := session.New(cfg, session.NewReplayDetector(file),
		session.WithClock(clock),
		session.WithSource(*source),
		session.WithSink(sinks),
	)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received signal, shutting down")
		cancel()
	}()

	s.Start(ctx)
	<-s.Done()

	stats := s.Stats()
	logger.Info("replay finished",
		"frames", stats.Frames,
		"skipped_frames", stats.SkippedFrames,
		"detections", stats.Detections,
		"rejected_detections", stats.RejectedDetections,
		"events", stats.Events,
		"publish_failures", stats.PublishFailures,
	)

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("relay shutdown failed", "error", err)
		}
	}
}
