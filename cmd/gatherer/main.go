package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Alparse/databento-client-sub000/internal/config"
	"github.com/Alparse/databento-client-sub000/internal/database"
	"github.com/Alparse/databento-client-sub000/internal/dbn"
	"github.com/Alparse/databento-client-sub000/internal/live"
	"github.com/Alparse/databento-client-sub000/internal/stream"
	"github.com/Alparse/databento-client-sub000/internal/symbology"
	"github.com/Alparse/databento-client-sub000/internal/version"
	"github.com/Alparse/databento-client-sub000/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/feed.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gatherer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"gateway_url", cfg.Gateway.URL,
		"dataset", cfg.Session.Dataset,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)

	db, err := database.Connect(ctx, cfg.Database.Timescale)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("database connected")

	// Writer input queues
	tradeQueue := stream.NewBounded[dbn.TradeMsg](cfg.Writers.BufferSize)
	ohlcvQueue := stream.NewBounded[dbn.OhlcvMsg](cfg.Writers.BufferSize)

	writerCfg := writer.WriterConfig{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
	}
	tradeWriter := writer.NewTradeWriter(writerCfg, tradeQueue, db, logger)
	ohlcvWriter := writer.NewOhlcvWriter(writerCfg, ohlcvQueue, db, logger)

	if err := tradeWriter.Start(ctx); err != nil {
		logger.Error("failed to start trade writer", "error", err)
		os.Exit(1)
	}
	if err := ohlcvWriter.Start(ctx); err != nil {
		logger.Error("failed to start ohlcv writer", "error", err)
		os.Exit(1)
	}

	// Live session
	transport := live.NewWSTransport(live.WSConfig{
		URL:               cfg.Gateway.URL,
		APIKey:            cfg.Gateway.APIKey,
		HandshakeTimeout:  cfg.Gateway.HandshakeTimeout,
		WriteTimeout:      cfg.Gateway.WriteTimeout,
		HeartbeatInterval: cfg.Gateway.HeartbeatInterval,
		PingTimeout:       cfg.Gateway.PingTimeout,
		CommandTimeout:    cfg.Gateway.CommandTimeout,
		TsOut:             cfg.Session.TsOut,
	}, logger)

	session := live.NewController(live.Config{
		BufferSize:     cfg.Session.BufferSize,
		Strict:         cfg.Session.Strict,
		QuiesceTimeout: cfg.Session.QuiesceTimeout,
	}, transport, logger)

	for _, schema := range cfg.Session.Schemas {
		var err error
		if cfg.Session.Snapshot {
			err = session.SubscribeWithSnapshot(ctx, cfg.Session.Dataset, schema, cfg.Session.Symbols...)
		} else {
			err = session.Subscribe(ctx, cfg.Session.Dataset, schema, cfg.Session.Symbols...)
		}
		if err != nil {
			logger.Error("failed to record subscription", "schema", schema, "error", err)
			os.Exit(1)
		}
	}

	if err := session.Start(ctx); err != nil {
		logger.Error("failed to start live session", "error", err)
		os.Exit(1)
	}

	// Point-in-time symbol map fed by the record stream
	pit := symbology.NewPitSymbolMap()

	// Health server
	healthServer := &http.Server{
		Addr:    ":8080",
		Handler: createHealthHandler(db, session, logger),
	}
	go func() {
		logger.Info("starting health server", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("gatherer running",
		"instance_id", cfg.Instance.ID,
		"schemas", cfg.Session.Schemas,
		"symbols", len(cfg.Session.Symbols),
	)

	// Drain loop: pull decoded records and dispatch to writers.
	drainErr := drain(ctx, session, pit, tradeQueue, ohlcvQueue, logger)

	logger.Info("shutting down...", "reason", drainErr)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := session.Stop(shutdownCtx); err != nil {
		logger.Warn("session stop", "error", err)
	}

	tradeQueue.Close()
	ohlcvQueue.Close()
	tradeWriter.Stop(shutdownCtx)
	ohlcvWriter.Stop(shutdownCtx)

	healthServer.Shutdown(shutdownCtx)

	logger.Info("gatherer stopped")
}

// drain pulls records from the session until the stream or the context
// ends, routing them by concrete type.
func drain(
	ctx context.Context,
	session *live.Controller,
	pit *symbology.PitSymbolMap,
	tradeQueue *stream.Queue[dbn.TradeMsg],
	ohlcvQueue *stream.Queue[dbn.OhlcvMsg],
	logger *slog.Logger,
) error {
	for {
		rec, err := session.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return err
			}
			logger.Error("record stream failed", "error", err)
			return err
		}

		pit.OnRecord(rec)

		switch r := rec.(type) {
		case dbn.TradeMsg:
			tradeQueue.Push(r)
		case dbn.OhlcvMsg:
			ohlcvQueue.Push(r)
		case dbn.SymbolMappingMsg:
			// Already absorbed by the pit map.
		case dbn.ErrorMsg:
			logger.Warn("gateway error record", "message", r.Err)
		case dbn.SystemMsg:
			if !r.IsHeartbeat() {
				logger.Info("gateway system record", "message", r.Msg)
			}
		case dbn.UnknownMsg:
			logger.Debug("unknown record type", "rtype", r.TagByte, "len", len(r.Raw))
		}
	}
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(db *pgxpool.Pool, session *live.Controller, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["timescaledb"] = "connected"
		}

		// Check live session
		state := session.State()
		stats := session.Stats()
		health.Components["session"] = map[string]any{
			"state":   state.String(),
			"pushed":  stats.TotalPushed,
			"popped":  stats.TotalPopped,
			"backlog": stats.Count,
		}
		if state != live.StateStreaming {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/session", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":            session.ID().String(),
			"state":         session.State().String(),
			"subscriptions": session.Subscriptions(),
			"queue":         session.Stats(),
		})
	})

	return mux
}
