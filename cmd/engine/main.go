// Package main is the entry point for the bench acquisition engine.
// It initializes all components and manages the application lifecycle.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexus-edge/bench-engine/internal/adapter/modbus"
	"github.com/nexus-edge/bench-engine/internal/adapter/mqtt"
	"github.com/nexus-edge/bench-engine/internal/api"
	"github.com/nexus-edge/bench-engine/internal/config"
	"github.com/nexus-edge/bench-engine/internal/health"
	"github.com/nexus-edge/bench-engine/internal/metrics"
	"github.com/nexus-edge/bench-engine/internal/service"
	"github.com/nexus-edge/bench-engine/internal/store"
	"github.com/nexus-edge/bench-engine/pkg/logging"
)

const (
	serviceName    = "bench-engine"
	serviceVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(serviceName, serviceVersion, logging.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger.Info().Str("env", cfg.Environment).Msg("Starting bench engine")

	metricsRegistry := metrics.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	db, err := store.Open(cfg.Database.DSN, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()
	logger.Info().Str("dsn", cfg.Database.DSN).Msg("Database ready")

	// Live-event publisher
	publisher := mqtt.NewPublisher(mqtt.Config{
		BrokerURL:      cfg.MQTT.BrokerURL,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		QoS:            cfg.MQTT.QoS,
		KeepAlive:      cfg.MQTT.KeepAlive,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		ReconnectDelay: cfg.MQTT.ReconnectDelay,
		BufferSize:     cfg.MQTT.BufferSize,
		PublishTimeout: cfg.MQTT.PublishTimeout,
		TopicPrefix:    cfg.MQTT.TopicPrefix,
	}, logger, metricsRegistry)
	if err := publisher.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MQTT broker")
	}
	defer publisher.Disconnect()

	// Transport
	dialer := modbus.NewDialer(logger)

	// Write executor
	writer := service.NewCoilWriter(service.WriterConfig{
		QueueSize:    cfg.Writer.QueueSize,
		Workers:      cfg.Writer.Workers,
		DialTimeout:  cfg.Modbus.DialTimeout,
		WriteTimeout: cfg.Writer.WriteTimeout,
	}, db, dialer, publisher, logger, metricsRegistry)
	if err := writer.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start write executor")
	}
	defer writer.Stop()

	// Core services
	alarms := service.NewAlarmEvaluator(db, publisher, logger, metricsRegistry)
	cascade := service.NewCascadeEngine(db, writer, service.NewMemoryValueCache(), logger)
	sessions := service.NewSessionManager(db, writer, logger)
	scheduler := service.NewScheduler(db, writer, logger)

	poller := service.NewPollService(service.PollConfig{
		Interval:        cfg.Poll.Interval,
		DialTimeout:     cfg.Modbus.DialTimeout,
		PacingDelay:     cfg.Poll.PacingDelay,
		BreakerTimeout:  cfg.Poll.CBTimeout,
		BreakerFailures: cfg.Poll.CBFailureThreshold,
	}, db, dialer, publisher, alarms, cascade, logger, metricsRegistry)

	// Background loops
	go poller.Run(ctx)
	go scheduler.Run(ctx, cfg.Automation.SchedulerTick)
	go superviseSessions(ctx, sessions, cfg.Automation.SessionCheck, logger)

	// Health probes
	healthReg := health.NewRegistry(serviceName, serviceVersion, 5*time.Second)
	healthReg.Add("database", db)
	healthReg.Add("mqtt", publisher)

	// Operator HTTP surface
	apiServer := api.NewServer(sessions, alarms, writer, db, healthReg, logger)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	logger.Info().
		Int("http_port", cfg.HTTP.Port).
		Str("mqtt_broker", cfg.MQTT.BrokerURL).
		Dur("poll_interval", cfg.Poll.Interval).
		Msg("Bench engine started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	logger.Info().Msg("Bench engine shutdown complete")
}

// superviseSessions periodically completes the active run once it reaches
// its target duration.
func superviseSessions(ctx context.Context, sessions *service.SessionManager, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run, err := sessions.CompleteDue(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("Session completion check failed")
				continue
			}
			if run != nil {
				logger.Info().Uint("run_id", run.ID).Msg("Test run completed")
			}
		}
	}
}
