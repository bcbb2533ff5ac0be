package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tailscale.com/tsnet"

	"github.com/claude/grouplift/internal/archive"
	"github.com/claude/grouplift/internal/config"
	"github.com/claude/grouplift/internal/live"
	"github.com/claude/grouplift/internal/mcp"
	"github.com/claude/grouplift/internal/rotation"
	"github.com/claude/grouplift/internal/server"
	"github.com/claude/grouplift/internal/sessions"
	"github.com/claude/grouplift/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("GroupLift starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Run migrations
	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// Connect database
	ctx := context.Background()
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	// Archive pipeline: local spool, then Postgres and optionally Kafka
	spool, err := archive.OpenSpool(cfg.Archive.SpoolDir)
	if err != nil {
		log.Error("failed to open archive spool", "dir", cfg.Archive.SpoolDir, "error", err)
		os.Exit(1)
	}
	defer spool.Close()

	sinks := archive.Chain{db}
	if cfg.Kafka.Enabled() {
		publisher := archive.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
		sinks = append(sinks, publisher)
		log.Info("kafka publishing enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	if n, err := spool.Pending(ctx); err == nil && n > 0 {
		log.Info("resuming archive backlog", "pending", n)
	}

	dispatcher := archive.NewDispatcher(spool, sinks, archive.Config{
		PollInterval: cfg.Archive.PollInterval,
		BatchSize:    cfg.Archive.BatchSize,
		MaxAttempts:  cfg.Archive.MaxAttempts,
		BaseBackoff:  cfg.Archive.BaseBackoff,
		MaxBackoff:   cfg.Archive.MaxBackoff,
	}, log)
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	go dispatcher.Start(dispatchCtx)

	// Live sessions
	registry := rotation.NewRegistry(
		rotation.WithCodeLength(cfg.Sessions.CodeLength),
		rotation.WithMaxAttempts(cfg.Sessions.MaxIDAttempts),
	)
	svc := sessions.NewService(registry, db, db, dispatcher, log)
	hub := live.NewHub(cfg.Live.MaxConns, cfg.Live.Buffer, log)
	svc.SetNotifier(hub)

	// Create server
	srv := server.New(db, svc, hub, cfg.Auth.APIKey, log)
	srv.SetMCP(mcp.New(db, svc, Version, log))

	// Start server: tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	// Finished sessions are spooled before the dispatcher stops; anything
	// not yet delivered is retried on next start.
	svc.Close(shutdownCtx)
	stopDispatch()
	dispatcher.Wait()
	if n, err := spool.Pending(context.Background()); err == nil && n > 0 {
		log.Info("archive backlog left for next start", "pending", n)
	}
	if active := registry.Len(); active > 0 {
		log.Warn("live sessions discarded at shutdown", "active", active)
	}
	log.Info("server stopped")
}
