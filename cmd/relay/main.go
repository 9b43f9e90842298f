package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/its-me-navee/e4square/internal/archive"
	appcfg "github.com/its-me-navee/e4square/internal/config"
	"github.com/its-me-navee/e4square/internal/gateway"
	"github.com/its-me-navee/e4square/internal/hub"
	"github.com/its-me-navee/e4square/internal/identity"
	"github.com/its-me-navee/e4square/internal/invite"
	"github.com/its-me-navee/e4square/internal/metrics"
	"github.com/its-me-navee/e4square/internal/msgcat"
	"github.com/its-me-navee/e4square/internal/obslog"
	"github.com/its-me-navee/e4square/internal/presence"
	"github.com/its-me-navee/e4square/internal/rules"
	"github.com/its-me-navee/e4square/internal/server"
	"github.com/its-me-navee/e4square/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	cfg, err := appcfg.Load()
	if err != nil {
		obslog.L().Fatal("config error", zap.Error(err))
	}

	verifier, err := identity.FromConfig(cfg)
	if err != nil {
		obslog.L().Fatal("identity init error", zap.Error(err))
	}
	messages, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		obslog.L().Fatal("message catalog error", zap.Error(err))
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	sink, err := archive.SinkFromConfig(startCtx, cfg)
	cancelStart()
	if err != nil {
		obslog.L().Fatal("archive init error", zap.Error(err))
	}
	var archiver *archive.Archiver
	if sink != nil {
		archiver = archive.NewArchiver(sink, 256)
	} else {
		obslog.L().Info("archive disabled: neither REDIS_URL nor DATABASE_URL set")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	wsHub := hub.New(hub.Options{QueueSize: cfg.OutboundQueue, WriteTimeout: cfg.WriteTimeout})
	registry := presence.NewRegistry()
	deps := gateway.Deps{
		Transport:   wsHub,
		Verifier:    verifier,
		Presence:    registry,
		Invites:     invite.NewBroker(registry),
		Sessions:    session.NewStore(rules.NewChess()),
		Messages:    messages,
		Metrics:     collector,
		AuthTimeout: cfg.AuthTimeout,
	}
	if archiver != nil {
		deps.Archive = archiver
	}
	gw := gateway.New(deps)

	opts := server.Options{
		Gateway:        gw,
		Hub:            wsHub,
		Metrics:        metrics.Handler(reg),
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if rs, ok := archive.RedisReader(sink); ok {
		opts.Archive = rs
	}
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		obslog.L().Info("relay_listen", zap.String("addr", cfg.ListenAddr), zap.String("auth_mode", cfg.AuthMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		obslog.L().Info("relay_shutdown", zap.String("signal", sig.String()))
	case err := <-errCh:
		obslog.L().Error("relay_listen_failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		obslog.L().Warn("http shutdown", zap.Error(err))
	}
	if err := wsHub.Shutdown(ctx); err != nil {
		obslog.L().Warn("hub shutdown", zap.Error(err))
	}
	if err := archiver.Close(ctx); err != nil {
		obslog.L().Warn("archive shutdown", zap.Error(err))
	}
}
