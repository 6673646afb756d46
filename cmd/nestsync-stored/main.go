package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/celerix-dev/nestsync/internal/api"
	"github.com/celerix-dev/nestsync/internal/config"
	"github.com/celerix-dev/nestsync/internal/logging"
	"github.com/celerix-dev/nestsync/internal/server"
	"github.com/celerix-dev/nestsync/internal/store"
	"github.com/celerix-dev/nestsync/internal/vault"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logging.Init(os.Stderr, cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logging.Error("failed to open record store", err, logging.Fields{"driver": cfg.DBDriver})
		os.Exit(1)
	}
	defer db.Close()
	logging.Info("record store ready", logging.Fields{"driver": cfg.DBDriver})

	h := &api.Handler{Store: db, MaxPageSize: cfg.MaxPageSize}
	srv := server.New(server.NewRouter(h))
	if cfg.TLS {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			logging.Error("failed to generate TLS certificate", err)
			os.Exit(1)
		}
		srv.SetCertificate(cert)
		logging.Info("TLS enabled with a self-signed certificate")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info("http api listening", logging.Fields{"port": cfg.HTTPPort})
		return srv.Listen(":" + cfg.HTTPPort)
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logging.Error("server stopped", err)
		os.Exit(1)
	}
	logging.Info("bye")
}
