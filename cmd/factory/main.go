// Package main is the factory_os HTTP API server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/R3E-Network/factory_os/internal/app"
	"github.com/R3E-Network/factory_os/internal/app/httpapi"
	"github.com/R3E-Network/factory_os/internal/config"
	"github.com/R3E-Network/factory_os/internal/logging"
)

func main() {
	envFile := flag.String("env-file", config.DefaultEnvFile, "optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logging.NewDefault(app.ServiceName).WithError(err).Fatal("Failed to load configuration")
	}
	log := logging.New(app.ServiceName, cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Server exited with error")
	}
}

func run(cfg *config.Config, log *logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	handler, err := httpapi.NewHandler(application)
	if err != nil {
		return err
	}
	if err := application.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{
			"addr":     server.Addr,
			"version":  app.Version,
			"location": cfg.FactoryLocation,
			"ai":       application.GenAI().Provider(),
		}).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-serveErr:
		runErr = err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown error")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Application shutdown error")
		if runErr == nil {
			runErr = err
		}
	}
	log.Info("Server stopped")
	return runErr
}
