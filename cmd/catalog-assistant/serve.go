package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-assistant/internal/api"
	"catalog-assistant/internal/common/camunda"
	"catalog-assistant/internal/common/config"
	resolvequery "catalog-assistant/internal/workers/resource-query/resolve-query"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the message route and work Zeebe jobs until signalled",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	zapLog.Info("Starting catalog assistant...",
		zap.String("agentId", cfg.App.AgentID),
		zap.String("httpAddr", cfg.App.HTTPAddr),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, zapLog, log)
	if err != nil {
		zapLog.Error("startup failed", zap.Error(err))
		return err
	}

	// --- Zeebe worker ---
	var zeebe *camunda.Client
	var jobWorker *camunda.Worker
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClient(ctx, cfg.Camunda.BrokerAddress, log)
			return err
		}, 5, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			a.close(context.Background())
			return err
		}
		zapLog.Info("Zeebe client connected successfully")

		handler := resolvequery.NewHandler(resolvequery.LoadConfig(cfg), a.pipeline, log)
		jobWorker = zeebe.StartWorker(resolvequery.TaskType, config.GetWorkerConfig(cfg, resolvequery.TaskType), handler)
	}

	// --- HTTP ---
	deps := api.Dependencies{
		Logger:    log,
		Agents:    []api.Agent{{ID: cfg.App.AgentID, Name: cfg.App.AgentName}},
		Resolver:  a.pipeline,
		Completer: a.completer,
		Readiness: func(context.Context) error {
			if !a.manager.IsHealthy() {
				return fmt.Errorf("store %s", a.manager.Health())
			}
			return nil
		},
	}
	if a.memory != nil {
		deps.Memory = a.memory
	}

	server := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLog.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zapLog.Info("Shutdown signal received, draining...")

		grace := config.GetDuration(cfg.App.ShutdownGraceMs)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()

		a.manager.StopProbe()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLog.Warn("http shutdown incomplete", zap.Error(err))
		}
		jobWorker.Close()
		if zeebe != nil {
			if err := zeebe.Close(); err != nil {
				zapLog.Warn("zeebe close failed", zap.Error(err))
			}
		}
		a.close(shutdownCtx)
		return nil
	})

	err = g.Wait()
	zapLog.Info("Catalog assistant stopped")
	return err
}
