package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	apiserver "github.com/seednote/seed-worker/internal/api_server"
	"github.com/seednote/seed-worker/internal/client"
	"github.com/seednote/seed-worker/internal/config"
	"github.com/seednote/seed-worker/internal/expansion"
	"github.com/seednote/seed-worker/internal/store"
	"github.com/seednote/seed-worker/internal/worker"
	"github.com/seednote/seed-worker/pkg/log"
	"github.com/seednote/seed-worker/pkg/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const backendCheckTimeout = 5 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process pending seeds until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func run(parent context.Context) error {
	cfg, err := config.New()
	if err != nil {
		undo := log.Setup("info")
		defer undo()
		zap.S().Named("main").Errorw("reading configuration", "error", err)
		return err
	}

	undo := log.Setup(cfg.Service.LogLevel)
	defer undo()

	logger := zap.S().Named("main")
	logger.Infof("Starting seed worker %s", version.Get())
	defer logger.Info("Seed worker stopped")
	logger.Infof("Using config: %s", cfg)

	s, err := newStore(cfg)
	if err != nil {
		logger.Errorw("initializing data store", "error", err)
		return err
	}
	defer func() {
		_ = s.Close()
	}()

	if cfg.Store.Driver == config.StoreDriverSqlite {
		if err := s.InitialMigration(); err != nil {
			logger.Errorw("running initial migration", "error", err)
			return err
		}
	}

	tmpl, err := loadTemplate(cfg)
	if err != nil {
		logger.Errorw("loading prompt template", "error", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	completion := client.NewCompletionClient(cfg.Expansion.URL, cfg.Expansion.Timeout)
	checkBackend(ctx, completion)

	expander := expansion.NewExpander(completion, cfg.Expansion.Model, cfg.Expansion.Temperature, tmpl)
	w := worker.New(s.Seed(), expander, worker.Config{
		IdleInterval:  cfg.Worker.IdleInterval,
		ErrorCooldown: cfg.Worker.ErrorCooldown,
	})

	if cfg.Service.MetricsAddress != "" {
		startMetricServer(ctx, cfg.Service.MetricsAddress, w, cfg.Service.LogLevel)
	}

	return w.Run(ctx)
}

func newStore(cfg *config.Config) (store.Store, error) {
	if cfg.UsesRestStore() {
		zap.S().Named("main").Infow("using REST store", "url", cfg.Store.URL, "table", cfg.Store.Table)
		return store.NewRestStore(store.RestConfig{
			URL:     cfg.Store.URL,
			APIKey:  cfg.Store.APIKey,
			Table:   cfg.Store.Table,
			Timeout: cfg.Store.Timeout,
		}, client.NewHTTPClient(0)), nil
	}

	zap.S().Named("main").Infow("initializing data store", "driver", cfg.Store.Driver)
	db, err := store.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	return store.NewStore(db, cfg.Store.Table, cfg.Store.Timeout), nil
}

func loadTemplate(cfg *config.Config) (*expansion.Template, error) {
	if cfg.Expansion.TemplateFile != "" {
		return expansion.LoadTemplateFile(cfg.Expansion.TemplateFile)
	}
	return expansion.LoadTemplate(cfg.Expansion.Template)
}

// checkBackend only warns: the backend may come up after the worker.
func checkBackend(ctx context.Context, completion *client.CompletionClient) {
	ctx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
	defer cancel()

	if err := completion.HealthCheck(ctx); err != nil {
		zap.S().Named("main").Warnw("completion backend is not reachable yet", "error", err)
	}
}

// startMetricServer serves /metrics and /health until ctx is done. A port
// that cannot be bound disables the server, the worker keeps running.
func startMetricServer(ctx context.Context, address string, status apiserver.StatusProvider, logLevel string) bool {
	logger := zap.S().Named("main")

	listener, err := net.Listen("tcp", address)
	if err != nil {
		logger.Warnw("metrics server disabled", "address", address, "error", err)
		return false
	}

	metricServer := apiserver.NewMetricServer(address, listener, status, logLevel)
	go func() {
		if err := metricServer.Run(ctx); err != nil {
			logger.Errorw("metrics server stopped", "error", err)
		}
	}()
	return true
}
