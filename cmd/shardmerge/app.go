package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vibesql/shardmerge/internal/codec"
	"github.com/vibesql/shardmerge/internal/config"
	"github.com/vibesql/shardmerge/internal/datasource"
	"github.com/vibesql/shardmerge/internal/executor"
	"github.com/vibesql/shardmerge/internal/logger"
	"github.com/vibesql/shardmerge/internal/merge"
	"github.com/vibesql/shardmerge/internal/metrics"
	"github.com/vibesql/shardmerge/internal/query"
	"github.com/vibesql/shardmerge/internal/server"
)

// app holds the long-lived components built from one config
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	sources  *datasource.Registry
	executor *executor.Engine
}

func openSources(cfg *config.Config) (*datasource.Registry, error) {
	sources := datasource.NewRegistry()
	for name, ds := range cfg.DataSources {
		if err := sources.Open(name, ds); err != nil {
			sources.Close()
			return nil, err
		}
	}
	return sources, nil
}

func newApp(cfg *config.Config, logOutput io.Writer) (*app, error) {
	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: logOutput,
	})
	m := metrics.New()

	sources, err := openSources(cfg)
	if err != nil {
		return nil, err
	}

	engine, err := executor.NewEngine(cfg.PoolSize(), log, m)
	if err != nil {
		sources.Close()
		return nil, fmt.Errorf("failed to create executor engine: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   log,
		metrics:  m,
		sources:  sources,
		executor: engine,
	}, nil
}

// Router builds the HTTP surface over the app's components
func (a *app) Router() http.Handler {
	dialect, _ := merge.ParseDialect(a.cfg.Merge.Dialect)
	mode, _ := query.ParseConnectionMode(a.cfg.Query.ConnectionMode)

	h := server.NewHandler(server.HandlerOptions{
		Sources:       a.sources,
		Executor:      a.executor,
		Runner:        query.NewRunner(a.sources, mode, a.cfg.Query.MaxShardRows, a.cfg.Query.Timeout, a.logger),
		Merger:        merge.NewEngine(codec.NewDefaultRegistry(), a.logger, a.metrics),
		Metrics:       a.metrics,
		Logger:        a.logger,
		Dialect:       dialect,
		MaxResultRows: a.cfg.Query.MaxResultRows,
		Timeout:       a.cfg.Query.Timeout,
		Serial:        a.cfg.Executor.Serial,
	})
	return server.NewRouter(h, a.metrics, a.logger)
}

func (a *app) Close() {
	a.executor.Close()
	if err := a.sources.Close(); err != nil {
		a.logger.Error("Failed to close data sources", "error", err)
	}
}
