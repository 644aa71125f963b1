package main

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mbourse/masi-api/internal/config"
	"github.com/mbourse/masi-api/internal/job"
	"github.com/mbourse/masi-api/internal/market"
	"github.com/mbourse/masi-api/internal/platform/httpx"
	"github.com/mbourse/masi-api/internal/platform/sqlite"
	"github.com/mbourse/masi-api/internal/refresh"
	jobrepo "github.com/mbourse/masi-api/internal/repository/job"
	marketrepo "github.com/mbourse/masi-api/internal/repository/market"
	"github.com/mbourse/masi-api/internal/scraper"
	"github.com/mbourse/masi-api/internal/scraper/tradingview"
	"github.com/mbourse/masi-api/internal/scraper/yahoo"
)

// app holds everything the subcommands share.
type app struct {
	db      *sqlite.DB
	jobRepo *jobrepo.Repository
	market  *market.Service
	refresh *refresh.Service
	jobs    *job.Service
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	client := &http.Client{Timeout: cfg.Refresh.TimeoutDuration()}

	// A missing remote copy is not fatal: Open creates an empty database.
	if err := sqlite.EnsureLocal(ctx, client, cfg.DBPath, cfg.DBRemoteURL); err != nil {
		log.Warn().Err(err).Str("url", cfg.DBRemoteURL).Msg("could not download database")
	}

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	marketRepo := marketrepo.NewRepository(db.DB)
	jobRepo := jobrepo.NewRepository(db.DB)

	policy := httpx.Policy{Limiter: httpx.NewLimiter(cfg.Refresh.RateLimit)}

	registry := scraper.NewRegistry()
	registry.Register(yahoo.New(
		yahoo.WithWorkers(cfg.Workers),
		yahoo.WithPolicy(policy),
	))

	snapshot := tradingview.New(
		tradingview.WithEndpoint(cfg.Refresh.ScannerURL),
		tradingview.WithPageSize(cfg.Refresh.PageSize),
		tradingview.WithClient(client),
		tradingview.WithPolicy(policy),
	)

	return &app{
		db:      db,
		jobRepo: jobRepo,
		market:  market.NewService(marketRepo, db.Path()),
		refresh: refresh.NewService(marketRepo, jobRepo, snapshot, registry),
		jobs:    job.NewService(jobRepo),
	}, nil
}

func (a *app) Close() error { return a.db.Close() }
