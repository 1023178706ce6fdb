package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dhumphrey11/moda-trading/internal/config"
	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/metrics"
	"github.com/dhumphrey11/moda-trading/internal/notifier"
	"github.com/dhumphrey11/moda-trading/internal/notifier/webhook"
	"github.com/dhumphrey11/moda-trading/internal/orchestrator"
	"github.com/dhumphrey11/moda-trading/internal/portfolio"
	"github.com/dhumphrey11/moda-trading/internal/provider"
	"github.com/dhumphrey11/moda-trading/internal/provider/alphavantage"
	"github.com/dhumphrey11/moda-trading/internal/provider/finnhub"
	"github.com/dhumphrey11/moda-trading/internal/provider/polygon"
	"github.com/dhumphrey11/moda-trading/internal/provider/tiingo"
	"github.com/dhumphrey11/moda-trading/internal/ratelimit"
	"github.com/dhumphrey11/moda-trading/internal/risk"
	"github.com/dhumphrey11/moda-trading/internal/storage/archive"
	"github.com/dhumphrey11/moda-trading/internal/store/memory"
	"github.com/dhumphrey11/moda-trading/internal/strategy"
)

// app holds the assembled engines.
type app struct {
	metrics      *metrics.Registry
	orchestrator *orchestrator.Engine
	strategy     *strategy.Engine
	portfolio    *portfolio.Manager
}

// loadConfig reads the config file, or defaults when none was given.
func loadConfig(log *zap.Logger) (*config.Config, error) {
	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
		cfg := config.Defaults()
		return cfg, nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// buildApp assembles the engines from validated configuration.
func buildApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	st := memory.New()
	reg := metrics.NewRegistry()

	clients, quotas := buildProviders(cfg)
	if len(clients) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}
	tracker := ratelimit.New(quotas, ratelimit.WithLogger(log))

	archiver, err := buildArchiver(cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("building archive: %w", err)
	}

	notifiers, err := buildNotifiers(cfg.Notifiers)
	if err != nil {
		return nil, fmt.Errorf("building notifiers: %w", err)
	}

	policy := risk.Policy{
		MaxPositionPct: decimal.NewFromFloat(cfg.Risk.MaxPositionPct),
		StopLossPct:    decimal.NewFromFloat(cfg.Risk.StopLossPct),
		TakeProfitPct:  decimal.NewFromFloat(cfg.Risk.TakeProfitPct),
		MaxSectorPct:   decimal.NewFromFloat(cfg.Risk.MaxSectorPct),
		MaxDrawdownPct: decimal.NewFromFloat(cfg.Risk.MaxDrawdownPct),
		MinConfidence:  cfg.Risk.MinConfidence,
		MaxPositions:   cfg.Risk.MaxPositions,
	}
	riskManager := risk.NewManager(st, policy, log)

	strategyOpts := []strategy.Option{
		strategy.WithHorizon(time.Duration(cfg.Portfolio.SignalHorizonHours) * time.Hour),
	}
	if notifiers != nil {
		strategyOpts = append(strategyOpts, strategy.WithNotifiers(notifiers))
	}
	strategyEngine := strategy.NewEngine(st, riskManager, reg, log, strategyOpts...)

	portfolioOpts := []portfolio.Option{
		portfolio.WithFeeRate(decimal.NewFromFloat(cfg.Portfolio.FeeRate)),
		portfolio.WithArchiver(archiver),
	}
	if notifiers != nil {
		portfolioOpts = append(portfolioOpts, portfolio.WithNotifiers(notifiers))
	}
	portfolioManager := portfolio.NewManager(st, reg, log, portfolioOpts...)

	engineOpts := orchestrator.DefaultOptions()
	engineOpts.Pacing = map[orchestrator.Stage]time.Duration{
		orchestrator.StageIntraday:     cfg.Orchestrator.IntradayPacing,
		orchestrator.StageDaily:        cfg.Orchestrator.DailyPacing,
		orchestrator.StageFundamentals: cfg.Orchestrator.FundamentalsPacing,
	}
	engineOpts.NewsToIntraday = cfg.Orchestrator.NewsToIntraday
	engineOpts.IntradayToDaily = cfg.Orchestrator.IntradayToDaily
	engineOpts.DailyToFundamentals = cfg.Orchestrator.DailyToFundamentals
	engineOpts.FundamentalsHours = cfg.Orchestrator.FundamentalsHours
	engineOpts.Archive = archiver

	engine := orchestrator.NewEngine(st, clients, tracker, reg, log, engineOpts)

	return &app{
		metrics:      reg,
		orchestrator: engine,
		strategy:     strategyEngine,
		portfolio:    portfolioManager,
	}, nil
}

func buildProviders(cfg *config.Config) ([]provider.Client, map[core.Provider]int) {
	var clients []provider.Client
	quotas := make(map[core.Provider]int)

	for name, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		pcfg := provider.Config{APIKey: p.APIKey, BaseURL: p.BaseURL}
		var client provider.Client
		switch name {
		case "alphavantage":
			client = alphavantage.New(pcfg)
		case "finnhub":
			client = finnhub.New(pcfg)
		case "polygon":
			client = polygon.New(pcfg)
		case "tiingo":
			client = tiingo.New(pcfg)
		default:
			continue
		}
		clients = append(clients, client)
		if p.DailyQuota > 0 {
			quotas[client.Name()] = p.DailyQuota
		} else {
			quotas[client.Name()] = ratelimit.DefaultQuotas[client.Name()]
		}
	}
	return clients, quotas
}

func buildArchiver(cfg config.ArchiveConfig) (*archive.Archiver, error) {
	var backend archive.Storage
	var err error

	switch cfg.Type {
	case "s3":
		backend, err = archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	default:
		path := cfg.Path
		if path == "" {
			path = "./data/archive"
		}
		backend, err = archive.NewLocalFS(path)
	}
	if err != nil {
		return nil, err
	}
	return archive.NewArchiver(backend), nil
}

func buildNotifiers(cfgs map[string]config.NotifierConfig) (*notifier.Registry, error) {
	registry := notifier.NewRegistry()
	registered := 0

	for name, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		switch name {
		case "webhook":
			wh := webhook.New(cfg.URL, cfg.Headers)
			if err := wh.Init(notifier.Config{
				Type:   "webhook",
				Params: map[string]any{"url": cfg.URL, "headers": cfg.Headers},
			}); err != nil {
				return nil, err
			}
			if err := registry.Register(wh); err != nil {
				return nil, err
			}
			registered++
		default:
			return nil, fmt.Errorf("unknown notifier %q", name)
		}
	}

	if registered == 0 {
		return nil, nil
	}
	return registry, nil
}
