// Package app wires the provisioning service from configuration. Both the
// HTTP server and the CLI build their dependencies here.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/config"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/db"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/generator"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/ledger"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/lock"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/metrics"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/prompt"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/provision"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/selector"
	"github.com/Geeks5g-Dev-Team/GBP-AI-API/internal/storage"
)

// memoryLedgerCapacity bounds the in-process claim history used without a database.
const memoryLedgerCapacity = 10_000

// App holds the wired service and everything that must be closed on exit.
type App struct {
	Service *provision.Service
	Metrics *metrics.Metrics
	Pool    *pgxpool.Pool // nil without DATABASE_URL

	closers []func() error
}

// Build connects the configured backends and assembles the service. The
// caller must Close the returned App.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	var led ledger.Ledger = ledger.NewMemory(memoryLedgerCapacity)
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		a.Pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		led = ledger.NewRepository(pool)
	} else {
		log.Warn().Msg("DATABASE_URL is not set, claim history is kept in memory")
	}

	backend, err := storage.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("object storage init failed: %w", err)
	}
	if c, ok := backend.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	gen, err := generator.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("image generator init failed: %w", err)
	}

	locker, closeLock, err := lock.New(ctx, cfg, a.Pool, log)
	if err != nil {
		return nil, fmt.Errorf("claim lock init failed: %w", err)
	}
	a.closers = append(a.closers, closeLock)

	var tmpl string
	if cfg.PromptTemplateFile != "" {
		raw, err := os.ReadFile(cfg.PromptTemplateFile)
		if err != nil {
			return nil, fmt.Errorf("read prompt template: %w", err)
		}
		tmpl = string(raw)
	}
	builder, err := prompt.NewBuilder(tmpl)
	if err != nil {
		return nil, fmt.Errorf("prompt template: %w", err)
	}

	var profiles prompt.ProfileSource
	if cfg.ProfileSourceURL != "" {
		profiles = prompt.NewCachedProfiles(
			prompt.NewHTTPProfileSource(cfg.ProfileSourceURL, cfg.GeneratorTimeout),
			cfg.ProfileCacheTTL,
		)
	}
	var enhancer prompt.Enhancer
	if cfg.OpenAIAPIKey != "" {
		enhancer = prompt.NewOpenAIEnhancer(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.GeneratorTimeout)
	}

	sel := selector.New(backend, selector.Options{
		ClientRoot: cfg.ClientTierRoot,
		AIRoot:     cfg.AITierRoot,
		UsedMarker: cfg.UsedMarker,
	}, log)

	a.Service = provision.NewService(provision.Deps{
		Backend:   backend,
		Selector:  sel,
		Generator: gen,
		Prompts:   builder,
		Profiles:  profiles,
		Enhancer:  enhancer,
		Locker:    locker,
		Ledger:    led,
		Metrics:   a.Metrics,
	}, provision.Options{
		SearchMode:          cfg.SearchMode,
		MarkGeneratedAsUsed: cfg.MarkGeneratedAsUsed,
		UploadConcurrency:   cfg.UploadConcurrency,
	}, log)

	ok = true
	return a, nil
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
