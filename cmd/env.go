package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/harvest-cli/internal/browser"
	"github.com/sells-group/harvest-cli/internal/config"
	"github.com/sells-group/harvest-cli/internal/enrich"
	"github.com/sells-group/harvest-cli/internal/harvest"
	"github.com/sells-group/harvest-cli/internal/pipeline"
	"github.com/sells-group/harvest-cli/internal/proxy"
	"github.com/sells-group/harvest-cli/internal/store"
	"github.com/sells-group/harvest-cli/pkg/contactly"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "harvest.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initPool() (*proxy.Pool, error) {
	endpoints, err := proxy.ParseEndpoints(cfg.Proxy.Endpoints)
	if err != nil {
		return nil, err
	}
	return proxy.NewPool(endpoints)
}

// browserOptions maps config timeouts onto session options.
func browserOptions(cfg *config.Config, ep proxy.Endpoint) browser.Options {
	return browser.Options{
		Endpoint:    ep,
		NavTimeout:  time.Duration(cfg.Browser.NavTimeoutSecs) * time.Second,
		WaitTimeout: time.Duration(cfg.Browser.WaitTimeoutSecs) * time.Second,
	}
}

// harvestEnv holds everything a pipeline run needs, so the harvest and
// serve commands share one construction path.
type harvestEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

func (e *harvestEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initPipeline(ctx context.Context) (*harvestEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	pool, err := initPool()
	if err != nil {
		st.Close()
		return nil, err
	}

	sources, err := harvest.LoadSources(cfg.Harvest.SourcesPath)
	if err != nil {
		st.Close()
		return nil, err
	}

	harvestSessions := func(ctx context.Context, ep proxy.Endpoint) (harvest.Session, error) {
		return browser.NewSession(ctx, browserOptions(cfg, ep))
	}

	var chain *enrich.Chain
	if cfg.Enrich.Enabled {
		enrichSessions := func(ctx context.Context, ep proxy.Endpoint) (enrich.Session, error) {
			return browser.NewSession(ctx, browserOptions(cfg, ep))
		}
		var contacts enrich.ContactService
		if cfg.Contactly.Key != "" {
			contacts = contactly.NewClient(cfg.Contactly.Key, contactly.WithBaseURL(cfg.Contactly.BaseURL))
		}
		chain = enrich.NewDefaultChain(pool, enrichSessions, contacts)
	}

	p := pipeline.New(cfg, st, pool, sources, harvestSessions, chain)
	return &harvestEnv{Store: st, Pipeline: p}, nil
}
