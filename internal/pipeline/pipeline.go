// Package pipeline runs the full harvest: every configured source is
// scraped through the shared proxy pool, results are merged across
// sources, optionally enriched, and persisted.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/harvest-cli/internal/config"
	"github.com/sells-group/harvest-cli/internal/dedupe"
	"github.com/sells-group/harvest-cli/internal/enrich"
	"github.com/sells-group/harvest-cli/internal/extract"
	"github.com/sells-group/harvest-cli/internal/harvest"
	"github.com/sells-group/harvest-cli/internal/model"
	"github.com/sells-group/harvest-cli/internal/proxy"
	"github.com/sells-group/harvest-cli/internal/store"
)

// Result is the outcome of one pipeline run.
type Result struct {
	RunID      string                   `json:"run_id,omitempty"`
	Stats      []model.ScrapeStats      `json:"stats"`
	Leads      []model.LeadRecord       `json:"leads"`
	Enriched   []model.EnrichmentResult `json:"enriched,omitempty"`
	Elapsed    time.Duration            `json:"elapsed"`
	SourcesOK  int                      `json:"sources_ok"`
	SourcesErr int                      `json:"sources_err"`
}

// Pipeline wires sources, the proxy pool, the enrichment chain, and the
// store together for one or more harvest runs.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	pool     *proxy.Pool
	sources  []harvest.Source
	sessions harvest.SessionFactory
	chain    *enrich.Chain
}

// New creates a Pipeline. The store may be nil (results are not persisted)
// and the chain may be nil (no enrichment).
func New(
	cfg *config.Config,
	st store.Store,
	pool *proxy.Pool,
	sources []harvest.Source,
	sessions harvest.SessionFactory,
	chain *enrich.Chain,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		pool:     pool,
		sources:  sources,
		sessions: sessions,
		chain:    chain,
	}
}

// Run harvests every configured source. A source that fails outright is
// counted and logged but does not abort the others; the merged leads of
// the sources that did succeed are still returned and persisted.
func (p *Pipeline) Run(ctx context.Context, only []string) (*Result, error) {
	sources, err := p.selectSources(only)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.Int("sources", len(sources)))
	log.Info("pipeline: starting harvest")
	start := time.Now()

	result := &Result{}
	if p.store != nil {
		names := make([]string, 0, len(sources))
		for _, src := range sources {
			names = append(names, src.Name)
		}
		run, runErr := p.store.CreateRun(ctx, names)
		if runErr != nil {
			return nil, eris.Wrap(runErr, "pipeline: create run")
		}
		result.RunID = run.ID
	}

	recordFailure := func(failErr error) {
		if p.store != nil && result.RunID != "" {
			if dbErr := p.store.FailRun(ctx, result.RunID, failErr.Error()); dbErr != nil {
				log.Warn("pipeline: record failure", zap.Error(dbErr))
			}
		}
	}

	var mu sync.Mutex
	// Indexed by source so the merge sees leads in configured source
	// order regardless of which source finishes first.
	perSource := make([][]model.LeadRecord, len(sources))

	limit := p.cfg.Harvest.MaxConcurrentSources
	if limit <= 0 {
		limit = 1
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, src := range sources {
		g.Go(func() error {
			orch := harvest.NewOrchestrator(src, p.pool, extract.NewDOM(), p.sessions).
				WithRequestDelay(p.cfg.Harvest.RequestDelay())

			leads, stats, runErr := orch.Run(gCtx)

			mu.Lock()
			defer mu.Unlock()
			result.Stats = append(result.Stats, stats)
			if runErr != nil {
				result.SourcesErr++
				log.Error("pipeline: source failed",
					zap.String("source", src.Name),
					zap.Error(runErr),
				)
				// A run-fatal source error only aborts everything when no
				// source can proceed at all.
				return nil
			}
			result.SourcesOK++
			perSource[i] = leads
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		recordFailure(err)
		return result, eris.Wrap(err, "pipeline: harvest interrupted")
	}
	if result.SourcesOK == 0 && len(sources) > 0 {
		err := eris.New("pipeline: every source failed")
		recordFailure(err)
		return result, err
	}

	var combined []model.LeadRecord
	for _, leads := range perSource {
		combined = append(combined, leads...)
	}
	result.Leads = dedupe.Merge(combined)

	if p.chain != nil {
		result.Enriched = p.enrichLeads(ctx, result.Leads)
	}

	result.Elapsed = time.Since(start)

	if p.store != nil {
		if _, err := p.store.UpsertLeads(ctx, result.Leads); err != nil {
			log.Warn("pipeline: persist leads", zap.Error(err))
		}
		if err := p.store.CompleteRun(ctx, result.RunID, result.Stats, len(result.Leads)); err != nil {
			log.Warn("pipeline: complete run", zap.Error(err))
		}
	}

	log.Info("pipeline: harvest complete",
		zap.Int("leads", len(result.Leads)),
		zap.Int("sources_ok", result.SourcesOK),
		zap.Int("sources_err", result.SourcesErr),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// enrichLeads runs the chain over the merged leads, newest first, up to
// the configured cap. Enrichment failures never fail the run.
func (p *Pipeline) enrichLeads(ctx context.Context, leads []model.LeadRecord) []model.EnrichmentResult {
	max := p.cfg.Enrich.MaxLeads
	if max <= 0 || max > len(leads) {
		max = len(leads)
	}

	results := make([]model.EnrichmentResult, 0, max)
	for _, lead := range leads[:max] {
		if ctx.Err() != nil {
			break
		}
		results = append(results, p.chain.Enrich(ctx, lead))
	}
	return results
}

// selectSources filters the configured sources down to the requested
// names. An empty filter selects everything.
func (p *Pipeline) selectSources(only []string) ([]harvest.Source, error) {
	if len(only) == 0 {
		if len(p.sources) == 0 {
			return nil, eris.New("pipeline: no sources configured")
		}
		return p.sources, nil
	}

	byName := make(map[string]harvest.Source, len(p.sources))
	for _, src := range p.sources {
		byName[src.Name] = src
	}

	selected := make([]harvest.Source, 0, len(only))
	for _, name := range only {
		src, ok := byName[name]
		if !ok {
			return nil, eris.Errorf("pipeline: unknown source %q", name)
		}
		selected = append(selected, src)
	}
	return selected, nil
}
