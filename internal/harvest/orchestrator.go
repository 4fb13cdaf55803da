// Package harvest drives one listing site through discovery, detail fetch,
// and validation. Failures are contained at the narrowest scope that makes
// sense: a bad candidate skips one record, a bad section skips one listing
// page, and only a session that cannot be opened at all fails the run.
package harvest

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/harvest-cli/internal/dedupe"
	"github.com/sells-group/harvest-cli/internal/extract"
	"github.com/sells-group/harvest-cli/internal/model"
	"github.com/sells-group/harvest-cli/internal/proxy"
	"github.com/sells-group/harvest-cli/internal/resilience"
)

const defaultRequestDelay = 2 * time.Second

// Session is the browser surface the orchestrator drives. One orchestrator
// run uses exactly one session, opened against its proxy lease.
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, sel string) error
	HTML(ctx context.Context) (string, error)
	URL() string
	Close()
}

// SessionFactory opens a browser session bound to a proxy endpoint.
type SessionFactory func(ctx context.Context, ep proxy.Endpoint) (Session, error)

// Orchestrator scrapes one source. Instances are independent; several may
// run concurrently as long as each has its own session, sharing only the
// proxy pool.
type Orchestrator struct {
	src       Source
	pool      *proxy.Pool
	extractor extract.Extractor
	sessions  SessionFactory
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
}

// NewOrchestrator wires an orchestrator for one source.
func NewOrchestrator(src Source, pool *proxy.Pool, ex extract.Extractor, sessions SessionFactory) *Orchestrator {
	return &Orchestrator{
		src:       src,
		pool:      pool,
		extractor: ex,
		sessions:  sessions,
		limiter:   rate.NewLimiter(rate.Every(defaultRequestDelay), 1),
		retry:     resilience.DefaultRetryConfig(),
	}
}

// WithRequestDelay overrides the politeness delay between navigations.
func (o *Orchestrator) WithRequestDelay(d time.Duration) *Orchestrator {
	if d > 0 {
		o.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
	return o
}

// staticPage hands already-captured HTML to the extractor so a detail page
// is only serialized out of the browser once.
type staticPage struct {
	html string
	url  string
}

func (p staticPage) HTML(_ context.Context) (string, error) { return p.html, nil }
func (p staticPage) URL() string                            { return p.url }

// Run executes the full scrape for the source: lease a proxy, open one
// session, walk every section, fetch every surviving candidate's detail
// page, and return the validated records with run stats. Section and
// candidate failures are logged and counted, never fatal; the session is
// closed on every exit path.
func (o *Orchestrator) Run(ctx context.Context) ([]model.LeadRecord, model.ScrapeStats, error) {
	log := zap.L().With(zap.String("source", o.src.Name))
	stats := model.ScrapeStats{Source: o.src.Name}
	start := time.Now()

	lease := o.pool.Lease()
	sess, err := o.sessions(ctx, lease.Endpoint)
	if err != nil {
		o.pool.ReportFailure(lease.Index, err)
		return nil, stats, eris.Wrapf(err, "harvest: open session for %s", o.src.Name)
	}
	defer sess.Close()

	candidates := o.discover(ctx, log, sess, &stats)
	records := o.fetchDetails(ctx, log, sess, candidates, &stats)

	stats.Elapsed = time.Since(start)
	o.pool.ReportSuccess(lease.Index, stats.Elapsed)

	log.Info("harvest: run complete",
		zap.Int("found", stats.Found),
		zap.Int("processed", stats.Processed),
		zap.Int("filtered", stats.Filtered),
		zap.Int("errors", stats.Errors),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return records, stats, nil
}

// discover walks every configured section and collects candidates. The
// result is deduplicated by URL in arrival order and capped at the
// per-source limit.
func (o *Orchestrator) discover(ctx context.Context, log *zap.Logger, sess Session, stats *model.ScrapeStats) []extract.Candidate {
	var all []extract.Candidate

	for _, section := range o.src.Sections {
		if err := o.limiter.Wait(ctx); err != nil {
			break
		}

		cands, err := o.discoverSection(ctx, sess, section)
		if err != nil {
			stats.Errors++
			log.Warn("harvest: section discovery failed",
				zap.String("section", section.Name),
				zap.Error(err),
			)
			continue
		}

		stats.Found += len(cands)
		all = append(all, cands...)
		log.Debug("harvest: section discovered",
			zap.String("section", section.Name),
			zap.Int("candidates", len(cands)),
		)
	}

	seen := make(map[string]bool, len(all))
	uniq := all[:0]
	for _, c := range all {
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		uniq = append(uniq, c)
	}
	if len(uniq) > o.src.MaxCandidates {
		uniq = uniq[:o.src.MaxCandidates]
	}
	return uniq
}

func (o *Orchestrator) discoverSection(ctx context.Context, sess Session, section Section) ([]extract.Candidate, error) {
	err := resilience.Do(ctx, o.retry, "discover "+section.Name, func(ctx context.Context) error {
		return sess.Navigate(ctx, section.URL)
	})
	if err != nil {
		return nil, err
	}

	if section.WaitSelector != "" {
		if err := sess.WaitVisible(ctx, section.WaitSelector); err != nil {
			return nil, err
		}
	}

	return o.extractor.Candidates(ctx, sess, section.List, o.src.SectionLimit)
}

// fetchDetails visits each candidate's detail page sequentially, building
// and validating a record per candidate. One candidate's failure never
// aborts the loop.
func (o *Orchestrator) fetchDetails(ctx context.Context, log *zap.Logger, sess Session, candidates []extract.Candidate, stats *model.ScrapeStats) []model.LeadRecord {
	denyList := o.src.denyList()
	var records []model.LeadRecord

	for _, cand := range candidates {
		if err := o.limiter.Wait(ctx); err != nil {
			break
		}

		record, err := o.fetchOne(ctx, sess, cand)
		if err != nil {
			stats.Errors++
			log.Warn("harvest: candidate failed",
				zap.String("name", cand.Name),
				zap.String("url", cand.URL),
				zap.Error(err),
			)
			continue
		}

		if err := validate(record, o.src); err != nil {
			stats.Filtered++
			log.Debug("harvest: candidate rejected",
				zap.String("name", cand.Name),
				zap.Error(err),
			)
			continue
		}
		if kw, denied := deniedKeyword(record, denyList); denied {
			stats.Filtered++
			log.Debug("harvest: candidate denied",
				zap.String("name", cand.Name),
				zap.String("keyword", kw),
			)
			continue
		}

		stats.Processed++
		records = append(records, record)
	}
	return records
}

func (o *Orchestrator) fetchOne(ctx context.Context, sess Session, cand extract.Candidate) (model.LeadRecord, error) {
	var zero model.LeadRecord

	err := resilience.Do(ctx, o.retry, "detail "+cand.URL, func(ctx context.Context) error {
		return sess.Navigate(ctx, cand.URL)
	})
	if err != nil {
		return zero, err
	}

	html, err := sess.HTML(ctx)
	if err != nil {
		return zero, err
	}
	if looksBlocked(html) {
		return zero, eris.Errorf("detail page blocked: %s", cand.URL)
	}

	fields, err := o.extractor.Extract(ctx, staticPage{html: html, url: cand.URL}, o.src.Fields)
	if err != nil {
		return zero, err
	}

	return o.buildRecord(cand, fields), nil
}

// buildRecord assembles a LeadRecord from extracted fields, applying the
// normalization heuristics. The candidate's listing name backstops a
// missing name field.
func (o *Orchestrator) buildRecord(cand extract.Candidate, fields map[string]string) model.LeadRecord {
	r := model.LeadRecord{
		Name:       cand.Name,
		Source:     o.src.Name,
		DetailsURL: cand.URL,
		SaleType:   parseSaleType(fields["sale_type"]),
	}
	if name, ok := fields["name"]; ok {
		r.Name = name
	}
	if website, ok := fields["website"]; ok {
		r.Website = website
		r.Domain = dedupe.CanonicalDomain(website)
	}
	r.Category = cleanCategory(fields["category"])
	r.LaunchDate = normalizeLaunchDate(fields["launch_date"])
	r.Raised = normalizeRaised(fields["raised"])

	for field, val := range fields {
		if platform, ok := strings.CutPrefix(field, "social_"); ok {
			if r.Socials == nil {
				r.Socials = make(map[string]string)
			}
			r.Socials[platform] = val
		}
	}
	return r
}
