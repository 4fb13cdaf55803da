// Package enrich recovers contact information for merged leads through an
// ordered set of fallback strategies. A strategy that fails contributes
// nothing and never aborts the chain; network-touching strategies open and
// close their own proxied browser session.
package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/harvest-cli/internal/model"
	"github.com/sells-group/harvest-cli/internal/proxy"
)

// Session is the minimal browser surface an enrichment strategy drives.
type Session interface {
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Close()
}

// SessionFactory opens a browser session bound to a proxy endpoint.
type SessionFactory func(ctx context.Context, ep proxy.Endpoint) (Session, error)

// Strategy is one independent method of recovering contact or social data.
// Applies gates the strategy on the record and on what earlier strategies
// already found; Run mutates the result in place and reports whether it
// contributed anything.
type Strategy interface {
	Name() string
	Applies(record model.LeadRecord, res *model.EnrichmentResult) bool
	Run(ctx context.Context, res *model.EnrichmentResult) (bool, error)
}

// Chain runs strategies in declaration order.
type Chain struct {
	strategies []Strategy
}

// NewChain creates a chain over the given strategies.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// NewDefaultChain wires the standard strategy order: website social scrape,
// contact-service lookup for discovered profiles, website email scrape as a
// last resort for contacts, and pure social-link normalization.
func NewDefaultChain(pool *proxy.Pool, sessions SessionFactory, contacts ContactService) *Chain {
	return NewChain(
		NewWebsiteSocialScrape(pool, sessions),
		NewContactLookup(contacts),
		NewWebsiteEmailScrape(pool, sessions),
		NewSocialLinkEnhancement(),
	)
}

// Enrich runs every applicable strategy against the record. The result
// lists the strategies that contributed, in execution order, along with
// the attempt count and elapsed time. It never returns an error: a fully
// failed chain still yields a usable (if empty) result.
func (c *Chain) Enrich(ctx context.Context, record model.LeadRecord) model.EnrichmentResult {
	log := zap.L().With(
		zap.String("lead", record.Name),
		zap.String("domain", record.Domain),
	)
	res := model.EnrichmentResult{Lead: record}
	start := time.Now()

	for _, s := range c.strategies {
		if !s.Applies(res.Lead, &res) {
			continue
		}
		res.Attempts++

		contributed, err := s.Run(ctx, &res)
		if err != nil {
			log.Warn("enrich: strategy failed",
				zap.String("strategy", s.Name()),
				zap.Error(err),
			)
			continue
		}
		if contributed {
			res.Strategies = append(res.Strategies, s.Name())
		}
	}

	res.Elapsed = time.Since(start)
	log.Debug("enrich: chain complete",
		zap.Strings("strategies", res.Strategies),
		zap.Int("attempts", res.Attempts),
		zap.Int("contacts", len(res.Contacts)),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res
}
