package enrich

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/harvest-cli/internal/model"
	"github.com/sells-group/harvest-cli/internal/proxy"
)

// contactPaths are the likely contact pages scanned after the main page.
var contactPaths = []string{"/contact", "/contact-us", "/about", "/team", "/support"}

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// placeholderDomains are addresses that appear in templates and markup,
// never real inboxes.
var placeholderDomains = map[string]bool{
	"example.com":    true,
	"example.org":    true,
	"domain.com":     true,
	"yourdomain.com": true,
	"email.com":      true,
	"yoursite.com":   true,
	"sentry.io":      true,
}

// imageSuffixes catch filename false positives like logo@2x.png.
var imageSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

// extractEmails pulls email-shaped text out of HTML, lowercased and
// deduplicated in first-seen order, excluding placeholders and filename
// false positives.
func extractEmails(html string) []string {
	matches := emailPattern.FindAllString(html, -1)
	seen := make(map[string]bool, len(matches))
	var out []string

	for _, m := range matches {
		addr := strings.ToLower(strings.Trim(m, "."))
		if seen[addr] || !usableEmail(addr) {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return out
}

func usableEmail(addr string) bool {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return false
	}
	domain := addr[at+1:]
	if placeholderDomains[domain] {
		return false
	}
	for _, suffix := range imageSuffixes {
		if strings.HasSuffix(addr, suffix) {
			return false
		}
	}
	return true
}

// WebsiteEmailScrape scans the lead's site for email addresses: the main
// page first, then a fixed list of likely contact pages. It only runs when
// no earlier strategy produced a contact.
type WebsiteEmailScrape struct {
	pool     *proxy.Pool
	sessions SessionFactory
}

// NewWebsiteEmailScrape creates the email-scrape strategy.
func NewWebsiteEmailScrape(pool *proxy.Pool, sessions SessionFactory) *WebsiteEmailScrape {
	return &WebsiteEmailScrape{pool: pool, sessions: sessions}
}

func (s *WebsiteEmailScrape) Name() string { return "website_email_scrape" }

// Applies requires a website and no contacts found so far.
func (s *WebsiteEmailScrape) Applies(record model.LeadRecord, res *model.EnrichmentResult) bool {
	return record.Website != "" && len(res.Contacts) == 0
}

// Run opens its own session and walks the candidate pages. A page that
// fails to load is skipped; emails are deduplicated across pages.
func (s *WebsiteEmailScrape) Run(ctx context.Context, res *model.EnrichmentResult) (bool, error) {
	base, err := url.Parse(res.Lead.Website)
	if err != nil {
		return false, eris.Wrapf(err, "email scrape: parse website %s", res.Lead.Website)
	}

	lease := s.pool.Lease()
	sess, err := s.sessions(ctx, lease.Endpoint)
	if err != nil {
		s.pool.ReportFailure(lease.Index, err)
		return false, eris.Wrap(err, "email scrape: open session")
	}
	defer sess.Close()

	pages := make([]string, 0, len(contactPaths)+1)
	pages = append(pages, res.Lead.Website)
	for _, p := range contactPaths {
		ref := *base
		ref.Path = p
		ref.RawQuery = ""
		pages = append(pages, ref.String())
	}

	start := time.Now()
	seen := make(map[string]bool)
	var emails []string
	loaded := 0

	for _, pageURL := range pages {
		if ctx.Err() != nil {
			break
		}
		if err := sess.Navigate(ctx, pageURL); err != nil {
			zap.L().Debug("enrich: email page skipped",
				zap.String("url", pageURL),
				zap.Error(err),
			)
			continue
		}
		html, err := sess.HTML(ctx)
		if err != nil {
			continue
		}
		loaded++
		for _, addr := range extractEmails(html) {
			if !seen[addr] {
				seen[addr] = true
				emails = append(emails, addr)
			}
		}
	}

	if loaded == 0 {
		s.pool.ReportFailure(lease.Index, eris.Errorf("email scrape: no page loaded for %s", res.Lead.Website))
		return false, eris.Errorf("email scrape: site unreachable: %s", res.Lead.Website)
	}
	s.pool.ReportSuccess(lease.Index, time.Since(start))

	if len(emails) == 0 {
		return false, nil
	}
	res.Contacts = append(res.Contacts, model.Contact{
		Emails:   emails,
		Strategy: s.Name(),
	})
	return true, nil
}
