package enrich

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/harvest-cli/internal/model"
	"github.com/sells-group/harvest-cli/internal/proxy"
)

// socialHosts maps link hostnames to platform names.
var socialHosts = map[string]string{
	"twitter.com":  "twitter",
	"x.com":        "twitter",
	"t.me":         "telegram",
	"telegram.me":  "telegram",
	"discord.gg":   "discord",
	"discord.com":  "discord",
	"github.com":   "github",
	"medium.com":   "medium",
	"youtube.com":  "youtube",
	"youtu.be":     "youtube",
	"linkedin.com": "linkedin",
}

// classifySocialURL identifies the platform of a link, if it is a known
// social platform.
func classifySocialURL(href string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	platform, ok := socialHosts[host]
	return platform, ok
}

// isPersonalLinkedIn reports whether a LinkedIn URL points at an
// individual profile (/in/...) rather than a company page (/company/...).
func isPersonalLinkedIn(href string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, "/in/") || strings.HasPrefix(u.Path, "/pub/")
}

// extractSocialLinks scans every anchor in the document, including team
// and about sections, and returns the social links by platform plus any
// individual LinkedIn profiles. The first link per platform wins.
func extractSocialLinks(html string) (map[string]string, []model.TeamProfile, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, eris.Wrap(err, "enrich: parse website html")
	}

	socials := make(map[string]string)
	var team []model.TeamProfile
	seenProfiles := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		platform, ok := classifySocialURL(href)
		if !ok {
			return
		}

		if platform == "linkedin" && isPersonalLinkedIn(href) {
			if seenProfiles[href] {
				return
			}
			seenProfiles[href] = true
			name := strings.TrimSpace(a.Text())
			if name == "" {
				name, _ = a.Attr("title")
				name = strings.TrimSpace(name)
			}
			team = append(team, model.TeamProfile{Name: name, ProfileURL: href})
			return
		}

		if _, exists := socials[platform]; !exists {
			socials[platform] = strings.TrimSpace(href)
		}
	})

	return socials, team, nil
}

// WebsiteSocialScrape opens the lead's website in its own proxied session
// and harvests social-platform links and team LinkedIn profiles.
type WebsiteSocialScrape struct {
	pool     *proxy.Pool
	sessions SessionFactory
}

// NewWebsiteSocialScrape creates the website social-scrape strategy.
func NewWebsiteSocialScrape(pool *proxy.Pool, sessions SessionFactory) *WebsiteSocialScrape {
	return &WebsiteSocialScrape{pool: pool, sessions: sessions}
}

func (s *WebsiteSocialScrape) Name() string { return "website_social_scrape" }

// Applies requires a website to visit.
func (s *WebsiteSocialScrape) Applies(record model.LeadRecord, _ *model.EnrichmentResult) bool {
	return record.Website != ""
}

// Run visits the website and augments the lead's social map and the team
// profile list. Links the detail page already provided are not replaced.
func (s *WebsiteSocialScrape) Run(ctx context.Context, res *model.EnrichmentResult) (bool, error) {
	lease := s.pool.Lease()
	sess, err := s.sessions(ctx, lease.Endpoint)
	if err != nil {
		s.pool.ReportFailure(lease.Index, err)
		return false, eris.Wrap(err, "website social scrape: open session")
	}
	defer sess.Close()

	start := time.Now()
	if err := sess.Navigate(ctx, res.Lead.Website); err != nil {
		s.pool.ReportFailure(lease.Index, err)
		return false, err
	}
	html, err := sess.HTML(ctx)
	if err != nil {
		s.pool.ReportFailure(lease.Index, err)
		return false, err
	}
	s.pool.ReportSuccess(lease.Index, time.Since(start))

	socials, team, err := extractSocialLinks(html)
	if err != nil {
		return false, err
	}

	for platform, link := range socials {
		if res.Lead.Socials == nil {
			res.Lead.Socials = make(map[string]string)
		}
		if _, exists := res.Lead.Socials[platform]; !exists {
			res.Lead.Socials[platform] = link
		}
	}
	res.Team = append(res.Team, team...)

	return len(socials) > 0 || len(team) > 0, nil
}
