package enrich

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/sells-group/harvest-cli/internal/model"
)

// normalizeSocial derives a {platform, handle, url} triple from a raw
// social URL. The handle is the first meaningful path segment with any
// "@" prefix stripped; URLs with no usable path yield false.
func normalizeSocial(platform, rawURL string) (model.SocialHandle, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return model.SocialHandle{}, false
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		return model.SocialHandle{}, false
	}
	segments := strings.Split(path, "/")

	handle := segments[0]
	// LinkedIn and YouTube nest the handle one level down
	// (/company/acme, /channel/UC...).
	if len(segments) > 1 {
		switch segments[0] {
		case "company", "channel", "c", "user", "in":
			handle = segments[1]
		}
	}
	handle = strings.TrimPrefix(handle, "@")
	if handle == "" {
		return model.SocialHandle{}, false
	}

	return model.SocialHandle{
		Platform: platform,
		Handle:   handle,
		URL:      strings.TrimSpace(rawURL),
	}, true
}

// SocialLinkEnhancement normalizes whatever raw social URLs the record
// carries into handle triples. Purely derivational: no network access.
type SocialLinkEnhancement struct{}

// NewSocialLinkEnhancement creates the normalization strategy.
func NewSocialLinkEnhancement() *SocialLinkEnhancement {
	return &SocialLinkEnhancement{}
}

func (s *SocialLinkEnhancement) Name() string { return "social_link_enhancement" }

// Applies requires at least one raw social URL, whether it came from the
// listing or from an earlier strategy.
func (s *SocialLinkEnhancement) Applies(_ model.LeadRecord, res *model.EnrichmentResult) bool {
	return res.Lead.HasSocial()
}

// Run converts the record's social map into normalized handles, in stable
// platform order.
func (s *SocialLinkEnhancement) Run(_ context.Context, res *model.EnrichmentResult) (bool, error) {
	platforms := make([]string, 0, len(res.Lead.Socials))
	for p := range res.Lead.Socials {
		platforms = append(platforms, p)
	}
	// map order is random; keep output deterministic
	sort.Strings(platforms)

	found := 0
	for _, platform := range platforms {
		if h, ok := normalizeSocial(platform, res.Lead.Socials[platform]); ok {
			res.Handles = append(res.Handles, h)
			found++
		}
	}
	return found > 0, nil
}
