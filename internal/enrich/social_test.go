package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/harvest-cli/internal/model"
)

func TestClassifySocialURL(t *testing.T) {
	tests := []struct {
		href     string
		platform string
		ok       bool
	}{
		{"https://twitter.com/acme", "twitter", true},
		{"https://x.com/acme", "twitter", true},
		{"https://www.twitter.com/acme", "twitter", true},
		{"https://t.me/acme", "telegram", true},
		{"https://discord.gg/abc123", "discord", true},
		{"https://github.com/acme/repo", "github", true},
		{"https://youtu.be/dQw4w9WgXcQ", "youtube", true},
		{"https://www.linkedin.com/company/acme", "linkedin", true},
		{"https://acme.io/about", "", false},
		{"/relative/path", "", false},
		{"mailto:hello@acme.io", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			platform, ok := classifySocialURL(tt.href)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.platform, platform)
		})
	}
}

func TestIsPersonalLinkedIn(t *testing.T) {
	assert.True(t, isPersonalLinkedIn("https://www.linkedin.com/in/ada-lovelace"))
	assert.True(t, isPersonalLinkedIn("https://linkedin.com/pub/charles-babbage/1/2/3"))
	assert.False(t, isPersonalLinkedIn("https://www.linkedin.com/company/acme"))
	assert.False(t, isPersonalLinkedIn("https://www.linkedin.com/school/mit"))
}

func TestExtractSocialLinks(t *testing.T) {
	socials, team, err := extractSocialLinks(teamPageHTML)
	require.NoError(t, err)

	assert.Equal(t, "https://twitter.com/alphachain", socials["twitter"])
	assert.Equal(t, "https://t.me/alphachain", socials["telegram"])
	assert.Equal(t, "https://www.linkedin.com/company/alphachain", socials["linkedin"])

	require.Len(t, team, 2)
	assert.Equal(t, "Ada Lovelace", team[0].Name)
	assert.Equal(t, "https://www.linkedin.com/in/ada-lovelace", team[0].ProfileURL)
	assert.Equal(t, "Charles Babbage", team[1].Name, "title attribute fallback")
}

func TestExtractSocialLinks_FirstLinkPerPlatformWins(t *testing.T) {
	html := `<html><body>
	  <a href="https://twitter.com/primary">Twitter</a>
	  <a href="https://x.com/secondary">X</a>
	  <a href="https://www.linkedin.com/in/ada-lovelace">Ada Lovelace</a>
	  <a href="https://www.linkedin.com/in/ada-lovelace">Ada again</a>
	</body></html>`

	socials, team, err := extractSocialLinks(html)
	require.NoError(t, err)
	assert.Equal(t, "https://twitter.com/primary", socials["twitter"])
	assert.Len(t, team, 1, "repeated profile URL deduplicated")
}

func TestWebsiteSocialScrape_Run(t *testing.T) {
	pool := newEnrichPool(t)
	sess := &fakeSession{pages: map[string]string{"https://alpha.io": teamPageHTML}}
	strategy := NewWebsiteSocialScrape(pool, sessionFactory(sess, nil))

	res := &model.EnrichmentResult{Lead: model.LeadRecord{
		Name:    "Alpha",
		Website: "https://alpha.io",
		Socials: map[string]string{"twitter": "https://twitter.com/from-listing"},
	}}

	contributed, err := strategy.Run(context.Background(), res)
	require.NoError(t, err)
	assert.True(t, contributed)

	assert.Equal(t, "https://twitter.com/from-listing", res.Lead.Socials["twitter"],
		"links already on the record are not replaced")
	assert.Equal(t, "https://t.me/alphachain", res.Lead.Socials["telegram"])
	assert.Len(t, res.Team, 2)
	assert.True(t, sess.closed)
}

func TestWebsiteSocialScrape_Run_SessionFailure(t *testing.T) {
	pool := newEnrichPool(t)
	strategy := NewWebsiteSocialScrape(pool, sessionFactory(nil, errors.New("chrome did not start")))

	res := &model.EnrichmentResult{Lead: model.LeadRecord{Name: "Alpha", Website: "https://alpha.io"}}
	contributed, err := strategy.Run(context.Background(), res)

	assert.Error(t, err)
	assert.False(t, contributed)
	require.Len(t, pool.Stats(), 1)
	assert.Equal(t, 1, pool.Stats()[0].Errors, "session failure reported to the pool")
}

func TestWebsiteSocialScrape_Run_NavigateFailure(t *testing.T) {
	pool := newEnrichPool(t)
	sess := &fakeSession{pages: map[string]string{}} // every URL fails
	strategy := NewWebsiteSocialScrape(pool, sessionFactory(sess, nil))

	res := &model.EnrichmentResult{Lead: model.LeadRecord{Name: "Alpha", Website: "https://alpha.io"}}
	contributed, err := strategy.Run(context.Background(), res)

	assert.Error(t, err)
	assert.False(t, contributed)
	assert.True(t, sess.closed, "session closed even on failure")
	assert.Equal(t, 1, pool.Stats()[0].Errors)
}
