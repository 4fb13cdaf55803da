package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/harvest-cli/internal/extract"
	"github.com/sells-group/harvest-cli/internal/proxy"
)

// fakeSession serves canned pages keyed by URL.
type fakeSession struct {
	pages    map[string]string
	failNav  map[string]error
	failWait error
	current  string
	closed   bool
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	if err, ok := s.failNav[url]; ok {
		return err
	}
	if _, ok := s.pages[url]; !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED: %s", url)
	}
	s.current = url
	return nil
}

func (s *fakeSession) WaitVisible(_ context.Context, _ string) error { return s.failWait }

func (s *fakeSession) HTML(_ context.Context) (string, error) {
	html, ok := s.pages[s.current]
	if !ok {
		return "", errors.New("no page loaded")
	}
	return html, nil
}

func (s *fakeSession) URL() string { return s.current }
func (s *fakeSession) Close()      { s.closed = true }

func listingPage(links map[string]string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul class=\"projects\">")
	for name, url := range links {
		fmt.Fprintf(&b, `<li class="project"><a class="title" href="%s">%s</a></li>`, url, name)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func detailPage(name, website, category string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, `<h1 class="name">%s</h1>`, name)
	if website != "" {
		fmt.Fprintf(&b, `<a class="website" href="%s">site</a>`, website)
	}
	if category != "" {
		fmt.Fprintf(&b, `<span class="category">%s</span>`, category)
	}
	b.WriteString(strings.Repeat("<p>project description paragraph</p>", 30))
	b.WriteString("</body></html>")
	return b.String()
}

func testSource() Source {
	return Source{
		Name:           "launchwatch",
		RequireWebsite: true,
		SectionLimit:   defaultSectionLimit,
		MaxCandidates:  defaultMaxCandidates,
		Sections: []Section{
			{
				Name:         "upcoming",
				URL:          "https://lw.example/upcoming",
				WaitSelector: "ul.projects",
				List:         extract.ListSpec{ItemSelector: "li.project", LinkSelector: "a.title"},
			},
			{
				Name:         "active",
				URL:          "https://lw.example/active",
				WaitSelector: "ul.projects",
				List:         extract.ListSpec{ItemSelector: "li.project", LinkSelector: "a.title"},
			},
		},
		Fields: extract.Spec{
			"name":     {Selector: "h1.name"},
			"website":  {Selector: "a.website", Attr: "href"},
			"category": {Selector: "span.category"},
		},
	}
}

func newTestPool(t *testing.T) *proxy.Pool {
	t.Helper()
	pool, err := proxy.NewPool([]proxy.Endpoint{{ID: "ep-0", Host: "127.0.0.1", Port: 3128}})
	require.NoError(t, err)
	return pool
}

func newTestOrchestrator(src Source, pool *proxy.Pool, sess Session, sessErr error) *Orchestrator {
	factory := func(_ context.Context, _ proxy.Endpoint) (Session, error) {
		if sessErr != nil {
			return nil, sessErr
		}
		return sess, nil
	}
	return NewOrchestrator(src, pool, extract.NewDOM(), factory).
		WithRequestDelay(time.Millisecond)
}

func TestOrchestrator_Run_HappyPath(t *testing.T) {
	sess := &fakeSession{pages: map[string]string{
		"https://lw.example/upcoming": listingPage(map[string]string{
			"Alpha Chain": "https://lw.example/p/alpha",
		}),
		"https://lw.example/active": listingPage(map[string]string{
			"Beta Swap": "https://lw.example/p/beta",
		}),
		"https://lw.example/p/alpha": detailPage("Alpha Chain", "https://alpha.io", "DeFi"),
		"https://lw.example/p/beta":  detailPage("Beta Swap", "https://beta.fi", "DEX"),
	}}

	pool := newTestPool(t)
	o := newTestOrchestrator(testSource(), pool, sess, nil)
	records, stats, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "Alpha Chain", records[0].Name)
	assert.Equal(t, "alpha.io", records[0].Domain)
	assert.Equal(t, "DeFi", records[0].Category)
	assert.Equal(t, "launchwatch", records[0].Source)
	assert.Equal(t, "https://lw.example/p/alpha", records[0].DetailsURL)

	assert.Equal(t, 2, stats.Found)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 0, stats.Filtered)
	assert.Equal(t, 0, stats.Errors)
	assert.Positive(t, stats.Elapsed)

	assert.True(t, sess.closed, "session must be closed after the run")
	assert.True(t, pool.Stats()[0].Healthy)
}

func TestOrchestrator_Run_SectionFailureIsRecoverable(t *testing.T) {
	sess := &fakeSession{
		pages: map[string]string{
			"https://lw.example/active": listingPage(map[string]string{
				"Beta Swap": "https://lw.example/p/beta",
			}),
			"https://lw.example/p/beta": detailPage("Beta Swap", "https://beta.fi", "DEX"),
		},
		failNav: map[string]error{
			"https://lw.example/upcoming": errors.New("section markup changed"),
		},
	}

	o := newTestOrchestrator(testSource(), newTestPool(t), sess, nil)
	records, stats, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "Beta Swap", records[0].Name)
	assert.GreaterOrEqual(t, stats.Errors, 1)
}

func TestOrchestrator_Run_CandidateFailureIsRecoverable(t *testing.T) {
	sess := &fakeSession{pages: map[string]string{
		"https://lw.example/upcoming": listingPage(map[string]string{
			"Alpha Chain": "https://lw.example/p/alpha",
			"Dead Link":   "https://lw.example/p/gone",
		}),
		"https://lw.example/active":  listingPage(nil),
		"https://lw.example/p/alpha": detailPage("Alpha Chain", "https://alpha.io", "DeFi"),
	}}
	sess.failNav = map[string]error{
		"https://lw.example/p/gone": errors.New("detail page 404"),
	}

	o := newTestOrchestrator(testSource(), newTestPool(t), sess, nil)
	records, stats, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Errors)
}

func TestOrchestrator_Run_ValidationAndDenyFilter(t *testing.T) {
	sess := &fakeSession{pages: map[string]string{
		"https://lw.example/upcoming": listingPage(map[string]string{
			"Alpha Chain":  "https://lw.example/p/alpha",
			"No Site":      "https://lw.example/p/nosite",
			"Moon Casino":  "https://lw.example/p/casino",
		}),
		"https://lw.example/active":   listingPage(nil),
		"https://lw.example/p/alpha":  detailPage("Alpha Chain", "https://alpha.io", "DeFi"),
		"https://lw.example/p/nosite": detailPage("No Site", "", "DeFi"),
		"https://lw.example/p/casino": detailPage("Moon Casino", "https://mooncasino.io", "Gambling"),
	}}

	o := newTestOrchestrator(testSource(), newTestPool(t), sess, nil)
	records, stats, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "Alpha Chain", records[0].Name)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 2, stats.Filtered)
}

func TestOrchestrator_Run_BlockedDetailPageCountsAsError(t *testing.T) {
	blocked := "<html><body>" + strings.Repeat(" ", 600) + "Checking your browser</body></html>"
	sess := &fakeSession{pages: map[string]string{
		"https://lw.example/upcoming": listingPage(map[string]string{
			"Alpha Chain": "https://lw.example/p/alpha",
		}),
		"https://lw.example/active":  listingPage(nil),
		"https://lw.example/p/alpha": blocked,
	}}

	o := newTestOrchestrator(testSource(), newTestPool(t), sess, nil)
	records, stats, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, records)
	assert.Equal(t, 1, stats.Errors)
}

func TestOrchestrator_Run_CapsCandidates(t *testing.T) {
	links := make(map[string]string)
	pages := make(map[string]string)
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("Proj %02d", i)
		url := fmt.Sprintf("https://lw.example/p/%02d", i)
		links[name] = url
		pages[url] = detailPage(name, fmt.Sprintf("https://proj%02d.io", i), "DeFi")
	}
	pages["https://lw.example/upcoming"] = listingPage(links)
	pages["https://lw.example/active"] = listingPage(nil)

	src := testSource()
	src.MaxCandidates = 3
	o := newTestOrchestrator(src, newTestPool(t), &fakeSession{pages: pages}, nil)

	records, stats, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, 10, stats.Found)
	assert.Equal(t, 3, stats.Processed)
}

func TestOrchestrator_Run_DeduplicatesCandidateURLs(t *testing.T) {
	shared := listingPage(map[string]string{"Alpha Chain": "https://lw.example/p/alpha"})
	sess := &fakeSession{pages: map[string]string{
		"https://lw.example/upcoming": shared,
		"https://lw.example/active":   shared,
		"https://lw.example/p/alpha":  detailPage("Alpha Chain", "https://alpha.io", "DeFi"),
	}}

	o := newTestOrchestrator(testSource(), newTestPool(t), sess, nil)
	records, stats, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, records, 1, "same detail URL discovered twice is fetched once")
	assert.Equal(t, 2, stats.Found)
	assert.Equal(t, 1, stats.Processed)
}

func TestOrchestrator_Run_SessionOpenFailureIsFatal(t *testing.T) {
	pool := newTestPool(t)
	o := newTestOrchestrator(testSource(), pool, nil, errors.New("chrome exited immediately"))

	records, _, err := o.Run(context.Background())
	assert.Error(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 1, pool.Stats()[0].Errors, "session failure is reported against the lease")
}
