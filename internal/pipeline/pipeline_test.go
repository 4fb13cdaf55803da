package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/harvest-cli/internal/config"
	"github.com/sells-group/harvest-cli/internal/enrich"
	"github.com/sells-group/harvest-cli/internal/extract"
	"github.com/sells-group/harvest-cli/internal/harvest"
	"github.com/sells-group/harvest-cli/internal/model"
	"github.com/sells-group/harvest-cli/internal/proxy"
	"github.com/sells-group/harvest-cli/internal/store"
)

// fakeSession serves canned pages; one instance per factory call.
type fakeSession struct {
	pages map[string]string
	url   string
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	if _, ok := s.pages[url]; !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED: %s", url)
	}
	s.url = url
	return nil
}

func (s *fakeSession) WaitVisible(_ context.Context, _ string) error { return nil }

func (s *fakeSession) HTML(_ context.Context) (string, error) {
	return s.pages[s.url], nil
}

func (s *fakeSession) URL() string { return s.url }
func (s *fakeSession) Close()      {}

// memStore records store calls in memory.
type memStore struct {
	runs      map[string]*model.HarvestRun
	upserted  []model.LeadRecord
	failCalls int
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]*model.HarvestRun)}
}

func (m *memStore) CreateRun(_ context.Context, sources []string) (*model.HarvestRun, error) {
	run := &model.HarvestRun{ID: fmt.Sprintf("run-%d", len(m.runs)+1), Status: model.HarvestRunStatusRunning, Sources: sources}
	m.runs[run.ID] = run
	return run, nil
}

func (m *memStore) CompleteRun(_ context.Context, runID string, stats []model.ScrapeStats, leadCount int) error {
	run, ok := m.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	run.Status = model.HarvestRunStatusComplete
	run.Stats = stats
	run.Leads = leadCount
	return nil
}

func (m *memStore) FailRun(_ context.Context, runID string, runErr string) error {
	m.failCalls++
	run, ok := m.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	run.Status = model.HarvestRunStatusFailed
	run.Error = runErr
	return nil
}

func (m *memStore) GetRun(_ context.Context, runID string) (*model.HarvestRun, error) {
	run, ok := m.runs[runID]
	if !ok {
		return nil, errors.New("run not found")
	}
	return run, nil
}

func (m *memStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.HarvestRun, error) {
	var runs []model.HarvestRun
	for _, r := range m.runs {
		runs = append(runs, *r)
	}
	return runs, nil
}

func (m *memStore) UpsertLeads(_ context.Context, leads []model.LeadRecord) (int, error) {
	m.upserted = append(m.upserted, leads...)
	return len(leads), nil
}

func (m *memStore) ListLeads(_ context.Context, _ store.LeadFilter) ([]model.LeadRecord, error) {
	return m.upserted, nil
}

func (m *memStore) Migrate(_ context.Context) error { return nil }
func (m *memStore) Close() error                    { return nil }

func listingPage(links map[string]string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul class=\"projects\">")
	for name, url := range links {
		fmt.Fprintf(&b, `<li class="project"><a class="title" href="%s">%s</a></li>`, url, name)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func detailPage(name, website string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, `<h1 class="name">%s</h1>`, name)
	fmt.Fprintf(&b, `<a class="website" href="%s">site</a>`, website)
	fmt.Fprintf(&b, `<a class="twitter" href="https://twitter.com/%s">tw</a>`, name)
	b.WriteString(strings.Repeat("<p>project description paragraph</p>", 30))
	b.WriteString("</body></html>")
	return b.String()
}

func testSource(name, base string) harvest.Source {
	return harvest.Source{
		Name:           name,
		RequireWebsite: true,
		SectionLimit:   30,
		MaxCandidates:  60,
		Sections: []harvest.Section{
			{
				Name:         "upcoming",
				URL:          base + "/upcoming",
				WaitSelector: "ul.projects",
				List:         extract.ListSpec{ItemSelector: "li.project", LinkSelector: "a.title"},
			},
		},
		Fields: extract.Spec{
			"name":           {Selector: "h1.name"},
			"website":        {Selector: "a.website", Attr: "href"},
			"social_twitter": {Selector: "a.twitter", Attr: "href"},
		},
	}
}

// sourcePages builds one listing plus detail pages for the given leads.
func sourcePages(base string, leads map[string]string) map[string]string {
	pages := make(map[string]string)
	links := make(map[string]string)
	for name, website := range leads {
		detailURL := base + "/project/" + name
		links[name] = detailURL
		pages[detailURL] = detailPage(name, website)
	}
	pages[base+"/upcoming"] = listingPage(links)
	return pages
}

func testConfig() *config.Config {
	return &config.Config{
		Harvest: config.HarvestConfig{
			RequestDelayMillis:   1,
			MaxConcurrentSources: 1,
		},
		Enrich: config.EnrichConfig{MaxLeads: 25},
	}
}

func newTestPool(t *testing.T) *proxy.Pool {
	t.Helper()
	pool, err := proxy.NewPool([]proxy.Endpoint{{ID: "ep-0", Host: "127.0.0.1", Port: 3128}})
	require.NoError(t, err)
	return pool
}

func pagesFactory(pages map[string]string) harvest.SessionFactory {
	return func(_ context.Context, _ proxy.Endpoint) (harvest.Session, error) {
		return &fakeSession{pages: pages}, nil
	}
}

func TestPipeline_Run_MergesAcrossSources(t *testing.T) {
	pages := map[string]string{}
	for url, html := range sourcePages("https://lw.example", map[string]string{
		"alpha": "https://alpha.io",
		"beta":  "https://beta.xyz",
	}) {
		pages[url] = html
	}
	for url, html := range sourcePages("https://radar.example", map[string]string{
		"alphabis": "https://www.alpha.io/home", // same canonical domain as alpha
		"gamma":    "https://gamma.fi",
	}) {
		pages[url] = html
	}

	st := newMemStore()
	p := New(testConfig(), st, newTestPool(t),
		[]harvest.Source{
			testSource("launchwatch", "https://lw.example"),
			testSource("icoradar", "https://radar.example"),
		},
		pagesFactory(pages), nil)

	res, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.SourcesOK)
	assert.Zero(t, res.SourcesErr)
	require.Len(t, res.Stats, 2)
	assert.Len(t, res.Leads, 3, "alpha.io deduplicated across sources")

	bySource := map[string]int{}
	for _, lead := range res.Leads {
		bySource[lead.Source]++
	}
	assert.Equal(t, 2, bySource["launchwatch"], "first source wins the shared domain")
	assert.Equal(t, 1, bySource["icoradar"])

	// Persisted
	assert.Len(t, st.upserted, 3)
	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.HarvestRunStatusComplete, run.Status)
	assert.Equal(t, 3, run.Leads)
}

func TestPipeline_Run_SourceFailureDoesNotAbortOthers(t *testing.T) {
	pages := sourcePages("https://lw.example", map[string]string{"alpha": "https://alpha.io"})

	calls := 0
	factory := func(_ context.Context, _ proxy.Endpoint) (harvest.Session, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("chrome did not start")
		}
		return &fakeSession{pages: pages}, nil
	}

	st := newMemStore()
	p := New(testConfig(), st, newTestPool(t),
		[]harvest.Source{
			testSource("icoradar", "https://radar.example"), // session fails
			testSource("launchwatch", "https://lw.example"),
		},
		factory, nil)

	res, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.SourcesOK)
	assert.Equal(t, 1, res.SourcesErr)
	assert.Len(t, res.Leads, 1)
	assert.Len(t, res.Stats, 2, "failed source still reports stats")
}

func TestPipeline_Run_AllSourcesFailed(t *testing.T) {
	factory := func(_ context.Context, _ proxy.Endpoint) (harvest.Session, error) {
		return nil, errors.New("chrome did not start")
	}

	st := newMemStore()
	p := New(testConfig(), st, newTestPool(t),
		[]harvest.Source{testSource("launchwatch", "https://lw.example")},
		factory, nil)

	_, err := p.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every source failed")
	assert.Equal(t, 1, st.failCalls, "run marked failed in the store")
}

func TestPipeline_Run_SourceSelection(t *testing.T) {
	pages := sourcePages("https://lw.example", map[string]string{"alpha": "https://alpha.io"})

	p := New(testConfig(), nil, newTestPool(t),
		[]harvest.Source{
			testSource("launchwatch", "https://lw.example"),
			testSource("icoradar", "https://radar.example"),
		},
		pagesFactory(pages), nil)

	res, err := p.Run(context.Background(), []string{"launchwatch"})
	require.NoError(t, err)
	require.Len(t, res.Stats, 1)
	assert.Equal(t, "launchwatch", res.Stats[0].Source)

	_, err = p.Run(context.Background(), []string{"unknown-source"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestPipeline_Run_NoSources(t *testing.T) {
	p := New(testConfig(), nil, newTestPool(t), nil, pagesFactory(nil), nil)

	_, err := p.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sources configured")
}

func TestPipeline_Run_Enrichment(t *testing.T) {
	pages := sourcePages("https://lw.example", map[string]string{"alpha": "https://alpha.io"})

	chain := enrich.NewChain(enrich.NewSocialLinkEnhancement())
	p := New(testConfig(), nil, newTestPool(t),
		[]harvest.Source{testSource("launchwatch", "https://lw.example")},
		pagesFactory(pages), chain)

	res, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, res.Enriched, 1)
	enriched := res.Enriched[0]
	assert.Equal(t, "alpha", enriched.Lead.Name)
	require.NotEmpty(t, enriched.Handles, "twitter link from the detail page normalized")
	assert.Equal(t, "alpha", enriched.Handles[0].Handle)
}

func TestPipeline_Run_EnrichmentCap(t *testing.T) {
	leads := map[string]string{}
	for i := 0; i < 5; i++ {
		leads[fmt.Sprintf("proj%d", i)] = fmt.Sprintf("https://proj%d.io", i)
	}
	pages := sourcePages("https://lw.example", leads)

	cfg := testConfig()
	cfg.Enrich.MaxLeads = 2

	chain := enrich.NewChain(enrich.NewSocialLinkEnhancement())
	p := New(cfg, nil, newTestPool(t),
		[]harvest.Source{testSource("launchwatch", "https://lw.example")},
		pagesFactory(pages), chain)

	res, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Leads, 5)
	assert.Len(t, res.Enriched, 2)
}
