// Package proxy manages a fixed pool of upstream proxy endpoints with
// round-robin rotation, per-endpoint health tracking, and usage stats.
// Endpoints are never evicted: health is advisory and self-heals on the
// next recorded success.
package proxy

import (
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	// healthThreshold is the error count an endpoint must exceed before it
	// is marked unhealthy.
	healthThreshold = 5

	// cooldown is the minimum gap between two leases of the same endpoint
	// during round-robin selection.
	cooldown = time.Second
)

// Endpoint is one upstream proxy. Immutable once the pool is constructed.
type Endpoint struct {
	ID       string `yaml:"id" mapstructure:"id"`
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Session  string `yaml:"session" mapstructure:"session"`
}

// Addr returns the host:port address of the endpoint.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// URL returns the endpoint as an http proxy URL without credentials.
// Credentials are applied by the session layer via proxy auth.
func (e Endpoint) URL() string {
	return "http://" + e.Addr()
}

// Stats is a snapshot of one endpoint's usage counters.
type Stats struct {
	Endpoint   string        `json:"endpoint"`
	Requests   int           `json:"requests"`
	Errors     int           `json:"errors"`
	Healthy    bool          `json:"healthy"`
	LastUsed   time.Time     `json:"last_used"`
	LastLatency time.Duration `json:"last_latency"`
}

// endpointState holds the mutable counters for one endpoint. Each endpoint
// has its own lock so leases of different endpoints never contend.
type endpointState struct {
	mu          sync.Mutex
	requests    int
	errors      int
	healthy     bool
	lastUsed    time.Time
	lastLatency time.Duration
}

// Lease is a proxy endpoint handed out for one browser session. The index
// is passed back to ReportSuccess / ReportFailure.
type Lease struct {
	Endpoint Endpoint
	Index    int
}

// Pool hands out endpoints in round-robin order, skipping endpoints leased
// within the cooldown window or marked unhealthy. It degrades gracefully:
// when nothing is eligible it reuses the least-burdened endpoint rather
// than failing.
type Pool struct {
	endpoints []Endpoint
	states    []*endpointState

	mu     sync.Mutex // guards cursor only
	cursor int
}

// NewPool builds a pool over the given endpoints. An empty endpoint list is
// a configuration error: nothing downstream can open a session without one.
func NewPool(endpoints []Endpoint) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, eris.New("proxy: no endpoints configured")
	}
	states := make([]*endpointState, len(endpoints))
	for i := range states {
		states[i] = &endpointState{healthy: true}
	}
	return &Pool{endpoints: endpoints, states: states}, nil
}

// Size returns the number of endpoints in the pool.
func (p *Pool) Size() int {
	return len(p.endpoints)
}

// Lease picks the next endpoint. It scans in round-robin order for up to
// 2x the pool size, skipping endpoints used within the cooldown window or
// currently unhealthy. If no endpoint qualifies it falls back to the one
// with the fewest requests (ties broken by pool order), so a lease always
// succeeds.
func (p *Pool) Lease() Lease {
	now := time.Now()

	p.mu.Lock()
	start := p.cursor
	var chosen = -1
	for attempt := 0; attempt < 2*len(p.endpoints); attempt++ {
		idx := (start + attempt) % len(p.endpoints)
		st := p.states[idx]
		st.mu.Lock()
		ok := st.healthy && now.Sub(st.lastUsed) >= cooldown
		st.mu.Unlock()
		if ok {
			chosen = idx
			p.cursor = (idx + 1) % len(p.endpoints)
			break
		}
	}
	p.mu.Unlock()

	if chosen == -1 {
		chosen = p.leastUsed()
		zap.L().Debug("proxy: no eligible endpoint, reusing least-used",
			zap.String("endpoint", p.endpoints[chosen].Addr()),
		)
	}

	st := p.states[chosen]
	st.mu.Lock()
	st.requests++
	st.lastUsed = now
	st.mu.Unlock()

	return Lease{Endpoint: p.endpoints[chosen], Index: chosen}
}

// leastUsed returns the index with the globally lowest request count.
func (p *Pool) leastUsed() int {
	best := 0
	bestReqs := -1
	for i, st := range p.states {
		st.mu.Lock()
		reqs := st.requests
		st.mu.Unlock()
		if bestReqs == -1 || reqs < bestReqs {
			best = i
			bestReqs = reqs
		}
	}
	return best
}

// ReportFailure records an error against the endpoint at index. The
// endpoint is marked unhealthy once its error count exceeds the threshold;
// it is never removed from the pool.
func (p *Pool) ReportFailure(index int, err error) {
	if index < 0 || index >= len(p.states) {
		return
	}
	st := p.states[index]
	st.mu.Lock()
	st.errors++
	flipped := st.healthy && st.errors > healthThreshold
	if flipped {
		st.healthy = false
	}
	errs := st.errors
	st.mu.Unlock()

	if flipped {
		zap.L().Warn("proxy: endpoint marked unhealthy",
			zap.String("endpoint", p.endpoints[index].Addr()),
			zap.Int("errors", errs),
			zap.Error(err),
		)
	}
}

// ReportSuccess records a successful session against the endpoint at index
// and unconditionally restores its health.
func (p *Pool) ReportSuccess(index int, latency time.Duration) {
	if index < 0 || index >= len(p.states) {
		return
	}
	st := p.states[index]
	st.mu.Lock()
	st.lastLatency = latency
	st.healthy = true
	st.mu.Unlock()
}

// Stats returns a read-only snapshot of every endpoint's counters.
func (p *Pool) Stats() []Stats {
	out := make([]Stats, len(p.endpoints))
	for i, st := range p.states {
		st.mu.Lock()
		out[i] = Stats{
			Endpoint:    p.endpoints[i].Addr(),
			Requests:    st.requests,
			Errors:      st.errors,
			Healthy:     st.healthy,
			LastUsed:    st.lastUsed,
			LastLatency: st.lastLatency,
		}
		st.mu.Unlock()
	}
	return out
}
