// Package dedupe collapses lead records from one or more harvest runs into
// a unique, order-preserving sequence keyed by canonical website domain.
package dedupe

import (
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/harvest-cli/internal/model"
)

// CanonicalDomain normalizes a website URL to its dedup form: lowercase
// host with any leading "www." stripped. It is a pure function; the same
// input always yields the same output, and its own output maps to itself.
// A URL with no resolvable host yields "".
func CanonicalDomain(website string) string {
	raw := strings.TrimSpace(website)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	return host
}

// CanonicalKey returns the dedup key for a record: the canonical domain of
// its website when resolvable, otherwise its details URL. Two sources that
// list the same project without a website therefore do not merge; that is
// a deliberate conservative choice over risking false merges.
func CanonicalKey(r model.LeadRecord) string {
	if d := CanonicalDomain(r.Website); d != "" {
		return d
	}
	return r.DetailsURL
}

// Merge collapses records in arrival order: the first record observed for
// a key is retained, later ones are dropped. No field-level reconciliation
// happens here. Output order is first-seen input order.
func Merge(records []model.LeadRecord) []model.LeadRecord {
	seen := make(map[string]bool, len(records))
	out := make([]model.LeadRecord, 0, len(records))
	dropped := 0

	for _, r := range records {
		key := CanonicalKey(r)
		if seen[key] {
			dropped++
			continue
		}
		seen[key] = true
		out = append(out, r)
	}

	if dropped > 0 {
		zap.L().Info("dedupe: collapsed duplicate leads",
			zap.Int("in", len(records)),
			zap.Int("out", len(out)),
			zap.Int("dropped", dropped),
		)
	}
	return out
}
