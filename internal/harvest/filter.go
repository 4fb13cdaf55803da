package harvest

import (
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/harvest-cli/internal/model"
)

// validate checks the required fields of a freshly built record. Name is
// always required; a website is required either on its own or, when the
// source allows it, substitutable by at least one social link.
func validate(r model.LeadRecord, src Source) error {
	if strings.TrimSpace(r.Name) == "" {
		return eris.New("missing required field: name")
	}
	if r.Website == "" {
		if src.RequireWebsite {
			return eris.New("missing required field: website")
		}
		if !r.HasSocial() {
			return eris.New("record has neither website nor social links")
		}
	}
	return nil
}

// deniedKeyword returns the first deny-list keyword found in the record's
// name or category, if any. Matching is case-insensitive on whole words so
// "Memento" does not trip "meme".
func deniedKeyword(r model.LeadRecord, denyList []string) (string, bool) {
	haystack := strings.ToLower(r.Name + " " + r.Category)
	words := strings.FieldsFunc(haystack, func(c rune) bool {
		return !('a' <= c && c <= 'z' || '0' <= c && c <= '9')
	})
	for _, w := range words {
		for _, kw := range denyList {
			if w == kw {
				return kw, true
			}
		}
	}
	return "", false
}

// parseSaleType maps free-form sale labels onto the known sale types.
func parseSaleType(s string) model.SaleType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ico", "initial coin offering":
		return model.SaleTypeICO
	case "ido", "initial dex offering":
		return model.SaleTypeIDO
	case "ieo", "initial exchange offering", "launchpad":
		return model.SaleTypeIEO
	case "presale", "pre-sale", "private sale", "private":
		return model.SaleTypePresale
	case "seed", "seed round":
		return model.SaleTypeSeed
	default:
		return model.SaleTypeUnknown
	}
}

// launchDateLayouts are the date formats observed across listing sites,
// tried in order.
var launchDateLayouts = []string{
	"2006-01-02",
	"02 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02/01/2006",
	"2 Jan 2006",
}

// normalizeLaunchDate converts a scraped date string to ISO form
// (2006-01-02). Strings that match no known layout pass through trimmed,
// so downstream consumers still see the site's original value.
func normalizeLaunchDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range launchDateLayouts {
		if t, err := parseDate(layout, s); err == nil {
			return t
		}
	}
	return s
}

func parseDate(layout, s string) (string, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}

// raisedPattern matches money amounts like "$1.2M", "USD 500k", "$12,000,000".
var raisedPattern = regexp.MustCompile(`(?i)(?:\$|usd\s*)\s*([\d,]+(?:\.\d+)?)\s*([kmb])?`)

// normalizeRaised extracts the first money amount from a scraped funding
// string, normalized to "$<amount><suffix>". Unparseable input passes
// through trimmed.
func normalizeRaised(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	m := raisedPattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	out := "$" + strings.ReplaceAll(m[1], ",", "")
	if m[2] != "" {
		out += strings.ToUpper(m[2])
	}
	return out
}

// cleanCategory collapses whitespace and strips decorative separators from
// a scraped category label.
func cleanCategory(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " -•|,")
}

// blockMarkers are phrases that identify anti-bot interstitials instead of
// real content.
var blockMarkers = []string{
	"verifying you are human",
	"checking your browser",
	"access denied",
	"captcha",
	"cf-challenge",
	"rate limited",
	"too many requests",
}

// looksBlocked reports whether fetched HTML is an anti-bot or rate-limit
// page rather than the listing content.
func looksBlocked(html string) bool {
	if len(html) < 512 {
		return true
	}
	lower := strings.ToLower(html)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
