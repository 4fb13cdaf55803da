package enrich

import (
	"context"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/sells-group/harvest-cli/internal/model"
	"github.com/sells-group/harvest-cli/pkg/contactly"
)

const (
	// maxProfileLookups caps contact-service calls per lead.
	maxProfileLookups = 5

	// lookupDelay spaces contact-service calls to respect its rate limits.
	lookupDelay = time.Second
)

// ContactService resolves a person's name into contact emails. It is
// external and rate limited; callers treat every failure as soft.
type ContactService interface {
	FindPersonByName(ctx context.Context, first, last string) (*contactly.Person, error)
}

// foldDiacritics is the transform used to ASCII-fold display names before
// they are sent to the contact service.
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// splitName turns a profile display name into first/last parts. Anything
// after a comma (credentials like ", PhD") is dropped, diacritics are
// folded, and everything past the first token becomes the last name.
func splitName(display string) (string, string) {
	name := display
	if idx := strings.Index(name, ","); idx >= 0 {
		name = name[:idx]
	}
	if folded, _, err := transform.String(foldDiacritics, name); err == nil {
		name = folded
	}
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// ContactLookup resolves discovered team profiles into emails through the
// contact service.
type ContactLookup struct {
	service ContactService
	limiter *rate.Limiter
}

// NewContactLookup creates the contact-service strategy. A nil service
// disables it.
func NewContactLookup(service ContactService) *ContactLookup {
	return &ContactLookup{
		service: service,
		limiter: rate.NewLimiter(rate.Every(lookupDelay), 1),
	}
}

func (s *ContactLookup) Name() string { return "contact_service_lookup" }

// Applies requires at least one personal profile from an earlier strategy
// and a configured service.
func (s *ContactLookup) Applies(_ model.LeadRecord, res *model.EnrichmentResult) bool {
	return s.service != nil && len(res.Team) > 0
}

// Run looks up the first profiles through the service. Per-profile
// failures are logged and skipped; the delay between calls is a limiter
// wait, so it suspends instead of spinning.
func (s *ContactLookup) Run(ctx context.Context, res *model.EnrichmentResult) (bool, error) {
	profiles := res.Team
	if len(profiles) > maxProfileLookups {
		profiles = profiles[:maxProfileLookups]
	}

	found := 0
	for _, p := range profiles {
		first, last := splitName(p.Name)
		if first == "" || last == "" {
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			break
		}

		person, err := s.service.FindPersonByName(ctx, first, last)
		if err != nil {
			zap.L().Debug("enrich: contact lookup failed",
				zap.String("profile", p.Name),
				zap.Error(err),
			)
			continue
		}
		if person == nil {
			continue
		}

		emails := make([]string, 0, len(person.Emails))
		for _, e := range person.Emails {
			emails = append(emails, e.Address)
		}
		res.Contacts = append(res.Contacts, model.Contact{
			Name:     p.Name,
			Emails:   emails,
			Strategy: s.Name(),
		})
		found++
	}

	return found > 0, nil
}
