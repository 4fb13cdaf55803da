package harvest

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/harvest-cli/internal/extract"
)

const (
	defaultSectionLimit  = 30
	defaultMaxCandidates = 60
)

// defaultDenyKeywords excludes low-value listings regardless of source.
// Sources can extend but not shrink this list.
var defaultDenyKeywords = []string{
	"meme", "memecoin", "casino", "gambling", "airdrop", "giveaway",
	"testnet", "faucet", "ponzi", "pump",
}

// Section is one listing page of a source, e.g. "upcoming" or "active".
type Section struct {
	Name         string           `yaml:"name"`
	URL          string           `yaml:"url"`
	WaitSelector string           `yaml:"wait_selector"`
	List         extract.ListSpec `yaml:"list"`
}

// Source declares everything site-specific about one listing site: where
// its sections live, how to find candidates, and how to pull fields off a
// detail page. Field names prefixed "social_" are collected into the
// record's social-link map (e.g. "social_twitter" -> Socials["twitter"]).
type Source struct {
	Name     string       `yaml:"name"`
	Sections []Section    `yaml:"sections"`
	Fields   extract.Spec `yaml:"fields"`

	// RequireWebsite demands a website on every record. When false, a
	// record may pass validation with at least one social link instead.
	RequireWebsite bool `yaml:"require_website"`

	// SectionLimit caps candidates taken per section. Default 30.
	SectionLimit int `yaml:"section_limit"`

	// MaxCandidates caps detail fetches per run. Default 60.
	MaxCandidates int `yaml:"max_candidates"`

	// DenyKeywords extend the built-in deny list for this source.
	DenyKeywords []string `yaml:"deny_keywords"`
}

// denyList returns the effective deny keywords for the source.
func (s Source) denyList() []string {
	return append(append([]string{}, defaultDenyKeywords...), s.DenyKeywords...)
}

// LoadSources reads source definitions from a YAML file and applies
// defaults and sanity checks.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "harvest: read sources %s", path)
	}

	var wrapper struct {
		Sources []Source `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "harvest: parse sources")
	}
	if len(wrapper.Sources) == 0 {
		return nil, eris.Errorf("harvest: no sources defined in %s", path)
	}

	for i := range wrapper.Sources {
		src := &wrapper.Sources[i]
		if src.Name == "" {
			return nil, eris.Errorf("harvest: source %d has no name", i)
		}
		if len(src.Sections) == 0 {
			return nil, eris.Errorf("harvest: source %q has no sections", src.Name)
		}
		if _, ok := src.Fields["name"]; !ok {
			return nil, eris.Errorf("harvest: source %q has no selector for required field \"name\"", src.Name)
		}
		if src.SectionLimit <= 0 {
			src.SectionLimit = defaultSectionLimit
		}
		if src.MaxCandidates <= 0 {
			src.MaxCandidates = defaultMaxCandidates
		}
	}

	return wrapper.Sources, nil
}
