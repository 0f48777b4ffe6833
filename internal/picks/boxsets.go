package picks

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"closetpicks/internal/model"
)

// Registry is the external box-set table: set name to constituent film
// titles and canonical URL. Box-set naming is too irregular across sources
// to derive automatically, so membership is curated configuration.
type Registry struct {
	Version int                    `yaml:"version"`
	Sets    map[string]RegistrySet `yaml:"sets"`
}

// RegistrySet describes one box set. Films may be empty for sets detected
// only through catalog annotations, where the registry just supplies a URL.
type RegistrySet struct {
	URL   string   `yaml:"url,omitempty"`
	Films []string `yaml:"films,omitempty"`
}

//go:embed box_sets.yaml
var defaultRegistry []byte

// DefaultRegistryYAML returns the built-in registry document, written out
// by the init command so it can be edited in place.
func DefaultRegistryYAML() []byte {
	return defaultRegistry
}

// LoadRegistry reads a registry file. A missing file yields the built-in
// registry; a malformed one is a hard error.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data = defaultRegistry
	} else if err != nil {
		return nil, fmt.Errorf("read box set registry: %w", err)
	}
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse box set registry %s: %w", path, err)
	}
	if reg.Sets == nil {
		reg.Sets = map[string]RegistrySet{}
	}
	return &reg, nil
}

// titleMap maps lowercased constituent titles to their set name.
func (r *Registry) titleMap() map[string]string {
	m := make(map[string]string)
	for name, set := range r.Sets {
		for _, t := range set.Films {
			m[strings.ToLower(t)] = name
		}
	}
	return m
}

// URL returns the canonical collection-site URL for a set, if known.
func (r *Registry) URL(name string) string {
	return r.Sets[name].URL
}

var parenthetical = regexp.MustCompile(`\(([^)]+)\)$`)

var boxKeywords = []string{"trilogy", "box", "set", "double feature", "cinema project", "films"}

// boxSetAnnotation extracts a set name from a trailing catalog parenthetical
// such as "Aparajito (Apu Trilogy)". Parentheticals that do not look like a
// set name (alternate titles, years) return empty.
func boxSetAnnotation(catalogTitle string) string {
	m := parenthetical.FindStringSubmatch(catalogTitle)
	if m == nil {
		return ""
	}
	name := m[1]
	lower := strings.ToLower(name)
	for _, kw := range boxKeywords {
		if strings.Contains(lower, kw) {
			return name
		}
	}
	return ""
}

// catalogBoxSetMap maps film ID to set name from catalog annotations.
func catalogBoxSetMap(catalog []model.Film) map[string]string {
	m := make(map[string]string)
	for _, f := range catalog {
		if name := boxSetAnnotation(f.Title); name != "" {
			m[f.FilmID] = name
		}
	}
	return m
}

// GroupResult summarizes a box-set grouping pass.
type GroupResult struct {
	Grouped int // picks collapsed into aggregates
	Sets    int // aggregate entries created
	Tagged  int // discussed members tagged but left standalone
}

// GroupBoxSets collapses each guest's undiscussed box-set members into one
// aggregate pick per set. Members with a high or medium confidence quote
// stay standalone, tagged with the set name. Sets with fewer than two
// undiscussed members in a guest's list are left alone. Idempotent:
// aggregate entries pass through untouched, and members that reappear
// alongside one fold into it instead of forming a second aggregate.
func GroupBoxSets(picks []model.Pick, reg *Registry, catalog []model.Film) ([]model.Pick, *GroupResult) {
	r := &GroupResult{}
	catalogMap := catalogBoxSetMap(catalog)
	titleMap := reg.titleMap()

	byGuest := make(map[string][]model.Pick)
	var order []string
	for _, p := range picks {
		if _, ok := byGuest[p.GuestSlug]; !ok {
			order = append(order, p.GuestSlug)
		}
		byGuest[p.GuestSlug] = append(byGuest[p.GuestSlug], p)
	}

	var out []model.Pick
	for _, guest := range order {
		out = append(out, groupGuest(byGuest[guest], catalogMap, titleMap, reg, r)...)
	}
	return out, r
}

func detectBoxSet(p model.Pick, catalogMap, titleMap map[string]string) string {
	if name, ok := catalogMap[p.FilmID]; ok {
		return name
	}
	return titleMap[strings.ToLower(p.FilmTitle)]
}

func groupGuest(guestPicks []model.Pick, catalogMap, titleMap map[string]string, reg *Registry, r *GroupResult) []model.Pick {
	grouped := make(map[string][]model.Pick)
	var setOrder []string
	var standalone []model.Pick
	existingAgg := make(map[string]int) // set name -> index in standalone

	for _, p := range guestPicks {
		if p.IsBoxSet {
			// Already an aggregate from a previous run.
			standalone = append(standalone, p)
			existingAgg[p.BoxSetName] = len(standalone) - 1
			continue
		}
		name := detectBoxSet(p, catalogMap, titleMap)
		discussed := strings.TrimSpace(p.Quote) != "" &&
			(p.ExtractionConfidence == model.ConfidenceHigh || p.ExtractionConfidence == model.ConfidenceMedium)

		if name == "" {
			standalone = append(standalone, p)
			continue
		}
		if discussed {
			p.IsBoxSet = false
			p.BoxSetName = name
			standalone = append(standalone, p)
			r.Tagged++
			continue
		}
		if _, ok := grouped[name]; !ok {
			setOrder = append(setOrder, name)
		}
		grouped[name] = append(grouped[name], p)
	}

	for _, name := range setOrder {
		members := grouped[name]

		if i, ok := existingAgg[name]; ok {
			// Members re-resolved from unchanged raw picks after a prior
			// grouping fold into the existing aggregate, never a second one.
			agg := &standalone[i]
			for _, m := range members {
				if !containsTitle(agg.BoxSetFilmTitles, m.FilmTitle) {
					agg.BoxSetFilmTitles = append(agg.BoxSetFilmTitles, m.FilmTitle)
				}
			}
			agg.BoxSetFilmCount = len(agg.BoxSetFilmTitles)
			r.Grouped += len(members)
			continue
		}

		if len(members) < 2 {
			standalone = append(standalone, members...)
			continue
		}

		titles := make([]string, len(members))
		for i, m := range members {
			titles[i] = m.FilmTitle
		}

		agg := members[0]
		agg.IsBoxSet = true
		agg.BoxSetName = name
		agg.BoxSetFilmCount = len(members)
		agg.BoxSetFilmTitles = titles
		agg.BoxSetCriterionURL = reg.URL(name)
		agg.FilmTitle = name
		agg.Quote = ""
		agg.ExtractionConfidence = model.ConfidenceNone
		agg.YouTubeTimestampURL = ""
		agg.StartTimestamp = nil

		standalone = append(standalone, agg)
		r.Sets++
		r.Grouped += len(members) - 1
	}

	return standalone
}

func containsTitle(titles []string, title string) bool {
	for _, t := range titles {
		if strings.EqualFold(t, title) {
			return true
		}
	}
	return false
}
