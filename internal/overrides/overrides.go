// Package overrides applies the curated correction layer: hand-maintained
// fixes for data the automated passes get wrong. Corrections live in a
// versioned yaml document and are applied in a fixed order so rerunning the
// same document over already-corrected data is a no-op.
package overrides

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"closetpicks/internal/guests"
	"closetpicks/internal/model"
)

// DocVersion is the override document schema this build understands.
const DocVersion = 1

// Doc is the override document. Maps key by guest slug.
type Doc struct {
	Version int `yaml:"version"`

	// NameFixes maps an exact current display name to its replacement.
	NameFixes map[string]string `yaml:"name_fixes,omitempty"`

	// RepeatVisitMerges maps a primary slug to the secondary slug whose
	// record is a later visit by the same guest. The secondary is folded
	// into the primary's visits array and its picks reassigned.
	RepeatVisitMerges map[string]string `yaml:"repeat_visit_merges,omitempty"`

	// WrongVideoFixes nulls a guest's video linkage, but only while the
	// guest still carries the listed wrong video ID.
	WrongVideoFixes map[string]string `yaml:"wrong_video_fixes,omitempty"`

	// KnownVideoIDs assigns a video ID unconditionally, overriding any
	// automated match.
	KnownVideoIDs map[string]string `yaml:"known_video_ids,omitempty"`

	// KnownURLs assigns a canonical collection-site page URL unconditionally.
	KnownURLs map[string]string `yaml:"known_urls,omitempty"`

	// GuestTypeTags marks non-person entries (group, character, event).
	GuestTypeTags map[string]string `yaml:"guest_type_tags,omitempty"`

	// ExcludedVideoIDs lists channel videos that are not closet picks
	// episodes (trailers, announcements). They are dropped at collection
	// time before any guest matching sees them.
	ExcludedVideoIDs []string `yaml:"excluded_video_ids,omitempty"`
}

// Excluded reports whether a video ID is on the exclusion list.
func (d *Doc) Excluded(videoID string) bool {
	for _, id := range d.ExcludedVideoIDs {
		if id == videoID {
			return true
		}
	}
	return false
}

//go:embed overrides.yaml
var defaultDoc []byte

// DefaultDocYAML returns the built-in override document, written out by the
// init command so it can be edited in place.
func DefaultDocYAML() []byte {
	return defaultDoc
}

// Load reads an override document. A missing file yields the built-in
// document; a malformed file or unknown version is a hard error.
func Load(path string) (*Doc, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data = defaultDoc
	} else if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}
	var doc Doc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse overrides %s: %w", path, err)
	}
	if doc.Version != DocVersion {
		return nil, fmt.Errorf("overrides %s: unsupported version %d", path, doc.Version)
	}
	return &doc, nil
}

// ApplyResult counts corrections made by one Apply pass. All zeros means
// the data already matched the document.
type ApplyResult struct {
	NameFixes       int
	RepeatMerges    int
	WrongVideoFixes int
	VideoIDsSet     int
	URLsSet         int
	TypeTags        int
	PicksReassigned int
}

// Apply runs every correction table against the stores in fixed order:
// name fixes, repeat-visit merges, wrong video fixes, known video IDs,
// known URLs, guest type tags. Guests removed by merges are dropped from
// the returned slice; picks and raw picks are updated in place.
func Apply(guestList []model.Guest, picks []model.Pick, raw []model.RawPick, doc *Doc) ([]model.Guest, *ApplyResult) {
	r := &ApplyResult{}

	for i := range guestList {
		if fixed, ok := doc.NameFixes[guestList[i].Name]; ok {
			log.Printf("name fix: %q -> %q", guestList[i].Name, fixed)
			guestList[i].Name = fixed
			r.NameFixes++
		}
	}

	for _, primary := range sortedKeys(doc.RepeatVisitMerges) {
		guestList = mergeRepeatVisit(guestList, picks, raw, primary, doc.RepeatVisitMerges[primary], r)
	}

	for _, s := range sortedKeys(doc.WrongVideoFixes) {
		wrongID := doc.WrongVideoFixes[s]
		g := bySlug(guestList, s)
		if g == nil {
			continue
		}
		if g.YouTubeVideoID != nil && *g.YouTubeVideoID == wrongID {
			log.Printf("wrong video fix: %s had %s", g.Name, wrongID)
			g.YouTubeVideoID = nil
			g.YouTubeVideoURL = nil
			g.VimeoVideoID = nil
			r.WrongVideoFixes++
		}
	}

	for _, s := range sortedKeys(doc.KnownVideoIDs) {
		id := doc.KnownVideoIDs[s]
		g := bySlug(guestList, s)
		if g == nil {
			continue
		}
		if g.YouTubeVideoID == nil || *g.YouTubeVideoID != id {
			vid := id
			url := fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
			g.YouTubeVideoID = &vid
			g.YouTubeVideoURL = &url
			r.VideoIDsSet++
		}
	}

	for _, s := range sortedKeys(doc.KnownURLs) {
		url := doc.KnownURLs[s]
		g := bySlug(guestList, s)
		if g == nil {
			continue
		}
		if g.CriterionPageURL == nil || *g.CriterionPageURL != url {
			u := url
			g.CriterionPageURL = &u
			r.URLsSet++
		}
	}

	for _, s := range sortedKeys(doc.GuestTypeTags) {
		tag := doc.GuestTypeTags[s]
		g := bySlug(guestList, s)
		if g == nil {
			continue
		}
		if g.GuestType != tag {
			g.GuestType = tag
			r.TypeTags++
		}
	}

	return guestList, r
}

// mergeRepeatVisit folds the secondary guest entry into the primary as an
// additional visit, reassigns the secondary's picks, and removes the
// secondary. Skipped quietly when either slug is absent (already merged).
func mergeRepeatVisit(guestList []model.Guest, picks []model.Pick, raw []model.RawPick, primarySlug, secondarySlug string, r *ApplyResult) []model.Guest {
	primary := bySlug(guestList, primarySlug)
	secondary := bySlug(guestList, secondarySlug)
	if primary == nil || secondary == nil {
		return guestList
	}
	log.Printf("repeat merge: %q -> %q", secondary.Name, primary.Name)

	if len(primary.Visits) == 0 {
		primary.Visits = []model.Visit{
			guests.NewVisit(*primary, 1),
			guests.NewVisit(*secondary, 2),
		}
	} else if !hasVisit(primary.Visits, *secondary) {
		primary.Visits = append(primary.Visits, guests.NewVisit(*secondary, len(primary.Visits)+1))
	}

	fillFrom(primary, *secondary)

	visitIndex := len(primary.Visits)
	for i := range picks {
		if picks[i].GuestSlug == secondarySlug {
			picks[i].GuestSlug = primarySlug
			picks[i].VisitIndex = visitIndex
			r.PicksReassigned++
		}
	}
	for i := range raw {
		if raw[i].GuestSlug == secondarySlug {
			raw[i].GuestSlug = primarySlug
			raw[i].VisitIndex = visitIndex
		}
	}

	r.RepeatMerges++
	return removeSlug(guestList, secondarySlug)
}

func hasVisit(visits []model.Visit, g model.Guest) bool {
	for _, v := range visits {
		if eqp(v.YouTubeVideoID, g.YouTubeVideoID) && eqp(v.LetterboxdListURL, g.LetterboxdListURL) {
			return true
		}
	}
	return false
}

func eqp(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// fillFrom copies the secondary's profile fields into the primary where
// the primary has none.
func fillFrom(dst *model.Guest, src model.Guest) {
	if dst.Profession == nil && src.Profession != nil {
		dst.Profession = src.Profession
	}
	if dst.PhotoURL == nil && src.PhotoURL != nil {
		dst.PhotoURL = src.PhotoURL
	}
	if dst.EpisodeDate == nil && src.EpisodeDate != nil {
		dst.EpisodeDate = src.EpisodeDate
	}
}

// sortedKeys keeps map-driven correction order deterministic.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func bySlug(guestList []model.Guest, s string) *model.Guest {
	for i := range guestList {
		if guestList[i].Slug == s {
			return &guestList[i]
		}
	}
	return nil
}

func removeSlug(guestList []model.Guest, s string) []model.Guest {
	for i := range guestList {
		if guestList[i].Slug == s {
			return append(guestList[:i], guestList[i+1:]...)
		}
	}
	return guestList
}
