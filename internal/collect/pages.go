package collect

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"closetpicks/internal/guests"
	"closetpicks/internal/model"
	"closetpicks/internal/slug"
)

var (
	spineEntry    = regexp.MustCompile(`^(\d{1,4})\s+(.+)$`)
	formatTags    = regexp.MustCompile(`(?i)\s*\((BD|4K|UHD|DVD|Blu-ray|4K UHD)\)`)
	trailingMarks = regexp.MustCompile(`\s*[*†‡]+\s*$`)
	spaceRuns     = regexp.MustCompile(`\s+`)
)

// ParseSpineList extracts catalog entries from a saved spine-list page.
// Entries are list items of the form "NNNN  Title", optionally linking to
// the collection site. Spine numbers outside 1..2000 are navigation noise.
func ParseSpineList(r io.Reader) ([]model.Film, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing spine list: %w", err)
	}

	normalize := func(s string) string {
		s = strings.ReplaceAll(s, " ", " ")
		return strings.TrimSpace(spaceRuns.ReplaceAllString(s, " "))
	}

	var films []model.Film
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		// Link text ("shop", "details") is not part of the title, so match
		// against the item with its anchors removed; entries that wrap the
		// whole line in their link fall back to the full text.
		clone := li.Clone()
		clone.Find("a").Remove()
		m := spineEntry.FindStringSubmatch(normalize(clone.Text()))
		if m == nil {
			m = spineEntry.FindStringSubmatch(normalize(li.Text()))
		}
		if m == nil {
			return
		}
		spine, err := strconv.Atoi(m[1])
		if err != nil || spine < 1 || spine > 2000 {
			return
		}

		title := strings.TrimSpace(formatTags.ReplaceAllString(m[2], ""))
		title = trailingMarks.ReplaceAllString(title, "")
		if len(title) < 2 || isDigits(title) {
			return
		}

		criterionURL := ""
		li.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			if strings.Contains(href, "criterion.com") {
				criterionURL = href
				return false
			}
			return true
		})

		films = append(films, model.Film{
			FilmID:       slug.FilmID(title, nil),
			Title:        title,
			SpineNumber:  &spine,
			CriterionURL: criterionURL,
			Genres:       []string{},
		})
	})
	return films, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Collection is one guest collection discovered on the closet-picks index.
type Collection struct {
	Name string
	Slug string
	URL  string
	Path string
}

var (
	collectionPath = regexp.MustCompile(`^/shop/collection/\d+-`)
	collectionSlug = regexp.MustCompile(`/shop/collection/\d+-(.*?)(?:-s-closet|-closet)`)
	hostPrefix     = regexp.MustCompile(`^https?://[^/]+`)
)

// ParseClosetIndex extracts guest collections from the closet-picks index
// page. Link text gives the guest name; links with no usable text fall back
// to the URL slug.
func ParseClosetIndex(r io.Reader, baseURL string) ([]Collection, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing closet index: %w", err)
	}

	var collections []Collection
	seen := make(map[string]bool)
	doc.Find(`a[href*="/shop/collection/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		path := hostPrefix.ReplaceAllString(href, "")
		if seen[path] || !collectionPath.MatchString(path) {
			return
		}
		seen[path] = true

		text := strings.TrimSpace(a.Text())
		if len(text) < 3 {
			m := collectionSlug.FindStringSubmatch(path)
			if m == nil {
				return
			}
			text = cases.Title(language.English).String(strings.ReplaceAll(m[1], "-", " "))
		}

		name := guests.ParseGuestName(text)
		if name == "" {
			return
		}

		url := href
		if !strings.HasPrefix(href, "http") {
			url = strings.TrimRight(baseURL, "/") + path
		}
		collections = append(collections, Collection{
			Name: name,
			Slug: slug.Make(name),
			URL:  url,
			Path: path,
		})
	})
	return collections, nil
}

var (
	youtubeEmbed = regexp.MustCompile(`youtube(?:-nocookie)?\.com/embed/([a-zA-Z0-9_-]{11})`)
	vimeoVideo   = regexp.MustCompile(`vimeo\.com/(?:video/)?(\d+)`)
)

// VideoIDs holds the embedded players found on a guest page.
type VideoIDs struct {
	YouTube string
	Vimeo   string
}

// ParseVideoIDs extracts embedded video IDs from a saved guest page.
// Structured embeds are preferred; a raw-HTML regex sweep is the fallback
// for players injected by script.
func ParseVideoIDs(html string) VideoIDs {
	var ids VideoIDs

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		doc.Find(`iframe[src*="youtube.com/embed/"], iframe[src*="youtube-nocookie.com/embed/"]`).
			EachWithBreak(func(_ int, f *goquery.Selection) bool {
				src, _ := f.Attr("src")
				if m := youtubeEmbed.FindStringSubmatch(src); m != nil {
					ids.YouTube = m[1]
					return false
				}
				return true
			})
		doc.Find(`iframe[src*="player.vimeo.com/video/"], a[href*="vimeo.com"]`).
			EachWithBreak(func(_ int, f *goquery.Selection) bool {
				src, ok := f.Attr("src")
				if !ok {
					src, _ = f.Attr("href")
				}
				if m := vimeoVideo.FindStringSubmatch(src); m != nil {
					ids.Vimeo = m[1]
					return false
				}
				return true
			})
	}

	if ids.YouTube == "" {
		if m := youtubeEmbed.FindStringSubmatch(html); m != nil {
			ids.YouTube = m[1]
		}
	}
	if ids.Vimeo == "" {
		if m := vimeoVideo.FindStringSubmatch(html); m != nil {
			ids.Vimeo = m[1]
		}
	}
	return ids
}
