// Package model defines the record types persisted in the pipeline's JSON
// snapshots: catalog films, guests, raw picks, enriched picks, and transcripts.
// Field tags match the snapshot files consumed by the static site.
package model

// Confidence labels machine-extracted data quality.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// Rank returns an ordering value for confidence comparison (higher is better).
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

// Downgrade returns the next-lower confidence level.
func (c Confidence) Downgrade() Confidence {
	switch c {
	case ConfidenceHigh:
		return ConfidenceMedium
	case ConfidenceMedium:
		return ConfidenceLow
	}
	return ConfidenceNone
}

// Visit is one discrete episode appearance for a guest who appeared more
// than once. Visit indexes start at 1 in episode order.
type Visit struct {
	Index             int     `json:"visit_index"`
	YouTubeVideoID    *string `json:"youtube_video_id"`
	YouTubeVideoURL   *string `json:"youtube_video_url"`
	VimeoVideoID      *string `json:"vimeo_video_id,omitempty"`
	EpisodeDate       *string `json:"episode_date"`
	LetterboxdListURL *string `json:"letterboxd_list_url"`
	CriterionPageURL  *string `json:"criterion_page_url"`
}

// Guest is a person (or group, character, event) who appeared in an episode.
// Slug is assigned on first sighting and never regenerated; every other
// field may be filled in by later stages but never blanked automatically.
type Guest struct {
	Name              string  `json:"name"`
	Slug              string  `json:"slug"`
	GuestType         string  `json:"guest_type,omitempty"` // empty means person
	Profession        *string `json:"profession"`
	PhotoURL          *string `json:"photo_url"`
	YouTubeVideoID    *string `json:"youtube_video_id"`
	YouTubeVideoURL   *string `json:"youtube_video_url"`
	VimeoVideoID      *string `json:"vimeo_video_id,omitempty"`
	EpisodeDate       *string `json:"episode_date"`
	LetterboxdListURL *string `json:"letterboxd_list_url"`
	CriterionPageURL  *string `json:"criterion_page_url"`
	PickCount         int     `json:"pick_count"`
	Visits            []Visit `json:"visits,omitempty"`
}

// Film is a catalog entry or a backfilled film referenced only by picks.
// SpineNumber is nil for backfilled entries absent from the canonical catalog.
type Film struct {
	FilmID       string   `json:"film_id"`
	Title        string   `json:"title"`
	SpineNumber  *int     `json:"spine_number"`
	Director     string   `json:"director"`
	Year         *int     `json:"year"`
	Country      string   `json:"country"`
	Genres       []string `json:"genres"`
	CriterionURL string   `json:"criterion_url"`
	IMDBID       *string  `json:"imdb_id"`
	TMDBID       *int64   `json:"tmdb_id"`
	PosterURL    *string  `json:"poster_url"`
	PickCount    int      `json:"pick_count,omitempty"`
}

// RawPick is one guest selection as reported by an upstream source, before
// catalog resolution assigns a film identity.
type RawPick struct {
	GuestSlug        string `json:"guest_slug"`
	FilmTitle        string `json:"film_title"`
	FilmYear         *int   `json:"film_year"`
	FilmID           string `json:"film_id,omitempty"`
	CatalogSpine     *int   `json:"catalog_spine"`
	CatalogTitle     string `json:"catalog_title,omitempty"`
	MatchMethod      string `json:"match_method,omitempty"`
	CriterionFilmURL string `json:"criterion_film_url,omitempty"`
	LetterboxdURL    string `json:"letterboxd_url,omitempty"`
	VisitIndex       int    `json:"visit_index,omitempty"` // 0 means visit 1
}

// Visit returns the effective visit index (raw sources omit it for
// single-visit guests).
func (p RawPick) Visit() int {
	if p.VisitIndex <= 0 {
		return 1
	}
	return p.VisitIndex
}

// Pick is a guest's selection of one film, or of one box set, in one visit.
// (GuestSlug, FilmID, VisitIndex) is unique across the pick snapshot.
type Pick struct {
	GuestSlug            string     `json:"guest_slug"`
	FilmID               string     `json:"film_id"`
	FilmTitle            string     `json:"film_title"`
	FilmYear             *int       `json:"film_year"`
	VisitIndex           int        `json:"visit_index"`
	CatalogSpine         *int       `json:"catalog_spine"`
	MatchMethod          string     `json:"match_method,omitempty"`
	Quote                string     `json:"quote"`
	StartTimestamp       *int       `json:"start_timestamp"`
	YouTubeTimestampURL  string     `json:"youtube_timestamp_url,omitempty"`
	ExtractionConfidence Confidence `json:"extraction_confidence"`

	// Box-set fields, present only when the pick is an aggregate selection.
	IsBoxSet           bool     `json:"is_box_set,omitempty"`
	BoxSetName         string   `json:"box_set_name,omitempty"`
	BoxSetFilmCount    int      `json:"box_set_film_count,omitempty"`
	BoxSetFilmTitles   []string `json:"box_set_film_titles,omitempty"`
	BoxSetCriterionURL string   `json:"box_set_criterion_url,omitempty"`
}

// Key identifies a pick within a snapshot.
type PickKey struct {
	GuestSlug  string
	FilmID     string
	VisitIndex int
}

// Key returns the uniqueness tuple for this pick.
func (p Pick) Key() PickKey {
	return PickKey{GuestSlug: p.GuestSlug, FilmID: p.FilmID, VisitIndex: p.VisitIndex}
}

// TranscriptSegment is one timestamped caption line. The core treats
// transcripts as opaque ordered text.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	Text  string  `json:"text"`
}

// Transcript is an ordered sequence of segments for one video.
type Transcript []TranscriptSegment

// Duration returns the start of the last segment in whole seconds, which
// bounds any plausible quote timestamp.
func (t Transcript) Duration() int {
	if len(t) == 0 {
		return 0
	}
	return int(t[len(t)-1].Start)
}
