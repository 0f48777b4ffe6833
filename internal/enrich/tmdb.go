package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"closetpicks/internal/fuzzy"
)

// departmentMap converts a TMDB department to the profession vocabulary the
// site displays.
var departmentMap = map[string]string{
	"Directing":  "director",
	"Acting":     "actor",
	"Writing":    "writer",
	"Sound":      "musician",
	"Production": "producer",
	"Camera":     "cinematographer",
	"Editing":    "editor",
}

// TMDBClient implements Client against the TMDB v3 API.
type TMDBClient struct {
	BaseURL      string
	ImageBaseURL string
	apiKey       string
	client       *http.Client

	titleThreshold int
}

// NewTMDBClient creates a TMDB client. titleThreshold <= 0 selects the
// default of 85.
func NewTMDBClient(baseURL, imageBaseURL, apiKey string, titleThreshold int) *TMDBClient {
	if titleThreshold <= 0 {
		titleThreshold = 85
	}
	return &TMDBClient{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		ImageBaseURL:   strings.TrimRight(imageBaseURL, "/"),
		apiKey:         apiKey,
		client:         &http.Client{Timeout: 30 * time.Second},
		titleThreshold: titleThreshold,
	}
}

// IsConfigured reports whether an API key is present.
func (c *TMDBClient) IsConfigured() bool {
	return c.apiKey != ""
}

func (c *TMDBClient) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("tmdb rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("tmdb API returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type searchResult struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
}

func (r searchResult) year() *int {
	if len(r.ReleaseDate) < 4 {
		return nil
	}
	y, err := strconv.Atoi(r.ReleaseDate[:4])
	if err != nil {
		return nil
	}
	return &y
}

// Lookup searches for a film and fetches its details and director. The
// candidate is chosen by fuzzy title score with the year guard, not blind
// first-result trust. Returns (nil, nil) when nothing plausible matches.
func (c *TMDBClient) Lookup(ctx context.Context, title string, year *int) (*Metadata, error) {
	results, err := c.search(ctx, title, year)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && year != nil {
		// Year filters can miss re-releases; retry unfiltered.
		results, err = c.search(ctx, title, nil)
		if err != nil {
			return nil, err
		}
	}
	if len(results) == 0 {
		return nil, nil
	}

	candidates := make([]fuzzy.Candidate, len(results))
	for i, res := range results {
		candidates[i] = fuzzy.Candidate{Title: res.Title, Year: res.year(), Index: i}
	}
	best, _, ok := fuzzy.BestTitle(title, year, candidates, c.titleThreshold)
	if !ok {
		return nil, nil
	}
	chosen := results[best.Index]

	md := &Metadata{TMDBID: chosen.ID, Year: chosen.year()}
	if err := c.fillDetail(ctx, chosen.ID, md); err != nil {
		return nil, err
	}
	if err := c.fillDirector(ctx, chosen.ID, md); err != nil {
		return nil, err
	}
	return md, nil
}

func (c *TMDBClient) search(ctx context.Context, title string, year *int) ([]searchResult, error) {
	params := url.Values{"query": {title}}
	if year != nil {
		params.Set("year", strconv.Itoa(*year))
	}
	var out struct {
		Results []searchResult `json:"results"`
	}
	if err := c.get(ctx, "/search/movie", params, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *TMDBClient) fillDetail(ctx context.Context, id int64, md *Metadata) error {
	var detail struct {
		IMDBID     string `json:"imdb_id"`
		PosterPath string `json:"poster_path"`
		Genres     []struct {
			Name string `json:"name"`
		} `json:"genres"`
		ProductionCountries []struct {
			Name string `json:"name"`
		} `json:"production_countries"`
	}
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", id), nil, &detail); err != nil {
		return err
	}
	md.IMDBID = detail.IMDBID
	for _, g := range detail.Genres {
		md.Genres = append(md.Genres, g.Name)
	}
	if len(detail.ProductionCountries) > 0 {
		md.Country = detail.ProductionCountries[0].Name
	}
	if detail.PosterPath != "" {
		md.PosterURL = c.ImageBaseURL + "/w185" + detail.PosterPath
	}
	return nil
}

func (c *TMDBClient) fillDirector(ctx context.Context, id int64, md *Metadata) error {
	var credits struct {
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	}
	if err := c.get(ctx, fmt.Sprintf("/movie/%d/credits", id), nil, &credits); err != nil {
		return err
	}
	var directors []string
	for _, member := range credits.Crew {
		if member.Job == "Director" {
			directors = append(directors, member.Name)
		}
	}
	md.Director = strings.Join(directors, ", ")
	return nil
}

// Person looks up a guest and maps their TMDB department to a profession.
func (c *TMDBClient) Person(ctx context.Context, name string) (*Person, error) {
	var out struct {
		Results []struct {
			KnownForDepartment string `json:"known_for_department"`
			ProfilePath        string `json:"profile_path"`
		} `json:"results"`
	}
	if err := c.get(ctx, "/search/person", url.Values{"query": {name}}, &out); err != nil {
		return nil, err
	}
	if len(out.Results) == 0 {
		return nil, nil
	}
	top := out.Results[0]

	p := &Person{}
	if top.KnownForDepartment != "" {
		prof, ok := departmentMap[top.KnownForDepartment]
		if !ok {
			prof = "other"
		}
		p.Profession = prof
	}
	if top.ProfilePath != "" {
		p.PhotoURL = c.ImageBaseURL + "/w185" + top.ProfilePath
	}
	return p, nil
}
