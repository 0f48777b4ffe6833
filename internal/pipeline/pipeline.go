// Package pipeline sequences the stages that turn collected sources into
// the published snapshots: collect, guest merge, pick build, box-set
// grouping, backfill, quote extraction, enrichment, overrides, validate.
// Correction tables are re-applied after every automated matching pass so
// a manual fix is never undone by a later stage.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"closetpicks/internal/catalog"
	"closetpicks/internal/checkpoint"
	"closetpicks/internal/collect"
	"closetpicks/internal/config"
	"closetpicks/internal/enrich"
	"closetpicks/internal/extract"
	"closetpicks/internal/guests"
	"closetpicks/internal/model"
	"closetpicks/internal/overrides"
	"closetpicks/internal/picks"
	"closetpicks/internal/report"
	"closetpicks/internal/store"
	"closetpicks/internal/validate"
)

// Pipeline runs the stages against one data directory. Provider and Client
// are optional; a nil value skips the stage that needs it.
type Pipeline struct {
	Config   *config.Config
	Provider extract.Provider // quote extraction, nil skips
	Client   enrich.Client    // metadata enrichment, nil skips

	// FetchEpisodes overrides the uploads-feed fetch, mainly for tests.
	// nil means fetch from Config.Sources.UploadsFeedURL.
	FetchEpisodes func(feedURL string) ([]collect.Episode, error)

	Force     bool   // redo checkpointed work
	DryRun    bool   // report pending work without mutating anything
	Limit     int    // cap on extraction visits per run
	GuestSlug string // restrict extraction to one guest
}

// StepResult is the outcome of one stage.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// StepNames lists the stages in execution order.
var StepNames = []string{
	"collect", "guests", "picks", "boxsets", "backfill",
	"extract", "enrich", "overrides", "validate",
}

func (p *Pipeline) steps() map[string]func(context.Context) (string, error) {
	return map[string]func(context.Context) (string, error){
		"collect":   p.stepCollect,
		"guests":    p.stepGuests,
		"picks":     p.stepPicks,
		"boxsets":   p.stepBoxSets,
		"backfill":  p.stepBackfill,
		"extract":   p.stepExtract,
		"enrich":    p.stepEnrich,
		"overrides": p.stepOverrides,
		"validate":  p.stepValidate,
	}
}

// Run executes every stage in order. A stage error is an integrity failure:
// the run stops there and later stages do not see half-written state.
func (p *Pipeline) Run(ctx context.Context) []StepResult {
	steps := p.steps()
	var results []StepResult
	for _, name := range StepNames {
		summary, err := steps[name](ctx)
		results = append(results, StepResult{Name: name, Summary: summary, Err: err})
		if err != nil {
			log.Printf("step %s failed: %v", name, err)
			break
		}
		log.Printf("step %s: %s", name, summary)
	}
	return results
}

// RunStep executes a single stage by name.
func (p *Pipeline) RunStep(ctx context.Context, name string) StepResult {
	fn, ok := p.steps()[name]
	if !ok {
		return StepResult{Name: name, Err: fmt.Errorf("unknown step %q", name)}
	}
	summary, err := fn(ctx)
	return StepResult{Name: name, Summary: summary, Err: err}
}

// Summary renders a run's results as a markdown change summary.
func Summary(results []StepResult, start time.Time) string {
	steps := make([]report.Step, len(results))
	for i, r := range results {
		steps[i] = report.Step{Name: r.Name, Summary: r.Summary, Err: r.Err}
	}
	return report.RunSummary(steps, start)
}

func saveStep[T any](p *Pipeline, path string, records []T) error {
	if p.DryRun {
		return nil
	}
	return store.Save(path, records)
}

func (p *Pipeline) nameThreshold() int {
	if p.Config.Matching.NameThreshold > 0 {
		return p.Config.Matching.NameThreshold
	}
	return 80
}

// Source-file locations inside the data directory. The HTML files are
// saved pages dropped in by hand or by a fetch script; the JSON files are
// snapshots the collect stage writes for the stages after it.

func (p *Pipeline) episodesFile() string {
	return filepath.Join(p.Config.SourcesDir(), "episodes.json")
}
func (p *Pipeline) closetGuestsFile() string {
	return filepath.Join(p.Config.SourcesDir(), "closet_guests.json")
}
func (p *Pipeline) listGuestsFile() string {
	return filepath.Join(p.Config.SourcesDir(), "list_guests.json")
}
func (p *Pipeline) guestPagesDir() string {
	return filepath.Join(p.Config.SourcesDir(), "pages")
}
func (p *Pipeline) spineListPage() string {
	return filepath.Join(p.Config.SourcesDir(), "spine_list.html")
}
func (p *Pipeline) closetIndexPage() string {
	return filepath.Join(p.Config.SourcesDir(), "closet_index.html")
}

func (p *Pipeline) stepCollect(ctx context.Context) (string, error) {
	var parts []string

	episodes, fetched, err := p.fetchEpisodes()
	if err != nil {
		// A dead feed should not block the local stages.
		log.Printf("uploads feed fetch failed: %v", err)
		parts = append(parts, "feed unavailable")
	} else if !fetched {
		parts = append(parts, "feed not configured")
	} else {
		doc, err := overrides.Load(p.Config.OverrideFile())
		if err != nil {
			return "", err
		}
		var kept []collect.Episode
		for _, e := range episodes {
			if doc.Excluded(e.VideoID) || !guests.IsEpisodeTitle(e.Title) {
				continue
			}
			kept = append(kept, e)
		}
		if err := saveStep(p, p.episodesFile(), kept); err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%d episodes", len(kept)))
	}

	if f, err := os.Open(p.spineListPage()); err == nil {
		films, perr := collect.ParseSpineList(f)
		f.Close()
		if perr != nil {
			return "", fmt.Errorf("parsing spine list: %w", perr)
		}
		cat, err := store.Load[model.Film](p.Config.CatalogFile())
		if err != nil {
			return "", err
		}
		merged, mr := catalog.Merge(cat, films)
		if err := saveStep(p, p.Config.CatalogFile(), merged); err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("catalog +%d/~%d", mr.Added, mr.Updated))
	}

	if f, err := os.Open(p.closetIndexPage()); err == nil {
		collections, perr := collect.ParseClosetIndex(f, "https://www.criterion.com")
		f.Close()
		if perr != nil {
			return "", fmt.Errorf("parsing closet index: %w", perr)
		}
		records := make([]model.Guest, 0, len(collections))
		for _, c := range collections {
			url := c.URL
			records = append(records, model.Guest{
				Name:             c.Name,
				Slug:             c.Slug,
				CriterionPageURL: &url,
			})
		}
		if err := saveStep(p, p.closetGuestsFile(), records); err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%d closet collections", len(collections)))
	}

	if len(parts) == 0 {
		return "nothing to collect", nil
	}
	return strings.Join(parts, ", "), nil
}

func (p *Pipeline) fetchEpisodes() ([]collect.Episode, bool, error) {
	feedURL := p.Config.Sources.UploadsFeedURL
	if p.FetchEpisodes != nil {
		eps, err := p.FetchEpisodes(feedURL)
		return eps, true, err
	}
	if feedURL == "" {
		return nil, false, nil
	}
	eps, err := collect.Episodes(feedURL, nil)
	return eps, true, err
}

func (p *Pipeline) stepGuests(ctx context.Context) (string, error) {
	existing, err := store.Load[model.Guest](p.Config.GuestsFile())
	if err != nil {
		return "", err
	}
	listSource, err := store.Load[model.Guest](p.listGuestsFile())
	if err != nil {
		return "", err
	}
	catalogSource, err := store.Load[model.Guest](p.closetGuestsFile())
	if err != nil {
		return "", err
	}

	merged, mr := guests.Merge(existing, listSource, catalogSource)

	episodes, err := store.Load[collect.Episode](p.episodesFile())
	if err != nil {
		return "", err
	}
	videos := make([]guests.EpisodeVideo, len(episodes))
	for i, e := range episodes {
		videos[i] = guests.EpisodeVideo{VideoID: e.VideoID, Title: e.Title, Published: e.Published}
	}
	match := guests.MatchVideos(merged, videos, p.nameThreshold())

	// Saved guest pages fill video linkage title matching could not: their
	// embedded players carry the ID directly, including Vimeo-only visits
	// the uploads feed never lists.
	fromPages := 0
	for i := range merged {
		g := &merged[i]
		if g.YouTubeVideoID != nil || g.VimeoVideoID != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.guestPagesDir(), g.Slug+".html"))
		if err != nil {
			continue
		}
		ids := collect.ParseVideoIDs(string(data))
		switch {
		case ids.YouTube != "":
			vid := ids.YouTube
			url := fmt.Sprintf("https://www.youtube.com/watch?v=%s", vid)
			g.YouTubeVideoID = &vid
			g.YouTubeVideoURL = &url
			fromPages++
		case ids.Vimeo != "":
			vid := ids.Vimeo
			g.VimeoVideoID = &vid
			fromPages++
		}
	}

	// Video matching is an automated pass, so corrections re-apply here.
	merged, _, err = p.applyCorrections(merged)
	if err != nil {
		return "", err
	}
	if err := saveStep(p, p.Config.GuestsFile(), merged); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d added, %d updated, %d videos matched, %d from saved pages, %d unmatched",
		mr.Added, mr.Updated, match.Matched, fromPages, len(match.Unmatched)), nil
}

func (p *Pipeline) stepPicks(ctx context.Context) (string, error) {
	raw, err := store.Load[model.RawPick](p.Config.RawPicksFile())
	if err != nil {
		return "", err
	}
	cat, err := store.Load[model.Film](p.Config.CatalogFile())
	if err != nil {
		return "", err
	}

	raw, _ = picks.DedupRaw(raw)
	resolver := picks.NewResolver(cat, p.Config.Matching.FuzzyFloor)
	rr := resolver.Resolve(raw)

	existing, err := store.Load[model.Pick](p.Config.PicksFile())
	if err != nil {
		return "", err
	}
	merged, added := picks.Merge(existing, picks.Build(raw))
	merged, _ = picks.Dedup(merged)

	guestList, err := p.applyCorrectionsWith(merged, raw)
	if err != nil {
		return "", err
	}
	if err := saveStep(p, p.Config.RawPicksFile(), raw); err != nil {
		return "", err
	}
	if err := saveStep(p, p.Config.PicksFile(), merged); err != nil {
		return "", err
	}
	if err := saveStep(p, p.Config.GuestsFile(), guestList); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d raw picks: %d exact, %d fuzzy, %d backfill; %d new",
		len(raw), rr.Exact, rr.Fuzzy, rr.Unresolved, added), nil
}

func (p *Pipeline) stepBoxSets(ctx context.Context) (string, error) {
	pk, err := store.Load[model.Pick](p.Config.PicksFile())
	if err != nil {
		return "", err
	}
	cat, err := store.Load[model.Film](p.Config.CatalogFile())
	if err != nil {
		return "", err
	}
	reg, err := picks.LoadRegistry(p.Config.BoxSetFile())
	if err != nil {
		return "", err
	}

	grouped, gr := picks.GroupBoxSets(pk, reg, cat)
	if err := saveStep(p, p.Config.PicksFile(), grouped); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d picks grouped into %d sets, %d tagged standalone",
		gr.Grouped, gr.Sets, gr.Tagged), nil
}

func (p *Pipeline) stepBackfill(ctx context.Context) (string, error) {
	cat, err := store.Load[model.Film](p.Config.CatalogFile())
	if err != nil {
		return "", err
	}
	pk, err := store.Load[model.Pick](p.Config.PicksFile())
	if err != nil {
		return "", err
	}
	raw, err := store.Load[model.RawPick](p.Config.RawPicksFile())
	if err != nil {
		return "", err
	}

	cat, br := catalog.Backfill(cat, pk, raw)
	catalog.ApplyPickCounts(cat, pk)
	if err := saveStep(p, p.Config.CatalogFile(), cat); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d entries synthesized, %d urls propagated", br.Added, br.Propagated), nil
}

func (p *Pipeline) stepExtract(ctx context.Context) (string, error) {
	if p.Provider == nil || !p.Provider.IsConfigured() {
		return "skipped: no extraction provider configured", nil
	}

	guestList, err := store.Load[model.Guest](p.Config.GuestsFile())
	if err != nil {
		return "", err
	}
	if p.GuestSlug != "" {
		var one []model.Guest
		for _, g := range guestList {
			if g.Slug == p.GuestSlug {
				one = append(one, g)
			}
		}
		if len(one) == 0 {
			return "", fmt.Errorf("no guest with slug %q", p.GuestSlug)
		}
		guestList = one
	}
	pk, err := store.Load[model.Pick](p.Config.PicksFile())
	if err != nil {
		return "", err
	}
	transcripts, err := loadTranscripts(p.Config.TranscriptsDir())
	if err != nil {
		return "", err
	}

	cp, err := checkpoint.Open(p.Config.CheckpointDB())
	if err != nil {
		return "", err
	}
	defer cp.Close()

	ex := p.Config.Extraction
	merger := &extract.Merger{
		Provider:    p.Provider,
		Checkpoints: cp,
		Save: func(ps []model.Pick) error {
			return store.Save(p.Config.PicksFile(), ps)
		},
		MaxQuoteLen:   ex.MaxQuoteLen,
		BatchSize:     ex.BatchSize,
		Interval:      time.Duration(ex.RequestIntervalSec) * time.Second,
		Workers:       ex.Workers,
		NameThreshold: p.nameThreshold(),
		Limit:         p.Limit,
	}

	if p.DryRun {
		n, err := merger.Pending(guestList, pk, transcripts, p.Force)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("would extract %d visits", n), nil
	}

	r, err := merger.Run(ctx, guestList, pk, transcripts, p.Force)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d visits processed, %d skipped, %d failed",
		r.Processed, r.Skipped, r.Failed), nil
}

func (p *Pipeline) stepEnrich(ctx context.Context) (string, error) {
	if p.Client == nil {
		return "skipped: no enrichment client configured", nil
	}

	cat, err := store.Load[model.Film](p.Config.CatalogFile())
	if err != nil {
		return "", err
	}
	guestList, err := store.Load[model.Guest](p.Config.GuestsFile())
	if err != nil {
		return "", err
	}

	cp, err := checkpoint.Open(p.Config.CheckpointDB())
	if err != nil {
		return "", err
	}
	defer cp.Close()

	enricher := &enrich.Enricher{
		Client:      p.Client,
		Checkpoints: cp,
		Interval:    time.Duration(p.Config.TMDB.RequestIntervalSec) * time.Second,
	}

	if p.DryRun {
		nf, err := enricher.PendingFilms(cat, p.Force)
		if err != nil {
			return "", err
		}
		ng, err := enricher.PendingGuests(guestList, p.Force)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("would enrich %d films, %d guests", nf, ng), nil
	}

	fr, err := enricher.Films(ctx, cat, p.Force)
	if err != nil {
		return "", err
	}
	if err := store.Save(p.Config.CatalogFile(), cat); err != nil {
		return "", err
	}
	gr, err := enricher.Guests(ctx, guestList, p.Force)
	if err != nil {
		return "", err
	}
	if err := store.Save(p.Config.GuestsFile(), guestList); err != nil {
		return "", err
	}
	return fmt.Sprintf("films: %d enriched, %d no match; guests: %d enriched, %d no match",
		fr.Enriched, fr.NoMatch, gr.Enriched, gr.NoMatch), nil
}

func (p *Pipeline) stepOverrides(ctx context.Context) (string, error) {
	guestList, err := store.Load[model.Guest](p.Config.GuestsFile())
	if err != nil {
		return "", err
	}
	pk, err := store.Load[model.Pick](p.Config.PicksFile())
	if err != nil {
		return "", err
	}
	raw, err := store.Load[model.RawPick](p.Config.RawPicksFile())
	if err != nil {
		return "", err
	}
	doc, err := overrides.Load(p.Config.OverrideFile())
	if err != nil {
		return "", err
	}

	guestList, ar := overrides.Apply(guestList, pk, raw, doc)
	guests.RecomputePickCounts(guestList, pk, raw)

	cat, err := store.Load[model.Film](p.Config.CatalogFile())
	if err != nil {
		return "", err
	}
	catalog.ApplyPickCounts(cat, pk)

	if err := saveStep(p, p.Config.GuestsFile(), guestList); err != nil {
		return "", err
	}
	if err := saveStep(p, p.Config.PicksFile(), pk); err != nil {
		return "", err
	}
	if err := saveStep(p, p.Config.RawPicksFile(), raw); err != nil {
		return "", err
	}
	if err := saveStep(p, p.Config.CatalogFile(), cat); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d name fixes, %d repeat merges, %d video fixes, %d picks reassigned",
		ar.NameFixes, ar.RepeatMerges, ar.WrongVideoFixes, ar.PicksReassigned), nil
}

func (p *Pipeline) stepValidate(ctx context.Context) (string, error) {
	cat, err := store.Load[model.Film](p.Config.CatalogFile())
	if err != nil {
		return "", err
	}
	guestList, err := store.Load[model.Guest](p.Config.GuestsFile())
	if err != nil {
		return "", err
	}
	pk, err := store.Load[model.Pick](p.Config.PicksFile())
	if err != nil {
		return "", err
	}

	rep := validate.Run(cat, guestList, pk)
	if !p.DryRun {
		if err := writeReport(p.Config.ValidationDir(), rep); err != nil {
			return "", err
		}
	}
	if rep.Clean() {
		return "clean", nil
	}
	return fmt.Sprintf("%d findings", len(rep.Findings)), nil
}

func writeReport(dir string, rep *validate.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating validation directory: %w", err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "report.json"), data, 0o644); err != nil {
		return fmt.Errorf("writing validation report: %w", err)
	}
	md := report.Validation(rep)
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(md), 0o644); err != nil {
		return fmt.Errorf("writing validation report: %w", err)
	}
	return nil
}

// applyCorrections loads picks and raw picks itself; applyCorrectionsWith
// takes the in-memory copies a stage is already working on.
func (p *Pipeline) applyCorrections(guestList []model.Guest) ([]model.Guest, *overrides.ApplyResult, error) {
	pk, err := store.Load[model.Pick](p.Config.PicksFile())
	if err != nil {
		return nil, nil, err
	}
	raw, err := store.Load[model.RawPick](p.Config.RawPicksFile())
	if err != nil {
		return nil, nil, err
	}
	doc, err := overrides.Load(p.Config.OverrideFile())
	if err != nil {
		return nil, nil, err
	}
	fixed, ar := overrides.Apply(guestList, pk, raw, doc)
	if err := saveStep(p, p.Config.PicksFile(), pk); err != nil {
		return nil, nil, err
	}
	if err := saveStep(p, p.Config.RawPicksFile(), raw); err != nil {
		return nil, nil, err
	}
	return fixed, ar, nil
}

func (p *Pipeline) applyCorrectionsWith(pk []model.Pick, raw []model.RawPick) ([]model.Guest, error) {
	guestList, err := store.Load[model.Guest](p.Config.GuestsFile())
	if err != nil {
		return nil, err
	}
	doc, err := overrides.Load(p.Config.OverrideFile())
	if err != nil {
		return nil, err
	}
	fixed, _ := overrides.Apply(guestList, pk, raw, doc)
	return fixed, nil
}

// loadTranscripts reads every <video_id>.json in dir. A missing directory
// is an empty set.
func loadTranscripts(dir string) (map[string]model.Transcript, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string]model.Transcript{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading transcripts directory: %w", err)
	}

	transcripts := make(map[string]model.Transcript)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		var t model.Transcript
		if err := store.LoadRaw(filepath.Join(dir, name), &t); err != nil {
			return nil, fmt.Errorf("loading transcript %s: %w", name, err)
		}
		transcripts[strings.TrimSuffix(name, ".json")] = t
	}
	return transcripts, nil
}
