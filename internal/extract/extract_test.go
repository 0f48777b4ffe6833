package extract

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"closetpicks/internal/checkpoint"
	"closetpicks/internal/model"
)

type mockProvider struct {
	quotes   []Quote
	err      error
	calls    int
	requests []Request
}

func (m *mockProvider) Extract(_ context.Context, req Request) ([]Quote, error) {
	m.calls++
	m.requests = append(m.requests, req)
	return m.quotes, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

func strp(s string) *string { return &s }

func testTranscript() model.Transcript {
	return model.Transcript{
		{Start: 0, Text: "hi I'm here in the closet"},
		{Start: 42, Text: "oh Parasite, this movie destroyed me"},
		{Start: 300, Text: "thanks for having me"},
	}
}

func testMerger(t *testing.T, p Provider, saved *[][]model.Pick) *Merger {
	t.Helper()
	cp, err := checkpoint.Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("checkpoint.Open: %v", err)
	}
	t.Cleanup(func() { cp.Close() })
	return &Merger{
		Provider:    p,
		Checkpoints: cp,
		Save: func(picks []model.Pick) error {
			cp := make([]model.Pick, len(picks))
			copy(cp, picks)
			*saved = append(*saved, cp)
			return nil
		},
	}
}

func testData() ([]model.Guest, []model.Pick, map[string]model.Transcript) {
	guests := []model.Guest{{Name: "Bong Joon Ho", Slug: "bong-joon-ho", YouTubeVideoID: strp("vid1")}}
	picks := []model.Pick{
		{GuestSlug: "bong-joon-ho", FilmID: "parasite-2019", FilmTitle: "Parasite", VisitIndex: 1,
			ExtractionConfidence: model.ConfidenceNone},
	}
	transcripts := map[string]model.Transcript{"vid1": testTranscript()}
	return guests, picks, transcripts
}

func TestRunMergesQuoteInPlace(t *testing.T) {
	var saved [][]model.Pick
	p := &mockProvider{quotes: []Quote{
		{FilmTitle: "Parasite", StartTimestamp: 42, Quote: "this movie destroyed me", Confidence: "high"},
	}}
	m := testMerger(t, p, &saved)
	guests, picks, transcripts := testData()

	r, err := m.Run(context.Background(), guests, picks, transcripts, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Processed != 1 {
		t.Fatalf("result = %+v", r)
	}
	if len(picks) != 1 {
		t.Fatalf("pick count changed: %d", len(picks))
	}
	got := picks[0]
	if got.Quote != "this movie destroyed me" || got.ExtractionConfidence != model.ConfidenceHigh {
		t.Errorf("pick = %+v", got)
	}
	if got.StartTimestamp == nil || *got.StartTimestamp != 42 {
		t.Errorf("timestamp = %v", got.StartTimestamp)
	}
	if got.YouTubeTimestampURL != "https://www.youtube.com/watch?v=vid1&t=42" {
		t.Errorf("timestamp URL = %q", got.YouTubeTimestampURL)
	}
	if len(saved) != 1 {
		t.Errorf("snapshot saved %d times", len(saved))
	}

	done, err := m.Checkpoints.IsComplete(Stage, "bong-joon-ho/1")
	if err != nil || !done {
		t.Errorf("checkpoint not written: done=%v err=%v", done, err)
	}
}

func TestRunSkipsCheckpointedVisits(t *testing.T) {
	var saved [][]model.Pick
	p := &mockProvider{quotes: []Quote{{FilmTitle: "Parasite", Confidence: "high", Quote: "q"}}}
	m := testMerger(t, p, &saved)
	guests, picks, transcripts := testData()

	if _, err := m.Run(context.Background(), guests, picks, transcripts, false); err != nil {
		t.Fatal(err)
	}
	r, err := m.Run(context.Background(), guests, picks, transcripts, false)
	if err != nil {
		t.Fatal(err)
	}
	if r.Skipped != 1 || p.calls != 1 {
		t.Errorf("skipped=%d calls=%d", r.Skipped, p.calls)
	}

	// force repeats the call.
	r, err = m.Run(context.Background(), guests, picks, transcripts, true)
	if err != nil {
		t.Fatal(err)
	}
	if r.Processed != 1 || p.calls != 2 {
		t.Errorf("force: processed=%d calls=%d", r.Processed, p.calls)
	}
}

func TestRunProviderFailureLeavesPickAndCheckpointAlone(t *testing.T) {
	var saved [][]model.Pick
	p := &mockProvider{err: errors.New("rate limited")}
	m := testMerger(t, p, &saved)
	guests, picks, transcripts := testData()

	r, err := m.Run(context.Background(), guests, picks, transcripts, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Failed != 1 {
		t.Fatalf("result = %+v", r)
	}
	if picks[0].Quote != "" || picks[0].ExtractionConfidence != model.ConfidenceNone {
		t.Errorf("failed pick mutated: %+v", picks[0])
	}
	if len(saved) != 0 {
		t.Error("snapshot saved despite failure")
	}
	done, _ := m.Checkpoints.IsComplete(Stage, "bong-joon-ho/1")
	if done {
		t.Error("failed visit checkpointed")
	}
}

type providerFunc func(Request) ([]Quote, error)

func (f providerFunc) Extract(_ context.Context, req Request) ([]Quote, error) { return f(req) }
func (f providerFunc) IsConfigured() bool                                      { return true }

func TestRunCommitsVisitBeforeNextProviderCall(t *testing.T) {
	var saved [][]model.Pick
	var firstDone []bool

	// Observe, at each provider call, whether the first visit is already
	// checkpointed. An interrupt mid-run must never lose finished visits.
	m := testMerger(t, nil, &saved)
	m.Provider = providerFunc(func(req Request) ([]Quote, error) {
		done, err := m.Checkpoints.IsComplete(Stage, "bong-joon-ho/1")
		if err != nil {
			return nil, err
		}
		firstDone = append(firstDone, done)
		return nil, nil
	})

	guests := []model.Guest{
		{Name: "Bong Joon Ho", Slug: "bong-joon-ho", YouTubeVideoID: strp("vid1")},
		{Name: "Greta Gerwig", Slug: "greta-gerwig", YouTubeVideoID: strp("vid2")},
	}
	picks := []model.Pick{
		{GuestSlug: "bong-joon-ho", FilmID: "parasite-2019", FilmTitle: "Parasite", VisitIndex: 1},
		{GuestSlug: "greta-gerwig", FilmID: "barry-lyndon-1975", FilmTitle: "Barry Lyndon", VisitIndex: 1},
	}
	transcripts := map[string]model.Transcript{
		"vid1": testTranscript(),
		"vid2": testTranscript(),
	}

	r, err := m.Run(context.Background(), guests, picks, transcripts, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Processed != 2 {
		t.Fatalf("result = %+v", r)
	}
	if len(firstDone) != 2 {
		t.Fatalf("provider called %d times", len(firstDone))
	}
	if firstDone[0] {
		t.Error("first visit checkpointed before its own call")
	}
	if !firstDone[1] {
		t.Error("first visit not committed before the second provider call")
	}
	if len(saved) != 2 {
		t.Errorf("snapshot saved %d times, want one per visit", len(saved))
	}
}

func TestRunDropsQuoteForUnknownFilm(t *testing.T) {
	var saved [][]model.Pick
	p := &mockProvider{quotes: []Quote{
		{FilmTitle: "Oldboy", StartTimestamp: 42, Quote: "not one of the picks", Confidence: "high"},
	}}
	m := testMerger(t, p, &saved)
	guests, picks, transcripts := testData()

	if _, err := m.Run(context.Background(), guests, picks, transcripts, false); err != nil {
		t.Fatal(err)
	}
	if picks[0].Quote != "" {
		t.Errorf("unknown-film quote merged: %+v", picks[0])
	}
}

func TestRunMatchesMisspelledTitle(t *testing.T) {
	var saved [][]model.Pick
	p := &mockProvider{quotes: []Quote{
		{FilmTitle: "Parasyte", StartTimestamp: 42, Quote: "q", Confidence: "medium"},
	}}
	m := testMerger(t, p, &saved)
	guests, picks, transcripts := testData()

	if _, err := m.Run(context.Background(), guests, picks, transcripts, false); err != nil {
		t.Fatal(err)
	}
	if picks[0].Quote != "q" || picks[0].ExtractionConfidence != model.ConfidenceMedium {
		t.Errorf("fuzzy title not matched: %+v", picks[0])
	}
}

func TestRunDiscardsOutOfBoundsTimestamp(t *testing.T) {
	var saved [][]model.Pick
	p := &mockProvider{quotes: []Quote{
		{FilmTitle: "Parasite", StartTimestamp: 9000, Quote: "q", Confidence: "high"},
	}}
	m := testMerger(t, p, &saved)
	guests, picks, transcripts := testData()

	if _, err := m.Run(context.Background(), guests, picks, transcripts, false); err != nil {
		t.Fatal(err)
	}
	got := picks[0]
	if got.StartTimestamp != nil || got.YouTubeTimestampURL != "" {
		t.Errorf("out-of-bounds timestamp kept: %+v", got)
	}
	if got.ExtractionConfidence != model.ConfidenceMedium {
		t.Errorf("confidence not downgraded: %q", got.ExtractionConfidence)
	}
}

func TestRunTruncatesLongQuotes(t *testing.T) {
	var saved [][]model.Pick
	long := strings.Repeat("a", 600)
	p := &mockProvider{quotes: []Quote{
		{FilmTitle: "Parasite", StartTimestamp: 42, Quote: long, Confidence: "high"},
	}}
	m := testMerger(t, p, &saved)
	guests, picks, transcripts := testData()

	if _, err := m.Run(context.Background(), guests, picks, transcripts, false); err != nil {
		t.Fatal(err)
	}
	if len(picks[0].Quote) != 500 {
		t.Errorf("quote length = %d", len(picks[0].Quote))
	}
}

func TestRunBatchesLargePickLists(t *testing.T) {
	var saved [][]model.Pick
	p := &mockProvider{quotes: []Quote{}}
	m := testMerger(t, p, &saved)
	m.BatchSize = 10

	guests, _, transcripts := testData()
	var picks []model.Pick
	for i := 0; i < 25; i++ {
		picks = append(picks, model.Pick{
			GuestSlug: "bong-joon-ho", FilmID: slugN(i), FilmTitle: slugN(i), VisitIndex: 1,
			ExtractionConfidence: model.ConfidenceNone,
		})
	}

	if _, err := m.Run(context.Background(), guests, picks, transcripts, false); err != nil {
		t.Fatal(err)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3 batches", p.calls)
	}
	if len(p.requests[0].FilmTitles) != 10 || len(p.requests[2].FilmTitles) != 5 {
		t.Errorf("batch sizes = %d, %d, %d",
			len(p.requests[0].FilmTitles), len(p.requests[1].FilmTitles), len(p.requests[2].FilmTitles))
	}
}

func slugN(i int) string {
	return "film-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
}

func TestParseQuotesStripsFences(t *testing.T) {
	text := "```json\n[{\"film_title\": \"Parasite\", \"start_timestamp\": 42, \"quote\": \"q\", \"confidence\": \"high\"}]\n```"
	quotes, err := ParseQuotes(text)
	if err != nil {
		t.Fatalf("ParseQuotes: %v", err)
	}
	if len(quotes) != 1 || quotes[0].FilmTitle != "Parasite" {
		t.Errorf("quotes = %+v", quotes)
	}
}

func TestParseQuotesRejectsMalformed(t *testing.T) {
	if _, err := ParseQuotes("I couldn't find any quotes, sorry!"); err == nil {
		t.Fatal("malformed output accepted")
	}
}
