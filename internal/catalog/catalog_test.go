package catalog

import (
	"testing"

	"closetpicks/internal/model"
)

func intp(v int) *int { return &v }

func TestMergeAppendsAndFills(t *testing.T) {
	existing := []model.Film{
		{FilmID: "parasite-2019", Title: "Parasite", Year: intp(2019)},
	}
	scraped := []model.Film{
		{FilmID: "parasite-2019", Title: "Parasite", Year: intp(2019), Director: "Bong Joon Ho", SpineNumber: intp(1054)},
		{Title: "My Winnipeg", Year: intp(2007)},
	}

	merged, r := Merge(existing, scraped)
	if r.Added != 1 || r.Updated != 1 {
		t.Fatalf("added=%d updated=%d", r.Added, r.Updated)
	}
	if merged[0].Director != "Bong Joon Ho" || merged[0].SpineNumber == nil {
		t.Errorf("existing entry not filled: %+v", merged[0])
	}
	if merged[1].FilmID != "my-winnipeg-2007" {
		t.Errorf("new entry film ID = %q", merged[1].FilmID)
	}
}

func TestMergeNeverOverwrites(t *testing.T) {
	existing := []model.Film{
		{FilmID: "solaris-1972", Title: "Solaris", Director: "Andrei Tarkovsky"},
	}
	scraped := []model.Film{
		{FilmID: "solaris-1972", Title: "Solaris", Director: "A. Tarkovsky"},
	}

	merged, _ := Merge(existing, scraped)
	if merged[0].Director != "Andrei Tarkovsky" {
		t.Errorf("non-empty field overwritten: %q", merged[0].Director)
	}
}

func TestBackfillCreatesSyntheticEntries(t *testing.T) {
	cat := []model.Film{{FilmID: "parasite-2019", Title: "Parasite"}}
	picks := []model.Pick{
		{GuestSlug: "x", FilmID: "parasite-2019", FilmTitle: "Parasite", VisitIndex: 1},
		{GuestSlug: "x", FilmID: "funeral-parade-of-roses-1969", FilmTitle: "Funeral Parade of Roses", FilmYear: intp(1969), VisitIndex: 1},
	}
	raw := []model.RawPick{
		{GuestSlug: "x", FilmID: "funeral-parade-of-roses-1969", FilmTitle: "Funeral Parade of Roses",
			FilmYear: intp(1969), CriterionFilmURL: "https://www.criterion.com/films/29347-funeral-parade-of-roses"},
	}

	out, r := Backfill(cat, picks, raw)
	if r.Added != 1 {
		t.Fatalf("added = %d", r.Added)
	}

	var synthetic *model.Film
	for i := range out {
		if out[i].FilmID == "funeral-parade-of-roses-1969" {
			synthetic = &out[i]
		}
	}
	if synthetic == nil {
		t.Fatal("synthetic entry missing")
	}
	if synthetic.SpineNumber != nil {
		t.Error("synthetic entry should have no spine number")
	}
	if synthetic.CriterionURL == "" {
		t.Error("criterion URL not propagated from raw pick")
	}

	// Every non-box-set pick must now resolve.
	known := make(map[string]bool)
	for _, f := range out {
		known[f.FilmID] = true
	}
	for _, p := range picks {
		if !p.IsBoxSet && !known[p.FilmID] {
			t.Errorf("pick film %q unresolved after backfill", p.FilmID)
		}
	}
}

func TestBackfillIsIdempotent(t *testing.T) {
	picks := []model.Pick{
		{GuestSlug: "x", FilmID: "limite-1931", FilmTitle: "Limite", VisitIndex: 1},
	}

	out, r1 := Backfill(nil, picks, nil)
	if r1.Added != 1 {
		t.Fatalf("first pass added = %d", r1.Added)
	}
	out2, r2 := Backfill(out, picks, nil)
	if r2.Added != 0 {
		t.Errorf("second pass added = %d, want 0", r2.Added)
	}
	if len(out2) != len(out) {
		t.Errorf("duplicate synthetic entries: %d -> %d", len(out), len(out2))
	}
}

func TestBackfillSkipsBoxSetAggregates(t *testing.T) {
	picks := []model.Pick{
		{GuestSlug: "x", FilmID: "ingmar-bergmans-cinema", FilmTitle: "Ingmar Bergman's Cinema",
			VisitIndex: 1, IsBoxSet: true, BoxSetName: "Ingmar Bergman's Cinema"},
	}
	_, r := Backfill(nil, picks, nil)
	if r.Added != 0 {
		t.Errorf("box-set aggregate should not backfill a film, added = %d", r.Added)
	}
}

func TestApplyPickCountsExcludesBoxSets(t *testing.T) {
	cat := []model.Film{
		{FilmID: "persona-1966", Title: "Persona"},
	}
	picks := []model.Pick{
		{GuestSlug: "a", FilmID: "persona-1966", VisitIndex: 1},
		{GuestSlug: "b", FilmID: "persona-1966", VisitIndex: 1},
		{GuestSlug: "c", FilmID: "ingmar-bergmans-cinema", VisitIndex: 1, IsBoxSet: true,
			BoxSetFilmTitles: []string{"Persona", "Shame"}},
	}

	ApplyPickCounts(cat, picks)
	if cat[0].PickCount != 2 {
		t.Errorf("persona pick count = %d, want 2 (box set must not count)", cat[0].PickCount)
	}
}
