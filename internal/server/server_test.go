package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"closetpicks/internal/config"
	"closetpicks/internal/model"
	"closetpicks/internal/store"
)

func ptr(s string) *string { return &s }
func intp(n int) *int      { return &n }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Data.Dir = t.TempDir()

	films := []model.Film{
		{FilmID: "seven-samurai-1954", Title: "Seven Samurai", SpineNumber: intp(2), Year: intp(1954), Director: "Akira Kurosawa"},
		{FilmID: "parasite-2019", Title: "Parasite", Year: intp(2019), Director: "Bong Joon Ho"},
	}
	guestList := []model.Guest{
		{Name: "Bill Hader", Slug: "bill-hader", Profession: ptr("Actor, Director"), PickCount: 2},
		{Name: "Ada Lovelace", Slug: "ada-lovelace", PickCount: 0},
	}
	picks := []model.Pick{
		{GuestSlug: "bill-hader", FilmID: "seven-samurai-1954", FilmTitle: "Seven Samurai", VisitIndex: 1,
			CatalogSpine: intp(2), Quote: "It rewired my brain.", ExtractionConfidence: model.ConfidenceHigh,
			YouTubeTimestampURL: "https://www.youtube.com/watch?v=abc&t=120"},
		{GuestSlug: "bill-hader", FilmID: "parasite-2019", FilmTitle: "Parasite", VisitIndex: 1},
	}

	if err := store.Save(cfg.CatalogFile(), films); err != nil {
		t.Fatalf("saving catalog: %v", err)
	}
	if err := store.Save(cfg.GuestsFile(), guestList); err != nil {
		t.Fatalf("saving guests: %v", err)
	}
	if err := store.Save(cfg.PicksFile(), picks); err != nil {
		t.Fatalf("saving picks: %v", err)
	}
	return cfg
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexRoute(t *testing.T) {
	srv, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Bill Hader") {
		t.Error("expected guest name in index")
	}
	if !strings.Contains(body, "/guest/bill-hader") {
		t.Error("expected guest link in index")
	}
	// Guests sort by name, Ada before Bill.
	if strings.Index(body, "Ada Lovelace") > strings.Index(body, "Bill Hader") {
		t.Error("guests not sorted by name")
	}
}

func TestGuestRoute(t *testing.T) {
	srv, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/guest/bill-hader")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Seven Samurai") {
		t.Error("expected pick title in guest page")
	}
	if !strings.Contains(body, "It rewired my brain.") {
		t.Error("expected quote in guest page")
	}
	if !strings.Contains(body, "watch?v=abc&amp;t=120") {
		t.Error("expected timestamp link in guest page")
	}
}

func TestGuestRouteNotFound(t *testing.T) {
	srv, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/guest/nobody")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestFilmsRoute(t *testing.T) {
	srv, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/films")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	// Spined entries precede synthetic ones.
	if strings.Index(body, "Seven Samurai") > strings.Index(body, "Parasite") {
		t.Error("spined film should sort before spineless film")
	}
}

func TestReportRoute(t *testing.T) {
	cfg := testConfig(t)

	// Add a pick referencing an unknown guest so the report has a finding.
	picks, err := store.Load[model.Pick](cfg.PicksFile())
	if err != nil {
		t.Fatalf("loading picks: %v", err)
	}
	picks = append(picks, model.Pick{GuestSlug: "ghost", FilmID: "parasite-2019", FilmTitle: "Parasite", VisitIndex: 1})
	if err := store.Save(cfg.PicksFile(), picks); err != nil {
		t.Fatalf("saving picks: %v", err)
	}

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/report")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unknown guests") {
		t.Error("expected unknown-guest finding in rendered report")
	}
}

func TestEmptyDataDirStillServes(t *testing.T) {
	cfg := &config.Config{}
	cfg.Data.Dir = t.TempDir()

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on empty data dir, got %d", rec.Code)
	}
}
