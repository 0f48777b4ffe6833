package fuzzy

import "testing"

func intp(v int) *int { return &v }

func TestScoreIdentical(t *testing.T) {
	if got := Score("Parasite", "parasite"); got != 100 {
		t.Errorf("Score identical = %d, want 100", got)
	}
	if got := Score("Ted Danson", "Danson Ted"); got != 100 {
		t.Errorf("Score token order = %d, want 100", got)
	}
}

func TestScoreEmpty(t *testing.T) {
	if got := Score("", "Parasite"); got != 0 {
		t.Errorf("Score with empty input = %d, want 0", got)
	}
}

func TestMatchNameThreshold(t *testing.T) {
	if !MatchName("Guillermo del Toro", "Guillermo Del Toro", 0) {
		t.Error("case-variant name should match")
	}
	if MatchName("Bill Hader", "Barry Jenkins", 0) {
		t.Error("unrelated names should not match")
	}
}

func TestMatchTitleMisspelling(t *testing.T) {
	// Misspelled title must clear the default threshold of 85.
	if !MatchTitle("My Winipeg", intp(2007), "My Winnipeg", intp(2007), 0) {
		t.Errorf("misspelled title scored %d, expected fuzzy match", Score("My Winipeg", "My Winnipeg"))
	}
}

func TestMatchTitleYearGuard(t *testing.T) {
	// Same title, years more than one apart: remake guard kicks in.
	if MatchTitle("Nosferatu", intp(1922), "Nosferatu", intp(1979), 0) {
		t.Error("remake with distant year should not match")
	}
	if !MatchTitle("Nosferatu", intp(1922), "Nosferatu", nil, 0) {
		t.Error("unknown year should not block the match")
	}
	if !MatchTitle("Nosferatu", intp(1921), "Nosferatu", intp(1922), 0) {
		t.Error("one-year discrepancy should be tolerated")
	}
}

func TestBestTitlePrefersHigherScore(t *testing.T) {
	cands := []Candidate{
		{Title: "My Winnipeg", Year: intp(2007), Index: 0},
		{Title: "My Own Private Idaho", Year: intp(1991), Index: 1},
	}
	best, score, ok := BestTitle("My Winipeg", intp(2007), cands, 0)
	if !ok || best.Index != 0 {
		t.Fatalf("BestTitle = %+v, ok=%v", best, ok)
	}
	if score < 85 {
		t.Errorf("winning score = %d, want >= 85", score)
	}
}

func TestBestTitleTieBreaksOnExternalID(t *testing.T) {
	cands := []Candidate{
		{Title: "Solaris", Index: 0},
		{Title: "Solaris", HasExternalID: true, Index: 1},
	}
	best, _, ok := BestTitle("Solaris", nil, cands, 0)
	if !ok || best.Index != 1 {
		t.Errorf("tie should prefer the candidate with an external ID, got %+v", best)
	}
}

func TestBestTitleRespectsYearGuard(t *testing.T) {
	cands := []Candidate{{Title: "Crash", Year: intp(2004), Index: 0}}
	if _, _, ok := BestTitle("Crash", intp(1996), cands, 0); ok {
		t.Error("year-incompatible candidate should be excluded")
	}
}
