// Package report renders pipeline outcomes as markdown: the validation
// report written after each run, and the change summary for a run itself.
// Output is plain markdown so it can be committed alongside the snapshots
// or rendered to HTML by the local viewer.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"closetpicks/internal/validate"
)

// Step is one pipeline stage outcome included in a run summary.
type Step struct {
	Name    string
	Summary string
	Err     error
}

// RunSummary renders the change summary for one pipeline run.
func RunSummary(steps []Step, generatedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Pipeline run\n\nStarted %s\n\n", generatedAt.UTC().Format(time.RFC3339))

	failed := 0
	for _, s := range steps {
		if s.Err != nil {
			failed++
			fmt.Fprintf(&b, "- **%s**: failed: %v\n", s.Name, s.Err)
			continue
		}
		fmt.Fprintf(&b, "- **%s**: %s\n", s.Name, s.Summary)
	}

	b.WriteString("\n")
	if failed > 0 {
		fmt.Fprintf(&b, "%d of %d steps failed; later steps did not run.\n", failed, len(steps))
	} else {
		fmt.Fprintf(&b, "All %d steps completed.\n", len(steps))
	}
	return b.String()
}

var kindTitles = map[string]string{
	"unknown_guest":    "Picks referencing unknown guests",
	"unknown_film":     "Picks referencing unknown films",
	"duplicate_pick":   "Duplicate picks",
	"empty_box_set":    "Box sets with no constituent films",
	"implausible_year": "Implausible years",
	"malformed_url":    "Malformed URLs",
	"duplicate_spine":  "Duplicate spine numbers",
	"missing_slug":     "Records missing a slug",
	"missing_name":     "Guests missing a name",
	"missing_title":    "Films missing a title",
}

func kindTitle(kind string) string {
	if t, ok := kindTitles[kind]; ok {
		return t
	}
	return kind
}

// Validation renders a validation report as markdown.
func Validation(rep *validate.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Validation report\n\nGenerated %s\n\n", rep.GeneratedAt.UTC().Format(time.RFC3339))

	if rep.Clean() {
		b.WriteString("No findings.\n")
	} else {
		fmt.Fprintf(&b, "%d findings in %d categories.\n", len(rep.Findings), len(rep.Counts))
		for _, kind := range sortedKinds(rep.Counts) {
			fmt.Fprintf(&b, "\n## %s (%d)\n\n", kindTitle(kind), rep.Counts[kind])
			for _, f := range rep.Findings {
				if f.Kind != kind {
					continue
				}
				if f.Detail != "" {
					fmt.Fprintf(&b, "- `%s`: %s\n", f.Key, f.Detail)
				} else {
					fmt.Fprintf(&b, "- `%s`\n", f.Key)
				}
			}
		}
	}

	b.WriteString("\n## Coverage\n\n")
	writeStats(&b, rep.Stats)
	return b.String()
}

func writeStats(b *strings.Builder, st validate.Stats) {
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Films | %d |\n", st.Films)
	fmt.Fprintf(b, "| Guests | %d |\n", st.Guests)
	fmt.Fprintf(b, "| Picks | %d |\n", st.Picks)
	fmt.Fprintf(b, "| Films with poster | %s |\n", ratio(st.FilmsWithPoster, st.Films))
	fmt.Fprintf(b, "| Films with genres | %s |\n", ratio(st.FilmsWithGenres, st.Films))
	fmt.Fprintf(b, "| Films with year | %s |\n", ratio(st.FilmsWithYear, st.Films))
	fmt.Fprintf(b, "| Guests with video | %s |\n", ratio(st.GuestsWithVideo, st.Guests))
	fmt.Fprintf(b, "| Guests with photo | %s |\n", ratio(st.GuestsWithPhoto, st.Guests))
	fmt.Fprintf(b, "| Picks with quote | %s |\n", ratio(st.PicksWithQuote, st.Picks))
	fmt.Fprintf(b, "| Picks with spine | %s |\n", ratio(st.PicksWithSpine, st.Picks))
	fmt.Fprintf(b, "| Box-set picks | %d |\n", st.BoxSetPicks)
	fmt.Fprintf(b, "| Confidence high / medium / low / none | %d / %d / %d / %d |\n",
		st.ConfidenceHigh, st.ConfidenceMedium, st.ConfidenceLow, st.ConfidenceNone)

	if len(st.MatchMethodCounts) > 0 {
		b.WriteString("\n### Match methods\n\n")
		for _, method := range sortedKinds(st.MatchMethodCounts) {
			fmt.Fprintf(b, "- %s: %d\n", method, st.MatchMethodCounts[method])
		}
	}
}

func ratio(n, total int) string {
	if total == 0 {
		return "0/0"
	}
	return fmt.Sprintf("%d/%d (%d%%)", n, total, n*100/total)
}

func sortedKinds(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
