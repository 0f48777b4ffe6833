package extract

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"closetpicks/internal/checkpoint"
	"closetpicks/internal/fuzzy"
	"closetpicks/internal/model"
)

// Stage is the checkpoint stage name for extraction.
const Stage = "extract"

// Merger runs extraction across guests and merges validated quotes into the
// pick store in place. Snapshots are saved before a visit is checkpointed,
// so a crash between the two repeats at most one provider call.
type Merger struct {
	Provider    Provider
	Checkpoints *checkpoint.Store

	// Save persists the full pick snapshot. Called after every merged
	// visit, before its checkpoint is written.
	Save func([]model.Pick) error

	MaxQuoteLen int           // truncation cap, default 500
	BatchSize   int           // picks per provider call, default 20
	Interval    time.Duration // pause between sequential calls
	Workers     int           // parallel provider calls, merge stays sequential

	NameThreshold int // fuzzy floor for matching returned titles, default 80
	Limit         int // cap on visits per run, 0 means no cap
}

// RunResult summarizes an extraction pass.
type RunResult struct {
	Processed int
	Skipped   int
	Failed    int
}

type task struct {
	key        string
	guestName  string
	videoID    string
	transcript model.Transcript
	indexes    []int    // positions in the pick slice for this guest visit
	titles     []string // candidate film titles, parallel to indexes
}

type taskResult struct {
	quotes []Quote
	err    error
}

// Run extracts quotes for every guest visit that has a video, a transcript,
// and candidate picks. Completed visits are skipped unless force is set.
// Failed visits leave their picks untouched and stay uncheckpointed.
func (m *Merger) Run(ctx context.Context, guestList []model.Guest, picks []model.Pick, transcripts map[string]model.Transcript, force bool) (*RunResult, error) {
	r := &RunResult{}

	tasks, skipped, err := m.plan(guestList, picks, transcripts, force)
	if err != nil {
		return nil, err
	}
	r.Skipped = skipped
	if len(tasks) == 0 {
		return r, nil
	}
	log.Printf("extracting quotes for %d guest visits (%d skipped)", len(tasks), skipped)

	if m.Workers > 1 {
		results := m.extractAll(ctx, tasks)
		for i, t := range tasks {
			res := results[i]
			if res.err != nil {
				log.Printf("extraction failed for %s: %v", t.key, res.err)
				r.Failed++
				continue
			}
			if err := m.commitVisit(picks, t, res.quotes, r); err != nil {
				return r, err
			}
		}
		return r, nil
	}

	// Sequentially, each visit is merged, saved, and checkpointed before
	// the next provider call, so an interrupt never repeats finished work.
	for i, t := range tasks {
		if i > 0 && m.Interval > 0 {
			time.Sleep(m.Interval)
		}
		quotes, err := m.extractTask(ctx, t)
		if err != nil {
			log.Printf("extraction failed for %s: %v", t.key, err)
			r.Failed++
			continue
		}
		if err := m.commitVisit(picks, t, quotes, r); err != nil {
			return r, err
		}
	}
	return r, nil
}

// commitVisit merges one visit's quotes, persists the snapshot, and marks
// the visit complete, in that order.
func (m *Merger) commitVisit(picks []model.Pick, t task, quotes []Quote, r *RunResult) error {
	m.mergeVisit(picks, t, quotes)
	if err := m.Save(picks); err != nil {
		return fmt.Errorf("saving picks after %s: %w", t.key, err)
	}
	meta := map[string]any{"quotes": len(quotes), "picks": len(t.indexes)}
	if err := m.Checkpoints.Complete(Stage, t.key, meta); err != nil {
		return fmt.Errorf("checkpointing %s: %w", t.key, err)
	}
	r.Processed++
	return nil
}

// plan builds the work list: one task per (guest, visit) with candidates.
func (m *Merger) plan(guestList []model.Guest, picks []model.Pick, transcripts map[string]model.Transcript, force bool) ([]task, int, error) {
	byGuestVisit := make(map[string]map[int][]int)
	for i, p := range picks {
		if p.IsBoxSet {
			continue
		}
		if byGuestVisit[p.GuestSlug] == nil {
			byGuestVisit[p.GuestSlug] = make(map[int][]int)
		}
		byGuestVisit[p.GuestSlug][p.VisitIndex] = append(byGuestVisit[p.GuestSlug][p.VisitIndex], i)
	}

	var tasks []task
	skipped := 0
	for _, g := range guestList {
		visits := byGuestVisit[g.Slug]
		var visitIndexes []int
		for v := range visits {
			visitIndexes = append(visitIndexes, v)
		}
		sort.Ints(visitIndexes)

		for _, v := range visitIndexes {
			videoID := videoForVisit(g, v)
			if videoID == "" {
				skipped++
				continue
			}
			transcript, ok := transcripts[videoID]
			if !ok || len(transcript) == 0 {
				skipped++
				continue
			}

			key := fmt.Sprintf("%s/%d", g.Slug, v)
			if !force {
				done, err := m.Checkpoints.IsComplete(Stage, key)
				if err != nil {
					return nil, 0, err
				}
				if done {
					skipped++
					continue
				}
			}
			indexes := visits[v]
			titles := make([]string, len(indexes))
			for i, idx := range indexes {
				titles[i] = picks[idx].FilmTitle
			}
			tasks = append(tasks, task{
				key:        key,
				guestName:  g.Name,
				videoID:    videoID,
				transcript: transcript,
				indexes:    indexes,
				titles:     titles,
			})
		}
	}

	if m.Limit > 0 && len(tasks) > m.Limit {
		skipped += len(tasks) - m.Limit
		tasks = tasks[:m.Limit]
	}
	return tasks, skipped, nil
}

// Pending reports how many guest visits Run would process without doing
// any extraction.
func (m *Merger) Pending(guestList []model.Guest, picks []model.Pick, transcripts map[string]model.Transcript, force bool) (int, error) {
	tasks, _, err := m.plan(guestList, picks, transcripts, force)
	return len(tasks), err
}

// videoForVisit returns the video for one of the guest's visits. Guests
// without a visits array have only visit 1, on the top-level fields.
func videoForVisit(g model.Guest, visit int) string {
	if len(g.Visits) > 0 {
		for _, v := range g.Visits {
			if v.Index == visit && v.YouTubeVideoID != nil {
				return *v.YouTubeVideoID
			}
		}
		return ""
	}
	if visit != 1 || g.YouTubeVideoID == nil {
		return ""
	}
	return *g.YouTubeVideoID
}

// extractAll fans the provider calls out across Workers goroutines.
// Results come back in task order.
func (m *Merger) extractAll(ctx context.Context, tasks []task) []taskResult {
	results := make([]taskResult, len(tasks))

	sem := make(chan struct{}, m.Workers)
	var wg sync.WaitGroup
	for i := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			quotes, err := m.extractTask(ctx, tasks[i])
			results[i] = taskResult{quotes, err}
		}(i)
	}
	wg.Wait()
	return results
}

// extractTask calls the provider for one visit, batching large pick lists
// so the response never truncates.
func (m *Merger) extractTask(ctx context.Context, t task) ([]Quote, error) {
	batchSize := m.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	titles := t.titles
	if len(titles) <= batchSize {
		return m.Provider.Extract(ctx, Request{
			GuestName:  t.guestName,
			FilmTitles: titles,
			Transcript: t.transcript,
		})
	}

	var all []Quote
	for start := 0; start < len(titles); start += batchSize {
		end := start + batchSize
		if end > len(titles) {
			end = len(titles)
		}
		quotes, err := m.Provider.Extract(ctx, Request{
			GuestName:  t.guestName,
			FilmTitles: titles[start:end],
			Transcript: t.transcript,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, quotes...)
		if end < len(titles) && m.Interval > 0 {
			time.Sleep(m.Interval)
		}
	}
	return all, nil
}

// mergeVisit validates quotes and writes them into the existing picks for
// one visit. Quotes naming a film outside the candidate list are dropped;
// timestamps outside the transcript are discarded with a confidence
// downgrade. Never appends a pick.
func (m *Merger) mergeVisit(picks []model.Pick, t task, quotes []Quote) {
	maxLen := m.MaxQuoteLen
	if maxLen <= 0 {
		maxLen = 500
	}
	threshold := m.NameThreshold
	if threshold <= 0 {
		threshold = 80
	}
	duration := t.transcript.Duration()

	for _, q := range quotes {
		idx := m.matchCandidate(picks, t.indexes, q.FilmTitle, threshold)
		if idx < 0 {
			log.Printf("dropping quote for unknown film %q (%s)", q.FilmTitle, t.key)
			continue
		}
		p := &picks[idx]

		conf := model.Confidence(q.Confidence)
		if conf.Rank() == 0 {
			conf = model.ConfidenceNone
		}

		quote := q.Quote
		if len(quote) > maxLen {
			quote = truncate(quote, maxLen)
		}

		ts := q.StartTimestamp
		if ts < 0 || ts > duration {
			if ts != 0 {
				log.Printf("discarding out-of-bounds timestamp %d for %q (%s)", ts, q.FilmTitle, t.key)
				conf = conf.Downgrade()
			}
			ts = 0
		}

		p.Quote = quote
		p.ExtractionConfidence = conf
		if ts > 0 {
			tsCopy := ts
			p.StartTimestamp = &tsCopy
			p.YouTubeTimestampURL = fmt.Sprintf("https://www.youtube.com/watch?v=%s&t=%d", t.videoID, ts)
		} else {
			p.StartTimestamp = nil
			p.YouTubeTimestampURL = ""
		}
	}
}

// matchCandidate finds the candidate pick a returned title refers to:
// exact case-insensitive first, then best fuzzy score at or above the
// threshold.
func (m *Merger) matchCandidate(picks []model.Pick, indexes []int, title string, threshold int) int {
	want := strings.ToLower(strings.TrimSpace(title))
	for _, i := range indexes {
		if strings.ToLower(picks[i].FilmTitle) == want {
			return i
		}
	}
	best, bestScore := -1, 0
	for _, i := range indexes {
		if score := fuzzy.Score(title, picks[i].FilmTitle); score >= threshold && score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// truncate cuts a quote at the cap without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
