// Package collect is the scraper boundary: it turns the channel uploads
// feed and saved collection-site pages into plain structured records.
// Nothing here writes stores; callers feed the output into the merge
// passes.
package collect

import (
	"fmt"
	"io"
	"log"
	"regexp"

	"github.com/mmcdole/gofeed"
)

// Episode is one uploads-feed entry.
type Episode struct {
	VideoID   string
	Title     string
	Published string // YYYY-MM-DD or empty
}

// Episodes fetches and parses the channel uploads feed. Video IDs in the
// excluded set (known non-episode uploads) are dropped.
func Episodes(feedURL string, excluded map[string]bool) ([]Episode, error) {
	feed, err := gofeed.NewParser().ParseURL(feedURL)
	if err != nil {
		return nil, fmt.Errorf("parsing uploads feed: %w", err)
	}
	return episodesFromFeed(feed, excluded), nil
}

// ParseEpisodes parses a saved uploads feed document.
func ParseEpisodes(r io.Reader, excluded map[string]bool) ([]Episode, error) {
	feed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing uploads feed: %w", err)
	}
	return episodesFromFeed(feed, excluded), nil
}

var watchLink = regexp.MustCompile(`[?&]v=([a-zA-Z0-9_-]{11})`)

func episodesFromFeed(feed *gofeed.Feed, excluded map[string]bool) []Episode {
	var episodes []Episode
	for _, item := range feed.Items {
		id := videoID(item)
		if id == "" {
			log.Printf("feed item %q has no video ID", item.Title)
			continue
		}
		if excluded[id] {
			continue
		}
		published := ""
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.Format("2006-01-02")
		}
		episodes = append(episodes, Episode{
			VideoID:   id,
			Title:     item.Title,
			Published: published,
		})
	}
	return episodes
}

// videoID extracts the video ID from the yt:videoId extension, falling back
// to the watch link.
func videoID(item *gofeed.Item) string {
	if ext, ok := item.Extensions["yt"]; ok {
		if ids, ok := ext["videoId"]; ok && len(ids) > 0 {
			return ids[0].Value
		}
	}
	if m := watchLink.FindStringSubmatch(item.Link); m != nil {
		return m[1]
	}
	return ""
}
