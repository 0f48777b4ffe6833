package collect

import (
	"strings"
	"testing"
)

const feedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015"
      xmlns:media="http://search.yahoo.com/mrss/"
      xmlns="http://www.w3.org/2005/Atom">
  <title>The Criterion Collection</title>
  <entry>
    <id>yt:video:abc12345678</id>
    <yt:videoId>abc12345678</yt:videoId>
    <title>Barry Jenkins's Closet Picks</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=abc12345678"/>
    <published>2018-11-01T15:00:00+00:00</published>
  </entry>
  <entry>
    <id>yt:video:def12345678</id>
    <yt:videoId>def12345678</yt:videoId>
    <title>Three Reasons: Breathless</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=def12345678"/>
    <published>2018-12-01T15:00:00+00:00</published>
  </entry>
</feed>`

func TestParseEpisodes(t *testing.T) {
	episodes, err := ParseEpisodes(strings.NewReader(feedFixture), nil)
	if err != nil {
		t.Fatalf("ParseEpisodes: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("episodes = %d", len(episodes))
	}
	if episodes[0].VideoID != "abc12345678" {
		t.Errorf("video ID = %q", episodes[0].VideoID)
	}
	if episodes[0].Published != "2018-11-01" {
		t.Errorf("published = %q", episodes[0].Published)
	}
}

func TestParseEpisodesExcludesKnownIDs(t *testing.T) {
	excluded := map[string]bool{"def12345678": true}
	episodes, err := ParseEpisodes(strings.NewReader(feedFixture), excluded)
	if err != nil {
		t.Fatal(err)
	}
	if len(episodes) != 1 || episodes[0].VideoID != "abc12345678" {
		t.Errorf("episodes = %+v", episodes)
	}
}

const spineListFixture = `<html><body>
<ul>
  <li>1&#160;&#160;&#160;Grand Illusion (BD) <a href="https://www.criterion.com/films/262-grand-illusion">shop</a></li>
  <li>2   Seven Samurai (4K UHD)*</li>
  <li>Navigation item</li>
  <li>9999 Out of range</li>
  <li>3   The Lady Vanishes</li>
  <li><a href="https://www.criterion.com/films/100-amarcord">4&#160;&#160;Amarcord</a></li>
</ul>
</body></html>`

func TestParseSpineList(t *testing.T) {
	films, err := ParseSpineList(strings.NewReader(spineListFixture))
	if err != nil {
		t.Fatalf("ParseSpineList: %v", err)
	}
	if len(films) != 4 {
		t.Fatalf("films = %+v", films)
	}
	if films[0].Title != "Grand Illusion" || *films[0].SpineNumber != 1 {
		t.Errorf("first = %+v", films[0])
	}
	if films[3].Title != "Amarcord" || films[3].CriterionURL != "https://www.criterion.com/films/100-amarcord" {
		t.Errorf("link-wrapped entry = %+v", films[3])
	}
	if films[0].CriterionURL != "https://www.criterion.com/films/262-grand-illusion" {
		t.Errorf("url = %q", films[0].CriterionURL)
	}
	if films[1].Title != "Seven Samurai" {
		t.Errorf("format tag not stripped: %q", films[1].Title)
	}
	if films[0].FilmID != "grand-illusion" {
		t.Errorf("film ID = %q", films[0].FilmID)
	}
}

const closetIndexFixture = `<html><body>
<a href="/shop/collection/375-barry-jenkins-s-closet-picks">Barry Jenkins's Closet Picks</a>
<a href="https://www.criterion.com/shop/collection/412-celine-sciamma-s-closet-picks">Céline Sciamma's Closet Picks</a>
<a href="/shop/collection/375-barry-jenkins-s-closet-picks">Barry Jenkins's Closet Picks</a>
<a href="/shop/collection/98-wim-wenders-closet-picks">&nbsp;</a>
<a href="/shop/all">All films</a>
</body></html>`

func TestParseClosetIndex(t *testing.T) {
	collections, err := ParseClosetIndex(strings.NewReader(closetIndexFixture), "https://www.criterion.com")
	if err != nil {
		t.Fatalf("ParseClosetIndex: %v", err)
	}
	if len(collections) != 3 {
		t.Fatalf("collections = %+v", collections)
	}
	if collections[0].Name != "Barry Jenkins" || collections[0].Slug != "barry-jenkins" {
		t.Errorf("first = %+v", collections[0])
	}
	if collections[0].URL != "https://www.criterion.com/shop/collection/375-barry-jenkins-s-closet-picks" {
		t.Errorf("relative URL not resolved: %q", collections[0].URL)
	}
	if collections[1].Slug != "celine-sciamma" {
		t.Errorf("second = %+v", collections[1])
	}
	// Empty link text falls back to the URL slug.
	if collections[2].Name != "Wim Wenders" {
		t.Errorf("slug fallback = %+v", collections[2])
	}
}

func TestParseVideoIDs(t *testing.T) {
	html := `<html><body>
<iframe src="https://www.youtube.com/embed/k9c6EUVVWjU?rel=0"></iframe>
<a data-fancybox href="https://vimeo.com/123456789">watch</a>
</body></html>`
	ids := ParseVideoIDs(html)
	if ids.YouTube != "k9c6EUVVWjU" {
		t.Errorf("youtube = %q", ids.YouTube)
	}
	if ids.Vimeo != "123456789" {
		t.Errorf("vimeo = %q", ids.Vimeo)
	}
}

func TestParseVideoIDsRawFallback(t *testing.T) {
	html := `<script>player.load("https://www.youtube-nocookie.com/embed/abc12345678");</script>`
	ids := ParseVideoIDs(html)
	if ids.YouTube != "abc12345678" {
		t.Errorf("youtube = %q", ids.YouTube)
	}
}
