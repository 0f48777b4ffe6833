// Package extract pulls verbatim film commentary out of episode transcripts
// with a language-model provider and merges the results into the pick store.
// Calls are checkpointed per guest visit: the provider is paid and
// rate-limited, so completed work is never repeated.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"closetpicks/internal/model"
)

// Quote is one extracted commentary segment as returned by the provider.
type Quote struct {
	FilmTitle      string `json:"film_title"`
	StartTimestamp int    `json:"start_timestamp"`
	Quote          string `json:"quote"`
	Confidence     string `json:"confidence"`
}

// Request carries everything the provider needs for one extraction call.
type Request struct {
	GuestName  string
	FilmTitles []string
	Transcript model.Transcript
}

// Provider is the extraction backend.
type Provider interface {
	Extract(ctx context.Context, req Request) ([]Quote, error)
	IsConfigured() bool
}

const extractionPrompt = `You are extracting film commentary from a Criterion Closet Picks video transcript.

CONTEXT: In these videos, guests visit the Criterion Collection's closet and
physically pick up discs while talking about why they love each film. Guests
often refer to films indirectly ("this one", picking it up without naming it),
and auto-generated captions frequently misspell titles and proper names.

GUEST: %s

KNOWN PICKS (the films they took home):
%s

TRANSCRIPT (with timestamps in seconds):
%s

YOUR TASK: For each film in the known picks list, find where the guest
discusses that film. Return a JSON array with one object per film:

{
  "film_title": "exact title from the known picks list",
  "start_timestamp": 142,
  "quote": "cleaned verbatim quote spanning their discussion of this film",
  "confidence": "high|medium|low|none"
}

GUIDELINES:
- Films are generally discussed in the order they are picked up
- Combine consecutive segments about one film into one flowing quote; fix
  obvious caption errors but preserve the speaker's actual words
- Films not discussed at all get confidence "none" and an empty quote
- Ignore films the guest discusses but does not take home
- confidence: "high" clear discussion, "medium" probable with ambiguity,
  "low" uncertain, "none" no discussion found
- start_timestamp is the beginning of the discussion, in whole seconds
- Cap each quote at 500 characters

Return ONLY the JSON array, no other text.`

// GeminiProvider talks to the Gemini REST API.
type GeminiProvider struct {
	Model   string
	BaseURL string
	apiKey  string
	client  *http.Client
}

// NewGeminiProvider creates a Gemini provider. The key may be empty;
// IsConfigured reports whether calls can be made.
func NewGeminiProvider(model, baseURL, apiKey string) *GeminiProvider {
	return &GeminiProvider{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// IsConfigured reports whether an API key is present.
func (g *GeminiProvider) IsConfigured() bool {
	return g.apiKey != ""
}

// Extract sends one transcript and candidate list to Gemini and parses the
// returned quote array.
func (g *GeminiProvider) Extract(ctx context.Context, req Request) ([]Quote, error) {
	prompt := fmt.Sprintf(extractionPrompt,
		req.GuestName,
		formatPicksList(req.FilmTitles),
		formatTranscript(req.Transcript),
	)

	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature":      0.1,
			"responseMimeType": "application/json",
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.BaseURL, g.Model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	return ParseQuotes(result.Candidates[0].Content.Parts[0].Text)
}

var (
	fenceOpen  = regexp.MustCompile("^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
)

// ParseQuotes parses a provider response into quotes, tolerating markdown
// code fences around the JSON array.
func ParseQuotes(text string) ([]Quote, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = fenceOpen.ReplaceAllString(text, "")
		text = fenceClose.ReplaceAllString(text, "")
	}
	var quotes []Quote
	if err := json.Unmarshal([]byte(text), &quotes); err != nil {
		return nil, fmt.Errorf("parsing quotes: %w", err)
	}
	return quotes, nil
}

func formatTranscript(t model.Transcript) string {
	var b strings.Builder
	for _, seg := range t {
		fmt.Fprintf(&b, "[%ds] %s\n", int(seg.Start), seg.Text)
	}
	return b.String()
}

func formatPicksList(titles []string) string {
	var b strings.Builder
	for i, t := range titles {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}
	return b.String()
}
