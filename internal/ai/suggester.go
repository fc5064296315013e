// Package ai requests comment suggestions and a commentability score for
// candidate posts from the Gemini API, passing the post's images and
// caption as context.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"gramkeeper/internal/logging"
)

const (
	defaultModel = "gemini-2.5-flash"

	// MaxComments bounds how many suggestions a post carries.
	MaxComments = 4

	// maxImageBytes caps a single downloaded media item.
	maxImageBytes = 8 << 20
)

const promptInstructions = `You are a social media growth assistant acting on behalf of a lifestyle
and travel influencer. You will receive one or more images from a social
media post by @%s, plus its caption. Generate up to 4 comments she could
post on it, and rate from 0 to 10 how worthwhile commenting on this post
is for organic reach (0 = not worth commenting at all).

Rules for the comments:
- React to specific visual details, mood, or composition in the images
- Sound fully human and spontaneous; casual, warm, aesthetically aware
- No hashtags, no em dashes, no marketing language
- Do not mention following, liking, or engagement
- At most 20 words per comment, preferably under 15
- Vary the intent: an aesthetic observation, a light question, an
  emotional reaction, a situational response

Caption: %s`

// Suggestion is the result of one enrichment request.
type Suggestion struct {
	Comments []string `json:"comments"`
	Score    int      `json:"score"`
}

// Client talks to the Gemini API. The zero value is not usable; construct
// with NewClient.
type Client struct {
	client    *genai.Client
	model     string
	http      *http.Client
	maxImages int
}

// NewClient creates a suggestion client. model defaults to a flash-tier
// vision model; maxImages bounds how many media URLs are attached per
// request.
func NewClient(ctx context.Context, apiKey, model string, maxImages int) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	if maxImages <= 0 {
		maxImages = 3
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{
		client:    client,
		model:     model,
		http:      &http.Client{Timeout: 30 * time.Second},
		maxImages: maxImages,
	}, nil
}

// SuggestComments requests up to MaxComments comment suggestions and a
// 0-10 commentability score for one post. A nil Suggestion with a nil
// error means no enrichment is available (no usable images); callers
// must treat both nil and error as "no enrichment", never a run failure.
func (c *Client) SuggestComments(ctx context.Context, handle, caption string, imageURLs []string) (*Suggestion, error) {
	log := logging.Get(logging.CategoryAI)

	if len(imageURLs) == 0 {
		log.Debug("post by %s has no image URLs, skipping enrichment", handle)
		return nil, nil
	}
	if len(imageURLs) > c.maxImages {
		imageURLs = imageURLs[:c.maxImages]
	}

	parts := []*genai.Part{
		genai.NewPartFromText(fmt.Sprintf(promptInstructions, handle, caption)),
	}
	attached := 0
	for _, url := range imageURLs {
		data, mime, err := c.fetchImage(ctx, url)
		if err != nil {
			log.Warn("image fetch failed for %s: %v", handle, err)
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(data, mime))
		attached++
	}
	if attached == 0 {
		log.Warn("no images could be fetched for %s, skipping enrichment", handle)
		return nil, nil
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"comments": {
					Type:        genai.TypeArray,
					Description: "Up to 4 engaging, visual-focused, casual comments.",
					Items:       &genai.Schema{Type: genai.TypeString},
				},
				"score": {
					Type:        genai.TypeInteger,
					Description: "Commentability score from 0 to 10.",
				},
			},
			Required: []string{"comments", "score"},
		},
	}

	timer := logging.StartTimer(logging.CategoryAI, "SuggestComments "+handle)
	result, err := c.client.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		config,
	)
	timer.Stop()
	if err != nil {
		return nil, fmt.Errorf("generate suggestions: %w", err)
	}

	if result == nil || len(result.Candidates) == 0 ||
		result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	return ParseSuggestion(result.Candidates[0].Content.Parts[0].Text)
}

// ParseSuggestion decodes and sanitizes the model's JSON output: code
// fences stripped, blank comments dropped, at most MaxComments kept, the
// score clamped to 0-10.
func ParseSuggestion(text string) (*Suggestion, error) {
	var s Suggestion
	if err := json.Unmarshal([]byte(cleanJSON(text)), &s); err != nil {
		return nil, fmt.Errorf("parse suggestion JSON: %w", err)
	}

	comments := make([]string, 0, MaxComments)
	for _, c := range s.Comments {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		comments = append(comments, c)
		if len(comments) == MaxComments {
			break
		}
	}
	s.Comments = comments

	if s.Score < 0 {
		s.Score = 0
	}
	if s.Score > 10 {
		s.Score = 10
	}
	return &s, nil
}

// cleanJSON strips markdown code fences some models wrap JSON output in.
func cleanJSON(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}

func (c *Client) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image body")
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}
