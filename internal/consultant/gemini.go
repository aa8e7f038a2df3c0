package consultant

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/lemmaiot/sme-consultant/internal/domain"
	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used for consultant responses.
const DefaultModel = "gemini-2.5-flash"

// GeminiClient streams consultant responses from the Gemini API with
// Google Search grounding always enabled.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a streaming client for the given API key.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

// Stream sends the submission to Gemini and yields response fragments:
// text deltas as they arrive, then at most one citation batch taken from
// the final chunk's grounding metadata. Any backend failure is converted
// to a single terminal fragment with a user-safe message; the sequence
// ends there.
func (c *GeminiClient) Stream(ctx context.Context, prompt string, history []domain.Message, location string) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		config := &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction(location), genai.RoleUser),
			Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		}
		contents := buildContents(prompt, history)

		var fullText strings.Builder
		var final *genai.GenerateContentResponse

		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, config) {
			if err != nil {
				slog.Error("Gemini stream failed", "model", c.model, "error", err)
				yield(Fragment{Err: BackendErrorText}, nil)
				return
			}
			final = resp
			if text := resp.Text(); text != "" {
				fullText.WriteString(text)
				if !yield(Fragment{Text: text}, nil) {
					return
				}
			}
		}

		if final == nil || len(final.Candidates) == 0 {
			return
		}
		sources := rankSources(groundingSources(final.Candidates[0].GroundingMetadata), fullText.String())
		if len(sources) > 0 {
			yield(Fragment{Sources: sources}, nil)
		}
	}
}
