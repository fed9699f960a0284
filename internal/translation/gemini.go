package translation

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const geminiSystemPrompt = "You are a translation engine for live classroom captions. " +
	"Reply with the translated text only, without quotes, notes or transliteration."

// GeminiProvider translates through the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Translate(ctx context.Context, req Request) (Translated, error) {
	from := LanguageName(req.Source)
	if req.Source == AutoDetect {
		from = "the detected language"
	}
	prompt := fmt.Sprintf("Translate from %s to %s:\n%s", from, LanguageName(req.Target), req.Text)
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](0),
		SystemInstruction: genai.NewContentFromText(geminiSystemPrompt, genai.RoleUser),
	})
	if err != nil {
		return Translated{}, fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Translated{}, ErrEmptyTranslation
	}
	return Translated{Text: text, Confidence: 0.9}, nil
}
