package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// LibreProvider calls a LibreTranslate-compatible /translate endpoint.
type LibreProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewLibreProvider creates a provider for baseURL (e.g. https://libretranslate.com).
func NewLibreProvider(baseURL, apiKey string, client *http.Client) *LibreProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &LibreProvider{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

func (p *LibreProvider) Name() string { return "libretranslate" }

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

func (p *LibreProvider) Translate(ctx context.Context, req Request) (Translated, error) {
	body, err := json.Marshal(libreRequest{
		Q:      req.Text,
		Source: req.Source,
		Target: req.Target,
		Format: "text",
		APIKey: p.apiKey,
	})
	if err != nil {
		return Translated{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return Translated{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Translated{}, fmt.Errorf("libretranslate request: %w", err)
	}
	defer resp.Body.Close()

	var out libreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Translated{}, fmt.Errorf("libretranslate decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Translated{}, fmt.Errorf("libretranslate status %d: %s", resp.StatusCode, out.Error)
	}
	return Translated{Text: out.TranslatedText, Confidence: 0.8}, nil
}
