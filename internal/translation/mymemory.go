package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// MyMemoryProvider calls the MyMemory translation memory API.
type MyMemoryProvider struct {
	endpoint string
	email    string
	client   *http.Client
}

// NewMyMemoryProvider creates a provider. email raises the anonymous daily quota when set.
func NewMyMemoryProvider(endpoint, email string, client *http.Client) *MyMemoryProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &MyMemoryProvider{endpoint: endpoint, email: email, client: client}
}

func (p *MyMemoryProvider) Name() string { return "mymemory" }

type myMemoryResponse struct {
	ResponseData struct {
		TranslatedText string  `json:"translatedText"`
		Match          float64 `json:"match"`
	} `json:"responseData"`
	ResponseStatus  int    `json:"responseStatus"`
	ResponseDetails string `json:"responseDetails"`
}

func (p *MyMemoryProvider) Translate(ctx context.Context, req Request) (Translated, error) {
	source := req.Source
	if source == AutoDetect {
		// MyMemory needs an explicit pair.
		source = "en"
	}
	q := url.Values{}
	q.Set("q", req.Text)
	q.Set("langpair", source+"|"+req.Target)
	if p.email != "" {
		q.Set("de", p.email)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return Translated{}, err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Translated{}, fmt.Errorf("mymemory request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Translated{}, fmt.Errorf("mymemory status %d", resp.StatusCode)
	}

	var out myMemoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Translated{}, fmt.Errorf("mymemory decode: %w", err)
	}
	if out.ResponseStatus != http.StatusOK {
		return Translated{}, fmt.Errorf("mymemory response %d: %s", out.ResponseStatus, out.ResponseDetails)
	}
	conf := out.ResponseData.Match
	if conf <= 0 || conf > 1 {
		conf = 0.7
	}
	return Translated{Text: out.ResponseData.TranslatedText, Confidence: conf}, nil
}
