package translation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnx/live-backend/internal/translation"
)

func TestLibreProvider_Translate(t *testing.T) {
	// Setup
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["q"])
		assert.Equal(t, "en", body["source"])
		assert.Equal(t, "hi", body["target"])
		assert.Equal(t, "key", body["api_key"])
		_ = json.NewEncoder(w).Encode(map[string]string{"translatedText": "नमस्ते"})
	}))
	defer srv.Close()
	p := translation.NewLibreProvider(srv.URL+"/", "key", srv.Client())

	// Execute
	out, err := p.Translate(context.Background(), translation.Request{Text: "hello", Source: "en", Target: "hi"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "नमस्ते", out.Text)
}

func TestLibreProvider_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "slow down"})
	}))
	defer srv.Close()
	p := translation.NewLibreProvider(srv.URL, "", srv.Client())

	_, err := p.Translate(context.Background(), translation.Request{Text: "hello", Source: "en", Target: "hi"})

	assert.ErrorContains(t, err, "slow down")
}

func TestMyMemoryProvider_Translate(t *testing.T) {
	// Setup
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "en|ta", r.URL.Query().Get("langpair"))
		assert.Equal(t, "welcome", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"responseData":{"translatedText":"வரவேற்கிறோம்","match":0.98},"responseStatus":200}`))
	}))
	defer srv.Close()
	p := translation.NewMyMemoryProvider(srv.URL, "", srv.Client())

	// Execute
	out, err := p.Translate(context.Background(), translation.Request{Text: "welcome", Source: "en", Target: "ta"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "வரவேற்கிறோம்", out.Text)
	assert.InDelta(t, 0.98, out.Confidence, 0.0001)
}

func TestMyMemoryProvider_QuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"responseData":{"translatedText":""},"responseStatus":429,"responseDetails":"quota"}`))
	}))
	defer srv.Close()
	p := translation.NewMyMemoryProvider(srv.URL, "", srv.Client())

	_, err := p.Translate(context.Background(), translation.Request{Text: "welcome", Source: "en", Target: "ta"})

	assert.ErrorContains(t, err, "quota")
}
