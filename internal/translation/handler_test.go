package translation_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnx/live-backend/internal/translation"
)

func newRouter(engine *translation.Engine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := translation.NewHandler(engine, 100*time.Millisecond, nil)
	r := gin.New()
	r.POST("/api/translate", h.Translate)
	r.POST("/api/translate/instant", h.Instant)
	r.POST("/api/translate/batch", h.Batch)
	r.GET("/api/translate/languages", h.Languages)
	r.GET("/api/translate/stats", h.Stats)
	r.DELETE("/api/translate/cache", h.ClearCache)
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func TestHandler_Translate(t *testing.T) {
	// Setup
	primary := &mockProvider{name: "primary"}
	primary.On("Translate", "hello", "en", "hi").Return(translation.Translated{Text: "नमस्ते"}, nil).Once()
	router := newRouter(newEngine(primary))

	// Execute
	w := doJSON(router, http.MethodPost, "/api/translate", map[string]string{"text": "hello", "from": "en", "to": "hi"})

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var r translation.Result
	require.NoError(t, json.Unmarshal(env.Data, &r))
	assert.Equal(t, "नमस्ते", r.TranslatedText)
	assert.Equal(t, "primary", r.Provider)
}

func TestHandler_TranslateRejectsUnsupportedTarget(t *testing.T) {
	router := newRouter(newEngine())

	w := doJSON(router, http.MethodPost, "/api/translate", map[string]string{"text": "hello", "to": "zz"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_InstantDefaultsSourceToEnglish(t *testing.T) {
	primary := &mockProvider{name: "primary"}
	primary.On("Translate", "answer", "en", "ml").Return(translation.Translated{Text: "ഉത്തരം"}, nil).Once()
	router := newRouter(newEngine(primary))

	w := doJSON(router, http.MethodPost, "/api/translate/instant", map[string]string{"text": "answer", "targetLanguage": "ml"})

	require.Equal(t, http.StatusOK, w.Code)
	primary.AssertExpectations(t)
}

func TestHandler_BatchLimitsLanguages(t *testing.T) {
	router := newRouter(newEngine())
	langs := []string{"hi", "ta", "te", "kn", "ml", "bn", "gu", "mr", "pa", "or", "as"}

	w := doJSON(router, http.MethodPost, "/api/translate/batch", map[string]interface{}{"text": "hello", "from": "en", "languages": langs})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_BatchUsesPhrasebookWithoutProviders(t *testing.T) {
	router := newRouter(newEngine())

	w := doJSON(router, http.MethodPost, "/api/translate/batch", map[string]interface{}{"text": "hello", "from": "en", "languages": []string{"hi", "en"}})

	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var out translation.BatchResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Len(t, out.Translations, 1)
	assert.Equal(t, "नमस्ते", out.Translations["hi"].TranslatedText)
}

func TestHandler_StatsAndClear(t *testing.T) {
	router := newRouter(newEngine())
	doJSON(router, http.MethodPost, "/api/translate", map[string]string{"text": "yes", "from": "en", "to": "hi"})

	w := doJSON(router, http.MethodGet, "/api/translate/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var stats translation.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.CacheSize)

	w = doJSON(router, http.MethodDelete, "/api/translate/cache", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cleared":1`)
}
