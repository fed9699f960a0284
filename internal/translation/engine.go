package translation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Result origins besides provider names.
const (
	OriginPhrasebook   = "phrasebook"
	OriginUntranslated = "untranslated"
	OriginIdentity     = "identity"
)

// Request is one (text, source, target) translation.
type Request struct {
	Text   string `json:"text" binding:"required"`
	Source string `json:"sourceLanguage"`
	Target string `json:"targetLanguage" binding:"required"`
}

// Result is a resolved translation.
type Result struct {
	OriginalText   string    `json:"originalText"`
	TranslatedText string    `json:"translatedText"`
	SourceLanguage string    `json:"sourceLanguage"`
	TargetLanguage string    `json:"targetLanguage"`
	Provider       string    `json:"provider"`
	Confidence     float64   `json:"confidence"`
	Cached         bool      `json:"fromCache"`
	Timestamp      time.Time `json:"timestamp"`
}

// Translated reports whether the result carries a real translation (not the marker).
func (r Result) Translated() bool {
	return r.Provider != OriginUntranslated
}

// Options tunes an Engine.
type Options struct {
	Timeout       time.Duration // per provider call
	MaxTextLength int
	Logger        *zap.Logger
}

type providerCounters struct {
	successes atomic.Int64
	failures  atomic.Int64
}

// Engine resolves translations through the cache, the provider chain, the phrasebook,
// and finally the untranslated marker. Concurrent identical requests share one resolution.
type Engine struct {
	cache     *Cache
	providers []Provider
	timeout   time.Duration
	maxLen    int
	logger    *zap.Logger

	group        singleflight.Group
	counters     map[string]*providerCounters
	phraseHits   atomic.Int64
	untranslated atomic.Int64
}

// NewEngine creates an engine. Providers are tried in the given order.
func NewEngine(cache *Cache, providers []Provider, opts Options) *Engine {
	if cache == nil {
		cache = NewCache()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 800 * time.Millisecond
	}
	if opts.MaxTextLength <= 0 {
		opts.MaxTextLength = 5000
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	counters := make(map[string]*providerCounters, len(providers))
	for _, p := range providers {
		counters[p.Name()] = &providerCounters{}
	}
	return &Engine{
		cache:     cache,
		providers: providers,
		timeout:   opts.Timeout,
		maxLen:    opts.MaxTextLength,
		logger:    opts.Logger,
		counters:  counters,
	}
}

// Normalize validates req and returns it with trimmed text and normalized language codes.
func (e *Engine) Normalize(req Request) (Request, error) {
	req.Text = strings.TrimSpace(req.Text)
	req.Source = NormalizeLanguage(req.Source)
	req.Target = NormalizeLanguage(req.Target)
	if req.Source == "" {
		req.Source = AutoDetect
	}
	if req.Text == "" {
		return req, ErrEmptyText
	}
	if utf8.RuneCountInString(req.Text) > e.maxLen {
		return req, fmt.Errorf("%w (max %d characters)", ErrTextTooLong, e.maxLen)
	}
	if !IsSupported(req.Target) {
		return req, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, req.Target)
	}
	if req.Source != AutoDetect && !IsSupported(req.Source) {
		return req, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, req.Source)
	}
	return req, nil
}

// Lookup returns a cached translation without touching any provider.
func (e *Engine) Lookup(req Request) (Result, bool) {
	req, err := e.Normalize(req)
	if err != nil {
		return Result{}, false
	}
	return e.lookup(req)
}

func (e *Engine) lookup(req Request) (Result, bool) {
	r, ok := e.cache.Get(req.Text, req.Source, req.Target)
	if ok {
		r.Cached = true
	}
	return r, ok
}

// Translate resolves req with the default per-provider timeout.
func (e *Engine) Translate(ctx context.Context, req Request) (Result, error) {
	return e.TranslateWithin(ctx, req, e.timeout)
}

// TranslateWithin resolves req giving each provider at most timeout.
// Only invalid requests and caller cancellation return an error; provider failures fall through.
func (e *Engine) TranslateWithin(ctx context.Context, req Request, timeout time.Duration) (Result, error) {
	req, err := e.Normalize(req)
	if err != nil {
		return Result{}, err
	}
	if req.Source == req.Target {
		return Result{
			OriginalText:   req.Text,
			TranslatedText: req.Text,
			SourceLanguage: req.Source,
			TargetLanguage: req.Target,
			Provider:       OriginIdentity,
			Confidence:     1,
			Timestamp:      time.Now().UTC(),
		}, nil
	}
	if r, ok := e.lookup(req); ok {
		return r, nil
	}

	key := req.Source + "\x00" + req.Target + "\x00" + req.Text
	// The shared resolution must outlive any single caller.
	flightCtx := context.WithoutCancel(ctx)
	ch := e.group.DoChan(key, func() (interface{}, error) {
		return e.resolve(flightCtx, req, timeout), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (e *Engine) resolve(ctx context.Context, req Request, timeout time.Duration) Result {
	// A previous flight for the same key may have finished between lookup and DoChan.
	if r, ok := e.cache.Get(req.Text, req.Source, req.Target); ok {
		r.Cached = true
		return r
	}
	for _, p := range e.providers {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		out, err := p.Translate(pctx, req)
		cancel()
		if err == nil && strings.TrimSpace(out.Text) == "" {
			err = ErrEmptyTranslation
		}
		if err != nil {
			e.counters[p.Name()].failures.Add(1)
			e.logger.Debug("translation provider failed",
				zap.String("provider", p.Name()),
				zap.String("target", req.Target),
				zap.Error(err),
			)
			continue
		}
		e.counters[p.Name()].successes.Add(1)
		return e.cache.Put(Result{
			OriginalText:   req.Text,
			TranslatedText: strings.TrimSpace(out.Text),
			SourceLanguage: req.Source,
			TargetLanguage: req.Target,
			Provider:       p.Name(),
			Confidence:     out.Confidence,
			Timestamp:      time.Now().UTC(),
		})
	}

	if phrase, ok := LookupPhrase(req.Text, req.Target); ok {
		e.phraseHits.Add(1)
		return e.cache.Put(Result{
			OriginalText:   req.Text,
			TranslatedText: phrase,
			SourceLanguage: req.Source,
			TargetLanguage: req.Target,
			Provider:       OriginPhrasebook,
			Confidence:     0.95,
			Timestamp:      time.Now().UTC(),
		})
	}

	e.untranslated.Add(1)
	e.logger.Warn("translation unavailable",
		zap.String("source", req.Source),
		zap.String("target", req.Target),
	)
	return Result{
		OriginalText:   req.Text,
		TranslatedText: UntranslatedMarker(req.Text),
		SourceLanguage: req.Source,
		TargetLanguage: req.Target,
		Provider:       OriginUntranslated,
		Timestamp:      time.Now().UTC(),
	}
}

// TranslateAll translates text into every target concurrently. Targets equal to the
// source are skipped. The first invalid target aborts the whole call.
func (e *Engine) TranslateAll(ctx context.Context, text, source string, targets []string) (map[string]Result, error) {
	source = NormalizeLanguage(source)
	seen := make(map[string]struct{}, len(targets))
	var todo []Request
	for _, t := range targets {
		t = NormalizeLanguage(t)
		if _, dup := seen[t]; dup || t == source {
			continue
		}
		seen[t] = struct{}{}
		req, err := e.Normalize(Request{Text: text, Source: source, Target: t})
		if err != nil {
			return nil, err
		}
		todo = append(todo, req)
	}

	var (
		mu  sync.Mutex
		out = make(map[string]Result, len(todo))
		g   errgroup.Group
	)
	for _, req := range todo {
		req := req
		g.Go(func() error {
			r, err := e.Translate(ctx, req)
			if err != nil {
				return err
			}
			mu.Lock()
			out[req.Target] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearCache empties the shared cache.
func (e *Engine) ClearCache() int {
	n := e.cache.Clear()
	e.logger.Info("translation cache cleared", zap.Int("entries", n))
	return n
}

// ProviderStats counts outcomes for one provider.
type ProviderStats struct {
	Name      string `json:"name"`
	Successes int64  `json:"successes"`
	Failures  int64  `json:"failures"`
}

// Stats is a point-in-time view of engine activity.
type Stats struct {
	CacheSize      int             `json:"cacheSize"`
	CacheHits      int64           `json:"cacheHits"`
	CacheMisses    int64           `json:"cacheMisses"`
	PhrasebookHits int64           `json:"phrasebookHits"`
	Untranslated   int64           `json:"untranslated"`
	Providers      []ProviderStats `json:"providers"`
	FallbackChain  []string        `json:"fallbackChain"`
}

// Stats returns counters for the cache and each provider.
func (e *Engine) Stats() Stats {
	hits, misses := e.cache.Counters()
	s := Stats{
		CacheSize:      e.cache.Len(),
		CacheHits:      hits,
		CacheMisses:    misses,
		PhrasebookHits: e.phraseHits.Load(),
		Untranslated:   e.untranslated.Load(),
	}
	for _, p := range e.providers {
		c := e.counters[p.Name()]
		s.Providers = append(s.Providers, ProviderStats{
			Name:      p.Name(),
			Successes: c.successes.Load(),
			Failures:  c.failures.Load(),
		})
		s.FallbackChain = append(s.FallbackChain, p.Name())
	}
	s.FallbackChain = append(s.FallbackChain, OriginPhrasebook)
	return s
}
