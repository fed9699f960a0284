package captions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrSourceClosed is returned by a Recognizer whose audio source has ended for good.
// Capture does not restart after it.
var ErrSourceClosed = errors.New("speech source closed")

// Result is one transcript event from a recognizer.
type Result struct {
	Text       string
	Language   string
	Confidence float64 // advisory, 0..1
	IsFinal    bool
	// StartTime is the offset from the start of the capture.
	StartTime time.Duration
	At        time.Time
}

// Recognizer turns local audio into transcript events. Recognize blocks until ctx is
// cancelled or the recognition pass ends; a nil return means the pass ended normally
// (silence timeout, network hiccup) and may be restarted.
type Recognizer interface {
	Recognize(ctx context.Context, language string, out chan<- Result) error
}

// CaptureConfig wires a Capture.
type CaptureConfig struct {
	Language     string
	RestartDelay time.Duration
	// MaxRestarts bounds consecutive restarts without a result; 0 means unlimited.
	MaxRestarts int
	OnResult    func(Result)
	Logger      *zap.Logger
}

// Capture runs a Recognizer and restarts it whenever a pass ends while capture is on.
type Capture struct {
	rec Recognizer
	cfg CaptureConfig

	results atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// NewCapture creates a stopped capture.
func NewCapture(rec Recognizer, cfg CaptureConfig) *Capture {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 250 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Capture{rec: rec, cfg: cfg}
}

// Start begins capturing. Calling Start on a running capture is a no-op.
func (c *Capture) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.started = time.Now()
	go c.run(ctx, c.done)
}

// Stop ends capturing and waits for the recognizer to return.
func (c *Capture) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether capture is on.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Done is closed when the current capture ends, either by Stop or because the source closed.
func (c *Capture) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

func (c *Capture) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.finished(done)
	log := c.cfg.Logger
	out := make(chan Result, 16)
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for r := range out {
			c.emit(r)
		}
	}()
	defer func() {
		close(out)
		<-fed
	}()

	idle := 0
	for {
		before := c.results.Load()
		err := c.rec.Recognize(ctx, c.cfg.Language, out)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrSourceClosed) {
			log.Info("speech source closed, capture stopped")
			return
		}
		if err != nil {
			log.Warn("recognition pass failed, restarting", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.RestartDelay):
		}
		if c.results.Load() == before {
			idle++
		} else {
			idle = 0
		}
		if c.cfg.MaxRestarts > 0 && idle > c.cfg.MaxRestarts {
			log.Error("recognizer keeps ending without results, giving up", zap.Int("restarts", idle))
			return
		}
	}
}

// finished clears the running state when the loop ends on its own.
func (c *Capture) finished(done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == done {
		c.cancel()
		c.cancel, c.done = nil, nil
	}
}

func (c *Capture) emit(r Result) {
	if r.Language == "" {
		r.Language = c.cfg.Language
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if r.StartTime == 0 && !started.IsZero() {
		r.StartTime = r.At.Sub(started)
	}
	c.results.Add(1)
	if c.cfg.OnResult != nil {
		c.cfg.OnResult(r)
	}
}
