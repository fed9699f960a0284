package captions

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// InterimPrefix marks a line as an interim result in LineRecognizer input.
const InterimPrefix = "~"

// LineRecognizer treats each line of text as a recognised utterance. It stands in for a
// microphone in headless clients: plain lines are final results, lines starting with
// InterimPrefix are interim. Reading happens once, so restarts continue where the
// previous pass stopped.
type LineRecognizer struct {
	once  sync.Once
	r     io.Reader
	lines chan string
	err   error
}

// NewLineRecognizer reads utterances from r.
func NewLineRecognizer(r io.Reader) *LineRecognizer {
	return &LineRecognizer{r: r, lines: make(chan string)}
}

func (l *LineRecognizer) start() {
	go func() {
		defer close(l.lines)
		sc := bufio.NewScanner(l.r)
		for sc.Scan() {
			l.lines <- sc.Text()
		}
		l.err = sc.Err()
	}()
}

// Recognize emits results until the reader is exhausted (ErrSourceClosed) or ctx ends.
func (l *LineRecognizer) Recognize(ctx context.Context, language string, out chan<- Result) error {
	l.once.Do(l.start)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-l.lines:
			if !ok {
				if l.err != nil {
					return fmt.Errorf("%w: %v", ErrSourceClosed, l.err)
				}
				return ErrSourceClosed
			}
			r, ok := parseLine(line, language)
			if !ok {
				continue
			}
			select {
			case out <- r:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func parseLine(line, language string) (Result, bool) {
	text := strings.TrimSpace(line)
	final := true
	if strings.HasPrefix(text, InterimPrefix) {
		final = false
		text = strings.TrimSpace(strings.TrimPrefix(text, InterimPrefix))
	}
	if text == "" {
		return Result{}, false
	}
	conf := 1.0
	if !final {
		conf = 0.5
	}
	return Result{Text: text, Language: language, Confidence: conf, IsFinal: final}, true
}
