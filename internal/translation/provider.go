package translation

import (
	"context"
	"errors"
)

// ErrEmptyTranslation is returned when a provider answers with no text.
var ErrEmptyTranslation = errors.New("provider returned empty translation")

// Translated is a single provider answer.
type Translated struct {
	Text       string
	Confidence float64
}

// Provider is one network translation backend in the fallback chain.
type Provider interface {
	// Name identifies the provider in results, stats and logs. Must be unique per engine.
	Name() string
	// Translate converts req.Text from req.Source (or AutoDetect) to req.Target.
	Translate(ctx context.Context, req Request) (Translated, error)
}
