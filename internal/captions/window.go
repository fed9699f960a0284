package captions

import (
	"sync"

	"github.com/google/uuid"

	"github.com/learnx/live-backend/internal/models"
)

// DefaultWindow is how many recent captions are kept for display.
const DefaultWindow = 10

// Window keeps the most recent captions. Older ones are discarded, never archived.
type Window struct {
	mu    sync.Mutex
	size  int
	items []models.LiveCaption
}

// NewWindow creates a window of the given size (DefaultWindow when size <= 0).
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindow
	}
	return &Window{size: size, items: make([]models.LiveCaption, 0, size)}
}

// Add appends c, evicting the oldest caption when full.
func (w *Window) Add(c models.LiveCaption) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.items) == w.size {
		copy(w.items, w.items[1:])
		w.items = w.items[:w.size-1]
	}
	w.items = append(w.items, c)
}

// SetTranslations merges translations into the caption with the given id. It reports
// false when the caption has already left the window.
func (w *Window) SetTranslations(id uuid.UUID, translations map[string]string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.items {
		if w.items[i].ID != id {
			continue
		}
		if w.items[i].Translations == nil {
			w.items[i].Translations = make(map[string]string, len(translations))
		}
		for lang, text := range translations {
			w.items[i].Translations[lang] = text
		}
		return true
	}
	return false
}

// Recent returns a copy of the window, oldest first.
func (w *Window) Recent() []models.LiveCaption {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.LiveCaption, len(w.items))
	for i, c := range w.items {
		if c.Translations != nil {
			m := make(map[string]string, len(c.Translations))
			for k, v := range c.Translations {
				m[k] = v
			}
			c.Translations = m
		}
		out[i] = c
	}
	return out
}

// Len returns the number of captions held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}
