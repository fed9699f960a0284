package livesessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnx/live-backend/internal/models"
)

// MemoryStore is an in-process Store with the same transition rules as Repository.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*models.LiveSession
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[uuid.UUID]*models.LiveSession)}
}

// Create stores a copy of s, assigning an id when missing.
func (m *MemoryStore) Create(_ context.Context, s *models.LiveSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = models.SessionCreated
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	if s.Status == models.SessionActive {
		s.StartedAt = &now
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

// GetByID returns a copy of the session or ErrNotFound.
func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.LiveSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// ListByStatus returns sessions with the given status, newest first.
func (m *MemoryStore) ListByStatus(_ context.Context, status models.SessionStatus) ([]models.LiveSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []models.LiveSession
	for _, s := range m.sessions {
		if s.Status == status {
			list = append(list, *s)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// UpdateStatus applies a lifecycle transition.
func (m *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status models.SessionStatus) (*models.LiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.Status.CanTransition(status) {
		return nil, ErrInvalidTransition
	}
	now := time.Now().UTC()
	s.Status = status
	s.UpdatedAt = now
	switch status {
	case models.SessionActive:
		s.StartedAt = &now
	case models.SessionEnded:
		s.EndedAt = &now
		s.RecordingEnabled = false
	}
	cp := *s
	return &cp, nil
}

// SetRecording stores the recording flag.
func (m *MemoryStore) SetRecording(_ context.Context, id uuid.UUID, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.RecordingEnabled = enabled
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// SetCaptions stores the caption flag and language.
func (m *MemoryStore) SetCaptions(_ context.Context, id uuid.UUID, enabled bool, language string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.CaptionsEnabled = enabled
	s.CaptionLanguage = language
	s.UpdatedAt = time.Now().UTC()
	return nil
}
