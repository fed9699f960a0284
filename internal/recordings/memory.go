package recordings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnx/live-backend/internal/models"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[uuid.UUID]*models.Recording
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[uuid.UUID]*models.Recording)}
}

func (m *MemoryStore) Create(_ context.Context, rec *models.Recording) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = models.RecordingStatusRecording
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*models.Recording, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]models.Recording, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []models.Recording
	for _, rec := range m.recs {
		if rec.SessionID == sessionID {
			list = append(list, *rec)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (m *MemoryStore) MarkStopped(_ context.Context, id uuid.UUID, localPath string, duration int) error {
	return m.update(id, func(rec *models.Recording) {
		now := time.Now().UTC()
		rec.LocalPath = localPath
		rec.Duration = duration
		rec.Status = models.RecordingStatusProcessing
		rec.StoppedAt = &now
	})
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	return m.update(id, func(rec *models.Recording) { rec.Status = status })
}

func (m *MemoryStore) UpdateS3Result(_ context.Context, id uuid.UUID, s3URL, s3Key string, fileSize int64) error {
	return m.update(id, func(rec *models.Recording) {
		rec.S3URL, rec.S3Key, rec.FileSize = s3URL, s3Key, fileSize
		rec.LocalPath = ""
		rec.Status = models.RecordingStatusCompleted
	})
}

func (m *MemoryStore) update(id uuid.UUID, fn func(*models.Recording)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return ErrNotFound
	}
	fn(rec)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
