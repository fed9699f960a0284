package signaling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnx/live-backend/internal/models"
)

type attendanceKind int

const (
	attendanceJoin attendanceKind = iota
	attendanceLeave
	attendanceClose
)

type attendanceRecord struct {
	kind   attendanceKind
	userID uuid.UUID
	role   models.Role
	at     time.Time
}

// attendanceWriter applies a session's attendance records in the order the actor produced
// them. Enqueue never blocks the actor.
type attendanceWriter struct {
	sessionID uuid.UUID
	dst       AttendanceLog
	log       *zap.Logger

	mu     sync.Mutex
	queue  []attendanceRecord
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newAttendanceWriter(sessionID uuid.UUID, dst AttendanceLog, log *zap.Logger) *attendanceWriter {
	w := &attendanceWriter{
		sessionID: sessionID,
		dst:       dst,
		log:       log,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *attendanceWriter) enqueue(rec attendanceRecord) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, rec)
	w.mu.Unlock()
	w.signal()
}

// close stops accepting records. Queued records are still written.
func (w *attendanceWriter) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.signal()
}

func (w *attendanceWriter) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *attendanceWriter) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		batch, closed := w.queue, w.closed
		w.queue = nil
		w.mu.Unlock()

		for _, rec := range batch {
			w.write(rec)
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) == 0 {
			<-w.wake
		}
	}
}

func (w *attendanceWriter) write(rec attendanceRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	var err error
	switch rec.kind {
	case attendanceJoin:
		err = w.dst.LogJoin(ctx, w.sessionID, rec.userID, rec.role, rec.at)
	case attendanceLeave:
		err = w.dst.LogLeave(ctx, w.sessionID, rec.userID, rec.at)
	case attendanceClose:
		err = w.dst.CloseSession(ctx, w.sessionID, rec.at)
	}
	if err != nil {
		w.log.Warn("attendance log failed", zap.String("user_id", rec.userID.String()), zap.Error(err))
	}
}
