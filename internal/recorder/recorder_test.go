package recorder_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/learnx/live-backend/internal/recorder"
	"github.com/learnx/live-backend/internal/rtc"
)

type emptyTap struct{}

func (emptyTap) GetTrackInfo(uuid.UUID) []rtc.TrackInfo { return nil }
func (emptyTap) RegisterRecordingSink(uuid.UUID, rtc.RecordingSink) {}
func (emptyTap) UnregisterRecordingSink(uuid.UUID) {}

func TestService_StartWithoutTracks(t *testing.T) {
	// Setup
	svc := recorder.NewService(emptyTap{}, t.TempDir(), nil)
	session := uuid.New()

	// Execute
	_, err := svc.StartRecording(context.Background(), session, uuid.New())

	// Assert
	assert.ErrorIs(t, err, recorder.ErrNoTracks)
	assert.False(t, svc.HasActiveRecording(session))
}

func TestService_StopWithoutCapture(t *testing.T) {
	svc := recorder.NewService(emptyTap{}, t.TempDir(), nil)

	_, err := svc.StopRecording(uuid.New())

	assert.ErrorIs(t, err, recorder.ErrNotRecording)
}

func TestService_OutputPathIsWebM(t *testing.T) {
	dir := t.TempDir()
	svc := recorder.NewService(emptyTap{}, dir, nil)
	id := uuid.New()

	assert.Equal(t, dir+"/recordings/"+id.String()+".webm", svc.OutputPath(id))
}
