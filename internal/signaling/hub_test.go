package signaling_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnx/live-backend/internal/livesessions"
	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/internal/signaling"
	"github.com/learnx/live-backend/internal/translation"
)

func TestJoin_SessionJoinedAndUserJoined(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	host := env.host()
	host.join(env.session.ID)
	student := env.student("Asha")

	// Execute
	joined := student.join(env.session.ID, withCaptionLanguage("ta-IN"))
	announced := decode[signaling.ParticipantPayload](t, host.expect(signaling.EventUserJoined))

	// Assert
	require.Len(t, joined.Participants, 2)
	assert.Equal(t, env.hostID, joined.Participants[0].UserID)
	assert.True(t, joined.Participants[0].IsPresenter)
	assert.Equal(t, "ta", joined.Participants[1].CaptionLanguage)
	assert.False(t, joined.IsRecording)
	require.NotNil(t, joined.PresenterID)
	assert.Equal(t, env.hostID, *joined.PresenterID)
	assert.Equal(t, student.userID, announced.UserID)
	assert.Equal(t, "Asha", announced.Name)
	assert.Equal(t, models.RoleStudent, announced.Role)
}

func TestJoin_EndedSessionFails(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	ended := env.addSession(models.SessionEnded)
	student := env.student("Ravi")

	// Execute
	student.send(signaling.EventJoinSession, map[string]string{
		"sessionId": ended.ID.String(),
		"userId":    student.userID.String(),
		"userName":  "Ravi",
	})
	joinErr := decode[signaling.ErrorPayload](t, student.expect(signaling.EventJoinError))

	// Assert
	assert.Equal(t, signaling.ErrSessionNotActive.Error(), joinErr.Message)
	_, running := env.hub.Snapshot(context.Background(), ended.ID)
	assert.False(t, running)
}

func TestJoin_NotStartedAndUnknownSessions(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	created := env.addSession(models.SessionCreated)
	student := env.student("Ravi")

	// Execute
	student.send(signaling.EventJoinSession, map[string]string{"sessionId": created.ID.String(), "userId": student.userID.String()})
	notStarted := decode[signaling.ErrorPayload](t, student.expect(signaling.EventJoinError))
	student.send(signaling.EventJoinSession, map[string]string{"sessionId": uuid.NewString(), "userId": student.userID.String()})
	unknown := decode[signaling.ErrorPayload](t, student.expect(signaling.EventJoinError))

	// Assert
	assert.Equal(t, signaling.ErrSessionNotActive.Error(), notStarted.Message)
	assert.Equal(t, signaling.ErrSessionNotFound.Error(), unknown.Message)
}

func TestJoin_IdentityMismatch(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	student := env.student("Ravi")

	// Execute
	student.send(signaling.EventJoinSession, map[string]string{
		"sessionId": env.session.ID.String(),
		"userId":    env.hostID.String(),
	})
	joinErr := decode[signaling.ErrorPayload](t, student.expect(signaling.EventJoinError))

	// Assert
	assert.Equal(t, signaling.ErrIdentityMismatch.Error(), joinErr.Message)
}

func TestEvents_RequireJoin(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	student := env.student("Ravi")

	// Execute
	student.send(signaling.EventChatMessage, map[string]string{"message": "hi"})
	notJoined := decode[signaling.ErrorPayload](t, student.expect(signaling.EventError))
	student.send(signaling.EventPingTest, map[string]int64{"timestamp": 42})
	pong := decode[signaling.PongPayload](t, student.expect(signaling.EventPongTest))

	// Assert
	assert.Equal(t, signaling.EventChatMessage, notJoined.Event)
	assert.Equal(t, signaling.ErrNotJoined.Error(), notJoined.Message)
	assert.Equal(t, int64(42), pong.Timestamp)
	assert.NotZero(t, pong.ServerTime)
}

func TestChat_PerSenderFIFO(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	host := env.host()
	host.join(env.session.ID)
	other := env.student("Vik")
	other.join(env.session.ID)
	observers := []*wsPeer{env.student("Asha"), env.student("Ravi")}
	for _, o := range observers {
		o.join(env.session.ID)
	}
	const n = 100

	// Execute: both senders interleave, the second with random pauses.
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, sender := range []*wsPeer{host, other} {
		wg.Add(1)
		go func(p *wsPeer, jitter bool) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				if jitter {
					time.Sleep(time.Duration(rand.Intn(2000)) * time.Microsecond)
				}
				raw, _ := json.Marshal(map[string]string{"message": fmt.Sprintf("msg-%03d", i)})
				if err := p.conn.WriteJSON(signaling.Envelope{Event: signaling.EventChatMessage, Data: raw}); err != nil {
					errs <- err
					return
				}
			}
		}(sender, sender == other)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Assert
	for _, o := range observers {
		next := map[uuid.UUID]int{}
		for k := 0; k < 2*n; k++ {
			msg := decode[models.ChatMessage](t, o.expect(signaling.EventChatMessage))
			require.Equal(t, fmt.Sprintf("msg-%03d", next[msg.UserID]), msg.Message, "observer %s, sender %s", o.name, msg.UserID)
			next[msg.UserID]++
		}
		assert.Equal(t, n, next[env.hostID])
		assert.Equal(t, n, next[other.userID])
	}
}

func TestChat_BlankMessageRejected(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	host := env.host()
	host.join(env.session.ID)

	// Execute
	host.send(signaling.EventChatMessage, map[string]string{"message": "   "})
	rejected := decode[signaling.ErrorPayload](t, host.expect(signaling.EventError))

	// Assert
	assert.Equal(t, signaling.EventChatMessage, rejected.Event)
	assert.Contains(t, rejected.Message, "message cannot be blank")
}

func TestChat_TranslateTo(t *testing.T) {
	// Setup
	provider := &mockProvider{}
	provider.On("Translate", "good luck", "en", "hi").Return(translation.Translated{Text: "शुभकामनाएं"}, nil)
	engine := translation.NewEngine(translation.NewCache(), []translation.Provider{provider}, translation.Options{})
	env := newTestEnv(t, signaling.Config{Translator: engine})
	host := env.host()
	host.join(env.session.ID)
	student := env.student("Asha")
	student.join(env.session.ID)

	// Execute
	host.send(signaling.EventChatMessage, map[string]any{"message": "good luck", "language": "en", "translateTo": []string{"hi"}})
	msg := decode[models.ChatMessage](t, student.expect(signaling.EventChatMessage))
	translated := decode[signaling.ChatTranslatedPayload](t, student.expect(signaling.EventChatMessageTranslated))

	// Assert
	assert.Equal(t, msg.ID, translated.ID)
	assert.Equal(t, "शुभकामनाएं", translated.Translations["hi"])
}

func TestCaptions_TranslatedForEveryParticipantOnce(t *testing.T) {
	// Setup
	provider := &mockProvider{}
	provider.On("Translate", "hello", "en", "hi").Return(translation.Translated{Text: "नमस्ते", Confidence: 0.9}, nil)
	provider.On("Translate", "hello", "en", "ta").Return(translation.Translated{Text: "வணக்கம்", Confidence: 0.9}, nil)
	engine := translation.NewEngine(translation.NewCache(), []translation.Provider{provider}, translation.Options{Timeout: time.Second})
	env := newTestEnv(t, signaling.Config{Translator: engine, DefaultTargets: []string{"hi"}})
	host := env.host()
	host.join(env.session.ID)
	student := env.student("Asha")
	student.join(env.session.ID, withCaptionLanguage("ta"))
	caption := map[string]any{"text": "hello", "language": "en", "confidence": 0.93, "isFinal": true, "timestamp": 1700000000000}

	// Execute
	host.send(signaling.EventLiveCaption, caption)
	relayed := decode[models.LiveCaption](t, student.expect(signaling.EventLiveCaption))
	first := decode[signaling.CaptionTranslatedPayload](t, student.expect(signaling.EventLiveCaptionTranslated))
	firstAtHost := decode[signaling.CaptionTranslatedPayload](t, host.expect(signaling.EventLiveCaptionTranslated))

	host.send(signaling.EventLiveCaption, caption)
	second := decode[signaling.CaptionTranslatedPayload](t, student.expect(signaling.EventLiveCaptionTranslated))
	secondAtHost := decode[signaling.CaptionTranslatedPayload](t, host.expect(signaling.EventLiveCaptionTranslated))

	// Assert
	assert.Equal(t, relayed.ID, first.ID)
	assert.Equal(t, "Ms. Rao", relayed.UserName)
	assert.Equal(t, "नमस्ते", first.Translations["hi"])
	assert.Equal(t, "வணக்கம்", first.Translations["ta"])
	assert.Equal(t, first.Translations, firstAtHost.Translations)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Translations, second.Translations)
	assert.Equal(t, second.Translations, secondAtHost.Translations)
	provider.AssertNumberOfCalls(t, "Translate", 2)
}

func TestCaptions_InterimNotTranslated(t *testing.T) {
	// Setup
	provider := &mockProvider{}
	engine := translation.NewEngine(translation.NewCache(), []translation.Provider{provider}, translation.Options{})
	env := newTestEnv(t, signaling.Config{Translator: engine, DefaultTargets: []string{"hi"}})
	host := env.host()
	host.join(env.session.ID)
	student := env.student("Asha")
	student.join(env.session.ID)

	// Execute
	host.send(signaling.EventLiveCaption, map[string]any{"text": "hel", "language": "en", "isFinal": false})
	interim := decode[models.LiveCaption](t, student.expect(signaling.EventLiveCaption))
	snap, ok := env.hub.Snapshot(context.Background(), env.session.ID)

	// Assert
	assert.False(t, interim.IsFinal)
	require.True(t, ok)
	assert.Empty(t, snap.RecentCaptions)
	provider.AssertNotCalled(t, "Translate")
}

func TestCaptions_HostOnlyToggle(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	host := env.host()
	host.join(env.session.ID)
	student := env.student("Asha")
	student.join(env.session.ID)

	// Execute
	student.send(signaling.EventStartCaptions, map[string]string{"language": "hi"})
	denied := decode[signaling.ErrorPayload](t, student.expect(signaling.EventError))
	host.send(signaling.EventStartCaptions, map[string]string{"language": "hi"})
	started := decode[signaling.CaptionsStatePayload](t, student.expect(signaling.EventCaptionsStarted))

	// Assert
	assert.Equal(t, signaling.ErrNotHost.Error(), denied.Message)
	assert.Equal(t, "hi", started.Language)
	assert.Equal(t, env.hostID, started.UserID)
	stored, err := env.store.GetByID(context.Background(), env.session.ID)
	require.NoError(t, err)
	assert.True(t, stored.CaptionsEnabled)
	assert.Equal(t, "hi", stored.CaptionLanguage)
}

func TestRecording_HostOnlyAndNoOpWhenUnchanged(t *testing.T) {
	// Setup
	recorder := &mockRecorder{}
	rec := &models.Recording{ID: uuid.New(), Status: models.RecordingStatusRecording}
	env := newTestEnv(t, signaling.Config{Recorder: recorder})
	recorder.On("Start", env.session.ID, env.hostID).Return(rec, nil)
	recorder.On("Stop", env.session.ID).Return(rec, nil)
	host := env.host()
	host.join(env.session.ID)
	student := env.student("Asha")
	student.join(env.session.ID)

	// Execute
	student.send(signaling.EventToggleRecording, map[string]bool{"enable": true})
	denied := decode[signaling.ErrorPayload](t, student.expect(signaling.EventRecordingError))

	host.send(signaling.EventToggleRecording, map[string]bool{"enable": true})
	on := decode[signaling.RecordingStatusPayload](t, student.expect(signaling.EventRecordingStatus))
	host.expect(signaling.EventRecordingStatus)

	host.send(signaling.EventToggleRecording, map[string]bool{"enable": true})
	host.send(signaling.EventToggleRecording, map[string]bool{"enable": false})
	off := decode[signaling.RecordingStatusPayload](t, student.expect(signaling.EventRecordingStatus))

	// Assert
	assert.Equal(t, signaling.ErrNotHost.Error(), denied.Message)
	assert.True(t, on.IsRecording)
	require.NotNil(t, on.RecordingID)
	assert.Equal(t, rec.ID, *on.RecordingID)
	assert.False(t, off.IsRecording)
	recorder.AssertNumberOfCalls(t, "Start", 1)
	recorder.AssertNumberOfCalls(t, "Stop", 1)
}

func TestArtifacts_NonOwnerSlideChangeIgnored(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	host := env.host()
	host.join(env.session.ID)
	follower := env.student("Asha")
	follower.join(env.session.ID)
	intruder := env.student("Vik")
	intruder.join(env.session.ID)
	slides := []string{"https://cdn.example.com/s1.png", "https://cdn.example.com/s2.png", "https://cdn.example.com/s3.png"}

	// Execute
	host.send(signaling.EventSharePPT, map[string]any{"fileName": "week3.pptx", "slides": slides})
	shared := decode[signaling.ArtifactPayload](t, follower.expect(signaling.EventPPTShared))

	intruder.send(signaling.EventPPTSlideChange, map[string]int{"slide": 3})
	rejected := decode[signaling.ErrorPayload](t, intruder.expect(signaling.EventArtifactError))
	intruder.send(signaling.EventSharePPT, map[string]any{"slides": slides[:1]})
	notPresenter := decode[signaling.ErrorPayload](t, intruder.expect(signaling.EventArtifactError))

	host.send(signaling.EventPPTSlideChange, map[string]int{"slide": 2})
	changed := decode[signaling.ArtifactPayload](t, follower.expect(signaling.EventPPTSlideChanged))

	// Assert
	assert.Equal(t, 1, shared.Slide)
	assert.Equal(t, env.hostID, shared.OwnerID)
	assert.Len(t, shared.Slides, 3)
	assert.Equal(t, signaling.EventPPTSlideChange, rejected.Event)
	assert.Contains(t, rejected.Message, "only the owner")
	assert.Contains(t, notPresenter.Message, "only the presenter")
	assert.Equal(t, 2, changed.Slide)
	assert.Equal(t, env.hostID, changed.UserID)
	assert.Greater(t, changed.Version, shared.Version)
}

func TestArtifacts_LateJoinerAndOwnerLeaving(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	host := env.host()
	host.join(env.session.ID)
	presenter := env.student("Asha")
	presenter.join(env.session.ID)

	// Execute
	host.send(signaling.EventSetPresenter, map[string]string{"userId": presenter.userID.String()})
	changed := decode[signaling.PresenterPayload](t, presenter.expect(signaling.EventPresenterChanged))
	presenter.send(signaling.EventSharePDF, map[string]any{"fileUrl": "https://cdn.example.com/notes.pdf", "fileName": "notes.pdf", "totalPages": 12})
	host.expect(signaling.EventPDFShared)

	late := env.student("Late")
	joined := late.join(env.session.ID)

	_ = presenter.conn.Close()
	closed := decode[signaling.ArtifactPayload](t, host.expect(signaling.EventPDFClosed))
	back := decode[signaling.PresenterPayload](t, host.expect(signaling.EventPresenterChanged))
	left := decode[signaling.ParticipantPayload](t, host.expect(signaling.EventUserLeft))

	// Assert
	require.NotNil(t, changed.UserID)
	assert.Equal(t, presenter.userID, *changed.UserID)
	require.Len(t, joined.Artifacts, 1)
	assert.Equal(t, models.ArtifactPDF, joined.Artifacts[0].Kind)
	assert.Equal(t, 12, joined.Artifacts[0].TotalPages)
	require.NotNil(t, joined.PresenterID)
	assert.Equal(t, presenter.userID, *joined.PresenterID)
	assert.Equal(t, presenter.userID, closed.OwnerID)
	require.NotNil(t, back.UserID)
	assert.Equal(t, env.hostID, *back.UserID)
	assert.Equal(t, presenter.userID, left.UserID)
}

func TestSignal_RelayWithSenderIdentity(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	a := env.host()
	a.join(env.session.ID)
	b := env.student("B")
	b.join(env.session.ID)
	c := env.student("C")
	c.join(env.session.ID)
	sdp := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)

	// Execute
	a.send(signaling.EventOffer, map[string]any{"targetUserId": b.userID.String(), "sdp": sdp})
	offer := decode[signaling.SignalPayload](t, b.expect(signaling.EventOffer))

	a.send(signaling.EventICECandidate, map[string]any{"candidate": map[string]string{"candidate": "candidate:1 1 udp 1 10.0.0.1 5000 typ host"}})
	atB := decode[signaling.SignalPayload](t, b.expect(signaling.EventICECandidate))
	atC := decode[signaling.SignalPayload](t, c.expect(signaling.EventICECandidate))

	a.send(signaling.EventAnswer, map[string]any{"targetUserId": uuid.NewString(), "sdp": sdp})
	missing := decode[signaling.ErrorPayload](t, a.expect(signaling.EventSignalError))

	// Assert
	assert.Equal(t, env.hostID, offer.FromUserID)
	require.NotNil(t, offer.TargetUserID)
	assert.Equal(t, b.userID, *offer.TargetUserID)
	assert.JSONEq(t, string(sdp), string(offer.SDP))
	assert.Equal(t, env.hostID, atB.FromUserID)
	assert.Equal(t, env.hostID, atC.FromUserID)
	assert.Nil(t, atC.TargetUserID)
	assert.Equal(t, signaling.ErrTargetNotFound.Error(), missing.Message)
}

func TestEndSession_ByHostRejectsFurtherEvents(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	host := env.host()
	host.join(env.session.ID)
	student := env.student("Asha")
	student.join(env.session.ID)

	// Execute
	student.send(signaling.EventEndSession, map[string]string{})
	denied := decode[signaling.ErrorPayload](t, student.expect(signaling.EventError))
	host.send(signaling.EventEndSession, map[string]string{"sessionId": env.session.ID.String()})
	ended := decode[signaling.SessionEndedPayload](t, student.expect(signaling.EventSessionEnded))
	student.send(signaling.EventChatMessage, map[string]string{"message": "still there?"})
	afterEnd := decode[signaling.ErrorPayload](t, student.expect(signaling.EventError))

	// Assert
	assert.Equal(t, signaling.ErrNotHost.Error(), denied.Message)
	assert.Equal(t, env.session.ID, ended.SessionID)
	assert.Equal(t, signaling.ErrSessionNotActive.Error(), afterEnd.Message)
	stored, err := env.store.GetByID(context.Background(), env.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, stored.Status)
}

func TestHub_EndSessionNotifiesParticipants(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	student := env.student("Asha")
	student.join(env.session.ID)

	// Execute
	updated, err := env.hub.EndSession(context.Background(), env.session.ID, "ended by host")
	ended := decode[signaling.SessionEndedPayload](t, student.expect(signaling.EventSessionEnded))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, updated.Status)
	assert.Equal(t, "ended by host", ended.Reason)
	_, running := env.hub.Snapshot(context.Background(), env.session.ID)
	assert.False(t, running)
}

func TestLeave_HostLeavePolicy(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{EndPolicy: signaling.HostLeavePolicy})
	host := env.host()
	host.join(env.session.ID)
	student := env.student("Asha")
	student.join(env.session.ID)

	// Execute
	_ = host.conn.Close()
	left := decode[signaling.ParticipantPayload](t, student.expect(signaling.EventUserLeft))
	ended := decode[signaling.SessionEndedPayload](t, student.expect(signaling.EventSessionEnded))

	// Assert
	assert.Equal(t, env.hostID, left.UserID)
	assert.Equal(t, "host left", ended.Reason)
	stored, err := env.store.GetByID(context.Background(), env.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, stored.Status)
}

func TestLeave_WithoutPolicySessionStaysActive(t *testing.T) {
	// Setup
	env := newTestEnv(t, signaling.Config{})
	host := env.host()
	host.join(env.session.ID)
	student := env.student("Asha")
	student.join(env.session.ID)

	// Execute
	host.send(signaling.EventLeaveSession, map[string]string{"sessionId": env.session.ID.String()})
	student.expect(signaling.EventUserLeft)
	snap, ok := env.hub.Snapshot(context.Background(), env.session.ID)

	// Assert
	require.True(t, ok)
	require.Len(t, snap.Participants, 1)
	assert.Equal(t, student.userID, snap.Participants[0].UserID)
	stored, err := env.store.GetByID(context.Background(), env.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, stored.Status)
}

func TestHostLeavePolicy(t *testing.T) {
	departed := models.Participant{UserID: uuid.New(), Role: models.RoleTeacher}
	student := models.Participant{UserID: uuid.New(), Role: models.RoleStudent}
	coTeacher := models.Participant{UserID: uuid.New(), Role: models.RoleTeacher}

	assert.True(t, signaling.HostLeavePolicy(departed, true, []models.Participant{student}))
	assert.True(t, signaling.HostLeavePolicy(departed, true, nil))
	assert.False(t, signaling.HostLeavePolicy(departed, true, []models.Participant{student, coTeacher}))
	assert.False(t, signaling.HostLeavePolicy(student, false, []models.Participant{departed}))
}

func TestAttendance_JoinLeaveAndClose(t *testing.T) {
	// Setup
	log := newFakeAttendance()
	env := newTestEnv(t, signaling.Config{Attendance: log})
	host := env.host()
	host.join(env.session.ID)
	require.Equal(t, "join:"+env.hostID.String()+":teacher", log.next(t))
	student := env.student("Asha")
	student.join(env.session.ID)
	require.Equal(t, "join:"+student.userID.String()+":student", log.next(t))

	// Execute
	student.send(signaling.EventLeaveSession, map[string]string{"sessionId": env.session.ID.String()})
	leave := log.next(t)
	host.send(signaling.EventEndSession, map[string]string{"sessionId": env.session.ID.String()})
	host.expect(signaling.EventSessionEnded)

	// Assert
	assert.Equal(t, "leave:"+student.userID.String(), leave)
	assert.Equal(t, "close:"+env.session.ID.String(), log.next(t))
}

func TestAttendance_SlowWritesKeepEventOrder(t *testing.T) {
	// Setup
	log := newFakeAttendance()
	log.joinDelay = 100 * time.Millisecond
	env := newTestEnv(t, signaling.Config{Attendance: log})
	host := env.host()
	host.join(env.session.ID)
	student := env.student("Asha")
	student.join(env.session.ID)

	// Execute
	student.send(signaling.EventLeaveSession, map[string]string{"sessionId": env.session.ID.String()})
	host.expect(signaling.EventUserLeft)
	got := []string{log.next(t), log.next(t), log.next(t)}

	// Assert
	assert.Equal(t, []string{
		"join:" + env.hostID.String() + ":teacher",
		"join:" + student.userID.String() + ":student",
		"leave:" + student.userID.String(),
	}, got)
}

func TestLeave_FailedEndStillClosesEmptyRoom(t *testing.T) {
	// Setup
	env := newTestEnvWithStore(t, signaling.Config{EndPolicy: signaling.HostLeavePolicy},
		func(s livesessions.Store) livesessions.Store { return endFailingStore{Store: s} })
	host := env.host()
	host.join(env.session.ID)

	// Execute
	host.send(signaling.EventLeaveSession, map[string]string{"sessionId": env.session.ID.String()})

	// Assert
	require.Eventually(t, func() bool {
		_, running := env.hub.Snapshot(context.Background(), env.session.ID)
		return !running
	}, readTimeout, 20*time.Millisecond)
	stored, err := env.store.GetByID(context.Background(), env.session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, stored.Status)
}
