package signaling_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/learnx/live-backend/internal/auth"
	"github.com/learnx/live-backend/internal/livesessions"
	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/internal/signaling"
	"github.com/learnx/live-backend/internal/translation"
)

const readTimeout = 3 * time.Second

type testEnv struct {
	t       *testing.T
	server  *httptest.Server
	hub     *signaling.Hub
	store   *livesessions.MemoryStore
	jwt     *auth.JWTService
	hostID  uuid.UUID
	session *models.LiveSession
}

func newTestEnv(t *testing.T, cfg signaling.Config) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, cfg, nil)
}

// newTestEnvWithStore lets a test wrap the in-memory store the hub sees.
func newTestEnvWithStore(t *testing.T, cfg signaling.Config, wrap func(livesessions.Store) livesessions.Store) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := livesessions.NewMemoryStore()
	hostID := uuid.New()
	sess := &models.LiveSession{HostID: hostID, Title: "Algebra II", Status: models.SessionActive}
	require.NoError(t, store.Create(context.Background(), sess))

	cfg.Store = store
	if wrap != nil {
		cfg.Store = wrap(store)
	}
	hub := signaling.NewHub(cfg)
	jwtSvc := auth.NewJWTService("test-secret", 1)

	r := gin.New()
	r.GET("/ws", signaling.ServeWs(hub, jwtSvc, "*", nil))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	return &testEnv{t: t, server: srv, hub: hub, store: store, jwt: jwtSvc, hostID: hostID, session: sess}
}

// addSession stores another session with the given status.
func (e *testEnv) addSession(status models.SessionStatus) *models.LiveSession {
	s := &models.LiveSession{HostID: e.hostID, Title: "Other", Status: status}
	require.NoError(e.t, e.store.Create(context.Background(), s))
	return s
}

type wsPeer struct {
	t      *testing.T
	conn   *websocket.Conn
	userID uuid.UUID
	name   string
}

func (e *testEnv) dial(userID uuid.UUID, name string, role models.Role) *wsPeer {
	e.t.Helper()
	token, err := e.jwt.Generate(userID, name, string(role))
	require.NoError(e.t, err)
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = conn.Close() })
	return &wsPeer{t: e.t, conn: conn, userID: userID, name: name}
}

func (e *testEnv) host() *wsPeer {
	return e.dial(e.hostID, "Ms. Rao", models.RoleTeacher)
}

func (e *testEnv) student(name string) *wsPeer {
	return e.dial(uuid.New(), name, models.RoleStudent)
}

func (p *wsPeer) send(event string, data any) {
	p.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteJSON(signaling.Envelope{Event: event, Data: raw}))
}

// expect reads until an event with the given name arrives, skipping others.
func (p *wsPeer) expect(event string) signaling.Envelope {
	p.t.Helper()
	deadline := time.Now().Add(readTimeout)
	for {
		require.NoError(p.t, p.conn.SetReadDeadline(deadline))
		var env signaling.Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			p.t.Fatalf("waiting for %q: %v", event, err)
		}
		if env.Event == event {
			return env
		}
	}
}

func (p *wsPeer) join(sessionID uuid.UUID, extra ...func(map[string]any)) signaling.SessionJoinedPayload {
	p.t.Helper()
	data := map[string]any{
		"sessionId": sessionID.String(),
		"userId":    p.userID.String(),
		"userName":  p.name,
	}
	for _, fn := range extra {
		fn(data)
	}
	p.send(signaling.EventJoinSession, data)
	return decode[signaling.SessionJoinedPayload](p.t, p.expect(signaling.EventSessionJoined))
}

func withCaptionLanguage(lang string) func(map[string]any) {
	return func(m map[string]any) { m["captionLanguage"] = lang }
}

func decode[T any](t *testing.T, env signaling.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "primary" }

func (m *mockProvider) Translate(ctx context.Context, req translation.Request) (translation.Translated, error) {
	args := m.Called(req.Text, req.Source, req.Target)
	return args.Get(0).(translation.Translated), args.Error(1)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Start(ctx context.Context, sessionID, startedBy uuid.UUID) (*models.Recording, error) {
	args := m.Called(sessionID, startedBy)
	rec, _ := args.Get(0).(*models.Recording)
	return rec, args.Error(1)
}

func (m *mockRecorder) Stop(ctx context.Context, sessionID uuid.UUID) (*models.Recording, error) {
	args := m.Called(sessionID)
	rec, _ := args.Get(0).(*models.Recording)
	return rec, args.Error(1)
}

// fakeAttendance reports each call as "join:<user>:<role>", "leave:<user>" or "close:<session>".
// joinDelay slows every LogJoin down.
type fakeAttendance struct {
	events    chan string
	joinDelay time.Duration
}

func newFakeAttendance() *fakeAttendance {
	return &fakeAttendance{events: make(chan string, 16)}
}

func (f *fakeAttendance) LogJoin(_ context.Context, _, userID uuid.UUID, role models.Role, _ time.Time) error {
	time.Sleep(f.joinDelay)
	f.events <- "join:" + userID.String() + ":" + string(role)
	return nil
}

func (f *fakeAttendance) LogLeave(_ context.Context, _, userID uuid.UUID, _ time.Time) error {
	f.events <- "leave:" + userID.String()
	return nil
}

func (f *fakeAttendance) CloseSession(_ context.Context, sessionID uuid.UUID, _ time.Time) error {
	f.events <- "close:" + sessionID.String()
	return nil
}

func (f *fakeAttendance) next(t *testing.T) string {
	t.Helper()
	select {
	case e := <-f.events:
		return e
	case <-time.After(readTimeout):
		t.Fatal("no attendance event")
		return ""
	}
}

// endFailingStore fails every transition to ended.
type endFailingStore struct {
	livesessions.Store
}

func (s endFailingStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) (*models.LiveSession, error) {
	if status == models.SessionEnded {
		return nil, errors.New("database unavailable")
	}
	return s.Store.UpdateStatus(ctx, id, status)
}
