package participant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/learnx/live-backend/internal/captions"
	"github.com/learnx/live-backend/internal/signaling"
)

const (
	writeWait    = 10 * time.Second
	eventsBuffer = 256
)

var (
	// ErrClosed is returned after the connection has gone away.
	ErrClosed = errors.New("participant connection closed")
	// ErrJoinRejected wraps the server's join-error message.
	ErrJoinRejected = errors.New("join rejected")
)

// Client is the participant side of the live-session channel: one WebSocket, typed
// sends, and an ordered stream of server events.
type Client struct {
	conn   *websocket.Conn
	log    *zap.Logger
	events chan signaling.Envelope
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu        sync.Mutex
	waiters   []*waiter
	sessionID uuid.UUID
	userID    uuid.UUID
}

type waiter struct {
	events []string
	ch     chan signaling.Envelope
}

// Dial connects to serverURL (http or https root) with a bearer token.
func Dial(ctx context.Context, serverURL, token string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	c := &Client{
		conn:   conn,
		log:    logger,
		events: make(chan signaling.Envelope, eventsBuffer),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events returns server events in arrival order. The channel is closed when the
// connection ends. Callers must drain it.
func (c *Client) Events() <-chan signaling.Envelope {
	return c.events
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer c.Close()
	for {
		var env signaling.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("live channel read failed", zap.Error(err))
			}
			return
		}
		c.notify(env)
		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Client) notify(env signaling.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if matches(w.events, env.Event) {
			w.ch <- env
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
}

func matches(events []string, event string) bool {
	for _, e := range events {
		if e == event {
			return true
		}
	}
	return false
}

// await registers interest in the next envelope with one of the given names. It must be
// called before the request that triggers the reply is sent.
func (c *Client) await(events ...string) *waiter {
	w := &waiter{events: events, ch: make(chan signaling.Envelope, 1)}
	c.mu.Lock()
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return w
}

func (c *Client) wait(ctx context.Context, w *waiter) (signaling.Envelope, error) {
	select {
	case env := <-w.ch:
		return env, nil
	case <-c.done:
		return signaling.Envelope{}, ErrClosed
	case <-ctx.Done():
		c.mu.Lock()
		for i, other := range c.waiters {
			if other == w {
				c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		return signaling.Envelope{}, ctx.Err()
	}
}

// Send writes one event. It is safe for concurrent use.
func (c *Client) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(signaling.Envelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// JoinOptions are the optional fields of a join.
type JoinOptions struct {
	Name            string
	Role            string
	CaptionLanguage string
}

// Join enters sessionID as userID and returns the session state.
func (c *Client) Join(ctx context.Context, sessionID, userID uuid.UUID, opts JoinOptions) (*signaling.SessionJoinedPayload, error) {
	w := c.await(signaling.EventSessionJoined, signaling.EventJoinError)
	err := c.Send(signaling.EventJoinSession, signaling.JoinSessionPayload{
		SessionID:       sessionID.String(),
		UserID:          userID.String(),
		UserRole:        opts.Role,
		UserName:        opts.Name,
		CaptionLanguage: opts.CaptionLanguage,
	})
	if err != nil {
		return nil, err
	}
	env, err := c.wait(ctx, w)
	if err != nil {
		return nil, err
	}
	if env.Event == signaling.EventJoinError {
		var p signaling.ErrorPayload
		_ = json.Unmarshal(env.Data, &p)
		return nil, fmt.Errorf("%w: %s", ErrJoinRejected, p.Message)
	}
	var joined signaling.SessionJoinedPayload
	if err := json.Unmarshal(env.Data, &joined); err != nil {
		return nil, fmt.Errorf("decode session-joined: %w", err)
	}
	c.mu.Lock()
	c.sessionID, c.userID = sessionID, userID
	c.mu.Unlock()
	return &joined, nil
}

// SessionID returns the joined session, or uuid.Nil.
func (c *Client) SessionID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// UserID returns the identity used for the last successful join.
func (c *Client) UserID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Leave leaves the joined session and keeps the connection open.
func (c *Client) Leave() error {
	c.mu.Lock()
	c.sessionID = uuid.Nil
	c.mu.Unlock()
	return c.Send(signaling.EventLeaveSession, signaling.SessionRefPayload{})
}

// Ping measures the round trip through the server's pong-test reply.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	w := c.await(signaling.EventPongTest)
	start := time.Now()
	if err := c.Send(signaling.EventPingTest, signaling.PingTestPayload{Timestamp: start.UnixMilli()}); err != nil {
		return 0, err
	}
	if _, err := c.wait(ctx, w); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// SendChat posts a chat message; translateTo asks the server for translations.
func (c *Client) SendChat(message, language string, translateTo ...string) error {
	return c.Send(signaling.EventChatMessage, signaling.ChatMessagePayload{
		Message:     message,
		Language:    language,
		TranslateTo: translateTo,
	})
}

// SendCaption publishes one recognizer result to the session.
func (c *Client) SendCaption(r captions.Result) error {
	ts := r.At
	if ts.IsZero() {
		ts = time.Now()
	}
	return c.Send(signaling.EventLiveCaption, signaling.LiveCaptionPayload{
		Text:       r.Text,
		Language:   r.Language,
		Confidence: r.Confidence,
		IsFinal:    r.IsFinal,
		Timestamp:  ts.UnixMilli(),
		StartTime:  r.StartTime.Seconds(),
	})
}

// ToggleRecording asks the server to start or stop recording (host only).
func (c *Client) ToggleRecording(enable bool) error {
	return c.Send(signaling.EventToggleRecording, signaling.ToggleRecordingPayload{Enable: &enable})
}

// SetCaptions turns session captions on or off (host only).
func (c *Client) SetCaptions(enable bool, language string) error {
	event := signaling.EventStopCaptions
	if enable {
		event = signaling.EventStartCaptions
	}
	return c.Send(event, signaling.CaptionsPayload{Language: language})
}

// SharePDF shares a document with the session (presenter only).
func (c *Client) SharePDF(fileURL, fileName string, totalPages int) error {
	return c.Send(signaling.EventSharePDF, signaling.SharePDFPayload{FileURL: fileURL, FileName: fileName, TotalPages: totalPages})
}

// ChangePage moves the shared document to page.
func (c *Client) ChangePage(page int) error {
	return c.Send(signaling.EventPDFPageChange, signaling.PageChangePayload{Page: page})
}

// ClosePDF stops sharing the document.
func (c *Client) ClosePDF() error {
	return c.Send(signaling.EventClosePDF, signaling.SessionRefPayload{})
}

// EndSession ends the session for everyone (host only).
func (c *Client) EndSession() error {
	return c.Send(signaling.EventEndSession, signaling.SessionRefPayload{})
}

// SendOffer implements rtc.Signaler.
func (c *Client) SendOffer(to uuid.UUID, sdp webrtc.SessionDescription) error {
	return c.sendDescription(signaling.EventOffer, to, sdp)
}

// SendAnswer implements rtc.Signaler.
func (c *Client) SendAnswer(to uuid.UUID, sdp webrtc.SessionDescription) error {
	return c.sendDescription(signaling.EventAnswer, to, sdp)
}

// SendCandidate implements rtc.Signaler.
func (c *Client) SendCandidate(to uuid.UUID, candidate webrtc.ICECandidateInit) error {
	raw, err := json.Marshal(candidate)
	if err != nil {
		return err
	}
	return c.Send(signaling.EventICECandidate, signaling.CandidatePayload{TargetUserID: to.String(), Candidate: raw})
}

func (c *Client) sendDescription(event string, to uuid.UUID, sdp webrtc.SessionDescription) error {
	raw, err := json.Marshal(sdp)
	if err != nil {
		return err
	}
	return c.Send(event, signaling.DescriptionPayload{TargetUserID: to.String(), SDP: raw})
}

// Close closes the connection. Events is closed once the read loop exits.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
