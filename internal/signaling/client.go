package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/learnx/live-backend/internal/auth"
	"github.com/learnx/live-backend/internal/middleware"
	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/pkg/response"
)

// Client represents a single WebSocket connection. The token identity is fixed for the
// lifetime of the connection; the joined session can change.
type Client struct {
	ID     string
	UserID uuid.UUID
	Name   string
	Role   models.Role

	ctx       context.Context
	hub       *Hub
	conn      *websocket.Conn
	send      chan Envelope
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger

	// session is read and written only by readPump.
	session *session
}

// ServeWs handles GET /ws?token=<jwt>: it authenticates, upgrades, and runs the client loop.
func ServeWs(hub *Hub, jwtService *auth.JWTService, allowedOrigins string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(allowedOrigins, r.Header.Get("Origin"))
		},
	}
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = middleware.BearerToken(c.GetHeader("Authorization"))
		}
		if token == "" {
			response.Unauthorized(c, "token required")
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		role := models.Role(claims.Role)
		if !role.Valid() {
			response.Forbidden(c, "unknown role")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		id := uuid.New().String()
		client := &Client{
			ID:     id,
			UserID: claims.UserID,
			Name:   claims.Name,
			Role:   role,
			ctx:    c.Request.Context(),
			hub:    hub,
			conn:   conn,
			send:   make(chan Envelope, hub.cfg.ClientBuffer),
			done:   make(chan struct{}),
			logger: logger.With(zap.String("client_id", id), zap.String("user_id", claims.UserID.String())),
		}
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		if c.session != nil {
			c.session.post(leaveCmd{client: c})
		}
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.sendEvent(EventError, ErrorPayload{Message: "invalid message: expected {\"event\", \"data\"}"})
			continue
		}
		c.handle(env)
	}
}

func (c *Client) handle(env Envelope) {
	payload, err := Decode(env)
	if err != nil {
		c.sendError(EventError, env.Event, err)
		return
	}

	switch p := payload.(type) {
	case *PingTestPayload:
		c.sendEvent(EventPongTest, PongPayload{Timestamp: p.Timestamp, ServerTime: time.Now().UnixMilli()})
		return
	case *JoinSessionPayload:
		c.join(p)
		return
	}

	if c.session == nil {
		c.sendError(EventError, env.Event, ErrNotJoined)
		return
	}
	if ref := sessionRef(payload); ref != "" {
		if id, err := uuid.Parse(ref); err != nil || id != c.session.id {
			c.sendError(EventError, env.Event, ErrWrongSession)
			return
		}
	}
	if env.Event == EventLeaveSession {
		c.session.post(leaveCmd{client: c})
		c.session = nil
		return
	}
	if !c.session.post(eventCmd{client: c, event: env.Event, payload: payload}) {
		c.session = nil
		c.sendError(EventError, env.Event, ErrSessionNotActive)
	}
}

func (c *Client) join(p *JoinSessionPayload) {
	if c.session != nil {
		if id, _ := uuid.Parse(p.SessionID); id == c.session.id {
			// Rejoin of the same session resends the state.
			reply := make(chan error, 1)
			if c.session.post(joinCmd{client: c, payload: p, reply: reply}) {
				if err := <-reply; err != nil {
					c.session = nil
					c.sendEvent(EventJoinError, ErrorPayload{Message: err.Error()})
				}
				return
			}
		} else {
			c.session.post(leaveCmd{client: c})
		}
		c.session = nil
	}
	s, err := c.hub.join(c.ctx, c, p)
	if err != nil {
		c.logger.Info("join rejected", zap.String("session_id", p.SessionID), zap.Error(err))
		c.sendEvent(EventJoinError, ErrorPayload{Message: err.Error()})
		return
	}
	c.session = s
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// deliver queues env without blocking. A client that cannot keep up is disconnected
// rather than skipped, so every participant sees a sender's events in order or not at all.
func (c *Client) deliver(env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		c.logger.Warn("client send buffer full, disconnecting")
		c.close()
		return false
	}
}

func (c *Client) sendEvent(event string, payload any) {
	env, err := newEnvelope(event, payload)
	if err != nil {
		c.logger.Error("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}
	c.deliver(env)
}

// sendError reports a failed action. cause names the inbound event that failed.
func (c *Client) sendError(event, cause string, err error) {
	c.sendEvent(event, ErrorPayload{Event: cause, Message: err.Error()})
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func newEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}
