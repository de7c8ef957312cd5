package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/aide/internal/auth"
	"github.com/haasonsaas/aide/internal/canvas"
	"github.com/haasonsaas/aide/internal/sessions"
	"github.com/haasonsaas/aide/pkg/models"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsPongWait        = 45 * time.Second
	wsPingInterval    = 15 * time.Second
	wsWriteWait       = 10 * time.Second
	wsSendBuffer      = 64
)

// handleWS upgrades a client connection and runs the canvas bridge for
// one session. The session id comes from the query string; credentials
// come from the Authorization header or a token query parameter.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		http.Error(w, "missing session parameter", http.StatusBadRequest)
		return
	}

	identity, err := s.authenticateWS(r, sessionID)
	if err != nil {
		status := http.StatusUnauthorized
		if err == errWSForbidden {
			status = http.StatusForbidden
		}
		http.Error(w, err.Error(), status)
		return
	}

	sess, err := s.ensureSession(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("canvas session unavailable", "session_id", sessionID, "error", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newWSConn(s, conn, sess, identity)
	s.metrics.WSConnected()
	defer s.metrics.WSDisconnected()
	c.run()
}

var errWSForbidden = &wsAuthError{"identity not authorized for session"}

type wsAuthError struct{ msg string }

func (e *wsAuthError) Error() string { return e.msg }

// authenticateWS resolves the caller's identity. With auth disabled every
// caller is an operator.
func (s *Server) authenticateWS(r *http.Request, sessionID string) (auth.Identity, error) {
	if s.auth == nil || !s.auth.Enabled() {
		return auth.Identity{Role: auth.RoleOperator}, nil
	}

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if header := r.Header.Get("Authorization"); header != "" {
		if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
			token = strings.TrimSpace(rest)
		}
	}
	if token == "" {
		return auth.Identity{}, &wsAuthError{"missing credentials"}
	}

	identity, err := s.auth.ValidateToken(token)
	if err != nil {
		identity, err = s.auth.ValidateAPIKey(token)
	}
	if err != nil {
		return auth.Identity{}, &wsAuthError{"invalid credentials"}
	}
	if !s.auth.Authorize(identity, sessionID) {
		return auth.Identity{}, errWSForbidden
	}
	return identity, nil
}

// wsConn is one live bridge connection. A dedicated writer goroutine owns
// the socket for writes; frames reach it through the send channel and are
// dropped when the client cannot keep up.
type wsConn struct {
	server   *Server
	conn     *websocket.Conn
	sess     *sessions.Session
	state    *canvas.State
	identity auth.Identity

	send   chan []byte
	done   chan struct{}
	closed atomic.Bool

	// lastStatus is touched only by run and forwardLoop, never
	// concurrently.
	lastStatus string

	stopOnce sync.Once
}

func newWSConn(s *Server, conn *websocket.Conn, sess *sessions.Session, identity auth.Identity) *wsConn {
	return &wsConn{
		server:   s,
		conn:     conn,
		sess:     sess,
		state:    s.canvas.GetOrCreate(sess.ID()),
		identity: identity,
		send:     make(chan []byte, wsSendBuffer),
		done:     make(chan struct{}),
	}
}

// run services the connection until the client goes away or the bridge
// stops. It blocks in the read loop.
func (c *wsConn) run() {
	defer c.stop()

	go c.writeLoop()

	// The client always sees current canvas state before any deltas.
	c.enqueue(snapshotFrame(c.state.Snapshot()))
	c.enqueue(statusFrame(c.sess.ID(), statusIdle))
	c.lastStatus = statusIdle

	events, cancelEvents := c.server.events.Subscribe(c.sess.ID(), defaultEventBuffer)
	defer cancelEvents()
	changes, cancelChanges := c.state.Hub().Subscribe(wsSendBuffer)
	defer cancelChanges()
	go c.forwardLoop(events, changes)

	c.readLoop()
}

// stop tears the connection down. Idempotent; no frame is enqueued after
// it returns.
func (c *wsConn) stop() {
	c.stopOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *wsConn) enqueue(frame s2cFrame) {
	if c.closed.Load() {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		c.server.logger.Warn("marshal frame failed", "type", frame.Type, "error", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.server.logger.Warn("ws send buffer full, dropping frame",
			"session_id", c.sess.ID(), "type", frame.Type)
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.stop()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}
		}
	}
}

// forwardLoop translates agent events and canvas changes into outbound
// frames. Consecutive duplicate status frames collapse to one.
func (c *wsConn) forwardLoop(events <-chan *models.AgentEvent, changes <-chan canvas.Change) {
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			for _, frame := range framesForEvent(event) {
				if frame.Type == frameS2CAgentStatus {
					if frame.Status == c.lastStatus {
						continue
					}
					c.lastStatus = frame.Status
				}
				c.enqueue(frame)
			}
		case change, ok := <-changes:
			if !ok {
				return
			}
			c.enqueue(changeFrame(change))
		}
	}
}

func (c *wsConn) readLoop() {
	c.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		c.handleFrame(data)
	}
}

func (c *wsConn) handleFrame(data []byte) {
	var frame c2sFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.enqueue(errorFrame(errCodeParse, "malformed JSON frame"))
		return
	}
	if err := validateC2SFrame(data, &frame); err != nil {
		c.enqueue(errorFrame(errCodeSchema, err.Error()))
		return
	}

	switch frame.Type {
	case frameC2SPing:
		c.enqueue(pongFrame(c.server.now()))

	case frameC2SMessage:
		c.dispatchText(frame.Text)

	case frameC2SClick:
		payload, _ := json.Marshal(map[string]string{
			"node_id": frame.NodeID,
			"action":  frame.Action,
		})
		c.dispatchText(PrefixUserClick + " " + string(payload))

	case frameC2SFormSubmit:
		payload, _ := json.Marshal(struct {
			NodeID string          `json:"node_id"`
			Fields json.RawMessage `json:"fields"`
		}{NodeID: frame.NodeID, Fields: frame.Fields})
		c.dispatchText(PrefixFormSubmit + " " + string(payload))

	case frameC2SDrag:
		if !c.identity.CanWrite() {
			c.enqueue(errorFrame(errCodeForbidden, "observer role cannot modify the canvas"))
			return
		}
		if err := c.state.MoveNode(frame.NodeID, frame.X, frame.Y); err != nil {
			c.enqueue(errorFrame(errCodeCanvas, err.Error()))
		}

	case frameC2SAbort:
		c.dispatchText(PrefixAbort)
	}
}

// dispatchText feeds user input into the agent as a canvas-channel
// message. The dispatch context is the server's, not the connection's:
// a client disconnect must not kill an in-flight run.
func (c *wsConn) dispatchText(text string) {
	if !c.identity.CanWrite() {
		c.enqueue(errorFrame(errCodeForbidden, "observer role cannot drive the session"))
		return
	}
	msg := &models.InboundMessage{
		ID:        uuid.NewString(),
		ChannelID: c.sess.ID(),
		From: models.Sender{
			ChannelID: string(models.ChannelCanvas),
			UserID:    c.senderID(),
		},
		Text:      text,
		Timestamp: c.server.now(),
	}
	if err := c.server.dispatcher.Dispatch(c.server.runContext(), c.sess, msg); err != nil {
		c.server.logger.Warn("canvas dispatch failed", "session_id", c.sess.ID(), "error", err)
		c.enqueue(errorFrame(errCodeDispatch, err.Error()))
	}
}

func (c *wsConn) senderID() string {
	if uid := c.sess.Snapshot().UserID; uid != "" {
		return uid
	}
	return string(models.ChannelCanvas)
}
