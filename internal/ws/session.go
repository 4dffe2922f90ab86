package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

const (
	DefaultMaxAttempts  = 5
	DefaultRetryDelay   = 1000 * time.Millisecond
	DefaultDialTimeout  = 10000 * time.Millisecond
	DefaultWriteTimeout = 10 * time.Second
)

// Handler receives everything a session observes. Calls for one session are
// made sequentially, except the Disconnected transition which runs on the
// goroutine calling Close.
type Handler interface {
	HandleFrame(epoch uint64, frame []byte)
	HandleState(state models.ConnectionState, epoch uint64, err error)
}

// Options configures connection attempts.
type Options struct {
	URL         string
	MaxAttempts int
	RetryDelay  time.Duration
	DialTimeout time.Duration

	// WriteTimeout bounds every frame write, close frames included.
	WriteTimeout time.Duration
	Dial         DialFunc
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Dial == nil {
		o.Dial = GorillaDial(&websocket.Dialer{HandshakeTimeout: o.DialTimeout})
	}
	return o
}

// Session is one event-stream connection for an (identity, room) pair.
// Close is terminal for the handle.
type Session struct {
	identity string
	roomID   string
	url      string
	opts     Options
	handler  Handler
	epochs   func() uint64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state models.ConnectionState
	conn  Conn
	info  ConnInfo

	writeMu sync.Mutex
}

func newSession(identity, roomID, rawURL string, opts Options, handler Handler, epochs func() uint64) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		identity: identity,
		roomID:   roomID,
		url:      rawURL,
		opts:     opts,
		handler:  handler,
		epochs:   epochs,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    models.StateIdle,
	}
}

// Identity returns the username the session was opened for.
func (s *Session) Identity() string { return s.identity }

// RoomID returns the room the session serves.
func (s *Session) RoomID() string { return s.roomID }

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current connection state.
func (s *Session) State() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Epoch returns the epoch of the current connected episode, or zero.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.StateConnected {
		return 0
	}
	return s.info.Epoch
}

// Send writes one outbound event. It fails with ErrNotConnected unless the
// session is connected; nothing is queued.
func (s *Session) Send(kind string, payload any) error {
	env := models.Envelope{Type: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", kind, err)
		}
		env.Data = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}

	s.mu.Lock()
	conn := s.conn
	connected := s.state == models.StateConnected
	s.mu.Unlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Printf("websocket write error: %v", err)
		observability.IncWSEvent("session", "ws_error")
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}

// Close drives the session to Disconnected from any state.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	epoch := s.info.Epoch
	wasConnected := s.state == models.StateConnected
	s.state = models.StateDisconnected
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(s.opts.WriteTimeout))
		s.writeMu.Unlock()
		_ = conn.Close()
	}
	if wasConnected {
		observability.DecWSActive()
	}
	observability.IncWSEvent("session", "ws_disconnect")
	log.Printf("session closed username=%s room=%s epoch=%d", s.identity, s.roomID, epoch)
	s.handler.HandleState(models.StateDisconnected, epoch, nil)
	return nil
}

func (s *Session) run() {
	defer close(s.done)

	if !s.transition(models.StateConnecting, 0, nil) {
		return
	}
	conn, err := s.dial(0)
	if err != nil {
		log.Printf("session connect failed username=%s room=%s: %v", s.identity, s.roomID, err)
		conn, err = s.reconnect(err)
		if err != nil {
			s.fail(err)
			return
		}
	}

	for {
		if !s.attach(conn) {
			_ = conn.Close()
			return
		}
		readErr := s.readLoop(conn)
		if !s.detach(conn, readErr) {
			return
		}
		conn, err = s.reconnect(readErr)
		if err != nil {
			s.fail(err)
			return
		}
	}
}

// reconnect retries the dial with fixed spacing until it succeeds, the
// attempts run out or the session is closed.
func (s *Session) reconnect(cause error) (Conn, error) {
	if !s.transition(models.StateReconnecting, 0, cause) {
		return nil, ErrSessionClosed
	}
	lastErr := cause
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		timer := time.NewTimer(s.opts.RetryDelay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return nil, ErrSessionClosed
		case <-timer.C:
		}

		observability.IncReconnectAttempt()
		log.Printf("session reconnect attempt=%d/%d username=%s room=%s", attempt, s.opts.MaxAttempts, s.identity, s.roomID)
		conn, err := s.dial(attempt)
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, context.Canceled) && s.ctx.Err() != nil {
			return nil, ErrSessionClosed
		}
		lastErr = err
		log.Printf("session reconnect failed attempt=%d: %v", attempt, err)
	}
	return nil, &TransportError{Attempts: s.opts.MaxAttempts, Err: lastErr}
}

func (s *Session) dial(attempt int) (Conn, error) {
	ctx, span := otel.Tracer("chat-sync/ws").Start(s.ctx, "ws.dial")
	defer span.End()
	span.SetAttributes(
		attribute.String("chat.room_id", s.roomID),
		attribute.Int("ws.attempt", attempt),
	)

	ctx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
	defer cancel()
	conn, err := s.opts.Dial(ctx, s.url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.IncWSEvent("session", "ws_dial_error")
		return nil, err
	}
	s.mu.Lock()
	s.info.Attempt = attempt
	s.mu.Unlock()
	return conn, nil
}

// attach makes conn the live connection and opens a new epoch.
func (s *Session) attach(conn Conn) bool {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.conn = conn
	s.state = models.StateConnected
	s.info = ConnInfo{
		ConnID:      uuid.NewString(),
		Username:    s.identity,
		RoomID:      s.roomID,
		Epoch:       s.epochs(),
		Attempt:     s.info.Attempt,
		ConnectedAt: time.Now(),
	}
	info := s.info
	s.mu.Unlock()

	ctx, span := otel.Tracer("chat-sync/ws").Start(s.ctx, "ws.attach")
	span.SetAttributes(attribute.String("chat.room_id", info.RoomID), attribute.Int64("ws.epoch", int64(info.Epoch)))
	observability.IncWSActive()
	observability.IncWSEvent("session", "ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.session", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Epoch:     info.Epoch,
		Payload:   lifecyclePayload("ws_connect", info, ""),
	}, observability.BuildHeaders(ctx, info.ConnID, info.Epoch))
	span.End()
	log.Printf("session connected username=%s room=%s epoch=%d conn_id=%s", info.Username, info.RoomID, info.Epoch, info.ConnID)
	s.handler.HandleState(models.StateConnected, info.Epoch, nil)
	return true
}

// detach releases conn after its read loop ended. It reports whether the
// session should try to reconnect.
func (s *Session) detach(conn Conn, readErr error) bool {
	_ = conn.Close()
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.conn = nil
	info := s.info
	s.mu.Unlock()

	observability.DecWSActive()
	observability.IncWSEvent("session", "ws_error")
	reason := ""
	if readErr != nil {
		reason = readErr.Error()
	}
	_ = observability.PublishEvent(s.ctx, "ws_events.session", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Epoch:     info.Epoch,
		Payload:   lifecyclePayload("ws_error", info, reason),
	}, observability.BuildHeaders(s.ctx, info.ConnID, info.Epoch))
	log.Printf("session lost username=%s room=%s epoch=%d: %v", info.Username, info.RoomID, info.Epoch, readErr)
	return true
}

func (s *Session) readLoop(conn Conn) error {
	s.mu.Lock()
	epoch := s.info.Epoch
	s.mu.Unlock()
	for {
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if s.ctx.Err() != nil {
			return ErrSessionClosed
		}
		s.handler.HandleFrame(epoch, frame)
	}
}

func (s *Session) fail(err error) {
	if errors.Is(err, ErrSessionClosed) {
		return
	}
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = models.StateFailed
	s.mu.Unlock()

	s.cancel()
	observability.IncWSEvent("session", "ws_failed")
	log.Printf("session failed username=%s room=%s: %v", s.identity, s.roomID, err)
	s.handler.HandleState(models.StateFailed, 0, err)
}

func (s *Session) transition(state models.ConnectionState, epoch uint64, cause error) bool {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return false
	}
	s.state = state
	s.mu.Unlock()
	s.handler.HandleState(state, epoch, cause)
	return true
}

func lifecyclePayload(event string, info ConnInfo, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "session",
			"room_id":     info.RoomID,
			"event":       event,
			"conn_id":     info.ConnID,
			"epoch":       info.Epoch,
			"attempt":     info.Attempt,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"username": info.Username,
		},
	}
}
