package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"example.com/voice_capture/pkg/auth"
	"example.com/voice_capture/pkg/protocol"
)

// ErrNoCredential is returned by Open when the token provider has no
// credential. The connection is not attempted.
var ErrNoCredential = errors.New("no credential available")

// State is the connection lifecycle state. Transitions are totally ordered
// under the session mutex.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FrameHandler consumes inbound frames, in arrival order, one at a time.
type FrameHandler func(protocol.Frame)

// StatusHandler receives human-readable connectivity status updates.
type StatusHandler func(status string)

// Config holds connection settings. Zero values fall back to defaults.
type Config struct {
	// URL is the websocket endpoint, e.g. "ws://localhost:8000/ws/audio/".
	URL string

	// Tokens supplies the bearer credential, re-read before every attempt.
	Tokens auth.TokenProvider

	ReconnectDelay   time.Duration // default 3s
	HandshakeTimeout time.Duration // default 10s
}

// Session owns one duplex channel to the transcription service. It serializes
// outgoing frames, dispatches inbound frames in arrival order from a single
// read goroutine, and retries dropped connections after a fixed delay for as
// long as a credential is present.
type Session struct {
	cfg Config

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	state   State
	closed  bool // caller-initiated teardown
	retry   *time.Timer

	onFrame  FrameHandler
	onStatus StatusHandler
}

// NewSession creates a session. Register handlers before calling Open.
func NewSession(cfg Config) *Session {
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &Session{cfg: cfg, state: StateIdle}
}

// OnFrame registers the single consumer of inbound frames.
func (s *Session) OnFrame(handler FrameHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = handler
}

// OnStatus registers the connectivity status consumer.
func (s *Session) OnStatus(handler StatusHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatus = handler
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open establishes the duplex channel. Without a credential the session moves
// to Failed, reports "Authentication required", and does not dial. A failed
// dial moves to Failed and, like an unexpected close, is retried after the
// fixed delay. No-op when already connecting or open.
func (s *Session) Open() error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateOpen {
		s.mu.Unlock()
		return nil
	}

	token := s.cfg.Tokens.Token()
	if token == "" {
		s.state = StateFailed
		s.mu.Unlock()
		s.status("Authentication required")
		return ErrNoCredential
	}
	s.state = StateConnecting
	s.closed = false
	s.mu.Unlock()

	endpoint := s.cfg.URL + "?token=" + url.QueryEscape(token)
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		s.mu.Lock()
		s.state = StateFailed
		if !s.closed {
			s.scheduleReconnectLocked()
		}
		s.mu.Unlock()
		s.status("Failed to connect")
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateOpen
	s.mu.Unlock()
	s.status("Connected")
	log.Printf("[Session] connected to %s", s.cfg.URL)

	go s.readLoop(conn)
	return nil
}

// Send serializes the frame and writes it to the channel. When the connection
// is not open the frame is dropped with a logged diagnostic: UI-triggered
// sends can race a just-closed channel and that is not an error.
func (s *Session) Send(frame protocol.Frame) {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()

	if state != StateOpen || conn == nil {
		log.Printf("[Session] dropping %s frame: connection %s", frame.Kind, state)
		return
	}

	s.writeMu.Lock()
	err := conn.WriteJSON(frame)
	s.writeMu.Unlock()
	if err != nil {
		log.Printf("[Session] write error: %v", err)
		s.mu.Lock()
		if s.state == StateOpen {
			s.state = StateFailed
		}
		s.mu.Unlock()
		// The close event that follows drives reconnection.
		s.status("Error")
	}
}

// Close tears the channel down on behalf of the caller. No reconnect is
// scheduled and any pending one is cancelled. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateClosed
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.handleClose(err)
			return
		}

		var frame protocol.Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Printf("[Session] dropping malformed frame: %v", err)
			continue
		}

		s.mu.Lock()
		handler := s.onFrame
		s.mu.Unlock()
		if handler != nil {
			handler(frame)
		}
	}
}

func (s *Session) handleClose(err error) {
	s.mu.Lock()
	if s.closed {
		s.state = StateClosed
		s.mu.Unlock()
		return
	}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Printf("[Session] read error: %v", err)
	}
	s.conn = nil
	s.state = StateClosed
	s.scheduleReconnectLocked()
	s.mu.Unlock()

	s.status("Disconnected")
}

// scheduleReconnectLocked arms the fixed-delay retry. Caller holds s.mu.
// Live state and the credential are re-read when the timer fires, not here:
// a decision captured at schedule time would go stale.
func (s *Session) scheduleReconnectLocked() {
	if s.retry != nil {
		s.retry.Stop()
	}
	s.retry = time.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.mu.Lock()
		state, closed := s.state, s.closed
		s.mu.Unlock()

		if closed || state == StateOpen || state == StateConnecting {
			return
		}
		if s.cfg.Tokens.Token() == "" {
			log.Printf("[Session] not reconnecting: credential gone")
			return
		}
		if err := s.Open(); err != nil {
			log.Printf("[Session] reconnect failed: %v", err)
		}
	})
}

func (s *Session) status(msg string) {
	s.mu.Lock()
	handler := s.onStatus
	s.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}
