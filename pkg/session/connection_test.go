package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/voice_capture/pkg/auth"
	"example.com/voice_capture/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// backend is an in-process stand-in for the transcription service.
type backend struct {
	srv       *httptest.Server
	mu        sync.Mutex
	conns     []*websocket.Conn
	received  chan protocol.Frame
	connected chan string // token presented by each accepted connection
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		received:  make(chan protocol.Frame, 32),
		connected: make(chan string, 8),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns = append(b.conns, conn)
		b.mu.Unlock()
		b.connected <- r.URL.Query().Get("token")

		for {
			var frame protocol.Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			b.received <- frame
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws/audio/"
}

func (b *backend) push(t *testing.T, frame protocol.Frame) {
	t.Helper()
	b.mu.Lock()
	conn := b.conns[len(b.conns)-1]
	b.mu.Unlock()
	require.NoError(t, conn.WriteJSON(frame))
}

func (b *backend) pushRaw(t *testing.T, data string) {
	t.Helper()
	b.mu.Lock()
	conn := b.conns[len(b.conns)-1]
	b.mu.Unlock()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

func (b *backend) dropClient() {
	b.mu.Lock()
	conn := b.conns[len(b.conns)-1]
	b.mu.Unlock()
	conn.Close()
}

func (b *backend) waitForConnection(t *testing.T, within time.Duration) (string, bool) {
	t.Helper()
	select {
	case token := <-b.connected:
		return token, true
	case <-time.After(within):
		return "", false
	}
}

// mutableToken is a provider whose credential can be swapped or revoked.
type mutableToken struct {
	mu    sync.Mutex
	token string
}

func (m *mutableToken) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *mutableToken) set(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func testConfig(b *backend, tokens auth.TokenProvider) Config {
	return Config{
		URL:            b.url(),
		Tokens:         tokens,
		ReconnectDelay: 50 * time.Millisecond,
	}
}

func TestOpenWithoutCredential(t *testing.T) {
	b := newBackend(t)

	var statuses []string
	var mu sync.Mutex
	s := NewSession(testConfig(b, auth.Static("")))
	s.OnStatus(func(msg string) {
		mu.Lock()
		statuses = append(statuses, msg)
		mu.Unlock()
	})

	err := s.Open()
	require.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, StateFailed, s.State())

	mu.Lock()
	assert.Equal(t, []string{"Authentication required"}, statuses)
	mu.Unlock()

	_, connected := b.waitForConnection(t, 100*time.Millisecond)
	assert.False(t, connected, "session dialed despite missing credential")
}

func TestOpenPassesCredential(t *testing.T) {
	b := newBackend(t)
	s := NewSession(testConfig(b, auth.Static("secret-token")))
	defer s.Close()

	require.NoError(t, s.Open())
	assert.Equal(t, StateOpen, s.State())

	token, connected := b.waitForConnection(t, time.Second)
	require.True(t, connected)
	assert.Equal(t, "secret-token", token)
}

func TestInboundFramesArriveInOrder(t *testing.T) {
	b := newBackend(t)
	s := NewSession(testConfig(b, auth.Static("tok")))
	defer s.Close()

	frames := make(chan protocol.Frame, 16)
	s.OnFrame(func(f protocol.Frame) { frames <- f })

	require.NoError(t, s.Open())
	_, connected := b.waitForConnection(t, time.Second)
	require.True(t, connected)

	want := []string{"one", "two", "three", "four", "five"}
	for _, text := range want {
		b.push(t, protocol.Frame{Kind: protocol.KindTranscription, Text: text, LLMResponse: "r"})
	}

	for i, text := range want {
		select {
		case f := <-frames:
			assert.Equal(t, text, f.Text, "frame %d out of order", i)
		case <-time.After(time.Second):
			t.Fatalf("frame %d never delivered", i)
		}
	}
}

func TestMalformedFrameDropped(t *testing.T) {
	b := newBackend(t)
	s := NewSession(testConfig(b, auth.Static("tok")))
	defer s.Close()

	frames := make(chan protocol.Frame, 4)
	s.OnFrame(func(f protocol.Frame) { frames <- f })

	require.NoError(t, s.Open())
	_, connected := b.waitForConnection(t, time.Second)
	require.True(t, connected)

	b.pushRaw(t, "this is not json")
	b.push(t, protocol.Frame{Kind: protocol.KindConnectionEstablished, Message: "ok"})

	select {
	case f := <-frames:
		assert.Equal(t, protocol.KindConnectionEstablished, f.Kind)
	case <-time.After(time.Second):
		t.Fatal("valid frame after malformed one never delivered")
	}
	assert.Empty(t, frames)
}

func TestSendWhenNotOpenIsDropped(t *testing.T) {
	b := newBackend(t)
	s := NewSession(testConfig(b, auth.Static("tok")))

	// Never opened: the send must be dropped without panicking.
	s.Send(protocol.StartRecording(time.Now()))
	assert.Empty(t, b.received)

	require.NoError(t, s.Open())
	_, connected := b.waitForConnection(t, time.Second)
	require.True(t, connected)
	s.Close()

	s.Send(protocol.StopRecording(time.Now()))
	select {
	case f := <-b.received:
		t.Fatalf("server received %s frame after Close", f.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendDeliversFrame(t *testing.T) {
	b := newBackend(t)
	s := NewSession(testConfig(b, auth.Static("tok")))
	defer s.Close()

	require.NoError(t, s.Open())
	_, connected := b.waitForConnection(t, time.Second)
	require.True(t, connected)

	s.Send(protocol.AudioData("b64payload", time.Now()))

	select {
	case f := <-b.received:
		assert.Equal(t, protocol.KindAudioData, f.Kind)
		assert.Equal(t, "b64payload", f.AudioData)
		assert.NotZero(t, f.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("server never received the audio_data frame")
	}
}

func TestReconnectAfterUnexpectedClose(t *testing.T) {
	b := newBackend(t)
	s := NewSession(testConfig(b, auth.Static("tok")))
	defer s.Close()

	require.NoError(t, s.Open())
	_, connected := b.waitForConnection(t, time.Second)
	require.True(t, connected)

	b.dropClient()

	// One fixed delay later a fresh connection arrives.
	_, reconnected := b.waitForConnection(t, time.Second)
	require.True(t, reconnected, "no reconnect attempt after unexpected close")

	assert.Eventually(t, func() bool { return s.State() == StateOpen },
		time.Second, 10*time.Millisecond)
}

func TestNoReconnectWhenCredentialCleared(t *testing.T) {
	b := newBackend(t)
	tokens := &mutableToken{token: "tok"}
	cfg := testConfig(b, tokens)
	cfg.ReconnectDelay = 100 * time.Millisecond
	s := NewSession(cfg)
	defer s.Close()

	require.NoError(t, s.Open())
	_, connected := b.waitForConnection(t, time.Second)
	require.True(t, connected)

	// Revoke before the drop so the retry finds no credential at fire time.
	tokens.set("")
	b.dropClient()

	_, reconnected := b.waitForConnection(t, 400*time.Millisecond)
	assert.False(t, reconnected, "reconnected despite revoked credential")
}

func TestNoReconnectAfterCallerClose(t *testing.T) {
	b := newBackend(t)
	s := NewSession(testConfig(b, auth.Static("tok")))

	require.NoError(t, s.Open())
	_, connected := b.waitForConnection(t, time.Second)
	require.True(t, connected)

	s.Close()
	assert.Equal(t, StateClosed, s.State())

	_, reconnected := b.waitForConnection(t, 300*time.Millisecond)
	assert.False(t, reconnected, "caller-initiated close must not reconnect")
}

func TestOpenWhileOpenIsNoOp(t *testing.T) {
	b := newBackend(t)
	s := NewSession(testConfig(b, auth.Static("tok")))
	defer s.Close()

	require.NoError(t, s.Open())
	_, connected := b.waitForConnection(t, time.Second)
	require.True(t, connected)

	require.NoError(t, s.Open())
	_, again := b.waitForConnection(t, 150*time.Millisecond)
	assert.False(t, again, "second Open dialed a second connection")
}
