package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"chatwire/internal/models"
	"chatwire/internal/service"
	"chatwire/pkg/rtc"
)

// ChatServer is a minimal websocket endpoint standing in for the chat
// backend. Each accepted connection is exposed so tests can push frames
// toward the client and read what the client sent.
type ChatServer struct {
	server *httptest.Server

	mu    sync.Mutex
	conns []*ServerConn
}

// ServerConn is the server side of one accepted connection.
type ServerConn struct {
	conn    *websocket.Conn
	inbound chan []byte
}

func NewChatServer(t *testing.T) *ChatServer {
	t.Helper()
	cs := &ChatServer{}

	cs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		sc := &ServerConn{conn: conn, inbound: make(chan []byte, 32)}
		cs.mu.Lock()
		cs.conns = append(cs.conns, sc)
		cs.mu.Unlock()

		go func() {
			for {
				_, data, err := conn.Read(context.Background())
				if err != nil {
					close(sc.inbound)
					return
				}
				sc.inbound <- data
			}
		}()
	}))

	t.Cleanup(cs.server.Close)
	return cs
}

// URL returns the websocket URL of the endpoint.
func (cs *ChatServer) URL() string {
	return "ws" + strings.TrimPrefix(cs.server.URL, "http")
}

// WaitForConn blocks until the nth connection (zero-based) is accepted.
func (cs *ChatServer) WaitForConn(t *testing.T, n int) *ServerConn {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		cs.mu.Lock()
		if len(cs.conns) > n {
			sc := cs.conns[n]
			cs.mu.Unlock()
			return sc
		}
		cs.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection %d never arrived", n)
	return nil
}

// Push sends a frame from the server to the client.
func (sc *ServerConn) Push(t *testing.T, frame interface{}) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, sc.conn.Write(context.Background(), websocket.MessageText, data))
}

// Next returns the next frame the client sent, decoded into a generic map.
func (sc *ServerConn) Next(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case data, ok := <-sc.inbound:
		require.True(t, ok, "connection closed while waiting for frame")
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return nil
	}
}

// CloseAbnormally drops the connection with a non-normal close status so
// the client reconnects.
func (sc *ServerConn) CloseAbnormally() {
	sc.conn.Close(websocket.StatusInternalError, "going away")
}

// TestEnvironment wires the full client stack against a ChatServer.
type TestEnvironment struct {
	Server       *ChatServer
	Conversation *service.ChannelManager
	Store        *service.MessageStore
	Typing       *service.TypingCoordinator
	Gate         *service.NotificationGate
	Calls        *service.CallEngine
	Bus          *service.EventBus
	Clock        *models.SessionClock

	events <-chan service.Event
	mu     sync.Mutex
	seen   []service.Event
}

func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	server := NewChatServer(t)
	bus := service.NewEventBus(128, logger)
	clock := models.NewSessionClock()

	var gate *service.NotificationGate
	conversation := service.NewChannelManager(service.ChannelManagerOptions{
		Name:           "conversation",
		URL:            server.URL(),
		Dialer:         service.NewWSDialer(nil),
		ReconnectDelay: 50 * time.Millisecond,
		ReadyGrace:     20 * time.Millisecond,
		Clock:          clock,
		Bus:            bus,
		Logger:         logger,
		OnDisconnect:   func() { gate.Disarm() },
	})

	store := service.NewMessageStore(1, "alice", conversation, nil, bus, logger)
	typing := service.NewTypingCoordinator(1, time.Minute, conversation, bus, logger)
	gate = service.NewNotificationGate(service.NotificationGateOptions{
		UserID:   1,
		Clock:    clock,
		Channel:  conversation,
		Bus:      bus,
		Logger:   logger,
		ArmDelay: time.Millisecond,
	})
	calls := service.NewCallEngine(service.CallEngineOptions{
		UserID:  1,
		Channel: conversation,
		Devices: rtc.NewNullMediaDevices(),
		Factory: rtc.NewNullFactory(),
		Bus:     bus,
		Logger:  logger,
		Tick:    time.Minute,
	})

	store.OnSend(gate.NotifySend)

	router := service.NewRouter(store, typing, gate, calls, logger)
	conversation.SetHandler(router.ConversationHandler())

	env := &TestEnvironment{
		Server:       server,
		Conversation: conversation,
		Store:        store,
		Typing:       typing,
		Gate:         gate,
		Calls:        calls,
		Bus:          bus,
		Clock:        clock,
	}

	events, cancelEvents := bus.Subscribe()
	env.events = events
	go func() {
		for event := range events {
			env.mu.Lock()
			env.seen = append(env.seen, event)
			env.mu.Unlock()
		}
	}()

	require.NoError(t, conversation.Start(context.Background()))
	t.Cleanup(func() {
		conversation.Stop()
		cancelEvents()
	})
	return env
}

// WaitReady blocks until the conversation channel accepts sends.
func (env *TestEnvironment) WaitReady(t *testing.T) {
	t.Helper()
	require.True(t, waitUntil(5*time.Second, env.Conversation.Ready),
		"channel never became ready")
}

// EventsOfKind returns the events of one kind observed so far.
func (env *TestEnvironment) EventsOfKind(kind service.EventKind) []service.Event {
	env.mu.Lock()
	defer env.mu.Unlock()
	var out []service.Event
	for _, event := range env.seen {
		if event.Kind == kind {
			out = append(out, event)
		}
	}
	return out
}

func waitUntil(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
