package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chatwire/pkg/chatapi"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// eventCollector drains a bus subscription into memory.
type eventCollector struct {
	mu     sync.Mutex
	events []Event
	cancel func()
}

func collectEvents(bus *EventBus) *eventCollector {
	ch, cancel := bus.Subscribe()
	c := &eventCollector{cancel: cancel}
	go func() {
		for ev := range ch {
			c.mu.Lock()
			c.events = append(c.events, ev)
			c.mu.Unlock()
		}
	}()
	return c
}

func (c *eventCollector) ofKind(kind EventKind) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, ev := range c.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// waitFor polls until the condition holds or the timeout expires.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// scriptedConn feeds pre-queued frames to the read pump, then fails with
// the configured error.
type scriptedConn struct {
	frames chan []byte
	errCh  chan error

	mu        sync.Mutex
	writes    [][]byte
	closed    bool
	closeCode int
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{
		frames: make(chan []byte, 16),
		errCh:  make(chan error, 1),
	}
}

func (c *scriptedConn) queue(frame string) {
	c.frames <- []byte(frame)
}

func (c *scriptedConn) failWith(err error) {
	c.errCh <- err
}

func (c *scriptedConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-c.frames:
		return data, nil
	case err := <-c.errCh:
		return nil, err
	}
}

func (c *scriptedConn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *scriptedConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCode = code
	return nil
}

func (c *scriptedConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// scriptedDialer hands out connections in order, then fails.
type scriptedDialer struct {
	mu    sync.Mutex
	conns []Conn
	errs  []error
	calls int
}

func (d *scriptedDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.calls
	d.calls++
	if idx < len(d.errs) && d.errs[idx] != nil {
		return nil, d.errs[idx]
	}
	if idx < len(d.conns) {
		return d.conns[idx], nil
	}
	return nil, context.DeadlineExceeded
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// fakeSender records the frames a component tried to send.
type fakeSender struct {
	mu     sync.Mutex
	frames []interface{}
	ready  bool
	err    error
}

func newFakeSender() *fakeSender {
	return &fakeSender{ready: true}
}

func (s *fakeSender) Send(ctx context.Context, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, payload)
	return nil
}

func (s *fakeSender) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *fakeSender) setReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

func (s *fakeSender) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSender) sent() []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interface{}, len(s.frames))
	copy(out, s.frames)
	return out
}

func (s *fakeSender) lastFrame() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// fakeAPI is a scripted persistence client.
type fakeAPI struct {
	mu        sync.Mutex
	editErr   error
	deleteErr error
	uploadErr error
	edits     []int64
	deletes   []int64
	uploads   []string
}

func (a *fakeAPI) EditMessage(ctx context.Context, messageID int64, content string) (*chatapi.EditResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.editErr != nil {
		return nil, a.editErr
	}
	a.edits = append(a.edits, messageID)
	return &chatapi.EditResponse{Success: true, NewContent: content}, nil
}

func (a *fakeAPI) DeleteMessage(ctx context.Context, messageID int64) (*chatapi.DeleteResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deleteErr != nil {
		return nil, a.deleteErr
	}
	a.deletes = append(a.deletes, messageID)
	return &chatapi.DeleteResponse{Success: true}, nil
}

func (a *fakeAPI) DeleteConversation(ctx context.Context, conversationID int64) (*chatapi.DeleteResponse, error) {
	return &chatapi.DeleteResponse{Success: true}, nil
}

func (a *fakeAPI) SearchUsers(ctx context.Context, query string) ([]chatapi.UserResult, error) {
	return nil, nil
}

func (a *fakeAPI) StartConversation(ctx context.Context, userID int64) (*chatapi.StartConversationResponse, error) {
	return &chatapi.StartConversationResponse{Success: true, ConversationID: 1}, nil
}

func (a *fakeAPI) UploadFile(ctx context.Context, conversationID int64, fileName string, file io.Reader, content string) (*chatapi.UploadResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.uploadErr != nil {
		return nil, a.uploadErr
	}
	a.uploads = append(a.uploads, fileName)
	return &chatapi.UploadResponse{
		Success:   true,
		MessageID: int64(1000 + len(a.uploads)),
		FileName:  fileName,
		FileURL:   "/media/chat_files/" + fileName,
		FileSize:  "1.0 KB",
		IsImage:   strings.HasSuffix(fileName, ".png"),
	}, nil
}

func (a *fakeAPI) HealthCheck(ctx context.Context) error {
	return nil
}
