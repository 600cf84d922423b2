package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applog "github.com/cogu/apx-go/internal/logger"
)

func testLogger() applog.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return applog.New(l)
}

type recordingTransport struct {
	mu        sync.Mutex
	connected []string
	opened    []string
	closed    []string
	failNext  bool
}

func (r *recordingTransport) Connect(ctx context.Context, network, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = append(r.connected, network+"://"+address)
	return nil
}
func (r *recordingTransport) Disconnect() error { return nil }
func (r *recordingTransport) Heartbeat(ctx context.Context) error { return nil }
func (r *recordingTransport) PingBroker(ctx context.Context) error { return nil }
func (r *recordingTransport) ListNodes(ctx context.Context) ([]string, error) { return nil, nil }
func (r *recordingTransport) OpenNode(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return assert.AnError
	}
	r.opened = append(r.opened, name)
	return nil
}
func (r *recordingTransport) CloseNode(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, name)
	return nil
}
func (r *recordingTransport) PingNode(ctx context.Context, name string) error { return nil }

func (r *recordingTransport) snapshot() (opened, closed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.opened...), append([]string(nil), r.closed...)
}

func TestClientSessionDispatchesCommandsInOrder(t *testing.T) {
	tp := &recordingTransport{}
	s := New(tp, testLogger())
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Enqueue(Command{Type: CmdOpenNode, Payload: "NodeA"}))
	require.NoError(t, s.Enqueue(Command{Type: CmdOpenNode, Payload: "NodeB"}))
	require.NoError(t, s.Enqueue(Command{Type: CmdCloseNode, Payload: "NodeA"}))

	require.Eventually(t, func() bool {
		opened, closed := tp.snapshot()
		return len(opened) == 2 && len(closed) == 1
	}, time.Second, time.Millisecond)

	opened, closed := tp.snapshot()
	assert.Equal(t, []string{"NodeA", "NodeB"}, opened)
	assert.Equal(t, []string{"NodeA"}, closed)
}

func TestClientSessionReportsErrorsToCallback(t *testing.T) {
	tp := &recordingTransport{failNext: true}
	var gotErr error
	var mu sync.Mutex
	s := New(tp, testLogger(), WithErrorFunc(func(cmd Command, err error) {
		mu.Lock()
		defer mu.Unlock()
		gotErr = err
	}))
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Enqueue(Command{Type: CmdOpenNode, Payload: "Broken"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotErr != nil
	}, time.Second, time.Millisecond)
}

func TestClientSessionCompletedCallback(t *testing.T) {
	tp := &recordingTransport{}
	done := make(chan int, 1)
	s := New(tp, testLogger(), WithCompletedFunc(func(cmd Command) {
		code, _ := cmd.Payload.(int)
		done <- code
	}))
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Enqueue(Command{Type: CmdComplete, Payload: 7}))

	select {
	case code := <-done:
		assert.Equal(t, 7, code)
	case <-time.After(time.Second):
		t.Fatal("completed callback never fired")
	}
}

func TestClientSessionEnqueueFullQueueReturnsError(t *testing.T) {
	tp := &recordingTransport{}
	s := New(tp, testLogger(), WithQueueDepth(1))
	// Never started: the queue fills up since nothing drains it.
	require.NoError(t, s.Enqueue(Command{Type: CmdHeartbeat}))
	err := s.Enqueue(Command{Type: CmdHeartbeat})
	assert.Error(t, err)
}

func TestClientSessionEnqueueRejectsExitSentinel(t *testing.T) {
	tp := &recordingTransport{}
	s := New(tp, testLogger())
	err := s.Enqueue(Command{Type: cmdExit})
	assert.Error(t, err)
}

func TestClientSessionStopIsIdempotentAndDrains(t *testing.T) {
	tp := &recordingTransport{}
	s := New(tp, testLogger())
	s.Start()
	require.NoError(t, s.Enqueue(Command{Type: CmdPingBroker}))
	s.Stop()
	s.Stop() // must not panic or block
}

func TestCmdTypeString(t *testing.T) {
	assert.Equal(t, "OPEN_NODE", CmdOpenNode.String())
	assert.Equal(t, "EXIT", cmdExit.String())
	assert.Equal(t, "UNKNOWN", CmdType(999).String())
}
