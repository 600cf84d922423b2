// Package session implements a client session command queue: a
// per-client worker goroutine draining a bounded queue of commands and
// driving a connection state machine, reporting failures through the
// session's error callback rather than back to the enqueuing caller.
// The command set covers connect/disconnect, heartbeat, broker and
// node pings, node list/open/close and a generic completion signal;
// cmdData/cmdAny from the callback-oriented original collapse into one
// Payload field the caller type-asserts.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cogu/apx-go/internal/apxerr"
	"github.com/cogu/apx-go/internal/logger"
)

// CmdType enumerates the client session commands.
type CmdType int

const (
	CmdConnect CmdType = iota
	CmdDisconnect
	CmdHeartbeat
	CmdPingBroker
	CmdListNodes
	CmdOpenNode
	CmdCloseNode
	CmdPingNode
	CmdComplete

	// cmdExit is the shutdown sentinel; it never appears in a Command a
	// caller builds.
	cmdExit
)

func (t CmdType) String() string {
	switch t {
	case CmdConnect:
		return "CONNECT"
	case CmdDisconnect:
		return "DISCONNECT"
	case CmdHeartbeat:
		return "HEARTBEAT"
	case CmdPingBroker:
		return "PING_BROKER"
	case CmdListNodes:
		return "LIST_NODES"
	case CmdOpenNode:
		return "OPEN_NODE"
	case CmdCloseNode:
		return "CLOSE_NODE"
	case CmdPingNode:
		return "PING_NODE"
	case CmdComplete:
		return "COMPLETE"
	case cmdExit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// Command is one queued unit of work. Payload carries whatever the
// command needs (a node name for OPEN_NODE/CLOSE_NODE/PING_NODE, a
// user-supplied code for COMPLETE); callers type-assert it themselves,
// same as the original's cmdData/cmdAny union collapsed to one field.
type Command struct {
	Type    CmdType
	Payload any
}

// Transport is the minimal connection surface a ClientSession drives.
// Kept as a small interface so session never imports conn;
// *conn.Connection plus a thin dial/ping wrapper satisfies it in
// practice.
type Transport interface {
	Connect(ctx context.Context, network, address string) error
	Disconnect() error
	Heartbeat(ctx context.Context) error
	PingBroker(ctx context.Context) error
	ListNodes(ctx context.Context) ([]string, error)
	OpenNode(ctx context.Context, name string) error
	CloseNode(ctx context.Context, name string) error
	PingNode(ctx context.Context, name string) error
}

// ErrorFunc reports a command that failed; invoked from the session's
// own worker goroutine.
type ErrorFunc func(cmd Command, err error)

// CompletedFunc runs the user's completion callback for a COMPLETE
// command; invoked from the session's own worker goroutine.
type CompletedFunc func(cmd Command)

// Option configures a ClientSession at construction.
type Option func(*ClientSession)

// WithQueueDepth bounds the command queue's capacity; Enqueue fails
// with apxerr.BufferFull once it's full rather than blocking the
// caller.
func WithQueueDepth(n int) Option {
	return func(s *ClientSession) {
		if n > 0 {
			s.queue = make(chan Command, n)
		}
	}
}

// WithErrorFunc sets the error callback.
func WithErrorFunc(f ErrorFunc) Option {
	return func(s *ClientSession) { s.onError = f }
}

// WithCompletedFunc sets the COMPLETE callback.
func WithCompletedFunc(f CompletedFunc) Option {
	return func(s *ClientSession) { s.onCompleted = f }
}

// WithShutdownTimeout bounds how long Stop waits for the worker to
// drain before giving up.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *ClientSession) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// ClientSession is the per-client worker: one goroutine consuming
// Commands from a bounded queue and driving transport. The zero value
// is not usable; build one with New.
type ClientSession struct {
	transport Transport
	log       logger.Logger

	queue           chan Command
	onError         ErrorFunc
	onCompleted     CompletedFunc
	shutdownTimeout time.Duration

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New builds a ClientSession driving transport. Call Start to launch
// the worker goroutine.
func New(transport Transport, log logger.Logger, opts ...Option) *ClientSession {
	s := &ClientSession{
		transport:       transport,
		log:             log.With("component", "session"),
		queue:           make(chan Command, 64),
		shutdownTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the worker goroutine. Safe to call more than once;
// only the first call has any effect.
func (s *ClientSession) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.run()
	})
}

// Enqueue posts cmd to the command queue: a buffered channel send
// standing in for enqueue-then-signal. Returns apxerr.BufferFull if
// the queue is at capacity rather than blocking the caller.
func (s *ClientSession) Enqueue(cmd Command) error {
	if cmd.Type == cmdExit {
		return apxerr.New("session.ClientSession.Enqueue", apxerr.InvalidArgument)
	}
	select {
	case s.queue <- cmd:
		return nil
	default:
		return apxerr.New("session.ClientSession.Enqueue", apxerr.BufferFull)
	}
}

// Stop sends the EXIT sentinel and waits up to shutdownTimeout for the
// worker to drain and return; it does not force-close the transport
// itself (the caller owns that) — a join-with-timeout followed by a
// caller-driven forceful close.
func (s *ClientSession) Stop() {
	s.stopOnce.Do(func() {
		s.queue <- Command{Type: cmdExit}
	})
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.shutdownTimeout):
		s.log.Warnf("session: worker did not exit within %s", s.shutdownTimeout)
	}
}

func (s *ClientSession) run() {
	defer s.wg.Done()
	for cmd := range s.queue {
		if cmd.Type == cmdExit {
			return
		}
		s.dispatch(cmd)
	}
}

func (s *ClientSession) dispatch(cmd Command) {
	ctx := context.Background()
	var err error
	switch cmd.Type {
	case CmdConnect:
		network, address := "tcp", ""
		if pair, ok := cmd.Payload.([2]string); ok {
			network, address = pair[0], pair[1]
		}
		err = s.transport.Connect(ctx, network, address)
	case CmdDisconnect:
		err = s.transport.Disconnect()
	case CmdHeartbeat:
		err = s.transport.Heartbeat(ctx)
	case CmdPingBroker:
		err = s.transport.PingBroker(ctx)
	case CmdListNodes:
		_, err = s.transport.ListNodes(ctx)
	case CmdOpenNode:
		name, _ := cmd.Payload.(string)
		err = s.transport.OpenNode(ctx, name)
	case CmdCloseNode:
		name, _ := cmd.Payload.(string)
		err = s.transport.CloseNode(ctx, name)
	case CmdPingNode:
		name, _ := cmd.Payload.(string)
		err = s.transport.PingNode(ctx, name)
	case CmdComplete:
		if s.onCompleted != nil {
			s.onCompleted(cmd)
		}
		return
	default:
		err = apxerr.New("session.ClientSession.dispatch", apxerr.InvalidArgument)
	}
	if err != nil {
		s.log.Warnf("session: %s failed: %v", cmd.Type, err)
		if s.onError != nil {
			s.onError(cmd, err)
		}
	}
}
