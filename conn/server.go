package conn

import (
	"context"
	"net"
	"sync"

	"github.com/cogu/apx-go/internal/logger"
)

// Server accepts connections on a net.Listener and runs each one as a
// server-side Connection sharing this Server's Router, built with the
// same functional-option construction style as Options.
type Server struct {
	ln     net.Listener
	router *Router
	log    logger.Logger
	opts   []Option

	mu    sync.Mutex
	conns map[*Connection]struct{}
}

// NewServer wraps an already-listening net.Listener. Closing the
// returned Server closes the listener and every accepted Connection.
func NewServer(ln net.Listener, log logger.Logger, opts ...Option) *Server {
	return &Server{
		ln:     ln,
		router: NewRouter(log),
		log:    log.With("component", "server"),
		opts:   opts,
		conns:  make(map[*Connection]struct{}),
	}
}

// Router exposes the Server's shared signature matcher, e.g. so a
// caller can attach node instances before or after Serve is called.
func (s *Server) Router() *Router { return s.router }

// Serve accepts connections until ctx is cancelled or the listener
// returns an error, running each one as its own Connection in a
// background goroutine. It returns once the listener is no longer
// accepting (ctx cancellation closes the listener to unblock Accept).
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c := NewServerConn(raw, s.log, s.router, s.opts...)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		go func() {
			defer func() {
				s.mu.Lock()
				delete(s.conns, c)
				s.mu.Unlock()
				c.Close()
			}()
			if err := c.Run(ctx); err != nil {
				s.log.Warnf("server: connection %s: %v", c.ConnectionID(), err)
			}
		}()
	}
}

// Close closes the listener and every currently accepted Connection.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	return err
}
