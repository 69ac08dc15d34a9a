package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/asr"
	"github.com/eleven-am/parakeet-wyoming/internal/wyoming"
	"golang.org/x/time/rate"
)

const connWriteTimeout = 10 * time.Second

type ListenerConfig struct {
	URI string
	// ConnectionsPerSecond limits accepted connections; zero disables the limit.
	ConnectionsPerSecond float64
	ConnectionBurst      int
	Log                  *slog.Logger
}

// Listener serves Wyoming over a raw TCP or unix stream socket, one session
// per connection.
type Listener struct {
	endpoint Endpoint
	manager  *asr.Manager
	limiter  *rate.Limiter
	log      *slog.Logger

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

func NewListener(cfg ListenerConfig, manager *asr.Manager) (*Listener, error) {
	endpoint, err := ParseURI(cfg.URI)
	if err != nil {
		return nil, err
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.ConnectionsPerSecond > 0 {
		burst := cfg.ConnectionBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.ConnectionsPerSecond), burst)
	}

	return &Listener{
		endpoint: endpoint,
		manager:  manager,
		limiter:  limiter,
		conns:    make(map[net.Conn]struct{}),
		log:      cfg.Log.With("component", "wyoming_listener", "uri", endpoint.String()),
	}, nil
}

// Listen binds the socket. A leftover unix socket file from a previous run is
// removed first.
func (l *Listener) Listen() error {
	if l.endpoint.Network == TransportUnix {
		if err := os.Remove(l.endpoint.Address); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale socket %s: %w", l.endpoint.Address, err)
		}
	}

	ln, err := net.Listen(l.endpoint.Network, l.endpoint.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.endpoint, err)
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	l.log.Info("wyoming listener ready", "addr", ln.Addr().String())
	return nil
}

func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve accepts connections until Shutdown is called or ctx ends.
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.ln
	if ln == nil {
		l.mu.Unlock()
		return errors.New("listener is not bound")
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.log.Error("accept failed", "error", err)
			continue
		}

		if l.limiter != nil && !l.limiter.Allow() {
			l.log.Warn("connection rate exceeded, rejecting", "remote", conn.RemoteAddr().String())
			_ = conn.Close()
			continue
		}

		if !l.track(conn) {
			_ = conn.Close()
			return nil
		}

		go func() {
			defer l.wg.Done()
			defer l.untrack(conn)
			l.handle(ctx, conn)
		}()
	}
}

func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conns[conn] = struct{}{}
	l.wg.Add(1)
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
	_ = conn.Close()
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	sess := l.manager.NewSession(remote, l.endpoint.Network)
	defer l.manager.Remove(sess.ID())

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	next := func() (*wyoming.Event, error) {
		return wyoming.ReadEvent(reader)
	}
	write := func(ev *wyoming.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(connWriteTimeout))
		if err := wyoming.WriteEvent(writer, ev); err != nil {
			return err
		}
		return writer.Flush()
	}

	err := serveEvents(ctx, sess, next, write)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, net.ErrClosed):
		l.log.Debug("connection closed", "session_id", sess.ID(), "remote", remote)
	case errors.Is(err, asr.ErrProtocolViolation):
		l.log.Warn("closing connection after protocol violation", "session_id", sess.ID(), "remote", remote, "error", err)
	default:
		l.log.Warn("connection ended with error", "session_id", sess.ID(), "remote", remote, "error", err)
	}
}

// Shutdown stops accepting, closes open connections and waits for their
// handlers to return.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	if l.cancel != nil {
		l.cancel()
	}
	if l.ln != nil {
		_ = l.ln.Close()
	}
	for conn := range l.conns {
		_ = conn.Close()
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if l.endpoint.Network == TransportUnix {
		_ = os.Remove(l.endpoint.Address)
	}
	l.log.Info("wyoming listener stopped")
	return nil
}
