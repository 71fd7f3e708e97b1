// Package server implements the length-prefixed TCP front end described
// in spec.md §6.1: it owns the listening socket, the process-wide
// treasury registry, and the per-connection request loop, and leaves
// the interesting work to internal/treasury and internal/importer.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	"github.com/treasuryhq/treasury/internal/treasury"
	"github.com/treasuryhq/treasury/internal/wireproto"
)

// DefaultPort is the service's default listening port, overridable by
// the TREASURY_SERVICE_PORT environment variable.
const DefaultPort = 12345

// Server accepts connections speaking the wire protocol and dispatches
// them against a shared treasury registry.
type Server struct {
	registry       *treasury.Registry
	listener       net.Listener
	pendingTimeout time.Duration // negative means never idle-shutdown
	conns          int64         // atomic count of connections in flight
	lastActive     atomic.Int64  // unix nanos of last connection close
	wg             sync.WaitGroup
	shutdown       chan struct{}
	shutdownOnce   sync.Once
}

// Config holds the listener options read from the environment.
type Config struct {
	Port int
	// PendingTimeout is the idle shutdown window. Negative means the
	// server never shuts itself down.
	PendingTimeout time.Duration
}

// New constructs a Server bound to cfg but does not start listening.
func New(cfg Config) *Server {
	return &Server{
		registry:       treasury.NewRegistry(),
		pendingTimeout: cfg.PendingTimeout,
		shutdown:       make(chan struct{}),
	}
}

// ListenAndServe binds to the configured port on all interfaces and
// serves connections until ctx is canceled, the idle timeout fires, or
// Shutdown is called. It returns a non-nil error if the listener
// cannot be bound or if Accept fails while no shutdown is in progress.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	if port == 0 {
		port = DefaultPort
	}
	return s.listenAndServe(ctx, fmt.Sprintf(":%d", port))
}

// Serve binds to the given address and serves connections until ctx
// is canceled, the idle timeout fires, or Shutdown is called.
func (s *Server) Serve(ctx context.Context, addr string) error {
	return s.listenAndServe(ctx, addr)
}

func (s *Server) listenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: failed to bind listener on %s: %w", addr, err)
	}
	s.listener = lis
	s.lastActive.Store(time.Now().UnixNano())
	klog.Infof("treasury server listening on %s", lis.Addr())

	if s.pendingTimeout >= 0 {
		s.wg.Add(1)
		go s.watchIdle()
	}

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("server: accept failed: %w", err)
			}
		}
		atomic.AddInt64(&s.conns, 1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				atomic.AddInt64(&s.conns, -1)
				s.lastActive.Store(time.Now().UnixNano())
			}()
			s.handleConn(conn)
		}()
	}
}

// Shutdown closes the listener, causing Serve to return. Safe to call
// more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			s.listener.Close()
		}
	})
}

func (s *Server) watchIdle() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			if atomic.LoadInt64(&s.conns) > 0 {
				continue
			}
			idleSince := time.Unix(0, s.lastActive.Load())
			if time.Since(idleSince) >= s.pendingTimeout {
				klog.Infof("server: idle for %s, shutting down", s.pendingTimeout)
				s.Shutdown()
				return
			}
		}
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	if err := wireproto.ReadHandshake(conn); err != nil {
		klog.Warningf("server: handshake failed from %s: %v", conn.RemoteAddr(), err)
		return
	}
	if err := wireproto.WriteHandshake(conn); err != nil {
		klog.Warningf("server: handshake reply failed to %s: %v", conn.RemoteAddr(), err)
		return
	}

	fr := wireproto.NewFrameReader(conn)
	defer fr.Release()
	fw := wireproto.NewFrameWriter(conn)
	defer fw.Release()

	sess := &session{conn: conn, registry: s.registry, fr: fr, fw: fw}
	if err := sess.openPhase(); err != nil {
		klog.V(2).Infof("server: connection from %s closed during open: %v", conn.RemoteAddr(), err)
		return
	}
	sess.serve()
}
