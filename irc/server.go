package irc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/presbrey/sircd/irc/config"
)

// Server owns the listener, the shared registry and every live session
type Server struct {
	config    *config.Config
	registry  *Registry
	router    *Router
	hooks     *hookRegistry
	metrics   *Metrics
	admin     *AdminServer
	startTime time.Time

	mu       sync.Mutex
	listener net.Listener
	sessions map[*Session]struct{}
	wg       sync.WaitGroup
	quit     chan struct{}
}

// NewServer creates a server from cfg. Nothing listens until Start.
func NewServer(cfg *config.Config) *Server {
	registry := NewRegistry()
	s := &Server{
		config:    cfg,
		registry:  registry,
		router:    NewRouter(registry, cfg.Server.Name),
		hooks:     newHookRegistry(),
		metrics:   NewMetrics(),
		startTime: time.Now(),
		sessions:  make(map[*Session]struct{}),
		quit:      make(chan struct{}),
	}

	s.metrics.hooks(s.hooks)
	s.hooks.register(EventDisconnect, s.forgetSession)

	if cfg.Admin.Enabled {
		s.admin = NewAdminServer(s, cfg.AdminAddress())
	}
	return s
}

// Start starts the IRC listener and, when configured, the admin server
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.config.ListenAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress(), err)
	}
	s.listener = listener
	log.Printf("IRC Server started on %s", listener.Addr().String())

	if s.admin != nil {
		s.admin.Start()
	}

	s.wg.Add(1)
	go s.acceptConnections(listener)
	return nil
}

// Stop closes the listener, disconnects every session and waits for their
// goroutines to finish
func (s *Server) Stop() error {
	s.mu.Lock()
	listener := s.listener
	if listener == nil {
		s.mu.Unlock()
		return nil
	}
	close(s.quit)
	s.listener = nil

	sessions := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	err := listener.Close()

	for _, session := range sessions {
		session.reply("ERROR :Server shutting down")
		session.close("Server shutting down")
	}

	if s.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if adminErr := s.admin.Stop(ctx); adminErr != nil {
			log.Printf("Error stopping admin server: %v", adminErr)
		}
	}

	s.wg.Wait()
	log.Printf("IRC Server stopped")
	return err
}

// Addr returns the bound listener address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// OnEvent registers a hook for a session lifecycle event
func (s *Server) OnEvent(kind EventKind, hook Hook) {
	s.hooks.register(kind, hook)
}

// Registry returns the server's shared registry
func (s *Server) Registry() *Registry {
	return s.registry
}

// Metrics returns the server's collectors
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Uptime returns how long the server has existed
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// acceptConnections accepts connections until the listener is closed
func (s *Server) acceptConnections(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Failed to accept connection: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs one session to completion
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	session := newSession(s, conn)
	log.Printf("[%s] *** New client connected from %s", session.ID, session.RemoteAddr)

	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		conn.Close()
		session.close("Server shutting down")
		return
	default:
	}
	s.sessions[session] = struct{}{}
	s.mu.Unlock()

	session.Serve()
}

func (s *Server) forgetSession(ev *Event) error {
	s.mu.Lock()
	delete(s.sessions, ev.Session)
	s.mu.Unlock()
	return nil
}
