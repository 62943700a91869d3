package server

import (
	"bufio"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatd/protocol"
	"chatd/store"
)

type Server struct {
	store  *store.Store
	config *Config
	dir    *Directory
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	sessions map[*Session]struct{}
	stopped  bool

	wg sync.WaitGroup
}

type Config struct {
	Port         int
	WriteTimeout time.Duration

	// How long Stop waits for in-flight sessions to drain before their
	// connections are closed forcibly.
	ShutdownGrace time.Duration
}

func New(st *store.Store, config *Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.ShutdownGrace == 0 {
		config.ShutdownGrace = 2 * time.Second
	}
	return &Server{
		store:    st,
		config:   config,
		dir:      NewDirectory(),
		logger:   logger,
		sessions: make(map[*Session]struct{}),
	}
}

// Start binds the listener and serves until Stop is called. It returns nil
// after a clean shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.config.Port))
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("server started", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// Addr reports the bound listener address, nil before Start has bound it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener, tells every connected client the server is
// going away, and waits briefly for sessions to drain. Connections still
// open after the grace period are closed forcibly so shutdown never hangs
// on a slow peer.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	ln := s.listener
	open := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	s.logger.Info("shutting down", "sessions", len(open))

	if ln != nil {
		ln.Close()
	}

	for _, sess := range open {
		if sess.Username() != "" {
			sess.Enqueue(protocol.Shutdown)
		}
		sess.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.config.ShutdownGrace):
		for _, sess := range open {
			sess.abort()
		}
		<-done
	}

	s.logger.Info("shutdown complete")
}

func (s *Server) trackSession(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.sessions[sess] = struct{}{}
	return true
}

func (s *Server) untrackSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

func (s *Server) handleConnection(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()

	sess := newSession(conn)
	if !s.trackSession(sess) {
		conn.Close()
		return
	}
	sess.startWriter(s.config.WriteTimeout)

	ConnectedClients.Inc()
	defer ConnectedClients.Dec()
	s.logger.Info("client connected", "addr", remoteAddr)

	sess.send(protocol.Welcome)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	for scanner.Scan() {
		cmd, err := protocol.ParseCommand(scanner.Text())
		if err != nil {
			// Blank input between commands is ignored.
			continue
		}

		if quit := s.dispatch(sess, cmd); quit {
			break
		}
	}

	// Same cleanup for every exit path: QUIT, EOF, I/O error, shutdown.
	if name := sess.Username(); name != "" {
		s.dir.Unregister(name, sess)
		s.logger.Info("client disconnected", "username", name, "addr", remoteAddr)
	} else {
		s.logger.Info("client disconnected", "addr", remoteAddr)
	}
	sess.Close()
	s.untrackSession(sess)
}

// GetStats returns server statistics as a formatted string for the control
// socket.
func (s *Server) GetStats() string {
	names := s.dir.Snapshot()
	return "connections=" + strconv.Itoa(len(names)) + ",users=" + strings.Join(names, ";")
}
