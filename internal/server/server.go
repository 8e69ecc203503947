package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/skypro1111/wyoming-asr-service/internal/config"
	"github.com/skypro1111/wyoming-asr-service/internal/metrics"
	"github.com/skypro1111/wyoming-asr-service/internal/protocol"
	"github.com/skypro1111/wyoming-asr-service/internal/session"
)

// Server accepts stream connections and runs one session per connection.
// Events for a connection are read and handled by a single goroutine, so
// they are processed strictly in arrival order.
type Server struct {
	config      *config.ServerConfig
	sessionCfg  session.Config
	transcriber session.Transcriber
	logger      *slog.Logger
	metrics     *metrics.Metrics

	listener net.Listener
	unixPath string // set when listening on a unix socket

	// Concurrency management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Active sessions and counters
	sessions           map[string]*session.Handler
	connectionsTotal   uint64
	eventsProcessed    uint64
	decodeErrors       uint64
	connectionsRefused uint64
	mu                 sync.RWMutex
}

// New creates a new server instance. The metrics argument may be nil.
func New(cfg *config.ServerConfig, sessionCfg session.Config, transcriber session.Transcriber, logger *slog.Logger, m *metrics.Metrics) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		config:      cfg,
		sessionCfg:  sessionCfg,
		transcriber: transcriber,
		logger:      logger,
		metrics:     m,
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[string]*session.Handler),
	}
}

// Start binds the listener and begins accepting connections
func (s *Server) Start() error {
	listener, unixPath, err := listen(s.config.ListenURI)
	if err != nil {
		return err
	}

	s.listener = listener
	s.unixPath = unixPath

	s.logger.Info("Server started",
		slog.String("uri", s.config.ListenURI),
		slog.Int("max_connections", s.config.MaxConnections),
	)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// listen binds a listener from a tcp:// or unix:// URI
func listen(uri string) (net.Listener, string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse listen URI %q: %w", uri, err)
	}

	switch parsed.Scheme {
	case "tcp":
		listener, err := net.Listen("tcp", parsed.Host)
		if err != nil {
			return nil, "", fmt.Errorf("failed to listen on %s: %w", parsed.Host, err)
		}
		return listener, "", nil

	case "unix":
		path := parsed.Path
		if path == "" {
			return nil, "", fmt.Errorf("unix URI must have a path: %q", uri)
		}

		// Remove a stale socket from a previous run
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("failed to remove stale socket %s: %w", path, err)
		}

		listener, err := net.Listen("unix", path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to listen on %s: %w", path, err)
		}
		return listener, path, nil

	default:
		return nil, "", fmt.Errorf("unsupported URI scheme in %q (expected tcp:// or unix://)", uri)
	}
}

// Addr returns the bound listener address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.logger.Info("Stopping server...")

	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Warn("Error closing listener", slog.String("error", err.Error()))
		}
	}

	s.wg.Wait()

	if s.unixPath != "" {
		if err := os.Remove(s.unixPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove unix socket", slog.String("error", err.Error()))
		}
	}

	stats := s.GetStatistics()
	s.logger.Info("Server stopped",
		slog.Uint64("connections_total", stats.ConnectionsTotal),
		slog.Uint64("events_processed", stats.EventsProcessed),
		slog.Uint64("decode_errors", stats.DecodeErrors),
	)

	return nil
}

// acceptLoop accepts connections until the listener closes
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return
			}

			s.logger.Error("Failed to accept connection", slog.String("error", err.Error()))
			continue
		}

		if s.activeSessionCount() >= s.config.MaxConnections {
			s.logger.Warn("Connection limit reached, refusing connection",
				slog.String("remote_addr", remoteAddr(conn)),
				slog.Int("max_connections", s.config.MaxConnections),
			)

			s.mu.Lock()
			s.connectionsRefused++
			s.mu.Unlock()

			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection runs the event loop for one connection
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Unblock the read loop when the server shuts down
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	handler := session.NewHandler(s.sessionCfg, s.transcriber, s.logger, s.metrics)

	s.registerSession(handler)
	defer s.unregisterSession(handler)

	if s.metrics != nil {
		s.metrics.RecordConnectionOpened()
		defer s.metrics.RecordConnectionClosed()
	}

	s.logger.Info("Connection opened",
		slog.String("remote_addr", remoteAddr(conn)),
		slog.String("session_id", handler.ID()),
	)

	reader := protocol.NewReader(conn, s.config.ReadBufferSize)
	writer := protocol.NewWriter(conn)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		event, err := reader.ReadEvent()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedEvent) {
				// Framing survived; skip the event and keep the
				// connection open.
				s.mu.Lock()
				s.decodeErrors++
				s.mu.Unlock()

				if s.metrics != nil {
					s.metrics.RecordDecodeError()
				}

				s.logger.Warn("Skipping malformed event",
					slog.String("session_id", handler.ID()),
					slog.String("error", err.Error()),
				)
				continue
			}

			if !errors.Is(err, io.EOF) && !isClosedConnError(err) {
				s.logger.Warn("Connection read failed",
					slog.String("session_id", handler.ID()),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		s.mu.Lock()
		s.eventsProcessed++
		s.mu.Unlock()

		reply, err := handler.HandleEvent(s.ctx, event)
		if err != nil {
			s.logger.Error("Event handling failed",
				slog.String("session_id", handler.ID()),
				slog.String("event_type", event.Type),
				slog.String("error", err.Error()),
			)
			continue
		}

		if reply == nil {
			continue
		}

		if err := writer.WriteEvent(reply); err != nil {
			s.logger.Warn("Failed to write reply, closing connection",
				slog.String("session_id", handler.ID()),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// registerSession tracks a session for the monitoring API
func (s *Server) registerSession(handler *session.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[handler.ID()] = handler
	s.connectionsTotal++
}

// unregisterSession removes a finished session
func (s *Server) unregisterSession(handler *session.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, handler.ID())
}

// activeSessionCount returns the number of open sessions
func (s *Server) activeSessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// GetSessions returns a stats snapshot of all active sessions
func (s *Server) GetSessions() []session.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make([]session.Stats, 0, len(s.sessions))
	for _, handler := range s.sessions {
		stats = append(stats, handler.GetStats())
	}

	return stats
}

// GetSession returns the stats of one session by id
func (s *Server) GetSession(id string) (session.Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handler, ok := s.sessions[id]
	if !ok {
		return session.Stats{}, false
	}
	return handler.GetStats(), true
}

// GetStatistics returns current server statistics
func (s *Server) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		ActiveConnections:  uint64(len(s.sessions)),
		ConnectionsTotal:   s.connectionsTotal,
		ConnectionsRefused: s.connectionsRefused,
		EventsProcessed:    s.eventsProcessed,
		DecodeErrors:       s.decodeErrors,
	}
}

// ServerStatistics represents server performance counters
type ServerStatistics struct {
	ActiveConnections  uint64 `json:"active_connections"`
	ConnectionsTotal   uint64 `json:"connections_total"`
	ConnectionsRefused uint64 `json:"connections_refused"`
	EventsProcessed    uint64 `json:"events_processed"`
	DecodeErrors       uint64 `json:"decode_errors"`
}

// remoteAddr formats the peer address, tolerating unix sockets without one
func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return "local"
}

// isClosedConnError reports whether the error is the normal teardown of an
// already-closed connection.
func isClosedConnError(err error) bool {
	return errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), "use of closed network connection")
}
