// Package bridgeapi serves bridge sessions over HTTP: websocket upgrades become
// streaming sessions and POST requests become one-shot sessions.
package bridgeapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"pkt.systems/hostbridge/core"
	"pkt.systems/hostbridge/internal/codec"
	"pkt.systems/hostbridge/internal/metrics"
	"pkt.systems/hostbridge/schema"
	"pkt.systems/pslog"
)

// PingReply is the body served by the liveness probe.
const PingReply = "pong"

// Server routes connections to sessions and owns the listener lifecycle.
type Server struct {
	cfg      Config
	exec     *core.Executor
	sessions *sessionManager
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
	closed     bool
}

// NewServer constructs a bridge server dispatching through exec.
func NewServer(cfg Config, exec *core.Executor) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:  cfg,
		exec: exec,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     allowLocalOrigin,
		},
	}
	s.sessions = newSessionManager(cfg.MaxSessions, func(ctx context.Context, id schema.SessionID, kind schema.TransportKind) *session {
		return newSession(ctx, id, kind, exec, cfg)
	})
	return s
}

// Handler returns the HTTP handler for the bridge.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/ping", s.handlePing)
	if s.cfg.EnableMetrics {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	r.HandleFunc("/", s.handleCommand)
	return withRequestLogging(r)
}

// Serve accepts connections on ln until Close. It returns nil after a
// requested close. Serve shuts the server down when ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if ctx == nil {
		ctx = context.Background()
	}
	srv := newHTTPServer(ctx, s.Handler())
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return schema.ErrAlreadyStarted
	}
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return nil
	}
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	})
	defer stop()

	pslog.Ctx(ctx).Info("bridge listening", "addr", s.addr)
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the bound address once Serve has started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	return s.sessions.count()
}

// CloseSessions stops admitting sessions and closes every live one.
func (s *Server) CloseSessions(ctx context.Context) error {
	return s.sessions.closeAll(ctx)
}

// Close releases the listening socket. It is idempotent.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
		return err
	}
	return nil
}

// Shutdown closes all sessions and then the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	sessErr := s.CloseSessions(ctx)
	closeErr := s.Close(ctx)
	return errors.Join(sessErr, closeErr)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(PingReply))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	switch {
	case websocket.IsWebSocketUpgrade(r):
		s.serveStreaming(w, r)
	case r.Method == http.MethodPost:
		s.serveRequestResponse(w, r)
	default:
		http.Error(w, "expected a websocket upgrade or a POST command", http.StatusBadRequest)
	}
}

func (s *Server) serveStreaming(w http.ResponseWriter, r *http.Request) {
	log := pslog.Ctx(r.Context())
	if err := s.sessions.reserve(); err != nil {
		log.Warn("session refused", "transport", schema.TransportStreaming, "err", err)
		writeEnvelope(w, http.StatusServiceUnavailable, codec.EncodeError(err))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered with an HTTP error.
		s.sessions.unreserve()
		log.Warn("websocket upgrade failed", "err", err)
		return
	}
	t := newWSTransport(conn, s.cfg)
	sess, err := s.sessions.register(r.Context(), schema.TransportStreaming)
	if err != nil {
		log.Warn("session refused", "transport", schema.TransportStreaming, "err", err)
		_ = t.Close(err.Error())
		return
	}
	defer s.sessions.release(sess)

	if !sess.attach(t) {
		return
	}
	sess.run()
}

func (s *Server) serveRequestResponse(w http.ResponseWriter, r *http.Request) {
	log := pslog.Ctx(r.Context())
	sess, err := s.sessions.open(r.Context(), schema.TransportRequestResponse)
	if err != nil {
		log.Warn("session refused", "transport", schema.TransportRequestResponse, "err", err)
		writeEnvelope(w, http.StatusServiceUnavailable, codec.EncodeError(err))
		return
	}
	defer s.sessions.release(sess)

	t := newHTTPTransport(w, r, s.cfg)
	if sess.attach(t) {
		sess.run()
	}
	t.finish(s.sessions.shuttingDown())
}

// allowLocalOrigin accepts clients without an Origin header, same-host
// origins and loopback origins.
func allowLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
