package bridgeapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/hostbridge/internal/codec"
	"pkt.systems/hostbridge/schema"
	"pkt.systems/pslog"
)

// frameTransport is the per-session wire strategy. A session reads request
// frames until ReadFrame fails and writes one response frame per request.
// ReadFrame returns io.EOF when the client has no more requests but still
// expects its responses, and errPeerGone when nobody is listening anymore.
type frameTransport interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, data []byte) error
	Close(reason string) error
}

// keepaliveTransport is implemented by transports that need liveness pings.
type keepaliveTransport interface {
	keepalive(ctx context.Context, log pslog.Logger)
}

var (
	errPeerGone      = errors.New("peer gone")
	errAlreadyAnswer = errors.New("one-shot response already written")
)

type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pingInterval time.Duration
	pongWait     time.Duration
	closeOnce    sync.Once
}

func newWSTransport(conn *websocket.Conn, cfg Config) *wsTransport {
	t := &wsTransport{
		conn:         conn,
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		pongWait:     cfg.pongWait(),
	}
	conn.SetReadLimit(cfg.ReadLimitBytes)
	if t.pongWait > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(t.pongWait))
		})
	}
	return t
}

func (t *wsTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errPeerGone
	}
	if t.pongWait > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	}
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, errPeerGone
		}
		if ctx.Err() != nil {
			return nil, errPeerGone
		}
		return nil, err
	}
	return data, nil
}

// WriteFrame must only be called from the session writer goroutine.
func (t *wsTransport) WriteFrame(_ context.Context, data []byte) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and releases the connection. Safe to call
// concurrently with reads and writes.
func (t *wsTransport) Close(reason string) error {
	var err error
	t.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.writeTimeout))
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) keepalive(ctx context.Context, log pslog.Logger) {
	if t.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout)); err != nil {
				log.Debug("session ping failed", "err", err)
				return
			}
		}
	}
}

// httpTransport carries exactly one request in a POST body and one response
// in the HTTP response.
type httpTransport struct {
	w         http.ResponseWriter
	r         *http.Request
	readLimit int64
	read      bool
	wrote     bool
	readErr   error
}

func newHTTPTransport(w http.ResponseWriter, r *http.Request, cfg Config) *httpTransport {
	return &httpTransport{w: w, r: r, readLimit: cfg.ReadLimitBytes}
}

func (t *httpTransport) ReadFrame(context.Context) ([]byte, error) {
	if t.read {
		return nil, io.EOF
	}
	t.read = true
	body := http.MaxBytesReader(t.w, t.r.Body, t.readLimit)
	data, err := io.ReadAll(body)
	if err != nil {
		t.readErr = fmt.Errorf("read request body: %w", err)
		return nil, t.readErr
	}
	return data, nil
}

func (t *httpTransport) WriteFrame(_ context.Context, data []byte) error {
	if t.wrote {
		return errAlreadyAnswer
	}
	t.wrote = true
	writeEnvelope(t.w, http.StatusOK, data)
	return nil
}

func (t *httpTransport) Close(string) error {
	return nil
}

// finish answers a one-shot request that never produced a response frame.
func (t *httpTransport) finish(shuttingDown bool) {
	if t.wrote {
		return
	}
	t.wrote = true
	switch {
	case t.readErr != nil:
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(t.readErr, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeEnvelope(t.w, status, codec.EncodeError(t.readErr))
	case shuttingDown:
		writeEnvelope(t.w, http.StatusServiceUnavailable, codec.EncodeError(schema.ErrShuttingDown))
	default:
		writeEnvelope(t.w, http.StatusServiceUnavailable, codec.EncodeError(schema.ErrCancelled))
	}
}

func writeEnvelope(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
