// Package client talks to a running bridge over either transport.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/hostbridge/internal/codec"
	"pkt.systems/hostbridge/schema"
)

// CommandError is an error envelope returned by the bridge.
type CommandError struct {
	Method  schema.Method
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// Client issues commands against one bridge address.
type Client struct {
	base       *url.URL
	dialer     *websocket.Dialer
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the client used for one-shot calls and pings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// New returns a client for addr, which is either host:port or an
// http, https, ws or wss URL.
func New(addr string, opts ...Option) (*Client, error) {
	base, err := parseBase(addr)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base:       base,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func parseBase(addr string) (*url.URL, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("bridge address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse bridge address: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported bridge scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("bridge address %q has no host", addr)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = path
	return u.String()
}

func (c *Client) streamEndpoint() string {
	u := *c.base
	u.Path = "/"
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

// Ping checks the liveness probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/ping"), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping: unexpected status %s", resp.Status)
	}
	if strings.TrimSpace(string(body)) != "pong" {
		return fmt.Errorf("ping: unexpected body %q", body)
	}
	return nil
}

// Call sends one command over a streaming connection and closes it.
func (c *Client) Call(ctx context.Context, method schema.Method, params schema.Params) (string, error) {
	conn, err := c.Dial(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.Call(ctx, method, params)
}

// CallHTTP sends one command over the one-shot transport.
func (c *Client) CallHTTP(ctx context.Context, method schema.Method, params schema.Params) (string, error) {
	payload, err := codec.EncodeRequest(schema.CommandRequest{Method: method, Params: params})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/"), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	result, err := codec.DecodeResult(body)
	if err != nil {
		return "", fmt.Errorf("call %s: status %s: %w", method, resp.Status, err)
	}
	return resultValue(method, result)
}

// Methods lists the commands the bridge exposes.
func (c *Client) Methods(ctx context.Context) ([]string, error) {
	out, err := c.Call(ctx, "list_methods", nil)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// Conn is a streaming connection carrying many commands. Calls on one Conn
// are serialized.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Dial opens a streaming connection.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ws, resp, err := c.dialer.DialContext(ctx, c.streamEndpoint(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			if result, decodeErr := codec.DecodeResult(body); decodeErr == nil && !result.IsOk() {
				return nil, fmt.Errorf("dial bridge: %s: %s", resp.Status, result.Error())
			}
			return nil, fmt.Errorf("dial bridge: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial bridge: %w", err)
	}
	return &Conn{ws: ws}, nil
}

// Call sends one command and waits for its response.
func (c *Conn) Call(ctx context.Context, method schema.Method, params schema.Params) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := codec.EncodeRequest(schema.CommandRequest{Method: method, Params: params})
	if err != nil {
		return "", err
	}
	data, err := c.roundTrip(ctx, payload)
	if err != nil {
		return "", err
	}
	result, err := codec.DecodeResult(data)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", method, err)
	}
	return resultValue(method, result)
}

// Raw sends a frame as-is and returns the raw response frame.
func (c *Conn) Raw(ctx context.Context, frame []byte) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.roundTrip(ctx, frame)
}

func (c *Conn) roundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, _ := ctx.Deadline()
	_ = c.ws.SetWriteDeadline(deadline)
	_ = c.ws.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, fmt.Errorf("write command: %w", err)
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

// Close sends a close frame and releases the connection.
func (c *Conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.ws.Close()
}

func resultValue(method schema.Method, result schema.CommandResult) (string, error) {
	if !result.IsOk() {
		return "", &CommandError{Method: method, Message: result.Error()}
	}
	return result.Value(), nil
}
