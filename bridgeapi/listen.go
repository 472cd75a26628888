package bridgeapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"pkt.systems/hostbridge/schema"
	"pkt.systems/pslog"
)

// Listen binds addr. Failures are reported as *schema.BindError so callers can
// surface them before any goroutine starts.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &schema.BindError{Addr: addr, Err: err}
	}
	return ln, nil
}

func newHTTPServer(ctx context.Context, handler http.Handler) *http.Server {
	logger := pslog.Ctx(ctx)
	return &http.Server{
		Handler:           handler,
		ErrorLog:          pslog.LogLoggerWithLevel(logger, pslog.ErrorLevel),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
}
