package hostbridge

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"pkt.systems/hostbridge/bridgeapi"
	"pkt.systems/hostbridge/client"
	"pkt.systems/hostbridge/core"
	"pkt.systems/hostbridge/schema"
)

func newTestServer(t *testing.T, opts ...ServerOption) Server {
	t.Helper()
	opts = append([]ServerOption{WithReferenceScene()}, opts...)
	srv, err := New(ServerConfig{
		Bridge:       bridgeapi.Config{Addr: "127.0.0.1:0"},
		TickInterval: 5 * time.Millisecond,
	}, ServerDeps{}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func stopServer(t *testing.T, srv Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestServerServesCommands(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopServer(t, srv)

	c, err := client.New(srv.Addr())
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	out, err := c.Call(ctx, "get_hierarchy", nil)
	if err != nil {
		t.Fatalf("get_hierarchy: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty hierarchy, got %q", out)
	}
	if _, err := c.CallHTTP(ctx, "create_object", schema.Params{"name": "Root"}); err != nil {
		t.Fatalf("create_object: %v", err)
	}
	out, err = c.Call(ctx, "read_console", nil)
	if err != nil {
		t.Fatalf("read_console: %v", err)
	}
	if len(srv.Console().Snapshot()) != 1 {
		t.Fatalf("expected one console entry, got %q", out)
	}
}

func TestServerStartReportsBindError(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	srv, err := New(ServerConfig{Bridge: bridgeapi.Config{Addr: busy.Addr().String()}}, ServerDeps{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = srv.Start(context.Background())
	var bindErr *schema.BindError
	if !errors.As(err, &bindErr) {
		t.Fatalf("expected BindError, got %v", err)
	}
	if srv.Addr() != "" {
		t.Fatalf("expected no address after failed start, got %q", srv.Addr())
	}
	if err := srv.Wait(); !errors.Is(err, schema.ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop on stopped server: %v", err)
	}
}

func TestServerStartTwice(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopServer(t, srv)
	if err := srv.Start(context.Background()); !errors.Is(err, schema.ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestServerStopIsIdempotentAndReleasesSocket(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := srv.Addr()

	waitErr := make(chan error, 1)
	go func() { waitErr <- srv.Wait() }()

	stopServer(t, srv)
	stopServer(t, srv)

	select {
	case err := <-waitErr:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Wait did not return after Stop")
	}
	if !srv.Dispatcher().Stopped() {
		t.Fatalf("expected dispatcher to be stopped")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("expected %s to be free after Stop: %v", addr, err)
	}
	_ = ln.Close()
}

func TestServerStopClosesSessionsAndCancelsWork(t *testing.T) {
	srv := newTestServer(t, WithExternalHostLoop())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c, err := client.New(srv.Addr())
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	conn, err := c.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	callErr := make(chan error, 1)
	go func() {
		_, err := conn.Call(context.Background(), "get_hierarchy", nil)
		callErr <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for srv.Dispatcher().Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("command never reached the dispatcher")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopServer(t, srv)
	select {
	case err := <-callErr:
		if err == nil {
			t.Fatalf("expected the pending call to fail after Stop")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("pending call not released by Stop")
	}
	if srv.Dispatcher().Pending() != 0 {
		t.Fatalf("expected no pending work after Stop")
	}
	if f := srv.Dispatcher().Schedule(func() schema.CommandResult { return schema.Ok("late") }); !f.Cancelled() {
		t.Fatalf("expected work scheduled after Stop to be cancelled")
	}
}

func TestServerStartContextCancelStopsHostWork(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer stopCancel()
		_ = srv.Stop(stopCtx)
	}()

	cancel()
	waitErr := make(chan error, 1)
	go func() { waitErr <- srv.Wait() }()
	select {
	case err := <-waitErr:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("server did not return after its context was cancelled")
	}
	if !srv.Dispatcher().Stopped() {
		t.Fatalf("expected dispatcher stopped after the host loop exited")
	}
	f := srv.Dispatcher().Schedule(func() schema.CommandResult { return schema.Ok("late") })
	if !f.Cancelled() {
		t.Fatalf("expected work scheduled after the host loop exited to be cancelled")
	}
}

func TestServerExternalHostLoop(t *testing.T) {
	var frames int
	srv := newTestServer(t, WithExternalHostLoop(), WithFrame(func() { frames++ }))
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopServer(t, srv)

	hostCtx, cancelHost := context.WithCancel(context.Background())
	hostDone := make(chan struct{})
	go func() {
		defer close(hostDone)
		_ = srv.Dispatcher().Run(hostCtx, 5*time.Millisecond)
	}()
	defer func() {
		cancelHost()
		<-hostDone
	}()

	c, err := client.New(srv.Addr())
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	out, err := c.Call(ctx, "create_object", schema.Params{"param_name": "Legacy"})
	if err != nil {
		t.Fatalf("create_object: %v", err)
	}
	if out != "Created 'Legacy' at (0, 0, 0)" {
		t.Fatalf("unexpected result %q", out)
	}
	if frames != 0 {
		t.Fatalf("frame callback should only run in the built-in host loop")
	}
}

func TestServerCustomRegistry(t *testing.T) {
	reg := core.NewRegistry()
	if err := reg.RegisterFunc("greet", func(req schema.CommandRequest) schema.CommandResult {
		name, _ := req.Params.String("name")
		return schema.Okf("hello %s", name)
	}); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	srv, err := New(ServerConfig{Bridge: bridgeapi.Config{Addr: "127.0.0.1:0"}}, ServerDeps{Registry: reg})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopServer(t, srv)

	c, err := client.New(srv.Addr())
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	out, err := c.Call(ctx, "greet", schema.Params{"name": "host"})
	if err != nil {
		t.Fatalf("greet: %v", err)
	}
	if out != "hello host" {
		t.Fatalf("unexpected result %q", out)
	}
	if _, err := c.Call(ctx, "get_hierarchy", nil); err == nil {
		t.Fatalf("expected scene commands to be absent without WithReferenceScene")
	}
}
