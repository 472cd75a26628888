package hostbridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pkt.systems/hostbridge/bridgeapi"
	"pkt.systems/hostbridge/core"
	"pkt.systems/hostbridge/internal/metrics"
	"pkt.systems/hostbridge/schema"
	"pkt.systems/pslog"
)

// DefaultTickInterval is the host loop frame interval used when none is configured.
const DefaultTickInterval = 16 * time.Millisecond

// Server composes the bridge listener with the host-thread dispatcher.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	Addr() string
	Registry() *core.Registry
	Dispatcher() *core.Dispatcher
	Console() *core.LogBuffer
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Bridge          bridgeapi.Config
	TickInterval    time.Duration
	ConsoleCapacity int
}

// ServerDeps captures optional collaborators. Nil fields are created by New.
type ServerDeps struct {
	Registry *core.Registry
	Console  *core.LogBuffer
	Scene    *core.Scene
	Logger   pslog.Logger
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	referenceScene bool
	externalHost   bool
	frame          func()
}

// WithReferenceScene registers the in-memory scene command set.
func WithReferenceScene() ServerOption {
	return func(o *serverOptions) { o.referenceScene = true }
}

// WithExternalHostLoop leaves ticking the dispatcher to the caller, which
// must call Dispatcher().Tick from its own host thread.
func WithExternalHostLoop() ServerOption {
	return func(o *serverOptions) { o.externalHost = true }
}

// WithFrame runs fn on the host thread after every interval tick.
func WithFrame(fn func()) ServerOption {
	return func(o *serverOptions) { o.frame = fn }
}

// New constructs a bridge server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.ConsoleCapacity <= 0 {
		cfg.ConsoleCapacity = core.DefaultConsoleCapacity
	}

	registry := deps.Registry
	if registry == nil {
		registry = core.NewRegistry()
	}
	console := deps.Console
	if console == nil {
		console = core.NewLogBuffer(cfg.ConsoleCapacity)
	}
	if options.referenceScene {
		scene := deps.Scene
		if scene == nil {
			scene = core.NewScene()
		}
		if err := core.RegisterSceneCommands(registry, scene, console); err != nil {
			return nil, err
		}
	}

	dispatchOpts := []core.DispatcherOption{core.WithDispatchObserver(metrics.DispatchObserver{})}
	if deps.Logger != nil {
		dispatchOpts = append(dispatchOpts, core.WithDispatcherLogger(deps.Logger))
	}
	dispatcher := core.NewDispatcher(dispatchOpts...)
	exec := core.NewExecutor(registry, dispatcher)

	return &compositeServer{
		cfg:        cfg,
		options:    options,
		registry:   registry,
		dispatcher: dispatcher,
		console:    console,
		bridge:     bridgeapi.NewServer(cfg.Bridge, exec),
	}, nil
}

type compositeServer struct {
	cfg        ServerConfig
	options    serverOptions
	registry   *core.Registry
	dispatcher *core.Dispatcher
	console    *core.LogBuffer
	bridge     *bridgeapi.Server
	logger     pslog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	addr    string
	started bool
	stopped bool
}

func (s *compositeServer) Registry() *core.Registry { return s.registry }
func (s *compositeServer) Dispatcher() *core.Dispatcher { return s.dispatcher }
func (s *compositeServer) Console() *core.LogBuffer { return s.console }

func (s *compositeServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the listener synchronously and then serves in the background.
// A bind failure is returned as *schema.BindError and leaves the server stopped.
func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := pslog.Ctx(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		log.Warn("server start rejected", "reason", "already started")
		return schema.ErrAlreadyStarted
	}

	ln, err := bridgeapi.Listen(s.cfg.Bridge.Addr)
	if err != nil {
		log.Error("server bind failed", "addr", s.cfg.Bridge.Addr, "err", err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	s.cancel = cancel
	s.group = group
	s.addr = ln.Addr().String()
	s.started = true
	s.logger = log

	log.Info(
		"server start",
		"addr", s.addr,
		"tick_interval", s.cfg.TickInterval,
		"external_host_loop", s.options.externalHost,
		"methods", len(s.registry.Methods()),
	)
	group.Go(func() error {
		if err := s.bridge.Serve(groupCtx, ln); err != nil {
			log.Error("bridge server failed", "err", err)
			return err
		}
		return nil
	})
	if !s.options.externalHost {
		group.Go(func() error {
			err := s.dispatcher.RunFrames(groupCtx, s.cfg.TickInterval, s.options.frame)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("host loop failed", "err", err)
				return err
			}
			return nil
		})
	}
	return nil
}

// Wait blocks until every background task has returned.
func (s *compositeServer) Wait() error {
	s.mu.Lock()
	group := s.group
	started := s.started
	s.mu.Unlock()
	if !started {
		return schema.ErrNotStarted
	}
	return group.Wait()
}

// Stop closes sessions, cancels outstanding host work and then releases the
// listening socket. It is idempotent.
func (s *compositeServer) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	group := s.group
	log := s.logger
	s.mu.Unlock()

	log.Info("server stop requested", "sessions", s.bridge.SessionCount())
	var errs []error
	if err := s.bridge.CloseSessions(ctx); err != nil {
		log.Warn("server session close failed", "err", err)
		errs = append(errs, err)
	}
	s.dispatcher.Stop()
	if err := s.bridge.Close(ctx); err != nil {
		log.Warn("server listener close failed", "err", err)
		errs = append(errs, err)
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		errs = append(errs, ctx.Err())
	case err := <-done:
		if err != nil {
			errs = append(errs, err)
		}
		log.Info("server stopped")
	}
	return errors.Join(errs...)
}
