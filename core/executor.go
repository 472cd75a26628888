package core

import (
	"context"

	"pkt.systems/hostbridge/internal/logx"
	"pkt.systems/hostbridge/schema"
)

// Executor resolves requests in a Registry and runs them through a Dispatcher.
type Executor struct {
	registry   *Registry
	dispatcher *Dispatcher
}

// NewExecutor wires a registry to a dispatcher.
func NewExecutor(registry *Registry, dispatcher *Dispatcher) *Executor {
	if registry == nil {
		registry = NewRegistry()
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	return &Executor{registry: registry, dispatcher: dispatcher}
}

// Registry returns the command table.
func (e *Executor) Registry() *Registry { return e.registry }

// Dispatcher returns the host-thread dispatcher.
func (e *Executor) Dispatcher() *Dispatcher { return e.dispatcher }

// Execute looks up req.Method and schedules its handler on the host thread.
// Unknown methods resolve immediately without reaching the dispatcher.
func (e *Executor) Execute(ctx context.Context, req schema.CommandRequest) *Future {
	handler, ok := e.registry.Lookup(req.Method)
	if !ok {
		logx.WithSessionMethod(ctx, logx.SessionFromContext(ctx), req.Method).Debug("command unknown")
		return Resolved(schema.FailErr(schema.ErrMethodNotFound))
	}
	if req.Params == nil {
		req.Params = schema.Params{}
	}
	return e.dispatcher.Schedule(func() schema.CommandResult {
		return handler.Handle(req)
	})
}

// Call executes req and waits for its result.
func (e *Executor) Call(ctx context.Context, req schema.CommandRequest) (schema.CommandResult, error) {
	return e.Execute(ctx, req).Wait(ctx)
}
