package core

import (
	"fmt"
	"sort"
	"sync"

	"pkt.systems/hostbridge/schema"
)

// Handler executes a command on the host thread.
// Handlers validate their own parameters and report problems with schema.Fail.
type Handler interface {
	Handle(req schema.CommandRequest) schema.CommandResult
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req schema.CommandRequest) schema.CommandResult

// Handle calls f(req).
func (f HandlerFunc) Handle(req schema.CommandRequest) schema.CommandResult {
	return f(req)
}

// Registry maps method names to handlers. It is an explicit table: a method
// either has an entry or it does not exist.
type Registry struct {
	mu       sync.RWMutex
	handlers map[schema.Method]Handler
	aliases  map[schema.Method]schema.Method
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[schema.Method]Handler),
		aliases:  make(map[schema.Method]schema.Method),
	}
}

// Register associates method with handler.
func (r *Registry) Register(method schema.Method, handler Handler) error {
	if method == "" {
		return fmt.Errorf("register: method name is required")
	}
	if handler == nil {
		return fmt.Errorf("register %s: handler is nil", method)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsLocked(method) {
		return fmt.Errorf("register %s: %w", method, schema.ErrMethodExists)
	}
	r.handlers[method] = handler
	return nil
}

// RegisterFunc registers a function handler.
func (r *Registry) RegisterFunc(method schema.Method, fn func(schema.CommandRequest) schema.CommandResult) error {
	if fn == nil {
		return fmt.Errorf("register %s: handler is nil", method)
	}
	return r.Register(method, HandlerFunc(fn))
}

// RegisterAlias makes alias resolve to the handler registered for target.
func (r *Registry) RegisterAlias(alias, target schema.Method) error {
	if alias == "" || target == "" {
		return fmt.Errorf("alias: names are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.existsLocked(alias) {
		return fmt.Errorf("alias %s: %w", alias, schema.ErrMethodExists)
	}
	if _, ok := r.handlers[target]; !ok {
		return fmt.Errorf("alias %s: target %s: %w", alias, target, schema.ErrMethodNotFound)
	}
	r.aliases[alias] = target
	return nil
}

// Unregister removes a method and every alias pointing at it.
func (r *Registry) Unregister(method schema.Method) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.aliases[method]; ok {
		delete(r.aliases, method)
		return true
	}
	if _, ok := r.handlers[method]; !ok {
		return false
	}
	delete(r.handlers, method)
	for alias, target := range r.aliases {
		if target == method {
			delete(r.aliases, alias)
		}
	}
	return true
}

// Lookup resolves method, following aliases.
func (r *Registry) Lookup(method schema.Method) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[method]; ok {
		method = target
	}
	h, ok := r.handlers[method]
	return h, ok
}

// Methods returns the registered method names in sorted order, aliases excluded.
func (r *Registry) Methods() []schema.Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.Method, 0, len(r.handlers))
	for method := range r.handlers {
		out = append(out, method)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) existsLocked(method schema.Method) bool {
	if _, ok := r.handlers[method]; ok {
		return true
	}
	_, ok := r.aliases[method]
	return ok
}
