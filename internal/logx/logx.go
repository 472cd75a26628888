package logx

import (
	"context"

	"pkt.systems/hostbridge/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	sessionKey contextKey = iota
	methodKey
)

// WithSession annotates the logger with the session id if present.
func WithSession(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithSessionMethod annotates the logger with session and method.
func WithSessionMethod(ctx context.Context, sessionID schema.SessionID, method schema.Method) pslog.Logger {
	log := WithSession(ctx, sessionID)
	if method != "" {
		if current, ok := ctx.Value(methodKey).(schema.Method); ok && current == method {
			return log
		}
		log = log.With("method", method)
	}
	return log
}

// WithTransport annotates the logger with the session transport kind.
func WithTransport(log pslog.Logger, kind schema.TransportKind) pslog.Logger {
	if kind != "" {
		log = log.With("transport", string(kind))
	}
	return log
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithMethod stores the method marker on the context for log de-duplication.
func ContextWithMethod(ctx context.Context, method schema.Method) context.Context {
	if ctx == nil || method == "" {
		return ctx
	}
	return context.WithValue(ctx, methodKey, method)
}

// ContextWithSessionLogger attaches the logger and session marker to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ctx, sessionID)
}

// ContextWithMethodLogger attaches the logger and method marker to the context.
func ContextWithMethodLogger(ctx context.Context, log pslog.Logger, method schema.Method) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithMethod(ctx, method)
}

// SessionFromContext returns the session marker stored on ctx.
func SessionFromContext(ctx context.Context) schema.SessionID {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sessionKey).(schema.SessionID)
	return id
}
