package bridgeapi

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"pkt.systems/hostbridge/core"
	"pkt.systems/hostbridge/internal/codec"
	"pkt.systems/hostbridge/internal/logx"
	"pkt.systems/hostbridge/internal/metrics"
	"pkt.systems/hostbridge/schema"
	"pkt.systems/pslog"
)

// replyQueueDepth bounds how many requests a session may have in flight.
const replyQueueDepth = 64

type pendingReply struct {
	method schema.Method
	known  bool
	future *core.Future
}

// session is one client connection. A reader goroutine turns frames into
// futures and queues them; a writer goroutine answers them in queue order.
type session struct {
	id      schema.SessionID
	kind    schema.TransportKind
	exec    *core.Executor
	limiter *rate.Limiter
	log     pslog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	state     schema.SessionState
	transport frameTransport
	released  atomic.Bool
}

func newSession(parent context.Context, id schema.SessionID, kind schema.TransportKind, exec *core.Executor, cfg Config) *session {
	log := logx.WithSession(parent, id)
	ctx, cancel := context.WithCancel(logx.ContextWithSessionLogger(parent, log, id))
	sess := &session{
		id:     id,
		kind:   kind,
		exec:   exec,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		state:  schema.SessionOpen,
	}
	if cfg.RateLimit > 0 {
		sess.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return sess
}

// attach binds the transport. It reports false, closing the transport, when
// the session is already shutting down.
func (s *session) attach(t frameTransport) bool {
	s.mu.Lock()
	if s.state != schema.SessionOpen {
		s.mu.Unlock()
		_ = t.Close("bridge shutting down")
		return false
	}
	s.transport = t
	s.mu.Unlock()
	return true
}

func (s *session) currentState() schema.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(state schema.SessionState) {
	s.mu.Lock()
	if state > s.state {
		s.state = state
	}
	s.mu.Unlock()
}

// shutdown moves the session to Closing, abandons pending replies and closes
// the transport so a blocked reader returns.
func (s *session) shutdown(reason string) {
	s.mu.Lock()
	if s.state == schema.SessionOpen {
		s.state = schema.SessionClosing
	}
	t := s.transport
	s.mu.Unlock()
	s.cancel()
	if t != nil {
		if err := t.Close(reason); err != nil {
			s.log.Debug("session transport close failed", "err", err)
		}
	}
}

// run serves the session until the transport ends or the session is shut down.
func (s *session) run() {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		s.shutdown("no transport")
		return
	}
	if ka, ok := t.(keepaliveTransport); ok {
		go ka.keepalive(s.ctx, s.log)
	}

	replies := make(chan pendingReply, replyQueueDepth)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(t, replies)
	}()

	drain := s.readLoop(t, replies)
	close(replies)
	if !drain {
		s.cancel()
	}
	<-writerDone
	s.shutdown("")
}

// readLoop reports whether queued replies should still be delivered.
func (s *session) readLoop(t frameTransport, replies chan<- pendingReply) bool {
	for {
		frame, err := t.ReadFrame(s.ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return true
			case errors.Is(err, errPeerGone), s.ctx.Err() != nil:
				s.log.Debug("session peer gone")
			default:
				s.log.Warn("session read failed", "err", err)
			}
			return false
		}
		reply := s.handleFrame(frame)
		select {
		case replies <- reply:
		case <-s.ctx.Done():
			return false
		}
	}
}

func (s *session) handleFrame(frame []byte) pendingReply {
	if s.limiter != nil && !s.limiter.Allow() {
		s.log.Debug("session rate limited")
		return pendingReply{future: core.Resolved(schema.FailErr(schema.ErrRateLimited))}
	}
	req, err := codec.Decode(frame)
	if err != nil {
		var decodeErr *codec.DecodeError
		if errors.As(err, &decodeErr) && decodeErr.Detail != nil {
			s.log.Debug("session frame rejected", "err", err, "detail", decodeErr.Detail)
		} else {
			s.log.Debug("session frame rejected", "err", err)
		}
		return pendingReply{future: core.Resolved(schema.FailErr(err))}
	}
	_, known := s.exec.Registry().Lookup(req.Method)
	ctx := logx.ContextWithMethodLogger(s.ctx, logx.WithSessionMethod(s.ctx, s.id, req.Method), req.Method)
	return pendingReply{method: req.Method, known: known, future: s.exec.Execute(ctx, req)}
}

func (s *session) writeLoop(t frameTransport, replies <-chan pendingReply) {
	for reply := range replies {
		var result schema.CommandResult
		select {
		case <-reply.future.Done():
			result, _ = reply.future.Result()
		case <-s.ctx.Done():
			continue
		}
		if s.ctx.Err() != nil {
			continue
		}
		if err := t.WriteFrame(s.ctx, codec.Encode(result)); err != nil {
			s.log.Warn("session write failed", "err", err)
			s.shutdown("write failed")
			continue
		}
		status := schema.StatusSuccess
		if !result.IsOk() {
			status = schema.StatusError
		}
		label := metrics.UnknownMethod
		if reply.known {
			label = string(reply.method)
		}
		metrics.CommandAnswered(label, status)
		logx.WithSessionMethod(s.ctx, s.id, reply.method).Debug("session reply", "status", status)
	}
}
