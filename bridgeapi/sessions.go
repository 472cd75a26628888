package bridgeapi

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"pkt.systems/hostbridge/internal/logx"
	"pkt.systems/hostbridge/internal/metrics"
	"pkt.systems/hostbridge/schema"
)

type connLimiter struct {
	max    int
	mu     sync.Mutex
	active int
}

func newConnLimiter(max int) *connLimiter {
	return &connLimiter{max: max}
}

func (l *connLimiter) Acquire() bool {
	if l == nil || l.max <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active >= l.max {
		return false
	}
	l.active++
	return true
}

func (l *connLimiter) Release() {
	if l == nil || l.max <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active > 0 {
		l.active--
	}
}

// sessionManager owns the set of live sessions.
type sessionManager struct {
	mu      sync.Mutex
	items   map[schema.SessionID]*session
	limiter *connLimiter
	closing bool
	wg      sync.WaitGroup
	factory func(ctx context.Context, id schema.SessionID, kind schema.TransportKind) *session
}

func newSessionManager(maxSessions int, factory func(context.Context, schema.SessionID, schema.TransportKind) *session) *sessionManager {
	return &sessionManager{
		items:   make(map[schema.SessionID]*session),
		limiter: newConnLimiter(maxSessions),
		factory: factory,
	}
}

// reserve claims a session slot without creating a session. It fails once
// shutdown has begun or when the session cap is reached.
func (m *sessionManager) reserve() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return schema.ErrShuttingDown
	}
	if !m.limiter.Acquire() {
		return schema.ErrSessionLimit
	}
	return nil
}

// unreserve returns a slot claimed by reserve that never became a session.
func (m *sessionManager) unreserve() {
	m.limiter.Release()
}

// open reserves a slot and registers a new session in it.
func (m *sessionManager) open(ctx context.Context, kind schema.TransportKind) (*session, error) {
	if err := m.reserve(); err != nil {
		return nil, err
	}
	return m.register(ctx, kind)
}

// register turns a reserved slot into a live session. The slot is given back
// when shutdown began after the reservation.
func (m *sessionManager) register(ctx context.Context, kind schema.TransportKind) (*session, error) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		m.limiter.Release()
		return nil, schema.ErrShuttingDown
	}
	id := schema.SessionID(uuid.NewString())
	sess := m.factory(ctx, id, kind)
	m.items[id] = sess
	m.wg.Add(1)
	count := len(m.items)
	m.mu.Unlock()

	metrics.SessionOpened(kind)
	logx.WithTransport(sess.log, kind).Info("session open", "sessions", count)
	return sess, nil
}

// release removes a finished session and frees its slot.
func (m *sessionManager) release(sess *session) {
	if sess == nil || !sess.released.CompareAndSwap(false, true) {
		return
	}
	m.mu.Lock()
	delete(m.items, sess.id)
	count := len(m.items)
	m.mu.Unlock()
	sess.setState(schema.SessionClosed)
	m.limiter.Release()
	metrics.SessionClosed()
	sess.log.Info("session closed", "sessions", count)
	m.wg.Done()
}

func (m *sessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *sessionManager) shuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closing
}

// closeAll refuses new sessions, closes every live session and waits for
// them to finish. On timeout the set is cleared anyway.
func (m *sessionManager) closeAll(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	live := make([]*session, 0, len(m.items))
	for _, sess := range m.items {
		live = append(live, sess)
	}
	m.mu.Unlock()

	for _, sess := range live {
		sess.shutdown("bridge shutting down")
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for id := range m.items {
			delete(m.items, id)
		}
		m.mu.Unlock()
		return ctx.Err()
	}
}
