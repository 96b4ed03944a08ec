package authkit

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// auditQueue hands events to the sink on a single goroutine so request paths
// never wait on a slow sink.
//
// Events that record a change to a user's credentials or a detected attack
// (see mustDeliver) are never dropped: with DropIfFull set they still wait for
// buffer space or for ctx. Everything else is counted and dropped.
type auditQueue struct {
	sink       AuditSink
	log        *zap.Logger
	dropOnFull bool

	mu      sync.RWMutex
	closed  bool
	events  chan AuditEvent
	drained chan struct{}

	dropped atomic.Uint64
}

func newAuditQueue(cfg AuditConfig, sink AuditSink, log *zap.Logger) *auditQueue {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	q := &auditQueue{
		sink:       sink,
		log:        log.Named("audit"),
		dropOnFull: cfg.DropIfFull,
		events:     make(chan AuditEvent, max(cfg.BufferSize, 1)),
		drained:    make(chan struct{}),
	}
	go q.drain()
	return q
}

func (q *auditQueue) drain() {
	defer close(q.drained)
	for ev := range q.events {
		q.deliver(ev)
	}
}

func (q *auditQueue) deliver(ev AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("audit sink panicked",
				zap.String("event", ev.EventType),
				zap.String("user_id", ev.UserID),
				zap.Any("panic", r))
		}
	}()
	q.sink.Emit(context.Background(), ev)
}

// Emit queues ev. It is a no-op on a nil or closed queue.
func (q *auditQueue) Emit(ctx context.Context, ev AuditEvent) {
	if q == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}

	if q.dropOnFull && !mustDeliver(ev.EventType) {
		select {
		case q.events <- ev:
		default:
			q.drop(ev, "buffer full")
		}
		return
	}

	select {
	case q.events <- ev:
	case <-ctx.Done():
		q.drop(ev, "context done")
	}
}

// drop logs the first drop and then every power of two.
func (q *auditQueue) drop(ev AuditEvent, reason string) {
	n := q.dropped.Add(1)
	if n&(n-1) != 0 {
		return
	}
	q.log.Warn("audit event dropped",
		zap.String("event", ev.EventType),
		zap.String("reason", reason),
		zap.Uint64("dropped_total", n))
}

// Close stops accepting events and returns once the queued ones reached the sink.
func (q *auditQueue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()
	<-q.drained
}

func (q *auditQueue) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}

func mustDeliver(eventType string) bool {
	switch eventType {
	case auditEventRefreshReuseDetected,
		auditEventRevokeAll,
		auditEventTOTPEnabled,
		auditEventFactorRevoked,
		auditEventRecoveryGenerated,
		auditEventRecoveryUsed:
		return true
	}
	return false
}
