package lockbox

import (
	"context"
	"encoding/json"
)

// Handle is the generic facade over a transactional state container. It is
// constructed exactly once, fully populated, by a backend factory and never
// mutated afterwards; all mutable state lives behind the Backend it wraps.
// A Handle is safe for concurrent use by any number of callers
type Handle struct {
	backend Backend
	sub     any
	tag     Tag
}

// NewHandle assembles a Handle from a backend, its family tag, and the
// backend-specific handle recoverable later via Downcast. Only backend
// factories call this; the sub payload must be of the type associated with
// the tag
func NewHandle(tag Tag, backend Backend, sub any) *Handle {
	return &Handle{
		tag:     tag,
		backend: backend,
		sub:     sub,
	}
}

// Tag returns the backend family identifier set at construction
func (h *Handle) Tag() Tag {
	return h.tag
}

// ScheduleUpdate enqueues a state-mutating event for in-order execution and
// returns without waiting for it to run. The returned Future is fulfilled
// once the event's effects are durable
func (h *Handle) ScheduleUpdate(
	ctx context.Context, ev *Event,
) (*Future, error) {
	return h.backend.ScheduleUpdate(ctx, ev)
}

// Update schedules the event and blocks until its effects are durable,
// returning the result produced by the event's Applier
func (h *Handle) Update(ctx context.Context, ev *Event) (any, error) {
	fut, err := h.backend.ScheduleUpdate(ctx, ev)
	if err != nil {
		return nil, err
	}
	return fut.Take(ctx)
}

// Query executes a read-only event against the current state. Queries carry
// no durability implication and may interleave freely with updates
func (h *Handle) Query(ctx context.Context, ev *Event) (any, error) {
	return h.backend.Query(ctx, ev)
}

// ScheduleColdUpdate enqueues an externally encoded update event. The type
// tag selects which Applier decodes the payload; an unknown tag is reported
// as an error before anything is enqueued
func (h *Handle) ScheduleColdUpdate(
	ctx context.Context, typ EventType, data []byte,
) (*ColdFuture, error) {
	fut, err := h.backend.ScheduleUpdate(ctx, coldEvent(typ, data))
	if err != nil {
		return nil, err
	}
	return &ColdFuture{inner: fut}, nil
}

// ColdUpdate schedules an externally encoded update and blocks until its
// effects are durable, returning the result encoded as bytes
func (h *Handle) ColdUpdate(
	ctx context.Context, typ EventType, data []byte,
) ([]byte, error) {
	fut, err := h.ScheduleColdUpdate(ctx, typ, data)
	if err != nil {
		return nil, err
	}
	return fut.Take(ctx)
}

// ColdQuery executes an externally encoded read-only event and returns the
// result encoded as bytes
func (h *Handle) ColdQuery(
	ctx context.Context, typ EventType, data []byte,
) ([]byte, error) {
	res, err := h.backend.Query(ctx, coldEvent(typ, data))
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

// Checkpoint blocks until a consistent snapshot of the current state has
// been durably recorded. It does not prevent new updates or queries from
// being accepted while it runs
func (h *Handle) Checkpoint(ctx context.Context) error {
	return h.backend.Checkpoint(ctx)
}

// Close blocks until in-flight operations have completed and the backend's
// resources are released. Close is idempotent; calls after the first return
// the first call's result. Any other operation invoked after Close reports
// ErrHandleClosed
func (h *Handle) Close() error {
	return h.backend.Close()
}
