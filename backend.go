package lockbox

import "context"

// Backend is the contract a concrete engine must satisfy to produce a
// Handle. The cold operation variants and the blocking Update convenience
// are derived on the Handle from these four operations.
//
// ScheduleUpdate must apply events in exactly the order their enqueues
// complete, and must fulfill each returned Future only once the event's
// effects are durable. Query must observe a state reflecting a prefix of
// the applied updates, never a partially applied one. After Close has
// completed, every operation must be rejected with ErrHandleClosed.
type Backend interface {
	ScheduleUpdate(context.Context, *Event) (*Future, error)
	Query(context.Context, *Event) (any, error)
	Checkpoint(context.Context) error
	Close() error
}
