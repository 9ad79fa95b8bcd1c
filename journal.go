package lockbox

import (
	"context"
	"encoding/json"
)

type (
	// Journal is the persistence surface a backend supplies to the engine.
	// The engine is the journal's only writer, so implementations need not
	// coordinate concurrent appends from a single handle; they must still
	// detect interference from other processes sharing the same storage
	Journal interface {
		// Append durably writes the events, which carry contiguous
		// sequence numbers assigned by the engine. The events must be
		// recoverable by Load once Append returns
		Append(context.Context, []*Event) error

		// Load returns the most recent checkpoint and every event
		// journaled after it, in sequence order
		Load(context.Context) (*JournalState, error)

		// WriteCheckpoint durably records a state snapshot covering every
		// event below nextSeq, and may prune the journal prefix it covers
		WriteCheckpoint(ctx context.Context, data []byte, nextSeq int64) error

		Close() error
	}

	// JournalState is the recovery image produced by Journal.Load.
	// NextSequence is the sequence of the first event after the checkpoint;
	// Events holds the journal tail from that sequence onward
	JournalState struct {
		Checkpoint   json.RawMessage
		Events       []*Event
		NextSequence int64
	}
)
