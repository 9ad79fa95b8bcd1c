package lockbox

import (
	"context"
	"encoding/json"
	"sync"
)

// TagMemory is the backend family tag of the in-memory backend
const TagMemory Tag = "memory"

type (
	// MemoryState is the backend-specific handle of the in-memory backend,
	// recoverable from a generic Handle via Downcast. The backend provides
	// the full ordering and isolation contract but no durability; its
	// journal and checkpoints live in process memory
	MemoryState struct {
		journal *memoryJournal
	}

	memoryJournal struct {
		mu         sync.Mutex
		events     []*Event
		checkpoint json.RawMessage
		nextSeq    int64
	}
)

// OpenMemory creates a Handle backed by process memory
func OpenMemory[S any](
	ctx context.Context, cfg Config, model Model[S],
) (*Handle, error) {
	j := &memoryJournal{}
	eng, err := newEngine(ctx, cfg, model, j)
	if err != nil {
		return nil, err
	}
	return NewHandle(TagMemory, eng, &MemoryState{journal: j}), nil
}

// JournalLen returns the number of events retained since the last
// checkpoint
func (m *MemoryState) JournalLen() int {
	m.journal.mu.Lock()
	defer m.journal.mu.Unlock()
	return len(m.journal.events)
}

// CheckpointSequence returns the sequence the last checkpoint covers up to,
// or zero when no checkpoint has been taken
func (m *MemoryState) CheckpointSequence() int64 {
	m.journal.mu.Lock()
	defer m.journal.mu.Unlock()
	return m.journal.nextSeq
}

func (j *memoryJournal) Append(_ context.Context, evs []*Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, evs...)
	return nil
}

func (j *memoryJournal) Load(context.Context) (*JournalState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return &JournalState{
		Checkpoint:   j.checkpoint,
		Events:       j.events,
		NextSequence: j.nextSeq,
	}, nil
}

func (j *memoryJournal) WriteCheckpoint(
	_ context.Context, data []byte, nextSeq int64,
) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	drop := 0
	for drop < len(j.events) && j.events[drop].Sequence < nextSeq {
		drop++
	}
	j.events = j.events[drop:]
	j.checkpoint = data
	j.nextSeq = nextSeq
	return nil
}

func (j *memoryJournal) Close() error {
	return nil
}
