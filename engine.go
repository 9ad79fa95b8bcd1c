package lockbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type (
	// engine is the serialized apply loop shared by every backend. A single
	// goroutine drains the queue, folds events into the state through the
	// model's appliers, and journals them in arrival order, so updates are
	// applied exactly in the order their enqueues complete
	engine[S any] struct {
		journal Journal
		log     *zap.Logger
		queue   chan *task
		worker  *checkpointWorker
		model   Model[S]
		cfg     Config

		// mu guards state and nextSeq for concurrent queries
		mu      sync.RWMutex
		state   S
		nextSeq int64

		// closeMu serializes submission against Close
		closeMu   sync.RWMutex
		closed    bool
		closeOnce sync.Once
		closeErr  error
		wg        sync.WaitGroup

		sinceCheckpoint int64
	}

	task struct {
		ev         *Event
		fut        *Future
		res        any
		checkpoint bool
	}
)

var (
	// ErrHandleClosed is reported by every operation invoked after Close
	ErrHandleClosed = errors.New("state handle is closed")

	// ErrUnknownEvent indicates no Applier or Querier is registered for an
	// event's type
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrNoConstructor indicates a Model without an Init constructor
	ErrNoConstructor = errors.New("model requires an Init constructor")
)

func newEngine[S any](
	ctx context.Context, cfg Config, model Model[S], journal Journal,
) (*engine[S], error) {
	if model.Init == nil {
		return nil, ErrNoConstructor
	}
	cfg = cfg.withDefaults()

	e := &engine[S]{
		journal: journal,
		model:   model,
		cfg:     cfg,
		log:     cfg.Logger,
		queue:   make(chan *task, cfg.QueueSize),
	}

	if err := e.recover(ctx); err != nil {
		return nil, err
	}

	if cfg.CheckpointEvery > 0 {
		e.worker = newCheckpointWorker(e.Checkpoint, cfg)
	}

	e.wg.Add(1)
	go e.run()
	return e, nil
}

// recover rebuilds the in-memory state from the journal's checkpoint and
// the event tail journaled after it
func (e *engine[S]) recover(ctx context.Context) error {
	js, err := e.journal.Load(ctx)
	if err != nil {
		return err
	}

	state := e.model.Init()
	if len(js.Checkpoint) > 0 {
		if state, err = e.model.restore(js.Checkpoint); err != nil {
			return err
		}
	}

	nextSeq := js.NextSequence
	for _, ev := range js.Events {
		apply, ok := e.model.Appliers[ev.Type]
		if !ok {
			e.log.Warn("no applier for journaled event",
				zap.String("type", string(ev.Type)),
				zap.Int64("sequence", ev.Sequence),
			)
			nextSeq = ev.Sequence + 1
			continue
		}
		next, _, err := apply(state, ev)
		if err != nil {
			e.log.Warn("skipping journaled event during replay",
				zap.String("type", string(ev.Type)),
				zap.Int64("sequence", ev.Sequence),
				zap.Error(err),
			)
			nextSeq = ev.Sequence + 1
			continue
		}
		state = next
		nextSeq = ev.Sequence + 1
	}

	e.state = state
	e.nextSeq = nextSeq
	return nil
}

func (e *engine[S]) ScheduleUpdate(
	ctx context.Context, ev *Event,
) (*Future, error) {
	if _, ok := e.model.Appliers[ev.Type]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Type)
	}

	t := &task{ev: ev, fut: NewFuture()}
	if err := e.submit(ctx, t); err != nil {
		return nil, err
	}
	return t.fut, nil
}

func (e *engine[S]) Query(ctx context.Context, ev *Event) (any, error) {
	qry, ok := e.model.Queriers[ev.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Type)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.closeMu.RLock()
	if e.closed {
		e.closeMu.RUnlock()
		return nil, ErrHandleClosed
	}
	e.closeMu.RUnlock()

	e.mu.RLock()
	state := e.state
	e.mu.RUnlock()

	// appliers never mutate a published state, so the querier runs against
	// a stable prefix of the applied updates without holding the lock
	return qry(state, ev)
}

func (e *engine[S]) Checkpoint(ctx context.Context) error {
	t := &task{checkpoint: true, fut: NewFuture()}
	if err := e.submit(ctx, t); err != nil {
		return err
	}
	_, err := t.fut.Take(ctx)
	return err
}

func (e *engine[S]) Close() error {
	e.closeOnce.Do(func() {
		if e.worker != nil {
			e.worker.Stop()
		}

		e.closeMu.Lock()
		e.closed = true
		close(e.queue)
		e.closeMu.Unlock()

		e.wg.Wait()
		e.closeErr = e.journal.Close()
	})
	return e.closeErr
}

func (e *engine[S]) submit(ctx context.Context, t *task) error {
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()

	if e.closed {
		return ErrHandleClosed
	}
	select {
	case e.queue <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *engine[S]) run() {
	defer e.wg.Done()

	for t := range e.queue {
		if t.checkpoint {
			t.fut.Complete(nil, e.writeCheckpoint())
			continue
		}

		batch := []*task{t}
		var cp *task
	drain:
		for len(batch) < e.cfg.BatchSize {
			select {
			case next, ok := <-e.queue:
				if !ok {
					break drain
				}
				if next.checkpoint {
					cp = next
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		e.applyBatch(batch)
		if cp != nil {
			cp.fut.Complete(nil, e.writeCheckpoint())
		}
	}
}

// applyBatch folds a batch of pending updates into a staged state, journals
// the accepted events in one durable append, and only then publishes the
// new state and fulfills the futures
func (e *engine[S]) applyBatch(batch []*task) {
	e.mu.RLock()
	staged := e.state
	seq := e.nextSeq
	e.mu.RUnlock()

	accepted := make([]*task, 0, len(batch))
	evs := make([]*Event, 0, len(batch))
	for _, t := range batch {
		next, res, err := e.model.Appliers[t.ev.Type](staged, t.ev)
		if err != nil {
			t.fut.Complete(nil, err)
			continue
		}

		ev := *t.ev
		ev.Sequence = seq
		seq++
		staged = next
		t.res = res
		accepted = append(accepted, t)
		evs = append(evs, &ev)
	}
	if len(evs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(
		context.Background(), e.cfg.WriteTimeout,
	)
	err := e.journal.Append(ctx, evs)
	cancel()
	if err != nil {
		e.log.Error("journal append failed",
			zap.Int("events", len(evs)),
			zap.Error(err),
		)
		for _, t := range accepted {
			t.fut.Complete(nil, err)
		}
		return
	}

	e.mu.Lock()
	e.state = staged
	e.nextSeq = seq
	e.mu.Unlock()

	for _, t := range accepted {
		t.fut.Complete(t.res, nil)
	}
	if e.cfg.Hub != nil {
		e.cfg.Hub.publish(evs)
	}

	e.sinceCheckpoint += int64(len(evs))
	if e.worker != nil && e.sinceCheckpoint >= e.cfg.CheckpointEvery {
		e.worker.request()
	}
}

// writeCheckpoint runs on the apply goroutine, so the snapshot it encodes
// is consistent with every fulfilled update
func (e *engine[S]) writeCheckpoint() error {
	e.mu.RLock()
	state := e.state
	seq := e.nextSeq
	e.mu.RUnlock()

	data, err := e.model.encode(state)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(
		context.Background(), e.cfg.WriteTimeout,
	)
	defer cancel()

	if err := e.journal.WriteCheckpoint(ctx, data, seq); err != nil {
		return err
	}
	e.sinceCheckpoint = 0
	return nil
}
