package lockbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// checkpointWorker triggers checkpoints in the background once the engine
// reports enough journaled updates since the last one. Requests arriving
// while a checkpoint is already pending are dropped; the engine simply asks
// again after its next batch
type checkpointWorker struct {
	checkpoint func(context.Context) error
	log        *zap.Logger
	queue      chan struct{}
	done       chan struct{}
	timeout    time.Duration
	wg         sync.WaitGroup
}

func newCheckpointWorker(
	checkpoint func(context.Context) error, cfg Config,
) *checkpointWorker {
	w := &checkpointWorker{
		checkpoint: checkpoint,
		log:        cfg.Logger,
		timeout:    cfg.WriteTimeout,
		queue:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	w.wg.Add(1)
	go w.worker()
	return w
}

func (w *checkpointWorker) worker() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case <-w.queue:
			w.save()
		}
	}
}

func (w *checkpointWorker) save() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	start := time.Now()
	err := w.checkpoint(ctx)
	duration := time.Since(start)

	if err != nil {
		w.log.Error("failed to save checkpoint",
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	w.log.Debug("checkpoint saved",
		zap.Duration("duration", duration),
	)
}

func (w *checkpointWorker) request() bool {
	select {
	case w.queue <- struct{}{}:
		return true
	default:
		return false
	}
}

func (w *checkpointWorker) Stop() {
	close(w.done)
	w.wg.Wait()
}
