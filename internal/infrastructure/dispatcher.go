package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Dispatcher is the bounded worker pool behind the webhook acknowledgment.
// Each worker owns its queue and jobs are routed by key, so all work for one
// lease runs in submission order while unrelated leases stay concurrent. The
// webhook handler never waits on a job; a saturated queue is reported to the
// caller and logged, never silently dropped.
type Dispatcher struct {
	queues  []chan func(ctx context.Context)
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewDispatcher(workers, queueDepth int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queues:  make([]chan func(ctx context.Context), workers),
		baseCtx: ctx,
		cancel:  cancel,
	}
	for i := range d.queues {
		d.queues[i] = make(chan func(ctx context.Context), queueDepth)
		d.wg.Add(1)
		go d.work(i)
	}
	return d
}

// Submit queues a job on the worker owning key. It never blocks: when that
// worker's queue is full the job is rejected with an error.
func (d *Dispatcher) Submit(key int, job func(ctx context.Context)) error {
	if key < 0 {
		key = -key
	}
	queue := d.queues[key%len(d.queues)]
	select {
	case queue <- job:
		return nil
	default:
		return fmt.Errorf("dispatcher queue for key %d is full", key)
	}
}

func (d *Dispatcher) work(worker int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.baseCtx.Done():
			return
		case job := <-d.queues[worker]:
			d.run(worker, job)
		}
	}
}

func (d *Dispatcher) run(worker int, job func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatcher job panicked", "worker", worker, "panic", r)
		}
	}()
	job(d.baseCtx)
}

// Shutdown stops accepting work and waits for the workers to exit. Queued
// jobs that have not started are abandoned; their inbound messages are
// already durable in the ledger.
func (d *Dispatcher) Shutdown() {
	d.cancel()
	d.wg.Wait()
}
