package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"canvasdatasync/target"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Fetcher downloads one file; implemented by target.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, req target.FetchRequest) (target.FetchResult, error)
}

// LocalStats counts the jobs handled by the in-process workers.
type LocalStats struct {
	Fetched int64
	Skipped int64
	Failed  int64
}

// LocalDispatcher runs download jobs in-process on a bounded pool of workers, for the long-running
// mode. Submit only enqueues; failures are logged by the workers and repaired by a later pass.
type LocalDispatcher struct {
	fetcher Fetcher
	workers int
	limiter *rate.Limiter

	mu     sync.Mutex
	queue  chan target.FetchRequest
	closed bool
	group  *errgroup.Group

	fetched atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// NewLocalDispatcher creates a pool of workers starting at most perSecond downloads per second
// and holding up to queueSize pending jobs.
func NewLocalDispatcher(fetcher Fetcher, workers int, queueSize int, perSecond float64) *LocalDispatcher {
	if workers <= 0 {
		workers = 1
	}
	burst := workers
	return &LocalDispatcher{
		fetcher: fetcher,
		workers: workers,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		queue:   make(chan target.FetchRequest, queueSize),
	}
}

// Start launches the workers. They stop when ctx is cancelled or when Close drains the queue.
func (d *LocalDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.group != nil {
		return
	}
	d.group, ctx = errgroup.WithContext(ctx)
	d.group.SetLimit(d.workers)
	for i := 0; i < d.workers; i++ {
		d.group.Go(func() error {
			d.work(ctx)
			return nil
		})
	}
	log.Debug("Started local download workers", zap.Int("workers", d.workers))
}

// Submit enqueues the job without blocking. A full queue is an error, the caller treats it
// like any other dispatch failure.
func (d *LocalDispatcher) Submit(_ context.Context, req target.FetchRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits until the workers have drained the queue.
func (d *LocalDispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	group := d.group
	d.mu.Unlock()

	if group == nil {
		return nil
	}
	return group.Wait()
}

// Stats returns the counters accumulated since the dispatcher was created.
func (d *LocalDispatcher) Stats() LocalStats {
	return LocalStats{Fetched: d.fetched.Load(), Skipped: d.skipped.Load(), Failed: d.failed.Load()}
}

func (d *LocalDispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-d.queue:
			if !ok {
				return
			}
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			result, err := d.fetcher.Fetch(ctx, req)
			switch {
			case err != nil:
				d.failed.Add(1)
				log.Error("Download failed", zap.String("key", req.Key), zap.Error(err))
			case result.Skipped():
				d.skipped.Add(1)
			default:
				d.fetched.Add(1)
			}
		}
	}
}
