package ops

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultFeedFailure = "Failed to fetch data. Please try again later."

type FetchFunc[S any] func(ctx context.Context) (S, error)

// FeedView is what a feed currently displays. Seq increases with every
// applied result so consumers can drop out-of-order copies.
type FeedView[S any] struct {
	Snapshot    S
	HasSnapshot bool
	Err         string
	UpdatedAt   time.Time
	Seq         uint64
}

type FeedOptions[S any] struct {
	// Failure is the message shown while the latest fetch failed.
	Failure  string
	Logger   *zap.Logger
	OnUpdate func(FeedView[S])
}

// Feed fetches a snapshot on a fixed interval while started.
//
// Every tick issues a fetch even if the previous one has not returned;
// snapshots replace each other wholesale, so results are applied in the
// order they arrive. Results of fetches issued before Stop, or before a
// restart, are discarded.
type Feed[S any] struct {
	name     string
	fetch    FetchFunc[S]
	failure  string
	logger   *zap.Logger
	onUpdate func(FeedView[S])

	mu         sync.Mutex
	generation uint64
	active     bool
	cancel     context.CancelFunc
	view       FeedView[S]
}

func NewFeed[S any](name string, fetch FetchFunc[S], opts FeedOptions[S]) *Feed[S] {
	failure := opts.Failure
	if failure == "" {
		failure = DefaultFeedFailure
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed[S]{
		name:     name,
		fetch:    fetch,
		failure:  failure,
		logger:   logger.With(zap.String("feed", name)),
		onUpdate: opts.OnUpdate,
	}
}

// Start fetches immediately and then once per interval until Stop or until
// ctx is done. ctx also bounds the fetches themselves. Starting a running
// feed does nothing.
func (f *Feed[S]) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("feed %s: interval must be positive, got %s", f.name, interval)
	}

	f.mu.Lock()
	if f.active {
		f.mu.Unlock()
		return nil
	}
	f.generation++
	generation := f.generation
	tickCtx, cancel := context.WithCancel(ctx)
	f.active = true
	f.cancel = cancel
	f.view = FeedView[S]{Seq: f.view.Seq}
	f.mu.Unlock()

	f.logger.Debug("feed started", zap.Duration("interval", interval))
	go f.run(ctx, tickCtx, generation, interval)
	return nil
}

// Stop cancels future ticks. Fetches already in flight finish but their
// results are dropped. Stop is idempotent.
func (f *Feed[S]) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return
	}
	f.active = false
	f.generation++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.logger.Debug("feed stopped")
}

func (f *Feed[S]) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *Feed[S]) View() FeedView[S] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *Feed[S]) run(fetchCtx, tickCtx context.Context, generation uint64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	f.tick(fetchCtx, generation)
	for {
		select {
		case <-tickCtx.Done():
			return
		case <-ticker.C:
			f.tick(fetchCtx, generation)
		}
	}
}

func (f *Feed[S]) current(generation uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active && f.generation == generation
}

func (f *Feed[S]) tick(ctx context.Context, generation uint64) {
	// The ticker and the cancel can race in select; never issue for a
	// stopped generation.
	if !f.current(generation) {
		return
	}
	go func() {
		snapshot, err := f.fetch(ctx)
		f.apply(generation, snapshot, err)
	}()
}

func (f *Feed[S]) apply(generation uint64, snapshot S, err error) {
	f.mu.Lock()
	if !f.active || f.generation != generation {
		f.mu.Unlock()
		f.logger.Debug("discarding result from stopped feed", zap.Error(err))
		return
	}
	if err != nil {
		f.view.Err = f.failure
	} else {
		f.view.Snapshot = snapshot
		f.view.HasSnapshot = true
		f.view.Err = ""
	}
	f.view.UpdatedAt = time.Now()
	f.view.Seq++
	view := f.view
	onUpdate := f.onUpdate
	f.mu.Unlock()

	if err != nil {
		f.logger.Warn("feed fetch failed", zap.Error(err))
	}
	if onUpdate != nil {
		onUpdate(view)
	}
}
