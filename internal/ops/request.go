package ops

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultRequestFailure = "Operation failed. Please try again."

type DoFunc[Req, Res any] func(ctx context.Context, req Req) (Res, error)

type RequestOptions[Res any] struct {
	// Failure is the user-facing reason stored on any error.
	Failure  string
	Logger   *zap.Logger
	OnChange func(State[Res])
}

// Request runs one request/response exchange per Submit and holds the
// outcome until the next Submit. Overlapping submissions are not aborted;
// whichever response arrives last decides the final state.
type Request[Req, Res any] struct {
	name     string
	do       DoFunc[Req, Res]
	failure  string
	logger   *zap.Logger
	onChange func(State[Res])

	mu    sync.Mutex
	state State[Res]
}

func NewRequest[Req, Res any](name string, do DoFunc[Req, Res], opts RequestOptions[Res]) *Request[Req, Res] {
	failure := opts.Failure
	if failure == "" {
		failure = DefaultRequestFailure
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Request[Req, Res]{
		name:     name,
		do:       do,
		failure:  failure,
		logger:   logger.With(zap.String("operation", name)),
		onChange: opts.OnChange,
		state:    Idle[Res](),
	}
}

func (r *Request[Req, Res]) State() State[Res] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Submit blocks until the call completes and returns the state it applied.
func (r *Request[Req, Res]) Submit(ctx context.Context, req Req) State[Res] {
	requestID := uuid.NewString()
	logger := r.logger.With(zap.String("request_id", requestID))

	r.set(Pending[Res]())
	logger.Debug("request issued")

	started := time.Now()
	res, err := r.do(ctx, req)
	if err != nil {
		logger.Warn("request failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return r.set(Failed[Res](r.failure))
	}
	logger.Info("request succeeded", zap.Duration("elapsed", time.Since(started)))
	return r.set(Succeeded(res))
}

func (r *Request[Req, Res]) set(state State[Res]) State[Res] {
	r.mu.Lock()
	r.state = state
	onChange := r.onChange
	r.mu.Unlock()

	if onChange != nil {
		onChange(state)
	}
	return state
}
