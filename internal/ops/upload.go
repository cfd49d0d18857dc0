package ops

import (
	"context"
	"errors"
	"sync"

	"rxmediq-tui/internal/notify"
	"rxmediq-tui/internal/service"

	"go.uber.org/zap"
)

const RetrainFailure = "Failed to retrain model. Please try again."

// RetrainComplete is published once per successful upload.
type RetrainComplete struct {
	Visualizations []string
}

var (
	retrainEventsOnce sync.Once
	retrainEvents     *notify.Channel[RetrainComplete]
)

// RetrainEvents returns the process-wide retrain completion channel,
// creating it on first use. It lives until the process exits.
func RetrainEvents() *notify.Channel[RetrainComplete] {
	retrainEventsOnce.Do(func() {
		retrainEvents = notify.New[RetrainComplete]("retrain_complete", zap.L())
	})
	return retrainEvents
}

type UploadFunc func(ctx context.Context, payload *service.UploadPayload) (*service.RetrainOutcome, error)

type UploadOptions struct {
	// BaseURL resolves relative visualization locators.
	BaseURL  string
	Logger   *zap.Logger
	OnChange func(State[service.RetrainOutcome])
}

// UploadJob uploads a dataset to trigger retraining. On success it
// publishes the outcome's visualizations, resolved against BaseURL.
type UploadJob struct {
	request *Request[*service.UploadPayload, service.RetrainOutcome]
	events  *notify.Channel[RetrainComplete]
	baseURL string
	logger  *zap.Logger

	mu             sync.Mutex
	visualizations []string
}

func NewUploadJob(upload UploadFunc, events *notify.Channel[RetrainComplete], opts UploadOptions) *UploadJob {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	job := &UploadJob{
		events:  events,
		baseURL: opts.BaseURL,
		logger:  logger,
	}
	do := func(ctx context.Context, payload *service.UploadPayload) (service.RetrainOutcome, error) {
		outcome, err := upload(ctx, payload)
		if err != nil {
			return service.RetrainOutcome{}, err
		}
		if outcome == nil {
			return service.RetrainOutcome{}, errors.New("empty retrain outcome")
		}
		resolved := *outcome
		resolved.Visualizations = ResolveLocators(job.baseURL, outcome.Visualizations)
		return resolved, nil
	}
	job.request = NewRequest("retrain", do, RequestOptions[service.RetrainOutcome]{
		Failure:  RetrainFailure,
		Logger:   logger,
		OnChange: opts.OnChange,
	})
	return job
}

func (j *UploadJob) State() State[service.RetrainOutcome] {
	return j.request.State()
}

// Visualizations returns the locators from the latest successful upload;
// empty while an upload is pending.
func (j *UploadJob) Visualizations() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.visualizations...)
}

// Submit uploads payload and blocks until the service answers. A nil
// payload means nothing is selected; the current state is returned as is.
func (j *UploadJob) Submit(ctx context.Context, payload *service.UploadPayload) State[service.RetrainOutcome] {
	if payload == nil {
		return j.request.State()
	}

	j.setVisualizations(nil)
	state := j.request.Submit(ctx, payload)

	outcome, ok := state.Value()
	if !ok {
		return state
	}
	j.setVisualizations(outcome.Visualizations)
	if j.events != nil {
		j.events.Publish(RetrainComplete{
			Visualizations: append([]string(nil), outcome.Visualizations...),
		})
	}
	return state
}

func (j *UploadJob) setVisualizations(locators []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.visualizations = append([]string(nil), locators...)
}
