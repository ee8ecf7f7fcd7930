package worker

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/seednote/seed-worker/internal/failure"
	"github.com/seednote/seed-worker/internal/store"
	"github.com/seednote/seed-worker/internal/store/model"
	"github.com/seednote/seed-worker/pkg/metrics"
	"github.com/seednote/seed-worker/pkg/requestid"
	"go.uber.org/zap"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
)

type Expander interface {
	Expand(ctx context.Context, title string, context *string) (model.Sprouts, error)
}

type Config struct {
	// IdleInterval is the wait after a fetch found nothing.
	IdleInterval time.Duration
	// ErrorCooldown is the wait after a store failure or an unusable record.
	ErrorCooldown time.Duration
}

type Outcome string

const (
	OutcomeIdle          Outcome = "idle"
	OutcomeFetchFailed   Outcome = "fetch_failed"
	OutcomeInvalidRecord Outcome = "invalid_record"
	OutcomeClaimLost     Outcome = "claim_lost"
	OutcomeClaimFailed   Outcome = "claim_failed"
	OutcomeDone          Outcome = "done"
	OutcomeFailed        Outcome = "failed"
)

// Result describes one cycle. Delay is how long the loop waits before the
// next fetch.
type Result struct {
	Outcome Outcome
	SeedID  string
	Delay   time.Duration
	Err     error
}

type Option func(*Worker)

// WithWaitFunc replaces the jittered wait between cycles.
func WithWaitFunc(wait WaitFunc) Option {
	return func(w *Worker) {
		w.wait = wait
	}
}

type Worker struct {
	store    store.Seed
	expander Expander
	config   Config
	wait     WaitFunc
	validate *validator.Validate
	status   *statusTracker
}

func New(s store.Seed, expander Expander, config Config, opts ...Option) *Worker {
	w := &Worker{
		store:    s,
		expander: expander,
		config:   config,
		wait:     JitteredWait,
		validate: validator.New(),
		status:   newStatusTracker(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes seeds one at a time until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	logger := zap.S().Named("worker")
	logger.Infow("starting worker", "idle_interval", w.config.IdleInterval, "error_cooldown", w.config.ErrorCooldown)
	defer logger.Info("worker stopped")
	defer w.status.setState(StateStopped, "")

	defer utilruntime.HandleCrash()

	for {
		if ctx.Err() != nil {
			return nil
		}

		result := w.RunOnce(ctx)
		if result.Delay <= 0 {
			continue
		}

		w.status.setState(StateWaiting, "")
		if err := w.wait(ctx, result.Delay); err != nil {
			return nil
		}
	}
}

// RunOnce runs a single fetch, claim, expand and write back cycle.
func (w *Worker) RunOnce(ctx context.Context) Result {
	reqID := requestid.Generate()
	ctx = requestid.ToContext(ctx, reqID)
	logger := zap.S().Named("worker").With("request_id", reqID)

	result := w.cycle(ctx, logger)

	metrics.IncreaseSeedsProcessedMetric(string(result.Outcome))
	w.status.record(result)
	return result
}

func (w *Worker) cycle(ctx context.Context, logger *zap.SugaredLogger) Result {
	w.status.setState(StateFetching, "")

	seed, err := w.store.FetchPending(ctx)
	now := time.Now()
	metrics.SetLastPollTimestamp(now)
	w.status.polled(now)

	if err != nil {
		metrics.IncreaseFetchTotalMetric(metrics.FetchError)
		logger.Errorw("failed to fetch pending seed", "kind", failure.KindOf(err), "error", err, "retry_in", w.config.ErrorCooldown)
		return Result{Outcome: OutcomeFetchFailed, Delay: w.config.ErrorCooldown, Err: err}
	}
	if seed == nil {
		metrics.IncreaseFetchTotalMetric(metrics.FetchEmpty)
		logger.Infow("no pending seed", "next_poll_in", w.config.IdleInterval)
		return Result{Outcome: OutcomeIdle, Delay: w.config.IdleInterval}
	}
	metrics.IncreaseFetchTotalMetric(metrics.FetchFound)

	if err := w.validateSeed(seed); err != nil {
		logger.Errorw("skipping pending seed", "error", err, "retry_in", w.config.ErrorCooldown)
		return Result{Outcome: OutcomeInvalidRecord, Delay: w.config.ErrorCooldown, Err: err}
	}

	logger = logger.With("seed_id", seed.ID)
	logger.Infow("processing seed", "title", seed.Title)

	claimed, err := w.store.Claim(ctx, seed.ID)
	if err != nil {
		logger.Errorw("failed to claim seed", "error", err, "retry_in", w.config.ErrorCooldown)
		return Result{Outcome: OutcomeClaimFailed, SeedID: seed.ID, Delay: w.config.ErrorCooldown, Err: err}
	}
	if !claimed {
		logger.Infow("seed was claimed by another worker")
		return Result{Outcome: OutcomeClaimLost, SeedID: seed.ID}
	}

	w.status.setState(StateProcessing, seed.ID)

	start := time.Now()
	sprouts, err := w.expander.Expand(ctx, seed.Title, seed.Context)
	metrics.ObserveExpansionDuration(time.Since(start))

	// write backs outlive a cancelled loop so the seed does not stay processing
	writeCtx := context.WithoutCancel(ctx)

	if err != nil {
		logger.Errorw("failed to expand seed", "kind", failure.KindOf(err), "error", err)
		w.markError(writeCtx, logger, seed.ID)
		return Result{Outcome: OutcomeFailed, SeedID: seed.ID, Err: err}
	}

	if err := w.store.Update(writeCtx, seed.ID, model.SeedUpdate{Status: model.SeedStatusDone, Sprouts: sprouts}); err != nil {
		logger.Errorw("failed to store sprouts", "error", err)
		w.markError(writeCtx, logger, seed.ID)
		return Result{Outcome: OutcomeFailed, SeedID: seed.ID, Err: err}
	}

	logger.Infow("seed done", "duration", time.Since(start))
	return Result{Outcome: OutcomeDone, SeedID: seed.ID}
}

func (w *Worker) validateSeed(seed *model.Seed) error {
	if err := w.validate.Struct(seed); err != nil {
		return failure.NewErrInvalidRecord("missing id")
	}
	if strings.TrimSpace(seed.ID) == "" {
		return failure.NewErrInvalidRecord("blank id")
	}
	return nil
}

func (w *Worker) markError(ctx context.Context, logger *zap.SugaredLogger, id string) {
	if err := w.store.Update(ctx, id, model.SeedUpdate{Status: model.SeedStatusError}); err != nil {
		logger.Errorw("failed to mark seed as error", "error", err)
	}
}

// Status returns a snapshot of the loop state.
func (w *Worker) Status() Status {
	return w.status.snapshot()
}
