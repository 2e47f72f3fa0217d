package computeloadrank

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"escort-ranking-workers/internal/common/errors"
	"escort-ranking-workers/internal/common/logger"
	"escort-ranking-workers/internal/common/metrics"
	"escort-ranking-workers/internal/common/observability"
	"escort-ranking-workers/internal/common/validation"
	"escort-ranking-workers/internal/ranking/feedrank"
	estimatebackhaul "escort-ranking-workers/internal/workers/feed/estimate-backhaul"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
)

const TaskType = "compute-load-rank"

// BackhaulEstimator is satisfied by the estimate-backhaul handler.
type BackhaulEstimator interface {
	EstimateLane(ctx context.Context, lane estimatebackhaul.LaneContext) *estimatebackhaul.Output
}

type Handler struct {
	config    *Config
	estimator BackhaulEstimator
	schemas   *validation.Registry
	errs      *errors.ErrorHandler
	tracing   *observability.Tracing
	obs       *observability.Observability
	clock     func() time.Time
	logger    logger.Logger
}

type Option func(*Handler)

func WithClock(clock func() time.Time) Option { return func(h *Handler) { h.clock = clock } }

func WithTracing(t *observability.Tracing) Option { return func(h *Handler) { h.tracing = t } }

func WithObservability(o *observability.Observability) Option { return func(h *Handler) { h.obs = o } }

// NewHandler uses an estimator without a search backend when estimator is nil,
// so lanes are scored on their supplied counts only.
func NewHandler(config *Config, estimator BackhaulEstimator, log logger.Logger, opts ...Option) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	h := &Handler{
		config:    config,
		estimator: estimator,
		schemas:   validation.NewRegistry().MustRegister(TaskType, InputSchema),
		errs:      errors.NewErrorHandler(log),
		clock:     time.Now,
		logger:    log,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.estimator == nil {
		h.estimator = estimatebackhaul.NewHandler(estimatebackhaul.LoadConfig(), nil, log,
			estimatebackhaul.WithClock(h.clock))
	}
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	result, err := h.schemas.Validate(TaskType, job.Variables)
	if err != nil {
		h.failJob(ctx, client, job, start, errors.NewInputParseError(err))
		return
	}
	if !result.Valid {
		h.failJob(ctx, client, job, start, errors.NewInputValidationError(result.Summary()))
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, start, errors.NewInputParseError(err))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.failJob(ctx, client, job, start, err)
		return
	}

	h.completeJob(ctx, client, job, start, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if h.config.MaxLoads > 0 && len(input.Loads) > h.config.MaxLoads {
		return nil, errors.NewInputValidationError(
			fmt.Sprintf("feed of %d loads exceeds limit %d", len(input.Loads), h.config.MaxLoads))
	}

	ctx, end := h.tracing.StartSpan(ctx, TaskType, attribute.Int("loads", len(input.Loads)))
	defer end()

	start := time.Now()
	now := h.clock()

	probabilities, estimated := h.backhaulProbabilities(ctx, input.Loads)

	entries := make([]feedrank.Entry, len(input.Loads))
	for i, l := range input.Loads {
		entries[i] = feedrank.Entry{
			LoadID: l.LoadID,
			Index:  i,
			Inputs: feedrank.Inputs{
				PostedAt:       l.PostedAt,
				Quality:        l.Quality,
				PosterTrust:    l.PosterTrust,
				LaneDensity:    l.LaneDensity,
				FillSpeed:      l.FillSpeed,
				Backhaul:       probabilities[i],
				RateVisible:    l.RateVisible,
				PosterVerified: l.PosterVerified,
				Incomplete:     l.Incomplete,
			},
		}
	}

	ranked := feedrank.RankFeed(entries, now)
	if input.Limit > 0 && len(ranked) > input.Limit {
		ranked = ranked[:input.Limit]
	}

	out := make([]RankedLoad, len(ranked))
	for i, e := range ranked {
		out[i] = RankedLoad{
			Rank:                i + 1,
			LoadID:              e.LoadID,
			Score:               e.Score,
			BackhaulProbability: e.Inputs.Backhaul,
			BackhaulEstimated:   estimated[e.Index],
		}
		h.obs.RecordScore(ctx, "feed", e.Score)
	}

	feedID := input.FeedID
	if feedID == "" {
		feedID = uuid.NewString()
	}

	estimatedCount := 0
	for _, e := range estimated {
		if e {
			estimatedCount++
		}
	}

	duration := time.Since(start)
	fields := map[string]interface{}{
		"feedId":     feedID,
		"loads":      len(input.Loads),
		"returned":   len(out),
		"estimated":  estimatedCount,
		"durationMs": duration.Milliseconds(),
	}
	h.logger.Info("feed ranked", fields)
	if duration > h.config.LatencyBudget {
		h.logger.Warn("feed ranking exceeded latency budget", fields)
	}

	return &Output{
		FeedID:    feedID,
		Ranked:    out,
		Total:     len(input.Loads),
		Estimated: estimatedCount,
		RankedAt:  now.UTC(),
	}, nil
}

// backhaulProbabilities returns the supplied probability of each load, or an
// estimate when only a lane is given. Loads with neither contribute zero.
func (h *Handler) backhaulProbabilities(ctx context.Context, loads []LoadSnapshot) ([]float64, []bool) {
	probabilities := make([]float64, len(loads))
	estimated := make([]bool, len(loads))

	limit := h.config.EstimateConcurrency
	if limit <= 0 {
		limit = 1
	}
	p := pool.New().WithMaxGoroutines(limit)
	for i, l := range loads {
		switch {
		case l.BackhaulProbability != nil:
			probabilities[i] = *l.BackhaulProbability
		case l.Lane != nil:
			lane := *l.Lane
			if lane.PostedAt.IsZero() {
				lane.PostedAt = l.PostedAt
			}
			i := i
			p.Go(func() {
				probabilities[i] = h.estimator.EstimateLane(ctx, lane).Probability
				estimated[i] = true
			})
		}
	}
	p.Wait()

	return probabilities, estimated
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, start time.Time, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.obs.RecordJob(ctx, TaskType, "success", time.Since(start))
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, start time.Time, err error) {
	stdErr := errors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.obs.RecordJob(ctx, TaskType, "failed", time.Since(start))
	h.errs.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
