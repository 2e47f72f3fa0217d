package estimatebackhaul

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"escort-ranking-workers/internal/common/database"
	"escort-ranking-workers/internal/common/errors"
	"escort-ranking-workers/internal/common/logger"
	"escort-ranking-workers/internal/common/metrics"
	"escort-ranking-workers/internal/common/observability"
	"escort-ranking-workers/internal/common/validation"
	"escort-ranking-workers/internal/ranking/backhaul"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
)

const TaskType = "estimate-backhaul"

type Handler struct {
	config  *Config
	es      *elasticsearch.Client
	schemas *validation.Registry
	errs    *errors.ErrorHandler
	tracing *observability.Tracing
	obs     *observability.Observability
	clock   func() time.Time
	logger  logger.Logger
}

type Option func(*Handler)

func WithClock(clock func() time.Time) Option { return func(h *Handler) { h.clock = clock } }

func WithTracing(t *observability.Tracing) Option { return func(h *Handler) { h.tracing = t } }

func WithObservability(o *observability.Observability) Option { return func(h *Handler) { h.obs = o } }

// NewHandler accepts a nil es client; missing nearby counts are then treated as zero.
func NewHandler(config *Config, es *elasticsearch.Client, log logger.Logger, opts ...Option) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	h := &Handler{
		config:  config,
		es:      es,
		schemas: validation.NewRegistry().MustRegister(TaskType, InputSchema),
		errs:    errors.NewErrorHandler(log),
		clock:   time.Now,
		logger:  log,
	}
	for _, opt := range opts {
		opt(h)
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
	start := time.Now()
	output := h.EstimateLane(ctx, input.Lane)

	duration := time.Since(start)
	fields := map[string]interface{}{
		"origin":       input.Lane.Origin,
		"destination":  input.Lane.Destination,
		"probability":  output.Probability,
		"nearbySource": output.NearbySource,
		"durationMs":   duration.Milliseconds(),
	}
	h.logger.Info("backhaul estimated", fields)
	if duration > h.config.LatencyBudget {
		h.logger.Warn("backhaul estimation exceeded latency budget", fields)
	}
	return output, nil
}

// EstimateLane fills missing nearby counts and runs the estimator. It never
// fails: lookup errors degrade to zero counts.
func (h *Handler) EstimateLane(ctx context.Context, lane LaneContext) *Output {
	ctx, end := h.tracing.StartSpan(ctx, TaskType,
		attribute.String("origin", lane.Origin),
		attribute.String("destination", lane.Destination),
	)
	defer end()

	now := h.clock()
	source := NearbySourceSupplied
	if !lane.complete() {
		filledLane, filled, err := h.fillNearby(ctx, lane, now)
		switch {
		case err != nil:
			source = NearbySourceUnavailable
			h.logger.Warn("nearby load counts unavailable, assuming none", map[string]interface{}{
				"destination": lane.Destination,
				"error":       err,
			})
		case filled:
			lane = filledLane
			source = NearbySourceElasticsearch
		default:
			source = NearbySourceUnavailable
		}
	}

	c := lane.toContext()
	result := backhaul.Estimate(c, now)

	metrics.BackhaulProbability.Observe(result.Probability)
	h.obs.RecordScore(ctx, "backhaul", result.Probability)

	return &Output{
		Probability: result.Probability,
		Breakdown:   result.Breakdown,
		NearbyLoads: NearbyCounts{
			Last24h:      c.NearbyLoads24h,
			Last72h:      c.NearbyLoads72h,
			TowardOrigin: c.TowardOrigin,
		},
		NearbySource: source,
		EstimatedAt:  now.UTC(),
	}
}

// fillNearby counts open loads near the drop-off for every nil count on lane.
// It reports false without error when no index is configured.
func (h *Handler) fillNearby(ctx context.Context, lane LaneContext, now time.Time) (LaneContext, bool, error) {
	if h.es == nil || h.config.NearbyLoadIndex == "" {
		return lane, false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.QueryTimeout)
	defer cancel()

	var n24, n72, toward int
	p := pool.New().WithContext(ctx)
	if lane.NearbyLoads24h == nil {
		p.Go(func(ctx context.Context) error {
			return h.count(ctx, h.nearbyQuery(lane, now.Add(-24*time.Hour), false), &n24)
		})
	}
	if lane.NearbyLoads72h == nil {
		p.Go(func(ctx context.Context) error {
			return h.count(ctx, h.nearbyQuery(lane, now.Add(-72*time.Hour), false), &n72)
		})
	}
	if lane.TowardOrigin == nil {
		p.Go(func(ctx context.Context) error {
			return h.count(ctx, h.nearbyQuery(lane, now.Add(-72*time.Hour), true), &toward)
		})
	}
	if err := p.Wait(); err != nil {
		return lane, false, errors.NewNearbyLoadQueryFailedError(h.config.NearbyLoadIndex, err)
	}

	if lane.NearbyLoads24h == nil {
		lane.NearbyLoads24h = &n24
	}
	if lane.NearbyLoads72h == nil {
		lane.NearbyLoads72h = &n72
	}
	if lane.TowardOrigin == nil {
		lane.TowardOrigin = &toward
	}
	return lane, true, nil
}

func (h *Handler) count(ctx context.Context, query map[string]interface{}, dest *int) error {
	n, err := database.Count(ctx, h.es, h.config.NearbyLoadIndex, query)
	if err != nil {
		return err
	}
	*dest = n
	return nil
}

// nearbyQuery matches open loads picked up near the lane's drop-off and posted
// since the given instant. towardOrigin narrows to loads heading back to the
// lane's origin.
func (h *Handler) nearbyQuery(lane LaneContext, since time.Time, towardOrigin bool) map[string]interface{} {
	filter := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"status": "open"}},
		map[string]interface{}{"range": map[string]interface{}{
			"postedAt": map[string]interface{}{"gte": since.UTC().Format(time.RFC3339)},
		}},
	}

	if p := lane.DestinationPoint; p != nil {
		filter = append(filter, map[string]interface{}{"geo_distance": map[string]interface{}{
			"distance":       fmt.Sprintf("%gkm", h.config.NearbyRadiusKm),
			"originLocation": map[string]interface{}{"lat": p.Lat, "lon": p.Lon},
		}})
	} else {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"originRegion": lane.Destination}})
	}

	if towardOrigin {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"destinationRegion": lane.Origin}})
	}

	return map[string]interface{}{"bool": map[string]interface{}{"filter": filter}}
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
