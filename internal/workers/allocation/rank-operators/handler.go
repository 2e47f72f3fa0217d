package rankoperators

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"escort-ranking-workers/internal/common/database"
	"escort-ranking-workers/internal/common/errors"
	"escort-ranking-workers/internal/common/logger"
	"escort-ranking-workers/internal/common/metrics"
	"escort-ranking-workers/internal/common/observability"
	"escort-ranking-workers/internal/common/ratelimit"
	"escort-ranking-workers/internal/common/validation"
	"escort-ranking-workers/internal/ranking/exposure"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

const (
	TaskType = "rank-operators"

	allocationConfigCacheKey = "allocation:config"
	diversityPrefix          = "diversity"
)

const allocationConfigQuery = `
	SELECT trust_weight, context_fit_weight, freshness_weight, cold_start_weight,
	       paid_boost_weight, min_trust_gate, diversity_cap
	FROM allocation_config WHERE id = 1`

// DiversityCounter tracks operator appearances per session. *ratelimit.Store satisfies it.
type DiversityCounter interface {
	Counts(ctx context.Context, scope string, members []string) ([]int64, error)
	AdmitAll(ctx context.Context, scope string, members []string, limit int) ([]ratelimit.Decision, error)
}

type Handler struct {
	config    *Config
	db        *sql.DB
	redis     *redis.Client
	diversity DiversityCounter
	schemas   *validation.Registry
	errs      *errors.ErrorHandler
	tracing   *observability.Tracing
	obs       *observability.Observability
	entropy   exposure.Entropy
	clock     func() time.Time
	logger    logger.Logger
}

type Option func(*Handler)

func WithEntropy(e exposure.Entropy) Option { return func(h *Handler) { h.entropy = e } }

func WithClock(clock func() time.Time) Option { return func(h *Handler) { h.clock = clock } }

func WithTracing(t *observability.Tracing) Option { return func(h *Handler) { h.tracing = t } }

func WithObservability(o *observability.Observability) Option { return func(h *Handler) { h.obs = o } }

func WithDiversityCounter(c DiversityCounter) Option { return func(h *Handler) { h.diversity = c } }

// NewHandler wires the handler. db and redis may be nil; the handler then uses
// compiled-in defaults and skips the diversity cap.
func NewHandler(config *Config, db *sql.DB, redis *redis.Client, log logger.Logger, opts ...Option) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	h := &Handler{
		config:  config,
		db:      db,
		redis:   redis,
		schemas: validation.NewRegistry().MustRegister(TaskType, InputSchema),
		errs:    errors.NewErrorHandler(log),
		entropy: exposure.SystemEntropy(),
		clock:   time.Now,
		logger:  log,
	}
	if redis != nil {
		h.diversity = ratelimit.NewStore(redis, diversityPrefix, config.DiversityWindow)
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
	ctx, end := h.tracing.StartSpan(ctx, TaskType,
		attribute.String("sessionId", input.Context.SessionID),
		attribute.Int("candidates", len(input.Candidates)),
	)
	defer end()

	start := time.Now()
	now := h.clock()

	cfg, source, err := h.resolveConfig(ctx, input.ConfigOverride)
	if err != nil {
		return nil, err
	}

	limit := input.Context.Limit
	if limit <= 0 {
		limit = exposure.DefaultLimit
	}

	// Rank the whole pool so diversity-capped operators can be replaced by the next eligible one.
	searchCtx := input.Context
	searchCtx.Limit = len(input.Candidates)
	resp := exposure.Rank(input.Candidates, searchCtx, cfg, exposure.WithEntropy(h.entropy), exposure.WithNow(now))

	ranked, suppressed := h.applyDiversityCap(ctx, input.Context.SessionID, cfg.DiversityCap, resp.Ranked, limit)

	requestID := input.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	h.recordMetrics(ctx, resp, ranked, suppressed)

	duration := time.Since(start)
	fields := map[string]interface{}{
		"requestId":       requestID,
		"sessionId":       input.Context.SessionID,
		"totalCandidates": resp.TotalCandidates,
		"eligibleCount":   resp.EligibleCount,
		"returned":        len(ranked),
		"diversityCapped": len(suppressed),
		"configSource":    source,
		"durationMs":      duration.Milliseconds(),
	}
	h.logger.Info("ranking completed", fields)
	if duration > h.config.LatencyBudget {
		h.logger.Warn("ranking exceeded latency budget", fields)
	}

	return &Output{
		RequestID:             requestID,
		Ranked:                ranked,
		TotalCandidates:       resp.TotalCandidates,
		EligibleCount:         resp.EligibleCount,
		SuppressedByDiversity: suppressed,
		ConfigSource:          source,
		RankedAt:              now.UTC(),
	}, nil
}

// resolveConfig picks the allocation config: request override, then Redis, then
// PostgreSQL, then defaults. Only an invalid override is an error.
func (h *Handler) resolveConfig(ctx context.Context, override *exposure.AllocationConfig) (exposure.AllocationConfig, string, error) {
	if override != nil {
		if err := override.Validate(); err != nil {
			return exposure.AllocationConfig{}, "", errors.NewAllocationConfigInvalidError(err)
		}
		return *override, ConfigSourceOverride, nil
	}

	if h.redis != nil {
		var cached exposure.AllocationConfig
		err := database.GetJSON(ctx, h.redis, allocationConfigCacheKey, &cached)
		switch {
		case err == nil && cached.Validate() == nil:
			metrics.CacheLookups.WithLabelValues("allocation_config", "hit").Inc()
			return cached, ConfigSourceCache, nil
		case stderrors.Is(err, database.ErrCacheMiss):
			metrics.CacheLookups.WithLabelValues("allocation_config", "miss").Inc()
		default:
			metrics.CacheLookups.WithLabelValues("allocation_config", "error").Inc()
			h.logger.Warn("allocation config cache unusable", map[string]interface{}{"error": err})
		}
	}

	if h.db != nil {
		cfg, err := h.loadConfigFromDB(ctx)
		switch {
		case err == nil:
			if h.redis != nil {
				if err := database.SetJSON(ctx, h.redis, allocationConfigCacheKey, cfg, h.config.ConfigCacheTTL); err != nil {
					h.logger.Warn("failed to cache allocation config", map[string]interface{}{"error": err})
				}
			}
			return cfg, ConfigSourceDatabase, nil
		case stderrors.Is(err, sql.ErrNoRows):
		default:
			h.logger.Warn("allocation config unavailable, using defaults", map[string]interface{}{"error": err})
		}
	}

	return h.config.Defaults.OrDefault(), ConfigSourceDefault, nil
}

func (h *Handler) loadConfigFromDB(ctx context.Context) (exposure.AllocationConfig, error) {
	var cfg exposure.AllocationConfig
	err := h.db.QueryRowContext(ctx, allocationConfigQuery).Scan(
		&cfg.Weights.Trust,
		&cfg.Weights.ContextFit,
		&cfg.Weights.Freshness,
		&cfg.Weights.ColdStart,
		&cfg.Weights.PaidBoost,
		&cfg.MinTrustGate,
		&cfg.DiversityCap,
	)
	if err != nil {
		return exposure.AllocationConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return exposure.AllocationConfig{}, err
	}
	return cfg, nil
}

// applyDiversityCap drops operators that already reached the per-session cap,
// counts one appearance for each operator it returns and renumbers ranks.
// Counts only pre-filters; an operator is kept when its own increment is still
// within the cap, so concurrent requests for one session cannot both pass it.
// Denied slots are backfilled from lower ranks. Redis failures leave the list uncapped.
func (h *Handler) applyDiversityCap(ctx context.Context, sessionID string, diversityCap int, ranked []exposure.Ranked, limit int) ([]exposure.Ranked, []string) {
	if h.diversity == nil || sessionID == "" || diversityCap <= 0 {
		return renumber(truncate(ranked, limit)), nil
	}

	counts, err := h.diversity.Counts(ctx, sessionID, operatorIDs(ranked))
	if err != nil {
		h.logger.Warn("diversity counts unavailable, skipping cap", map[string]interface{}{
			"sessionId": sessionID,
			"error":     err,
		})
		return renumber(truncate(ranked, limit)), nil
	}

	var suppressed []string
	pending := make([]exposure.Ranked, 0, len(ranked))
	for i, r := range ranked {
		if counts[i] >= int64(diversityCap) {
			suppressed = append(suppressed, r.OperatorID)
			continue
		}
		pending = append(pending, r)
	}

	kept := make([]exposure.Ranked, 0, limit)
	for len(pending) > 0 && len(kept) < limit {
		batch := pending[:min(limit-len(kept), len(pending))]
		pending = pending[len(batch):]

		decisions, err := h.diversity.AdmitAll(ctx, sessionID, operatorIDs(batch), diversityCap)
		if err != nil {
			h.logger.Warn("failed to record diversity appearances", map[string]interface{}{
				"sessionId": sessionID,
				"error":     err,
			})
			kept = append(kept, batch...)
			kept = append(kept, truncate(pending, limit-len(kept))...)
			break
		}
		for i, d := range decisions {
			if d.Allowed {
				kept = append(kept, batch[i])
			} else {
				suppressed = append(suppressed, batch[i].OperatorID)
			}
		}
	}

	return renumber(kept), suppressed
}

func operatorIDs(ranked []exposure.Ranked) []string {
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.OperatorID
	}
	return ids
}

func truncate(ranked []exposure.Ranked, limit int) []exposure.Ranked {
	if len(ranked) > limit {
		return ranked[:limit]
	}
	return ranked
}

func renumber(ranked []exposure.Ranked) []exposure.Ranked {
	out := make([]exposure.Ranked, len(ranked))
	for i, r := range ranked {
		r.Rank = i + 1
		out[i] = r
	}
	return out
}

func (h *Handler) recordMetrics(ctx context.Context, resp exposure.Response, ranked []exposure.Ranked, suppressed []string) {
	metrics.CandidatesEvaluated.WithLabelValues("eligible").Observe(float64(resp.EligibleCount))
	metrics.CandidatesEvaluated.WithLabelValues("gated").Observe(float64(resp.TotalCandidates - resp.EligibleCount))
	metrics.DiversityCapSuppressed.Add(float64(len(suppressed)))

	for _, r := range ranked {
		if r.IsColdStart {
			metrics.ColdStartExposures.Inc()
		}
		if r.PaidBoostApplied {
			metrics.PaidBoostApplied.Inc()
		}
		h.obs.RecordScore(ctx, "exposure", r.ExposureScore)
	}
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
