package scorejoburgency

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"escort-ranking-workers/internal/common/errors"
	"escort-ranking-workers/internal/common/logger"
	"escort-ranking-workers/internal/common/metrics"
	"escort-ranking-workers/internal/common/observability"
	"escort-ranking-workers/internal/common/ratelimit"
	"escort-ranking-workers/internal/common/validation"
	"escort-ranking-workers/internal/ranking/urgency"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

const (
	TaskType = "score-job-urgency"

	alertDedupPrefix = "urgency-alert"
)

// AlertPublisher delivers alert documents, typically an SNS topic.
type AlertPublisher interface {
	PublishJSON(ctx context.Context, subject string, payload interface{}, attrs map[string]string) (string, error)
}

// AlertMailer sends plain-text alert emails, typically through SES.
type AlertMailer interface {
	SendText(ctx context.Context, to []string, subject, body string) (string, error)
}

type Handler struct {
	config    *Config
	db        *sql.DB
	redis     *redis.Client
	alerted   *ratelimit.Store
	publisher AlertPublisher
	mailer    AlertMailer
	schemas   *validation.Registry
	errs      *errors.ErrorHandler
	tracing   *observability.Tracing
	obs       *observability.Observability
	clock     func() time.Time
	logger    logger.Logger
}

type Option func(*Handler)

func WithPublisher(p AlertPublisher) Option { return func(h *Handler) { h.publisher = p } }

func WithMailer(m AlertMailer) Option { return func(h *Handler) { h.mailer = m } }

func WithClock(clock func() time.Time) Option { return func(h *Handler) { h.clock = clock } }

func WithTracing(t *observability.Tracing) Option { return func(h *Handler) { h.tracing = t } }

func WithObservability(o *observability.Observability) Option { return func(h *Handler) { h.obs = o } }

func NewHandler(config *Config, db *sql.DB, redis *redis.Client, log logger.Logger, opts ...Option) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	h := &Handler{
		config:  config,
		db:      db,
		redis:   redis,
		schemas: validation.NewRegistry().MustRegister(TaskType, InputSchema),
		errs:    errors.NewErrorHandler(log),
		clock:   time.Now,
		logger:  log,
	}
	if redis != nil {
		h.alerted = ratelimit.NewStore(redis, alertDedupPrefix, config.AlertWindow)
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
	snapshots := input.Jobs
	if input.Job != nil {
		snapshots = append([]JobSnapshot{*input.Job}, input.Jobs...)
	}
	if len(snapshots) == 0 {
		return nil, errors.NewInputValidationError("job or jobs is required")
	}
	if h.config.MaxBatchSize > 0 && len(snapshots) > h.config.MaxBatchSize {
		return nil, errors.NewInputValidationError(
			fmt.Sprintf("batch of %d jobs exceeds limit %d", len(snapshots), h.config.MaxBatchSize))
	}

	ctx, end := h.tracing.StartSpan(ctx, TaskType, attribute.Int("jobs", len(snapshots)))
	defer end()

	start := time.Now()
	now := h.clock()

	lookup := h.newStatsLookup()
	inputs := make([]urgency.Input, len(snapshots))
	for i, s := range snapshots {
		inputs[i] = urgency.Input{
			JobID:              s.JobID,
			PostedAt:           s.PostedAt,
			RequiredBy:         s.RequiredBy,
			CorridorID:         s.CorridorID,
			RegionID:           s.RegionID,
			QuickPay:           s.QuickPay,
			PostedRate:         s.PostedRate,
			LastPosterActionAt: s.LastPosterActionAt,
			Signals: marketSignals(s.Signals,
				lookup.corridor(ctx, s.CorridorID),
				lookup.poster(ctx, s.PosterID)),
		}
	}

	results := urgency.ScoreBatch(inputs, now)

	output := &Output{Results: results, ScoredAt: now.UTC()}
	for i := range results {
		r := &results[i]
		metrics.UrgencyBand.WithLabelValues(string(r.Band)).Inc()
		h.obs.RecordScore(ctx, "urgency", float64(r.Score))
		if output.Highest == nil || r.Score > output.Highest.Score {
			output.Highest = r
		}
	}
	if output.Highest != nil {
		output.HighestBand = output.Highest.Band
		output.RequiresEscalation = output.Highest.Band.AtLeast(h.alertBand())
	}

	if !input.SuppressAlerts {
		output.AlertedJobIDs = h.sendAlerts(ctx, snapshots, results, now)
	}

	duration := time.Since(start)
	fields := map[string]interface{}{
		"jobs":        len(results),
		"highestBand": output.HighestBand,
		"alerted":     len(output.AlertedJobIDs),
		"durationMs":  duration.Milliseconds(),
	}
	h.logger.Info("urgency scoring completed", fields)
	if duration > h.config.LatencyBudget {
		h.logger.Warn("urgency scoring exceeded latency budget", fields)
	}

	return output, nil
}

func (h *Handler) alertBand() urgency.Band {
	if err := h.config.AlertBand.Validate(); err != nil {
		return urgency.BandCritical
	}
	return h.config.AlertBand
}

// sendAlerts announces every job at or above the alert band, at most once per
// job and band within the alert window. Delivery failures never fail the job.
func (h *Handler) sendAlerts(ctx context.Context, snapshots []JobSnapshot, results []urgency.Result, now time.Time) []string {
	if h.publisher == nil && h.mailer == nil {
		return nil
	}

	threshold := h.alertBand()
	var alerted []string
	for i, r := range results {
		if !r.Band.AtLeast(threshold) {
			continue
		}
		if !h.firstAlert(ctx, r) {
			metrics.UrgencyAlertsSent.WithLabelValues("any", "deduplicated").Inc()
			continue
		}

		alert := Alert{
			JobID:      r.JobID,
			CorridorID: snapshots[i].CorridorID,
			RegionID:   snapshots[i].RegionID,
			Score:      r.Score,
			Band:       r.Band,
			Label:      r.Label,
			Hint:       r.Hint,
			Signals:    r.Signals,
			ScoredAt:   now.UTC(),
		}

		delivered := h.publish(ctx, alert)
		if h.mail(ctx, alert) {
			delivered = true
		}
		if delivered {
			alerted = append(alerted, r.JobID)
		}
	}
	return alerted
}

// firstAlert reports whether no alert was sent for this job and band inside the
// window. Without Redis every qualifying result is announced.
func (h *Handler) firstAlert(ctx context.Context, r urgency.Result) bool {
	if h.alerted == nil || r.JobID == "" {
		return true
	}
	d, err := h.alerted.CheckAndIncrement(ctx, string(r.Band), r.JobID, 1)
	if err != nil {
		h.logger.Warn("alert dedup unavailable", map[string]interface{}{
			"jobId": r.JobID,
			"error": err,
		})
		return true
	}
	return d.Allowed
}

func alertSubject(a Alert) string {
	return fmt.Sprintf("[%s] Job %s urgency %d", a.Label, a.JobID, a.Score)
}

func (h *Handler) publish(ctx context.Context, a Alert) bool {
	if h.publisher == nil {
		return false
	}
	messageID, err := h.publisher.PublishJSON(ctx, alertSubject(a), a, map[string]string{
		"band":       string(a.Band),
		"corridorId": a.CorridorID,
		"regionId":   a.RegionID,
	})
	if err != nil {
		metrics.UrgencyAlertsSent.WithLabelValues("sns", "failed").Inc()
		h.logger.Error("failed to publish urgency alert", map[string]interface{}{
			"jobId": a.JobID,
			"error": errors.NewAlertPublishFailedError("sns", err),
		})
		return false
	}
	metrics.UrgencyAlertsSent.WithLabelValues("sns", "sent").Inc()
	h.logger.Info("urgency alert published", map[string]interface{}{
		"jobId":     a.JobID,
		"band":      a.Band,
		"messageId": messageID,
	})
	return true
}

func (h *Handler) mail(ctx context.Context, a Alert) bool {
	if h.mailer == nil || len(h.config.AlertRecipients) == 0 {
		return false
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Job %s scored %d (%s).\n", a.JobID, a.Score, a.Label)
	if a.CorridorID != "" {
		fmt.Fprintf(&body, "Corridor: %s\n", a.CorridorID)
	}
	fmt.Fprintf(&body, "Recommended action: %s\n\n", a.Hint)
	fmt.Fprintf(&body, "Time pressure %d%%, coverage risk %d%%, poster behavior %d%%, economic pressure %d%%, predictive failure %d%%\n",
		a.Signals.TimePressure, a.Signals.CoverageRisk, a.Signals.PosterBehavior,
		a.Signals.EconomicPressure, a.Signals.PredictiveFailure)

	if _, err := h.mailer.SendText(ctx, h.config.AlertRecipients, alertSubject(a), body.String()); err != nil {
		metrics.UrgencyAlertsSent.WithLabelValues("email", "failed").Inc()
		h.logger.Error("failed to email urgency alert", map[string]interface{}{
			"jobId": a.JobID,
			"error": errors.NewAlertPublishFailedError("email", err),
		})
		return false
	}
	metrics.UrgencyAlertsSent.WithLabelValues("email", "sent").Inc()
	return true
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
