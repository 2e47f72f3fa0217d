// cmd/worker-manager/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	commonaws "escort-ranking-workers/internal/common/aws"
	"escort-ranking-workers/internal/common/camunda"
	"escort-ranking-workers/internal/common/config"
	"escort-ranking-workers/internal/common/database"
	"escort-ranking-workers/internal/common/logger"
	"escort-ranking-workers/internal/common/observability"
	"escort-ranking-workers/internal/ranking/exposure"
	"escort-ranking-workers/internal/ranking/urgency"

	ro "escort-ranking-workers/internal/workers/allocation/rank-operators"
	clr "escort-ranking-workers/internal/workers/feed/compute-load-rank"
	eb "escort-ranking-workers/internal/workers/feed/estimate-backhaul"
	sju "escort-ranking-workers/internal/workers/jobs/score-job-urgency"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// dependencies are the shared clients handed to worker handlers.
type dependencies struct {
	pg      *database.PostgresClient
	redis   *database.RedisClient
	es      *database.ElasticsearchClient
	alerts  *commonaws.TopicPublisher
	mailer  *commonaws.Mailer
	obs     *observability.Observability
	tracing *observability.Tracing
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()

	tracing := observability.NewTracing(cfg.App.Name, cfg.Observability.JaegerEndpoint, cfg.Observability.SampleRatio, zapLog)
	obs := observability.New(cfg.App.Name, zapLog).WithTracing(tracing)

	// --- Init Zeebe Client ---
	zeebe, err := camunda.Connect(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("postgres schema setup failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	deps := &dependencies{pg: pg, redis: rdb, es: esClient, obs: obs, tracing: tracing}

	// --- Init alert channels ---
	if cfg.Notifications.SNS.Enabled {
		snsClient, err := commonaws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		deps.alerts = commonaws.NewTopicPublisher(snsClient, cfg.Notifications.SNS.TopicARN)
		zapLog.Info("SNS urgency alerts enabled", zap.String("topicArn", cfg.Notifications.SNS.TopicARN))
	}
	if cfg.Notifications.Email.Enabled {
		sesClient, err := commonaws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		deps.mailer = commonaws.NewMailer(sesClient, cfg.Notifications.Email.FromEmail)
		zapLog.Info("email urgency alerts enabled", zap.Int("recipients", len(cfg.Notifications.Email.Recipients)))
	}

	workers := registerWorkers(cfg, zeebe, deps, log, zapLog)
	zapLog.Info("workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	srv := &http.Server{
		Addr:              cfg.Observability.MetricsAddress,
		Handler:           newServeMux(readinessChecks(zeebe, pg, rdb)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error flushing metrics", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error flushing traces", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped")
}

func registerWorkers(cfg *config.Config, zeebe *camunda.Client, deps *dependencies, log logger.Logger, zapLog *zap.Logger) []*camunda.CamundaWorker {
	var started []*camunda.CamundaWorker
	start := func(taskType string, h camunda.HandlerFunc) {
		wcfg := config.GetWorkerConfig(cfg, taskType)
		started = append(started, camunda.StartWorker(zeebe.GetClient(), taskType, camunda.WorkerOptions{
			MaxJobsActive: wcfg.MaxJobsActive,
			Timeout:       config.GetDuration(wcfg.Timeout),
		}, h, zapLog))
	}

	db, rc, es := deps.pg.DB, deps.redis.Client, deps.es.Client

	// Shared so compute-load-rank estimates lanes with the same index settings.
	backhaul := eb.NewHandler(backhaulConfig(cfg), es, log,
		eb.WithTracing(deps.tracing), eb.WithObservability(deps.obs))

	if config.IsWorkerEnabled(cfg, ro.TaskType) {
		handler := ro.NewHandler(rankOperatorsConfig(cfg), db, rc, log,
			ro.WithTracing(deps.tracing), ro.WithObservability(deps.obs))
		start(ro.TaskType, handler.Handle)
	}

	if config.IsWorkerEnabled(cfg, sju.TaskType) {
		ucfg := urgencyConfig(cfg)
		if err := ucfg.AlertBand.Validate(); err != nil {
			zapLog.Warn("invalid alert band, alerting on critical only", zap.Error(err))
			ucfg.AlertBand = urgency.BandCritical
		}

		opts := []sju.Option{sju.WithTracing(deps.tracing), sju.WithObservability(deps.obs)}
		if deps.alerts != nil {
			opts = append(opts, sju.WithPublisher(deps.alerts))
		}
		if deps.mailer != nil {
			opts = append(opts, sju.WithMailer(deps.mailer))
		}
		handler := sju.NewHandler(ucfg, db, rc, log, opts...)
		start(sju.TaskType, handler.Handle)
	}

	if config.IsWorkerEnabled(cfg, eb.TaskType) {
		start(eb.TaskType, backhaul.Handle)
	}

	if config.IsWorkerEnabled(cfg, clr.TaskType) {
		handler := clr.NewHandler(loadRankConfig(cfg), backhaul, log,
			clr.WithTracing(deps.tracing), clr.WithObservability(deps.obs))
		start(clr.TaskType, handler.Handle)
	}

	return started
}

func rankOperatorsConfig(cfg *config.Config) *ro.Config {
	rcfg := ro.LoadConfig()
	rcfg.Timeout = workerTimeout(cfg, ro.TaskType, rcfg.Timeout)
	rcfg.ConfigCacheTTL = seconds(cfg.Ranking.ConfigCacheTTL, rcfg.ConfigCacheTTL)
	rcfg.DiversityWindow = seconds(cfg.Ranking.DiversityWindow, rcfg.DiversityWindow)
	rcfg.LatencyBudget = latencyBudget(cfg, rcfg.LatencyBudget)
	if a := cfg.Ranking.Allocation; a.IsSet() {
		rcfg.Defaults = exposure.AllocationConfig{
			Weights: exposure.Weights{
				Trust:      a.TrustWeight,
				ContextFit: a.ContextFitWeight,
				Freshness:  a.FreshnessWeight,
				ColdStart:  a.ColdStartWeight,
				PaidBoost:  a.PaidBoostWeight,
			},
			MinTrustGate: a.MinTrustGate,
			DiversityCap: a.DiversityCap,
		}.OrDefault()
	}
	return rcfg
}

func urgencyConfig(cfg *config.Config) *sju.Config {
	ucfg := sju.LoadConfig()
	ucfg.Timeout = workerTimeout(cfg, sju.TaskType, ucfg.Timeout)
	ucfg.CorridorCacheTTL = seconds(cfg.Ranking.CorridorCacheTTL, ucfg.CorridorCacheTTL)
	ucfg.PosterCacheTTL = seconds(cfg.Ranking.PosterCacheTTL, ucfg.PosterCacheTTL)
	ucfg.LatencyBudget = latencyBudget(cfg, ucfg.LatencyBudget)
	ucfg.AlertBand = urgency.Band(cfg.Ranking.AlertBand)
	ucfg.AlertRecipients = cfg.Notifications.Email.Recipients
	return ucfg
}

func backhaulConfig(cfg *config.Config) *eb.Config {
	bcfg := eb.LoadConfig()
	bcfg.Timeout = workerTimeout(cfg, eb.TaskType, bcfg.Timeout)
	bcfg.LatencyBudget = latencyBudget(cfg, bcfg.LatencyBudget)
	bcfg.NearbyLoadIndex = cfg.Ranking.NearbyLoadIndex
	bcfg.NearbyRadiusKm = cfg.Ranking.NearbyRadiusKm
	return bcfg
}

func loadRankConfig(cfg *config.Config) *clr.Config {
	fcfg := clr.LoadConfig()
	fcfg.Timeout = workerTimeout(cfg, clr.TaskType, fcfg.Timeout)
	fcfg.LatencyBudget = latencyBudget(cfg, fcfg.LatencyBudget)
	return fcfg
}

func seconds(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}

func latencyBudget(cfg *config.Config, fallback time.Duration) time.Duration {
	if cfg.Ranking.LatencyBudget <= 0 {
		return fallback
	}
	return config.GetDuration(cfg.Ranking.LatencyBudget)
}

func workerTimeout(cfg *config.Config, taskType string, fallback time.Duration) time.Duration {
	if w, ok := cfg.Workers[taskType]; ok && w.Timeout > 0 {
		return config.GetDuration(w.Timeout)
	}
	return fallback
}
