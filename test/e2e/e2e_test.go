// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escort-ranking-workers/internal/common/camunda"
	"escort-ranking-workers/internal/common/config"
	"escort-ranking-workers/internal/common/database"
	"escort-ranking-workers/internal/common/logger"
	"escort-ranking-workers/internal/ranking/exposure"

	rankoperators "escort-ranking-workers/internal/workers/allocation/rank-operators"
	computeloadrank "escort-ranking-workers/internal/workers/feed/compute-load-rank"
	estimatebackhaul "escort-ranking-workers/internal/workers/feed/estimate-backhaul"
	scorejoburgency "escort-ranking-workers/internal/workers/jobs/score-job-urgency"
)

// environment holds live connections to the local docker stack.
type environment struct {
	cfg   *config.Config
	pg    *database.PostgresClient
	redis *database.RedisClient
	es    *database.ElasticsearchClient
}

func setup(t *testing.T) *environment {
	t.Helper()
	if os.Getenv("E2E_ENABLED") == "" {
		t.Skip("set E2E_ENABLED=1 to run against local Postgres, Redis, Elasticsearch and Zeebe")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	ctx := context.Background()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "PostgreSQL connection failed")
	require.NoError(t, pg.Ping(ctx), "PostgreSQL ping failed")
	require.NoError(t, pg.EnsureSchema(ctx))
	t.Cleanup(func() { pg.Close() })

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err, "Redis connection failed")
	require.NoError(t, rdb.Ping(ctx), "Redis ping failed")
	t.Cleanup(func() { rdb.Close() })

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	require.NoError(t, err, "Elasticsearch connection failed")
	require.NoError(t, es.Ping(), "Elasticsearch ping failed")

	return &environment{cfg: cfg, pg: pg, redis: rdb, es: es}
}

func TestZeebeTopology(t *testing.T) {
	env := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := camunda.Connect(ctx, &camunda.ClientConfig{
		GatewayAddress:         env.cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      10 * time.Second,
	})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.HealthCheck(ctx))
}

func TestRankOperators(t *testing.T) {
	env := setup(t)
	log := logger.NewTestLogger(t)

	cfg := rankoperators.LoadConfig()
	h := rankoperators.NewHandler(cfg, env.pg.DB, env.redis.Client, log)

	active := time.Now().Add(-time.Hour)
	candidate := func(id string, trust float64) exposure.Candidate {
		return exposure.Candidate{
			ID:              id,
			TrustScore:      trust,
			LicensedRegions: []string{"TX"},
			VehicleTag:      "high_pole",
			Available:       true,
			CompletedJobs:   25,
			LastActiveAt:    &active,
		}
	}

	out, err := h.Execute(context.Background(), &rankoperators.Input{
		Candidates: []exposure.Candidate{candidate("e2e-a", 90), candidate("e2e-b", 75), candidate("e2e-c", 10)},
		Context:    exposure.SearchContext{OriginRegion: "TX", LoadType: "high_pole", Limit: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, out.TotalCandidates)
	assert.NotEmpty(t, out.Ranked)
	for _, r := range out.Ranked {
		assert.NotEqual(t, "e2e-c", r.OperatorID, "operators below the trust gate are never ranked")
	}
}

func TestScoreJobUrgency(t *testing.T) {
	env := setup(t)

	cfg := scorejoburgency.LoadConfig()
	h := scorejoburgency.NewHandler(cfg, env.pg.DB, env.redis.Client, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &scorejoburgency.Input{
		Job: &scorejoburgency.JobSnapshot{
			JobID:      "e2e-job",
			PostedAt:   time.Now().Add(-30 * time.Minute),
			CorridorID: "e2e-corridor-without-stats",
		},
		SuppressAlerts: true,
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.GreaterOrEqual(t, out.Results[0].Score, 0)
	assert.LessOrEqual(t, out.Results[0].Score, 100)
}

func TestComputeLoadRankWithBackhaul(t *testing.T) {
	env := setup(t)
	log := logger.NewTestLogger(t)

	ebCfg := estimatebackhaul.LoadConfig()
	ebCfg.NearbyLoadIndex = env.cfg.Ranking.NearbyLoadIndex
	estimator := estimatebackhaul.NewHandler(ebCfg, env.es.Client, log)

	h := computeloadrank.NewHandler(computeloadrank.LoadConfig(), estimator, log)

	now := time.Now()
	out, err := h.Execute(context.Background(), &computeloadrank.Input{
		Loads: []computeloadrank.LoadSnapshot{
			{LoadID: "e2e-1", PostedAt: now.Add(-10 * time.Minute), Quality: 0.8, PosterTrust: 0.9,
				Lane: &estimatebackhaul.LaneContext{Origin: "TX", Destination: "OK", OutboundActive: 12, ReturnActive: 8}},
			{LoadID: "e2e-2", PostedAt: now.Add(-20 * time.Hour), Quality: 0.4, PosterTrust: 0.5},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Ranked, 2)
	assert.Equal(t, "e2e-1", out.Ranked[0].LoadID)
	assert.True(t, out.Ranked[0].BackhaulEstimated)
}
