// internal/common/database/database_test.go
package database

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Postgres
// ==========================

func TestEnsureSchema_AppliesAllStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS allocation_config").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS corridor_stats").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS poster_stats").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	pg := &PostgresClient{DB: db}
	require.NoError(t, pg.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS allocation_config").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	pg := &PostgresClient{DB: db}
	err = pg.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Redis
// ==========================

type cachedStats struct {
	MedianFillMinutes float64 `json:"medianFillMinutes"`
	Operators         int     `json:"operators"`
}

func TestJSONCache_RoundTripAndMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	var out cachedStats
	assert.ErrorIs(t, GetJSON(ctx, rdb, "corridor:stats:tx-ok", &out), ErrCacheMiss)

	require.NoError(t, SetJSON(ctx, rdb, "corridor:stats:tx-ok", cachedStats{MedianFillMinutes: 95, Operators: 4}, time.Minute))
	require.NoError(t, GetJSON(ctx, rdb, "corridor:stats:tx-ok", &out))
	assert.Equal(t, 95.0, out.MedianFillMinutes)
	assert.Equal(t, 4, out.Operators)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, GetJSON(ctx, rdb, "corridor:stats:tx-ok", &out), ErrCacheMiss)
}

func TestGetJSON_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	require.NoError(t, mr.Set("allocation:config", "{not json"))

	var out cachedStats
	err := GetJSON(context.Background(), rdb, "allocation:config", &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

// ==========================
// Elasticsearch
// ==========================

func newStubES(t *testing.T, status int, body string) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return es
}

func TestCount_Success(t *testing.T) {
	es := newStubES(t, http.StatusOK, `{"count":17,"_shards":{"total":1,"successful":1}}`)

	n, err := Count(context.Background(), es, "loads", map[string]interface{}{"match_all": map[string]interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, 17, n)
}

func TestCount_ErrorStatus(t *testing.T) {
	es := newStubES(t, http.StatusNotFound, `{"error":{"type":"index_not_found_exception"}}`)

	_, err := Count(context.Background(), es, "missing", map[string]interface{}{"match_all": map[string]interface{}{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
