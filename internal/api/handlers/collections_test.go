package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unifiedui/docdb-gateway/internal/api/handlers"
	"github.com/unifiedui/docdb-gateway/internal/api/middleware"
	"github.com/unifiedui/docdb-gateway/internal/api/routes"
	"github.com/unifiedui/docdb-gateway/internal/config"
	"github.com/unifiedui/docdb-gateway/internal/core/docdb"
	"github.com/unifiedui/docdb-gateway/internal/core/docdb/docdbtest"
	domainerrors "github.com/unifiedui/docdb-gateway/internal/domain/errors"
	"github.com/unifiedui/docdb-gateway/internal/services/compiler"
	"github.com/unifiedui/docdb-gateway/internal/services/executor"
	"github.com/unifiedui/docdb-gateway/internal/services/pool"
	"github.com/unifiedui/docdb-gateway/internal/telemetry/metrics"
	"github.com/unifiedui/docdb-gateway/internal/testutil"
)

type gateway struct {
	router  *gin.Engine
	backend *docdbtest.Backend
	pool    *pool.Pool
	metrics *metrics.Collector
}

type gatewayOptions struct {
	pool     pool.Options
	compiler compiler.Options
	executor executor.Options
}

func defaultGatewayOptions() gatewayOptions {
	poolOpts := pool.DefaultOptions()
	poolOpts.LeaseTimeout = time.Second
	poolOpts.ReconnectInitialInterval = 10 * time.Millisecond
	poolOpts.ReconnectMaxInterval = 50 * time.Millisecond
	return gatewayOptions{
		pool:     poolOpts,
		compiler: compiler.DefaultOptions(),
		executor: executor.DefaultOptions(),
	}
}

func newGateway(t *testing.T, opts gatewayOptions) *gateway {
	t.Helper()

	backend := testutil.NewSeededBackend()
	p, err := pool.New(context.Background(), backend, opts.pool, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	collector := metrics.NewCollector(config.MetricsConfig{Enabled: true, Namespace: "test"}, prometheus.NewRegistry())
	collector.RegisterPool(p, "test")

	cors := middleware.DefaultCORSConfig()
	router := testutil.SetupTestRouter()
	routes.SetupWithMiddleware(router, &routes.Config{
		HealthHandler: handlers.NewHealthHandler(p, backend.Name()),
		CollectionsHandler: handlers.NewCollectionsHandler(
			compiler.New(opts.compiler),
			p,
			executor.New(opts.executor, zerolog.Nop()),
			collector,
		),
		Metrics: collector,
		CORS:    &cors,
	}, middleware.NewLoggingMiddlewareWithLogger(zerolog.Nop()), middleware.NewErrorMiddleware())

	return &gateway{router: router, backend: backend, pool: p, metrics: collector}
}

func (g *gateway) get(path string) *httptest.ResponseRecorder {
	return testutil.PerformRequest(g.router, http.MethodGet, path, nil)
}

func withQuery(path string, params map[string]string) string {
	v := url.Values{}
	for key, value := range params {
		v.Set(key, value)
	}
	return path + "?" + v.Encode()
}

func decodeDocs(t *testing.T, w *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var docs []map[string]interface{}
	testutil.ParseJSONResponse(t, w, &docs)
	return docs
}

func TestFind_FilterReturnsMatchingDocuments(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())

	w := g.get(withQuery("/users", map[string]string{"query": `{"active":true}`}))

	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "50", w.Header().Get("X-Effective-Limit"))

	docs := decodeDocs(t, w)
	require.Len(t, docs, 5)
	for _, doc := range docs {
		assert.Equal(t, true, doc["active"])
	}
}

func TestFind_EmptyFilterReturnsAll(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())

	w := g.get("/users")

	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.Len(t, decodeDocs(t, w), 8)
}

func TestFind_UnknownCollectionIsEmptyArray(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())

	w := g.get("/nothing_here")

	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.Equal(t, "[]", w.Body.String())
}

func TestFind_SortSkipLimitProjection(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())

	w := g.get(withQuery("/users", map[string]string{
		"sort":       "age:desc",
		"skip":       "1",
		"limit":      "3",
		"projection": "name,-_id",
	}))

	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.Equal(t, "3", w.Header().Get("X-Effective-Limit"))

	docs := decodeDocs(t, w)
	require.Len(t, docs, 3)
	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		assert.NotContains(t, doc, "password")
		assert.NotContains(t, doc, "_id")
		names = append(names, doc["name"].(string))
	}
	assert.Equal(t, []string{"dennis", "edsger", "brian"}, names)
}

func TestFind_ExcludeProjection(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())

	w := g.get(withQuery("/users", map[string]string{"projection": "-password", "limit": "1"}))

	testutil.AssertStatusCode(t, http.StatusOK, w)
	docs := decodeDocs(t, w)
	require.Len(t, docs, 1)
	assert.NotContains(t, docs[0], "password")
	assert.Contains(t, docs[0], "name")
}

func TestFind_LimitClampedToMaximum(t *testing.T) {
	opts := defaultGatewayOptions()
	opts.compiler.MaxLimit = 3
	g := newGateway(t, opts)

	w := g.get(withQuery("/users", map[string]string{"limit": "100"}))

	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.Equal(t, "3", w.Header().Get("X-Effective-Limit"))
	assert.Len(t, decodeDocs(t, w), 3)
}

func TestFind_InvalidInputNeverLeases(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		code      string
		parameter string
	}{
		{
			name:      "malformed filter",
			path:      withQuery("/users", map[string]string{"query": `{"active":`}),
			code:      domainerrors.CodeInvalidFilterSyntax,
			parameter: "query",
		},
		{
			name:      "negative limit",
			path:      withQuery("/users", map[string]string{"limit": "-1"}),
			code:      domainerrors.CodeInvalidLimit,
			parameter: "limit",
		},
		{
			name:      "non numeric skip",
			path:      withQuery("/users", map[string]string{"skip": "many"}),
			code:      domainerrors.CodeInvalidSkip,
			parameter: "skip",
		},
		{
			name:      "bad sort direction",
			path:      withQuery("/users", map[string]string{"sort": "age:sideways"}),
			code:      domainerrors.CodeInvalidSortSyntax,
			parameter: "sort",
		},
		{
			name:      "mixed projection",
			path:      withQuery("/users", map[string]string{"projection": "name,-age"}),
			code:      domainerrors.CodeMixedProjectionMode,
			parameter: "projection",
		},
		{
			name:      "invalid collection",
			path:      "/system.$cmd",
			code:      domainerrors.CodeInvalidCollection,
			parameter: "collection",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t, defaultGatewayOptions())
			before := g.pool.Stats()

			w := g.get(tt.path)

			testutil.AssertStatusCode(t, http.StatusBadRequest, w)
			body := testutil.ParseErrorResponse(t, w)
			assert.Equal(t, tt.code, body.Error)
			assert.Equal(t, tt.parameter, body.Parameter)
			assert.NotEmpty(t, body.Message)

			assert.Equal(t, before.Leases, g.pool.Stats().Leases)
			assert.Zero(t, g.backend.Stats().Finds)
		})
	}
}

func TestFind_QueryRejectedKeepsConnection(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())

	w := g.get(withQuery("/users", map[string]string{"query": `{"name":{"$where":"1"}}`}))

	testutil.AssertStatusCode(t, http.StatusBadRequest, w)
	assert.Equal(t, domainerrors.CodeQueryRejected, testutil.ParseErrorResponse(t, w).Error)

	stats := g.pool.Stats()
	assert.Equal(t, stats.Leases, stats.Releases)
	assert.Zero(t, stats.Destroyed)
	assert.Equal(t, 1, stats.Idle)
}

func TestFind_ExecutionTimeout(t *testing.T) {
	opts := defaultGatewayOptions()
	opts.executor.Timeout = 30 * time.Millisecond
	g := newGateway(t, opts)
	release := g.backend.Gate()
	defer release()

	w := g.get("/users")

	testutil.AssertStatusCode(t, http.StatusGatewayTimeout, w)
	assert.Equal(t, domainerrors.CodeExecutionTimeout, testutil.ParseErrorResponse(t, w).Error)
}

func TestFind_PoolSizeOneSerializesRequests(t *testing.T) {
	opts := defaultGatewayOptions()
	opts.pool.MinSize = 1
	opts.pool.MaxSize = 1
	g := newGateway(t, opts)
	release := g.backend.Gate()

	var wg sync.WaitGroup
	results := make([]*httptest.ResponseRecorder, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = g.get("/users")
		}(i)
	}

	assert.Eventually(t, func() bool { return g.pool.Stats().Waiting == 1 }, time.Second, 5*time.Millisecond)
	release()
	wg.Wait()

	for _, w := range results {
		testutil.AssertStatusCode(t, http.StatusOK, w)
		assert.Len(t, decodeDocs(t, w), 8)
	}
	assert.Equal(t, 1, g.backend.Stats().MaxOpen)
}

func TestFind_PoolExhaustedWithoutWaiting(t *testing.T) {
	opts := defaultGatewayOptions()
	opts.pool.MinSize = 1
	opts.pool.MaxSize = 1
	opts.pool.WaitForLease = false
	g := newGateway(t, opts)
	release := g.backend.Gate()

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- g.get("/users") }()
	assert.Eventually(t, func() bool { return g.pool.Stats().InUse == 1 }, time.Second, 5*time.Millisecond)

	w := g.get("/users")
	testutil.AssertStatusCode(t, http.StatusServiceUnavailable, w)
	assert.Equal(t, domainerrors.CodePoolExhausted, testutil.ParseErrorResponse(t, w).Error)

	release()
	testutil.AssertStatusCode(t, http.StatusOK, <-done)
}

func TestFind_UnavailableThenRecovers(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())
	g.backend.SetUnreachable(true)

	w := g.get("/users")
	testutil.AssertStatusCode(t, http.StatusServiceUnavailable, w)
	assert.Equal(t, domainerrors.CodeUnavailable, testutil.ParseErrorResponse(t, w).Error)

	assert.Eventually(t, func() bool { return g.pool.State() == pool.StateUnavailable }, time.Second, 5*time.Millisecond)
	w = g.get("/users")
	testutil.AssertStatusCode(t, http.StatusServiceUnavailable, w)

	g.backend.SetUnreachable(false)
	assert.Eventually(t, func() bool {
		return g.get("/users").Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFind_MidStreamFailureTruncatesResponse(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())
	g.backend.FailCursorAfter(2, &docdb.BackendError{Class: docdb.ClassNetwork, Message: "connection reset"})

	server := httptest.NewServer(g.router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/users")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	text := string(body)
	assert.True(t, strings.HasPrefix(text, "["), text)
	assert.False(t, strings.HasSuffix(text, "]"), text)
	assert.Equal(t, 2, strings.Count(text, `"name"`))

	assert.Eventually(t, func() bool {
		s := g.pool.Stats()
		return s.Leases == s.Releases
	}, time.Second, 5*time.Millisecond)
}

func TestFind_ClientDisconnectMidStreamReleasesConnection(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())
	g.backend.BlockCursorAfter(1)

	server := httptest.NewServer(g.router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/users")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []byte
	buf := make([]byte, 256)
	for !strings.Contains(string(got), "}") {
		n, err := resp.Body.Read(buf)
		got = append(got, buf[:n]...)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, g.pool.Stats().InUse)

	// hang up while the cursor waits for its next batch
	require.NoError(t, resp.Body.Close())

	assert.Eventually(t, func() bool {
		s := g.pool.Stats()
		return s.Leases == s.Releases && s.InUse == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return g.backend.Stats().CursorCloses == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, g.backend.Stats().Finds)
}

func TestFind_RoutingErrors(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())

	w := g.get("/users/1")
	testutil.AssertStatusCode(t, http.StatusNotFound, w)
	assert.Equal(t, domainerrors.CodeNotFound, testutil.ParseErrorResponse(t, w).Error)

	w = g.get("/users/")
	testutil.AssertStatusCode(t, http.StatusNotFound, w)

	w = testutil.PerformRequest(g.router, http.MethodPost, "/users", nil)
	testutil.AssertStatusCode(t, http.StatusMethodNotAllowed, w)
	assert.Equal(t, "GET, OPTIONS", w.Header().Get("Allow"))
	assert.Equal(t, domainerrors.CodeMethodNotAllowed, testutil.ParseErrorResponse(t, w).Error)
}

func TestFind_ResponseCarriesRequestID(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())

	w := testutil.PerformRequest(g.router, http.MethodGet, "/users?limit=1", map[string]string{middleware.HeaderRequestID: "abc"})

	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.Equal(t, "abc", w.Header().Get(middleware.HeaderRequestID))
}

func TestFind_MetricsExposed(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())

	testutil.AssertStatusCode(t, http.StatusOK, g.get("/users?limit=2"))
	testutil.AssertStatusCode(t, http.StatusBadRequest, g.get("/users?limit=0"))

	w := g.get("/_gateway/metrics")
	testutil.AssertStatusCode(t, http.StatusOK, w)
	body := w.Body.String()
	assert.Contains(t, body, `test_requests_total{error="",route="/:collection",status="200"} 1`)
	assert.Contains(t, body, `test_requests_total{error="InvalidLimit",route="/:collection",status="400"} 1`)
	assert.Contains(t, body, "test_documents_streamed_total 2")
	assert.Contains(t, body, "test_pool_open_connections 1")
}

func TestFind_DocumentsAreExtendedJSON(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())
	g.backend.Seed("events", bsonEvent())

	w := g.get("/events")

	testutil.AssertStatusCode(t, http.StatusOK, w)
	var docs []map[string]json.RawMessage
	testutil.ParseJSONResponse(t, w, &docs)
	require.Len(t, docs, 1)
	assert.JSONEq(t, `{"$oid":"64b7f0c2e13f2a5d9c8b4567"}`, string(docs[0]["_id"]))
	assert.JSONEq(t, `{"$date":"2024-01-02T03:04:05Z"}`, string(docs[0]["at"]))
}

func bsonEvent() bson.D {
	id, _ := primitive.ObjectIDFromHex("64b7f0c2e13f2a5d9c8b4567")
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "at", Value: primitive.NewDateTimeFromTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))},
	}
}

func TestFind_LimitTwoActiveUsers(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())

	w := g.get(withQuery("/users", map[string]string{"limit": "2", "query": `{"active":true}`}))

	testutil.AssertStatusCode(t, http.StatusOK, w)
	docs := decodeDocs(t, w)
	require.Len(t, docs, 2)
	for _, doc := range docs {
		assert.Equal(t, true, doc["active"])
	}
}

func TestFind_EveryLeaseIsReleasedUnderMixedLoad(t *testing.T) {
	opts := defaultGatewayOptions()
	opts.pool.MaxSize = 3
	g := newGateway(t, opts)

	paths := []string{
		"/users?limit=3",
		withQuery("/users", map[string]string{"query": `{"age":{"$gt":30}}`}),
		withQuery("/users", map[string]string{"query": `{"age":{"$bogus":1}}`}),
		"/users?skip=-1",
		"/empty",
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			w := g.get(path)
			assert.Contains(t, []int{http.StatusOK, http.StatusBadRequest}, w.Code)
		}(paths[i%len(paths)])
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		s := g.pool.Stats()
		return s.Leases == s.Releases && s.InUse == 0
	}, time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, g.backend.Stats().MaxOpen, 3)
}

func TestFind_CORSPreflight(t *testing.T) {
	g := newGateway(t, defaultGatewayOptions())

	w := testutil.PerformRequest(g.router, http.MethodOptions, "/users", map[string]string{
		"Origin":                        "http://localhost:5173",
		"Access-Control-Request-Method": http.MethodGet,
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Zero(t, g.pool.Stats().Leases)
}
