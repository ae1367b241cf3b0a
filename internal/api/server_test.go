package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	"github.com/VenkatGGG/taxa-totals/internal/engine"
	"github.com/VenkatGGG/taxa-totals/internal/metrics"
	"github.com/VenkatGGG/taxa-totals/internal/remote"
	"github.com/VenkatGGG/taxa-totals/internal/resolver"
	"github.com/VenkatGGG/taxa-totals/internal/retryqueue"
	"github.com/VenkatGGG/taxa-totals/internal/sessioncache"
	"github.com/VenkatGGG/taxa-totals/internal/taxon"
	"github.com/VenkatGGG/taxa-totals/internal/throttle"
	"github.com/VenkatGGG/taxa-totals/internal/ttlstore"
)

type testEnv struct {
	server  *Server
	engine  *engine.Engine
	session *sessioncache.Cache
	remote  *remote.StaticClient
}

func newTestEnv(t *testing.T, totals map[taxon.ID]int64) testEnv {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	client := remote.NewStaticClient(totals)
	session := sessioncache.New()
	store := ttlstore.New(ttlstore.NewInMemoryBackend(), ttlstore.Config{}, m, logger)
	gate := throttle.New(throttle.Config{Interval: time.Millisecond}, nil)
	res := resolver.New(client, gate, session, store, resolver.Config{}, m, logger)
	eng := engine.New(session, store, res, engine.Config{
		Retry: retryqueue.Config{Interval: 5 * time.Millisecond},
	}, m, logger)

	return testEnv{
		server:  NewServer(eng, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger),
		engine:  eng,
		session: session,
		remote:  client,
	}
}

func serve(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.engine.Request(context.Background(), 77, nil))

	rr := serve(t, env.server.Routes(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var got healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, healthResponse{Status: "ok", QueueDepth: 1}, got)
}

func TestGetTotalFromCache(t *testing.T) {
	env := newTestEnv(t, nil)
	env.session.Set(48662, 1234)

	rr := serve(t, env.server.Routes(), http.MethodGet, "/v1/totals/48662", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"id":48662,"total":1234}`, rr.Body.String())
}

func TestGetTotalPendingWithoutWait(t *testing.T) {
	env := newTestEnv(t, map[taxon.ID]int64{5: 50})

	rr := serve(t, env.server.Routes(), http.MethodGet, "/v1/totals/5", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.JSONEq(t, `{"id":5,"status":"pending"}`, rr.Body.String())
	require.Equal(t, 1, env.engine.QueueDepth())
}

func TestGetTotalWaitsForRetryLoop(t *testing.T) {
	env := newTestEnv(t, map[taxon.ID]int64{6: 60})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.engine.Run(ctx)

	rr := serve(t, env.server.Routes(), http.MethodGet, "/v1/totals/6?wait=2s", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"id":6,"total":60}`, rr.Body.String())
}

func TestGetTotalWaitExpires(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := serve(t, env.server.Routes(), http.MethodGet, "/v1/totals/8?wait=20ms", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
}

func TestGetTotalRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)
	routes := env.server.Routes()

	for _, path := range []string{"/v1/totals/abc", "/v1/totals/0", "/v1/totals/-4", "/v1/totals/"} {
		rr := serve(t, routes, http.MethodGet, path, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
	rr := serve(t, routes, http.MethodGet, "/v1/totals/3?wait=soon", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, routes, http.MethodDelete, "/v1/totals/3", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestBulkTotals(t *testing.T) {
	env := newTestEnv(t, map[taxon.ID]int64{2: 20, 3: 30})
	env.session.Set(1, 10)

	rr := serve(t, env.server.Routes(), http.MethodPost, "/v1/totals", []byte(`{"ids":[1,2,3,4,2]}`))
	require.Equal(t, http.StatusOK, rr.Code)

	var got bulkResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, map[string]int64{"1": 10, "2": 20, "3": 30}, got.Totals)
	require.Equal(t, []taxon.ID{4}, got.Pending)
	require.Equal(t, 1, got.Hits)
	require.Equal(t, 2, got.Resolved)
	require.Equal(t, 1, got.Queued)
	require.True(t, env.engine.Pending(4))
	require.Zero(t, env.engine.Waiters(4))
}

func TestBulkTotalsRejectsBadBodies(t *testing.T) {
	env := newTestEnv(t, nil)
	routes := env.server.Routes()

	for _, body := range []string{`not json`, `{"ids":[]}`, `{"ids":[1,0]}`} {
		rr := serve(t, routes, http.MethodPost, "/v1/totals", []byte(body))
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	rr := serve(t, routes, http.MethodGet, "/v1/totals", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.session.Set(1, 10)
	routes := env.server.Routes()

	serve(t, routes, http.MethodGet, "/v1/totals/1", nil)
	rr := serve(t, routes, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, strings.Contains(rr.Body.String(), `taxa_totals_cache_lookups_total{tier="session"} 1`), rr.Body.String())
}
