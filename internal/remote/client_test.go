package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/VenkatGGG/taxa-totals/internal/taxon"
)

func TestHTTPClientFetchTotals(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_results":3,"results":[
			{"id":1,"observations_count":10},
			{"id":2,"observations_count":0},
			{"id":3}
		]}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, time.Second)
	totals, err := client.FetchTotals(context.Background(), []taxon.ID{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, "/v1/taxa/1,2,3,4", gotPath)
	require.Equal(t, map[taxon.ID]int64{1: 10, 2: 0}, totals)
}

func TestHTTPClientRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).FetchTotals(context.Background(), []taxon.ID{1})
	require.True(t, errors.Is(err, ErrRateLimited))
}

func TestHTTPClientNonSuccessIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, time.Second).FetchTotals(context.Background(), []taxon.ID{1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestHTTPClientRejectsOversizedBatch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	defer srv.Close()

	ids := make([]taxon.ID, taxon.MaxBatch+1)
	for i := range ids {
		ids[i] = taxon.ID(i + 1)
	}
	_, err := NewHTTPClient(srv.URL, time.Second).FetchTotals(context.Background(), ids)
	require.True(t, errors.Is(err, ErrBatchTooLarge))
	require.Zero(t, calls)
}

func TestNormalizeBaseURL(t *testing.T) {
	require.Equal(t, DefaultBaseURL, normalizeBaseURL("  "))
	require.Equal(t, "https://api.example.org", normalizeBaseURL("api.example.org/"))
	require.Equal(t, "http://localhost:9000", normalizeBaseURL("http://localhost:9000"))
}

func TestStaticClientReturnsKnownSubset(t *testing.T) {
	client := NewStaticClient(map[taxon.ID]int64{1: 5})
	client.Put(2, 6)
	totals, err := client.FetchTotals(context.Background(), []taxon.ID{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, map[taxon.ID]int64{1: 5, 2: 6}, totals)
}
