package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VenkatGGG/taxa-totals/internal/taxon"
)

const DefaultBaseURL = "https://api.inaturalist.org"

var (
	ErrRateLimited   = errors.New("remote rate limit exceeded")
	ErrBatchTooLarge = fmt.Errorf("batch exceeds %d ids", taxon.MaxBatch)
)

// Client fetches totals for up to taxon.MaxBatch ids. Ids missing from the returned map are
// unknown for now, not errors.
type Client interface {
	FetchTotals(ctx context.Context, ids []taxon.ID) (map[taxon.ID]int64, error)
}

type taxaResponse struct {
	Results []taxonResult `json:"results"`
}

type taxonResult struct {
	ID                int64  `json:"id"`
	ObservationsCount *int64 `json:"observations_count"`
}

type HTTPClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:    normalizeBaseURL(baseURL),
		userAgent:  "taxa-totals/1",
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) FetchTotals(ctx context.Context, ids []taxon.ID) (map[taxon.ID]int64, error) {
	if len(ids) == 0 {
		return map[taxon.ID]int64{}, nil
	}
	if len(ids) > taxon.MaxBatch {
		return nil, ErrBatchTooLarge
	}

	url := c.baseURL + "/v1/taxa/" + taxon.Join(ids)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("taxa request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("taxa request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded taxaResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode taxa response: %w", err)
	}

	totals := make(map[taxon.ID]int64, len(decoded.Results))
	for _, result := range decoded.Results {
		if result.ID <= 0 || result.ObservationsCount == nil {
			continue
		}
		totals[taxon.ID(result.ID)] = *result.ObservationsCount
	}
	return totals, nil
}

func normalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return DefaultBaseURL
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	return "https://" + trimmed
}
