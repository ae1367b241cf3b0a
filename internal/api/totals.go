package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/VenkatGGG/taxa-totals/internal/taxon"
	"github.com/VenkatGGG/taxa-totals/pkg/httpx"
)

type totalResponse struct {
	ID     taxon.ID `json:"id"`
	Total  *int64   `json:"total,omitempty"`
	Status string   `json:"status,omitempty"`
}

type bulkRequest struct {
	IDs []int64 `json:"ids"`
}

type bulkResponse struct {
	Totals   map[string]int64 `json:"totals"`
	Pending  []taxon.ID       `json:"pending"`
	Hits     int              `json:"hits"`
	Resolved int              `json:"resolved"`
	Queued   int              `json:"queued"`
}

func (s *Server) handleTotalByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/totals/"), "/")
	id, err := taxon.ParseID(raw)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_id", err.Error())
		return
	}

	wait, err := s.parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_wait", err.Error())
		return
	}

	if total, ok := s.totals.Lookup(r.Context(), id); ok {
		httpx.WriteJSON(w, http.StatusOK, totalResponse{ID: id, Total: &total})
		return
	}

	if wait <= 0 {
		if err := s.totals.Request(r.Context(), id, nil); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_id", err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusAccepted, totalResponse{ID: id, Status: "pending"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	total, err := s.totals.Await(ctx, id)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, totalResponse{ID: id, Total: &total})
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		httpx.WriteJSON(w, http.StatusAccepted, totalResponse{ID: id, Status: "pending"})
	default:
		httpx.WriteError(w, http.StatusBadRequest, "invalid_id", err.Error())
	}
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req bulkRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	ids, err := toIDs(req.IDs)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_ids", err.Error())
		return
	}

	var (
		mu     sync.Mutex
		closed bool
		found  = make(map[taxon.ID]int64, len(ids))
	)
	collect := func(id taxon.ID, total int64) {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			found[id] = total
		}
	}
	result := s.totals.Discover(r.Context(), ids, collect)
	// Queued ids keep resolving in the background; nothing here waits for them.
	s.totals.Cancel(result.Waiting...)

	mu.Lock()
	closed = true
	resp := bulkResponse{
		Totals:   make(map[string]int64, len(found)),
		Pending:  make([]taxon.ID, 0),
		Hits:     result.Hits,
		Resolved: result.Resolved,
		Queued:   result.Queued,
	}
	for id, total := range found {
		resp.Totals[id.String()] = total
	}
	for _, id := range taxon.Unique(ids) {
		if _, ok := found[id]; !ok {
			resp.Pending = append(resp.Pending, id)
		}
	}
	mu.Unlock()

	sort.Slice(resp.Pending, func(i, j int) bool { return resp.Pending[i] < resp.Pending[j] })
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) parseWait(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	wait, err := time.ParseDuration(raw)
	if err != nil {
		seconds, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, errors.New("wait must be a duration like 2s")
		}
		wait = time.Duration(seconds) * time.Second
	}
	if wait < 0 {
		return 0, errors.New("wait cannot be negative")
	}
	if wait > s.maxWait {
		wait = s.maxWait
	}
	return wait, nil
}

func toIDs(raw []int64) ([]taxon.ID, error) {
	if len(raw) == 0 {
		return nil, errors.New("ids is required")
	}
	if len(raw) > maxBulkIDs {
		return nil, fmt.Errorf("at most %d ids per request", maxBulkIDs)
	}
	ids := make([]taxon.ID, 0, len(raw))
	for _, value := range raw {
		id := taxon.ID(value)
		if !id.Valid() {
			return nil, fmt.Errorf("%w: %d", taxon.ErrInvalidID, value)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
