package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/VenkatGGG/taxa-totals/internal/engine"
	"github.com/VenkatGGG/taxa-totals/internal/taxon"
	"github.com/VenkatGGG/taxa-totals/pkg/httpx"
)

const (
	defaultMaxWait = 30 * time.Second
	maxBulkIDs     = 1000
)

// Totals is the engine surface the HTTP layer drives.
type Totals interface {
	Request(ctx context.Context, id taxon.ID, consumer taxon.Consumer) error
	Discover(ctx context.Context, ids []taxon.ID, consumer taxon.Consumer) engine.DiscoverResult
	Await(ctx context.Context, id taxon.ID) (int64, error)
	Lookup(ctx context.Context, id taxon.ID) (int64, bool)
	Cancel(regs ...engine.Registration) int
	QueueDepth() int
}

type Server struct {
	totals  Totals
	metrics http.Handler
	maxWait time.Duration
	logger  *log.Logger
}

// NewServer wires the routes. metricsHandler may be nil, in which case /metrics is not served.
func NewServer(totals Totals, metricsHandler http.Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		totals:  totals,
		metrics: metricsHandler,
		maxWait: defaultMaxWait,
		logger:  logger,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/totals", s.handleTotals)
	mux.HandleFunc("/v1/totals/", s.handleTotalByID)
	mux.HandleFunc("/v1/stream", s.handleStream)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	return mux
}

type healthResponse struct {
	Status     string `json:"status"`
	QueueDepth int    `json:"queue_depth"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", QueueDepth: s.totals.QueueDepth()})
}
