package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/toyiyo/nimble-pnl-sub019/internal/categorize"
	"github.com/toyiyo/nimble-pnl-sub019/internal/pipeline"
	"github.com/toyiyo/nimble-pnl-sub019/internal/provider"
)

// DocumentProcessor is either extraction pipeline.
type DocumentProcessor interface {
	Process(ctx context.Context, restaurantID uuid.UUID, doc provider.Document) (*pipeline.Outcome, error)
}

// Categorizer sweeps a restaurant's uncategorized transactions.
type Categorizer interface {
	CategorizeRestaurant(ctx context.Context, restaurantID uuid.UUID) (*categorize.RunSummary, error)
}

// Exporter renders one document's transactions as an XLSX workbook.
type Exporter interface {
	ExportTransactionsXLSX(ctx context.Context, documentID uuid.UUID) ([]byte, error)
}

// Fetcher downloads a document referenced by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

type Config struct {
	AuthToken        string
	MaxDocumentBytes int64
}

type Server struct {
	cfg        Config
	receipts   DocumentProcessor
	statements DocumentProcessor
	categories Categorizer
	exporter   Exporter
	fetcher    Fetcher
	dbPing     func(ctx context.Context) error
	log        *slog.Logger
}

func New(cfg Config, receipts, statements DocumentProcessor, categories Categorizer, exporter Exporter, fetcher Fetcher, dbPing func(ctx context.Context) error, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if dbPing == nil {
		dbPing = func(context.Context) error { return nil }
	}
	return &Server{
		cfg:        cfg,
		receipts:   receipts,
		statements: statements,
		categories: categories,
		exporter:   exporter,
		fetcher:    fetcher,
		dbPing:     dbPing,
		log:        log,
	}
}

// Router builds the gin engine with all routes wired.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.handleHealthz)

	v1 := r.Group("/v1", s.requireAuth())
	{
		v1.POST("/extract/receipt", s.handleExtract(s.receipts))
		v1.POST("/extract/bank-statement", s.handleExtract(s.statements))
		v1.POST("/categorize", s.handleCategorize)
		v1.GET("/export/transactions", s.handleExportTransactions)
	}
	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server.listen", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
