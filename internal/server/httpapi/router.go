// Package httpapi is the JSON intake API: submissions, upload queries,
// the dashboard grid, manual reconciliation and the authority's response
// channel.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/intake/internal/logging"
	"github.com/dmitrijs2005/intake/internal/server/gate"
	"github.com/dmitrijs2005/intake/internal/server/ledger"
	"github.com/dmitrijs2005/intake/internal/server/models"
	"github.com/dmitrijs2005/intake/internal/server/promotion"
	"github.com/dmitrijs2005/intake/internal/server/repositories/uploads"
	"github.com/dmitrijs2005/intake/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Uploads is the submission and query surface; *services.UploadService
// implements it.
type Uploads interface {
	Submit(ctx context.Context, req services.SubmitRequest) (*models.Upload, *gate.Report, error)
	Get(ctx context.Context, id string) (*models.Upload, error)
	List(ctx context.Context, f uploads.ListFilter) ([]*models.Upload, error)
	Dashboard(ctx context.Context, f uploads.DashboardFilter) ([]models.DashboardCell, error)
}

type Reconciler interface {
	Run(ctx context.Context) (*promotion.RunReport, error)
}

// Recorder stores authority verdicts; *ledger.Ledger implements it.
type Recorder interface {
	RecordResponse(key string, status ledger.Status, message string) error
}

// Readiness reports the last dependency check; *health.Monitor implements it.
type Readiness interface {
	Ready() error
}

type Handler struct {
	uploads       Uploads
	reconciler    Reconciler
	responses     Recorder
	readiness     Readiness
	maxUploadSize int64
	logger        logging.Logger
}

func NewHandler(u Uploads, rec Reconciler, responses Recorder, readiness Readiness, maxUploadSize int64, logger logging.Logger) *Handler {
	return &Handler{
		uploads:       u,
		reconciler:    rec,
		responses:     responses,
		readiness:     readiness,
		maxUploadSize: maxUploadSize,
		logger:        logger.With("module", "http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	r.Get("/healthz", h.healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/uploads", h.submitUpload)
		r.Get("/uploads", h.listUploads)
		r.Get("/uploads/{id}", h.getUpload)
		r.Get("/dashboard", h.dashboard)
		r.Post("/reconcile", h.reconcile)
		r.Post("/handoff/responses", h.recordResponse)
	})
	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
