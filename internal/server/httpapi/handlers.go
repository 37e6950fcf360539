package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/server/gate"
	"github.com/dmitrijs2005/intake/internal/server/ledger"
	"github.com/dmitrijs2005/intake/internal/server/models"
	"github.com/dmitrijs2005/intake/internal/server/repositories/uploads"
	"github.com/dmitrijs2005/intake/internal/server/services"
	"github.com/go-chi/chi/v5"
)

const (
	formNameKey  = "form_name"
	createdByKey = "created_by"
	// OperatorHeader names the operator when created_by is not posted.
	OperatorHeader = "X-Operator"

	multipartMemory = 32 << 20
)

type uploadResponse struct {
	Upload *models.Upload `json:"upload"`
	Report *gate.Report   `json:"report,omitempty"`
}

func (h *Handler) submitUpload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: multipart form: %w", common.ErrValidation, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := services.SubmitRequest{
		FormName:  firstValue(r.MultipartForm.Value, formNameKey),
		CreatedBy: r.Header.Get(OperatorHeader),
		Fields:    make(map[string]string),
	}
	if v := firstValue(r.MultipartForm.Value, createdByKey); v != "" {
		req.CreatedBy = v
	}
	for name, values := range r.MultipartForm.Value {
		if name == formNameKey || name == createdByKey || len(values) == 0 {
			continue
		}
		req.Fields[name] = values[0]
	}

	roles := make([]string, 0, len(r.MultipartForm.File))
	for role := range r.MultipartForm.File {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, role := range roles {
		for _, fh := range r.MultipartForm.File[role] {
			f, err := fh.Open()
			if err != nil {
				h.writeError(w, r, fmt.Errorf("open part %s: %w", fh.Filename, err))
				return
			}
			opened = append(opened, f)
			req.Files = append(req.Files, services.IncomingFile{Role: role, FileName: fh.Filename, Body: f})
		}
	}

	u, report, err := h.uploads.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if report != nil {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, uploadResponse{Upload: u, Report: report})
}

func (h *Handler) getUpload(w http.ResponseWriter, r *http.Request) {
	u, err := h.uploads.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) listUploads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := uploads.ListFilter{
		FormName: q.Get("form_name"),
		Status:   models.Status(q.Get("status")),
		Centre:   q.Get("centre"),
	}
	if f.Status != "" && !f.Status.Valid() {
		h.writeError(w, r, fmt.Errorf("%w: unknown status %q", common.ErrValidation, f.Status))
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, r, fmt.Errorf("%w: bad limit %q", common.ErrValidation, v))
			return
		}
		f.Limit = n
	}

	list, err := h.uploads.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Upload{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	f := uploads.DashboardFilter{
		Centre:    r.URL.Query().Get("centre"),
		CreatedBy: r.URL.Query().Get("created_by"),
	}
	if f.Centre == "" && f.CreatedBy == "" {
		f.CreatedBy = r.Header.Get(OperatorHeader)
	}

	cells, err := h.uploads.Dashboard(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if cells == nil {
		cells = []models.DashboardCell{}
	}
	writeJSON(w, http.StatusOK, cells)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	// a dropped client must not abort a run halfway
	report, err := h.reconciler.Run(context.WithoutCancel(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type responseRequest struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *Handler) recordResponse(w http.ResponseWriter, r *http.Request) {
	var req responseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %w", common.ErrValidation, err))
		return
	}
	if err := h.responses.RecordResponse(req.Name, ledger.Status(req.Status), req.Message); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.readiness != nil {
		if err := h.readiness.Ready(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func firstValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}
