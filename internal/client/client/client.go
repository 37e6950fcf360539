package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/intake/internal/netx"
	"github.com/dmitrijs2005/intake/internal/server/models"
)

// OperatorHeader mirrors the server's operator header.
const OperatorHeader = "X-Operator"

// SubmitResult is the server's answer to an upload. Report is set when the
// gate flagged the submission; the upload is then already Rejected.
type SubmitResult struct {
	Upload *models.Upload `json:"upload"`
	Report *Report        `json:"report,omitempty"`
}

// ListFilter narrows List. Zero values are not sent.
type ListFilter struct {
	FormName string
	Status   models.Status
	Centre   string
	Limit    int
}

// Response is an authority verdict for a handed-off upload.
type Response struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type APIClient struct {
	baseURL  string
	operator string
	http     *http.Client
}

func NewAPIClient(baseURL, operator string) *APIClient {
	return &APIClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		operator: operator,
		http:     &http.Client{Timeout: 5 * time.Minute},
	}
}

// Operator returns the name sent in OperatorHeader.
func (c *APIClient) Operator() string {
	return c.operator
}

func (c *APIClient) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return netx.CheckStatus(resp, http.StatusOK)
}

// Submit uploads files with the given metadata fields. A gate rejection is
// not an error: the result carries the report.
func (c *APIClient) Submit(ctx context.Context, formName string, fields map[string]string, files []netx.FilePart) (*SubmitResult, error) {
	all := make(map[string]string, len(fields)+2)
	for k, v := range fields {
		all[k] = v
	}
	all["form_name"] = formName
	if c.operator != "" {
		all["created_by"] = c.operator
	}

	body, ct, err := netx.MultipartBody(all, files)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	var res SubmitResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/uploads", body, ct, &res, http.StatusCreated, http.StatusUnprocessableEntity); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *APIClient) Get(ctx context.Context, id string) (*models.Upload, error) {
	var u models.Upload
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/uploads/"+url.PathEscape(id), nil, "", &u, http.StatusOK); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *APIClient) List(ctx context.Context, f ListFilter) ([]*models.Upload, error) {
	q := url.Values{}
	if f.FormName != "" {
		q.Set("form_name", f.FormName)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Centre != "" {
		q.Set("centre", f.Centre)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	var list []*models.Upload
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/v1/uploads", q), nil, "", &list, http.StatusOK); err != nil {
		return nil, err
	}
	return list, nil
}

// Dashboard returns the slot grid. With an empty centre the server falls
// back to the operator's own uploads.
func (c *APIClient) Dashboard(ctx context.Context, centre string) ([]models.DashboardCell, error) {
	q := url.Values{}
	if centre != "" {
		q.Set("centre", centre)
	}

	var cells []models.DashboardCell
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/api/v1/dashboard", q), nil, "", &cells, http.StatusOK); err != nil {
		return nil, err
	}
	return cells, nil
}

func (c *APIClient) Reconcile(ctx context.Context) (*RunReport, error) {
	var report RunReport
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/reconcile", nil, "", &report, http.StatusOK); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *APIClient) RecordResponse(ctx context.Context, r Response) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/handoff/responses", bytes.NewReader(b), "application/json", nil, http.StatusNoContent)
}

func (c *APIClient) doJSON(ctx context.Context, method, path string, body io.Reader, contentType string, out any, want ...int) error {
	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := netx.CheckStatus(resp, want...); err != nil {
		var se *netx.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.operator != "" {
		req.Header.Set(OperatorHeader, c.operator)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return resp, nil
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
