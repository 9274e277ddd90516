package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/meddocs/internal/api"
	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/service"
)

type ReportService interface {
	Create(ctx context.Context, input service.CreateReportInput) (*domain.Report, error)
	Get(ctx context.Context, reportID string) (*domain.Report, error)
	List(ctx context.Context, limit int) ([]*domain.Report, error)
	Delete(ctx context.Context, reportID string) error
	Download(ctx context.Context, reportID string) (io.ReadCloser, *domain.Report, error)
}

type ReportHandler struct {
	svc ReportService
}

func NewReportHandler(svc ReportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

type CreateReportRequest struct {
	Title       string               `json:"title"`
	Sections    []domain.SectionSpec `json:"sections"`
	DocumentIDs []string             `json:"document_ids,omitempty"`
}

func (h *ReportHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		api.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	report, err := h.svc.Create(r.Context(), service.CreateReportInput{
		Title:       req.Title,
		Sections:    req.Sections,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusAccepted, reportToResponse(report))
}

func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r.URL.Query().Get("limit"))
	if !ok {
		return
	}
	reports, err := h.svc.List(r.Context(), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	resp := make([]*ReportResponse, 0, len(reports))
	for _, rep := range reports {
		summary := reportToResponse(rep)
		summary.Content = nil
		resp = append(resp, summary)
	}
	api.Success(w, http.StatusOK, map[string]any{"reports": resp})
}

func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, reportToResponse(report))
}

func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download streams the Markdown export of a completed report.
func (h *ReportHandler) Download(w http.ResponseWriter, r *http.Request) {
	body, report, err := h.svc.Download(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "report-"+report.ID+".md"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}
