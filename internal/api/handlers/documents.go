package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/meddocs/internal/api"
	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/pagination"
	"github.com/cloo-solutions/meddocs/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	multipartMemory  = 32 << 20
)

type DocumentService interface {
	Upload(ctx context.Context, input service.UploadInput) (*domain.Document, error)
	Get(ctx context.Context, documentID string) (*domain.Document, error)
	List(ctx context.Context, filter domain.DocumentFilter) (*pagination.PageResult[*domain.Document], error)
	ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)
	Delete(ctx context.Context, documentID string) error
	Reprocess(ctx context.Context, documentID string) (*domain.Document, error)
	Stats(ctx context.Context) (*service.Stats, error)
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type DocumentListResponse struct {
	Documents  []*DocumentResponse `json:"documents"`
	NextCursor string              `json:"next_cursor,omitempty"`
	HasMore    bool                `json:"has_more"`
}

type StatsResponse struct {
	TotalPassages  int            `json:"total_passages"`
	IndexName      string         `json:"index_name"`
	EmbeddingModel string         `json:"embedding_model"`
	Documents      map[string]int `json:"documents"`
}

// Upload accepts a multipart form with a "file" part and an optional
// "metadata" JSON object.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	var meta map[string]any
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			api.Error(w, http.StatusBadRequest, "metadata must be a JSON object")
			return
		}
	}

	doc, err := h.svc.Upload(r.Context(), service.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
		Metadata:    meta,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, documentToResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, ok := parseLimit(w, q.Get("limit"))
	if !ok {
		return
	}
	cursor, err := pagination.DecodeCursor(q.Get("cursor"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	page, err := h.svc.List(r.Context(), domain.DocumentFilter{
		Status: domain.ProcessingStatus(q.Get("status")),
		Limit:  limit,
		Cursor: cursor,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := DocumentListResponse{
		Documents:  make([]*DocumentResponse, 0, len(page.Items)),
		NextCursor: page.Cursor,
		HasMore:    page.HasMore,
	}
	for _, d := range page.Items {
		resp.Documents = append(resp.Documents, documentToResponse(d))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Reprocess(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusAccepted, documentToResponse(doc))
}

func (h *DocumentHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.svc.ListChunks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	resp := make([]ChunkResponse, 0, len(chunks))
	for _, c := range chunks {
		resp = append(resp, chunkToResponse(c))
	}
	api.Success(w, http.StatusOK, map[string]any{"chunks": resp})
}

func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	docs := make(map[string]int, len(stats.Documents))
	for status, n := range stats.Documents {
		docs[string(status)] = n
	}
	api.Success(w, http.StatusOK, StatsResponse{
		TotalPassages:  stats.Index.TotalPassages,
		IndexName:      stats.Index.IndexName,
		EmbeddingModel: stats.Index.EmbeddingModel,
		Documents:      docs,
	})
}

// parseLimit reads an optional positive limit, writing a 400 when invalid.
func parseLimit(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxListLimit), true
}
