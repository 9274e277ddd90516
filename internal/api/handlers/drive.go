package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/meddocs/internal/api"
	"github.com/cloo-solutions/meddocs/internal/domain"
)

type DriveBrowser interface {
	ListFiles(ctx context.Context, folderID string, mimeTypes []string) ([]domain.DriveFile, error)
	SearchByName(ctx context.Context, pattern string) ([]domain.DriveFile, error)
	GetFile(ctx context.Context, fileID string) (*domain.DriveFile, error)
	FolderContents(ctx context.Context, folderID string) ([]domain.DriveFile, error)
}

type DriveImporter interface {
	ImportFromDrive(ctx context.Context, fileID string) (*domain.Document, error)
}

// DriveHandler serves the Drive routes. A nil browser means Drive is not
// configured and every route answers 503.
type DriveHandler struct {
	browser  DriveBrowser
	importer DriveImporter
}

func NewDriveHandler(browser DriveBrowser, importer DriveImporter) *DriveHandler {
	return &DriveHandler{browser: browser, importer: importer}
}

type DriveImportRequest struct {
	FileID string `json:"file_id"`
}

func (h *DriveHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	if h.browser == nil {
		api.HandleError(w, domain.ErrDriveUnavailable)
		return
	}

	q := r.URL.Query()
	var (
		files []domain.DriveFile
		err   error
	)
	if name := strings.TrimSpace(q.Get("q")); name != "" {
		files, err = h.browser.SearchByName(r.Context(), name)
	} else {
		var types []string
		if raw := q.Get("types"); raw != "" {
			for t := range strings.SplitSeq(raw, ",") {
				if t = strings.TrimSpace(t); t != "" {
					types = append(types, t)
				}
			}
		}
		files, err = h.browser.ListFiles(r.Context(), q.Get("folder_id"), types)
	}
	if err != nil {
		api.HandleError(w, err)
		return
	}

	writeDriveFiles(w, files)
}

// GetFile returns one file's metadata.
func (h *DriveHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	if h.browser == nil {
		api.HandleError(w, domain.ErrDriveUnavailable)
		return
	}
	file, err := h.browser.GetFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, driveFileToResponse(*file))
}

// FolderContents lists a folder including its subfolders, for browsing.
func (h *DriveHandler) FolderContents(w http.ResponseWriter, r *http.Request) {
	if h.browser == nil {
		api.HandleError(w, domain.ErrDriveUnavailable)
		return
	}
	files, err := h.browser.FolderContents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	writeDriveFiles(w, files)
}

func writeDriveFiles(w http.ResponseWriter, files []domain.DriveFile) {
	resp := make([]DriveFileResponse, 0, len(files))
	for _, f := range files {
		resp = append(resp, driveFileToResponse(f))
	}
	api.Success(w, http.StatusOK, map[string]any{"files": resp})
}

func (h *DriveHandler) Import(w http.ResponseWriter, r *http.Request) {
	if h.browser == nil {
		api.HandleError(w, domain.ErrDriveUnavailable)
		return
	}

	var req DriveImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.FileID) == "" {
		api.Error(w, http.StatusBadRequest, "file_id is required")
		return
	}

	doc, err := h.importer.ImportFromDrive(r.Context(), req.FileID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusAccepted, documentToResponse(doc))
}
