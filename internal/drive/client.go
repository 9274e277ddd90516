// Package drive is a read-only Google Drive client used to list and import
// documents.
package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/logger"
)

// Google Workspace MIME types.
const (
	MimeTypeFolder      = "application/vnd.google-apps.folder"
	MimeTypeGoogleDoc   = "application/vnd.google-apps.document"
	MimeTypeGoogleSheet = "application/vnd.google-apps.spreadsheet"

	ExportMimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ExportMimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeTypeODT    = "application/vnd.oasis.opendocument.text"
)

const fileFields = "id, name, mimeType, size, webViewLink, modifiedTime, parents"

// Drive allows 10 requests per second per user.
const (
	requestsPerSecond = 8
	burst             = 10
)

// supportedMimeTypes maps importable MIME types to the extension used for
// the imported filename.
var supportedMimeTypes = map[string]string{
	"application/pdf":   ".pdf",
	ExportMimeDOCX:      ".docx",
	ExportMimeXLSX:      ".xlsx",
	"text/plain":        ".txt",
	"text/csv":          ".csv",
	"text/markdown":     ".md",
	"application/rtf":   ".rtf",
	"image/png":         ".png",
	"image/jpeg":        ".jpg",
	"image/gif":         ".gif",
	MimeTypeGoogleDoc:   ".docx",
	MimeTypeGoogleSheet: ".xlsx",
	MimeTypeODT:         ".odt",
}

// FilesAPI is the part of the Drive files service used by Client.
type FilesAPI interface {
	List(ctx context.Context, query string, pageToken string) (*drive.FileList, error)
	Get(ctx context.Context, fileID string) (*drive.File, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
	Export(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error)
}

type Client struct {
	files   FilesAPI
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient authenticates with an OAuth client credentials file and a token
// file previously written by an authorization flow.
func NewClient(ctx context.Context, credentialsFile, tokenFile string) (*Client, error) {
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read drive credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(creds, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse drive credentials: %w", err)
	}
	token, err := loadToken(tokenFile)
	if err != nil {
		return nil, err
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return NewClientWithAPI(&filesService{svc: svc}), nil
}

func NewClientWithAPI(files FilesAPI) *Client {
	return &Client{
		files:   files,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		log:     logger.New("drive"),
	}
}

func loadToken(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open drive token: %w", err)
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("failed to decode drive token: %w", err)
	}
	return &tok, nil
}

// ListFiles lists importable files, optionally within a folder and limited
// to the given MIME types.
func (c *Client) ListFiles(ctx context.Context, folderID string, mimeTypes []string) ([]domain.DriveFile, error) {
	clauses := []string{"trashed = false"}
	if folderID != "" {
		clauses = append(clauses, fmt.Sprintf("'%s' in parents", escape(folderID)))
	}
	if len(mimeTypes) > 0 {
		var or []string
		for _, mt := range mimeTypes {
			or = append(or, fmt.Sprintf("mimeType = '%s'", escape(mt)))
		}
		clauses = append(clauses, "("+strings.Join(or, " or ")+")")
	}
	files, err := c.list(ctx, strings.Join(clauses, " and "))
	if err != nil {
		return nil, err
	}

	out := make([]domain.DriveFile, 0, len(files))
	for _, f := range files {
		if f.MimeType == MimeTypeFolder {
			continue
		}
		if _, ok := supportedMimeTypes[f.MimeType]; !ok {
			continue
		}
		out = append(out, toDomain(f))
	}
	return out, nil
}

// FolderContents lists everything directly inside a folder, folders included.
func (c *Client) FolderContents(ctx context.Context, folderID string) ([]domain.DriveFile, error) {
	files, err := c.list(ctx, fmt.Sprintf("'%s' in parents and trashed = false", escape(folderID)))
	if err != nil {
		return nil, err
	}
	out := make([]domain.DriveFile, 0, len(files))
	for _, f := range files {
		out = append(out, toDomain(f))
	}
	return out, nil
}

func (c *Client) SearchByName(ctx context.Context, pattern string) ([]domain.DriveFile, error) {
	files, err := c.list(ctx, fmt.Sprintf("name contains '%s' and trashed = false", escape(pattern)))
	if err != nil {
		return nil, err
	}
	out := make([]domain.DriveFile, 0, len(files))
	for _, f := range files {
		if f.MimeType == MimeTypeFolder {
			continue
		}
		out = append(out, toDomain(f))
	}
	return out, nil
}

func (c *Client) GetFile(ctx context.Context, fileID string) (*domain.DriveFile, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	f, err := c.files.Get(ctx, fileID)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.Wrap(domain.ErrDriveFileNotFound, err)
		}
		return nil, fmt.Errorf("failed to get drive file %s: %w", fileID, err)
	}
	df := toDomain(f)
	return &df, nil
}

// Download opens a file's content. Google Docs and Sheets are exported to
// docx and xlsx, and the returned file name carries the matching extension.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, *domain.DriveFile, error) {
	file, err := c.GetFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	ext, ok := supportedMimeTypes[file.MimeType]
	if !ok {
		return nil, nil, domain.NewDomainErrorWithCause(domain.ErrCodeUnsupportedInput, domain.ErrUnsupportedInput.Message,
			fmt.Errorf("drive file %s has unsupported type %s", fileID, file.MimeType))
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	var body io.ReadCloser
	switch file.MimeType {
	case MimeTypeGoogleDoc:
		body, err = c.files.Export(ctx, fileID, ExportMimeDOCX)
		file.MimeType = ExportMimeDOCX
	case MimeTypeGoogleSheet:
		body, err = c.files.Export(ctx, fileID, ExportMimeXLSX)
		file.MimeType = ExportMimeXLSX
	default:
		body, err = c.files.Download(ctx, fileID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to download drive file %s: %w", fileID, err)
	}

	exported := file.MimeType == ExportMimeDOCX || file.MimeType == ExportMimeXLSX
	if _, err := domain.DetectFileType(file.Name); err != nil || (exported && !strings.EqualFold(path.Ext(file.Name), ext)) {
		file.Name += ext
	}
	c.log.Info("drive file downloaded", "file_id", fileID, "name", file.Name)
	return body, file, nil
}

func (c *Client) list(ctx context.Context, query string) ([]*drive.File, error) {
	var (
		out       []*drive.File
		pageToken string
	)
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := c.files.List(ctx, query, pageToken)
		if err != nil {
			return nil, fmt.Errorf("failed to list drive files: %w", err)
		}
		out = append(out, page.Files...)
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func toDomain(f *drive.File) domain.DriveFile {
	df := domain.DriveFile{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		WebViewLink: f.WebViewLink,
		Parents:     f.Parents,
	}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		df.ModifiedTime = t
	}
	return df
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

type filesService struct {
	svc *drive.Service
}

func (s *filesService) List(ctx context.Context, query string, pageToken string) (*drive.FileList, error) {
	call := s.svc.Files.List().
		Context(ctx).
		Q(query).
		PageSize(100).
		Fields("nextPageToken, files(" + fileFields + ")").
		OrderBy("modifiedTime desc")
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (s *filesService) Get(ctx context.Context, fileID string) (*drive.File, error) {
	return s.svc.Files.Get(fileID).Context(ctx).Fields(fileFields).Do()
}

func (s *filesService) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := s.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (s *filesService) Export(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	resp, err := s.svc.Files.Export(fileID, mimeType).Context(ctx).Download()
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
