package drive

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

type MockFiles struct {
	mock.Mock
}

func (m *MockFiles) List(ctx context.Context, query string, pageToken string) (*drive.FileList, error) {
	args := m.Called(ctx, query, pageToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drive.FileList), args.Error(1)
}

func (m *MockFiles) Get(ctx context.Context, fileID string) (*drive.File, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drive.File), args.Error(1)
}

func (m *MockFiles) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockFiles) Export(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	args := m.Called(ctx, fileID, mimeType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func body(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func TestClient_ListFiles_PaginatesAndFilters(t *testing.T) {
	ctx := context.Background()
	files := new(MockFiles)
	query := "trashed = false and 'folder-1' in parents and (mimeType = 'application/pdf')"
	files.On("List", ctx, query, "").Return(&drive.FileList{
		Files: []*drive.File{
			{Id: "1", Name: "discharge.pdf", MimeType: "application/pdf", ModifiedTime: "2024-05-01T10:00:00Z"},
			{Id: "2", Name: "sub", MimeType: MimeTypeFolder},
		},
		NextPageToken: "next",
	}, nil)
	files.On("List", ctx, query, "next").Return(&drive.FileList{
		Files: []*drive.File{{Id: "3", Name: "movie.mp4", MimeType: "video/mp4"}},
	}, nil)

	out, err := NewClientWithAPI(files).ListFiles(ctx, "folder-1", []string{"application/pdf"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0].ID)
	assert.Equal(t, 2024, out[0].ModifiedTime.Year())
	files.AssertExpectations(t)
}

func TestClient_SearchByName_EscapesQuotes(t *testing.T) {
	ctx := context.Background()
	files := new(MockFiles)
	files.On("List", ctx, `name contains 'O\'Brien' and trashed = false`, "").
		Return(&drive.FileList{Files: []*drive.File{{Id: "1", Name: "O'Brien labs.csv", MimeType: "text/csv"}}}, nil)

	out, err := NewClientWithAPI(files).SearchByName(ctx, "O'Brien")
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestClient_FolderContents_IncludesFolders(t *testing.T) {
	ctx := context.Background()
	files := new(MockFiles)
	files.On("List", ctx, "'f' in parents and trashed = false", "").
		Return(&drive.FileList{Files: []*drive.File{{Id: "sub", MimeType: MimeTypeFolder}, {Id: "a", MimeType: "text/plain"}}}, nil)

	out, err := NewClientWithAPI(files).FolderContents(ctx, "f")
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestClient_Download(t *testing.T) {
	ctx := context.Background()

	t.Run("exports google docs to docx", func(t *testing.T) {
		files := new(MockFiles)
		files.On("Get", ctx, "doc").Return(&drive.File{Id: "doc", Name: "Clinic notes", MimeType: MimeTypeGoogleDoc, WebViewLink: "https://drive/doc"}, nil)
		files.On("Export", ctx, "doc", ExportMimeDOCX).Return(body("docx-bytes"), nil)

		rc, file, err := NewClientWithAPI(files).Download(ctx, "doc")
		require.NoError(t, err)
		defer rc.Close()
		assert.Equal(t, "Clinic notes.docx", file.Name)
		assert.Equal(t, ExportMimeDOCX, file.MimeType)
		assert.Equal(t, "https://drive/doc", file.WebViewLink)
		data, _ := io.ReadAll(rc)
		assert.Equal(t, "docx-bytes", string(data))
	})

	t.Run("downloads binary files as is", func(t *testing.T) {
		files := new(MockFiles)
		files.On("Get", ctx, "img").Return(&drive.File{Id: "img", Name: "scan.jpeg", MimeType: "image/jpeg"}, nil)
		files.On("Download", ctx, "img").Return(body("jpg"), nil)

		rc, file, err := NewClientWithAPI(files).Download(ctx, "img")
		require.NoError(t, err)
		defer rc.Close()
		assert.Equal(t, "scan.jpeg", file.Name)
		files.AssertNotCalled(t, "Export", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects unsupported types", func(t *testing.T) {
		files := new(MockFiles)
		files.On("Get", ctx, "vid").Return(&drive.File{Id: "vid", Name: "a.mp4", MimeType: "video/mp4"}, nil)

		_, _, err := NewClientWithAPI(files).Download(ctx, "vid")
		assert.ErrorIs(t, err, domain.ErrUnsupportedInput)
	})

	t.Run("maps missing files to not found", func(t *testing.T) {
		files := new(MockFiles)
		files.On("Get", ctx, "gone").Return(nil, &googleapi.Error{Code: http.StatusNotFound, Message: "File not found"})

		_, _, err := NewClientWithAPI(files).Download(ctx, "gone")
		assert.ErrorIs(t, err, domain.ErrDriveFileNotFound)
	})

	t.Run("wraps api errors", func(t *testing.T) {
		files := new(MockFiles)
		files.On("Get", ctx, "x").Return(nil, errors.New("connection reset"))

		_, _, err := NewClientWithAPI(files).Download(ctx, "x")
		assert.ErrorContains(t, err, "failed to get drive file x")
	})
}

func TestNewClient_MissingCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), "/nonexistent/creds.json", "/nonexistent/token.json")
	assert.ErrorContains(t, err, "failed to read drive credentials")
}
