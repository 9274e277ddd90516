package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloo-solutions/meddocs/internal/pagination"
)

// ProcessingStatus is the lifecycle state of a document or report.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusGenerating ProcessingStatus = "generating"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Terminal reports whether no further processing will change the status.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FileType is the normalized document format.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
	FileTypeODT  FileType = "odt"
	FileTypeRTF  FileType = "rtf"
	FileTypeTXT  FileType = "txt"
	FileTypeMD   FileType = "md"
	FileTypeXLSX FileType = "xlsx"
	FileTypeCSV  FileType = "csv"
	FileTypePNG  FileType = "png"
	FileTypeJPEG FileType = "jpeg"
	FileTypeGIF  FileType = "gif"
)

// DocumentSource records where a document came from.
type DocumentSource string

const (
	SourceUpload      DocumentSource = "upload"
	SourceGoogleDrive DocumentSource = "google_drive"
)

// Document is an ingested source file and its processing state.
type Document struct {
	ID               string
	Filename         string
	OriginalFilename string
	StorageKey       string
	FileType         FileType
	FileSize         int64
	ContentType      string
	Source           DocumentSource
	DriveFileID      string
	DriveURL         string
	Status           ProcessingStatus
	Error            string
	ChunkCount       int
	Metadata         map[string]any
	UploadedAt       time.Time
	UpdatedAt        time.Time
	ProcessedAt      *time.Time
}

var extensionTypes = map[string]FileType{
	".pdf":  FileTypePDF,
	".docx": FileTypeDOCX,
	".odt":  FileTypeODT,
	".rtf":  FileTypeRTF,
	".txt":  FileTypeTXT,
	".md":   FileTypeMD,
	".xlsx": FileTypeXLSX,
	".csv":  FileTypeCSV,
	".png":  FileTypePNG,
	".jpg":  FileTypeJPEG,
	".jpeg": FileTypeJPEG,
	".gif":  FileTypeGIF,
}

// DetectFileType maps a filename extension to a supported FileType.
func DetectFileType(filename string) (FileType, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	ft, ok := extensionTypes[ext]
	if !ok {
		return "", NewDomainErrorWithCause(ErrCodeUnsupportedInput, ErrUnsupportedInput.Message,
			fmt.Errorf("unsupported file type %q", ext))
	}
	return ft, nil
}

// IsImage reports whether the file type is a raster image.
func (f FileType) IsImage() bool {
	switch f {
	case FileTypePNG, FileTypeJPEG, FileTypeGIF:
		return true
	}
	return false
}

// Extension returns the canonical extension including the leading dot.
func (f FileType) Extension() string {
	if f == FileTypeJPEG {
		return ".jpg"
	}
	return "." + string(f)
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}
	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}
	if d.StorageKey == "" {
		return fmt.Errorf("document StorageKey is required")
	}
	if _, err := DetectFileType(d.Filename); err != nil {
		return err
	}
	if !IsValidDocumentStatus(d.Status) {
		return fmt.Errorf("document Status is invalid: %s", d.Status)
	}
	if d.FileSize < 0 {
		return fmt.Errorf("document FileSize cannot be negative")
	}
	return nil
}

// IsValidDocumentStatus checks a status against the document lifecycle.
func IsValidDocumentStatus(s ProcessingStatus) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsValidReportStatus checks a status against the report lifecycle.
func IsValidReportStatus(s ProcessingStatus) bool {
	switch s {
	case StatusPending, StatusGenerating, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// DocumentFilter narrows document listings. Cursor, when set, resumes a
// newest-first listing after the given document.
type DocumentFilter struct {
	Status ProcessingStatus
	Limit  int
	Cursor *pagination.Cursor
}

// Extraction is the output of a format extractor for one file.
type Extraction struct {
	Text     string
	Pages    []PageSpan
	Tables   []Table
	Images   []Image
	Metadata map[string]any
}

// PageSpan marks where a page starts within Extraction.Text, as a rune offset.
type PageSpan struct {
	Number int
	Offset int
}

// Table is a structured table pulled out of a document.
type Table struct {
	Name       string
	PageNumber int
	Rows       [][]string
}

// Text renders the table with cells joined by " | " and one row per line.
// Rows without any non-blank cell are skipped.
func (t Table) Text() string {
	var b strings.Builder
	for _, row := range t.Rows {
		blank := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				blank = false
				break
			}
		}
		if blank {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(row, " | "))
	}
	return b.String()
}

// Image describes an embedded or standalone image.
type Image struct {
	Name       string
	PageNumber int
	Format     string
	Width      int
	Height     int
}

// Description is the indexable text for an image.
func (i Image) Description() string {
	desc := "Image " + i.Name
	if i.Format != "" || i.Width > 0 {
		desc += fmt.Sprintf(" (%s, %dx%d)", i.Format, i.Width, i.Height)
	}
	return desc
}

// PageAt returns the page number containing a rune offset, or 0 if unknown.
func (e *Extraction) PageAt(offset int) int {
	page := 0
	for _, span := range e.Pages {
		if span.Offset > offset {
			break
		}
		page = span.Number
	}
	return page
}
