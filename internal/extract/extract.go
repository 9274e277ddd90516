// Package extract turns stored files into text, tables and image metadata.
package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dslipak/pdf"
	"github.com/lu4p/cat"
	"github.com/xuri/excelize/v2"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/logger"
)

const defaultPageTimeout = 10 * time.Second

// Extractor dispatches on file type. The zero value is not usable; call New.
type Extractor struct {
	pageTimeout time.Duration
	log         *logger.Logger
}

func New() *Extractor {
	return &Extractor{pageTimeout: defaultPageTimeout, log: logger.New("extract")}
}

func (e *Extractor) Extract(ctx context.Context, path string, fileType domain.FileType) (*domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		ext *domain.Extraction
		err error
	)
	switch fileType {
	case domain.FileTypePDF:
		ext, err = e.extractPDF(ctx, path)
	case domain.FileTypeDOCX, domain.FileTypeODT, domain.FileTypeRTF, domain.FileTypeTXT, domain.FileTypeMD:
		ext, err = extractText(path)
	case domain.FileTypeXLSX:
		ext, err = extractWorkbook(path)
	case domain.FileTypeCSV:
		ext, err = extractCSV(path)
	case domain.FileTypePNG, domain.FileTypeJPEG, domain.FileTypeGIF:
		ext, err = extractImage(path)
	default:
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUnsupportedInput, domain.ErrUnsupportedInput.Message,
			fmt.Errorf("no extractor for file type %q", fileType))
	}
	if err != nil {
		return nil, err
	}
	if ext.Metadata == nil {
		ext.Metadata = map[string]any{}
	}
	ext.Metadata["file_type"] = string(fileType)
	return ext, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (*domain.Extraction, error) {
	r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	ext := &domain.Extraction{Metadata: map[string]any{}}
	var (
		b      strings.Builder
		offset int
	)
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := e.pageText(ctx, page)
		if err != nil {
			e.log.Warn("skipping unreadable pdf page", "path", path, "page", i, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
			offset += 2
		}
		ext.Pages = append(ext.Pages, domain.PageSpan{Number: i, Offset: offset})
		b.WriteString(text)
		offset += utf8.RuneCountInString(text)
	}

	ext.Text = b.String()
	ext.Metadata["page_count"] = numPages
	return ext, nil
}

// pageText bounds a single page's text extraction, which can hang on
// malformed content streams.
func (e *Extractor) pageText(ctx context.Context, page pdf.Page) (string, error) {
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("pdf page panic: %v", r)}
			}
		}()
		text, err := page.GetPlainText(nil)
		ch <- result{text, err}
	}()

	timer := time.NewTimer(e.pageTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.text, r.err
	case <-timer.C:
		return "", errors.New("page extraction timed out")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func extractText(path string) (*domain.Extraction, error) {
	text, err := cat.File(path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", filepath.Ext(path), err)
	}
	return &domain.Extraction{
		Text:     strings.TrimSpace(text),
		Metadata: map[string]any{},
	}, nil
}

// extractWorkbook emits one table per sheet and no free text, so cell
// contents are indexed once.
func extractWorkbook(path string) (*domain.Extraction, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	ext := &domain.Extraction{Metadata: map[string]any{"sheet_count": len(sheets)}}
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		ext.Tables = append(ext.Tables, domain.Table{Name: "Sheet: " + sheet, Rows: rows})
	}
	return ext, nil
}

func extractCSV(path string) (*domain.Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}

	ext := &domain.Extraction{Metadata: map[string]any{"row_count": len(rows)}}
	if len(rows) > 0 {
		ext.Tables = []domain.Table{{Name: filepath.Base(path), Rows: rows}}
	}
	return ext, nil
}

func extractImage(path string) (*domain.Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	img := domain.Image{
		Name:   filepath.Base(path),
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}
	return &domain.Extraction{
		Images: []domain.Image{img},
		Metadata: map[string]any{
			"image_format": format,
			"width":        cfg.Width,
			"height":       cfg.Height,
		},
	}, nil
}
