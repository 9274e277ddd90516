package handlers

import (
	"time"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

type DocumentResponse struct {
	ID               string         `json:"id"`
	Filename         string         `json:"filename"`
	OriginalFilename string         `json:"original_filename"`
	FileType         string         `json:"file_type"`
	FileSize         int64          `json:"file_size"`
	Source           string         `json:"source"`
	DriveFileID      string         `json:"drive_file_id,omitempty"`
	DriveURL         string         `json:"drive_url,omitempty"`
	Status           string         `json:"status"`
	Error            string         `json:"error,omitempty"`
	ChunkCount       int            `json:"chunk_count"`
	Metadata         map[string]any `json:"metadata"`
	UploadedAt       string         `json:"uploaded_at"`
	ProcessedAt      string         `json:"processed_at,omitempty"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:               d.ID,
		Filename:         d.Filename,
		OriginalFilename: d.OriginalFilename,
		FileType:         string(d.FileType),
		FileSize:         d.FileSize,
		Source:           string(d.Source),
		DriveFileID:      d.DriveFileID,
		DriveURL:         d.DriveURL,
		Status:           string(d.Status),
		Error:            d.Error,
		ChunkCount:       d.ChunkCount,
		Metadata:         d.Metadata,
		UploadedAt:       formatTime(d.UploadedAt),
		ProcessedAt:      formatTimePtr(d.ProcessedAt),
	}
}

type ChunkResponse struct {
	ChunkIndex   int            `json:"chunk_index"`
	ChunkType    string         `json:"chunk_type"`
	Content      string         `json:"content"`
	PageNumber   int            `json:"page_number,omitempty"`
	SectionTitle string         `json:"section_title,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func chunkToResponse(c domain.Chunk) ChunkResponse {
	return ChunkResponse{
		ChunkIndex:   c.ChunkIndex,
		ChunkType:    string(c.ChunkType),
		Content:      c.Content,
		PageNumber:   c.PageNumber,
		SectionTitle: c.SectionTitle,
		Metadata:     c.Metadata,
	}
}

type PassageResponse struct {
	ID           string  `json:"id"`
	DocumentID   string  `json:"document_id"`
	ChunkIndex   int     `json:"chunk_index"`
	ChunkType    string  `json:"chunk_type"`
	Content      string  `json:"content"`
	PageNumber   int     `json:"page_number,omitempty"`
	SectionTitle string  `json:"section_title,omitempty"`
	Similarity   float64 `json:"similarity"`
	Rank         int     `json:"rank"`
}

func passageToResponse(p domain.ScoredPassage) PassageResponse {
	c := p.Passage.Chunk
	return PassageResponse{
		ID:           p.Passage.ID,
		DocumentID:   c.DocumentID,
		ChunkIndex:   c.ChunkIndex,
		ChunkType:    string(c.ChunkType),
		Content:      c.Content,
		PageNumber:   c.PageNumber,
		SectionTitle: c.SectionTitle,
		Similarity:   p.Similarity,
		Rank:         p.Rank,
	}
}

type AnswerResponse struct {
	Answer      string            `json:"answer"`
	Citations   []domain.Citation `json:"citations"`
	Confidence  float64           `json:"confidence"`
	SourcesUsed int               `json:"sources_used"`
	NoEvidence  bool              `json:"no_evidence"`
}

func answerToResponse(r domain.AnswerResult) AnswerResponse {
	citations := r.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	return AnswerResponse{
		Answer:      r.Answer,
		Citations:   citations,
		Confidence:  r.Confidence,
		SourcesUsed: r.SourcesUsed,
		NoEvidence:  r.NoEvidence,
	}
}

type MessageResponse struct {
	ID        string            `json:"id"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
	Citations []domain.Citation `json:"citations,omitempty"`
	CreatedAt string            `json:"created_at"`
}

func messageToResponse(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		Metadata:  m.Metadata,
		Citations: m.Citations,
		CreatedAt: formatTime(m.CreatedAt),
	}
}

type ReportResponse struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Sections    []domain.SectionSpec   `json:"sections"`
	DocumentIDs []string               `json:"document_ids"`
	Status      string                 `json:"status"`
	Error       string                 `json:"error,omitempty"`
	Content     []domain.SectionResult `json:"content,omitempty"`
	CreatedAt   string                 `json:"created_at"`
	CompletedAt string                 `json:"completed_at,omitempty"`
}

func reportToResponse(r *domain.Report) *ReportResponse {
	docIDs := r.DocumentIDs
	if docIDs == nil {
		docIDs = []string{}
	}
	return &ReportResponse{
		ID:          r.ID,
		Title:       r.Title,
		Sections:    r.Sections,
		DocumentIDs: docIDs,
		Status:      string(r.Status),
		Error:       r.Error,
		Content:     r.Content,
		CreatedAt:   formatTime(r.CreatedAt),
		CompletedAt: formatTimePtr(r.CompletedAt),
	}
}

type DriveFileResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	WebViewLink  string `json:"web_view_link,omitempty"`
	ModifiedTime string `json:"modified_time,omitempty"`
}

func driveFileToResponse(f domain.DriveFile) DriveFileResponse {
	resp := DriveFileResponse{
		ID:          f.ID,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		WebViewLink: f.WebViewLink,
	}
	if !f.ModifiedTime.IsZero() {
		resp.ModifiedTime = formatTime(f.ModifiedTime)
	}
	return resp
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
