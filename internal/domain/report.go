package domain

import (
	"fmt"
	"strings"
	"time"
)

// SectionSpec is one requested report section.
type SectionSpec struct {
	Name         string `json:"name"`
	Requirements string `json:"requirements,omitempty"`
}

// Report is a multi-section document synthesized from indexed passages.
type Report struct {
	ID          string
	Title       string
	Sections    []SectionSpec
	DocumentIDs []string
	Content     []SectionResult
	FilePath    string
	Status      ProcessingStatus
	Error       string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// ValidateReport validates a Report instance
func ValidateReport(r *Report) error {
	if r == nil {
		return fmt.Errorf("report cannot be nil")
	}
	if r.ID == "" {
		return fmt.Errorf("report ID is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return ErrMissingRequiredField
	}
	if len(r.Sections) == 0 {
		return ErrNoReportSections
	}
	for _, s := range r.Sections {
		if strings.TrimSpace(s.Name) == "" {
			return ErrInvalidReportSection
		}
	}
	if !IsValidReportStatus(r.Status) {
		return fmt.Errorf("report Status is invalid: %s", r.Status)
	}
	return nil
}
