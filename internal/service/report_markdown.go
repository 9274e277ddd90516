package service

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

// RenderMarkdown renders a finished report. docs resolves cited document ids
// to their records for display names and Drive links; missing entries fall
// back to the raw id.
func RenderMarkdown(report *domain.Report, sections []domain.SectionResult, docs map[string]*domain.Document, generatedAt time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", report.Title)

	citations := mergeCitations(sections)

	b.WriteString("## Report Information\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Generated Date | %s |\n", generatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "| Documents Used | %d |\n", len(citations))
	fmt.Fprintf(&b, "| Total Pages Analyzed | %d |\n", countPages(citations))
	fmt.Fprintf(&b, "| Sections | %d |\n", len(sections))
	b.WriteString("| Report Type | Medical Report |\n\n")

	for _, s := range sections {
		fmt.Fprintf(&b, "## %s\n\n", s.Name)
		if content := strings.TrimSpace(s.Content); content != "" {
			b.WriteString(content)
			b.WriteString("\n\n")
		}
		for i, t := range s.Tables {
			fmt.Fprintf(&b, "### Table %d\n\n", i+1)
			b.WriteString(markdownTable(t.Content))
			b.WriteString("\n")
			b.WriteString(sourceLine(t, docs))
		}
		for i, img := range s.Images {
			fmt.Fprintf(&b, "### Figure %d\n\n", i+1)
			fmt.Fprintf(&b, "Content: %s\n\n", img.Content)
			b.WriteString(sourceLine(img, docs))
		}
	}

	if len(citations) > 0 {
		b.WriteString("## References and Citations\n\n")
		for i, c := range citations {
			line := fmt.Sprintf("%d. Document %s", i+1, documentLabel(c.DocumentID, docs))
			if len(c.Pages) > 0 {
				line += " (Pages: " + joinInts(c.Pages) + ")"
			}
			if len(c.Sections) > 0 {
				line += " - Sections: " + strings.Join(c.Sections, ", ")
			}
			if d, ok := docs[c.DocumentID]; ok && d.DriveURL != "" {
				line += " - Available at: " + d.DriveURL
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return b.String()
}

// mergeCitations unions per-section citations by document, in first-seen order.
func mergeCitations(sections []domain.SectionResult) []domain.Citation {
	var merged []domain.Citation
	index := make(map[string]int)
	for _, s := range sections {
		for _, c := range s.Citations {
			i, ok := index[c.DocumentID]
			if !ok {
				index[c.DocumentID] = len(merged)
				merged = append(merged, domain.Citation{
					DocumentID: c.DocumentID,
					Pages:      slices.Clone(c.Pages),
					Sections:   slices.Clone(c.Sections),
				})
				continue
			}
			m := &merged[i]
			for _, p := range c.Pages {
				if !slices.Contains(m.Pages, p) {
					m.Pages = append(m.Pages, p)
				}
			}
			for _, sec := range c.Sections {
				if !slices.Contains(m.Sections, sec) {
					m.Sections = append(m.Sections, sec)
				}
			}
		}
	}
	for i := range merged {
		slices.Sort(merged[i].Pages)
	}
	return merged
}

func countPages(citations []domain.Citation) int {
	n := 0
	for _, c := range citations {
		n += len(c.Pages)
	}
	return n
}

func markdownTable(content string) string {
	var rows [][]string
	width := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := strings.Split(line, "|")
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		rows = append(rows, cells)
		width = max(width, len(cells))
	}
	if len(rows) == 0 {
		return ""
	}

	var b strings.Builder
	for i, row := range rows {
		for len(row) < width {
			row = append(row, "")
		}
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		if i == 0 {
			b.WriteString("|" + strings.Repeat("---|", width) + "\n")
		}
	}
	return b.String()
}

func sourceLine(el domain.SectionElement, docs map[string]*domain.Document) string {
	line := "*Source: Document " + documentLabel(el.DocumentID, docs)
	if el.PageNumber > 0 {
		line += ", Page " + strconv.Itoa(el.PageNumber)
	}
	return line + "*\n\n"
}

func documentLabel(id string, docs map[string]*domain.Document) string {
	if d, ok := docs[id]; ok && d.OriginalFilename != "" {
		return fmt.Sprintf("%s (%s)", d.OriginalFilename, id)
	}
	return id
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
