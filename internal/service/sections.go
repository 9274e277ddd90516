package service

import (
	"strings"
	"unicode/utf8"
)

var medicalHeaders = []string{
	"introduction", "background", "overview",
	"clinical findings", "findings", "results", "observations",
	"patient data", "patient information", "demographics",
	"diagnosis", "diagnostic", "assessment",
	"treatment", "therapy", "intervention", "medication",
	"summary", "conclusion", "conclusions",
	"recommendations", "next steps",
}

const maxHeaderRunes = 100

type sectionHeader struct {
	offset int
	title  string
}

// SectionIndex lists header lines of a text by rune offset, in order.
type SectionIndex []sectionHeader

// TagSections scans text line by line for medical section headers.
func TagSections(text string) SectionIndex {
	var idx SectionIndex
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if title, ok := headerTitle(line); ok {
			lead := utf8.RuneCountInString(line) - utf8.RuneCountInString(strings.TrimLeft(line, " \t\r"))
			idx = append(idx, sectionHeader{offset: offset + lead, title: title})
		}
		offset += utf8.RuneCountInString(line)
	}
	return idx
}

func headerTitle(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || utf8.RuneCountInString(trimmed) >= maxHeaderRunes {
		return "", false
	}
	lower := strings.ToLower(trimmed)
	for _, h := range medicalHeaders {
		if strings.HasPrefix(lower, h) {
			return strings.TrimSpace(strings.TrimRight(trimmed, ":")), true
		}
	}
	return "", false
}

// TitleAt returns the header in effect at start, or failing that the first
// header that begins inside [start, end).
func (s SectionIndex) TitleAt(start, end int) string {
	current := ""
	for _, h := range s {
		if h.offset <= start {
			current = h.title
			continue
		}
		if current == "" && h.offset < end {
			return h.title
		}
		break
	}
	return current
}
