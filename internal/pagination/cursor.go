package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// Cursor marks the last row of a newest-first page. The next page holds rows
// strictly older than (Timestamp, LastID).
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// PageResult is one page of a keyset listing.
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var (
	ErrInvalidCursor = errors.New("invalid cursor format")
)

// EncodeCursor returns an opaque token for the row (lastID, timestamp).
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := lastID + "|" + timestamp.UTC().Format(time.RFC3339Nano)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token from EncodeCursor. An empty token yields a nil
// cursor, meaning the first page.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	id, ts, ok := strings.Cut(string(decoded), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{LastID: id, Timestamp: timestamp}, nil
}

// NewPage builds a page from rows fetched with limit+1. The extra row only
// signals that another page exists and is dropped.
func NewPage[T any](rows []T, limit int, getID func(T) string, getTimestamp func(T) time.Time) *PageResult[T] {
	page := &PageResult[T]{Items: rows}
	if page.Items == nil {
		page.Items = []T{}
	}
	if limit <= 0 || len(rows) <= limit {
		return page
	}
	page.Items = rows[:limit]
	page.HasMore = true
	last := page.Items[limit-1]
	page.Cursor = EncodeCursor(getID(last), getTimestamp(last))
	return page
}
