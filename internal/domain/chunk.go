package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ChunkType tags what kind of content a chunk carries
type ChunkType string

const (
	ChunkTypeText  ChunkType = "text"
	ChunkTypeTable ChunkType = "table"
	ChunkTypeImage ChunkType = "image"
)

// Metadata keys shared by the chunker, the index and the report synthesizer.
const (
	MetaDocumentID = "document_id"
	MetaFileType   = "file_type"
	MetaTable      = "table"
	MetaImage      = "image"
)

// Chunk is the unit of retrievable text for a document.
type Chunk struct {
	DocumentID   string
	ChunkIndex   int
	Content      string
	ChunkType    ChunkType
	PageNumber   int // 0 when unknown
	SectionTitle string
	Metadata     map[string]any

	// Offset is the rune offset of Content within the extracted text. It is
	// only meaningful for text chunks and is not persisted.
	Offset int
}

// PassageID returns the composite index id for a document chunk.
func PassageID(documentID string, chunkIndex int) string {
	return documentID + ":" + strconv.Itoa(chunkIndex)
}

// ParsePassageID splits a composite id back into document id and chunk index.
func ParsePassageID(id string) (string, int, error) {
	sep := strings.LastIndex(id, ":")
	if sep <= 0 || sep == len(id)-1 {
		return "", 0, fmt.Errorf("malformed passage id %q", id)
	}
	idx, err := strconv.Atoi(id[sep+1:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed passage id %q: %w", id, err)
	}
	return id[:sep], idx, nil
}

// ID returns the composite index id for the chunk.
func (c Chunk) ID() string {
	return PassageID(c.DocumentID, c.ChunkIndex)
}

// EffectiveType returns the chunk type, defaulting to text.
func (c Chunk) EffectiveType() ChunkType {
	if c.ChunkType == "" {
		return ChunkTypeText
	}
	return c.ChunkType
}

// IsTable reports whether the chunk is a table by type or by metadata marker.
func (c Chunk) IsTable() bool {
	if c.ChunkType == ChunkTypeTable {
		return true
	}
	_, ok := c.Metadata[MetaTable]
	return ok
}

// IsImage reports whether the chunk is an image by type or by metadata marker.
func (c Chunk) IsImage() bool {
	if c.ChunkType == ChunkTypeImage {
		return true
	}
	_, ok := c.Metadata[MetaImage]
	return ok
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}
	if c.DocumentID == "" {
		return fmt.Errorf("chunk DocumentID is required")
	}
	if c.ChunkIndex < 0 {
		return fmt.Errorf("chunk ChunkIndex cannot be negative")
	}
	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("chunk Content cannot be empty")
	}
	if !IsValidChunkType(c.EffectiveType()) {
		return NewDomainErrorWithCause(ErrCodeUnsupportedInput, ErrUnsupportedInput.Message,
			fmt.Errorf("unknown chunk type %q", c.ChunkType))
	}
	return nil
}

// IsValidChunkType checks if a ChunkType is known
func IsValidChunkType(t ChunkType) bool {
	switch t {
	case ChunkTypeText, ChunkTypeTable, ChunkTypeImage:
		return true
	}
	return false
}

// NormalizeMetadata returns a copy of meta in which every value is a scalar.
// Nested values are stringified as JSON and nil values are dropped.
func NormalizeMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if v == nil {
			continue
		}
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	case fmt.Stringer:
		return t.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// MetadataString reads a metadata value as a string.
func MetadataString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
