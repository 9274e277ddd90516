package service

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

func runeSlice(s string, start, n int) string {
	r := []rune(s)
	return string(r[start : start+n])
}

func assertChunkInvariants(t *testing.T, text string, chunks []domain.Chunk, cfg ChunkConfig) {
	t.Helper()
	for i, c := range chunks {
		n := utf8.RuneCountInString(c.Content)
		assert.LessOrEqual(t, n, cfg.Size, "chunk %d too long", i)
		assert.NotEmpty(t, strings.TrimSpace(c.Content))
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, c.Content, runeSlice(text, c.Offset, n), "chunk %d is not a slice of the source", i)

		if i > 0 {
			prev := chunks[i-1]
			prevEnd := prev.Offset + utf8.RuneCountInString(prev.Content)
			assert.Equal(t, prevEnd-cfg.Overlap, c.Offset, "chunk %d overlap", i)
		}
	}
}

func TestChunker_RepeatedWordsProducesThreeOverlappingChunks(t *testing.T) {
	text := strings.Repeat("abcd ", 500)
	chunker := NewChunker(ChunkConfig{Size: 1000, Overlap: 200})

	chunks := chunker.Chunk(text, map[string]any{domain.MetaDocumentID: "doc-1"})
	require.Len(t, chunks, 3)

	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[0].Content))
	assert.Equal(t, 1000, utf8.RuneCountInString(chunks[1].Content))
	assert.Equal(t, 899, utf8.RuneCountInString(chunks[2].Content))

	assert.Equal(t, 0, chunks[0].Offset)
	assert.Equal(t, 800, chunks[1].Offset)
	assert.Equal(t, 1600, chunks[2].Offset)

	tail := []rune(chunks[0].Content)
	assert.True(t, strings.HasPrefix(chunks[1].Content, string(tail[len(tail)-200:])))

	for _, c := range chunks {
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.Equal(t, domain.ChunkTypeText, c.ChunkType)
	}
	assertChunkInvariants(t, text, chunks, chunker.Config())
}

func TestChunker_EmptyText(t *testing.T) {
	chunker := NewChunker(DefaultChunkConfig())
	assert.Empty(t, chunker.Chunk("", nil))
	assert.Empty(t, chunker.Chunk(" \n\n\t ", nil))
	assert.NotNil(t, chunker.Chunk("", nil))
}

func TestChunker_ShortTextIsSingleChunk(t *testing.T) {
	chunker := NewChunker(DefaultChunkConfig())
	chunks := chunker.Chunk("  Blood pressure 120/80 mmHg.  ", nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Blood pressure 120/80 mmHg.", chunks[0].Content)
	assert.Equal(t, 2, chunks[0].Offset)
}

func TestChunker_PrefersParagraphBoundaries(t *testing.T) {
	para := strings.Repeat("x", 30)
	text := para + "\n\n" + para + "\n\n" + para
	chunker := NewChunker(ChunkConfig{Size: 40, Overlap: 0})

	chunks := chunker.Chunk(text, nil)
	require.Len(t, chunks, 3)
	assert.Equal(t, para+"\n\n", chunks[0].Content)
	assert.Equal(t, para+"\n\n", chunks[1].Content)
	assert.Equal(t, para, chunks[2].Content)
}

func TestChunker_FallsBackToCharacters(t *testing.T) {
	text := strings.Repeat("é", 95)
	cfg := ChunkConfig{Size: 30, Overlap: 10}
	chunker := NewChunker(cfg)

	chunks := chunker.Chunk(text, nil)
	require.NotEmpty(t, chunks)
	assertChunkInvariants(t, text, chunks, cfg)

	last := chunks[len(chunks)-1]
	assert.Equal(t, 95, last.Offset+utf8.RuneCountInString(last.Content))
}

func TestChunker_MixedSeparatorsKeepInvariants(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Patient reported mild chest pain after exercise. ")
		if i%3 == 0 {
			b.WriteString("\n")
		}
		if i%7 == 0 {
			b.WriteString("\n\n")
		}
	}
	text := b.String()
	cfg := ChunkConfig{Size: 180, Overlap: 40}

	chunks := NewChunker(cfg).Chunk(text, nil)
	require.Greater(t, len(chunks), 5)
	assertChunkInvariants(t, text, chunks, cfg)
}

func TestChunker_LongWhitespaceRunIsSkipped(t *testing.T) {
	text := "Medication list reviewed.\n" + strings.Repeat(" ", 1200) + "Follow up in two weeks."
	cfg := ChunkConfig{Size: 300, Overlap: 50}

	chunks := NewChunker(cfg).Chunk(text, nil)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Contains(t, chunks[0].Content, "Medication list reviewed.")
	assert.Contains(t, chunks[len(chunks)-1].Content, "Follow up in two weeks.")

	broken := 0
	for i, c := range chunks {
		n := utf8.RuneCountInString(c.Content)
		assert.NotEmpty(t, strings.TrimSpace(c.Content), "chunk %d is blank", i)
		assert.Equal(t, c.Content, runeSlice(text, c.Offset, n), "chunk %d is not a slice of the source", i)
		if i == 0 {
			continue
		}
		prev := chunks[i-1]
		want := prev.Offset + utf8.RuneCountInString(prev.Content) - cfg.Overlap
		if c.Offset == want {
			continue
		}
		// Overlap only breaks where a blank window was dropped in between.
		broken++
		require.Greater(t, c.Offset, want, "chunk %d", i)
		assert.Empty(t, strings.TrimSpace(runeSlice(text, want, c.Offset-want)), "chunk %d skipped non-blank text", i)
	}
	assert.Equal(t, 1, broken)
}

func TestChunkConfig_Normalization(t *testing.T) {
	assert.Equal(t, DefaultChunkConfig(), NewChunker(ChunkConfig{Size: 0, Overlap: 50}).Config())
	assert.Equal(t, ChunkConfig{Size: 100, Overlap: 20}, NewChunker(ChunkConfig{Size: 100, Overlap: 100}).Config())
	assert.Equal(t, ChunkConfig{Size: 100, Overlap: 0}, NewChunker(ChunkConfig{Size: 100, Overlap: -5}).Config())
}

func TestChunker_MetadataCopiedPerChunk(t *testing.T) {
	meta := map[string]any{domain.MetaDocumentID: "doc-1", "author": "Dr. Lee"}
	chunks := NewChunker(ChunkConfig{Size: 20, Overlap: 5}).Chunk(strings.Repeat("word ", 20), meta)
	require.Greater(t, len(chunks), 1)

	chunks[0].Metadata["author"] = "changed"
	assert.Equal(t, "Dr. Lee", chunks[1].Metadata["author"])
	assert.Equal(t, "Dr. Lee", meta["author"])
}

func TestBuildChunks_PagesSectionsTablesImages(t *testing.T) {
	text := "Overview of visit\n\nDiagnosis: flu"
	ext := &domain.Extraction{
		Text:  text,
		Pages: []domain.PageSpan{{Number: 1, Offset: 0}, {Number: 2, Offset: 19}},
		Tables: []domain.Table{{
			Name:       "Sheet: Labs",
			PageNumber: 2,
			Rows:       [][]string{{"Test", "Value"}, {"WBC", "11.2"}},
		}},
		Images:   []domain.Image{{Name: "xray.png", Format: "png", Width: 640, Height: 480}},
		Metadata: map[string]any{"page_count": 2},
	}
	chunker := NewChunker(ChunkConfig{Size: 30, Overlap: 0})

	chunks := chunker.BuildChunks("doc-1", domain.FileTypePDF, ext, map[string]any{"source": "upload"})
	require.Len(t, chunks, 4)

	assert.Equal(t, "Overview of visit\n\n", chunks[0].Content)
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, "Overview of visit", chunks[0].SectionTitle)

	assert.Equal(t, "Diagnosis: flu", chunks[1].Content)
	assert.Equal(t, 2, chunks[1].PageNumber)
	assert.Equal(t, "Diagnosis: flu", chunks[1].SectionTitle)

	assert.Equal(t, domain.ChunkTypeTable, chunks[2].ChunkType)
	assert.Equal(t, "Test | Value\nWBC | 11.2", chunks[2].Content)
	assert.Equal(t, "Sheet: Labs", chunks[2].Metadata[domain.MetaTable])
	assert.Equal(t, 2, chunks[2].PageNumber)

	assert.Equal(t, domain.ChunkTypeImage, chunks[3].ChunkType)
	assert.Equal(t, "Image xray.png (png, 640x480)", chunks[3].Content)
	assert.Equal(t, "xray.png", chunks[3].Metadata[domain.MetaImage])

	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.Equal(t, "pdf", c.Metadata[domain.MetaFileType])
		assert.Equal(t, "upload", c.Metadata["source"])
		assert.Equal(t, 2, c.Metadata["page_count"])
		assert.NoError(t, domain.ValidateChunk(&c))
	}
}

func TestBuildChunks_SpreadsheetHasOnlyTables(t *testing.T) {
	ext := &domain.Extraction{
		Tables: []domain.Table{
			{Name: "Sheet: A", Rows: [][]string{{"a", "1"}}},
			{Name: "Sheet: Empty", Rows: [][]string{{"", ""}}},
		},
	}
	chunks := NewChunker(DefaultChunkConfig()).BuildChunks("doc-2", domain.FileTypeXLSX, ext, nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.True(t, chunks[0].IsTable())
}

func TestBuildChunks_NilExtraction(t *testing.T) {
	assert.Empty(t, NewChunker(DefaultChunkConfig()).BuildChunks("doc", domain.FileTypeTXT, nil, nil))
}
