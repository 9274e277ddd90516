package service

import (
	"maps"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

// ChunkConfig controls passage size, measured in characters.
type ChunkConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    1000,
		Overlap: 200,
	}
}

func (c ChunkConfig) normalized() ChunkConfig {
	if c.Size <= 0 {
		return DefaultChunkConfig()
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.Size {
		c.Overlap = c.Size / 5
	}
	return c
}

// separators in order of preference: paragraph, line, sentence, word, character.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits extracted text into overlapping passages.
type Chunker struct {
	cfg ChunkConfig
}

func NewChunker(cfg ChunkConfig) *Chunker {
	return &Chunker{cfg: cfg.normalized()}
}

func (c *Chunker) Config() ChunkConfig {
	return c.cfg
}

type textSpan struct {
	offset int
	text   string
}

// Chunk splits text into passages carrying a copy of meta.
// The document id is taken from meta[domain.MetaDocumentID].
func (c *Chunker) Chunk(text string, meta map[string]any) []domain.Chunk {
	spans := c.split(text)
	if len(spans) == 0 {
		return []domain.Chunk{}
	}

	docID := domain.MetadataString(meta, domain.MetaDocumentID)
	chunks := make([]domain.Chunk, 0, len(spans))
	for _, s := range spans {
		chunks = append(chunks, domain.Chunk{
			DocumentID: docID,
			ChunkIndex: len(chunks),
			Content:    s.text,
			ChunkType:  domain.ChunkTypeText,
			Metadata:   maps.Clone(meta),
			Offset:     s.offset,
		})
	}
	return chunks
}

// split returns contiguous slices of text with their rune offsets.
func (c *Chunker) split(text string) []textSpan {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	lead := utf8.RuneCountInString(text) - utf8.RuneCountInString(strings.TrimLeftFunc(text, unicode.IsSpace))

	pieces := splitPieces(trimmed, c.cfg.Size-c.cfg.Overlap, separators)
	spans := mergePieces(pieces, c.cfg.Size, c.cfg.Overlap)

	out := spans[:0]
	for _, s := range spans {
		if strings.TrimSpace(s.text) == "" {
			continue
		}
		s.offset += lead
		out = append(out, s)
	}
	return out
}

// splitPieces breaks text into pieces no longer than limit runes. Separators
// stay attached to the end of the preceding piece.
func splitPieces(text string, limit int, seps []string) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	for i, sep := range seps {
		if sep == "" {
			break
		}
		if !strings.Contains(text, sep) {
			continue
		}
		var out []string
		for _, part := range strings.SplitAfter(text, sep) {
			if part == "" {
				continue
			}
			if utf8.RuneCountInString(part) <= limit {
				out = append(out, part)
				continue
			}
			out = append(out, splitPieces(part, limit, seps[i+1:])...)
		}
		return out
	}

	out := make([]string, 0, len(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

// mergePieces packs pieces greedily into chunks of at most size runes. Each
// new chunk starts with the last overlap runes of the previous one.
func mergePieces(pieces []string, size, overlap int) []textSpan {
	var spans []textSpan
	var cur []rune
	start := 0

	for _, p := range pieces {
		pr := []rune(p)
		if len(cur) > 0 && len(cur)+len(pr) > size {
			spans = append(spans, textSpan{offset: start, text: string(cur)})
			keep := min(overlap, len(cur))
			start += len(cur) - keep
			cur = append([]rune(nil), cur[len(cur)-keep:]...)
		}
		cur = append(cur, pr...)
	}
	if len(cur) > 0 {
		spans = append(spans, textSpan{offset: start, text: string(cur)})
	}
	return spans
}

// BuildChunks produces the full chunk list for one extraction: text chunks
// with page and section attribution, then table chunks, then image chunks,
// numbered 0..n-1.
func (c *Chunker) BuildChunks(documentID string, fileType domain.FileType, ext *domain.Extraction, docMeta map[string]any) []domain.Chunk {
	if ext == nil {
		return []domain.Chunk{}
	}

	base := make(map[string]any, len(ext.Metadata)+len(docMeta)+2)
	maps.Copy(base, ext.Metadata)
	maps.Copy(base, docMeta)
	base[domain.MetaDocumentID] = documentID
	base[domain.MetaFileType] = string(fileType)
	base = domain.NormalizeMetadata(base)

	sections := TagSections(ext.Text)

	chunks := c.Chunk(ext.Text, base)
	for i := range chunks {
		end := chunks[i].Offset + utf8.RuneCountInString(chunks[i].Content)
		chunks[i].PageNumber = ext.PageAt(chunks[i].Offset)
		chunks[i].SectionTitle = sections.TitleAt(chunks[i].Offset, end)
	}

	for _, table := range ext.Tables {
		meta := maps.Clone(base)
		meta[domain.MetaTable] = table.Name
		for _, tc := range c.Chunk(table.Text(), meta) {
			tc.ChunkType = domain.ChunkTypeTable
			tc.PageNumber = table.PageNumber
			tc.Offset = 0
			chunks = append(chunks, tc)
		}
	}

	for _, img := range ext.Images {
		meta := maps.Clone(base)
		meta[domain.MetaImage] = img.Name
		meta["format"] = img.Format
		meta["width"] = img.Width
		meta["height"] = img.Height
		chunks = append(chunks, domain.Chunk{
			DocumentID: documentID,
			Content:    img.Description(),
			ChunkType:  domain.ChunkTypeImage,
			PageNumber: img.PageNumber,
			Metadata:   meta,
		})
	}

	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
	return chunks
}
