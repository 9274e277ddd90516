package service

import (
	"context"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/logger"
	"github.com/cloo-solutions/meddocs/internal/metrics"
	"github.com/cloo-solutions/meddocs/internal/telemetry"
)

type SectionConfig struct {
	TopK          int
	MinSimilarity float64
	Concurrency   int
}

func DefaultSectionConfig() SectionConfig {
	return SectionConfig{
		TopK:          10,
		MinSimilarity: 0.2,
		Concurrency:   4,
	}
}

// SectionSynthesizer builds report sections from retrieved passages.
type SectionSynthesizer struct {
	retriever PassageRetriever
	generator Generator
	cfg       SectionConfig
	log       *logger.Logger
}

func NewSectionSynthesizer(retriever PassageRetriever, generator Generator, cfg SectionConfig) *SectionSynthesizer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &SectionSynthesizer{
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
		log:       logger.New("synthesizer"),
	}
}

// GenerateSections runs every section concurrently and returns results in
// request order. A failed section never aborts the others.
func (s *SectionSynthesizer) GenerateSections(ctx context.Context, specs []domain.SectionSpec, documentIDs []string) []domain.SectionResult {
	results := make([]domain.SectionResult, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, spec := range specs {
		g.Go(func() error {
			results[i] = s.GenerateSection(gctx, spec, documentIDs)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *SectionSynthesizer) GenerateSection(ctx context.Context, spec domain.SectionSpec, documentIDs []string) domain.SectionResult {
	passages := s.retriever.Retrieve(ctx, RetrieveRequest{
		Query:         sectionQuery(spec.Name),
		K:             s.cfg.TopK,
		MinSimilarity: s.cfg.MinSimilarity,
		DocumentIDs:   documentIDs,
	})
	return s.SynthesizeSection(ctx, spec, passages)
}

func (s *SectionSynthesizer) SynthesizeSection(ctx context.Context, spec domain.SectionSpec, passages []domain.ScoredPassage) domain.SectionResult {
	empty := domain.SectionResult{
		Name:      spec.Name,
		Citations: []domain.Citation{},
		Tables:    []domain.SectionElement{},
		Images:    []domain.SectionElement{},
	}

	if len(passages) == 0 {
		empty.Content = noSectionEvidence(spec.Name)
		return empty
	}

	ctx, span := telemetry.StartSpan(ctx, "report.section", telemetry.SpanAttributes{Operation: spec.Name})
	defer span.End()

	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: reportSystemPrompt},
		{Role: domain.RoleUser, Content: sectionPrompt(spec.Name, spec.Requirements, FormatContext(passages))},
	}

	start := time.Now()
	content, err := s.generator.Generate(ctx, messages)
	metrics.CaptureExecutionMetrics("generator", time.Since(start))
	metrics.RecordGeneratorCall("section", err)
	if err != nil {
		span.SetError(err)
		s.log.Error("section generation failed", "section", spec.Name, "error", domain.Wrap(domain.ErrGenerationFailure, err))
		empty.Content = sectionFailure(spec.Name)
		empty.Failed = true
		return empty
	}

	result := domain.SectionResult{
		Name:      spec.Name,
		Content:   content,
		Citations: domain.BuildCitations(passages),
		Tables:    []domain.SectionElement{},
		Images:    []domain.SectionElement{},
	}
	for _, p := range passages {
		c := p.Passage.Chunk
		el := domain.SectionElement{
			DocumentID: c.DocumentID,
			PageNumber: c.PageNumber,
			Content:    c.Content,
			Metadata:   maps.Clone(c.Metadata),
		}
		if c.IsTable() {
			result.Tables = append(result.Tables, el)
		}
		if c.IsImage() {
			result.Images = append(result.Images, el)
		}
	}
	return result
}
