package service

import (
	"context"
	"strings"
	"time"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/logger"
	"github.com/cloo-solutions/meddocs/internal/metrics"
	"github.com/cloo-solutions/meddocs/internal/telemetry"
)

// Generator produces a completion for an ordered message list.
type Generator interface {
	Generate(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// PassageRetriever is the read path used by the answerer and the report synthesizer.
type PassageRetriever interface {
	Retrieve(ctx context.Context, req RetrieveRequest) []domain.ScoredPassage
}

type AnswerConfig struct {
	TopK          int
	MinSimilarity float64
	HistoryTurns  int
}

func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{
		TopK:          5,
		MinSimilarity: 0.3,
		HistoryTurns:  6,
	}
}

type AnswerRequest struct {
	Question    string
	History     []domain.ChatMessage
	DocumentIDs []string
}

// Answerer answers questions strictly from retrieved passages.
type Answerer struct {
	retriever PassageRetriever
	generator Generator
	cfg       AnswerConfig
	log       *logger.Logger
}

func NewAnswerer(retriever PassageRetriever, generator Generator, cfg AnswerConfig) *Answerer {
	return &Answerer{
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
		log:       logger.New("answerer"),
	}
}

func (a *Answerer) Answer(ctx context.Context, req AnswerRequest) domain.AnswerResult {
	passages := a.retriever.Retrieve(ctx, RetrieveRequest{
		Query:         req.Question,
		K:             a.cfg.TopK,
		MinSimilarity: a.cfg.MinSimilarity,
		DocumentIDs:   req.DocumentIDs,
	})
	return a.Ground(ctx, req.Question, req.History, passages)
}

// Ground produces an answer from already retrieved passages. The generator is
// called at most once and never when passages is empty.
func (a *Answerer) Ground(ctx context.Context, question string, history []domain.ChatMessage, passages []domain.ScoredPassage) domain.AnswerResult {
	if len(passages) == 0 {
		metrics.ObserveConfidence(0)
		return domain.AnswerResult{
			Answer:     noEvidenceAnswer,
			Citations:  []domain.Citation{},
			NoEvidence: true,
		}
	}

	ctx, span := telemetry.StartSpan(ctx, "answer.generate", telemetry.SpanAttributes{Operation: "answer"})
	defer span.End()

	messages := a.buildMessages(question, history, passages)

	start := time.Now()
	answer, err := a.generator.Generate(ctx, messages)
	metrics.CaptureExecutionMetrics("generator", time.Since(start))
	metrics.RecordGeneratorCall("answer", err)
	if err != nil {
		span.SetError(err)
		a.log.Error("generation failed", "error", domain.Wrap(domain.ErrGenerationFailure, err))
		return domain.AnswerResult{
			Answer:    generationFailure,
			Citations: []domain.Citation{},
		}
	}

	confidence := answerConfidence(answer, passages)
	metrics.ObserveConfidence(confidence)
	return domain.AnswerResult{
		Answer:      answer,
		Citations:   domain.BuildCitations(passages),
		Confidence:  confidence,
		SourcesUsed: domain.DistinctDocuments(passages),
	}
}

func (a *Answerer) buildMessages(question string, history []domain.ChatMessage, passages []domain.ScoredPassage) []domain.ChatMessage {
	turns := make([]domain.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.Role == domain.RoleUser || m.Role == domain.RoleAssistant {
			turns = append(turns, m)
		}
	}
	if n := a.cfg.HistoryTurns; n >= 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	messages := make([]domain.ChatMessage, 0, len(turns)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: answerSystemPrompt})
	messages = append(messages, turns...)
	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: answerUserMessage(FormatContext(passages), question),
	})
	return messages
}

// answerConfidence scores an answer by mean passage similarity, scaled down
// when fewer than three distinct documents back it. Answers that admit the
// information is missing score zero.
func answerConfidence(answer string, passages []domain.ScoredPassage) float64 {
	lower := strings.ToLower(answer)
	if strings.Contains(lower, "cannot find") || strings.Contains(lower, "not available") {
		return 0
	}
	if len(passages) == 0 {
		return 0
	}

	var sum float64
	for _, p := range passages {
		sum += p.Similarity
	}
	mean := sum / float64(len(passages))
	sourceFactor := min(float64(domain.DistinctDocuments(passages))/3, 1)
	return domain.Clamp01(mean * sourceFactor)
}
