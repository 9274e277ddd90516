package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/logger"
)

// QuestionAnswerer answers a question with optional history.
type QuestionAnswerer interface {
	Answer(ctx context.Context, req AnswerRequest) domain.AnswerResult
}

type ChatConfig struct {
	HistoryTurns int
}

// ChatService keeps conversations and answers questions within them.
type ChatService struct {
	conversations ConversationRepositoryInterface
	answerer      QuestionAnswerer
	txRunner      TxRunner
	uuidGen       UUIDGenerator
	cfg           ChatConfig
	now           func() time.Time
	log           *logger.Logger
}

func NewChatService(conversations ConversationRepositoryInterface, answerer QuestionAnswerer, txRunner TxRunner, cfg ChatConfig) *ChatService {
	return &ChatService{
		conversations: conversations,
		answerer:      answerer,
		txRunner:      txRunner,
		uuidGen:       &DefaultUUIDGenerator{},
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
		log:           logger.New("chat"),
	}
}

func (s *ChatService) WithUUIDGen(g UUIDGenerator) *ChatService {
	s.uuidGen = g
	return s
}

type AskInput struct {
	SessionID   string
	Message     string
	DocumentIDs []string
}

type AskOutput struct {
	SessionID      string
	ConversationID string
	MessageID      string
	Result         domain.AnswerResult
}

// Ask answers a message within a session, creating the session if needed,
// and records both turns.
func (s *ChatService) Ask(ctx context.Context, input AskInput) (*AskOutput, error) {
	question := strings.TrimSpace(input.Message)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}

	conv, err := s.conversation(ctx, strings.TrimSpace(input.SessionID))
	if err != nil {
		return nil, err
	}

	previous, err := s.conversations.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	result := s.answerer.Answer(ctx, AnswerRequest{
		Question:    question,
		History:     domain.LastTurns(previous, s.cfg.HistoryTurns),
		DocumentIDs: input.DocumentIDs,
	})

	now := s.now()
	userMsg := &domain.Message{
		ID:             s.uuidGen.NewString(),
		ConversationID: conv.ID,
		Role:           domain.RoleUser,
		Content:        question,
		Metadata:       map[string]any{},
		CreatedAt:      now,
	}
	if len(input.DocumentIDs) > 0 {
		userMsg.Metadata["document_ids"] = input.DocumentIDs
	}
	reply := &domain.Message{
		ID:             s.uuidGen.NewString(),
		ConversationID: conv.ID,
		Role:           domain.RoleAssistant,
		Content:        result.Answer,
		Metadata: map[string]any{
			"confidence":   result.Confidence,
			"sources_used": result.SourcesUsed,
			"no_evidence":  result.NoEvidence,
		},
		Citations: result.Citations,
		CreatedAt: now.Add(time.Millisecond),
	}

	if err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		convs := repos.Conversations()
		if err := convs.CreateMessage(ctx, userMsg); err != nil {
			return fmt.Errorf("failed to store question: %w", err)
		}
		if err := convs.CreateMessage(ctx, reply); err != nil {
			return fmt.Errorf("failed to store answer: %w", err)
		}
		return convs.Touch(ctx, conv.ID)
	}); err != nil {
		return nil, err
	}

	s.log.Info("question answered",
		"session_id", conv.SessionID,
		"sources_used", result.SourcesUsed,
		"confidence", result.Confidence,
		"no_evidence", result.NoEvidence,
	)
	return &AskOutput{
		SessionID:      conv.SessionID,
		ConversationID: conv.ID,
		MessageID:      reply.ID,
		Result:         result,
	}, nil
}

func (s *ChatService) conversation(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	if sessionID != "" {
		conv, err := s.conversations.GetBySessionID(ctx, sessionID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, domain.ErrConversationNotFound) {
			return nil, err
		}
	} else {
		sessionID = s.uuidGen.NewString()
	}

	now := s.now()
	conv := &domain.Conversation{
		ID:        s.uuidGen.NewString(),
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// History returns every message of a session, oldest first.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	conv, err := s.conversations.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.conversations.ListMessages(ctx, conv.ID)
}
