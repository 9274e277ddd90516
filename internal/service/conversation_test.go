package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/meddocs/internal/domain"
)

// MockQuestionAnswerer is a mock implementation of QuestionAnswerer
type MockQuestionAnswerer struct {
	mock.Mock
}

func (m *MockQuestionAnswerer) Answer(ctx context.Context, req AnswerRequest) domain.AnswerResult {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.AnswerResult)
}

func newChatService(repo *MockConversationRepository, answerer *MockQuestionAnswerer, ids ...string) (*ChatService, *testTxRunner) {
	tx := &testTxRunner{repos: &testTxRepos{conversations: repo}}
	svc := NewChatService(repo, answerer, tx, ChatConfig{HistoryTurns: 2}).WithUUIDGen(NewMockUUIDGenerator(ids...))
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return svc, tx
}

func TestChatService_Ask(t *testing.T) {
	ctx := context.Background()

	t.Run("new session", func(t *testing.T) {
		repo := new(MockConversationRepository)
		answerer := new(MockQuestionAnswerer)
		svc, tx := newChatService(repo, answerer, "session-1", "conv-1", "msg-user", "msg-bot")

		repo.On("Create", ctx, mock.MatchedBy(func(c *domain.Conversation) bool {
			return c.ID == "conv-1" && c.SessionID == "session-1"
		})).Return(nil)
		repo.On("ListMessages", ctx, "conv-1").Return([]*domain.Message{}, nil)
		result := domain.AnswerResult{
			Answer:      "BP was 150/95 (doc-1).",
			Citations:   []domain.Citation{{DocumentID: "doc-1", Pages: []int{2}}},
			Confidence:  0.2,
			SourcesUsed: 1,
		}
		answerer.On("Answer", ctx, AnswerRequest{
			Question:    "What was the blood pressure?",
			History:     []domain.ChatMessage{},
			DocumentIDs: []string{"doc-1"},
		}).Return(result)
		repo.On("CreateMessage", ctx, mock.MatchedBy(func(m *domain.Message) bool {
			return m.ID == "msg-user" && m.Role == domain.RoleUser && m.Content == "What was the blood pressure?"
		})).Return(nil)
		repo.On("CreateMessage", ctx, mock.MatchedBy(func(m *domain.Message) bool {
			return m.ID == "msg-bot" && m.Role == domain.RoleAssistant &&
				m.Metadata["confidence"] == 0.2 && m.Metadata["sources_used"] == 1 &&
				m.Metadata["no_evidence"] == false && len(m.Citations) == 1
		})).Return(nil)
		repo.On("Touch", ctx, "conv-1").Return(nil)

		out, err := svc.Ask(ctx, AskInput{Message: "  What was the blood pressure? ", DocumentIDs: []string{"doc-1"}})

		require.NoError(t, err)
		assert.Equal(t, "session-1", out.SessionID)
		assert.Equal(t, "conv-1", out.ConversationID)
		assert.Equal(t, "msg-bot", out.MessageID)
		assert.Equal(t, result, out.Result)
		assert.True(t, tx.called)
		repo.AssertExpectations(t)
	})

	t.Run("existing session passes recent turns", func(t *testing.T) {
		repo := new(MockConversationRepository)
		answerer := new(MockQuestionAnswerer)
		svc, _ := newChatService(repo, answerer, "m1", "m2")

		conv := &domain.Conversation{ID: "conv-1", SessionID: "s-1"}
		repo.On("GetBySessionID", ctx, "s-1").Return(conv, nil)
		repo.On("ListMessages", ctx, "conv-1").Return([]*domain.Message{
			{Role: domain.RoleUser, Content: "q1"},
			{Role: domain.RoleAssistant, Content: "a1"},
			{Role: domain.RoleUser, Content: "q2"},
			{Role: domain.RoleAssistant, Content: "a2"},
		}, nil)
		answerer.On("Answer", ctx, AnswerRequest{
			Question: "q3",
			History: []domain.ChatMessage{
				{Role: domain.RoleUser, Content: "q2"},
				{Role: domain.RoleAssistant, Content: "a2"},
			},
		}).Return(domain.AnswerResult{Answer: "I cannot find this information in the provided documents.", NoEvidence: true})
		repo.On("CreateMessage", ctx, mock.Anything).Return(nil)
		repo.On("Touch", ctx, "conv-1").Return(nil)

		out, err := svc.Ask(ctx, AskInput{SessionID: "s-1", Message: "q3"})
		require.NoError(t, err)
		assert.True(t, out.Result.NoEvidence)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("unknown session id is created as given", func(t *testing.T) {
		repo := new(MockConversationRepository)
		answerer := new(MockQuestionAnswerer)
		svc, _ := newChatService(repo, answerer, "conv-9", "m1", "m2")

		repo.On("GetBySessionID", ctx, "client-session").Return(nil, domain.ErrConversationNotFound)
		repo.On("Create", ctx, mock.MatchedBy(func(c *domain.Conversation) bool {
			return c.SessionID == "client-session" && c.ID == "conv-9"
		})).Return(nil)
		repo.On("ListMessages", ctx, "conv-9").Return([]*domain.Message{}, nil)
		answerer.On("Answer", ctx, mock.Anything).Return(domain.AnswerResult{Answer: "ok"})
		repo.On("CreateMessage", ctx, mock.Anything).Return(nil)
		repo.On("Touch", ctx, "conv-9").Return(nil)

		out, err := svc.Ask(ctx, AskInput{SessionID: "client-session", Message: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "client-session", out.SessionID)
	})

	t.Run("empty question", func(t *testing.T) {
		svc, _ := newChatService(new(MockConversationRepository), new(MockQuestionAnswerer))
		_, err := svc.Ask(ctx, AskInput{Message: "   "})
		assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
	})

	t.Run("persistence failure", func(t *testing.T) {
		repo := new(MockConversationRepository)
		answerer := new(MockQuestionAnswerer)
		svc, _ := newChatService(repo, answerer, "m1", "m2")

		repo.On("GetBySessionID", ctx, "s-1").Return(&domain.Conversation{ID: "conv-1", SessionID: "s-1"}, nil)
		repo.On("ListMessages", ctx, "conv-1").Return([]*domain.Message{}, nil)
		answerer.On("Answer", ctx, mock.Anything).Return(domain.AnswerResult{Answer: "ok"})
		repo.On("CreateMessage", ctx, mock.Anything).Return(errors.New("disk full"))

		_, err := svc.Ask(ctx, AskInput{SessionID: "s-1", Message: "hi"})
		assert.ErrorContains(t, err, "disk full")
	})
}

func TestChatService_History(t *testing.T) {
	ctx := context.Background()
	repo := new(MockConversationRepository)
	svc, _ := newChatService(repo, new(MockQuestionAnswerer))

	repo.On("GetBySessionID", ctx, "missing").Return(nil, domain.ErrConversationNotFound)
	_, err := svc.History(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	repo.On("GetBySessionID", ctx, "s-1").Return(&domain.Conversation{ID: "conv-1"}, nil)
	repo.On("ListMessages", ctx, "conv-1").Return([]*domain.Message{{ID: "m1"}, {ID: "m2"}}, nil)
	msgs, err := svc.History(ctx, "s-1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}
