package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/service"
)

var testDefaults = SearchDefaults{K: 5, MinSimilarity: 0.3}

func TestChatHandler_Ask_Success(t *testing.T) {
	chat := new(MockChatService)
	h := NewChatHandler(chat, new(MockRetriever), testDefaults)

	chat.On("Ask", mock.Anything, service.AskInput{
		SessionID:   "s-1",
		Message:     "What is the dose?",
		DocumentIDs: []string{"doc-1"},
	}).Return(&service.AskOutput{
		SessionID: "s-1",
		MessageID: "m-2",
		Result: domain.AnswerResult{
			Answer:      "Metformin 500mg twice daily.",
			Citations:   []domain.Citation{{DocumentID: "doc-1", Pages: []int{3}, Sections: []string{}, PassageCount: 1, RelevanceScore: 0.8}},
			Confidence:  0.8,
			SourcesUsed: 1,
		},
	}, nil)

	w := httptest.NewRecorder()
	h.Ask(w, jsonRequest(t, http.MethodPost, "/chat", ChatRequest{SessionID: "s-1", Message: "What is the dose?", DocumentIDs: []string{"doc-1"}}))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "s-1", data["session_id"])
	assert.Equal(t, "m-2", data["message_id"])
	assert.Equal(t, "Metformin 500mg twice daily.", data["answer"])
	assert.Equal(t, false, data["no_evidence"])
	require.Len(t, data["citations"], 1)
}

func TestChatHandler_Ask_NoEvidenceKeepsEmptyCitations(t *testing.T) {
	chat := new(MockChatService)
	chat.On("Ask", mock.Anything, mock.Anything).Return(&service.AskOutput{
		SessionID: "s-new",
		MessageID: "m-1",
		Result:    domain.AnswerResult{Answer: "not found", NoEvidence: true},
	}, nil)

	w := httptest.NewRecorder()
	NewChatHandler(chat, new(MockRetriever), testDefaults).Ask(w, jsonRequest(t, http.MethodPost, "/chat", ChatRequest{Message: "?"}))

	data := decodeData(t, w)
	assert.Equal(t, true, data["no_evidence"])
	assert.Equal(t, []any{}, data["citations"])
}

func TestChatHandler_Ask_Validation(t *testing.T) {
	h := NewChatHandler(new(MockChatService), new(MockRetriever), testDefaults)

	w := httptest.NewRecorder()
	h.Ask(w, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.Ask(w, jsonRequest(t, http.MethodPost, "/chat", ChatRequest{Message: "   "}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_History(t *testing.T) {
	chat := new(MockChatService)
	chat.On("History", mock.Anything, "s-1").Return([]*domain.Message{
		{ID: "m-1", Role: domain.RoleUser, Content: "hi", CreatedAt: time.Now()},
		{ID: "m-2", Role: domain.RoleAssistant, Content: "hello", CreatedAt: time.Now()},
	}, nil)
	chat.On("History", mock.Anything, "nope").Return(nil, domain.ErrConversationNotFound)
	h := NewChatHandler(chat, new(MockRetriever), testDefaults)

	w := httptest.NewRecorder()
	h.History(w, withURLParam(httptest.NewRequest(http.MethodGet, "/chat/s-1/messages", nil), "session_id", "s-1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeData(t, w)["messages"], 2)

	w = httptest.NewRecorder()
	h.History(w, withURLParam(httptest.NewRequest(http.MethodGet, "/chat/nope/messages", nil), "session_id", "nope"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatHandler_Search(t *testing.T) {
	retriever := new(MockRetriever)
	h := NewChatHandler(new(MockChatService), retriever, testDefaults)

	chunk := domain.Chunk{DocumentID: "doc-1", ChunkIndex: 4, Content: "HbA1c 7.2%", ChunkType: domain.ChunkTypeText, PageNumber: 1}
	retriever.On("Retrieve", mock.Anything, service.RetrieveRequest{Query: "hba1c", K: 5, MinSimilarity: 0.3}).
		Return([]domain.ScoredPassage{{Passage: domain.NewIndexedPassage(chunk, nil), Similarity: 0.91, Rank: 1}})

	w := httptest.NewRecorder()
	h.Search(w, jsonRequest(t, http.MethodPost, "/search", SearchRequest{Query: "hba1c"}))

	assert.Equal(t, http.StatusOK, w.Code)
	passages := decodeData(t, w)["passages"].([]any)
	require.Len(t, passages, 1)
	p := passages[0].(map[string]any)
	assert.Equal(t, "doc-1:4", p["id"])
	assert.Equal(t, 0.91, p["similarity"])
	assert.Equal(t, float64(1), p["rank"])
}

func TestChatHandler_Search_Overrides(t *testing.T) {
	retriever := new(MockRetriever)
	floor := 0.0
	retriever.On("Retrieve", mock.Anything, service.RetrieveRequest{Query: "q", K: 2, MinSimilarity: 0, DocumentIDs: []string{"d"}}).
		Return(nil)

	w := httptest.NewRecorder()
	NewChatHandler(new(MockChatService), retriever, testDefaults).
		Search(w, jsonRequest(t, http.MethodPost, "/search", SearchRequest{Query: "q", K: 2, MinSimilarity: &floor, DocumentIDs: []string{"d"}}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, decodeData(t, w)["passages"])
	retriever.AssertExpectations(t)
}

func TestChatHandler_Search_CapsK(t *testing.T) {
	retriever := new(MockRetriever)
	retriever.On("Retrieve", mock.Anything, mock.MatchedBy(func(req service.RetrieveRequest) bool {
		return req.K == service.MaxTopK
	})).Return(nil)

	w := httptest.NewRecorder()
	NewChatHandler(new(MockChatService), retriever, testDefaults).
		Search(w, jsonRequest(t, http.MethodPost, "/search", SearchRequest{Query: "q", K: 5000}))

	assert.Equal(t, http.StatusOK, w.Code)
	retriever.AssertExpectations(t)
}

func TestChatHandler_Search_Validation(t *testing.T) {
	h := NewChatHandler(new(MockChatService), new(MockRetriever), testDefaults)
	bad := 1.5

	for name, req := range map[string]SearchRequest{
		"empty query":    {Query: " "},
		"negative k":     {Query: "q", K: -1},
		"floor too high": {Query: "q", MinSimilarity: &bad},
	} {
		w := httptest.NewRecorder()
		h.Search(w, jsonRequest(t, http.MethodPost, "/search", req))
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}
}
