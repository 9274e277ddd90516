package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/meddocs/internal/api"
	"github.com/cloo-solutions/meddocs/internal/domain"
	"github.com/cloo-solutions/meddocs/internal/service"
)

type ChatService interface {
	Ask(ctx context.Context, input service.AskInput) (*service.AskOutput, error)
	History(ctx context.Context, sessionID string) ([]*domain.Message, error)
}

type PassageRetriever interface {
	Retrieve(ctx context.Context, req service.RetrieveRequest) []domain.ScoredPassage
}

type SearchDefaults struct {
	K             int
	MinSimilarity float64
}

type ChatHandler struct {
	chat      ChatService
	retriever PassageRetriever
	defaults  SearchDefaults
}

func NewChatHandler(chat ChatService, retriever PassageRetriever, defaults SearchDefaults) *ChatHandler {
	return &ChatHandler{chat: chat, retriever: retriever, defaults: defaults}
}

type ChatRequest struct {
	SessionID   string   `json:"session_id,omitempty"`
	Message     string   `json:"message"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

type ChatResponse struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	AnswerResponse
}

type SearchRequest struct {
	Query         string   `json:"query"`
	K             int      `json:"k,omitempty"`
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
	DocumentIDs   []string `json:"document_ids,omitempty"`
}

func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	out, err := h.chat.Ask(r.Context(), service.AskInput{
		SessionID:   req.SessionID,
		Message:     req.Message,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ChatResponse{
		SessionID:      out.SessionID,
		MessageID:      out.MessageID,
		AnswerResponse: answerToResponse(out.Result),
	})
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chat.History(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	resp := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		resp = append(resp, messageToResponse(m))
	}
	api.Success(w, http.StatusOK, map[string]any{"messages": resp})
}

// Search returns scored passages without calling the generator.
func (h *ChatHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.K < 0 {
		api.Error(w, http.StatusBadRequest, "k cannot be negative")
		return
	}

	k := req.K
	if k == 0 {
		k = h.defaults.K
	}
	k = min(k, service.MaxTopK)
	floor := h.defaults.MinSimilarity
	if req.MinSimilarity != nil {
		floor = *req.MinSimilarity
		if floor < 0 || floor > 1 {
			api.HandleError(w, domain.ErrInvalidSimilarityFloor)
			return
		}
	}

	passages := h.retriever.Retrieve(r.Context(), service.RetrieveRequest{
		Query:         req.Query,
		K:             k,
		MinSimilarity: floor,
		DocumentIDs:   req.DocumentIDs,
	})
	resp := make([]PassageResponse, 0, len(passages))
	for _, p := range passages {
		resp = append(resp, passageToResponse(p))
	}
	api.Success(w, http.StatusOK, map[string]any{"passages": resp})
}
