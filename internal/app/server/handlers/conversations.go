package handlers

import (
	"context"
	"net/http"

	"chaty/internal/core/domain"
	"chaty/pkg/middleware"

	"github.com/go-chi/chi/v5"
)

// ConversationAPI is the part of the conversation relay the REST routes use.
type ConversationAPI interface {
	ListConversations(ctx context.Context, userID string, limit int, search, cursor string) (domain.Page[domain.ConversationSummary], error)
	GetConversation(ctx context.Context, userID, convID string) (*domain.Conversation, error)
	ListMessages(ctx context.Context, userID, convID string, limit int, cursor string) (domain.Page[domain.Message], error)
	SendMessage(ctx context.Context, senderID, convID, content string) (*domain.Message, error)
	MarkRead(ctx context.Context, userID, convID, lastReadMessageID string) ([]string, error)
}

type ConversationHandler struct {
	convs ConversationAPI
}

func NewConversationHandler(convs ConversationAPI) *ConversationHandler {
	return &ConversationHandler{convs: convs}
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	q := r.URL.Query()
	page, err := h.convs.ListConversations(r.Context(), userID, queryLimit(r), q.Get("search"), q.Get("cursor"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Conversations retrieved.", page)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	conv, err := h.convs.GetConversation(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Conversation retrieved.", conv)
}

func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	page, err := h.convs.ListMessages(r.Context(), userID, chi.URLParam(r, "id"), queryLimit(r), r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Messages retrieved.", page)
}

func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.convs.SendMessage(r.Context(), userID, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, "Message sent.", msg)
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())
	var req struct {
		LastReadMessageID string `json:"last_read_message_id"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := h.convs.MarkRead(r.Context(), userID, chi.URLParam(r, "id"), req.LastReadMessageID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "Messages marked as read.", map[string][]string{"message_ids": ids})
}
