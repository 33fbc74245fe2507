package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/pkg/errcode"
	"github.com/ragline/ragline/internal/pkg/response"
)

// ConversationReader is the query side of the chat history.
type ConversationReader interface {
	ListConversations(ctx context.Context, username string) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error)
	DeleteConversation(ctx context.Context, conversationID int64) error
}

type ConversationHandler struct {
	svc ConversationReader
}

func NewConversationHandler(svc ConversationReader) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

func (h *ConversationHandler) List(c *gin.Context) {
	username := strings.TrimSpace(c.Query("user"))
	if username == "" {
		response.Error(c, errcode.ErrInvalid, "user is required")
		return
	}
	items, err := h.svc.ListConversations(c.Request.Context(), username)
	if err != nil {
		handleError(c, err)
		return
	}
	if items == nil {
		items = []model.Conversation{}
	}
	response.Success(c, items)
}

func (h *ConversationHandler) Messages(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	items, err := h.svc.ListMessages(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	if items == nil {
		items = []model.Message{}
	}
	response.Success(c, items)
}

func (h *ConversationHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteConversation(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": id})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, errcode.ErrInvalid, "invalid conversation id")
		return 0, false
	}
	return id, true
}
