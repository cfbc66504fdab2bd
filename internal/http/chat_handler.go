package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gemini-chat/internal/service"
)

// ChatHandler expone la superficie de comandos del chat sobre HTTP.
type ChatHandler struct {
	logger *zap.Logger
	chat   *service.ChatService
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, chat *service.ChatService) *ChatHandler {
	return &ChatHandler{logger: logger, chat: chat}
}

// ListModels maneja GET /models.
func (h *ChatHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": h.chat.Models()})
}

// ListConversations maneja GET /conversations.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	groups, selectedID := h.chat.List()
	c.JSON(http.StatusOK, gin.H{
		"groups":     groups,
		"selectedId": selectedID,
		"busyIds":    h.chat.InFlightIDs(),
	})
}

// CreateConversation maneja POST /conversations.
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	conv := h.chat.Create(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{"conversation": conv})
}

// SelectConversation maneja PUT /conversations/selected. Un id vacío
// limpia la selección.
func (h *ChatHandler) SelectConversation(c *gin.Context) {
	var req struct {
		ID string `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid select conversation request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.chat.Select(c.Request.Context(), req.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"selectedId": req.ID})
}

// DeleteConversation maneja DELETE /conversations/:id.
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	if err := h.chat.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteAllConversations maneja DELETE /conversations.
func (h *ChatHandler) DeleteAllConversations(c *gin.Context) {
	h.chat.DeleteAll(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// SendMessage maneja POST /messages. Una falla del proveedor no es un error
// HTTP: el resultado trae el mensaje de error sintetizado en el hilo.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
		Model   string `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid send message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.chat.Send(c.Request.Context(), req.Content, req.Model)
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is empty"})
		return
	case errors.Is(err, service.ErrSendInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "conversation is awaiting a reply"})
		return
	case errors.Is(err, service.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	case err != nil:
		h.logger.Error("send message failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send message"})
		return
	}

	c.JSON(http.StatusCreated, res)
}

// ExportConversation maneja GET /conversations/:id/export.
func (h *ChatHandler) ExportConversation(c *gin.Context) {
	format := c.DefaultQuery("format", service.FormatMarkdown)

	res, err := h.chat.Export(c.Param("id"), format)
	if errors.Is(err, service.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown export format"})
		return
	}

	c.JSON(http.StatusOK, res)
}
