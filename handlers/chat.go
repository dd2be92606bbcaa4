package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatui/config"
	"chatui/database"
	"chatui/models"
	"chatui/services"
)

type ChatHandler struct {
	cfg  *config.Config
	chat *services.ChatService
}

func NewChatHandler(cfg *config.Config, chat *services.ChatService) *ChatHandler {
	return &ChatHandler{cfg: cfg, chat: chat}
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessage processes one user utterance synchronously: both the
// user message and the finalized assistant reply are in the response.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	sessionID := c.Param("id")
	userID, _ := c.Get("user_id")

	var session models.ChatSession
	if err := database.DB.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message cannot be empty"})
		return
	}

	prefs, err := getOrCreatePreferences(database.DB, userID.(uuid.UUID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preferences"})
		return
	}

	userMsg, assistant, err := h.chat.ProcessMessage(c.Request.Context(), &session, req.Message, prefs)
	if err != nil {
		if errors.Is(err, services.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message cannot be empty"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user_message": gin.H{
			"id":        userMsg.ID,
			"content":   userMsg.Content,
			"timestamp": userMsg.Timestamp,
		},
		"assistant_message": gin.H{
			"id":          assistant.ID,
			"content":     assistant.Content,
			"timestamp":   assistant.Timestamp,
			"status":      assistant.Status,
			"model_used":  assistant.ModelUsed,
			"tokens_used": assistant.TokensUsed,
		},
	})
}
