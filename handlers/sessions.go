package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatui/config"
	"chatui/database"
	"chatui/models"
	"chatui/services"
)

type SessionsHandler struct {
	cfg    *config.Config
	events *services.EventPublisher
}

func NewSessionsHandler(cfg *config.Config, events *services.EventPublisher) *SessionsHandler {
	return &SessionsHandler{cfg: cfg, events: events}
}

// List returns the user's active chat sessions, most recently updated first.
func (h *SessionsHandler) List(c *gin.Context) {
	userID, _ := c.Get("user_id")

	var sessions []models.ChatSession
	database.DB.Where("user_id = ? AND is_active = true", userID).
		Order("updated_at DESC").
		Find(&sessions)

	c.JSON(http.StatusOK, sessions)
}

// Create starts a new chat session.
func (h *SessionsHandler) Create(c *gin.Context) {
	userID, _ := c.Get("user_id")

	session := models.ChatSession{
		UserID:   userID.(uuid.UUID),
		IsActive: true,
	}

	if err := database.DB.Create(&session).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	h.events.SessionChanged(c.Request.Context(), session.UserID, session.ID, "created")
	c.JSON(http.StatusCreated, session)
}

// Delete soft-deletes a session by clearing its active flag. Rows are
// never hard-deleted here.
func (h *SessionsHandler) Delete(c *gin.Context) {
	sessionID := c.Param("id")
	userID, _ := c.Get("user_id")

	var session models.ChatSession
	if err := database.DB.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	database.DB.Model(&session).Update("is_active", false)

	h.events.SessionChanged(c.Request.Context(), session.UserID, session.ID, "deleted")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Messages returns the session's full ordered history.
func (h *SessionsHandler) Messages(c *gin.Context) {
	sessionID := c.Param("id")
	userID, _ := c.Get("user_id")

	var session models.ChatSession
	if err := database.DB.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	var messages []models.Message
	database.DB.Where("session_id = ?", session.ID).
		Order("timestamp ASC").
		Find(&messages)

	title := session.Title
	if title == "" {
		// Derive from the first user message when unset.
		var first models.Message
		err := database.DB.Where("session_id = ? AND role = ?", session.ID, models.RoleUser).
			Order("timestamp ASC").
			First(&first).Error
		if err == nil {
			title = services.BuildTitle(first.Content)
		} else {
			title = session.DisplayTitle()
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"title":      title,
		"messages":   messages,
	})
}
