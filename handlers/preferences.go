package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"chatui/database"
	"chatui/models"
)

type PreferencesHandler struct{}

func NewPreferencesHandler() *PreferencesHandler {
	return &PreferencesHandler{}
}

// getOrCreatePreferences is an explicit idempotent upsert: look up,
// construct defaults on miss, and re-fetch when a concurrent create
// won the race.
func getOrCreatePreferences(db *gorm.DB, userID uuid.UUID) (*models.UserPreferences, error) {
	var prefs models.UserPreferences
	err := db.Where("user_id = ?", userID).First(&prefs).Error
	if err == nil {
		return &prefs, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	prefs = models.DefaultPreferences(userID)
	if err := db.Create(&prefs).Error; err != nil {
		// Unique index on user_id: lost the race, take the winner's row.
		var existing models.UserPreferences
		if ferr := db.Where("user_id = ?", userID).First(&existing).Error; ferr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &prefs, nil
}

func (h *PreferencesHandler) Get(c *gin.Context) {
	userID, _ := c.Get("user_id")

	prefs, err := getOrCreatePreferences(database.DB, userID.(uuid.UUID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preferences"})
		return
	}

	c.JSON(http.StatusOK, prefs)
}

type updatePreferencesRequest struct {
	PreferredAIProvider *string  `json:"preferred_ai_provider"`
	OpenAIModel         *string  `json:"openai_model"`
	OllamaModel         *string  `json:"ollama_model"`
	MaxTokens           *int     `json:"max_tokens"`
	Temperature         *float64 `json:"temperature"`
	Theme               *string  `json:"theme"`
	ShowTimestamps      *bool    `json:"show_timestamps"`
	ShowTokenUsage      *bool    `json:"show_token_usage"`
	ShowMCPOperations   *bool    `json:"show_mcp_operations"`
}

// Update merges only the fields present in the request body.
func (h *PreferencesHandler) Update(c *gin.Context) {
	var req updatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if req.PreferredAIProvider != nil && !models.ValidProvider(*req.PreferredAIProvider) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown AI provider"})
		return
	}

	userID, _ := c.Get("user_id")

	prefs, err := getOrCreatePreferences(database.DB, userID.(uuid.UUID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preferences"})
		return
	}

	if req.PreferredAIProvider != nil {
		prefs.PreferredAIProvider = *req.PreferredAIProvider
	}
	if req.OpenAIModel != nil {
		prefs.OpenAIModel = *req.OpenAIModel
	}
	if req.OllamaModel != nil {
		prefs.OllamaModel = *req.OllamaModel
	}
	if req.MaxTokens != nil {
		prefs.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		prefs.Temperature = *req.Temperature
	}
	if req.Theme != nil {
		prefs.Theme = *req.Theme
	}
	if req.ShowTimestamps != nil {
		prefs.ShowTimestamps = *req.ShowTimestamps
	}
	if req.ShowTokenUsage != nil {
		prefs.ShowTokenUsage = *req.ShowTokenUsage
	}
	if req.ShowMCPOperations != nil {
		prefs.ShowMCPOperations = *req.ShowMCPOperations
	}

	if err := database.DB.Save(prefs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save preferences"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
