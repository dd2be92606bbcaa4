package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatui/config"
	"chatui/database"
	"chatui/models"
	"chatui/services"
)

type MCPHandler struct {
	cfg  *config.Config
	chat *services.ChatService
	mcp  *services.MCPClient
}

func NewMCPHandler(cfg *config.Config, chat *services.ChatService, mcp *services.MCPClient) *MCPHandler {
	return &MCPHandler{cfg: cfg, chat: chat, mcp: mcp}
}

type callToolRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// CallTool invokes an MCP tool directly within a session. The attempt
// is tracked as a system message plus one operation row.
func (h *MCPHandler) CallTool(c *gin.Context) {
	sessionID := c.Param("id")
	userID, _ := c.Get("user_id")

	var session models.ChatSession
	if err := database.DB.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	var req callToolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.ToolName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Tool name is required"})
		return
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	systemMsg := models.Message{
		SessionID: session.ID,
		Role:      models.RoleSystem,
		Content:   "MCP tool call: " + req.ToolName,
		Status:    models.MessageProcessing,
	}
	if err := database.DB.Create(&systemMsg).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record tool call"})
		return
	}

	operation, err := h.chat.InvokeTool(c.Request.Context(), &systemMsg, req.ToolName, req.Arguments)
	if err != nil {
		systemMsg.Status = models.MessageError
		systemMsg.ErrorMessage = err.Error()
		database.DB.Save(&systemMsg)

		if errors.Is(err, services.ErrUnknownTool) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown tool name"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	systemMsg.Content = "MCP tool call: " + req.ToolName + " - " + operation.Status
	if operation.Status == models.OperationSuccess {
		systemMsg.Status = models.MessageCompleted
	} else {
		systemMsg.Status = models.MessageError
		systemMsg.ErrorMessage = operation.ErrorDetails
	}
	database.DB.Save(&systemMsg)

	c.JSON(http.StatusOK, gin.H{
		"success":      operation.Status == models.OperationSuccess,
		"operation_id": operation.ID,
		"response":     operation.Response,
		"duration_ms":  operation.DurationMS,
		"error":        operation.ErrorDetails,
	})
}

// Operations lists MCP operations recorded in a session, newest first.
func (h *MCPHandler) Operations(c *gin.Context) {
	sessionID := c.Param("id")
	userID, _ := c.Get("user_id")

	var session models.ChatSession
	if err := database.DB.Where("id = ? AND user_id = ?", sessionID, userID).First(&session).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	var operations []models.MCPOperation
	database.DB.
		Joins("JOIN messages ON messages.id = mcp_operations.message_id").
		Where("messages.session_id = ?", session.ID).
		Order("mcp_operations.timestamp DESC").
		Find(&operations)

	c.JSON(http.StatusOK, gin.H{
		"session_id": session.ID,
		"operations": operations,
	})
}

// Capabilities proxies the tool server's capability discovery.
func (h *MCPHandler) Capabilities(c *gin.Context) {
	caps, err := h.mcp.GetCapabilities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, caps)
}
