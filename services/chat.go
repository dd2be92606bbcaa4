package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"chatui/models"
)

var (
	ErrEmptyMessage = errors.New("message cannot be empty")
	ErrUnknownTool  = errors.New("unknown tool name")
)

const historyLimit = 20

const systemPrompt = "You are a helpful AI assistant with access to a chat datastore via MCP tools. " +
	"You can store and retrieve information using KV operations and query document collections."

// ChatService orchestrates message processing: persisting the
// exchange, assembling bounded context, calling the completion
// backend, and recording tool invocations.
type ChatService struct {
	db     *gorm.DB
	ai     *AIService
	mcp    *MCPClient
	events *EventPublisher
}

func NewChatService(db *gorm.DB, ai *AIService, mcp *MCPClient, events *EventPublisher) *ChatService {
	return &ChatService{db: db, ai: ai, mcp: mcp, events: events}
}

// ProcessMessage persists the user's utterance, generates the
// assistant reply, and returns both persisted messages. The assistant
// message always leaves in a terminal status: completed on success,
// error on any failure after the placeholder was written.
func (s *ChatService) ProcessMessage(ctx context.Context, session *models.ChatSession, userText string, prefs *models.UserPreferences) (*models.Message, *models.Message, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return nil, nil, ErrEmptyMessage
	}

	userMsg := models.Message{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   text,
		Status:    models.MessageCompleted,
	}
	if err := s.db.WithContext(ctx).Create(&userMsg).Error; err != nil {
		return nil, nil, fmt.Errorf("create user message: %w", err)
	}

	assistant := models.Message{
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Status:    models.MessageProcessing,
	}
	if err := s.db.WithContext(ctx).Create(&assistant).Error; err != nil {
		return nil, nil, fmt.Errorf("create assistant message: %w", err)
	}

	if err := s.completeAssistant(ctx, session, text, prefs, &assistant); err != nil {
		log.Printf("[Chat] Error processing message: %v", err)
		s.finalizeError(ctx, &assistant, "An error occurred while processing your message: "+err.Error(), err.Error())
	}

	return &userMsg, &assistant, nil
}

// completeAssistant runs steps that may fail after the placeholder
// exists. Any returned error (or panic) leads to the placeholder being
// finalized with error status by the caller.
func (s *ChatService) completeAssistant(ctx context.Context, session *models.ChatSession, userText string, prefs *models.UserPreferences, assistant *models.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected error: %v", r)
		}
	}()

	turns, err := s.buildHistory(ctx, session)
	if err != nil {
		return err
	}

	result, genErr := s.ai.Generate(ctx, turns, GenerateOptions{
		Provider:    prefs.PreferredAIProvider,
		Model:       prefs.Model(),
		MaxTokens:   prefs.MaxTokens,
		Temperature: prefs.Temperature,
	})

	if genErr != nil {
		assistant.Content = "Error generating response: " + genErr.Error()
		assistant.ErrorMessage = genErr.Error()
		assistant.Status = models.MessageError
	} else {
		assistant.Content = result.Content
		assistant.ModelUsed = result.Model
		assistant.TokensUsed = result.TokensUsed
		assistant.Status = models.MessageCompleted
	}

	if err := s.db.WithContext(ctx).Save(assistant).Error; err != nil {
		return fmt.Errorf("save assistant message: %w", err)
	}

	updates := map[string]any{"updated_at": assistant.Timestamp}
	if session.Title == "" {
		session.Title = BuildTitle(userText)
		updates["title"] = session.Title
	}
	if err := s.db.WithContext(ctx).Model(session).Updates(updates).Error; err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	s.events.SessionChanged(ctx, session.UserID, session.ID, "message")
	return nil
}

// buildHistory assembles the completion context: the fixed system
// prompt followed by the most recent completed messages of the
// session in chronological order.
func (s *ChatService) buildHistory(ctx context.Context, session *models.ChatSession) ([]ChatTurn, error) {
	var recent []models.Message
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", session.ID, models.MessageCompleted).
		Order("timestamp DESC").
		Limit(historyLimit).
		Find(&recent).Error
	if err != nil {
		return nil, fmt.Errorf("load conversation history: %w", err)
	}

	turns := make([]ChatTurn, 0, len(recent)+1)
	turns = append(turns, ChatTurn{Role: models.RoleSystem, Content: systemPrompt})
	for i := len(recent) - 1; i >= 0; i-- {
		turns = append(turns, ChatTurn{Role: recent[i].Role, Content: recent[i].Content})
	}
	return turns, nil
}

// finalizeError degrades the in-flight assistant message to a terminal
// error state. Best effort: the struct is updated even if the write
// fails so callers never observe a processing status after return.
func (s *ChatService) finalizeError(ctx context.Context, assistant *models.Message, content, errMsg string) {
	assistant.Content = content
	assistant.ErrorMessage = errMsg
	assistant.Status = models.MessageError
	if err := s.db.WithContext(ctx).Save(assistant).Error; err != nil {
		log.Printf("[Chat] Failed to finalize assistant message %s: %v", assistant.ID, err)
	}
}

// InvokeTool calls an MCP tool on behalf of a message and records the
// attempt as exactly one operation row. The row is created pending and
// transitions forward to success, error, or timeout once.
func (s *ChatService) InvokeTool(ctx context.Context, message *models.Message, toolName string, arguments map[string]any) (*models.MCPOperation, error) {
	if !models.ValidOperationType(toolName) {
		return nil, ErrUnknownTool
	}

	operation := models.MCPOperation{
		MessageID:     message.ID,
		OperationType: toolName,
		Parameters:    datatypes.JSONMap(arguments),
		Status:        models.OperationPending,
	}
	if err := s.db.WithContext(ctx).Create(&operation).Error; err != nil {
		return nil, fmt.Errorf("create operation: %w", err)
	}

	result := s.callBridge(ctx, message, toolName, arguments)

	operation.DurationMS = &result.DurationMS
	if result.Success {
		operation.Response = datatypes.JSONMap(result.Data)
		operation.Status = models.OperationSuccess
	} else {
		operation.Status = models.OperationError
		if result.TimedOut {
			operation.Status = models.OperationTimeout
		}
		operation.ErrorDetails = result.Error
	}

	if err := s.db.WithContext(ctx).Save(&operation).Error; err != nil {
		return nil, fmt.Errorf("finalize operation: %w", err)
	}
	return &operation, nil
}

// callBridge resolves the tool-session correlation id and performs the
// bridge call, converting panics into error results so the operation
// row is always finalized.
func (s *ChatService) callBridge(ctx context.Context, message *models.Message, toolName string, arguments map[string]any) (result ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Chat] Error calling MCP tool %s: %v", toolName, r)
			result = ToolResult{Error: fmt.Sprintf("unexpected error: %v", r)}
		}
	}()

	sessionID := message.SessionID.String()
	var session models.ChatSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", message.SessionID).Error; err == nil {
		if session.MCPSessionID != "" {
			sessionID = session.MCPSessionID
		}
	}

	return s.mcp.CallTool(ctx, sessionID, toolName, arguments)
}

// BuildTitle derives a session title from the first user message.
func BuildTitle(text string) string {
	runes := []rune(text)
	if len(runes) > 50 {
		return string(runes[:50]) + "..."
	}
	return text
}
