package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chatui/config"
	"chatui/database"
	"chatui/models"
	"chatui/services"
)

type testEnv struct {
	router *gin.Engine
	user   models.User
}

// setupEnv wires the API routes against an in-memory database with a
// stubbed authentication layer.
func setupEnv(t *testing.T, ollamaURL, mcpURL string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.ChatSession{},
		&models.Message{},
		&models.MCPOperation{},
		&models.UserPreferences{},
		&models.RefreshToken{},
	))
	database.DB = db

	user := models.User{Username: "demo", PasswordHash: "x"}
	require.NoError(t, db.Create(&user).Error)

	cfg := &config.Config{
		JWTSecret:     "test-secret",
		OllamaBaseURL: ollamaURL,
		MCPServerURL:  mcpURL,
	}

	ai := services.NewAIService(cfg)
	mcp := services.NewMCPClient(cfg.MCPServerURL)
	chat := services.NewChatService(db, ai, mcp, nil)

	sessionsHandler := NewSessionsHandler(cfg, nil)
	chatHandler := NewChatHandler(cfg, chat)
	mcpHandler := NewMCPHandler(cfg, chat, mcp)
	prefsHandler := NewPreferencesHandler()

	r := gin.New()
	api := r.Group("/api")
	api.Use(func(c *gin.Context) {
		c.Set("user_id", user.ID)
		c.Set("username", user.Username)
	})
	api.GET("/sessions", sessionsHandler.List)
	api.POST("/sessions", sessionsHandler.Create)
	api.DELETE("/sessions/:id", sessionsHandler.Delete)
	api.GET("/sessions/:id/messages", sessionsHandler.Messages)
	api.POST("/sessions/:id/send", chatHandler.SendMessage)
	api.POST("/sessions/:id/mcp-tool", mcpHandler.CallTool)
	api.GET("/sessions/:id/operations", mcpHandler.Operations)
	api.GET("/mcp/capabilities", mcpHandler.Capabilities)
	api.GET("/preferences", prefsHandler.Get)
	api.PUT("/preferences", prefsHandler.Update)

	return &testEnv{router: r, user: user}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createSession(t *testing.T) models.ChatSession {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/sessions", gin.H{})
	require.Equal(t, http.StatusCreated, w.Code)

	var session models.ChatSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	return session
}

func fakeOllamaServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": reply},
		})
	}))
}

func TestSessionLifecycle(t *testing.T) {
	env := setupEnv(t, "", "")

	first := env.createSession(t)
	second := env.createSession(t)

	w := env.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []models.ChatSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)

	w = env.do(t, http.MethodDelete, "/api/sessions/"+first.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Soft delete: the row survives with the active flag cleared.
	var stored models.ChatSession
	require.NoError(t, database.DB.First(&stored, "id = ?", first.ID).Error)
	assert.False(t, stored.IsActive)

	w = env.do(t, http.MethodGet, "/api/sessions", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, second.ID, listed[0].ID)
}

func TestDeleteSessionNotFound(t *testing.T) {
	env := setupEnv(t, "", "")

	w := env.do(t, http.MethodDelete, "/api/sessions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendMessageFlow(t *testing.T) {
	srv := fakeOllamaServer(t, "Hello back!")
	defer srv.Close()

	env := setupEnv(t, srv.URL, "")
	session := env.createSession(t)

	// Switch the seeded preferences to the local provider.
	w := env.do(t, http.MethodPut, "/api/preferences", gin.H{"preferred_ai_provider": "ollama"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/sessions/"+session.ID.String()+"/send", gin.H{"message": "Hello"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success     bool `json:"success"`
		UserMessage struct {
			Content string `json:"content"`
		} `json:"user_message"`
		AssistantMessage struct {
			Content string `json:"content"`
			Status  string `json:"status"`
		} `json:"assistant_message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Hello", resp.UserMessage.Content)
	assert.Equal(t, models.MessageCompleted, resp.AssistantMessage.Status)
	assert.Equal(t, "Hello back!", resp.AssistantMessage.Content)

	// History returns both messages and the derived title.
	w = env.do(t, http.MethodGet, "/api/sessions/"+session.ID.String()+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Title    string           `json:"title"`
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Equal(t, "Hello", history.Title)
	assert.Len(t, history.Messages, 2)
}

func TestSendMessageEchoesOwnUserMessage(t *testing.T) {
	srv := fakeOllamaServer(t, "ok")
	defer srv.Close()

	env := setupEnv(t, srv.URL, "")
	session := env.createSession(t)

	w := env.do(t, http.MethodPut, "/api/preferences", gin.H{"preferred_ai_provider": "ollama"})
	require.Equal(t, http.StatusOK, w.Code)

	// A user message from another request, timestamped after this one.
	// The response must echo this request's own message, not the
	// newest user row in the session.
	other := models.Message{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   "from another device",
		Status:    models.MessageCompleted,
		Timestamp: time.Now().Add(time.Minute).UTC(),
	}
	require.NoError(t, database.DB.Create(&other).Error)

	w = env.do(t, http.MethodPost, "/api/sessions/"+session.ID.String()+"/send", gin.H{"message": "my question"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		UserMessage struct {
			ID      uuid.UUID `json:"id"`
			Content string    `json:"content"`
		} `json:"user_message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "my question", resp.UserMessage.Content)
	assert.NotEqual(t, other.ID, resp.UserMessage.ID)
}

func TestSendMessageEmpty(t *testing.T) {
	env := setupEnv(t, "", "")
	session := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/sessions/"+session.ID.String()+"/send", gin.H{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var count int64
	database.DB.Model(&models.Message{}).Count(&count)
	assert.Zero(t, count)
}

func TestSendMessageUnknownSession(t *testing.T) {
	env := setupEnv(t, "", "")

	w := env.do(t, http.MethodPost, "/api/sessions/"+uuid.NewString()+"/send", gin.H{"message": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCallToolEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"value": "42"})
	}))
	defer srv.Close()

	env := setupEnv(t, "", srv.URL)
	session := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/sessions/"+session.ID.String()+"/mcp-tool",
		gin.H{"tool_name": "kv_get", "arguments": gin.H{"key": "x"}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success    bool           `json:"success"`
		Response   map[string]any `json:"response"`
		DurationMS *int64         `json:"duration_ms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "42", resp.Response["value"])
	require.NotNil(t, resp.DurationMS)

	// Tracking system message finalized, operation recorded.
	var sysMsg models.Message
	require.NoError(t, database.DB.Where("session_id = ? AND role = ?", session.ID, models.RoleSystem).First(&sysMsg).Error)
	assert.Equal(t, models.MessageCompleted, sysMsg.Status)
	assert.Contains(t, sysMsg.Content, "kv_get - success")

	w = env.do(t, http.MethodGet, "/api/sessions/"+session.ID.String()+"/operations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ops struct {
		Operations []models.MCPOperation `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ops))
	require.Len(t, ops.Operations, 1)
	assert.Equal(t, models.OperationSuccess, ops.Operations[0].Status)
}

func TestCallToolUnreachable(t *testing.T) {
	env := setupEnv(t, "", "http://127.0.0.1:1")
	session := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/sessions/"+session.ID.String()+"/mcp-tool",
		gin.H{"tool_name": "kv_get", "arguments": gin.H{"key": "x"}})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool           `json:"success"`
		Error   string         `json:"error"`
		Resp    map[string]any `json:"response"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)

	var sysMsg models.Message
	require.NoError(t, database.DB.Where("session_id = ? AND role = ?", session.ID, models.RoleSystem).First(&sysMsg).Error)
	assert.Equal(t, models.MessageError, sysMsg.Status)
}

func TestCallToolValidation(t *testing.T) {
	env := setupEnv(t, "", "")
	session := env.createSession(t)

	w := env.do(t, http.MethodPost, "/api/sessions/"+session.ID.String()+"/mcp-tool", gin.H{"arguments": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/sessions/"+session.ID.String()+"/mcp-tool",
		gin.H{"tool_name": "kv_explode"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreferencesGetOrCreate(t *testing.T) {
	env := setupEnv(t, "", "")

	w := env.do(t, http.MethodGet, "/api/preferences", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var prefs models.UserPreferences
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prefs))
	assert.Equal(t, models.ProviderOpenAI, prefs.PreferredAIProvider)
	assert.Equal(t, models.DefaultMaxTokens, prefs.MaxTokens)

	// Second read returns the same row, not a new one.
	w = env.do(t, http.MethodGet, "/api/preferences", nil)
	var again models.UserPreferences
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
	assert.Equal(t, prefs.ID, again.ID)
}

func TestPreferencesPartialUpdate(t *testing.T) {
	env := setupEnv(t, "", "")

	w := env.do(t, http.MethodPut, "/api/preferences", gin.H{"temperature": 0.1})
	require.Equal(t, http.StatusOK, w.Code)

	var prefs models.UserPreferences
	require.NoError(t, database.DB.Where("user_id = ?", env.user.ID).First(&prefs).Error)
	assert.Equal(t, 0.1, prefs.Temperature)
	// Untouched fields keep their defaults.
	assert.Equal(t, models.ProviderOpenAI, prefs.PreferredAIProvider)
	assert.Equal(t, models.DefaultOllamaModel, prefs.OllamaModel)
	assert.True(t, prefs.ShowTimestamps)
}

func TestPreferencesRejectsUnknownProvider(t *testing.T) {
	env := setupEnv(t, "", "")

	w := env.do(t, http.MethodPut, "/api/preferences", gin.H{"preferred_ai_provider": "skynet"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCapabilitiesProxy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"tools": []string{"kv_get"}})
	}))
	defer srv.Close()

	env := setupEnv(t, "", srv.URL)

	w := env.do(t, http.MethodGet, "/api/mcp/capabilities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kv_get")
}

func TestCapabilitiesError(t *testing.T) {
	env := setupEnv(t, "", "http://127.0.0.1:1")

	w := env.do(t, http.MethodGet, "/api/mcp/capabilities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}
