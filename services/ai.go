package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"chatui/config"
	"chatui/models"
)

const generateTimeout = 60 * time.Second

// ChatTurn is one role-tagged entry of the conversation context sent
// to a completion backend.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerateOptions struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
}

// GenerateResult is a successful completion. TokensUsed is nil when
// the backend does not report usage (Ollama never does).
type GenerateResult struct {
	Content    string
	Model      string
	TokensUsed *int
}

// AIService generates assistant text from one of two interchangeable
// backends: the hosted OpenAI-compatible API or a local Ollama server.
// Transport failures come back as errors, never as panics; callers
// record them on the in-flight message.
type AIService struct {
	openaiKey     string
	openaiBaseURL string
	ollamaBaseURL string
	client        *http.Client
}

func NewAIService(cfg *config.Config) *AIService {
	return &AIService{
		openaiKey:     cfg.OpenAIAPIKey,
		openaiBaseURL: strings.TrimSuffix(cfg.OpenAIBaseURL, "/"),
		ollamaBaseURL: strings.TrimSuffix(cfg.OllamaBaseURL, "/"),
		client:        &http.Client{Timeout: generateTimeout},
	}
}

func (s *AIService) Generate(ctx context.Context, turns []ChatTurn, opts GenerateOptions) (GenerateResult, error) {
	switch opts.Provider {
	case models.ProviderOpenAI:
		if s.openaiKey == "" {
			return GenerateResult{}, fmt.Errorf("provider %s not available or not configured", opts.Provider)
		}
		return s.generateOpenAI(ctx, turns, opts)
	case models.ProviderOllama:
		return s.generateOllama(ctx, turns, opts)
	default:
		return GenerateResult{}, fmt.Errorf("provider %s not available or not configured", opts.Provider)
	}
}

func (s *AIService) generateOpenAI(ctx context.Context, turns []ChatTurn, opts GenerateOptions) (GenerateResult, error) {
	payload := map[string]any{
		"model":       opts.Model,
		"messages":    turns,
		"max_tokens":  opts.MaxTokens,
		"temperature": opts.Temperature,
	}

	body, err := s.post(ctx, s.openaiBaseURL+"/chat/completions", payload, "Bearer "+s.openaiKey)
	if err != nil {
		log.Printf("[AI] OpenAI API error: %v", err)
		return GenerateResult{}, err
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage *struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return GenerateResult{}, fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return GenerateResult{}, fmt.Errorf("empty choices in chat completion response")
	}

	result := GenerateResult{
		Content: resp.Choices[0].Message.Content,
		Model:   opts.Model,
	}
	if resp.Usage != nil {
		tokens := resp.Usage.TotalTokens
		result.TokensUsed = &tokens
	}
	return result, nil
}

func (s *AIService) generateOllama(ctx context.Context, turns []ChatTurn, opts GenerateOptions) (GenerateResult, error) {
	payload := map[string]any{
		"model":    opts.Model,
		"messages": turns,
		"stream":   false,
	}

	body, err := s.post(ctx, s.ollamaBaseURL+"/api/chat", payload, "")
	if err != nil {
		log.Printf("[AI] Ollama API error: %v", err)
		return GenerateResult{}, err
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return GenerateResult{}, fmt.Errorf("decode ollama response: %w", err)
	}

	// Ollama does not report token usage; leave TokensUsed nil.
	return GenerateResult{
		Content: resp.Message.Content,
		Model:   opts.Model,
	}, nil
}

func (s *AIService) post(ctx context.Context, endpoint string, payload any, authorization string) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
