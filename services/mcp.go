package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	mcpCallTimeout = 30 * time.Second
	mcpCapsTimeout = 10 * time.Second
)

// MCPClient talks to the external tool server. It keeps no state
// beyond a reusable HTTP client; every invocation is at-most-once and
// is never retried here.
type MCPClient struct {
	baseURL string
	client  *http.Client
}

func NewMCPClient(baseURL string) *MCPClient {
	return &MCPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: mcpCallTimeout},
	}
}

// ToolResult reports a single tool invocation. DurationMS is the
// wall-clock time around the round trip and is populated on every
// outcome, including failures.
type ToolResult struct {
	Success    bool
	Data       map[string]any
	Error      string
	TimedOut   bool
	DurationMS int64
}

type toolCallEnvelope struct {
	Method string         `json:"method"`
	Params toolCallParams `json:"params"`
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// CallTool posts a tools/call envelope to the MCP server, with the
// chat session's id as the tool server's session correlation key.
func (c *MCPClient) CallTool(ctx context.Context, sessionID, toolName string, arguments map[string]any) ToolResult {
	endpoint := c.baseURL + "/mcp/message?sessionId=" + url.QueryEscape(sessionID)

	payload, err := json.Marshal(toolCallEnvelope{
		Method: "tools/call",
		Params: toolCallParams{Name: toolName, Arguments: arguments},
	})
	if err != nil {
		return ToolResult{Error: fmt.Sprintf("marshal tool call: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return ToolResult{Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		log.Printf("[MCP] Tool call failed: %s - %v", toolName, err)
		return ToolResult{
			Error:      err.Error(),
			TimedOut:   isTimeout(err),
			DurationMS: duration,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return ToolResult{Error: fmt.Sprintf("read response body: %v", err), DurationMS: duration}
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("[MCP] Tool call failed: %s - %d", toolName, resp.StatusCode)
		return ToolResult{
			Error:      fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
			DurationMS: duration,
		}
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return ToolResult{Error: fmt.Sprintf("decode response: %v", err), DurationMS: duration}
	}

	log.Printf("[MCP] Tool call successful: %s in %dms", toolName, duration)
	return ToolResult{Success: true, Data: data, DurationMS: duration}
}

// GetCapabilities fetches the tool server's capability listing.
func (c *MCPClient) GetCapabilities(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, mcpCapsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/mcp/capabilities", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var caps map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&caps); err != nil {
		return nil, fmt.Errorf("decode capabilities: %w", err)
	}
	return caps, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
