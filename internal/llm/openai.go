package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/inkgate/inkgate/internal/logging"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, LM Studio, Ollama, OpenRouter).
type OpenAIClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewOpenAIClient creates a client for the given base URL. An empty API
// key is valid for local providers.
func NewOpenAIClient(baseURL, apiKey string) *OpenAIClient {
	return &OpenAIClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Wire types for the chat completions protocol.

type wireToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type wireRequest struct {
	Model         string        `json:"model"`
	Messages      []wireMessage `json:"messages"`
	Tools         []wireTool    `json:"tools,omitempty"`
	Stream        bool          `json:"stream"`
	StreamOptions struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options"`
}

type wireDelta struct {
	Content   *string `json:"content"`
	ToolCalls []struct {
		Index    int     `json:"index"`
		ID       *string `json:"id"`
		Function *struct {
			Name      *string `json:"name"`
			Arguments *string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

type wireChunk struct {
	Choices []struct {
		Delta        wireDelta `json:"delta"`
		FinishReason *string   `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens        int64 `json:"prompt_tokens"`
		CompletionTokens    int64 `json:"completion_tokens"`
		PromptTokensDetails *struct {
			CachedTokens int64 `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
		CompletionTokensDetails *struct {
			ReasoningTokens int64 `json:"reasoning_tokens"`
		} `json:"completion_tokens_details"`
	} `json:"usage"`
}

func buildWireRequest(req *Request) wireRequest {
	wr := wireRequest{Model: req.Model, Stream: true}
	wr.StreamOptions.IncludeUsage = true

	for _, m := range req.Messages {
		wm := wireMessage{Role: string(m.Role), ToolCallID: m.ToolCallID}
		if m.Content != "" || len(m.ToolCalls) == 0 {
			content := m.Content
			wm.Content = &content
		}
		for _, tc := range m.ToolCalls {
			var wtc wireToolCall
			wtc.ID = tc.ID
			wtc.Type = "function"
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = tc.Arguments
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		wr.Messages = append(wr.Messages, wm)
	}

	for _, t := range req.Tools {
		var wt wireTool
		wt.Type = "function"
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		wr.Tools = append(wr.Tools, wt)
	}
	return wr
}

// Stream opens a streaming chat completion. Events are delivered in
// provider order; tool call deltas are accumulated by index and
// emitted as one EventToolCalls when the provider reports the
// tool_calls finish reason.
func (c *OpenAIClient) Stream(ctx context.Context, req *Request) (<-chan Event, error) {
	payload, err := json.Marshal(buildWireRequest(req))
	if err != nil {
		return nil, &TransportError{Op: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Op: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	logging.Debug("llm: streaming request to %s (model %s)", c.BaseURL, req.Model)
	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &TransportError{Op: "connect",
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	events := make(chan Event, 16)
	go c.consume(resp.Body, events)
	return events, nil
}

func (c *OpenAIClient) consume(body io.ReadCloser, events chan<- Event) {
	defer close(events)
	defer body.Close()

	var calls []ToolCall
	sawToolCalls := false

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk wireChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			events <- Event{Type: EventError, Err: &TransportError{Op: "decode chunk", Err: err}}
			return
		}

		if chunk.Usage != nil {
			usage := Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
			if chunk.Usage.PromptTokensDetails != nil {
				usage.CacheTokens = chunk.Usage.PromptTokensDetails.CachedTokens
			}
			if chunk.Usage.CompletionTokensDetails != nil {
				usage.ReasoningTokens = chunk.Usage.CompletionTokensDetails.ReasoningTokens
			}
			events <- Event{Type: EventUsage, Usage: &usage}
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != nil && *choice.Delta.Content != "" {
				events <- Event{Type: EventContentDelta, Text: *choice.Delta.Content}
			}

			for _, tc := range choice.Delta.ToolCalls {
				for len(calls) <= tc.Index {
					calls = append(calls, ToolCall{})
				}
				if tc.ID != nil {
					calls[tc.Index].ID = *tc.ID
				}
				if tc.Function != nil {
					if tc.Function.Name != nil {
						calls[tc.Index].Name = *tc.Function.Name
					}
					if tc.Function.Arguments != nil {
						calls[tc.Index].Arguments += *tc.Function.Arguments
					}
				}
			}

			if choice.FinishReason != nil && *choice.FinishReason == "tool_calls" {
				sawToolCalls = true
			}
		}
	}
	if err := scanner.Err(); err != nil {
		events <- Event{Type: EventError, Err: &TransportError{Op: "read stream", Err: err}}
		return
	}

	if sawToolCalls && len(calls) > 0 {
		events <- Event{Type: EventToolCalls, Calls: calls}
	}
	events <- Event{Type: EventDone}
}
