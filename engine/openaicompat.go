package engine

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

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/internal/tlsutil"
)

// ClientConfig configures one OpenAI-compatible backend connection. Every
// adapter kind (ollama/vllm/lmstudio/llamacpp) constructs a Client from its
// own defaults and returns it as its Adapter.
type ClientConfig struct {
	Kind            string
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	ChatPath        string
	ModelsPath      string
	EmbeddingsPath  string
	SupportsEmbed   bool
}

// Client is the shared HTTP client every OpenAI-compatible adapter constructor returns.
// It owns request construction, SSE parsing, and error mapping so each
// backend-kind file only has to supply its Config.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a Client with the configured defaults applied.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ChatPath == "" {
		cfg.ChatPath = "/v1/chat/completions"
	}
	if cfg.ModelsPath == "" {
		cfg.ModelsPath = "/v1/models"
	}
	if cfg.EmbeddingsPath == "" {
		cfg.EmbeddingsPath = "/v1/embeddings"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("engine_kind", cfg.Kind)),
	}
}

func (c *Client) Kind() string { return c.cfg.Kind }

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(data)
}

func mapHTTPError(status int, msg string) *core.Error {
	switch {
	case status == http.StatusTooManyRequests, status >= 500:
		return core.NewEngineNetworkError(msg).WithStatus(status)
	default:
		return core.NewEngineAPIError(status, msg)
	}
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name       string          `json:"name"`
		Parameters json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  interface{}   `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireChoice struct {
	Index        int          `json:"index"`
	FinishReason string       `json:"finish_reason"`
	Message      wireMessage  `json:"message"`
	Delta        *wireMessage `json:"delta,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage,omitempty"`
	Created int64        `json:"created,omitempty"`
}

func toWireMessages(msgs []Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{Role: string(m.Role), Name: m.Name, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{ID: tc.ID, Type: "function", Function: struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			}{Name: tc.Name, Arguments: tc.Arguments}})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []ToolSchema) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		wt := wireTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Parameters = t.Parameters
		out = append(out, wt)
	}
	return out
}

func fromWireResponse(wr wireResponse) *ChatResponse {
	choices := make([]ChatChoice, 0, len(wr.Choices))
	for _, c := range wr.Choices {
		msg := Message{Role: RoleAssistant, Content: c.Message.Content, Name: c.Message.Name}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
		choices = append(choices, ChatChoice{Index: c.Index, FinishReason: c.FinishReason, Message: msg})
	}
	resp := &ChatResponse{ID: wr.ID, Model: wr.Model, Choices: choices}
	if wr.Usage != nil {
		resp.Usage = ChatUsage{PromptTokens: wr.Usage.PromptTokens, CompletionTokens: wr.Usage.CompletionTokens, TotalTokens: wr.Usage.TotalTokens}
	}
	if wr.Created != 0 {
		resp.CreatedAt = time.Unix(wr.Created, 0)
	}
	return resp
}

func (c *Client) buildRequest(req *ChatRequest, stream bool) wireRequest {
	wr := wireRequest{
		Model:       req.Model,
		Messages:    toWireMessages(req.Messages),
		Tools:       toWireTools(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}
	if req.ToolChoice != "" {
		wr.ToolChoice = req.ToolChoice
	}
	return wr
}

// Completion performs a non-streaming chat completion against the chat path.
func (c *Client) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	payload, err := json.Marshal(c.buildRequest(req, false))
	if err != nil {
		return nil, core.NewEngineInvalidResponse("failed to marshal chat request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.ChatPath), bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewEngineNetworkError("failed to build request").WithCause(err)
	}
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, core.NewEngineNetworkError(err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, core.NewEngineInvalidResponse("malformed chat response").WithCause(err)
	}
	return fromWireResponse(wr), nil
}

// Stream performs a streaming chat completion, parsing the backend's SSE
// frames into StreamChunk values on the returned channel.
func (c *Client) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	payload, err := json.Marshal(c.buildRequest(req, true))
	if err != nil {
		return nil, core.NewEngineInvalidResponse("failed to marshal chat request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.ChatPath), bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewEngineNetworkError("failed to build request").WithCause(err)
	}
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, core.NewEngineNetworkError(err.Error()).WithCause(err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	return streamSSE(ctx, resp.Body), nil
}

// streamSSE parses a `text/event-stream` body of OpenAI-compatible chat
// chunks, the wire format common to every supported backend kind.
func streamSSE(ctx context.Context, body io.ReadCloser) <-chan StreamChunk {
	ch := make(chan StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					select {
					case <-ctx.Done():
					case ch <- StreamChunk{Err: core.NewEngineNetworkError(err.Error()).WithCause(err)}:
					}
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var wr wireResponse
			if err := json.Unmarshal([]byte(data), &wr); err != nil {
				select {
				case <-ctx.Done():
				case ch <- StreamChunk{Err: core.NewEngineInvalidResponse("malformed stream chunk").WithCause(err)}:
				}
				return
			}

			for _, choice := range wr.Choices {
				chunk := StreamChunk{ID: wr.ID, Model: wr.Model, Index: choice.Index, FinishReason: choice.FinishReason, Delta: Message{Role: RoleAssistant}}
				if choice.Delta != nil {
					chunk.Delta.Content = choice.Delta.Content
					for _, tc := range choice.Delta.ToolCalls {
						chunk.Delta.ToolCalls = append(chunk.Delta.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
					}
				}
				select {
				case <-ctx.Done():
					return
				case ch <- chunk:
				}
			}
		}
	}()
	return ch
}

// Embeddings calls the backend's embeddings endpoint. Backends that never
// expose one (plain llama.cpp server builds without `--embedding`) should
// set SupportsEmbed false so callers get a clear not-found rather than a
// confusing 404 body.
func (c *Client) Embeddings(ctx context.Context, req *EmbeddingsRequest) (*EmbeddingsResponse, error) {
	if !c.cfg.SupportsEmbed {
		return nil, core.NewEngineNotFound(fmt.Sprintf("%s backend does not support embeddings", c.cfg.Kind))
	}

	payload, err := json.Marshal(struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{Model: req.Model, Input: req.Input})
	if err != nil {
		return nil, core.NewEngineInvalidResponse("failed to marshal embeddings request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.cfg.EmbeddingsPath), bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewEngineNetworkError("failed to build request").WithCause(err)
	}
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, core.NewEngineNetworkError(err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	var wireResp struct {
		Model string `json:"model"`
		Data  []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
		Usage wireUsage `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, core.NewEngineInvalidResponse("malformed embeddings response").WithCause(err)
	}

	out := &EmbeddingsResponse{
		Model: wireResp.Model,
		Usage: ChatUsage{PromptTokens: wireResp.Usage.PromptTokens, TotalTokens: wireResp.Usage.TotalTokens},
	}
	for _, d := range wireResp.Data {
		out.Data = append(out.Data, Embedding{Index: d.Index, Embedding: d.Embedding})
	}
	return out, nil
}

// ListModels calls the backend's model-listing endpoint.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.cfg.ModelsPath), nil)
	if err != nil {
		return nil, core.NewEngineNetworkError("failed to build request").WithCause(err)
	}
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, core.NewEngineNetworkError(err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	var listResp struct {
		Data []struct {
			ID      string `json:"id"`
			Object  string `json:"object"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, core.NewEngineInvalidResponse("malformed models response").WithCause(err)
	}

	out := make([]ModelInfo, 0, len(listResp.Data))
	for _, m := range listResp.Data {
		out = append(out, ModelInfo{ID: m.ID, Object: m.Object, OwnedBy: m.OwnedBy})
	}
	return out, nil
}

// HealthCheck probes the models endpoint, the lightest GET every
// OpenAI-compatible backend answers without side effects.
func (c *Client) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.cfg.ModelsPath), nil)
	if err != nil {
		return nil, core.NewEngineNetworkError("failed to build request").WithCause(err)
	}
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &HealthStatus{Healthy: false, Latency: latency}, core.NewEngineNetworkError(err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := readErrorMessage(resp.Body)
		return &HealthStatus{Healthy: false, Latency: latency}, mapHTTPError(resp.StatusCode, msg)
	}
	return &HealthStatus{Healthy: true, Latency: latency}, nil
}
