package proxy

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/flm-run/flm-proxy/core"
	"github.com/flm-run/flm-proxy/engine"
)

// chatMessage mirrors the OpenAI chat message shape.
type chatMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	Name       string           `json:"name,omitempty"`
	ToolCalls  []engine.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

// chatCompletionRequest is the public POST /v1/chat/completions body.
type chatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []chatMessage   `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	TopP        float32         `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Tools       []engine.ToolSchema `json:"tools,omitempty"`
	ToolChoice  string          `json:"tool_choice,omitempty"`
}

type chatCompletionChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Message      chatMessage `json:"message"`
}

type chatCompletionResponse struct {
	ID      string                  `json:"id"`
	Object  string                  `json:"object"`
	Model   string                  `json:"model"`
	Choices []chatCompletionChoice  `json:"choices"`
	Usage   engine.ChatUsage        `json:"usage"`
	Created int64                   `json:"created"`
}

type chatStreamChunk struct {
	ID      string                   `json:"id"`
	Object  string                   `json:"object"`
	Model   string                   `json:"model"`
	Choices []chatStreamChunkChoice  `json:"choices"`
	Usage   *engine.ChatUsage        `json:"usage,omitempty"`
}

type chatStreamChunkChoice struct {
	Index        int         `json:"index"`
	Delta        chatMessage `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// ChatHandler serves POST /v1/chat/completions, dispatching to the engine
// resolved from the request's model URI and branching to SSE when
// stream:true, grounded on api/handlers/chat.go's HandleCompletion/
// HandleStream pair.
type ChatHandler struct {
	engines *engine.Service
	logger  *zap.Logger
}

func NewChatHandler(engines *engine.Service, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{engines: engines, logger: logger}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}
	if err := validateChatRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	uri, _ := core.ParseModelURI(req.Model)
	adapter, err := h.engines.Resolve(uri)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	engineReq := toEngineChatRequest(&req, uri.Model)

	if req.Stream {
		h.stream(w, r, adapter, engineReq)
		return
	}

	resp, err := adapter.Completion(r.Context(), engineReq)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, fromEngineChatResponse(resp))
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, adapter engine.Adapter, req *engine.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, core.NewHTTPInvalidResponse("streaming not supported by this response writer"), h.logger)
		return
	}

	ch, err := adapter.Stream(r.Context(), req)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for chunk := range ch {
		if chunk.Err != nil {
			h.logger.Error("stream error", zap.Error(chunk.Err))
			payload, _ := json.Marshal(map[string]string{"error": chunk.Err.Error()})
			w.Write([]byte("event: error\ndata: "))
			w.Write(payload)
			w.Write([]byte("\n\n"))
			flusher.Flush()
			return
		}

		out := chatStreamChunk{
			ID:     chunk.ID,
			Object: "chat.completion.chunk",
			Model:  chunk.Model,
			Choices: []chatStreamChunkChoice{{
				Index:        chunk.Index,
				Delta:        chatMessage{Role: string(chunk.Delta.Role), Content: chunk.Delta.Content},
				FinishReason: chunk.FinishReason,
			}},
			Usage: chunk.Usage,
		}
		body, err := json.Marshal(out)
		if err != nil {
			h.logger.Error("failed to marshal stream chunk", zap.Error(err))
			return
		}
		w.Write([]byte("data: "))
		w.Write(body)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

func validateChatRequest(req *chatCompletionRequest) error {
	if req.Model == "" {
		return core.NewUserError("model is required")
	}
	if len(req.Messages) == 0 {
		return core.NewUserError("messages cannot be empty")
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return core.NewUserError("temperature must be between 0 and 2")
	}
	if req.TopP < 0 || req.TopP > 1 {
		return core.NewUserError("top_p must be between 0 and 1")
	}
	return nil
}

func toEngineChatRequest(req *chatCompletionRequest, model string) *engine.ChatRequest {
	messages := make([]engine.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = engine.Message{
			Role:       engine.Role(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		}
	}
	return &engine.ChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Tools:       req.Tools,
		ToolChoice:  req.ToolChoice,
	}
}

func fromEngineChatResponse(resp *engine.ChatResponse) chatCompletionResponse {
	choices := make([]chatCompletionChoice, len(resp.Choices))
	for i, c := range resp.Choices {
		choices[i] = chatCompletionChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message: chatMessage{
				Role:       string(c.Message.Role),
				Content:    c.Message.Content,
				Name:       c.Message.Name,
				ToolCalls:  c.Message.ToolCalls,
				ToolCallID: c.Message.ToolCallID,
			},
		}
	}
	return chatCompletionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Model:   resp.Model,
		Choices: choices,
		Usage:   resp.Usage,
		Created: resp.CreatedAt.Unix(),
	}
}
