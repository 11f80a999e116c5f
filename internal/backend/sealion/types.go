package sealion

import "github.com/tjfontaine/voicebank-gateway/internal/domain"

// ChatCompletionRequest is the request body for the chat completions
// endpoint. The SEA-LION API is OpenAI-compatible with two extensions:
// chat_template_kwargs controls the reasoning variant's thinking mode, and
// cache opts out of response caching.
type ChatCompletionRequest struct {
	Model               string           `json:"model"`
	Messages            []domain.Message `json:"messages"`
	MaxCompletionTokens int              `json:"max_completion_tokens,omitempty"`
	// Temperature is always sent: zero is a meaningful sampling choice,
	// not an unset value, so it must not collapse to the API default.
	Temperature float32 `json:"temperature"`
	ChatTemplateKwargs  map[string]any   `json:"chat_template_kwargs,omitempty"`
	Cache               map[string]any   `json:"cache,omitempty"`
}

// ChatCompletionResponse is the completion result.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a single completion choice.
type Choice struct {
	Index        int            `json:"index"`
	Message      domain.Message `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// errorResponse is the error envelope the API returns on non-2xx.
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
