package sealion

import (
	"context"
	"time"

	"github.com/tjfontaine/voicebank-gateway/internal/config"
	"github.com/tjfontaine/voicebank-gateway/internal/domain"
)

// Provider wraps the client with the fixed sampling parameters for the
// action-extraction workload: low temperature for deterministic structured
// output, bounded completion length, thinking mode on (the sanitizer
// strips the reasoning segment), and caching disabled so every turn gets a
// fresh completion.
type Provider struct {
	client  *Client
	model   string
	maxTok  int
	temp    float32
	timeout time.Duration
}

// NewProvider builds a provider from configuration.
func NewProvider(cfg config.SeaLionConfig, opts ...ClientOption) *Provider {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts = append([]ClientOption{WithBaseURL(cfg.BaseURL)}, opts...)
	return &Provider{
		client:  NewClient(cfg.APIKey, opts...),
		model:   cfg.Model,
		maxTok:  cfg.MaxCompletionTokens,
		temp:    cfg.Temperature,
		timeout: timeout,
	}
}

// Complete submits one message sequence and returns the completion text.
// An empty choice list comes back as a transport error so the caller's
// fail-open path engages.
func (p *Provider) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, &ChatCompletionRequest{
		Model:               p.model,
		Messages:            messages,
		MaxCompletionTokens: p.maxTok,
		Temperature:         p.temp,
		ChatTemplateKwargs:  map[string]any{"thinking_mode": "on"},
		Cache:               map[string]any{"no-cache": true},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", domain.ErrTransport("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
