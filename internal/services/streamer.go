// Package services – completion streaming
//
// This file defines the Streamer abstraction AssistantService talks to and its
// production implementation over the OpenAI chat completions API. Tests supply
// scripted Streamers instead.
package services

import (
	"context"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nereus-ai/chat-backend/internal/domain"
)

// Streamer produces a streaming chat completion for the given conversation,
// invoking onDelta for every content fragment as it arrives. A non-nil error
// from onDelta aborts the stream and is returned unchanged.
type Streamer interface {
	StreamCompletion(ctx context.Context, messages []domain.Message, onDelta func(delta string) error) error
}

// OpenAIStreamer streams completions from an OpenAI-compatible endpoint.
type OpenAIStreamer struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIStreamer builds a streamer for the given credentials. baseURL is
// optional and overrides the default API host (for Azure or local gateways).
func NewOpenAIStreamer(apiKey, baseURL, model string) *OpenAIStreamer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIStreamer{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: 0.8,
		maxTokens:   2048,
	}
}

// StreamCompletion implements Streamer.
func (p *OpenAIStreamer) StreamCompletion(ctx context.Context, messages []domain.Message, onDelta func(delta string) error) error {
	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			if cbErr := onDelta(delta); cbErr != nil {
				return cbErr
			}
		}
	}
}

// toOpenAIMessages maps conversation turns onto API roles. The "data" role is
// a client-side rendering concern and is not forwarded.
func toOpenAIMessages(messages []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == domain.RoleData {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		})
	}
	return out
}
