// Package openai adapts the OpenAI SDK to the lexia provider contract.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/sweetpotato0/lexia/message"
	"github.com/sweetpotato0/lexia/provider"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider implements provider.Provider backed by the OpenAI API.
type Provider struct {
	config *Config
	client openai.Client
}

// New creates a new OpenAI provider using the official SDK
func New(config *Config) *Provider {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		config: config,
		client: openai.NewClient(options...),
	}
}

// Name identifies this provider in fallback chains and audit records.
func (p *Provider) Name() string {
	return "openai"
}

// Stream sends the request and yields text deltas in arrival order.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if req == nil {
			yield("", provider.Fatal(p.Name(), errors.New("request cannot be nil")))
			return
		}

		oaMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
		if req.SystemPrompt != "" {
			oaMessages = append(oaMessages, openai.SystemMessage(req.SystemPrompt))
		}
		for _, msg := range message.Conversation(req.Messages) {
			switch msg.Role {
			case message.RoleUser:
				oaMessages = append(oaMessages, openai.UserMessage(msg.Content))
			case message.RoleAssistant:
				oaMessages = append(oaMessages, openai.AssistantMessage(msg.Content))
			}
		}

		model := req.Model
		if model == "" {
			model = p.config.Model
		}
		params := openai.ChatCompletionNewParams{
			Messages: oaMessages,
			Model:    openai.ChatModel(model),
		}
		if req.Temperature > 0 {
			params.Temperature = param.NewOpt(req.Temperature)
		}
		if req.MaxTokens > 0 {
			params.MaxCompletionTokens = param.NewOpt(req.MaxTokens)
		}

		if len(req.Tools) > 0 {
			oaTools := make([]openai.ChatCompletionToolUnionParam, 0, len(req.Tools))
			for _, tool := range req.Tools {
				toolJSON, err := json.Marshal(tool)
				if err != nil {
					yield("", provider.Fatal(p.Name(), fmt.Errorf("failed to marshal tool: %w", err)))
					return
				}
				var toolParam openai.ChatCompletionToolUnionParam
				if err := json.Unmarshal(toolJSON, &toolParam); err != nil {
					yield("", provider.Fatal(p.Name(), fmt.Errorf("failed to unmarshal tool param: %w", err)))
					return
				}
				oaTools = append(oaTools, toolParam)
			}
			params.Tools = oaTools
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			if len(event.Choices) == 0 {
				continue
			}
			if delta := event.Choices[0].Delta.Content; delta != "" {
				if !yield(delta, nil) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			yield("", classify(p.Name(), err))
		}
	}
}

func classify(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return provider.Transient(name, err)
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) && !provider.StatusTransient(apierr.StatusCode) {
		return provider.Fatal(name, err)
	}
	return provider.Transient(name, err)
}
