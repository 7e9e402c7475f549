// Package claude adapts the Anthropic SDK to the lexia provider contract.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/sweetpotato0/lexia/message"
	"github.com/sweetpotato0/lexia/provider"
)

// Config holds Claude provider configuration
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider implements provider.Provider backed by the Anthropic API.
type Provider struct {
	config *Config
	client anthropic.Client
}

// New creates a new Claude provider using the official SDK
func New(config *Config) *Provider {
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5-20250929"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		config: config,
		client: anthropic.NewClient(options...),
	}
}

// Name identifies this provider in fallback chains and audit records.
func (p *Provider) Name() string {
	return "claude"
}

// Stream sends the request and yields text deltas in arrival order.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if req == nil {
			yield("", provider.Fatal(p.Name(), errors.New("request cannot be nil")))
			return
		}

		conversation := make([]anthropic.MessageParam, 0, len(req.Messages))
		for _, msg := range message.Conversation(req.Messages) {
			switch msg.Role {
			case message.RoleUser:
				conversation = append(conversation,
					anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			case message.RoleAssistant:
				conversation = append(conversation,
					anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}

		model := req.Model
		if model == "" {
			model = p.config.Model
		}
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			Messages:  conversation,
			MaxTokens: req.MaxTokens,
		}
		if req.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
		}
		if req.Temperature > 0 {
			params.Temperature = param.NewOpt(req.Temperature)
		}
		if len(req.Tools) > 0 {
			tools, err := anthropicTools(req.Tools)
			if err != nil {
				yield("", provider.Fatal(p.Name(), err))
				return
			}
			params.Tools = tools
		}

		stream := p.client.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			switch eventVariant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if deltaVariant.Text == "" {
						continue
					}
					if !yield(deltaVariant.Text, nil) {
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			yield("", classify(p.Name(), err))
		}
	}
}

// anthropicTools converts function-call schemas to the Anthropic tool shape,
// where name, description and input schema sit at the top level.
func anthropicTools(specs []map[string]any) ([]anthropic.ToolUnionParam, error) {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		fn, ok := spec["function"].(map[string]any)
		if !ok {
			fn = spec
		}
		raw, err := json.Marshal(map[string]any{
			"name":         fn["name"],
			"description":  fn["description"],
			"input_schema": fn["parameters"],
		})
		if err != nil {
			return nil, fmt.Errorf("marshal tool: %w", err)
		}
		var toolParam anthropic.ToolParam
		if err := json.Unmarshal(raw, &toolParam); err != nil {
			return nil, fmt.Errorf("unmarshal tool param: %w", err)
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return tools, nil
}

func classify(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return provider.Transient(name, err)
	}
	var apierr *anthropic.Error
	if errors.As(err, &apierr) && !provider.StatusTransient(apierr.StatusCode) {
		return provider.Fatal(name, err)
	}
	return provider.Transient(name, err)
}
