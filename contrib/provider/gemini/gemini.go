// Package gemini adapts the Google generative AI SDK to the lexia provider
// contract.
package gemini

import (
	"context"
	"errors"
	"iter"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/sweetpotato0/lexia/message"
	"github.com/sweetpotato0/lexia/provider"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey string
	Model  string
}

// Provider implements provider.Provider backed by the Gemini API.
type Provider struct {
	config *Config
	client *genai.Client
}

// New creates a new Gemini provider. The client holds a connection, so the
// constructor takes a context and the provider should be closed on shutdown.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config.Model == "" {
		config.Model = "gemini-1.5-pro"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, err
	}

	return &Provider{config: config, client: client}, nil
}

// Name identifies this provider in fallback chains and audit records.
func (p *Provider) Name() string {
	return "gemini"
}

// Close releases the underlying client connection.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Stream sends the request and yields text deltas in arrival order.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if req == nil {
			yield("", provider.Fatal(p.Name(), errors.New("request cannot be nil")))
			return
		}

		modelName := req.Model
		if modelName == "" {
			modelName = p.config.Model
		}
		model := p.client.GenerativeModel(modelName)
		if req.SystemPrompt != "" {
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
		}
		if req.Temperature > 0 {
			model.SetTemperature(float32(req.Temperature))
		}
		if req.MaxTokens > 0 {
			model.SetMaxOutputTokens(int32(req.MaxTokens))
		}
		if tools := genaiTools(req.Tools); len(tools) > 0 {
			model.Tools = tools
		}

		conversation := message.Conversation(req.Messages)
		if len(conversation) == 0 {
			yield("", provider.Fatal(p.Name(), errors.New("no conversation messages")))
			return
		}

		chat := model.StartChat()
		for _, msg := range conversation[:len(conversation)-1] {
			role := "user"
			if msg.Role == message.RoleAssistant {
				role = "model"
			}
			chat.History = append(chat.History, &genai.Content{
				Role:  role,
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}

		last := conversation[len(conversation)-1]
		stream := chat.SendMessageStream(ctx, genai.Text(last.Content))
		for {
			resp, err := stream.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				yield("", classify(p.Name(), err))
				return
			}
			for _, cand := range resp.Candidates {
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					text, ok := part.(genai.Text)
					if !ok || text == "" {
						continue
					}
					if !yield(string(text), nil) {
						return
					}
				}
			}
		}
	}
}

// genaiTools converts function-call schemas to genai function declarations.
func genaiTools(specs []map[string]any) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		fn, ok := spec["function"].(map[string]any)
		if !ok {
			fn = spec
		}
		name, _ := fn["name"].(string)
		if name == "" {
			continue
		}
		decl := &genai.FunctionDeclaration{Name: name}
		decl.Description, _ = fn["description"].(string)
		if params, ok := fn["parameters"].(map[string]any); ok {
			decl.Parameters = genaiSchema(params)
		}
		decls = append(decls, decl)
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func genaiSchema(params map[string]any) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{},
		Required:   stringSlice(params["required"]),
	}
	props, _ := params["properties"].(map[string]any)
	for name, raw := range props {
		p, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		prop := &genai.Schema{Type: genaiType(p["type"])}
		prop.Description, _ = p["description"].(string)
		prop.Enum = stringSlice(p["enum"])
		schema.Properties[name] = prop
	}
	return schema
}

func genaiType(v any) genai.Type {
	s, _ := v.(string)
	switch s {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func stringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, e := range vals {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func classify(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return provider.Transient(name, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && !provider.StatusTransient(gerr.Code) {
		return provider.Fatal(name, err)
	}
	return provider.Transient(name, err)
}
