package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"fintrack/internal/log"
)

const DefaultGeminiModel = "gemini-2.5-flash"

const (
	geminiUser  = "user"
	geminiModel = "model"
)

// GeminiClient calls Gemini through the genai SDK.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *log.Logger
}

func NewGeminiClient(ctx context.Context, cfg Config, logger *log.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Discard()
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger.WithComponent(log.ComponentLLM),
	}, nil
}

func (c *GeminiClient) Name() string { return "gemini" }

func (c *GeminiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents, err := geminiContents(req.Messages)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, geminiConfig(req))
	if err != nil {
		return nil, &ProviderError{Provider: c.Name(), Err: err}
	}
	out, err := fromGemini(resp)
	if err != nil {
		return nil, &ProviderError{Provider: c.Name(), Err: err}
	}
	c.logger.DebugContext(ctx, "Chat completion finished",
		log.FieldProvider, c.Name(),
		log.FieldModel, c.model,
		log.FieldDuration, time.Since(start).Milliseconds(),
		"tool_calls", len(out.ToolCalls))
	return out, nil
}

func geminiConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.2)}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if len(req.Tools) == 0 {
		return cfg
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
	for _, t := range req.Tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  geminiSchema(t),
		})
	}
	cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	mode := genai.FunctionCallingConfigModeAuto
	if req.ToolChoice == ToolChoiceNone {
		mode = genai.FunctionCallingConfigModeNone
	}
	cfg.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode}}
	return cfg
}

func geminiSchema(t ToolDef) *genai.Schema {
	s := &genai.Schema{Type: genai.TypeObject, Properties: make(map[string]*genai.Schema, len(t.Params))}
	for _, p := range t.Params {
		prop := &genai.Schema{Description: p.Description, Enum: p.Enum}
		switch p.Type {
		case "number":
			prop.Type = genai.TypeNumber
		case "integer":
			prop.Type = genai.TypeInteger
		default:
			prop.Type = genai.TypeString
		}
		s.Properties[p.Name] = prop
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// geminiContents maps the conversation onto Gemini turns. Consecutive tool
// results are folded into one user turn of function responses.
func geminiContents(msgs []Message) ([]*genai.Content, error) {
	var out []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			out = append(out, &genai.Content{Role: geminiUser, Parts: []*genai.Part{{Text: m.Content}}})
		case RoleAssistant:
			c := &genai.Content{Role: geminiModel}
			if m.Content != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &args); err != nil {
						return nil, fmt.Errorf("tool call %s arguments: %w", tc.Name, err)
					}
				}
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			out = append(out, c)
		case RoleTool:
			var result map[string]any
			if err := json.Unmarshal([]byte(m.Content), &result); err != nil {
				result = map[string]any{"output": m.Content}
			}
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{ID: m.ToolCallID, Name: m.Name, Response: result}}
			if n := len(out); n > 0 && out[n-1].Role == geminiUser && isFunctionResponses(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, &genai.Content{Role: geminiUser, Parts: []*genai.Part{part}})
		default:
			return nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func isFunctionResponses(c *genai.Content) bool {
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return len(c.Parts) > 0
}

func fromGemini(resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("no candidates returned")
	}
	out := &Response{}
	var text []string
	for i, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.Text != "" {
			text = append(text, p.Text)
		}
		if fc := p.FunctionCall; fc != nil {
			args, err := json.Marshal(fc.Args)
			if err != nil {
				return nil, fmt.Errorf("encode %s arguments: %w", fc.Name, err)
			}
			if fc.Args == nil {
				args = json.RawMessage("{}")
			}
			id := fc.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: id, Name: fc.Name, Arguments: args})
		}
	}
	out.Content = strings.TrimSpace(strings.Join(text, ""))
	return out, nil
}
