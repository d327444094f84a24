// Package llm talks to chat-completion models that support tool calling.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fintrack/internal/core"
)

// ErrProviderUnavailable is returned when the model cannot be reached or
// answers with something unusable. Callers do not retry.
var ErrProviderUnavailable = fmt.Errorf("language model provider unavailable: %w", core.ErrExternalService)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolChoice controls whether the model may call tools on this turn.
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

type (
	// ToolCall is a structured action requested by the model. Arguments
	// are raw JSON and must be treated as untrusted.
	ToolCall struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	// Message is one conversation turn. Tool results carry ToolCallID and
	// the tool Name; assistant turns may carry ToolCalls.
	Message struct {
		Role       Role       `json:"role"`
		Content    string     `json:"content"`
		ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
		ToolCallID string     `json:"tool_call_id,omitempty"`
		Name       string     `json:"name,omitempty"`
	}

	// Param describes one tool argument. Type is "string", "number" or
	// "integer".
	Param struct {
		Name        string
		Type        string
		Description string
		Enum        []string
		Required    bool
	}

	ToolDef struct {
		Name        string
		Description string
		Params      []Param
	}

	Request struct {
		System     string
		Messages   []Message
		Tools      []ToolDef
		ToolChoice ToolChoice
	}

	Response struct {
		Content   string
		ToolCalls []ToolCall
	}
)

// Provider is a chat model with tool calling.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// JSONSchema renders the tool parameters as a JSON Schema object.
func (t ToolDef) JSONSchema() map[string]any {
	props := make(map[string]any, len(t.Params))
	required := []string{}
	for _, p := range t.Params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

// ProviderError describes a failed model call. It matches
// ErrProviderUnavailable with errors.Is.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{ErrProviderUnavailable, e.Err} }

// Config selects and configures a provider.
type Config struct {
	Provider string // "openai" or "gemini"
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}
