// Package agent turns chat messages into ledger mutations through a
// tool-calling language model.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"fintrack/internal/core"
	"fintrack/internal/llm"
	"fintrack/internal/log"
)

const (
	// MaxHistory is how many trailing messages are sent to the model.
	MaxHistory = 20
	// MaxMessageLength bounds a single chat message, in characters.
	MaxMessageLength = 4000
)

// SnapshotSource builds the context handed to the model.
type SnapshotSource interface {
	Build(ctx context.Context, owner string) (core.Snapshot, error)
}

// ChatMessage is a turn as sent by the client.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PrepareHistory validates client history and keeps the last MaxHistory
// turns. Only user and assistant text is accepted; the last turn must come
// from the user.
func PrepareHistory(msgs []ChatMessage) ([]llm.Message, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: messages", core.ErrMissingField)
	}
	if len(msgs) > MaxHistory {
		msgs = msgs[len(msgs)-MaxHistory:]
	}
	out := make([]llm.Message, 0, len(msgs))
	for i, m := range msgs {
		role := llm.Role(strings.ToLower(strings.TrimSpace(m.Role)))
		if role != llm.RoleUser && role != llm.RoleAssistant {
			return nil, fmt.Errorf("%w: message %d has role %q", core.ErrInvalidArgument, i, m.Role)
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			return nil, fmt.Errorf("%w: message %d content", core.ErrMissingField, i)
		}
		if utf8.RuneCountInString(content) > MaxMessageLength {
			return nil, fmt.Errorf("%w: message %d is too long", core.ErrInvalidArgument, i)
		}
		out = append(out, llm.Message{Role: role, Content: content})
	}
	if out[len(out)-1].Role != llm.RoleUser {
		return nil, fmt.Errorf("%w: last message must come from the user", core.ErrInvalidArgument)
	}
	return out, nil
}

// Orchestrator runs one chat turn: context, first pass, tool dispatch and
// second pass.
type Orchestrator struct {
	provider  llm.Provider
	exec      Executor
	snapshots SnapshotSource
	logger    *log.Logger
}

func NewOrchestrator(provider llm.Provider, exec Executor, snapshots SnapshotSource, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Discard()
	}
	return &Orchestrator{
		provider:  provider,
		exec:      exec,
		snapshots: snapshots,
		logger:    logger.WithComponent(log.ComponentAgent),
	}
}

// Respond answers the latest user message in history. Tool calls are
// executed for owner only, in the order the model emitted them. Mutations
// already applied are kept if the second pass fails.
func (o *Orchestrator) Respond(ctx context.Context, owner string, history []llm.Message) (string, error) {
	snap, err := o.snapshots.Build(ctx, owner)
	if err != nil {
		return "", fmt.Errorf("build context: %w", err)
	}
	system, err := SystemPrompt(snap)
	if err != nil {
		return "", err
	}

	defs := Definitions()
	first, err := o.complete(ctx, llm.Request{System: system, Messages: history, Tools: defs, ToolChoice: llm.ToolChoiceAuto})
	if err != nil {
		return "", err
	}
	if len(first.ToolCalls) == 0 {
		return first.Content, nil
	}

	convo := make([]llm.Message, 0, len(history)+1+len(first.ToolCalls))
	convo = append(convo, history...)
	convo = append(convo, llm.Message{Role: llm.RoleAssistant, Content: first.Content, ToolCalls: first.ToolCalls})

	results := make([]ToolResult, 0, len(first.ToolCalls))
	for _, call := range first.ToolCalls {
		res := o.Dispatch(ctx, owner, call)
		results = append(results, res)
		convo = append(convo, llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Name: call.Name, Content: res.JSON()})
	}

	second, err := o.complete(ctx, llm.Request{System: system, Messages: convo, Tools: defs, ToolChoice: llm.ToolChoiceNone})
	if err != nil {
		return "", err
	}
	if len(second.ToolCalls) > 0 {
		o.logger.WarnContext(ctx, "Ignoring tool calls in second pass",
			log.FieldOwner, owner,
			"tool_calls", len(second.ToolCalls))
	}
	if second.Content == "" {
		return fallbackReply(results), nil
	}
	return second.Content, nil
}

func (o *Orchestrator) complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := o.provider.Complete(ctx, req)
	if err != nil {
		o.logger.ErrorContext(ctx, "Language model call failed",
			log.FieldProvider, o.provider.Name(),
			log.FieldError, err)
		if errors.Is(err, llm.ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", llm.ErrProviderUnavailable, err)
	}
	return resp, nil
}

// Dispatch runs one tool call and converts any outcome into a ToolResult.
func (o *Orchestrator) Dispatch(ctx context.Context, owner string, call llm.ToolCall) ToolResult {
	t, ok := toolIndex[call.Name]
	if !ok {
		err := fmt.Errorf("%w: unknown tool %q", core.ErrInvalidArgument, call.Name)
		o.logDispatch(ctx, owner, call, err)
		return failure(err)
	}
	data, err := t.run(ctx, o.exec, owner, call.Arguments)
	o.logDispatch(ctx, owner, call, err)
	if err != nil {
		return failure(err)
	}
	return success(data)
}

func (o *Orchestrator) logDispatch(ctx context.Context, owner string, call llm.ToolCall, err error) {
	args := []any{
		log.FieldOwner, owner,
		log.FieldTool, call.Name,
		log.FieldToolCallID, call.ID,
		log.FieldOperation, log.OpDispatch,
		log.FieldSuccess, err == nil,
	}
	switch {
	case err == nil:
		o.logger.InfoContext(ctx, "Tool call executed", args...)
	case core.IsDomainError(err):
		o.logger.InfoContext(ctx, "Tool call rejected", append(args, log.FieldErrorKind, core.KindOf(err), log.FieldError, err)...)
	default:
		o.logger.ErrorContext(ctx, "Tool call failed", append(args, log.FieldErrorKind, core.KindOf(err), log.FieldError, err)...)
	}
}

func fallbackReply(results []ToolResult) string {
	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	return fmt.Sprintf("Completed %d of %d requested actions.", ok, len(results))
}
