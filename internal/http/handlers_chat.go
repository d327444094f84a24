package http

import (
	"context"
	"net/http"
	"strings"

	"fintrack/internal/agent"
	"fintrack/internal/log"
)

type chatRequest struct {
	Messages []agent.ChatMessage `json:"messages"`
	UserID   string              `json:"userId,omitempty"`
}

type chatResponse struct {
	Message string `json:"message"`
}

// handleChat answers one turn of the assistant. The owner always comes from
// the session; a userId in the body is only checked and logged.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, owner string) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentAgent)

	if s.deps.Chat == nil {
		_ = ErrorResponse(http.StatusServiceUnavailable, "the assistant is not configured").Write(w)
		return
	}

	var req chatRequest
	if err := decodeJSON(w, r, s.opts.MaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if uid := strings.TrimSpace(req.UserID); uid != "" && uid != owner {
		logger.WarnContext(ctx, "Ignoring userId that does not match the session",
			"body_user_id", sanitizeInput(uid))
	}

	history, err := agent.PrepareHistory(req.Messages)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ChatTimeout)
	defer cancel()

	reply, err := s.deps.Chat.Respond(ctx, owner, history)
	if err != nil {
		s.metrics.add(&s.metrics.chatErrors)
		writeError(w, r, err)
		return
	}
	s.metrics.add(&s.metrics.chatTurns)
	writeJSON(w, http.StatusOK, chatResponse{Message: reply})
}
