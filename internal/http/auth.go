package http

import (
	"errors"
	"net/http"
	"strings"

	"fintrack/internal/log"
	"fintrack/internal/services"
)

type ownerHandler func(w http.ResponseWriter, r *http.Request, owner string)

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// authed resolves the session before calling next. The owner id is added
// to the request logger.
func (s *Server) authed(next ownerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token := bearerToken(r)
		if token == "" {
			s.unauthorized(w, r, services.ErrUnauthenticated)
			return
		}
		owner, err := s.deps.Auth.Resolve(ctx, token)
		if errors.Is(err, services.ErrUnauthenticated) {
			s.unauthorized(w, r, err)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		logger := log.FromContext(ctx).With(log.FieldOwner, owner)
		next(w, r.WithContext(log.NewContext(ctx, logger)), owner)
	}
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContext(r.Context()).WithComponent(log.ComponentAuth).DebugContext(r.Context(), "Unauthenticated request",
		log.FieldPath, r.URL.Path,
		log.FieldError, err)
	w.Header().Set("WWW-Authenticate", `Bearer realm="fintrack"`)
	writeError(w, r, err)
}
