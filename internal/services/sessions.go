package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

var ErrUnauthenticated = errors.New("missing or invalid session")

// Sessions issues and resolves bearer tokens. Only the SHA-256 of a token
// is stored.
type Sessions struct {
	queries *storage.Queries
	ttl     time.Duration
	now     func() time.Time
}

// NewSessions creates a session service. A zero ttl issues tokens that
// never expire.
func NewSessions(queries *storage.Queries, ttl time.Duration, now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{queries: queries, ttl: ttl, now: now}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateOwner registers a new owner with a random id.
func (s *Sessions) CreateOwner(ctx context.Context, displayName string) (core.Owner, error) {
	displayName = strings.TrimSpace(displayName)
	if err := core.ValidateName(displayName); err != nil {
		return core.Owner{}, err
	}
	o := core.Owner{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.queries.CreateOwner(ctx, o); err != nil {
		return core.Owner{}, err
	}
	return o, nil
}

// Issue creates a new token for owner. The plaintext is returned once.
func (s *Sessions) Issue(ctx context.Context, ownerID string) (string, error) {
	if _, err := s.queries.GetOwner(ctx, ownerID); err != nil {
		return "", err
	}
	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	now := s.now().UTC()
	var expires *time.Time
	if s.ttl > 0 {
		t := now.Add(s.ttl)
		expires = &t
	}
	if err := s.queries.CreateSession(ctx, hashToken(token), ownerID, now, expires); err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}
	return token, nil
}

// Resolve returns the owner a token belongs to.
func (s *Sessions) Resolve(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthenticated
	}
	owner, err := s.queries.SessionOwner(ctx, hashToken(token), s.now().UTC())
	if errors.Is(err, storage.ErrSessionNotFound) {
		return "", ErrUnauthenticated
	}
	return owner, err
}

// Revoke deletes a token. Unknown tokens are not an error.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	err := s.queries.DeleteSession(ctx, hashToken(token))
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil
	}
	return err
}
