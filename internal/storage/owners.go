package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
)

// ErrSessionNotFound is returned for unknown or expired session tokens.
var ErrSessionNotFound = errors.New("session not found")

func (q *Queries) CreateOwner(ctx context.Context, o core.Owner) error {
	_, err := q.exec(ctx,
		`INSERT INTO owners (id, display_name, created_at) VALUES (?, ?, ?)`,
		o.ID, o.DisplayName, timeArg(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert owner: %w", err)
	}
	return nil
}

func (q *Queries) GetOwner(ctx context.Context, id string) (core.Owner, error) {
	var o core.Owner
	err := q.queryRow(ctx,
		`SELECT id, display_name, created_at FROM owners WHERE id = ?`, id).
		Scan(&o.ID, &o.DisplayName, timeCol{&o.CreatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return o, core.ErrOwnerNotFound
	}
	if err != nil {
		return o, fmt.Errorf("get owner: %w", err)
	}
	return o, nil
}

func (q *Queries) ListOwners(ctx context.Context) ([]core.Owner, error) {
	rows, err := q.query(ctx, `SELECT id, display_name, created_at FROM owners ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var out []core.Owner
	for rows.Next() {
		var o core.Owner
		if err := rows.Scan(&o.ID, &o.DisplayName, timeCol{&o.CreatedAt}); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CreateSession stores the hash of a bearer token for owner.
func (q *Queries) CreateSession(ctx context.Context, tokenHash, ownerID string, now time.Time, expiresAt *time.Time) error {
	_, err := q.exec(ctx,
		`INSERT INTO sessions (token_hash, owner_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		tokenHash, ownerID, timeArg(now), optTimeArg(expiresAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SessionOwner resolves a token hash to its owner, ignoring expired sessions.
func (q *Queries) SessionOwner(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var (
		owner   string
		expires *time.Time
	)
	err := q.queryRow(ctx,
		`SELECT owner_id, expires_at FROM sessions WHERE token_hash = ?`, tokenHash).
		Scan(&owner, optTimeCol{&expires})
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	if expires != nil && !now.Before(*expires) {
		return "", ErrSessionNotFound
	}
	return owner, nil
}

func (q *Queries) DeleteSession(ctx context.Context, tokenHash string) error {
	res, err := q.exec(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return affected(res, ErrSessionNotFound)
}

const categoryColumns = `id, COALESCE(owner_id, ''), name, kind, segment`

func scanCategory(s interface{ Scan(...any) error }) (core.Category, error) {
	var c core.Category
	err := s.Scan(&c.ID, &c.Owner, &c.Name, &c.Kind, &c.Segment)
	return c, err
}

// ListCategories returns the shared categories plus the owner's own.
func (q *Queries) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	rows, err := q.query(ctx,
		`SELECT `+categoryColumns+` FROM categories
		 WHERE owner_id IS NULL OR owner_id = ?
		 ORDER BY kind, segment, name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) GetCategory(ctx context.Context, ownerID string, id int64) (core.Category, error) {
	c, err := scanCategory(q.queryRow(ctx,
		`SELECT `+categoryColumns+` FROM categories
		 WHERE id = ? AND (owner_id IS NULL OR owner_id = ?)`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return c, core.ErrCategoryNotFound
	}
	if err != nil {
		return c, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (q *Queries) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	err := q.queryRow(ctx,
		`INSERT INTO categories (owner_id, name, kind, segment) VALUES (?, ?, ?, ?) RETURNING id`,
		c.Owner, c.Name, string(c.Kind), c.Segment).Scan(&c.ID)
	if err != nil {
		return c, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}
