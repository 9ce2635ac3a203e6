package db

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrTokenNotFound is returned when no active token matches.
var ErrTokenNotFound = errors.New("api token not found")

const tokenBytes = 32

// APIToken grants a merchant access to the upload endpoint.
type APIToken struct {
	ID         int64      `json:"id"`
	Token      string     `json:"token"`
	Name       string     `json:"name"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	UsageCount int64      `json:"usage_count"`
}

// CreateToken generates a random 64-char hex token under the given name and
// stores it active.
func (db *DB) CreateToken(ctx context.Context, name string) (*APIToken, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	token := &APIToken{
		Token:    hex.EncodeToString(buf),
		Name:     name,
		IsActive: true,
	}

	err := db.Pool.QueryRow(ctx,
		`INSERT INTO api_tokens (token, name, is_active)
		 VALUES ($1, $2, TRUE)
		 RETURNING id, created_at`,
		token.Token, name).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create token %q: %w", name, err)
	}

	return token, nil
}

// GetActiveToken resolves an active token by its value.
func (db *DB) GetActiveToken(ctx context.Context, token string) (*APIToken, error) {
	var t APIToken

	err := db.Pool.QueryRow(ctx,
		`SELECT id, token, name, is_active, created_at, last_used_at, usage_count
		 FROM api_tokens WHERE token = $1 AND is_active`, token).
		Scan(&t.ID, &t.Token, &t.Name, &t.IsActive, &t.CreatedAt, &t.LastUsedAt, &t.UsageCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}

		return nil, fmt.Errorf("get token: %w", err)
	}

	return &t, nil
}

// TouchToken bumps usage_count and last_used_at after a successful upload.
func (db *DB) TouchToken(ctx context.Context, id int64) error {
	if _, err := db.Pool.Exec(ctx,
		`UPDATE api_tokens SET usage_count = usage_count + 1, last_used_at = NOW() WHERE id = $1`,
		id); err != nil {
		return fmt.Errorf("touch token %d: %w", id, err)
	}

	return nil
}

// ListTokens returns all tokens, newest first.
func (db *DB) ListTokens(ctx context.Context) ([]APIToken, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, token, name, is_active, created_at, last_used_at, usage_count
		 FROM api_tokens ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []APIToken

	for rows.Next() {
		var t APIToken
		if err := rows.Scan(&t.ID, &t.Token, &t.Name, &t.IsActive, &t.CreatedAt,
			&t.LastUsedAt, &t.UsageCount); err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}

		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read token rows: %w", err)
	}

	return tokens, nil
}

// SetTokenActive activates or deactivates a token.
func (db *DB) SetTokenActive(ctx context.Context, id int64, active bool) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE api_tokens SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set token %d active=%t: %w", id, active, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}

	return nil
}

// DeleteToken removes a token. Upload sessions created with it remain.
func (db *DB) DeleteToken(ctx context.Context, id int64) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM api_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete token %d: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrTokenNotFound
	}

	return nil
}
