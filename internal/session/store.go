// Package session provides the durable anonymous session token store used to
// attribute whistles from unauthenticated browsers.
package session

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Store mints and persists per-browser-session tokens. A token is carried in a
// cookie and backed by a sessions row, so it stays stable across requests.
type Store struct {
	db         *sql.DB
	cookieName string
}

// NewStore creates a Store over an opened, migrated whistle database.
func NewStore(db *sql.DB, cookieName string) *Store {
	if cookieName == "" {
		cookieName = "whistle_session"
	}
	return &Store{db: db, cookieName: cookieName}
}

// Token returns the stable anonymous token for the requesting browser,
// minting and persisting one when none exists yet. The row keeps a copy of
// the token under anonymous_session_key for the identity migration hook.
//
// Two concurrent first requests from the same browser may each mint a token;
// the later Set-Cookie wins and at worst one extra session is recorded. This
// race is accepted and deliberately unguarded.
func (s *Store) Token(w http.ResponseWriter, r *http.Request) (string, error) {
	if c, err := r.Cookie(s.cookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	token := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO sessions (token, anonymous_session_key, created_at_ns) VALUES (?,?,?)`,
		token, token, time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("session store: persist token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// AnonymousSessionKey returns the companion key retained for the identity
// migration hook, or "" when the token is unknown.
func (s *Store) AnonymousSessionKey(token string) (string, error) {
	var key string
	err := s.db.QueryRow(`SELECT anonymous_session_key FROM sessions WHERE token = ?`, token).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session store: lookup key: %w", err)
	}
	return key, nil
}
