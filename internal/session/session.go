// Package session keeps the admin's current selections (recipients to
// mail, tracked messages to export) between requests, keyed by a cookie.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotFound is returned by a Store for unknown or expired sessions.
var ErrNotFound = errors.New("session: not found")

// Selection is what the admin UI has picked.
type Selection struct {
	RecipientIDs []int64 `json:"selected_dest_ids"`
	EmailIDs     []int64 `json:"selected_emails_ids"`
}

// Store persists selections by session id.
type Store interface {
	Get(ctx context.Context, id string) (*Selection, error)
	Save(ctx context.Context, id string, sel *Selection, ttl time.Duration) error
}

// Config holds cookie settings.
type Config struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager ties a Store to the session cookie.
type Manager struct {
	store Store
	cfg   Config
}

// NewManager creates a manager.
func NewManager(store Store, cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "mailtrack_session"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Hour
	}
	return &Manager{store: store, cfg: cfg}
}

// Selection returns the request's selection. A request without a session
// gets an empty one.
func (m *Manager) Selection(r *http.Request) (*Selection, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return &Selection{}, nil
	}
	sel, err := m.store.Get(r.Context(), cookie.Value)
	if errors.Is(err, ErrNotFound) {
		return &Selection{}, nil
	}
	if err != nil {
		return nil, err
	}
	return sel, nil
}

// SetRecipients replaces the selected recipient ids.
func (m *Manager) SetRecipients(w http.ResponseWriter, r *http.Request, ids []int64) error {
	return m.update(w, r, func(sel *Selection) { sel.RecipientIDs = ids })
}

// SetEmails replaces the selected tracked message ids.
func (m *Manager) SetEmails(w http.ResponseWriter, r *http.Request, ids []int64) error {
	return m.update(w, r, func(sel *Selection) { sel.EmailIDs = ids })
}

func (m *Manager) update(w http.ResponseWriter, r *http.Request, fn func(*Selection)) error {
	id := ""
	if cookie, err := r.Cookie(m.cfg.CookieName); err == nil {
		id = cookie.Value
	}

	sel := &Selection{}
	if id != "" {
		existing, err := m.store.Get(r.Context(), id)
		switch {
		case err == nil:
			sel = existing
		case errors.Is(err, ErrNotFound):
			// Never adopt an id the server did not issue.
			id = ""
		default:
			return err
		}
	}
	if id == "" {
		var err error
		if id, err = generateSessionID(); err != nil {
			return fmt.Errorf("generate session id: %w", err)
		}
	}

	fn(sel)
	if err := m.store.Save(r.Context(), id, sel, m.cfg.TTL); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
