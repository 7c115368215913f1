// Package session issues and verifies the signed browser session cookie.
package session

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName = "portal_session"
	lifetime   = 7 * 24 * time.Hour
)

var ErrNoSession = errors.New("no valid session")

// Data is the signed session payload.
type Data struct {
	CountryID int    `json:"countryId"`
	UserID    string `json:"userId"`
}

type claims struct {
	CountryID int    `json:"countryId"`
	UserID    string `json:"userId"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	now    func() time.Time
}

// NewManager builds a session manager. An empty secret is only acceptable
// outside production: a random ephemeral key is generated, which invalidates
// all sessions on restart.
func NewManager(secret, env string, logger *slog.Logger) (*Manager, error) {
	if secret == "" {
		if env == "production" {
			return nil, errors.New("session: SESSION_SECRET is required in production")
		}
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		logger.Warn("SESSION_SECRET unset, using ephemeral key", "env", env)
		return &Manager{secret: key, now: time.Now}, nil
	}
	return &Manager{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a session and sets it as an http-only cookie on the response.
func (m *Manager) Issue(w http.ResponseWriter, d Data) error {
	now := m.now()
	c := claims{
		CountryID: d.CountryID,
		UserID:    d.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("session: sign: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(lifetime.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Verify reads and validates the session cookie. Expired, tampered and
// absent cookies all collapse to ErrNoSession.
func (m *Manager) Verify(r *http.Request) (Data, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Data{}, ErrNoSession
	}
	var c claims
	tok, err := jwt.ParseWithClaims(cookie.Value, &c,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !tok.Valid {
		return Data{}, ErrNoSession
	}
	return Data{CountryID: c.CountryID, UserID: c.UserID}, nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
