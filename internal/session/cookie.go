// Package session manages the signed, HTTP-only session cookie that carries
// the identity-provider ID token between requests.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

const (
	// CookieName is the session cookie name.
	CookieName = "auth-token"
	// MaxAge is the session cookie lifetime.
	MaxAge = 7 * 24 * time.Hour

	maxCookieSize   = 4096
	minSecretLength = 32
	keyInfo         = "scholarsite session cookie v1"
)

// Session cookie errors.
var (
	ErrSecretTooShort = errors.New("session secret must be at least 32 bytes")
	ErrTokenTooLarge  = errors.New("session token does not fit in a cookie")
)

// Manager sets, reads and clears the session cookie.
type Manager struct {
	key    []byte
	secure bool
}

// NewManager derives the signing key from secret. secure controls the Secure attribute.
func NewManager(secret string, secure bool) (*Manager, error) {
	if len(secret) < minSecretLength {
		return nil, ErrSecretTooShort
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive session key: %w", err)
	}
	return &Manager{key: key, secure: secure}, nil
}

// Set stores token in the session cookie.
func (m *Manager) Set(w http.ResponseWriter, token string) error {
	value := m.encode(token)
	if len(CookieName)+len(value) > maxCookieSize {
		return ErrTokenTooLarge
	}
	http.SetCookie(w, m.cookie(value, int(MaxAge.Seconds())))
	return nil
}

// Get returns the token carried by the request's session cookie.
// A cookie with a bad signature is reported as absent.
func (m *Manager) Get(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return m.decode(c.Value)
}

// Present reports whether the request carries a session cookie at all, signed or not.
func (m *Manager) Present(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	return err == nil && c.Value != ""
}

// Clear deletes the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, m.cookie("", -1))
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge > 0 {
		c.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	}
	return c
}

func (m *Manager) encode(token string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(token))
	return payload + "." + base64.RawURLEncoding.EncodeToString(m.sign(payload))
}

func (m *Manager) decode(value string) (string, bool) {
	payload, sig, ok := strings.Cut(value, ".")
	if !ok {
		return "", false
	}
	gotSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(gotSig, m.sign(payload)) {
		return "", false
	}
	token, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", false
	}
	return string(token), true
}

func (m *Manager) sign(payload string) []byte {
	mac := hmac.New(sha256.New, m.key)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
