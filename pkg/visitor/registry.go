// Package visitor issues the opaque per-browsing-session identifiers that
// namespace uploaded files.
package visitor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// DefaultKey is the browsing-session key (and cookie name) holding the id.
const DefaultKey = "visitor_session"

// BrowsingSession is the external per-browser state the registry reads and writes.
type BrowsingSession interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Registry resolves the visitor id of a browsing session, minting one on first use.
type Registry struct {
	key   string
	newID func() string
}

// NewRegistry creates a registry storing ids under key (DefaultKey when empty).
func NewRegistry(key string) *Registry {
	if key == "" {
		key = DefaultKey
	}
	return &Registry{key: key, newID: uuid.NewString}
}

// Key returns the browsing-session key used by the registry.
func (r *Registry) Key() string {
	return r.key
}

// Resolve returns the id stored in session, or mints, stores and returns a new
// one. Stored values that are not UUIDs are replaced: the id becomes an
// object-key prefix and must never contain separators.
func (r *Registry) Resolve(session BrowsingSession) (string, error) {
	if id, ok := session.Get(r.key); ok && Valid(id) {
		return id, nil
	}
	id := r.newID()
	if err := session.Set(r.key, id); err != nil {
		return "", fmt.Errorf("visitor: store id: %w", err)
	}
	return id, nil
}

// Valid reports whether id has the shape of an id minted by a Registry.
func Valid(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	// reject the braced and urn: forms uuid.Parse also accepts
	return parsed.String() == id
}

type contextKey struct{}

// WithID returns a context carrying the visitor id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the visitor id carried by ctx, or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// CookieSession is a BrowsingSession persisted as a cookie on an HTTP exchange.
type CookieSession struct {
	w      http.ResponseWriter
	r      *http.Request
	secure bool
	set    map[string]string
}

// NewCookieSession wraps a request/response pair. secure marks issued cookies Secure.
func NewCookieSession(w http.ResponseWriter, r *http.Request, secure bool) *CookieSession {
	return &CookieSession{w: w, r: r, secure: secure, set: make(map[string]string)}
}

// Get reads key from cookies set earlier in this exchange or sent by the browser.
func (s *CookieSession) Get(key string) (string, bool) {
	if v, ok := s.set[key]; ok {
		return v, true
	}
	c, err := s.r.Cookie(key)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Set issues a browser-session cookie for key.
func (s *CookieSession) Set(key, value string) error {
	s.set[key] = value
	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
