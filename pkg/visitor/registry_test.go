package visitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSession struct {
	values map[string]string
	err    error
}

func (m *mapSession) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *mapSession) Set(key, value string) error {
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

func TestRegistryResolve(t *testing.T) {
	t.Run("mints once per session", func(t *testing.T) {
		r := NewRegistry("")
		session := &mapSession{values: map[string]string{}}

		first, err := r.Resolve(session)
		require.NoError(t, err)
		assert.True(t, Valid(first))
		assert.Equal(t, first, session.values[DefaultKey])

		second, err := r.Resolve(session)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("distinct sessions get distinct ids", func(t *testing.T) {
		r := NewRegistry("")
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			id, err := r.Resolve(&mapSession{values: map[string]string{}})
			require.NoError(t, err)
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	})

	t.Run("replaces forged values", func(t *testing.T) {
		r := NewRegistry("vid")
		for _, forged := range []string{"../other", "a/b", "{6ba7b810-9dad-11d1-80b4-00c04fd430c8}", "not-a-uuid"} {
			session := &mapSession{values: map[string]string{"vid": forged}}
			id, err := r.Resolve(session)
			require.NoError(t, err)
			assert.NotEqual(t, forged, id)
			assert.True(t, Valid(id))
		}
	})

	t.Run("store failure", func(t *testing.T) {
		r := NewRegistry("")
		_, err := r.Resolve(&mapSession{values: map[string]string{}, err: errors.New("read only")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read only")
	})
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", FromContext(ctx))
	assert.Equal(t, "abc", FromContext(WithID(ctx, "abc")))
}

func TestCookieSession(t *testing.T) {
	r := NewRegistry("")

	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	rec := httptest.NewRecorder()
	id, err := r.Resolve(NewCookieSession(rec, req, true))
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultKey, cookies[0].Name)
	assert.Equal(t, id, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)

	// a follow-up request presenting the cookie resolves to the same id
	next := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	next.AddCookie(cookies[0])
	nextRec := httptest.NewRecorder()
	again, err := r.Resolve(NewCookieSession(nextRec, next, true))
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Empty(t, nextRec.Result().Cookies(), "no new cookie for a known visitor")
}
