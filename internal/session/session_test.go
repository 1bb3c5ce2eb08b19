package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withCookie(r *http.Request, rec *httptest.ResponseRecorder) *http.Request {
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func testManager(t *testing.T, store Store) {
	t.Helper()
	m := NewManager(store, Config{CookieName: "sid", TTL: time.Hour})

	sel, err := m.Selection(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Empty(t, sel.RecipientIDs)

	rec := httptest.NewRecorder()
	require.NoError(t, m.SetRecipients(rec, httptest.NewRequest(http.MethodPost, "/", nil), []int64{3, 4}))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sid", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// Same session keeps recipients when emails are set.
	rec2 := httptest.NewRecorder()
	req := withCookie(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	require.NoError(t, m.SetEmails(rec2, req, []int64{10}))
	assert.Equal(t, cookies[0].Value, rec2.Result().Cookies()[0].Value)

	sel, err = m.Selection(withCookie(httptest.NewRequest(http.MethodGet, "/", nil), rec))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, sel.RecipientIDs)
	assert.Equal(t, []int64{10}, sel.EmailIDs)
}

func TestManager_Memory(t *testing.T) {
	testManager(t, NewMemoryStore())
}

func TestManager_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	testManager(t, NewRedisStore(client, "test"))
}

func TestRedisStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client, "test")
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "abc", &Selection{EmailIDs: []int64{1}}, time.Minute))
	assert.True(t, mr.Exists("test:session:abc"))

	mr.FastForward(2 * time.Minute)
	_, err := s.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "abc", &Selection{RecipientIDs: []int64{1}}, time.Minute))
	sel, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, sel.RecipientIDs)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_UnknownCookieStartsEmpty(t *testing.T) {
	m := NewManager(NewMemoryStore(), Config{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "mailtrack_session", Value: "gone"})

	sel, err := m.Selection(req)
	require.NoError(t, err)
	assert.Empty(t, sel.EmailIDs)
}

func TestManager_UnknownCookieGetsFreshID(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, Config{})
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: "mailtrack_session", Value: "attacker-chosen"})

	rec := httptest.NewRecorder()
	require.NoError(t, m.SetRecipients(rec, req, []int64{1}))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.NotEqual(t, "attacker-chosen", cookies[0].Value)
	assert.NotEmpty(t, cookies[0].Value)

	_, err := store.Get(context.Background(), "attacker-chosen")
	assert.ErrorIs(t, err, ErrNotFound)
	sel, err := store.Get(context.Background(), cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, sel.RecipientIDs)
}
