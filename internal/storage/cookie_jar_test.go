package storage

import (
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cookieNames(cookies []*http.Cookie) map[string]string {
	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out
}

func TestPersistentJar_SurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	api, _ := url.Parse("http://127.0.0.1:5000/api/login")

	store, err := NewBBoltStore(dbPath, time.Hour, nil)
	require.NoError(t, err)
	jar, err := NewPersistentJar(store, "default", nil)
	require.NoError(t, err)

	jar.SetCookies(api, []*http.Cookie{
		{Name: "connect.sid", Value: "s%3Aabc", Path: "/", HttpOnly: true},
		{Name: "pref", Value: "dark", Path: "/", MaxAge: 3600},
	})
	require.NoError(t, store.Close())

	store, err = NewBBoltStore(dbPath, time.Hour, nil)
	require.NoError(t, err)
	defer store.Close()
	jar, err = NewPersistentJar(store, "default", nil)
	require.NoError(t, err)

	user, _ := url.Parse("http://127.0.0.1:5000/api/user")
	assert.Equal(t, map[string]string{"connect.sid": "s%3Aabc", "pref": "dark"}, cookieNames(jar.Cookies(user)))

	// Profiles do not share cookies.
	other, err := NewPersistentJar(store, "staging", nil)
	require.NoError(t, err)
	assert.Empty(t, other.Cookies(user))
}

func TestPersistentJar_DeletedAndExpiredCookies(t *testing.T) {
	store := setupTestDB(t)
	api, _ := url.Parse("http://127.0.0.1:5000/")

	jar, err := NewPersistentJar(store, "default", nil)
	require.NoError(t, err)

	jar.SetCookies(api, []*http.Cookie{
		{Name: "a", Value: "1", Path: "/"},
		{Name: "b", Value: "2", Path: "/"},
	})
	jar.SetCookies(api, []*http.Cookie{
		{Name: "a", Value: "", Path: "/", MaxAge: -1},
		{Name: "c", Value: "3", Path: "/", Expires: time.Now().Add(-time.Hour)},
	})
	assert.Equal(t, map[string]string{"b": "2"}, cookieNames(jar.Cookies(api)))

	reloaded, err := NewPersistentJar(store, "default", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "2"}, cookieNames(reloaded.Cookies(api)))
}

func TestPersistentJar_ExpiresWhileStored(t *testing.T) {
	store := setupTestDB(t)
	api, _ := url.Parse("http://127.0.0.1:5000/")

	jar, err := NewPersistentJar(store, "default", nil)
	require.NoError(t, err)
	jar.SetCookies(api, []*http.Cookie{{Name: "short", Value: "1", Path: "/", MaxAge: 60}})

	reloaded := &PersistentJar{
		store:   store,
		profile: "default",
		logger:  jar.logger,
		now:     func() time.Time { return time.Now().Add(2 * time.Minute) },
	}
	require.NoError(t, reloaded.load())
	assert.Empty(t, reloaded.cookies)
}

func TestPersistentJar_Clear(t *testing.T) {
	store := setupTestDB(t)
	api, _ := url.Parse("http://127.0.0.1:5000/")

	jar, err := NewPersistentJar(store, "default", nil)
	require.NoError(t, err)
	jar.SetCookies(api, []*http.Cookie{{Name: "connect.sid", Value: "x", Path: "/"}})

	require.NoError(t, jar.Clear())
	assert.Empty(t, jar.Cookies(api))

	reloaded, err := NewPersistentJar(store, "default", nil)
	require.NoError(t, err)
	assert.Empty(t, reloaded.Cookies(api))
}

func TestPersistentJar_CorruptStateIsDiscarded(t *testing.T) {
	store := setupTestDB(t)
	require.NoError(t, store.Set(cookiesBucket, "default", []byte("not json"), -1))

	jar, err := NewPersistentJar(store, "default", nil)
	require.NoError(t, err)
	api, _ := url.Parse("http://127.0.0.1:5000/")
	assert.Empty(t, jar.Cookies(api))
}
