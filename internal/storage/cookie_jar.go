package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/pilab-dev/estate-auth/log"
)

const cookiesBucket = "cookies"

// persistedCookie is the on-disk form of a cookie together with the URL it
// was received from, so it can be replayed into a fresh jar.
type persistedCookie struct {
	Origin   string    `json:"origin"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

func (p persistedCookie) key() string {
	return p.Origin + "|" + p.Domain + "|" + p.Path + "|" + p.Name
}

// PersistentJar is an http.CookieJar that survives process restarts. Cookie
// matching is delegated to net/http/cookiejar; every accepted cookie is also
// written to the state db under the profile name.
type PersistentJar struct {
	store   *BBoltStore
	profile string
	logger  log.Logger
	now     func() time.Time

	mu      sync.Mutex
	jar     *cookiejar.Jar
	cookies map[string]persistedCookie
}

// NewPersistentJar loads the cookies saved for profile and returns a jar
// seeded with them.
func NewPersistentJar(store *BBoltStore, profile string, logger log.Logger) (*PersistentJar, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	j := &PersistentJar{
		store:   store,
		profile: profile,
		logger:  logger.With(map[string]interface{}{"component": "cookie_jar", "profile": profile}),
		now:     time.Now,
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *PersistentJar) load() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}
	j.jar = jar
	j.cookies = make(map[string]persistedCookie)

	raw, _, found, err := j.store.Get(cookiesBucket, j.profile)
	if err != nil {
		return fmt.Errorf("failed to load cookies: %w", err)
	}
	if !found {
		return nil
	}

	var saved []persistedCookie
	if err := json.Unmarshal(raw, &saved); err != nil {
		// A corrupt entry only costs the user a fresh sign-in.
		j.logger.Warn(context.Background(), "discarding unreadable cookie state", map[string]interface{}{"error": err.Error()})
		return nil
	}

	now := j.now()
	for _, pc := range saved {
		if !pc.Expires.IsZero() && !pc.Expires.After(now) {
			continue
		}
		origin, err := url.Parse(pc.Origin)
		if err != nil {
			continue
		}
		j.jar.SetCookies(origin, []*http.Cookie{pc.cookie()})
		j.cookies[pc.key()] = pc
	}
	return nil
}

func (pc persistedCookie) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     pc.Name,
		Value:    pc.Value,
		Path:     pc.Path,
		Domain:   pc.Domain,
		Expires:  pc.Expires,
		Secure:   pc.Secure,
		HttpOnly: pc.HttpOnly,
	}
}

// SetCookies implements http.CookieJar.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)

	origin := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}).String()
	now := j.now()
	for _, c := range cookies {
		pc := persistedCookie{
			Origin:   origin,
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		switch {
		case c.MaxAge < 0:
			delete(j.cookies, pc.key())
			continue
		case c.MaxAge > 0:
			pc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		if !pc.Expires.IsZero() && !pc.Expires.After(now) {
			delete(j.cookies, pc.key())
			continue
		}
		j.cookies[pc.key()] = pc
	}

	if err := j.saveLocked(); err != nil {
		j.logger.Error(context.Background(), "failed to persist cookies", err)
	}
}

// Cookies implements http.CookieJar.
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

// Clear forgets every cookie of the profile, in memory and on disk.
func (j *PersistentJar) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}
	j.jar = jar
	clear(j.cookies)

	if err := j.store.Delete(cookiesBucket, j.profile); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	return nil
}

func (j *PersistentJar) saveLocked() error {
	saved := make([]persistedCookie, 0, len(j.cookies))
	for _, pc := range j.cookies {
		saved = append(saved, pc)
	}
	raw, err := json.Marshal(saved)
	if err != nil {
		return err
	}
	return j.store.Set(cookiesBucket, j.profile, raw, -1)
}

var _ http.CookieJar = (*PersistentJar)(nil)
