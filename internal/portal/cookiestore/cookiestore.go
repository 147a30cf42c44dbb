// Package cookiestore implements a cookie jar that mirrors every cookie it receives into a
// single json file, so that a portal session survives across requests and processes.
package cookiestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"fleetassist-backend/internal/components/assert"

	"golang.org/x/net/publicsuffix"
)

type entry struct {
	Origin   string    `json:"origin"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
	HostOnly bool      `json:"host_only,omitempty"`
}

func (e entry) key() string {
	return fmt.Sprintf("%s;%s;%s", e.Domain, e.Path, e.Name)
}

func (e entry) cookie() *http.Cookie {
	domain := e.Domain
	if e.HostOnly {
		domain = ""
	}
	return &http.Cookie{
		Name:     e.Name,
		Value:    e.Value,
		Domain:   domain,
		Path:     e.Path,
		Expires:  e.Expires,
		Secure:   e.Secure,
		HttpOnly: e.HttpOnly,
	}
}

// Jar is a http.CookieJar backed by a json file. It is safe for concurrent use.
type Jar struct {
	path  string
	inner *cookiejar.Jar

	mutex   sync.Mutex
	entries map[string]entry
	err     error
}

// Path returns the location of the backing file for the jar named cookieID.
func Path(dir, cookieID string) string {
	return filepath.Join(dir, cookieID+".json")
}

// Open creates or resumes the jar named cookieID inside dir.
//
// Open never fails, a missing file is an empty jar and a broken file is latched and surfaces
// through Err.
func Open(dir, cookieID string) *Jar {
	assert.NotEmptyStr(cookieID, "cookieID")

	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	jar := &Jar{
		path:    Path(dir, cookieID),
		inner:   inner,
		entries: map[string]entry{},
		err:     err,
	}
	jar.load()
	return jar
}

func (j *Jar) load() {
	contents, err := os.ReadFile(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		j.err = fmt.Errorf("read cookie jar: %w", err)
		return
	}
	if len(contents) == 0 {
		return
	}

	var stored []entry
	err = json.Unmarshal(contents, &stored)
	if err != nil {
		j.err = fmt.Errorf("decode cookie jar: %w", err)
		return
	}

	for _, e := range stored {
		origin, err := url.Parse(e.Origin)
		if err != nil {
			continue
		}
		j.entries[e.key()] = e
		j.inner.SetCookies(origin, []*http.Cookie{e.cookie()})
	}
}

func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

// SetCookies stores cookies in memory and rewrites the backing file.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)

	j.mutex.Lock()
	defer j.mutex.Unlock()

	origin := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
	for _, c := range cookies {
		e := entry{
			Origin:   origin.String(),
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if e.Domain == "" {
			e.Domain = u.Hostname()
			e.HostOnly = true
		}
		if e.Path == "" {
			e.Path = defaultPath(u.Path)
			e.Origin = (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: e.Path}).String()
		}

		switch {
		case c.MaxAge > 0:
			e.Expires = time.Now().Add(time.Duration(c.MaxAge) * time.Second)
		case !c.Expires.IsZero():
			e.Expires = c.Expires
		}

		expired := c.MaxAge < 0 || (!e.Expires.IsZero() && e.Expires.Before(time.Now()))
		if expired {
			delete(j.entries, e.key())
			continue
		}
		j.entries[e.key()] = e
	}

	j.persist()
}

// defaultPath follows the default-path algorithm of RFC 6265 section 5.1.4.
func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := len(p) - 1
	for i > 0 && p[i] != '/' {
		i--
	}
	if i == 0 {
		return "/"
	}
	return p[:i]
}

func (j *Jar) persist() {
	stored := make([]entry, 0, len(j.entries))
	for _, e := range j.entries {
		stored = append(stored, e)
	}
	sort.Slice(stored, func(a, b int) bool {
		return stored[a].key() < stored[b].key()
	})

	contents, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		j.err = fmt.Errorf("encode cookie jar: %w", err)
		return
	}
	err = os.WriteFile(j.path, contents, 0600)
	if err != nil {
		j.err = fmt.Errorf("write cookie jar: %w", err)
	}
}

// Err returns the first i/o error the jar ran into, if any.
func (j *Jar) Err() error {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.err
}

// Exists reports whether the backing file is present.
func (j *Jar) Exists() bool {
	_, err := os.Stat(j.path)
	return err == nil
}

// Contents returns the raw bytes of the backing file, a missing file yields nil.
func (j *Jar) Contents() []byte {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	contents, err := os.ReadFile(j.path)
	if err != nil {
		return nil
	}
	return contents
}

// Len returns the amount of live cookies held by the jar.
func (j *Jar) Len() int {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return len(j.entries)
}

func (j *Jar) Path() string {
	return j.path
}

// Close deletes the backing file, the jar must not be used afterwards.
func (j *Jar) Close() error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	j.entries = map[string]entry{}
	err := os.Remove(j.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cookie jar: %w", err)
	}
	return nil
}
