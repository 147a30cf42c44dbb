package livewire

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fleetassist-backend/internal/components/telemetry"
	"fleetassist-backend/internal/portal"
	"fleetassist-backend/internal/portal/cookiestore"

	"github.com/stretchr/testify/require"
)

const testSnapshot = `{"data":{"email":"driver@example.nl"},"memo":{"id":"cmp1","name":"auth.magic-login"},"checksum":"c0ffee"}`

func componentPage(id, snapshot, csrf string) string {
	var idAttr, snapshotAttr, csrfMeta string
	if id != "" {
		idAttr = fmt.Sprintf(` wire:id="%s"`, id)
	}
	if snapshot != "" {
		snapshotAttr = fmt.Sprintf(` wire:snapshot="%s"`, html.EscapeString(snapshot))
	}
	if csrf != "" {
		csrfMeta = fmt.Sprintf(`<meta name="csrf-token" content="%s">`, csrf)
	}
	return fmt.Sprintf(`<!doctype html>
<html><head>%s<title>Inloggen</title></head>
<body><div%s%s><form wire:submit="submit"><button>Inloggen</button></form></div>
<script>window.livewire = "wire:snapshot"</script></body></html>`, csrfMeta, snapshotAttr, idAttr)
}

// fakePortal serves a magic link page, the update endpoint and a dashboard that is only
// reachable once the update endpoint has issued the session cookie.
type fakePortal struct {
	*httptest.Server
	t *testing.T

	landing    string
	updateBody string
	failUpdate bool

	mutex    sync.Mutex
	updates  []UpdateRequest
	requests []string
}

func newFakePortal(t *testing.T, landing, updateBody string) *fakePortal {
	p := &fakePortal{t: t, landing: landing, updateBody: updateBody}

	mux := http.NewServeMux()
	mux.HandleFunc("/magic/abc", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "xsrf", Path: "/"})
		io.WriteString(w, p.landing)
	})
	mux.HandleFunc(UpdatePath, func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		if p.failUpdate {
			hijacker, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hijacker.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}

		_, err := r.Cookie("XSRF-TOKEN")
		if err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		var req UpdateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		p.mutex.Lock()
		p.updates = append(p.updates, req)
		p.mutex.Unlock()

		require.Equal(t, "true", r.Header.Get("x-livewire"))
		require.Equal(t, req.Token, r.Header.Get("x-csrf-token"))

		http.SetCookie(w, &http.Cookie{Name: "laravel_session", Value: "authenticated", Path: "/"})
		w.Header().Set("content-type", "application/json")
		io.WriteString(w, p.updateBody)
	})
	mux.HandleFunc("/1/dashboard", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		c, err := r.Cookie("laravel_session")
		if err != nil || c.Value != "authenticated" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		io.WriteString(w, "<html><body>Dashboard</body></html>")
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		p.record(r)
		io.WriteString(w, `<html><body><form><input type="password" name="password"></form></body></html>`)
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

func (p *fakePortal) record(r *http.Request) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.requests = append(p.requests, r.Method+" "+r.URL.Path)
}

func (p *fakePortal) Requests() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]string(nil), p.requests...)
}

func newTestClient(t *testing.T) *portal.Client {
	opts := portal.DefaultOptions()
	opts.RequestsPerSecond = 0
	opts.Timeout = time.Second * 5

	client, err := portal.NewClient(
		cookiestore.Open(t.TempDir(), "webscraper_livewire_1"),
		opts,
		&telemetry.RecordingAPI{},
	)
	if err != nil {
		t.Fatal(err)
	}
	return client
}
