package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"fleetassist-backend/internal/components/chrono"
	"fleetassist-backend/internal/components/telemetry"
	"fleetassist-backend/internal/db"
	"fleetassist-backend/internal/dispatch"
	"fleetassist-backend/internal/llm"
	"fleetassist-backend/internal/session"

	"github.com/stretchr/testify/require"
)

const contractsPage = `<html><body><table><tbody>
<tr> <td><a href="/1/contracts/42">Jan Jansen</a></td> <td>AB-123-C</td> </tr>
</tbody></table></body></html>`

const contractPage = `<html><body>
<nav>menu</nav>
<main><section class="card"><h2>Contract 42</h2><p>Leasetermijn 48 maanden</p>
<div class="actions"><div class="row"><span><button>Versie aanmaken of muteren</button></span></div></div>
</section></main>
</body></html>`

type cannedModel struct {
	outputs []string
	prompts []string
}

func (m *cannedModel) Generate(_ context.Context, prompt string, _ llm.Mode) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if len(m.prompts) > len(m.outputs) {
		return "", nil
	}
	return m.outputs[len(m.prompts)-1], nil
}

func newPortalServer(t *testing.T) *httptest.Server {
	authenticated := func(r *http.Request) bool {
		c, err := r.Cookie("laravel_session")
		return err == nil && c.Value == "abc"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/magic/abc", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "laravel_session", Value: "abc", Path: "/"})
		io.WriteString(w, "<html><body>Welkom</body></html>")
	})
	mux.HandleFunc("/1/contracts", func(w http.ResponseWriter, r *http.Request) {
		if !authenticated(r) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		io.WriteString(w, contractsPage)
	})
	mux.HandleFunc("/1/contracts/42", func(w http.ResponseWriter, r *http.Request) {
		if !authenticated(r) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		io.WriteString(w, contractPage)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><body><form><input type="password" name="password"></form></body></html>`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

type testEnv struct {
	portal *httptest.Server
	api    *httptest.Server
	client *http.Client
	model  *cannedModel
}

func newTestEnv(t *testing.T, withModel bool) testEnv {
	portalServer := newPortalServer(t)

	database, err := db.OpenDB(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })

	tel := &telemetry.RecordingAPI{}

	sessionOpts := session.DefaultOptions()
	sessionOpts.JarDir = t.TempDir()
	sessionOpts.Portal.RequestsPerSecond = 0
	store := session.NewStore(database, sessionOpts, &chrono.FixedImpl{Instant: time.Unix(1_700_000_000, 0)}, tel)

	model := &cannedModel{}
	var dispatcher *dispatch.Dispatcher
	if withModel {
		dispatchOpts := dispatch.DefaultOptions()
		dispatchOpts.BaseURL = portalServer.URL
		d := dispatch.NewDispatcher(model, dispatchOpts, tel)
		dispatcher = &d
	}

	opts := DefaultOptions()
	opts.ContractsURL = portalServer.URL + "/1/contracts"

	apiServer := httptest.NewServer(NewServer(store, dispatcher, opts, tel).Router())
	t.Cleanup(apiServer.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}

	return testEnv{
		portal: portalServer,
		api:    apiServer,
		client: &http.Client{Jar: jar},
		model:  model,
	}
}

func (e testEnv) postJSON(t *testing.T, path string, body any) map[string]any {
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.client.Post(e.api.URL+path, "application/json", strings.NewReader(string(payload)))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out map[string]any
	err = json.NewDecoder(res.Body).Decode(&out)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func (e testEnv) postForm(t *testing.T, path string, values url.Values) map[string]any {
	res, err := e.client.PostForm(e.api.URL+path, values)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	var out map[string]any
	err = json.NewDecoder(res.Body).Decode(&out)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func (e testEnv) login(t *testing.T) {
	out := e.postJSON(t, "/api/login", map[string]string{"loginUrl": e.portal.URL + "/magic/abc"})
	require.Equal(t, true, out["success"], out)
}

func TestLoginValidation(t *testing.T) {
	env := newTestEnv(t, true)

	out := env.postJSON(t, "/api/login", map[string]string{})
	require.Equal(t, false, out["success"])
	require.Equal(t, "Login URL is required", out["error"])

	out = env.postJSON(t, "/api/login", map[string]string{"loginUrl": "not a url"})
	require.Equal(t, "Invalid URL format", out["error"])

	out = env.postJSON(t, "/api/login", map[string]string{"loginUrl": "http://127.0.0.1:1/magic"})
	require.Equal(t, "Failed to fetch magic link page", out["error"])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, true)

	out := env.postForm(t, "/api/login", url.Values{"loginUrl": {env.portal.URL + "/magic/abc"}})
	require.Equal(t, true, out["success"])
	require.Equal(t, "Login successful - authentication detected", out["message"])
	require.Equal(t, env.portal.URL+"/magic/abc", out["final_url"])
	require.EqualValues(t, 200, out["http_code"])
	require.Equal(t, true, out["has_auth_cookies"])
	require.Equal(t, false, out["was_livewire"])
	require.Equal(t, false, out["livewire_success"])

	apiURL, err := url.Parse(env.api.URL)
	if err != nil {
		t.Fatal(err)
	}
	cookies := env.client.Jar.Cookies(apiURL)
	require.Len(t, cookies, 1)
	require.Equal(t, SessionCookie, cookies[0].Name)
}

func TestRequiresLogin(t *testing.T) {
	env := newTestEnv(t, true)

	out := env.postJSON(t, "/api/fetch", map[string]string{"fetchUrl": env.portal.URL + "/1/contracts/42"})
	require.Equal(t, "Please login first", out["error"])

	out = env.postJSON(t, "/api/chat", map[string]string{"message": "hoi"})
	require.Equal(t, "Please login first", out["error"])
}

func TestFetch(t *testing.T) {
	env := newTestEnv(t, true)
	env.login(t)

	out := env.postJSON(t, "/api/fetch", map[string]string{"fetchUrl": env.portal.URL + "/1/contracts/42"})
	require.Equal(t, true, out["success"], out)
	require.Equal(t, "Content fetched successfully", out["message"])
	require.Contains(t, out["content"], "Leasetermijn 48 maanden")
	require.NotContains(t, out["content"], "menu")
	require.EqualValues(t, len(out["content"].(string)), out["content_length"])

	out = env.postJSON(t, "/api/fetch", map[string]string{})
	require.Equal(t, "Fetch URL is required", out["error"])
}

func TestFetchLoginPage(t *testing.T) {
	env := newTestEnv(t, true)
	env.login(t)

	out := env.postJSON(t, "/api/fetch", map[string]string{"fetchUrl": env.portal.URL + "/login"})
	require.Equal(t, false, out["success"])
	require.Equal(t, "Session appears to have expired. Please login again.", out["error"])
	require.Equal(t, true, out["redirected_to_login"])

	info := out["debug_info"].(map[string]any)
	require.Equal(t, env.portal.URL+"/login", info["final_url"])
}

func TestChat(t *testing.T) {
	env := newTestEnv(t, true)
	env.login(t)

	env.model.outputs = []string{
		`{"action":"fetch","url":"/1/contracts/42"}`,
		"Het contract loopt 48 maanden.",
	}

	out := env.postJSON(t, "/api/chat", map[string]any{
		"message": "Hoe lang loopt het contract van Jan?",
		"history": []map[string]string{
			{"role": "user", "content": "Hallo"},
			{"role": "assistant", "content": "Hoi!"},
		},
	})
	require.Equal(t, true, out["success"], out)
	require.Equal(t, "Het contract loopt 48 maanden.", out["message"])
	require.Equal(t, "fetch", out["debug_action"])
	require.Equal(t, env.portal.URL+"/1/contracts/42", out["debug_url"])
	require.Contains(t, out["debug_contracts"], "CONTRACT: Jan Jansen AB-123-C")

	require.Len(t, env.model.prompts, 2)
	require.Contains(t, env.model.prompts[0], "User: Hallo")
	require.Contains(t, env.model.prompts[0], "AI: Hoi!")
	require.Contains(t, env.model.prompts[1], "Leasetermijn 48 maanden")
}

func TestChatValidation(t *testing.T) {
	env := newTestEnv(t, true)
	env.login(t)

	out := env.postJSON(t, "/api/chat", map[string]string{"message": ""})
	require.Equal(t, "Message is required", out["error"])
}

func TestChatWithoutModel(t *testing.T) {
	env := newTestEnv(t, false)
	env.login(t)

	out := env.postJSON(t, "/api/chat", map[string]string{"message": "hoi"})
	require.Equal(t, false, out["success"])
	require.Equal(t, "Gemini API Key not configured", out["error"])
}

func TestReset(t *testing.T) {
	env := newTestEnv(t, true)
	env.login(t)

	out := env.postJSON(t, "/api/reset", nil)
	require.Equal(t, true, out["success"])
	require.Equal(t, "Session reset successfully", out["message"])

	out = env.postJSON(t, "/api/fetch", map[string]string{"fetchUrl": env.portal.URL + "/1/contracts/42"})
	require.Equal(t, "Please login first", out["error"])

	// resetting without a session is fine
	out = env.postJSON(t, "/api/reset", nil)
	require.Equal(t, true, out["success"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)

	res, err := env.client.Get(env.api.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}
