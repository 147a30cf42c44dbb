// Package api serves the chat front-end: magic link login, page fetches, questions and
// session resets, each bound to the portal session named by a cookie.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"fleetassist-backend/internal/components/assert"
	"fleetassist-backend/internal/components/telemetry"
	"fleetassist-backend/internal/dispatch"
	"fleetassist-backend/internal/extract"
	"fleetassist-backend/internal/portal"
	"fleetassist-backend/internal/session"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

const (
	report_api_login = "api.login"
	report_api_fetch = "api.fetch"
	report_api_chat  = "api.chat"
	report_api_reset = "api.reset"
)

const SessionCookie = "fleetassist_session"

const (
	errLoginFirst      = "Please login first"
	errSessionExpired  = "Session expired"
	errLoginURLMissing = "Login URL is required"
	errFetchURLMissing = "Fetch URL is required"
	errMessageMissing  = "Message is required"
	errInvalidURL      = "Invalid URL format"
	errMagicLinkFailed = "Failed to fetch magic link page"
	errFetchExpired    = "Session appears to have expired. Please login again."
	errFetchJarMissing = "Session expired, please login again"
)

type Options struct {
	// ContractsURL is the portal page holding the contracts table.
	ContractsURL   string
	RecordsPerPage string
	// ModelMissing is returned for questions when no model is configured.
	ModelMissing string
	SecureCookie bool
	Extractor    extract.Extractor
}

func DefaultOptions() Options {
	return Options{
		ContractsURL:   "https://www.acc.fleet.nl/1/contracts",
		RecordsPerPage: "100",
		ModelMissing:   "Gemini API Key not configured",
		Extractor:      extract.DefaultExtractor(),
	}
}

type Server struct {
	store      *session.Store
	dispatcher *dispatch.Dispatcher
	opts       Options
	tel        telemetry.API
}

// NewServer creates the front-end server, dispatcher may be nil when no model is configured.
func NewServer(store *session.Store, dispatcher *dispatch.Dispatcher, opts Options, tel telemetry.API) *Server {
	assert.NotNil(store, "store")
	assert.NotNil(tel, "tel")
	return &Server{
		store:      store,
		dispatcher: dispatcher,
		opts:       opts,
		tel:        telemetry.NewScopedAPI("api", tel),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.Login)
		r.Post("/fetch", s.Fetch)
		r.Post("/chat", s.Chat)
		r.Post("/reset", s.Reset)
	})
	return r
}

func sessionID(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func validURL(raw string) bool {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// sessionError maps a session store error to the message shown to the user.
func sessionError(err error, expired string) string {
	switch {
	case errors.Is(err, session.ErrNoSession):
		return errLoginFirst
	case errors.Is(err, session.ErrJarMissing):
		return expired
	}
	return "Error: " + err.Error()
}

type loginRequest struct {
	LoginURL string `json:"loginUrl"`
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	err := decodeBody(r, &req, func(r *http.Request) {
		req.LoginURL = r.PostFormValue("loginUrl")
	})
	if err != nil {
		reply(w, failure("Error: "+err.Error()))
		return
	}
	if req.LoginURL == "" {
		reply(w, failure(errLoginURLMissing))
		return
	}
	if !validURL(req.LoginURL) {
		reply(w, failure(errInvalidURL))
		return
	}

	// a new magic link replaces whatever session the browser had
	err = s.store.Reset(r.Context(), sessionID(r))
	if err != nil {
		s.tel.ReportWarning(report_api_login, err)
	}

	created, result, err := s.store.Login(r.Context(), req.LoginURL)
	if err != nil {
		s.tel.ReportWarning(report_api_login, err)
		s.clearSessionCookie(w)
		reply(w, failure(errMagicLinkFailed))
		return
	}
	s.setSessionCookie(w, created.ID)

	reply(w, success(result.Message()).
		with("final_url", created.FinalURL).
		with("http_code", created.HTTPCode).
		with("has_auth_cookies", created.HasAuthCookies).
		with("was_livewire", created.WasLivewire).
		with("livewire_success", created.LivewireSuccess))
}

type fetchRequest struct {
	FetchURL string `json:"fetchUrl"`
}

func (s *Server) Fetch(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if id == "" {
		reply(w, failure(errLoginFirst))
		return
	}

	var req fetchRequest
	err := decodeBody(r, &req, func(r *http.Request) {
		req.FetchURL = r.PostFormValue("fetchUrl")
	})
	if err != nil {
		reply(w, failure("Error: "+err.Error()))
		return
	}
	if req.FetchURL == "" {
		reply(w, failure(errFetchURLMissing))
		return
	}
	if !validURL(req.FetchURL) {
		reply(w, failure(errInvalidURL))
		return
	}

	var out envelope
	err = s.store.With(r.Context(), id, func(_ session.Session, client *portal.Client) error {
		out = s.fetch(r.Context(), client, req.FetchURL)
		return nil
	})
	if err != nil {
		s.tel.ReportDebug(report_api_fetch, err.Error())
		reply(w, failure(sessionError(err, errFetchJarMissing)))
		return
	}
	reply(w, out)
}

func (s *Server) fetch(ctx context.Context, client *portal.Client, target string) envelope {
	res := client.Fetch(ctx, target)
	if !res.Success {
		return failure(res.Error)
	}
	if res.IsLoginPage {
		return failure(errFetchExpired).
			with("redirected_to_login", true).
			with("debug_info", map[string]any{
				"http_code": res.StatusCode,
				"final_url": res.FinalURL,
			})
	}

	content := s.opts.Extractor.Content(res.Body)
	return success("Content fetched successfully").
		with("content", content).
		with("final_url", res.FinalURL).
		with("http_code", res.StatusCode).
		with("content_length", len(content))
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message string           `json:"message"`
	History []historyMessage `json:"history"`
}

func (r chatRequest) turns() []dispatch.Turn {
	turns := make([]dispatch.Turn, 0, len(r.History))
	for _, msg := range r.History {
		role := dispatch.RoleAssistant
		if msg.Role == string(dispatch.RoleUser) {
			role = dispatch.RoleUser
		}
		turns = append(turns, dispatch.Turn{Role: role, Text: msg.Content})
	}
	return turns
}

func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if id == "" {
		reply(w, failure(errLoginFirst))
		return
	}

	var req chatRequest
	err := decodeBody(r, &req, func(r *http.Request) {
		req.Message = r.PostFormValue("message")
	})
	if err != nil {
		reply(w, failure("Error: "+err.Error()))
		return
	}
	if req.Message == "" {
		reply(w, failure(errMessageMissing))
		return
	}

	var answer dispatch.Reply
	err = s.store.With(r.Context(), id, func(_ session.Session, client *portal.Client) error {
		if s.dispatcher == nil {
			return errModelMissing
		}
		answer = s.dispatcher.Ask(r.Context(), dispatch.ContractsPortal{
			Client:         client,
			Livewire:       s.store.Authenticator(),
			ContractsURL:   s.opts.ContractsURL,
			RecordsPerPage: s.opts.RecordsPerPage,
		}, dispatch.Request{
			Question: req.Message,
			History:  req.turns(),
		})
		return nil
	})
	if errors.Is(err, errModelMissing) {
		reply(w, failure(s.opts.ModelMissing))
		return
	}
	if err != nil {
		s.tel.ReportDebug(report_api_chat, err.Error())
		reply(w, failure(sessionError(err, errSessionExpired)))
		return
	}

	reply(w, chatEnvelope(answer))
}

var errModelMissing = errors.New("model missing")

func chatEnvelope(answer dispatch.Reply) envelope {
	var out envelope
	if answer.Success {
		out = success(answer.Message)
	} else {
		out = failure(answer.Error)
	}
	if answer.RedirectedToLogin {
		out = out.with("redirected_to_login", true)
	}

	debug := answer.Debug
	for key, value := range map[string]string{
		"debug_contracts": debug.Contracts,
		"debug_action":    debug.Action,
		"debug_url":       debug.URL,
		"debug_ai_raw_1":  debug.Raw1,
		"debug_ai_raw_2":  debug.Raw2,
	} {
		if value != "" {
			out = out.with(key, value)
		}
	}
	return out
}

func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	err := s.store.Reset(r.Context(), sessionID(r))
	if err != nil {
		s.tel.ReportWarning(report_api_reset, err)
		reply(w, failure("Error: "+err.Error()))
		return
	}
	s.clearSessionCookie(w)
	reply(w, success("Session reset successfully"))
}
