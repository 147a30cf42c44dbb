package livewire

import (
	"context"
	"fmt"
	"strings"

	"fleetassist-backend/internal/components/assert"
	"fleetassist-backend/internal/components/telemetry"
	"fleetassist-backend/internal/portal"
)

const (
	report_authenticator_initial  = "authenticator.initial-fetch"
	report_authenticator_extract  = "authenticator.extract"
	report_authenticator_submit   = "authenticator.submit"
	report_authenticator_finalize = "authenticator.finalize"
)

// Transport is the part of portal.Client the protocol needs.
type Transport interface {
	Fetch(ctx context.Context, url string) portal.FetchResult
	PostJSON(ctx context.Context, url string, body any, headers map[string]string) portal.FetchResult
}

// CookieContents exposes the raw persisted cookies.
type CookieContents interface {
	Contents() []byte
}

// CookieHeuristic guesses whether a cookie store holds authentication cookies. The guess only
// feeds user facing messages.
type CookieHeuristic struct {
	Markers []string
	// MinSize is the store size (in bytes) above which it is assumed to hold a session.
	MinSize int
}

func DefaultCookieHeuristic() CookieHeuristic {
	return CookieHeuristic{
		Markers: []string{"session", "token", "auth", "remember_"},
		MinSize: 50,
	}
}

func (h CookieHeuristic) HasAuthCookies(contents []byte) bool {
	if len(contents) == 0 {
		return false
	}
	text := string(contents)
	for _, marker := range h.Markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return len(contents) > h.MinSize
}

// Result is the state an authentication attempt ended in.
type Result struct {
	State State
	Trace []State

	FinalURL   string
	StatusCode int
	Body       string

	WasLivewire     bool
	LivewireSuccess bool
	Redirected      bool
	HasAuthCookies  bool
	// Incomplete holds the reason no update could be submitted, it is informational.
	Incomplete error

	Snapshot ComponentSnapshot
}

func (r *Result) move(state State) {
	if len(r.Trace) > 0 && r.State == state {
		return
	}
	r.State = state
	r.Trace = append(r.Trace, state)
}

func (r *Result) adopt(res portal.FetchResult) {
	r.FinalURL = res.FinalURL
	r.StatusCode = res.StatusCode
	r.Body = res.Body
}

// Message describes the outcome for the person who pasted the magic link.
func (r Result) Message() string {
	if r.WasLivewire {
		if r.LivewireSuccess {
			return "Livewire authentication completed!"
		}
		return "Livewire page detected - authentication attempted"
	}
	if r.HasAuthCookies {
		return "Login successful - authentication detected"
	}
	return "Login page loaded - cookies stored"
}

type Authenticator struct {
	Heuristic CookieHeuristic
	tel       telemetry.API
}

func NewAuthenticator(tel telemetry.API) Authenticator {
	assert.NotNil(tel, "tel")
	return Authenticator{
		Heuristic: DefaultCookieHeuristic(),
		tel:       telemetry.NewScopedAPI("livewire", tel),
	}
}

// Authenticate turns the magic link into an authenticated cookie jar. Only a failure to fetch
// the link itself is returned as an error (wrapping portal.ErrTransport), every later failure
// leaves the result at the last state that was reached.
func (a Authenticator) Authenticate(ctx context.Context, link string, transport Transport, jar CookieContents) (Result, error) {
	result := Result{}
	result.move(Initial)

	initial := transport.Fetch(ctx, link)
	result.move(afterInitialFetch(initial))
	if result.State == Failed {
		a.tel.ReportWarning(report_authenticator_initial, initial.Error, link)
		return result, fmt.Errorf("fetch magic link: %w", initial.Err())
	}
	result.adopt(initial)

	if result.State == ComponentDetected {
		result.WasLivewire = true
		a.completeComponent(ctx, &result, initial.FinalURL, transport)
	}

	result.HasAuthCookies = a.Heuristic.HasAuthCookies(jar.Contents())
	return result, nil
}

func (a Authenticator) completeComponent(ctx context.Context, result *Result, landingUrl string, transport Transport) {
	snap, err := ExtractSnapshot(result.Body)
	result.Snapshot = snap
	result.move(afterExtract(err))
	if result.State == Unconfirmed {
		result.Incomplete = err
		a.tel.ReportWarning(report_authenticator_extract, err, landingUrl)
		return
	}

	updateUrl, err := UpdateURL(landingUrl)
	if err != nil {
		result.Incomplete = fmt.Errorf("%w: %w", ErrAuthenticationIncomplete, err)
		result.move(Unconfirmed)
		a.tel.ReportBroken(report_authenticator_submit, err, landingUrl)
		return
	}

	submitted := transport.PostJSON(
		ctx,
		updateUrl,
		SubmitRequest(snap),
		Headers(snap.CSRFToken, landingUrl),
	)
	result.move(afterSubmit(submitted))
	if result.State == Unconfirmed {
		result.Incomplete = fmt.Errorf("%w: submit update: %s", ErrAuthenticationIncomplete, submitted.Error)
		a.tel.ReportWarning(report_authenticator_submit, submitted.Error, updateUrl)
		return
	}
	result.LivewireSuccess = true

	target, redirected, err := finalTarget(landingUrl, ParseUpdateResponse(submitted.Body))
	if err != nil {
		a.tel.ReportWarning(report_authenticator_finalize, fmt.Errorf("resolve redirect: %w", err))
	}
	result.Redirected = redirected

	final := transport.Fetch(ctx, target)
	result.move(afterFinalize(final))
	if !final.Success {
		a.tel.ReportWarning(report_authenticator_finalize, final.Error, target)
		return
	}
	result.adopt(final)
}
