// Package dispatch answers questions about contracts in two model turns: the first decides
// between answering from the contracts list and fetching a detail page, the second answers
// from the fetched page.
package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"fleetassist-backend/internal/components/assert"
	"fleetassist-backend/internal/components/telemetry"
	"fleetassist-backend/internal/extract"
	"fleetassist-backend/internal/llm"
	"fleetassist-backend/internal/portal"
)

const (
	report_dispatcher_list     = "dispatcher.list-contracts"
	report_dispatcher_decide   = "dispatcher.decide"
	report_dispatcher_fetch    = "dispatcher.fetch"
	report_dispatcher_answer   = "dispatcher.answer"
	report_dispatcher_decision = "dispatcher.decision"
)

const (
	msgListFailed     = "Kon contractenlijst niet ophalen. Error: %s"
	msgMalformed      = "Er ging iets mis met het verwerken van de vraag. (Invalid JSON) Raw: "
	msgFetchFailed    = "Kon de details niet ophalen van %s (HTTP %s)."
	msgNoAnswer       = "Geen antwoord ontvangen na ophalen gegevens."
	msgNotUnderstood  = "Ik begreep de actie niet."
	msgSessionExpired = "Session expired"

	// malformedRawLimit is how much of a malformed model output is shown to the user.
	malformedRawLimit = 100
)

// Portal is the authenticated view on the fleet portal a question is answered against.
type Portal interface {
	Fetch(ctx context.Context, url string) portal.FetchResult
	ListContracts(ctx context.Context) portal.FetchResult
}

type Request struct {
	Question string
	History  []Turn
}

// Debug carries the intermediate values of a dispatch for diagnostics.
type Debug struct {
	Contracts string
	Action    string
	URL       string
	Raw1      string
	Raw2      string
	Parsed    Decision
}

type Reply struct {
	Success bool
	Message string
	Error   string
	// RedirectedToLogin is set when the portal session expired, the user has to provide a
	// fresh magic link.
	RedirectedToLogin bool
	Debug             Debug
}

type Options struct {
	// BaseURL is joined with relative detail urls.
	BaseURL string
	// TenantPrefix is inserted in front of relative detail urls lacking it.
	TenantPrefix string
	Extractor    extract.Extractor
}

func DefaultOptions() Options {
	return Options{
		BaseURL:      "https://www.acc.fleet.nl/",
		TenantPrefix: "1/",
		Extractor:    extract.DefaultExtractor(),
	}
}

type Dispatcher struct {
	model llm.Model
	opts  Options
	tel   telemetry.API
}

func NewDispatcher(model llm.Model, opts Options, tel telemetry.API) Dispatcher {
	assert.NotNil(model, "model")
	assert.NotNil(tel, "tel")
	return Dispatcher{
		model: model,
		opts:  opts,
		tel:   telemetry.NewScopedAPI("dispatch", tel),
	}
}

// ResolveURL turns the url chosen by the model into an absolute detail url.
func (d Dispatcher) ResolveURL(raw string) string {
	if strings.HasPrefix(raw, "http") {
		return raw
	}
	path := strings.TrimLeft(raw, "/")
	if !strings.HasPrefix(path, d.opts.TenantPrefix) {
		path = d.opts.TenantPrefix + path
	}
	return strings.TrimRight(d.opts.BaseURL, "/") + "/" + path
}

// records renders the current contracts list, it is fetched anew for every question.
func (d Dispatcher) records(ctx context.Context, p Portal) string {
	res := p.ListContracts(ctx)
	if !res.Success {
		d.tel.ReportWarning(report_dispatcher_list, res.Error)
		errText := res.Error
		if errText == "" {
			errText = "Unknown"
		}
		return fmt.Sprintf(msgListFailed, errText)
	}
	summary := extract.ParseContracts(res.Body)
	d.tel.ReportCount(report_dispatcher_list, int64(len(summary.Records)))
	return summary.String()
}

// Ask answers req against p. It never returns an error, every failure is described by the
// reply.
func (d Dispatcher) Ask(ctx context.Context, p Portal, req Request) Reply {
	contracts := d.records(ctx, p)
	debug := Debug{Contracts: contracts}

	// a failed call is handled like an empty output
	raw1, err := d.model.Generate(ctx, decisionPrompt(contracts, req.History, req.Question), llm.ModeDecision)
	if err != nil {
		d.tel.ReportWarning(report_dispatcher_decide, err)
		raw1 = ""
	}
	if raw1 == "" {
		raw1 = "{}"
	}
	debug.Raw1 = raw1

	decision := ParseDecision(raw1)
	debug.Parsed = decision

	switch decision := decision.(type) {
	case MalformedOutput:
		d.tel.ReportWarning(report_dispatcher_decision, "malformed model output", decision.Raw)
		return Reply{
			Success: true,
			Message: msgMalformed + truncate(decision.Raw, malformedRawLimit),
			Debug:   debug,
		}
	case DirectAnswer:
		debug.Action = "direct_answer"
		text := decision.Text
		if text == "" {
			text = msgNotUnderstood
		}
		return Reply{Success: true, Message: text, Debug: debug}
	case FetchThenAnswer:
		debug.Action = "fetch"
		return d.fetchThenAnswer(ctx, p, req, decision, debug)
	}

	panic(fmt.Sprintf("unhandled decision %T", decision))
}

func (d Dispatcher) fetchThenAnswer(ctx context.Context, p Portal, req Request, decision FetchThenAnswer, debug Debug) Reply {
	target := d.ResolveURL(decision.URL)
	debug.URL = target

	page := p.Fetch(ctx, target)
	if !page.Success || page.StatusCode == http.StatusNotFound {
		code := ""
		if page.StatusCode != 0 {
			code = strconv.Itoa(page.StatusCode)
		}
		d.tel.ReportWarning(report_dispatcher_fetch, target, page.StatusCode, page.Error)
		return Reply{
			Success: true,
			Message: fmt.Sprintf(msgFetchFailed, target, code),
			Debug:   debug,
		}
	}
	if page.IsLoginPage {
		d.tel.ReportDebug("detail page is a login page", target, page.FinalURL)
		return Reply{
			Success:           false,
			Error:             msgSessionExpired,
			RedirectedToLogin: true,
			Debug:             debug,
		}
	}

	content := d.opts.Extractor.Content(page.Body)

	raw2, err := d.model.Generate(ctx, answerPrompt(debug.Contracts, target, content, req.Question), llm.ModeAnswer)
	if err != nil {
		d.tel.ReportWarning(report_dispatcher_answer, err)
	}
	if raw2 == "" {
		raw2 = msgNoAnswer
	}
	debug.Raw2 = raw2

	return Reply{Success: true, Message: raw2, Debug: debug}
}
