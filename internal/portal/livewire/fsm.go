package livewire

import "fleetassist-backend/internal/portal"

// State is a step of one authentication attempt.
type State int

const (
	Initial State = iota
	// ComponentDetected: the magic link rendered a component and its snapshot was extracted.
	ComponentDetected
	// UpdateSubmitted: the synthetic submit was accepted by the update endpoint.
	UpdateSubmitted
	// Finalized: the redirect (or refresh) target was fetched.
	Finalized
	// NonReactive: the magic link did not render a component, cookies are kept as they are.
	NonReactive
	// Unconfirmed: a component was rendered but no update could be submitted.
	Unconfirmed
	// Failed: the magic link itself could not be fetched.
	Failed
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case ComponentDetected:
		return "component-detected"
	case UpdateSubmitted:
		return "update-submitted"
	case Finalized:
		return "finalized"
	case NonReactive:
		return "non-reactive"
	case Unconfirmed:
		return "unconfirmed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

func (s State) Terminal() bool {
	switch s {
	case Finalized, NonReactive, Unconfirmed, Failed:
		return true
	}
	return false
}

// afterInitialFetch is the transition out of Initial.
func afterInitialFetch(res portal.FetchResult) State {
	if !res.Success {
		return Failed
	}
	if !HasMarker(res.Body) {
		return NonReactive
	}
	return ComponentDetected
}

// afterExtract decides whether the extracted component can be submitted.
func afterExtract(extractErr error) State {
	if extractErr != nil {
		return Unconfirmed
	}
	return ComponentDetected
}

// afterSubmit is the transition out of ComponentDetected.
func afterSubmit(res portal.FetchResult) State {
	if !res.Success {
		return Unconfirmed
	}
	return UpdateSubmitted
}

// finalTarget picks what to fetch once the update was submitted: the redirect instruction when
// there is one, otherwise the page the magic link landed on.
func finalTarget(landingUrl string, res UpdateResponse) (target string, redirected bool, err error) {
	redirect := res.Redirect()
	if redirect == "" {
		return landingUrl, false, nil
	}
	target, err = ResolveRedirect(landingUrl, redirect)
	if err != nil {
		return landingUrl, false, err
	}
	return target, true, nil
}

// afterFinalize is the transition out of UpdateSubmitted, the attempt is finalized whether or
// not the last fetch went through.
func afterFinalize(portal.FetchResult) State {
	return Finalized
}
