// Package livewire emulates the client side of the Livewire component update protocol:
// snapshots are lifted out of server rendered pages and POSTed back with a set of updates
// and calls, the server answers with effects (new html, redirects).
package livewire

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Marker is present in every page that embeds at least one component.
const Marker = "wire:snapshot"

const UpdatePath = "/livewire/update"

// ErrAuthenticationIncomplete is recorded when a component page lacks the data needed to submit
// an update, it is never treated as a failed login.
var ErrAuthenticationIncomplete = errors.New("authentication incomplete")

// ComponentSnapshot is the state of one rendered component. Snapshot must be echoed back
// verbatim, the server verifies Checksum against it.
type ComponentSnapshot struct {
	ComponentID string
	CSRFToken   string
	Snapshot    string
	Checksum    string
}

type snapshotEnvelope struct {
	Data     map[string]json.RawMessage `json:"data"`
	Memo     json.RawMessage            `json:"memo"`
	Checksum string                     `json:"checksum"`
}

// HasMarker reports whether body embeds a component.
func HasMarker(body string) bool {
	return strings.Contains(body, Marker)
}

// CSRFToken returns the page's csrf token, looking at the csrf-token meta tag first and the
// hidden _token form field second.
func CSRFToken(doc *goquery.Document) string {
	token := strings.TrimSpace(doc.Find("meta[name=csrf-token]").First().AttrOr("content", ""))
	if token != "" {
		return token
	}
	return strings.TrimSpace(doc.Find("input[name=_token]").First().AttrOr("value", ""))
}

// ExtractSnapshot lifts the first component out of body. Attribute values come back entity
// decoded from the html parser. A missing component id or snapshot yields
// ErrAuthenticationIncomplete alongside whatever could be extracted.
func ExtractSnapshot(body string) (ComponentSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ComponentSnapshot{}, fmt.Errorf("parse page: %w", err)
	}

	snap := ComponentSnapshot{
		ComponentID: doc.Find(`[wire\:id]`).First().AttrOr("wire:id", ""),
		CSRFToken:   CSRFToken(doc),
		Snapshot:    doc.Find(`[wire\:snapshot]`).First().AttrOr("wire:snapshot", ""),
	}

	var envelope snapshotEnvelope
	if json.Unmarshal([]byte(snap.Snapshot), &envelope) == nil {
		snap.Checksum = envelope.Checksum
	}

	switch {
	case snap.ComponentID == "" && snap.Snapshot == "":
		return snap, fmt.Errorf("%w: no component id or snapshot", ErrAuthenticationIncomplete)
	case snap.ComponentID == "":
		return snap, fmt.Errorf("%w: no component id", ErrAuthenticationIncomplete)
	case snap.Snapshot == "":
		return snap, fmt.Errorf("%w: no snapshot", ErrAuthenticationIncomplete)
	}
	return snap, nil
}

// findSnapshotWith returns the first snapshot whose data declares every one of properties.
func findSnapshotWith(doc *goquery.Document, properties []string) (string, bool) {
	var found string
	doc.Find(`[wire\:snapshot]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := s.AttrOr("wire:snapshot", "")
		var envelope snapshotEnvelope
		if json.Unmarshal([]byte(raw), &envelope) != nil {
			return true
		}
		for _, property := range properties {
			if _, ok := envelope.Data[property]; !ok {
				return true
			}
		}
		found = raw
		return false
	})
	return found, found != ""
}

type Call struct {
	Path   string `json:"path"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type ComponentUpdate struct {
	Snapshot string         `json:"snapshot"`
	Updates  map[string]any `json:"updates"`
	Calls    []Call         `json:"calls"`
}

type UpdateRequest struct {
	Token      string            `json:"_token"`
	Components []ComponentUpdate `json:"components"`
}

// SubmitRequest builds the update that emulates submitting the component's form.
func SubmitRequest(snap ComponentSnapshot) UpdateRequest {
	return UpdateRequest{
		Token: snap.CSRFToken,
		Components: []ComponentUpdate{{
			Snapshot: snap.Snapshot,
			Updates:  map[string]any{},
			Calls: []Call{{
				Path:   "",
				Method: "submit",
				Params: []any{},
			}},
		}},
	}
}

// PropertyRequest builds an update that only changes component properties.
func PropertyRequest(token, snapshot string, updates map[string]any) UpdateRequest {
	if updates == nil {
		updates = map[string]any{}
	}
	return UpdateRequest{
		Token: token,
		Components: []ComponentUpdate{{
			Snapshot: snapshot,
			Updates:  updates,
			Calls:    []Call{},
		}},
	}
}

// Headers returns the headers that mark a request as originating from the component runtime.
func Headers(csrfToken, referer string) map[string]string {
	headers := map[string]string{
		"x-livewire":      "true",
		"x-csrf-token":    csrfToken,
		"accept-language": "nl-NL,nl;q=0.9,en-US;q=0.8,en;q=0.7",
		"cache-control":   "no-cache",
		"pragma":          "no-cache",
	}
	if referer != "" {
		headers["referer"] = referer
		if origin, err := Origin(referer); err == nil {
			headers["origin"] = origin
		}
	}
	return headers
}

type Effects struct {
	Redirect string `json:"redirect"`
	HTML     string `json:"html"`
}

type UpdateResponse struct {
	Effects    Effects `json:"effects"`
	Components []struct {
		Effects Effects `json:"effects"`
	} `json:"components"`
}

// ParseUpdateResponse decodes an update response, undecodable bodies yield an empty response.
func ParseUpdateResponse(body string) UpdateResponse {
	var res UpdateResponse
	if json.Unmarshal([]byte(body), &res) != nil {
		return UpdateResponse{}
	}
	return res
}

// Redirect returns the redirect instruction, top level effects win over the first component's.
func (r UpdateResponse) Redirect() string {
	if r.Effects.Redirect != "" {
		return r.Effects.Redirect
	}
	if len(r.Components) > 0 {
		return r.Components[0].Effects.Redirect
	}
	return ""
}

// Origin returns "scheme://host" of rawUrl.
func Origin(rawUrl string) (string, error) {
	parsed, err := url.Parse(rawUrl)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("url %q has no origin", rawUrl)
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

// UpdateURL returns the update endpoint of the origin serving pageUrl.
func UpdateURL(pageUrl string) (string, error) {
	origin, err := Origin(pageUrl)
	if err != nil {
		return "", err
	}
	return origin + UpdatePath, nil
}

// ResolveRedirect joins relative redirect targets to the origin of pageUrl, absolute targets
// are returned as they are.
func ResolveRedirect(pageUrl, redirect string) (string, error) {
	if strings.HasPrefix(redirect, "http") {
		return redirect, nil
	}
	origin, err := Origin(pageUrl)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(redirect, "/") {
		redirect = "/" + redirect
	}
	return origin + redirect, nil
}
