package telemetry

import (
	"fmt"
)

// API is where components report what happened to them. Tests swap it for a RecordingAPI
// to assert on what got reported.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that stopped working and needs someone to look at it.
	//
	// `id` names the component and not the failing line, a failed update POST in the livewire
	// authenticator is `authenticator.submit-update`. Details go into params.
	//
	// ids are lowercase, components are joined with dots and methods with dashes.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something unexpected that did not stop the component, see
	// ReportBroken for `id`.
	ReportWarning(id string, params ...any)

	// ReportDebug reports information only useful while debugging.
	ReportDebug(msg string, params ...any)

	// ReportCount reports a gauge, the current value of `id`. Values are points in time and
	// are never summed.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id (or debug message) with a namespace before handing it on.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) scoped(id string) string {
	return fmt.Sprintf("%s: %s", s.namespace, id)
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(s.scoped(id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(s.scoped(id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(s.scoped(msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(s.scoped(id), count)
}
