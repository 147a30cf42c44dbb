package telemetry

import (
	"fmt"
	"strings"
	"sync"
)

// Report is a single call made against a RecordingAPI.
type Report struct {
	Kind   string
	Id     string
	Params []any
}

// RecordingAPI implements API by remembering every report, it lets tests assert that a
// component reported (or did not report) breakage.
type RecordingAPI struct {
	mutex   sync.Mutex
	reports []Report
}

func (r *RecordingAPI) record(kind, id string, params []any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, Report{Kind: kind, Id: id, Params: params})
}

func (r *RecordingAPI) ReportBroken(id string, params ...any) {
	r.record("broken", id, params)
}

func (r *RecordingAPI) ReportWarning(id string, params ...any) {
	r.record("warning", id, params)
}

func (r *RecordingAPI) ReportDebug(msg string, params ...any) {
	r.record("debug", msg, params)
}

func (r *RecordingAPI) ReportCount(id string, count int64) {
	r.record("count", id, []any{count})
}

// Reports returns a copy of every report of the given kind, an empty kind returns all of them.
func (r *RecordingAPI) Reports(kind string) []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var out []Report
	for _, rep := range r.reports {
		if kind == "" || rep.Kind == kind {
			out = append(out, rep)
		}
	}
	return out
}

// Broken returns the ids of every ReportBroken call.
func (r *RecordingAPI) Broken() []string {
	var ids []string
	for _, rep := range r.Reports("broken") {
		ids = append(ids, rep.Id)
	}
	return ids
}

func (r *RecordingAPI) String() string {
	var out strings.Builder
	for _, rep := range r.Reports("") {
		out.WriteString(fmt.Sprintf("%s %s %v\n", rep.Kind, rep.Id, rep.Params))
	}
	return out.String()
}
