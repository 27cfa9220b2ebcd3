// Package telemetrytest provides a telemetry.API that records reports so
// tests can assert on them.
package telemetrytest

import (
	"strings"
	"sync"
)

type Report struct {
	ID     string
	Params []any
}

// Recorder implements telemetry.API.
type Recorder struct {
	mu       sync.Mutex
	broken   []Report
	warnings []Report
	debug    []Report
	counts   map[string]int64
}

func NewRecorder() *Recorder {
	return &Recorder{counts: map[string]int64{}}
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broken = append(r.broken, Report{ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, Report{ID: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debug = append(r.debug, Report{ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[id] = count
}

func (r *Recorder) Broken() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.broken...)
}

func (r *Recorder) Warnings() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.warnings...)
}

func (r *Recorder) Debug() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.debug...)
}

// Count returns the last count reported under an id ending with suffix.
func (r *Recorder) Count(suffix string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, n := range r.counts {
		if strings.HasSuffix(id, suffix) {
			return n, true
		}
	}
	return 0, false
}

// BrokenWith reports whether any broken report has an id ending with suffix.
func (r *Recorder) BrokenWith(suffix string) bool {
	for _, report := range r.Broken() {
		if strings.HasSuffix(report.ID, suffix) {
			return true
		}
	}
	return false
}
