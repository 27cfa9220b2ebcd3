package telemetry

import (
	"fmt"

	"instconnect/internal/components/assert"
)

// API is how components report what happens to them. Components never log
// directly, so tests can swap in a recorder and assert on reports.
type API interface {
	// ReportBroken reports a component that no longer works and needs a fix,
	// ex. an institution page whose markup changed.
	//
	// id names the component (lowercase, a dot between component and part,
	// dashes inside a part: `extractor.login-challenge`), the cause goes into
	// params, usually as a wrapped error.
	ReportBroken(id string, params ...any)

	// ReportWarning reports something unusual that is not necessarily a bug,
	// ex. an institution answering with an unexpected status. ids follow
	// ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug is for tracing a run while developing.
	ReportDebug(msg string, params ...any)

	// ReportCount reports how many of something were seen in one go, ex.
	// accounts discovered in a run. Counts are samples, not increments.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every id with "<namespace>: ".
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	assert.NotEmptyStr(namespace)
	assert.NotNil(inner)
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
