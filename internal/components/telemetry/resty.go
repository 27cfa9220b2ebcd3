package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

type requestKey struct{}

type requestInfo struct {
	id      uint64
	started time.Time
}

// InstrumentResty reports each request of client as it starts and finishes,
// transport failures are reported broken.
func InstrumentResty(client *resty.Client, tel API) {
	var counter uint64

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		info := requestInfo{id: atomic.AddUint64(&counter, 1), started: time.Now()}
		tel.ReportDebug(report_resty_request, info.id, req.Method, req.URL)
		req.SetContext(context.WithValue(req.Context(), requestKey{}, info))
		return nil
	})

	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		info, ok := res.Request.Context().Value(requestKey{}).(requestInfo)
		if !ok {
			tel.ReportWarning(report_resty_response, "response without request info", res.Request.URL)
			return nil
		}
		tel.ReportDebug(report_resty_response, info.id, res.Status(), time.Since(info.started).String())
		return nil
	})

	client.OnError(func(req *resty.Request, err error) {
		// absent when an earlier request middleware failed, ex. the rate
		// limiter on a cancelled context
		info, _ := req.Context().Value(requestKey{}).(requestInfo)
		var elapsed time.Duration
		if !info.started.IsZero() {
			elapsed = time.Since(info.started)
		}
		tel.ReportBroken(report_resty_response, err, req.Method, req.URL, elapsed.String())
	})
}
