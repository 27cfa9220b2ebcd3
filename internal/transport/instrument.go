package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("instconnect/transport")

// form fields that never reach a dump
var redactedFields = []string{"password", "answer"}

// Dump receives a readable copy of every exchange a session makes.
type Dump interface {
	Write(name string, contents string) error
}

// DirectoryDump writes every exchange into its own file.
type DirectoryDump struct {
	directory string
}

func NewDirectoryDump(dir string) (DirectoryDump, error) {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return DirectoryDump{}, err
	}
	return DirectoryDump{directory: dir}, nil
}

func (d DirectoryDump) Write(name string, contents string) error {
	return os.WriteFile(filepath.Join(d.directory, name), []byte(contents), 0600)
}

type instrument struct {
	dump      Dump
	idcounter *uint64
	onFailure func(err error)
}

func (i instrument) attach(client *resty.Client) {
	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

func (i instrument) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	ctx, _ := tracer.Start(req.Context(), fmt.Sprintf("http %s", req.Method), trace.WithSpanKind(trace.SpanKindClient))
	req.SetContext(ctx)
	return nil
}

func (i instrument) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	span := trace.SpanFromContext(res.Request.Context())
	defer span.End()

	// RawRequest is only set once the request has been sent
	if res.Request.RawRequest != nil {
		span.SetAttributes(httpconv.ClientRequest(res.Request.RawRequest)...)
	}
	if res.RawResponse != nil {
		span.SetAttributes(httpconv.ClientResponse(res.RawResponse)...)
	}
	if res.StatusCode() >= 500 {
		span.SetStatus(codes.Error, res.Status())
	}

	if i.dump != nil {
		id := atomic.AddUint64(i.idcounter, 1)
		err := i.dump.Write(dumpName(id, res.Request), formatExchange(res))
		if err != nil {
			i.onFailure(fmt.Errorf("dump exchange %d: %w", id, err))
		}
	}
	return nil
}

func (i instrument) onError(req *resty.Request, err error) {
	span := trace.SpanFromContext(req.Context())
	defer span.End()

	span.RecordError(err)
	span.SetStatus(codes.Error, "request failed")
	if req.RawRequest != nil {
		span.SetAttributes(httpconv.ClientRequest(req.RawRequest)...)
	}
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func dumpName(id uint64, req *resty.Request) string {
	path := req.URL
	if u, err := url.Parse(req.URL); err == nil {
		path = u.Path
	}
	path = strings.Trim(unsafeNameChars.ReplaceAllString(path, "_"), "_")
	return fmt.Sprintf("%04d-%s-%s.txt", id, strings.ToLower(req.Method), path)
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var out strings.Builder
	for _, k := range keys {
		for _, v := range headers[k] {
			if k == "Cookie" || k == "Set-Cookie" {
				v = "<redacted>"
			}
			fmt.Fprintf(&out, "%s: %s\n", k, v)
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func formatForm(form url.Values) string {
	if len(form) == 0 {
		return ""
	}
	redacted := url.Values{}
	for k, vals := range form {
		if slices.Contains(redactedFields, k) {
			redacted[k] = []string{"<redacted>"}
			continue
		}
		redacted[k] = vals
	}
	return redacted.Encode()
}

// 1: request method
// 2: request url
// 3: request headers
// 4: request form
// 5: response status
// 6: response headers
// 7: response body
const exchangeTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s

%s

%s`

func formatExchange(res *resty.Response) string {
	var requestHeaders http.Header
	if res.Request.RawRequest != nil {
		requestHeaders = res.Request.RawRequest.Header
	}
	return fmt.Sprintf(
		exchangeTemplate,
		res.Request.Method, res.Request.URL,
		formatHeaders(requestHeaders),
		formatForm(res.Request.FormData),
		strconv.Itoa(res.StatusCode()),
		formatHeaders(res.Header()),
		res.String(),
	)
}
