// Package transport is the HTTP side of a connector: a Client configured
// for one institution hands out Sessions, each with its own cookie jar.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"instconnect/internal/components/assert"
	"instconnect/internal/components/telemetry"
	"instconnect/internal/connector"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const report_dump = "dump"

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Options struct {
	BaseUrl string
	// Timeout bounds a single request, 0 means 30 seconds.
	Timeout time.Duration
	// RequestsPerSecond limits the request rate of each session, 0 means
	// no limit.
	RequestsPerSecond float64
	// CloudflareBypass mimics a browser's TLS fingerprint for institutions
	// sitting behind cloudflare.
	CloudflareBypass bool
	UserAgent        string
	// RoundTripper replaces the default http transport when set.
	RoundTripper http.RoundTripper
	// Dump, if set, receives a copy of every exchange with credentials
	// redacted.
	Dump Dump
}

type Client struct {
	baseUrl *url.URL
	opts    Options
	tel     telemetry.API
	// numbers dumped exchanges across sessions
	dumpCounter *uint64
}

func NewClient(opts Options, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseUrl)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	return &Client{
		baseUrl:     baseUrl,
		opts:        opts,
		tel:         telemetry.NewScopedAPI("transport", tel),
		dumpCounter: new(uint64),
	}, nil
}

func (c *Client) BaseUrl() *url.URL {
	u := *c.baseUrl
	return &u
}

// NewSession creates a session with an empty cookie jar. Redirects are
// never followed, callers see 3xx responses as they are.
func (c *Client) NewSession() (*Session, error) {
	httpClient := resty.New()
	if c.opts.RoundTripper != nil {
		httpClient.SetTransport(c.opts.RoundTripper)
	}
	httpClient.SetBaseURL(c.baseUrl.String())

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if c.opts.CloudflareBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	httpClient.SetHeader("user-agent", c.opts.UserAgent)
	httpClient.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))
	httpClient.SetTimeout(c.opts.Timeout)

	if c.opts.RequestsPerSecond > 0 {
		// burst >= 1 so a single request never waits on an idle limiter
		limiter := rate.NewLimiter(rate.Limit(c.opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	instrument{
		dump:      c.opts.Dump,
		idcounter: c.dumpCounter,
		onFailure: func(err error) {
			c.tel.ReportWarning(report_dump, err)
		},
	}.attach(httpClient)
	telemetry.InstrumentResty(httpClient, c.tel)

	return &Session{http: httpClient}, nil
}

// Session implements connector.Session.
type Session struct {
	http *resty.Client
}

func (s *Session) Do(ctx context.Context, req connector.Request) (connector.Response, error) {
	r := s.http.R().SetContext(ctx)
	if req.Form != nil {
		r.SetFormData(req.Form)
	}

	res, err := r.Execute(req.Method, req.Path)
	if err != nil {
		return connector.Response{}, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}

	return connector.Response{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Body:       res.Body(),
	}, nil
}
