package transport

import (
	"context"
	"net/http"
	"testing"

	"instconnect/internal/components/telemetry/telemetrytest"
	"instconnect/internal/connector"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

const baseUrl = "http://bank.test/"

func newTestClient(t *testing.T, mock *httpmock.MockTransport) (*Client, *telemetrytest.Recorder) {
	t.Helper()
	recorder := telemetrytest.NewRecorder()
	client, err := NewClient(Options{
		BaseUrl:      baseUrl,
		RoundTripper: mock,
	}, recorder)
	require.NoError(t, err)
	return client, recorder
}

func TestSessionKeepsCookies(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("POST", "http://bank.test/login", func(req *http.Request) (*http.Response, error) {
		if req.FormValue("username") != "user0" || req.FormValue("password") != "password" {
			return httpmock.NewStringResponse(200, "bad login"), nil
		}
		res := httpmock.NewStringResponse(302, "")
		res.Header.Set("Location", "http://bank.test/accounts")
		res.Header.Add("Set-Cookie", "session=abc123; Path=/")
		return res, nil
	})
	mock.RegisterResponder("GET", "http://bank.test/accounts", func(req *http.Request) (*http.Response, error) {
		cookie, err := req.Cookie("session")
		if err != nil || cookie.Value != "abc123" {
			return httpmock.NewStringResponse(401, "unauthorized"), nil
		}
		return httpmock.NewStringResponse(200, "<html>accounts</html>"), nil
	})

	client, _ := newTestClient(t, mock)
	ctx := context.Background()

	session, err := client.NewSession()
	require.NoError(t, err)

	res, err := session.Do(ctx, connector.Request{
		Method: http.MethodPost,
		Path:   "login",
		Form:   map[string]string{"username": "user0", "password": "password"},
	})
	require.NoError(t, err)
	require.Equal(t, 302, res.StatusCode)
	require.True(t, res.IsRedirect())
	require.Equal(t, "http://bank.test/accounts", res.Location())

	// the redirect was not followed
	require.Equal(t, 0, mock.GetCallCountInfo()["GET http://bank.test/accounts"])

	res, err = session.Do(ctx, connector.Request{Method: http.MethodGet, Path: "accounts"})
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
	require.Equal(t, "<html>accounts</html>", string(res.Body))

	// a second session does not see the first session's cookies
	other, err := client.NewSession()
	require.NoError(t, err)
	res, err = other.Do(ctx, connector.Request{Method: http.MethodGet, Path: "accounts"})
	require.NoError(t, err)
	require.Equal(t, 401, res.StatusCode)
}

func TestSessionTransportError(t *testing.T) {
	mock := httpmock.NewMockTransport()
	client, recorder := newTestClient(t, mock)

	session, err := client.NewSession()
	require.NoError(t, err)

	_, err = session.Do(context.Background(), connector.Request{Method: http.MethodGet, Path: "settings/user"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "GET settings/user")
	require.True(t, recorder.BrokenWith("resty.response"))
}

func TestSessionBaseUrlWithPath(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder("GET", "http://bank.test/retail/accounts/abc",
		httpmock.NewStringResponder(200, "ok"))

	client, err := NewClient(Options{
		BaseUrl:      "http://bank.test/retail/",
		RoundTripper: mock,
	}, telemetrytest.NewRecorder())
	require.NoError(t, err)

	session, err := client.NewSession()
	require.NoError(t, err)

	res, err := session.Do(context.Background(), connector.Request{Method: http.MethodGet, Path: "accounts/abc"})
	require.NoError(t, err)
	require.Equal(t, "ok", string(res.Body))
}

func TestNewClientRejectsRelativeUrl(t *testing.T) {
	_, err := NewClient(Options{BaseUrl: "bank.test/login"}, telemetrytest.NewRecorder())
	require.Error(t, err)
}
