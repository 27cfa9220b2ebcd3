package plaidypus

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"instconnect/internal/connector"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

// registerBank serves every page of the site, all but login require the
// session cookie.
func registerBank(t *testing.T, mock *httpmock.MockTransport) {
	authenticated := func(page httpmock.Responder) httpmock.Responder {
		return func(req *http.Request) (*http.Response, error) {
			cookie, err := req.Cookie("session")
			if err != nil || cookie.Value != "s3cret" {
				return httpmock.NewStringResponse(401, ""), nil
			}
			return page(req)
		}
	}

	mock.RegisterResponder("POST", testBaseUrl+"login", func(req *http.Request) (*http.Response, error) {
		if req.FormValue("username") != "user0" || req.FormValue("password") != "password" {
			return httpmock.NewStringResponse(200, "invalid login"), nil
		}
		res := httpmock.NewStringResponse(http.StatusFound, "")
		res.Header.Set("Location", "/mfa")
		res.Header.Add("Set-Cookie", "session=s3cret; Path=/")
		return res, nil
	})
	mock.RegisterResponder("GET", testBaseUrl+"mfa", authenticated(httpmock.NewBytesResponder(200, fixture(t, "mfa.html"))))
	mock.RegisterResponder("POST", testBaseUrl+"mfa", authenticated(func(req *http.Request) (*http.Response, error) {
		if req.FormValue("answer") != "Smith" {
			return httpmock.NewStringResponse(401, ""), nil
		}
		return redirectTo("/accounts")(req)
	}))
	mock.RegisterResponder("GET", testBaseUrl+"accounts", authenticated(httpmock.NewBytesResponder(200, fixture(t, "accounts.html"))))
	mock.RegisterResponder("GET", testBaseUrl+"settings/user", authenticated(httpmock.NewBytesResponder(200, fixture(t, "profile.html"))))
	mock.RegisterResponder("POST", testBaseUrl+"download", authenticated(func(req *http.Request) (*http.Response, error) {
		if req.FormValue("account_id") != "chk-001" {
			return httpmock.NewStringResponse(200, "#,Date,Amount,Description\n"), nil
		}
		return httpmock.NewBytesResponse(200, fixture(t, "download.csv")), nil
	}))
	mock.RegisterResponder("GET", testBaseUrl+"accounts/chk-001", authenticated(httpmock.NewBytesResponder(200, fixture(t, "pending.html"))))
	mock.RegisterResponder("GET", testBaseUrl+"accounts/cc-002", authenticated(httpmock.NewStringResponder(200, `<table class="pending"><tbody></tbody></table>`)))
}

func sequentialIndexes() func() connector.AccountIndex {
	next := 0
	return func() connector.AccountIndex {
		next++
		return connector.AccountIndex(fmt.Sprintf("account-%d", next))
	}
}

func TestPipelineRun(t *testing.T) {
	inst := newTestInstitution(t)
	registerBank(t, inst.mock)

	pipeline := connector.NewPipeline(inst.extractor, inst.recorder, connector.PipelineOptions{
		NewIndex: sequentialIndexes(),
	})
	require.NotNil(t, pipeline.Capabilities().Info)
	require.NotNil(t, pipeline.Capabilities().Transactions)

	result, err := pipeline.Run(context.Background(), connector.Credentials{
		Username:   "user0",
		Password:   "password",
		Challenges: map[string]string{motherQuestion: "Smith"},
	}, march2024())
	require.NoError(t, err)

	require.Equal(t, []connector.AccountIndex{"account-1", "account-2", "account-3"}, result.Indexes())
	require.Equal(t, "5678", result.Accounts["account-1"].Mask)
	require.Equal(t, connector.AccountLoan, result.Accounts["account-3"].Type)

	require.NotNil(t, result.Info)
	require.Equal(t, []string{"Jane Doe"}, result.Info.Names)

	require.Len(t, result.Transactions, 2)
	require.Len(t, result.Transactions["account-1"], 5)
	require.NotNil(t, result.Transactions["account-2"])
	require.Empty(t, result.Transactions["account-2"])
	_, loanExtracted := result.Transactions["account-3"]
	require.False(t, loanExtracted)

	// the loan account's transactions are never requested
	require.Equal(t, 2, inst.calls("POST", "download"))
	require.Empty(t, inst.recorder.Broken())
}

func TestPipelineRunInvalidCredentials(t *testing.T) {
	inst := newTestInstitution(t)
	registerBank(t, inst.mock)

	pipeline := connector.NewPipeline(inst.extractor, inst.recorder, connector.PipelineOptions{})
	result := pipeline.Extract(context.Background(), connector.Credentials{
		Username:   "user0",
		Password:   "password",
		Challenges: map[string]string{motherQuestion: "Jones"},
	}, march2024())

	require.Nil(t, result.Data)
	require.NotNil(t, result.Err)
	require.Equal(t, connector.KindInvalidCredentials, result.Err.Kind)
	require.Zero(t, inst.calls("GET", "accounts"))
}
