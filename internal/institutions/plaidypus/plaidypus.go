// Package plaidypus extracts accounts, profile info and transactions from
// the First Plaidypus online banking site.
package plaidypus

import (
	"context"
	"fmt"

	"instconnect/internal/components/assert"
	"instconnect/internal/components/telemetry"
	"instconnect/internal/connector"
	"instconnect/internal/transport"
	"instconnect/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const DefaultBaseUrl = "http://firstplaidypus.herokuapp.com/"

const (
	pathLogin     = "login"
	pathChallenge = "mfa"
	pathAccounts  = "accounts"
	pathProfile   = "settings/user"
	pathDownload  = "download"
)

const (
	report_login              = "extractor.login"
	report_login_challenge    = "extractor.login-challenge"
	report_accounts           = "extractor.accounts"
	report_info               = "extractor.info"
	report_transactions       = "extractor.transactions"
	report_transactions_csv   = "extractor.transactions-posted"
	report_transactions_table = "extractor.transactions-pending"
)

// Extractor implements connector.Extractor, connector.InfoExtractor and
// connector.TransactionExtractor.
type Extractor struct {
	client *transport.Client
	tel    telemetry.API
}

func New(client *transport.Client, tel telemetry.API) Extractor {
	assert.NotNil(client)
	assert.NotNil(tel)

	return Extractor{
		client: client,
		tel:    telemetry.NewScopedAPI("plaidypus", tel),
	}
}

// send performs a request, transport failures (timeouts included) become
// InstitutionRequestError.
func (e Extractor) send(ctx context.Context, session connector.Session, reportId string, req connector.Request) (connector.Response, error) {
	res, err := session.Do(ctx, req)
	if err != nil {
		e.tel.ReportBroken(reportId, fmt.Errorf("request: %w", err))
		return connector.Response{}, connector.InstitutionRequestError(err)
	}
	return res, nil
}

// fetchPage sends req and parses the body as html, anything but a 200 is an
// InstitutionRequestError.
func (e Extractor) fetchPage(ctx context.Context, session connector.Session, reportId string, req connector.Request) (*goquery.Document, error) {
	res, err := e.send(ctx, session, reportId, req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != 200 {
		err := fmt.Errorf("%s %s: unexpected status %d", req.Method, req.Path, res.StatusCode)
		e.tel.ReportWarning(reportId, err)
		return nil, connector.InstitutionRequestError(err)
	}
	doc, err := htmlutil.Parse(res.Body)
	if err != nil {
		e.tel.ReportBroken(reportId, fmt.Errorf("parse html: %w", err))
		return nil, connector.InstitutionRequestError(err)
	}
	return doc, nil
}
