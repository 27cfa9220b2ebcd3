package plaidypus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"instconnect/internal/connector"
	"instconnect/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// account types by the official name the site displays
var accountTypes = map[string]connector.AccountType{
	"Personal Checking":         connector.AccountDepository,
	"Business Savings":          connector.AccountDepository,
	"Travel Rewards Mastercard": connector.AccountCredit,
	"Auto Navigator Loan":       connector.AccountLoan,
	"10/1 Adjustable":           connector.AccountLoan,
}

func (e Extractor) ExtractAccounts(ctx context.Context, session connector.Session) ([]connector.DiscoveredAccount, error) {
	doc, err := e.fetchPage(ctx, session, report_accounts, connector.Request{
		Method: http.MethodGet,
		Path:   pathAccounts,
	})
	if err != nil {
		return nil, err
	}

	var accounts []connector.DiscoveredAccount
	var parseErr error
	doc.Find(".accountrow").EachWithBreak(func(i int, row *goquery.Selection) bool {
		account, err := parseAccountRow(row)
		if err != nil {
			parseErr = fmt.Errorf("account row %d: %w", i, err)
			return false
		}
		accounts = append(accounts, account)
		return true
	})
	if parseErr != nil {
		e.tel.ReportBroken(report_accounts, parseErr)
		return nil, connector.InstitutionRequestError(parseErr)
	}

	e.tel.ReportDebug("accounts discovered", "count", len(accounts))
	return accounts, nil
}

func parseAccountRow(row *goquery.Selection) (connector.DiscoveredAccount, error) {
	nickname := htmlutil.SelectionText(row.Find("div.left > h4").First())
	if nickname == "" {
		return connector.DiscoveredAccount{}, fmt.Errorf("missing nickname")
	}
	officialName := htmlutil.SelectionText(row.Find("div.left > p").First())
	if officialName == "" {
		return connector.DiscoveredAccount{}, fmt.Errorf("missing official name")
	}
	accountType, ok := accountTypes[officialName]
	if !ok {
		return connector.DiscoveredAccount{}, fmt.Errorf("unknown account type %q", officialName)
	}

	balance, err := parseAmount(htmlutil.SelectionText(row.Find("div.right > h4").First()))
	if err != nil {
		return connector.DiscoveredAccount{}, fmt.Errorf("balance: %w", err)
	}

	number, _ := row.Attr("data-a-n")
	number = strings.TrimSpace(number)
	if len(number) < 4 {
		return connector.DiscoveredAccount{}, fmt.Errorf("account number %q is too short", number)
	}

	account := connector.DiscoveredAccount{
		Account: connector.Account{
			Type:             accountType,
			Nickname:         nickname,
			OfficialName:     officialName,
			CurrentBalance:   balance,
			AvailableBalance: balance,
			Mask:             number[len(number)-4:],
		},
	}

	if accountType.HasTransactions() {
		href, _ := row.Find("a[href]").First().Attr("href")
		ref, err := refFromHref(href)
		if err != nil {
			return connector.DiscoveredAccount{}, err
		}
		account.Ref = ref
	}

	return account, nil
}

// refFromHref returns the last non-empty path segment of an account link.
func refFromHref(href string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse account link %q: %w", href, err)
	}
	segments := strings.Split(u.Path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i], nil
		}
	}
	return "", fmt.Errorf("account link %q has no reference", href)
}
