package plaidypus

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"instconnect/internal/connector"
	"instconnect/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// the first column of the posted transactions export is unused
const (
	csvColumnDate        = 1
	csvColumnAmount      = 2
	csvColumnDescription = 3
)

func (e Extractor) ExtractTransactions(
	ctx context.Context,
	session connector.Session,
	account connector.DiscoveredAccount,
	opts connector.TransactionOptions,
) ([]connector.Transaction, error) {
	err := opts.Validate()
	if err != nil {
		return nil, connector.InstitutionRequestError(err)
	}
	if account.Ref == "" {
		err := fmt.Errorf("account %q has no reference", account.Nickname)
		e.tel.ReportBroken(report_transactions, err)
		return nil, connector.InstitutionRequestError(err)
	}

	posted, err := e.extractPosted(ctx, session, account.Ref, opts)
	if err != nil {
		return nil, err
	}
	pending, err := e.extractPending(ctx, session, account.Ref, opts)
	if err != nil {
		return nil, err
	}

	e.tel.ReportDebug(
		"transactions extracted",
		"account", account.Nickname,
		"posted", len(posted),
		"pending", len(pending),
	)
	return append(posted, pending...), nil
}

func (e Extractor) extractPosted(ctx context.Context, session connector.Session, ref string, opts connector.TransactionOptions) ([]connector.Transaction, error) {
	res, err := e.send(ctx, session, report_transactions_csv, connector.Request{
		Method: http.MethodPost,
		Path:   pathDownload,
		Form: map[string]string{
			"account_id": ref,
			"start_date": opts.StartDate.String(),
			"end_date":   opts.EndDate.String(),
		},
	})
	if err != nil {
		return nil, err
	}
	if res.StatusCode != 200 {
		err := fmt.Errorf("transaction download: unexpected status %d", res.StatusCode)
		e.tel.ReportWarning(report_transactions_csv, err)
		return nil, connector.InstitutionRequestError(err)
	}

	transactions, err := parsePostedCsv(res.Body)
	if err != nil {
		e.tel.ReportBroken(report_transactions_csv, err)
		return nil, connector.InstitutionRequestError(err)
	}
	return transactions, nil
}

func parsePostedCsv(body []byte) ([]connector.Transaction, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	// header
	_, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var transactions []connector.Transaction
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)

		if len(row) <= csvColumnDescription {
			return nil, fmt.Errorf("csv line %d: %d columns, want at least %d", line, len(row), csvColumnDescription+1)
		}
		rawDate := strings.TrimSpace(row[csvColumnDate])
		if rawDate == "None" {
			continue
		}

		date, err := parseDate(rawDate)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		amount, err := parseAmount(row[csvColumnAmount])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		description := strings.TrimSpace(row[csvColumnDescription])
		if description == "" {
			return nil, fmt.Errorf("csv line %d: empty description", line)
		}

		transactions = append(transactions, connector.Transaction{
			Date:        date.String(),
			Amount:      amount,
			Description: description,
			Pending:     false,
		})
	}
	return transactions, nil
}

func (e Extractor) extractPending(ctx context.Context, session connector.Session, ref string, opts connector.TransactionOptions) ([]connector.Transaction, error) {
	doc, err := e.fetchPage(ctx, session, report_transactions_table, connector.Request{
		Method: http.MethodGet,
		Path:   pathAccounts + "/" + ref,
	})
	if err != nil {
		return nil, err
	}

	transactions, err := parsePendingTable(doc, opts)
	if err != nil {
		e.tel.ReportBroken(report_transactions_table, err)
		return nil, connector.InstitutionRequestError(err)
	}
	return transactions, nil
}

// parsePendingTable keeps the rows dated within opts, their date stays the
// text the site displays.
func parsePendingTable(doc *goquery.Document, opts connector.TransactionOptions) ([]connector.Transaction, error) {
	var transactions []connector.Transaction
	var parseErr error
	doc.Find(".pending tbody tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		rawDate := htmlutil.SelectionText(row.Find("td:nth-child(1)"))
		date, err := parseDate(rawDate)
		if err != nil {
			parseErr = fmt.Errorf("pending row %d: %w", i, err)
			return false
		}
		description := htmlutil.SelectionText(row.Find("td:nth-child(2) > div > div"))
		if description == "" {
			parseErr = fmt.Errorf("pending row %d: empty description", i)
			return false
		}
		amount, err := parseAmount(htmlutil.SelectionText(row.Find("td:nth-child(3)")))
		if err != nil {
			parseErr = fmt.Errorf("pending row %d: %w", i, err)
			return false
		}

		if !opts.Contains(date) {
			return true
		}
		transactions = append(transactions, connector.Transaction{
			Date:        rawDate,
			Amount:      amount,
			Description: description,
			Pending:     true,
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return transactions, nil
}
