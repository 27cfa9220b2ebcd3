package plaidypus

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

var amountCleaner = strings.NewReplacer("$", "", ",", "", " ", "")

// parseAmount parses amounts like "$1,250.75", "-4.50" or "-$4.50".
func parseAmount(text string) (decimal.Decimal, error) {
	cleaned := amountCleaner.Replace(strings.TrimSpace(text))
	if cleaned == "" {
		return decimal.Decimal{}, fmt.Errorf("empty amount")
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount %q: %w", text, err)
	}
	return amount, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"Jan 02, 2006",
	"January 2, 2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// parseDate accepts the date formats the site uses for display and export.
func parseDate(text string) (civil.Date, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return civil.Date{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("unrecognized date %q", text)
}
