package connector

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Credentials are supplied by the end user, Challenges maps the text of a
// challenge question to its answer.
type Credentials struct {
	Username   string
	Password   string
	Challenges map[string]string
}

type AccountType string

const (
	AccountDepository AccountType = "depository"
	AccountCredit     AccountType = "credit"
	AccountLoan       AccountType = "loan"
)

// HasTransactions reports whether transaction history is extracted for
// accounts of this type.
func (t AccountType) HasTransactions() bool {
	return t == AccountDepository || t == AccountCredit
}

type Account struct {
	Type             AccountType     `json:"type"`
	Nickname         string          `json:"nickname"`
	OfficialName     string          `json:"officialName"`
	CurrentBalance   decimal.Decimal `json:"currentBalance"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	// Mask is the last 4 digits of the account number.
	Mask string `json:"mask"`
}

// DiscoveredAccount is an Account as it comes out of account discovery, Ref
// is the institution-internal reference needed to fetch its transactions.
// It must not leave the connector, use Sanitize.
type DiscoveredAccount struct {
	Account
	Ref string
}

// Sanitize returns the Account without its institution reference.
func (a DiscoveredAccount) Sanitize() Account {
	return a.Account
}

// AccountIndex identifies one account within a single run. It carries no
// meaning beyond that.
type AccountIndex string

type Transaction struct {
	// Date is YYYY-MM-DD for posted transactions and the institution's
	// display text for pending ones.
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Pending     bool            `json:"pending"`
}

type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

type Info struct {
	Names        []string  `json:"names"`
	PhoneNumbers []string  `json:"phoneNumbers"`
	Emails       []string  `json:"emails"`
	Addresses    []Address `json:"addresses"`
}

// TransactionOptions is an inclusive range of calendar dates.
type TransactionOptions struct {
	StartDate civil.Date
	EndDate   civil.Date
}

func (o TransactionOptions) Validate() error {
	if !o.StartDate.IsValid() {
		return fmt.Errorf("invalid start date %q", o.StartDate)
	}
	if !o.EndDate.IsValid() {
		return fmt.Errorf("invalid end date %q", o.EndDate)
	}
	if o.StartDate.After(o.EndDate) {
		return fmt.Errorf("start date %s is after end date %s", o.StartDate, o.EndDate)
	}
	return nil
}

// Contains reports whether date falls within the range, bounds included.
func (o TransactionOptions) Contains(date civil.Date) bool {
	return !date.Before(o.StartDate) && !date.After(o.EndDate)
}
