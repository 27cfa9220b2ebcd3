package connector

import (
	"encoding/json"
	"slices"
)

// FullResult is the payload of a successful run.
type FullResult struct {
	Accounts map[AccountIndex]Account
	// Info is nil when the extractor cannot read profile info.
	Info *Info
	// Transactions only has entries for accounts whose transactions were
	// extracted.
	Transactions map[AccountIndex][]Transaction

	order []AccountIndex
}

// Indexes returns the account indexes in the order the accounts were
// discovered. For a FullResult built outside a run, the indexes are sorted.
func (r FullResult) Indexes() []AccountIndex {
	if len(r.order) == len(r.Accounts) {
		return slices.Clone(r.order)
	}
	indexes := make([]AccountIndex, 0, len(r.Accounts))
	for idx := range r.Accounts {
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)
	return indexes
}

// MarshalJSON writes the maps as ordered [index, value] pairs.
func (r FullResult) MarshalJSON() ([]byte, error) {
	indexes := r.Indexes()

	accounts := make([][2]any, 0, len(indexes))
	transactions := make([][2]any, 0, len(r.Transactions))
	for _, idx := range indexes {
		accounts = append(accounts, [2]any{idx, r.Accounts[idx]})
		if txns, ok := r.Transactions[idx]; ok {
			transactions = append(transactions, [2]any{idx, txns})
		}
	}

	return json.Marshal(struct {
		Accounts     [][2]any `json:"accounts"`
		Info         *Info    `json:"info,omitempty"`
		Transactions [][2]any `json:"transactions"`
	}{
		Accounts:     accounts,
		Info:         r.Info,
		Transactions: transactions,
	})
}

// Result holds the outcome of one run, exactly one of Data and Err is set.
type Result struct {
	Data *FullResult
	Err  *Error
}

func NewResult(data FullResult, err error) Result {
	if err != nil {
		return Result{Err: AsError(err)}
	}
	return Result{Data: &data}
}

type resultError struct {
	Kind        ErrorKind `json:"kind"`
	Description string    `json:"description"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(struct {
			Error resultError `json:"error"`
		}{
			Error: resultError{
				Kind:        r.Err.Kind,
				Description: r.Err.Error(),
			},
		})
	}
	return json.Marshal(struct {
		Data *FullResult `json:"data"`
	}{
		Data: r.Data,
	})
}
