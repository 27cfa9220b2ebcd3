package connector

import "context"

// Extractor is what every institution must support.
type Extractor interface {
	// Login authenticates and returns the Session used by every later step.
	Login(ctx context.Context, creds Credentials) (Session, error)
	// ExtractAccounts lists the accounts visible to the session, in
	// institution order.
	ExtractAccounts(ctx context.Context, session Session) ([]DiscoveredAccount, error)
}

// InfoExtractor is implemented by extractors that can read the account
// holder's profile.
type InfoExtractor interface {
	ExtractInfo(ctx context.Context, session Session) (Info, error)
}

// TransactionExtractor is implemented by extractors that can read the
// transaction history of a single account.
type TransactionExtractor interface {
	ExtractTransactions(
		ctx context.Context,
		session Session,
		account DiscoveredAccount,
		options TransactionOptions,
	) ([]Transaction, error)
}

// Capabilities are the optional operations of an Extractor, a nil field
// means the operation is unsupported.
type Capabilities struct {
	Info         InfoExtractor
	Transactions TransactionExtractor
}

func DetectCapabilities(extractor Extractor) Capabilities {
	var caps Capabilities
	if info, ok := extractor.(InfoExtractor); ok {
		caps.Info = info
	}
	if txns, ok := extractor.(TransactionExtractor); ok {
		caps.Transactions = txns
	}
	return caps
}
