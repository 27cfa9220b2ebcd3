package connector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"instconnect/internal/components/telemetry/telemetrytest"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeSession struct{}

func (fakeSession) Do(context.Context, Request) (Response, error) {
	return Response{}, errors.New("fake session cannot send requests")
}

// fakeExtractor only supports the required operations.
type fakeExtractor struct {
	calls []string

	loginErr    error
	onLogin     func()
	accounts    []DiscoveredAccount
	accountsErr error
}

func (f *fakeExtractor) Login(ctx context.Context, creds Credentials) (Session, error) {
	f.calls = append(f.calls, "login")
	if f.onLogin != nil {
		f.onLogin()
	}
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return fakeSession{}, nil
}

func (f *fakeExtractor) ExtractAccounts(ctx context.Context, session Session) ([]DiscoveredAccount, error) {
	f.calls = append(f.calls, "accounts")
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	return f.accounts, nil
}

// fullExtractor supports every optional operation.
type fullExtractor struct {
	*fakeExtractor

	info         Info
	infoErr      error
	transactions map[string][]Transaction
	txnErrs      map[string]error
	panicRef     string
}

func (f fullExtractor) ExtractInfo(ctx context.Context, session Session) (Info, error) {
	f.calls = append(f.calls, "info")
	if f.infoErr != nil {
		return Info{}, f.infoErr
	}
	return f.info, nil
}

func (f fullExtractor) ExtractTransactions(
	ctx context.Context,
	session Session,
	account DiscoveredAccount,
	options TransactionOptions,
) ([]Transaction, error) {
	f.calls = append(f.calls, "transactions:"+account.Ref)
	if account.Ref == f.panicRef {
		panic("unexpected markup")
	}
	if err := f.txnErrs[account.Ref]; err != nil {
		return nil, err
	}
	return f.transactions[account.Ref], nil
}

var testOptions = TransactionOptions{
	StartDate: civil.Date{Year: 2019, Month: 1, Day: 1},
	EndDate:   civil.Date{Year: 2019, Month: 4, Day: 30},
}

func testAccounts() []DiscoveredAccount {
	return []DiscoveredAccount{
		{
			Account: Account{
				Type:             AccountDepository,
				Nickname:         "Everyday Checking",
				OfficialName:     "Personal Checking",
				CurrentBalance:   decimal.RequireFromString("1250.75"),
				AvailableBalance: decimal.RequireFromString("1250.75"),
				Mask:             "5678",
			},
			Ref: "chk",
		},
		{
			Account: Account{
				Type:             AccountLoan,
				Nickname:         "Car",
				OfficialName:     "Auto Navigator Loan",
				CurrentBalance:   decimal.RequireFromString("8000"),
				AvailableBalance: decimal.RequireFromString("8000"),
				Mask:             "4321",
			},
		},
		{
			Account: Account{
				Type:             AccountCredit,
				Nickname:         "Travel Card",
				OfficialName:     "Travel Rewards Mastercard",
				CurrentBalance:   decimal.RequireFromString("-310.20"),
				AvailableBalance: decimal.RequireFromString("-310.20"),
				Mask:             "9999",
			},
			Ref: "cc",
		},
	}
}

func newFullExtractor() fullExtractor {
	return fullExtractor{
		fakeExtractor: &fakeExtractor{accounts: testAccounts()},
		info: Info{
			Names:        []string{"Jane Doe"},
			PhoneNumbers: []string{"15555550123"},
			Emails:       []string{"jane@example.com"},
			Addresses: []Address{{
				Street: "123 Center Street",
				City:   "Salt Lake City",
				State:  "UT",
				Zip:    "84102",
			}},
		},
		transactions: map[string][]Transaction{
			"chk": {{Date: "2019-03-02", Amount: decimal.RequireFromString("-25"), Description: "GROCERY MART"}},
			"cc":  {{Date: "Apr 1, 2019", Amount: decimal.RequireFromString("-4.5"), Description: "COFFEE", Pending: true}},
		},
	}
}

func sequentialIndexes() func() AccountIndex {
	n := 0
	return func() AccountIndex {
		n++
		return AccountIndex(fmt.Sprintf("idx-%d", n))
	}
}

func TestRunSuccess(t *testing.T) {
	extractor := newFullExtractor()

	var states []State
	pipeline := NewPipeline(extractor, telemetrytest.NewRecorder(), PipelineOptions{
		NewIndex: sequentialIndexes(),
		OnTransition: func(from, to State) {
			states = append(states, to)
		},
	})

	result, err := pipeline.Run(context.Background(), Credentials{Username: "u", Password: "p"}, testOptions)
	require.NoError(t, err)

	require.Equal(t, []string{"login", "accounts", "info", "transactions:chk", "transactions:cc"}, extractor.calls)
	require.Equal(t, []State{
		StateAuthenticating,
		StateAuthenticated,
		StateDiscoveringAccounts,
		StateAccountsReady,
		StateExtractingInfo,
		StateExtractingTransactions,
		StateExtractingTransactions,
		StateDone,
	}, states)

	accounts := testAccounts()
	expected := map[AccountIndex]Account{
		"idx-1": accounts[0].Sanitize(),
		"idx-2": accounts[1].Sanitize(),
		"idx-3": accounts[2].Sanitize(),
	}
	if diff := cmp.Diff(expected, result.Accounts); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, []AccountIndex{"idx-1", "idx-2", "idx-3"}, result.Indexes())

	require.NotNil(t, result.Info)
	require.Equal(t, extractor.info, *result.Info)

	require.Len(t, result.Transactions, 2)
	require.Contains(t, result.Transactions, AccountIndex("idx-1"))
	require.NotContains(t, result.Transactions, AccountIndex("idx-2"))
	require.Contains(t, result.Transactions, AccountIndex("idx-3"))
	require.Equal(t, "GROCERY MART", result.Transactions["idx-1"][0].Description)
	require.True(t, result.Transactions["idx-3"][0].Pending)
}

func TestRunDefaultIndexesAreUnique(t *testing.T) {
	pipeline := NewPipeline(newFullExtractor(), telemetrytest.NewRecorder(), PipelineOptions{})

	result, err := pipeline.Run(context.Background(), Credentials{Username: "u", Password: "p"}, testOptions)
	require.NoError(t, err)
	require.Len(t, result.Accounts, 3)

	seen := map[AccountIndex]bool{}
	for _, idx := range result.Indexes() {
		require.NotEmpty(t, idx)
		require.False(t, seen[idx])
		seen[idx] = true
	}
}

func TestRunDuplicateIndex(t *testing.T) {
	pipeline := NewPipeline(newFullExtractor(), telemetrytest.NewRecorder(), PipelineOptions{
		NewIndex: func() AccountIndex { return "same" },
	})

	_, err := pipeline.Run(context.Background(), Credentials{Username: "u", Password: "p"}, testOptions)
	require.ErrorIs(t, err, ErrInstitutionRequestError)
}

func TestRunStepErrors(t *testing.T) {
	testCases := []struct {
		name          string
		setup         func(f *fullExtractor)
		expectedKind  ErrorKind
		expectedCalls []string
	}{
		{
			name: "login rejected",
			setup: func(f *fullExtractor) {
				f.loginErr = InvalidCredentials(errors.New("bad password"))
			},
			expectedKind:  KindInvalidCredentials,
			expectedCalls: []string{"login"},
		},
		{
			name: "accounts page broken",
			setup: func(f *fullExtractor) {
				f.accountsErr = InstitutionRequestError(errors.New("status 500"))
			},
			expectedKind:  KindInstitutionRequestError,
			expectedCalls: []string{"login", "accounts"},
		},
		{
			name: "profile unauthorized",
			setup: func(f *fullExtractor) {
				f.infoErr = InvalidCredentials(errors.New("status 401"))
			},
			expectedKind:  KindInvalidCredentials,
			expectedCalls: []string{"login", "accounts", "info"},
		},
		{
			name: "second account fails",
			setup: func(f *fullExtractor) {
				f.txnErrs = map[string]error{"cc": InstitutionRequestError(errors.New("bad csv"))}
			},
			expectedKind:  KindInstitutionRequestError,
			expectedCalls: []string{"login", "accounts", "info", "transactions:chk", "transactions:cc"},
		},
		{
			name: "untyped error",
			setup: func(f *fullExtractor) {
				f.infoErr = errors.New("something odd")
			},
			expectedKind:  KindInstitutionRequestError,
			expectedCalls: []string{"login", "accounts", "info"},
		},
		{
			name: "panic in transactions",
			setup: func(f *fullExtractor) {
				f.panicRef = "chk"
			},
			expectedKind:  KindInstitutionRequestError,
			expectedCalls: []string{"login", "accounts", "info", "transactions:chk"},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			extractor := newFullExtractor()
			test.setup(&extractor)

			var last State
			pipeline := NewPipeline(extractor, telemetrytest.NewRecorder(), PipelineOptions{
				OnTransition: func(from, to State) { last = to },
			})

			result, err := pipeline.Run(context.Background(), Credentials{Username: "u", Password: "p"}, testOptions)
			require.Error(t, err)

			var typed *Error
			require.ErrorAs(t, err, &typed)
			require.Equal(t, test.expectedKind, typed.Kind)
			require.Equal(t, test.expectedCalls, extractor.calls)
			require.Equal(t, StateFailed, last)

			require.Nil(t, result.Accounts)
			require.Nil(t, result.Info)
			require.Nil(t, result.Transactions)

			extracted := pipeline.Extract(context.Background(), Credentials{Username: "u", Password: "p"}, testOptions)
			require.Nil(t, extracted.Data)
			require.NotNil(t, extracted.Err)
			require.Equal(t, test.expectedKind, extracted.Err.Kind)
		})
	}
}

func TestRunReportsUnexpectedFaults(t *testing.T) {
	extractor := newFullExtractor()
	extractor.panicRef = "cc"
	recorder := telemetrytest.NewRecorder()

	pipeline := NewPipeline(extractor, recorder, PipelineOptions{})
	_, err := pipeline.Run(context.Background(), Credentials{Username: "u", Password: "p"}, testOptions)
	require.ErrorIs(t, err, ErrInstitutionRequestError)
	require.True(t, recorder.BrokenWith(report_pipeline_transactions))

	extractor = newFullExtractor()
	extractor.infoErr = errors.New("json: unexpected end of input")
	recorder = telemetrytest.NewRecorder()

	pipeline = NewPipeline(extractor, recorder, PipelineOptions{})
	_, err = pipeline.Run(context.Background(), Credentials{Username: "u", Password: "p"}, testOptions)
	require.ErrorIs(t, err, ErrInstitutionRequestError)
	require.True(t, recorder.BrokenWith(report_pipeline_info))
}

func TestRunCancelled(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		extractor := newFullExtractor()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		pipeline := NewPipeline(extractor, telemetrytest.NewRecorder(), PipelineOptions{})
		_, err := pipeline.Run(ctx, Credentials{Username: "u", Password: "p"}, testOptions)
		require.ErrorIs(t, err, ErrCancelled)
		require.Empty(t, extractor.calls)
	})

	t.Run("between steps", func(t *testing.T) {
		extractor := newFullExtractor()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		// the login step itself completes, the next step never starts
		extractor.onLogin = cancel

		pipeline := NewPipeline(extractor, telemetrytest.NewRecorder(), PipelineOptions{})
		result, err := pipeline.Run(ctx, Credentials{Username: "u", Password: "p"}, testOptions)
		require.ErrorIs(t, err, ErrCancelled)
		require.Equal(t, []string{"login"}, extractor.calls)
		require.Nil(t, result.Accounts)
	})
}

func TestRunWithoutOptionalCapabilities(t *testing.T) {
	extractor := &fakeExtractor{accounts: testAccounts()}

	pipeline := NewPipeline(extractor, telemetrytest.NewRecorder(), PipelineOptions{})
	require.Nil(t, pipeline.Capabilities().Info)
	require.Nil(t, pipeline.Capabilities().Transactions)

	result, err := pipeline.Run(context.Background(), Credentials{Username: "u", Password: "p"}, testOptions)
	require.NoError(t, err)
	require.Equal(t, []string{"login", "accounts"}, extractor.calls)
	require.Len(t, result.Accounts, 3)
	require.Nil(t, result.Info)
	require.Empty(t, result.Transactions)
}

func TestRunEmptyTransactionListIsKept(t *testing.T) {
	extractor := newFullExtractor()
	extractor.transactions = nil

	pipeline := NewPipeline(extractor, telemetrytest.NewRecorder(), PipelineOptions{NewIndex: sequentialIndexes()})
	result, err := pipeline.Run(context.Background(), Credentials{Username: "u", Password: "p"}, testOptions)
	require.NoError(t, err)

	txns, ok := result.Transactions["idx-1"]
	require.True(t, ok)
	require.NotNil(t, txns)
	require.Empty(t, txns)
}

func TestNewPipelineRejectsNilExtractor(t *testing.T) {
	var extractor *fakeExtractor
	require.Panics(t, func() {
		NewPipeline(extractor, telemetrytest.NewRecorder(), PipelineOptions{})
	})
	require.Panics(t, func() {
		NewPipeline(&fakeExtractor{}, nil, PipelineOptions{})
	})
}
