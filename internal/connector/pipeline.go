package connector

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"instconnect/internal/components/assert"
	"instconnect/internal/components/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var (
	tracer = otel.Tracer("instconnect/connector")
	meter  = otel.Meter("instconnect/connector")
)

const (
	report_pipeline_run          = "pipeline.run"
	report_pipeline_state        = "pipeline.state"
	report_pipeline_login        = "pipeline.login"
	report_pipeline_accounts     = "pipeline.accounts"
	report_pipeline_info         = "pipeline.info"
	report_pipeline_transactions = "pipeline.transactions"
)

type State int

const (
	StateInit State = iota
	StateAuthenticating
	StateAuthenticated
	StateDiscoveringAccounts
	StateAccountsReady
	StateExtractingInfo
	StateExtractingTransactions
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateDiscoveringAccounts:
		return "DISCOVERING_ACCOUNTS"
	case StateAccountsReady:
		return "ACCOUNTS_READY"
	case StateExtractingInfo:
		return "EXTRACTING_INFO"
	case StateExtractingTransactions:
		return "EXTRACTING_TRANSACTIONS"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type PipelineOptions struct {
	// NewIndex generates account indexes, it defaults to random UUIDs.
	NewIndex func() AccountIndex
	// OnTransition, if set, is called on every state change of a run.
	OnTransition func(from, to State)
}

// Pipeline runs an Extractor's steps in order: login, account discovery,
// profile info and transactions for every depository and credit account.
// The first failing step ends the run.
type Pipeline struct {
	extractor Extractor
	caps      Capabilities
	tel       telemetry.API
	opts      PipelineOptions

	accountsCounter     metric.Int64Counter
	transactionsCounter metric.Int64Counter
}

func NewPipeline(extractor Extractor, tel telemetry.API, opts PipelineOptions) Pipeline {
	assert.NotNil(extractor)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("connector", tel)

	if opts.NewIndex == nil {
		opts.NewIndex = func() AccountIndex {
			return AccountIndex(uuid.NewString())
		}
	}

	accountsCounter, err := meter.Int64Counter(
		"connector.accounts.discovered",
		metric.WithDescription("Accounts discovered per run."),
	)
	if err != nil {
		tel.ReportWarning(report_pipeline_run, fmt.Errorf("create accounts counter: %w", err))
		accountsCounter = noop.Int64Counter{}
	}
	transactionsCounter, err := meter.Int64Counter(
		"connector.transactions.extracted",
		metric.WithDescription("Transactions extracted per account."),
	)
	if err != nil {
		tel.ReportWarning(report_pipeline_run, fmt.Errorf("create transactions counter: %w", err))
		transactionsCounter = noop.Int64Counter{}
	}

	return Pipeline{
		extractor:           extractor,
		caps:                DetectCapabilities(extractor),
		tel:                 tel,
		opts:                opts,
		accountsCounter:     accountsCounter,
		transactionsCounter: transactionsCounter,
	}
}

// Capabilities returns the optional operations detected on the extractor.
func (p Pipeline) Capabilities() Capabilities {
	return p.caps
}

// Extract is Run folded into a Result.
func (p Pipeline) Extract(ctx context.Context, creds Credentials, options TransactionOptions) Result {
	return NewResult(p.Run(ctx, creds, options))
}

// Run executes a full extraction. The returned error is always a *Error and
// the FullResult is empty whenever the error is non-nil.
//
// ctx is checked between steps, a cancelled ctx ends the run with
// KindCancelled. Requests that are already in flight are not interrupted by
// the pipeline.
func (p Pipeline) Run(ctx context.Context, creds Credentials, options TransactionOptions) (result FullResult, err error) {
	ctx, span := tracer.Start(ctx, "pipeline:Run")
	defer span.End()

	r := &run{pipeline: p, state: StateInit}

	defer func() {
		if recovered := recover(); recovered != nil {
			fault := fmt.Errorf("unexpected fault: %v", recovered)
			p.tel.ReportBroken(report_pipeline_run, fault, string(debug.Stack()))
			result, err = r.fail(InstitutionRequestError(fault))
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	extracted, stepErr := r.execute(ctx, creds, options)
	if stepErr != nil {
		return r.fail(stepErr)
	}
	r.transition(StateDone)
	return extracted, nil
}

type run struct {
	pipeline Pipeline
	state    State
}

func (r *run) transition(to State) {
	from := r.state
	r.state = to
	r.pipeline.tel.ReportDebug(report_pipeline_state, from.String(), to.String())
	if r.pipeline.opts.OnTransition != nil {
		r.pipeline.opts.OnTransition(from, to)
	}
}

func (r *run) fail(err *Error) (FullResult, error) {
	r.pipeline.tel.ReportWarning(report_pipeline_run, "run failed", r.state.String(), err)
	r.transition(StateFailed)
	return FullResult{}, err
}

func checkCancelled(ctx context.Context) *Error {
	if err := ctx.Err(); err != nil {
		return Cancelled(err)
	}
	return nil
}

func (r *run) execute(ctx context.Context, creds Credentials, options TransactionOptions) (FullResult, *Error) {
	p := r.pipeline

	if err := checkCancelled(ctx); err != nil {
		return FullResult{}, err
	}
	r.transition(StateAuthenticating)
	session, err := runStep(ctx, p, report_pipeline_login, func(ctx context.Context) (Session, error) {
		return p.extractor.Login(ctx, creds)
	})
	if err != nil {
		return FullResult{}, err
	}
	if session == nil {
		return FullResult{}, InstitutionRequestError(fmt.Errorf("login returned no session"))
	}
	r.transition(StateAuthenticated)

	if err := checkCancelled(ctx); err != nil {
		return FullResult{}, err
	}
	r.transition(StateDiscoveringAccounts)
	discovered, err := runStep(ctx, p, report_pipeline_accounts, func(ctx context.Context) ([]DiscoveredAccount, error) {
		return p.extractor.ExtractAccounts(ctx, session)
	})
	if err != nil {
		return FullResult{}, err
	}
	indexes, err := r.assignIndexes(discovered)
	if err != nil {
		return FullResult{}, err
	}
	for _, account := range discovered {
		p.accountsCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("account.type", string(account.Type)),
		))
	}
	p.tel.ReportCount(report_pipeline_accounts, int64(len(discovered)))
	r.transition(StateAccountsReady)

	var info *Info
	if p.caps.Info != nil {
		if err := checkCancelled(ctx); err != nil {
			return FullResult{}, err
		}
		r.transition(StateExtractingInfo)
		extracted, err := runStep(ctx, p, report_pipeline_info, func(ctx context.Context) (Info, error) {
			return p.caps.Info.ExtractInfo(ctx, session)
		})
		if err != nil {
			return FullResult{}, err
		}
		info = &extracted
	}

	transactions := map[AccountIndex][]Transaction{}
	if p.caps.Transactions != nil {
		transactions, err = r.extractTransactions(ctx, session, indexes, discovered, options)
		if err != nil {
			return FullResult{}, err
		}
	}

	accounts := make(map[AccountIndex]Account, len(discovered))
	for i, idx := range indexes {
		accounts[idx] = discovered[i].Sanitize()
	}

	return FullResult{
		Accounts:     accounts,
		Info:         info,
		Transactions: transactions,
		order:        indexes,
	}, nil
}

func (r *run) assignIndexes(discovered []DiscoveredAccount) ([]AccountIndex, *Error) {
	indexes := make([]AccountIndex, len(discovered))
	seen := make(map[AccountIndex]struct{}, len(discovered))
	for i := range discovered {
		idx := r.pipeline.opts.NewIndex()
		if _, duplicate := seen[idx]; duplicate {
			return nil, InstitutionRequestError(fmt.Errorf("duplicate account index %q", idx))
		}
		seen[idx] = struct{}{}
		indexes[i] = idx
	}
	return indexes, nil
}

// extractTransactions visits eligible accounts one at a time, the collected
// map is only handed back once every account succeeded.
func (r *run) extractTransactions(
	ctx context.Context,
	session Session,
	indexes []AccountIndex,
	discovered []DiscoveredAccount,
	options TransactionOptions,
) (map[AccountIndex][]Transaction, *Error) {
	p := r.pipeline

	collected := make(map[AccountIndex][]Transaction)
	for i, idx := range indexes {
		account := discovered[i]
		if !account.Type.HasTransactions() {
			continue
		}
		if err := checkCancelled(ctx); err != nil {
			return nil, err
		}
		r.transition(StateExtractingTransactions)

		txns, err := runStep(ctx, p, report_pipeline_transactions, func(ctx context.Context) ([]Transaction, error) {
			return p.caps.Transactions.ExtractTransactions(ctx, session, account, options)
		})
		if err != nil {
			return nil, err
		}
		if txns == nil {
			txns = []Transaction{}
		}
		collected[idx] = txns

		p.transactionsCounter.Add(ctx, int64(len(txns)), metric.WithAttributes(
			attribute.String("account.type", string(account.Type)),
		))
	}
	return collected, nil
}

// runStep executes one extraction step. Errors that are not already an
// *Error and panics are reported and turned into InstitutionRequestError.
func runStep[T any](
	ctx context.Context,
	p Pipeline,
	id string,
	step func(ctx context.Context) (T, error),
) (out T, stepErr *Error) {
	ctx, span := tracer.Start(ctx, id)
	defer span.End()

	defer func() {
		if recovered := recover(); recovered != nil {
			fault := fmt.Errorf("unexpected fault: %v", recovered)
			p.tel.ReportBroken(id, fault, string(debug.Stack()))
			var zero T
			out = zero
			stepErr = InstitutionRequestError(fault)
		}
		if stepErr != nil {
			span.RecordError(stepErr)
			span.SetStatus(codes.Error, stepErr.Error())
		}
	}()

	result, err := step(ctx)
	if err != nil {
		var typed *Error
		if !errors.As(err, &typed) {
			p.tel.ReportBroken(id, fmt.Errorf("untyped step error: %w", err))
		}
		var zero T
		return zero, AsError(err)
	}
	return result, nil
}
