// Package engine implements the reconciliation pass that converges a pair of
// budgets to a state where every source transaction has exactly one
// counterpart on the target side, either a generated mirror or a genuine
// linked transfer.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/store"
)

// LedgerAPI is the budgeting service surface the engine consumes.
type LedgerAPI interface {
	ListTransactions(ctx context.Context, budgetID, sinceWatermark string) ([]ledger.Transaction, string, error)
	ListAccountTransactions(ctx context.Context, budgetID, accountID, sinceDate string) ([]ledger.Transaction, error)
	GetTransaction(ctx context.Context, budgetID, txID string) (*ledger.Transaction, error)
	CreateTransaction(ctx context.Context, budgetID string, tx ledger.NewTransaction) (*ledger.Transaction, error)
	UpdateTransaction(ctx context.Context, budgetID, txID string, upd ledger.TransactionUpdate) (*ledger.Transaction, error)
	DeleteTransaction(ctx context.Context, budgetID, txID string) error
}

// RateSource returns a conversion multiplier for a month and currency pair.
type RateSource interface {
	Rate(month, from, to string) (decimal.Decimal, error)
}

// Store is the repository surface the engine consumes. Writes must be
// immediately visible to the next read in the same process.
type Store interface {
	GetWatermark(budgetID string) (*store.SyncWatermark, error)
	SetWatermark(w *store.SyncWatermark) error
	CreateMapping(m *store.TransactionMapping) error
	UpdateMapping(m *store.TransactionMapping) error
	GetMappingByTx(txID string) (*store.TransactionMapping, error)
	CreateLinkedTransaction(lt *store.LinkedTransaction) error
	IsTransactionLinked(txID string) (bool, error)
	AppendLogEntry(e *store.SyncLogEntry) error
}

// Role names the side of a mapping record a budget occupies. For
// company-to-company links the A-side budget takes the personal role.
type Role string

const (
	RolePersonal Role = "personal"
	RoleCompany  Role = "company"
)

// AccountPair links a source account to its counterpart account, naming the
// budget that counterpart lives in. Pairs of one run may span target budgets.
type AccountPair struct {
	SourceAccountID string
	TargetBudgetID  string
	TargetAccountID string
}

// RunSpec describes one sync direction: which budget's delta to consume and
// where its mirrors live. The personal budget's delta is consumed by a
// single run whose pairs route to every linked organization; TargetBudgetID
// is set only for runs whose pairs share one counterpart budget.
type RunSpec struct {
	RunID          string
	Direction      Direction
	SourceBudgetID string
	TargetBudgetID string
	SourceCurrency string
	SourceRole     Role
	Currencies     map[string]string      // budget id -> currency
	Pairs          map[string]AccountPair // keyed by source account id
}

// Decision actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionSkip   = "skip"
	ActionError  = "error"
)

// Details carries the audit payload of a decision.
type Details struct {
	Date            string `json:"date,omitempty"`
	Amount          int64  `json:"amount,omitempty"`
	AmountDisplay   string `json:"amount_display,omitempty"`
	Payee           string `json:"payee,omitempty"`
	Account         string `json:"account,omitempty"`
	Budget          string `json:"budget,omitempty"`
	ConvertedAmount int64  `json:"converted_amount,omitempty"`
	RateUsed        string `json:"rate_used,omitempty"`
	Note            string `json:"note,omitempty"`
}

// Decision is one engine verdict about one observed transaction.
type Decision struct {
	Action     string   `json:"action"`
	BudgetID   string   `json:"budget_id"`
	TxID       string   `json:"tx_id"`
	MirrorTxID string   `json:"mirror_tx_id,omitempty"`
	Details    *Details `json:"details,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Report summarizes one sync direction.
type Report struct {
	RunID     string     `json:"run_id"`
	BudgetID  string     `json:"budget_id"`
	Direction Direction  `json:"direction"`
	Created   int        `json:"created"`
	Updated   int        `json:"updated"`
	Deleted   int        `json:"deleted"`
	Skipped   int        `json:"skipped"`
	Errors    int        `json:"errors"`
	Processed int        `json:"processed"`
	Decisions []Decision `json:"transactions"`
}

// Options configures an Engine.
type Options struct {
	MatchWindowDays     int     // dedup date tolerance, default 2
	MatchAmountSlackPct float64 // dedup amount tolerance, default 0.02
	Logger              *slog.Logger
	Now                 func() time.Time
}

// Engine runs one reconciliation pass per invocation. It is not safe for
// concurrent use; the orchestrator serializes invocations.
type Engine struct {
	api    LedgerAPI
	rates  RateSource
	store  Store
	logger *slog.Logger

	matchWindowDays int
	matchSlackPct   float64
	now             func() time.Time
}

// New creates an Engine.
func New(api LedgerAPI, rates RateSource, st Store, opts Options) *Engine {
	if opts.MatchWindowDays <= 0 {
		opts.MatchWindowDays = 2
	}
	if opts.MatchAmountSlackPct <= 0 {
		opts.MatchAmountSlackPct = 0.02
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		api:             api,
		rates:           rates,
		store:           st,
		logger:          opts.Logger,
		matchWindowDays: opts.MatchWindowDays,
		matchSlackPct:   opts.MatchAmountSlackPct,
		now:             opts.Now,
	}
}

// Run executes one sync direction: fetch the source budget's delta since the
// stored watermark, classify and handle each transaction, then advance the
// watermark. Transaction-level failures are logged and counted; only
// delta-fetch and watermark failures abort the sub-run.
func (e *Engine) Run(ctx context.Context, spec RunSpec) (*Report, error) {
	report := &Report{
		RunID:     spec.RunID,
		BudgetID:  spec.SourceBudgetID,
		Direction: spec.Direction,
	}

	wm, err := e.store.GetWatermark(spec.SourceBudgetID)
	if err != nil {
		return report, &StoreError{Op: "get watermark", Err: err}
	}

	since := ""
	var prevTotal int64
	if wm != nil {
		since = wm.LastWatermark
		prevTotal = wm.TotalSynced
	}

	txns, newWatermark, err := e.api.ListTransactions(ctx, spec.SourceBudgetID, since)
	if err != nil {
		e.markFailed(spec.SourceBudgetID, since, prevTotal, err)
		return report, fmt.Errorf("failed to fetch delta for %s: %w", spec.SourceBudgetID, err)
	}

	e.logger.Info("processing delta",
		"run_id", spec.RunID,
		"budget_id", spec.SourceBudgetID,
		"direction", spec.Direction,
		"count", len(txns),
	)

	for _, tx := range txns {
		decision, handled := e.process(ctx, spec, tx)
		report.Processed++
		if !handled {
			continue // account not configured as a link
		}
		e.record(spec, report, decision)
	}

	if err := e.store.SetWatermark(&store.SyncWatermark{
		BudgetID:      spec.SourceBudgetID,
		LastWatermark: newWatermark,
		LastStatus:    "success",
		TotalSynced:   prevTotal + int64(report.Processed),
	}); err != nil {
		return report, &StoreError{Op: "set watermark", Err: err}
	}

	return report, nil
}

// PlannedChange is one entry of a dry-run preview.
type PlannedChange struct {
	TxID      string
	AccountID string
	Date      string
	Amount    int64
	Class     string
}

// Plan previews one sync direction without mutating anything: it fetches the
// delta and reports how each transaction would be classified.
func (e *Engine) Plan(ctx context.Context, spec RunSpec) ([]PlannedChange, error) {
	wm, err := e.store.GetWatermark(spec.SourceBudgetID)
	if err != nil {
		return nil, &StoreError{Op: "get watermark", Err: err}
	}

	since := ""
	if wm != nil {
		since = wm.LastWatermark
	}

	txns, _, err := e.api.ListTransactions(ctx, spec.SourceBudgetID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch delta for %s: %w", spec.SourceBudgetID, err)
	}

	var planned []PlannedChange
	for _, tx := range txns {
		cls, _, err := e.classify(spec, tx)
		label := cls.String()
		if err != nil {
			label = "error"
		}
		planned = append(planned, PlannedChange{
			TxID:      tx.ID,
			AccountID: tx.AccountID,
			Date:      tx.Date,
			Amount:    tx.Amount,
			Class:     label,
		})
	}

	return planned, nil
}

// process classifies one transaction and dispatches it to its handler. The
// returned flag is false for transactions in unconfigured accounts, which
// produce no decision at all.
func (e *Engine) process(ctx context.Context, spec RunSpec, tx ledger.Transaction) (Decision, bool) {
	cls, mapping, err := e.classify(spec, tx)
	if err != nil {
		return e.errorDecision(spec, tx, err), true
	}

	switch cls {
	case classDeleted:
		return e.handleDeleted(ctx, spec, tx)
	case classMirrorDrift:
		return e.handleMirrorDrift(ctx, spec, tx, mapping), true
	case classSourceDrift:
		return e.handleSourceDrift(ctx, spec, tx, mapping), true
	case classNewCandidate:
		return e.handleNewCandidate(ctx, spec, tx), true
	default:
		return Decision{}, false
	}
}

// class is the closed five-way classification of an observed transaction.
type class int

const (
	classIgnored class = iota
	classDeleted
	classMirrorDrift
	classSourceDrift
	classNewCandidate
)

func (c class) String() string {
	switch c {
	case classDeleted:
		return "deleted"
	case classMirrorDrift:
		return "mirror-drift"
	case classSourceDrift:
		return "source-drift"
	case classNewCandidate:
		return "new"
	default:
		return "ignored"
	}
}

// classify orders the checks exactly as the handlers expect: tombstones
// first, then mirrors (by import tag), then already-mapped sources, then
// configured-link candidates; everything else is ignored.
func (e *Engine) classify(spec RunSpec, tx ledger.Transaction) (class, *store.TransactionMapping, error) {
	if tx.Deleted {
		return classDeleted, nil, nil
	}

	mapping, err := e.store.GetMappingByTx(tx.ID)
	if err != nil {
		return classIgnored, nil, &StoreError{Op: "get mapping", Err: err}
	}

	if IsMirrorTag(tx.ImportID) {
		return classMirrorDrift, mapping, nil
	}

	if mapping != nil && spec.txIsSource(mapping, tx.ID) {
		return classSourceDrift, mapping, nil
	}

	if _, ok := spec.Pairs[tx.AccountID]; ok {
		return classNewCandidate, nil, nil
	}

	return classIgnored, nil, nil
}

// record appends a decision to the report, bumps its counters, persists the
// audit entry and emits one log line.
func (e *Engine) record(spec RunSpec, report *Report, d Decision) {
	report.Decisions = append(report.Decisions, d)

	switch d.Action {
	case ActionCreate:
		report.Created++
	case ActionUpdate:
		report.Updated++
	case ActionDelete:
		report.Deleted++
	case ActionSkip:
		report.Skipped++
	case ActionError:
		report.Errors++
	}

	details := ""
	if d.Details != nil {
		if encoded, err := json.Marshal(d.Details); err == nil {
			details = string(encoded)
		}
	}

	if err := e.store.AppendLogEntry(&store.SyncLogEntry{
		RunID:        spec.RunID,
		BudgetID:     d.BudgetID,
		Action:       d.Action,
		TxID:         d.TxID,
		MirrorTxID:   d.MirrorTxID,
		Details:      details,
		ErrorMessage: d.Error,
	}); err != nil {
		e.logger.Error("failed to append decision log entry",
			"run_id", spec.RunID, "tx_id", d.TxID, "error", err)
	}

	if d.Action == ActionError {
		e.logger.Error("decision",
			"run_id", spec.RunID, "action", d.Action, "tx_id", d.TxID, "error", d.Error)
		return
	}
	e.logger.Info("decision",
		"run_id", spec.RunID, "action", d.Action, "tx_id", d.TxID, "mirror_tx_id", d.MirrorTxID)
}

func (e *Engine) errorDecision(spec RunSpec, tx ledger.Transaction, err error) Decision {
	return Decision{
		Action:   ActionError,
		BudgetID: spec.SourceBudgetID,
		TxID:     tx.ID,
		Error:    err.Error(),
	}
}

// markFailed records a failed sub-run on the watermark row without advancing
// the cursor.
func (e *Engine) markFailed(budgetID, lastWatermark string, total int64, cause error) {
	if err := e.store.SetWatermark(&store.SyncWatermark{
		BudgetID:      budgetID,
		LastWatermark: lastWatermark,
		LastStatus:    "error",
		LastError:     cause.Error(),
		TotalSynced:   total,
	}); err != nil {
		e.logger.Error("failed to record sub-run failure", "budget_id", budgetID, "error", err)
	}
}

// Mapping side helpers. "Local" is the run's source budget, "remote" its
// counterpart.

func (spec RunSpec) localRole() Role { return spec.SourceRole }

func (spec RunSpec) remoteRole() Role {
	if spec.SourceRole == RolePersonal {
		return RoleCompany
	}
	return RolePersonal
}

func (spec RunSpec) txIsSource(m *store.TransactionMapping, txID string) bool {
	side := mappingSide(m, txID)
	return side != "" && side == Role(m.SourceBudget)
}

// remoteBudget returns the budget holding the counterpart of a mapped
// transaction. When the remote side takes the company role the mapping
// names that budget; otherwise the run has a single target budget.
func (spec RunSpec) remoteBudget(m *store.TransactionMapping) string {
	if spec.remoteRole() == RoleCompany {
		return m.CompanyBudgetID
	}
	return spec.TargetBudgetID
}

// companyBudget returns the budget that takes the company role in a mapping
// created for this pair.
func (spec RunSpec) companyBudget(pair AccountPair) string {
	if spec.SourceRole == RolePersonal {
		return pair.TargetBudgetID
	}
	return spec.SourceBudgetID
}

func (spec RunSpec) currency(budgetID string) (string, error) {
	if c, ok := spec.Currencies[budgetID]; ok {
		return c, nil
	}
	return "", &ConfigError{Reason: fmt.Sprintf("no currency configured for budget %s", budgetID)}
}

func mappingSide(m *store.TransactionMapping, txID string) Role {
	switch txID {
	case m.PersonalTxID:
		return RolePersonal
	case m.CompanyTxID:
		return RoleCompany
	default:
		return ""
	}
}

func sideTxID(m *store.TransactionMapping, side Role) string {
	if side == RolePersonal {
		return m.PersonalTxID
	}
	return m.CompanyTxID
}

func sideAmount(m *store.TransactionMapping, side Role) int64 {
	if side == RolePersonal {
		return m.PersonalAmount
	}
	return m.CompanyAmount
}

func setSide(m *store.TransactionMapping, side Role, txID string, amount int64) {
	if side == RolePersonal {
		m.PersonalTxID = txID
		m.PersonalAmount = amount
		return
	}
	m.CompanyTxID = txID
	m.CompanyAmount = amount
}

func otherRole(side Role) Role {
	if side == RolePersonal {
		return RoleCompany
	}
	return RolePersonal
}
