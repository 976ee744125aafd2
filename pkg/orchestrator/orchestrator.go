// Package orchestrator sequences the sync directions of one full pass and
// aggregates their reports.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/config"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/engine"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/store"
)

// ErrCycleInProgress is returned when a cycle is triggered while another one
// is still running. The trigger is rejected, not queued.
var ErrCycleInProgress = errors.New("orchestrator: cycle already running")

// CycleLock is the single-slot guard that serializes cycles. Orchestrator
// instances sharing a store must share one lock.
type CycleLock struct {
	mu sync.Mutex
}

// NewCycleLock creates a CycleLock.
func NewCycleLock() *CycleLock {
	return &CycleLock{}
}

// TryAcquire takes the slot if it is free.
func (l *CycleLock) TryAcquire() bool {
	return l.mu.TryLock()
}

// Release frees the slot.
func (l *CycleLock) Release() {
	l.mu.Unlock()
}

// LinkSource provides the configured account links.
type LinkSource interface {
	AccountLinks() ([]store.AccountLink, error)
	CompanyAccountLinks() ([]store.CompanyAccountLink, error)
}

// CycleReport aggregates one full pass.
type CycleReport struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Created    int               `json:"created"`
	Updated    int               `json:"updated"`
	Deleted    int               `json:"deleted"`
	Skipped    int               `json:"skipped"`
	Errors     int               `json:"errors"`
	Processed  int               `json:"processed"`
	Decisions  []engine.Decision `json:"transactions"`
	Directions []*engine.Report  `json:"directions"`
}

// DirectionPlan is the dry-run preview of one sync direction.
type DirectionPlan struct {
	Direction engine.Direction
	BudgetID  string
	Changes   []engine.PlannedChange
}

// Orchestrator runs one full pass: every company-to-company link direction
// first, then personal-to-company per configured organization, each
// direction both ways.
type Orchestrator struct {
	lock      *CycleLock
	engine    *engine.Engine
	links     LinkSource
	personal  config.Budget
	companies []config.Company
	logger    *slog.Logger
}

// New creates an Orchestrator.
func New(lock *CycleLock, eng *engine.Engine, links LinkSource, topo *config.Topology, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		lock:      lock,
		engine:    eng,
		links:     links,
		personal:  topo.Personal,
		companies: topo.Companies,
		logger:    logger,
	}
}

// RunCycle executes one full pass. It never propagates sub-run failures:
// each is logged, counted as one error, and the remaining sub-runs still
// execute. A second trigger while a cycle is in flight is rejected with
// ErrCycleInProgress.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !o.lock.TryAcquire() {
		return nil, ErrCycleInProgress
	}
	defer o.lock.Release()

	report := &CycleReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}

	specs, cfgErrs, err := o.buildSpecs(report.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync directions: %w", err)
	}
	for _, cerr := range cfgErrs {
		o.logger.Error("configuration error", "run_id", report.RunID, "error", cerr)
		report.Errors++
	}

	o.logger.Info("cycle started", "run_id", report.RunID, "directions", len(specs))

	for _, spec := range specs {
		r, err := o.engine.Run(ctx, spec)
		if err != nil {
			o.logger.Error("sub-run failed",
				"run_id", report.RunID,
				"budget_id", spec.SourceBudgetID,
				"direction", spec.Direction,
				"error", err,
			)
			report.Errors++
		}
		if r != nil {
			report.Created += r.Created
			report.Updated += r.Updated
			report.Deleted += r.Deleted
			report.Skipped += r.Skipped
			report.Errors += r.Errors
			report.Processed += r.Processed
			report.Decisions = append(report.Decisions, r.Decisions...)
			report.Directions = append(report.Directions, r)
		}
	}

	report.FinishedAt = time.Now().UTC()
	o.logger.Info("cycle finished",
		"run_id", report.RunID,
		"created", report.Created,
		"updated", report.Updated,
		"deleted", report.Deleted,
		"skipped", report.Skipped,
		"errors", report.Errors,
		"processed", report.Processed,
	)

	return report, nil
}

// PlanCycle previews one full pass without mutating anything.
func (o *Orchestrator) PlanCycle(ctx context.Context) ([]DirectionPlan, error) {
	if !o.lock.TryAcquire() {
		return nil, ErrCycleInProgress
	}
	defer o.lock.Release()

	specs, cfgErrs, err := o.buildSpecs("dry-run")
	if err != nil {
		return nil, fmt.Errorf("failed to build sync directions: %w", err)
	}
	for _, cerr := range cfgErrs {
		o.logger.Error("configuration error", "error", cerr)
	}

	var plans []DirectionPlan
	for _, spec := range specs {
		changes, err := o.engine.Plan(ctx, spec)
		if err != nil {
			return nil, err
		}
		plans = append(plans, DirectionPlan{
			Direction: spec.Direction,
			BudgetID:  spec.SourceBudgetID,
			Changes:   changes,
		})
	}

	return plans, nil
}

// buildSpecs lays out the sub-runs of one pass. Company-to-company
// directions come first: their dedup can retire mirrors whose absence the
// personal-to-company pass must observe within the same watermark
// generation. The personal budget's delta is consumed by exactly one
// sub-run whose pairs route to every linked organization; a per-company
// split would let the first sub-run advance the shared watermark past
// transactions belonging to later companies.
func (o *Orchestrator) buildSpecs(runID string) ([]engine.RunSpec, []error, error) {
	companyLinks, err := o.links.CompanyAccountLinks()
	if err != nil {
		return nil, nil, err
	}
	accountLinks, err := o.links.AccountLinks()
	if err != nil {
		return nil, nil, err
	}

	currencies := make(map[string]string, len(o.companies)+1)
	currencies[o.personal.BudgetID] = o.personal.Currency
	for _, c := range o.companies {
		currencies[c.BudgetID] = c.Currency
	}

	var specs []engine.RunSpec
	var cfgErrs []error

	// Company-to-company link set, grouped by budget pair, both directions.
	type budgetPair struct{ a, b string }
	grouped := make(map[budgetPair][]store.CompanyAccountLink)
	var order []budgetPair
	for _, link := range companyLinks {
		key := budgetPair{link.BudgetIDA, link.BudgetIDB}
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], link)
	}

	for _, key := range order {
		links := grouped[key]
		currencyA, okA := currencies[key.a]
		currencyB, okB := currencies[key.b]
		if !okA || !okB {
			cfgErrs = append(cfgErrs, &engine.ConfigError{Reason: fmt.Sprintf(
				"company link %s<->%s references a budget missing from the topology", key.a, key.b)})
			continue
		}

		forward := make(map[string]engine.AccountPair, len(links))
		reverse := make(map[string]engine.AccountPair, len(links))
		for _, link := range links {
			forward[link.AccountIDA] = engine.AccountPair{
				SourceAccountID: link.AccountIDA,
				TargetBudgetID:  key.b,
				TargetAccountID: link.AccountIDB,
			}
			reverse[link.AccountIDB] = engine.AccountPair{
				SourceAccountID: link.AccountIDB,
				TargetBudgetID:  key.a,
				TargetAccountID: link.AccountIDA,
			}
		}

		specs = append(specs,
			engine.RunSpec{
				RunID:          runID,
				Direction:      engine.DirCompanyToCompany,
				SourceBudgetID: key.a,
				TargetBudgetID: key.b,
				SourceCurrency: currencyA,
				SourceRole:     engine.RolePersonal, // A side takes the personal role
				Currencies:     currencies,
				Pairs:          forward,
			},
			engine.RunSpec{
				RunID:          runID,
				Direction:      engine.DirCompanyToCompany,
				SourceBudgetID: key.b,
				TargetBudgetID: key.a,
				SourceCurrency: currencyB,
				SourceRole:     engine.RoleCompany,
				Currencies:     currencies,
				Pairs:          reverse,
			},
		)
	}

	// Personal-to-company set: one merged forward run, one reverse run per
	// configured organization.
	forward := make(map[string]engine.AccountPair, len(accountLinks))
	linksByCompany := make(map[string][]store.AccountLink)
	for _, link := range accountLinks {
		if _, ok := currencies[link.CompanyBudgetID]; !ok {
			cfgErrs = append(cfgErrs, &engine.ConfigError{Reason: fmt.Sprintf(
				"account link for %s references a budget missing from the topology", link.CompanyBudgetID)})
			continue
		}
		if existing, dup := forward[link.PersonalAccountID]; dup {
			cfgErrs = append(cfgErrs, &engine.ConfigError{Reason: fmt.Sprintf(
				"personal account %s is linked to both %s and %s",
				link.PersonalAccountID, existing.TargetBudgetID, link.CompanyBudgetID)})
			continue
		}

		forward[link.PersonalAccountID] = engine.AccountPair{
			SourceAccountID: link.PersonalAccountID,
			TargetBudgetID:  link.CompanyBudgetID,
			TargetAccountID: link.CompanyAccountID,
		}
		linksByCompany[link.CompanyBudgetID] = append(linksByCompany[link.CompanyBudgetID], link)
	}

	if len(forward) > 0 {
		specs = append(specs, engine.RunSpec{
			RunID:          runID,
			Direction:      engine.DirPersonalToCompany,
			SourceBudgetID: o.personal.BudgetID,
			SourceCurrency: o.personal.Currency,
			SourceRole:     engine.RolePersonal,
			Currencies:     currencies,
			Pairs:          forward,
		})
	}

	for _, company := range o.companies {
		links := linksByCompany[company.BudgetID]
		if len(links) == 0 {
			continue
		}

		reverse := make(map[string]engine.AccountPair, len(links))
		for _, link := range links {
			reverse[link.CompanyAccountID] = engine.AccountPair{
				SourceAccountID: link.CompanyAccountID,
				TargetBudgetID:  o.personal.BudgetID,
				TargetAccountID: link.PersonalAccountID,
			}
		}

		specs = append(specs, engine.RunSpec{
			RunID:          runID,
			Direction:      engine.DirCompanyToPersonal,
			SourceBudgetID: company.BudgetID,
			TargetBudgetID: o.personal.BudgetID,
			SourceCurrency: company.Currency,
			SourceRole:     engine.RoleCompany,
			Currencies:     currencies,
			Pairs:          reverse,
		})
	}

	return specs, cfgErrs, nil
}
