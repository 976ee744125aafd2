package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Rhymond/go-money"

	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/store"
)

// handleNewCandidate runs the dedup check for a source transaction in a
// linked account and, absent a genuine counterpart, creates its mirror.
func (e *Engine) handleNewCandidate(ctx context.Context, spec RunSpec, tx ledger.Transaction) Decision {
	pair := spec.Pairs[tx.AccountID]

	linked, err := e.store.IsTransactionLinked(tx.ID)
	if err != nil {
		return e.errorDecision(spec, tx, &StoreError{Op: "check linked", Err: err})
	}
	if linked {
		return Decision{
			Action:   ActionSkip,
			BudgetID: spec.SourceBudgetID,
			TxID:     tx.ID,
			Details:  e.details(spec, tx, 0, "", "already part of a linked transfer"),
		}
	}

	targetCurrency, err := spec.currency(pair.TargetBudgetID)
	if err != nil {
		return e.errorDecision(spec, tx, err)
	}

	rate, err := e.rates.Rate(MonthKey(tx.Date), spec.SourceCurrency, targetCurrency)
	if err != nil {
		return e.errorDecision(spec, tx, &RateError{
			Month: MonthKey(tx.Date), From: spec.SourceCurrency, To: targetCurrency, Err: err,
		})
	}
	expected := -ConvertMilliunits(tx.Amount, rate)

	match, decision := e.findTransferMatch(ctx, spec, tx, expected)
	if decision != nil {
		return *decision
	}
	if match != nil {
		return e.linkGenuineTransfer(ctx, spec, tx, match)
	}

	tag := ImportTag(spec.Direction, tx.ID)
	created, err := e.api.CreateTransaction(ctx, pair.TargetBudgetID, ledger.NewTransaction{
		AccountID: pair.TargetAccountID,
		Date:      tx.Date,
		Amount:    expected,
		PayeeName: tx.PayeeName,
		Memo:      tx.Memo,
		ImportID:  tag,
		Cleared:   "cleared",
		Approved:  true,
	})

	note := "mirror created"
	var mirrorID string
	switch {
	case errors.Is(err, ledger.ErrDuplicateImport):
		// The tag already exists on the target, so the desired state exists.
		// Recover the mirror id to repair the mapping lost in a crash window.
		existing, lookupErr := e.findByImportID(ctx, pair.TargetBudgetID, pair.TargetAccountID, tag, tx.Date)
		if lookupErr != nil || existing == nil {
			return Decision{
				Action:   ActionSkip,
				BudgetID: spec.SourceBudgetID,
				TxID:     tx.ID,
				Details:  e.details(spec, tx, expected, rate.String(), "mirror already exists"),
			}
		}
		mirrorID = existing.ID
		note = "mirror already existed, mapping repaired"
	case err != nil:
		return e.errorDecision(spec, tx, &LedgerWriteError{Op: "create", TxID: tx.ID, Err: err})
	default:
		mirrorID = created.ID
	}

	m := &store.TransactionMapping{
		CompanyBudgetID: spec.companyBudget(pair),
		ExchangeRate:    rate.String(),
		TransactionDate: tx.Date,
		SourceBudget:    string(spec.SourceRole),
		SyncStatus:      store.StatusActive,
	}
	setSide(m, spec.localRole(), tx.ID, tx.Amount)
	setSide(m, spec.remoteRole(), mirrorID, expected)

	if err := e.store.CreateMapping(m); err != nil {
		// The mirror exists; the duplicate-tag path repairs the mapping on
		// the next pass.
		return e.errorDecision(spec, tx, &StoreError{Op: "create mapping", Err: err})
	}

	return Decision{
		Action:     ActionCreate,
		BudgetID:   spec.SourceBudgetID,
		TxID:       tx.ID,
		MirrorTxID: mirrorID,
		Details:    e.details(spec, tx, expected, rate.String(), note),
	}
}

// findTransferMatch searches the counterpart account for an unlinked,
// non-mirror transaction within the configured date window and amount slack
// of the expected mirror. A non-nil decision reports a failure.
func (e *Engine) findTransferMatch(ctx context.Context, spec RunSpec, tx ledger.Transaction, expected int64) (*ledger.Transaction, *Decision) {
	pair := spec.Pairs[tx.AccountID]
	since := addDays(tx.Date, -e.matchWindowDays)

	candidates, err := e.api.ListAccountTransactions(ctx, pair.TargetBudgetID, pair.TargetAccountID, since)
	if err != nil {
		d := e.errorDecision(spec, tx, fmt.Errorf("failed to search transfer candidates: %w", err))
		return nil, &d
	}

	for i := range candidates {
		c := &candidates[i]
		if c.Deleted || IsMirrorTag(c.ImportID) {
			continue
		}
		if daysBetween(c.Date, tx.Date) > e.matchWindowDays {
			continue
		}
		if !amountWithinSlack(c.Amount, expected, e.matchSlackPct) {
			continue
		}

		linked, err := e.store.IsTransactionLinked(c.ID)
		if err != nil {
			d := e.errorDecision(spec, tx, &StoreError{Op: "check linked", Err: err})
			return nil, &d
		}
		if linked {
			continue
		}

		return c, nil
	}

	return nil, nil
}

// linkGenuineTransfer records that the source transaction and its matched
// counterpart are one real-world transfer. When an earlier pass already
// created a mirror for the event, the now-stale mirror and its mapping are
// retired first, converging to one link and zero mirrors.
func (e *Engine) linkGenuineTransfer(ctx context.Context, spec RunSpec, tx ledger.Transaction, match *ledger.Transaction) Decision {
	pair := spec.Pairs[tx.AccountID]
	action := ActionSkip
	note := "matched genuine transfer " + match.ID

	cm, err := e.store.GetMappingByTx(match.ID)
	if err != nil {
		return e.errorDecision(spec, tx, &StoreError{Op: "get mapping", Err: err})
	}

	var staleMirrorID string
	if cm != nil {
		// The match is the source of an earlier mapping; its mirror lives in
		// this run's source budget and is now redundant.
		staleMirrorID = sideTxID(cm, otherRole(mappingSide(cm, match.ID)))
		if err := e.api.DeleteTransaction(ctx, spec.SourceBudgetID, staleMirrorID); err != nil {
			return e.errorDecision(spec, tx, &LedgerWriteError{Op: "delete", TxID: staleMirrorID, Err: err})
		}

		cm.SyncStatus = store.StatusDeleted
		if err := e.store.UpdateMapping(cm); err != nil {
			return e.errorDecision(spec, tx, &StoreError{Op: "update mapping", Err: err})
		}

		action = ActionDelete
		note = "stale mirror retired for genuine transfer " + match.ID
	}

	if err := e.store.CreateLinkedTransaction(&store.LinkedTransaction{
		BudgetIDA:     spec.SourceBudgetID,
		TxIDA:         tx.ID,
		BudgetIDB:     pair.TargetBudgetID,
		TxIDB:         match.ID,
		Amount:        tx.Amount,
		Date:          tx.Date,
		IsAutoMatched: true,
	}); err != nil {
		return e.errorDecision(spec, tx, &StoreError{Op: "create linked transaction", Err: err})
	}

	return Decision{
		Action:     action,
		BudgetID:   spec.SourceBudgetID,
		TxID:       tx.ID,
		MirrorTxID: staleMirrorID,
		Details:    e.details(spec, tx, 0, "", note),
	}
}

// handleSourceDrift propagates edits on an authoritative source transaction
// out to its mirror.
func (e *Engine) handleSourceDrift(ctx context.Context, spec RunSpec, tx ledger.Transaction, m *store.TransactionMapping) Decision {
	side := mappingSide(m, tx.ID)

	if tx.Amount == sideAmount(m, side) && tx.Date == m.TransactionDate {
		return Decision{
			Action:   ActionSkip,
			BudgetID: spec.SourceBudgetID,
			TxID:     tx.ID,
			Details:  e.details(spec, tx, 0, "", "unchanged"),
		}
	}

	mirrorBudget := spec.remoteBudget(m)
	targetCurrency, err := spec.currency(mirrorBudget)
	if err != nil {
		return e.errorDecision(spec, tx, err)
	}

	rate, err := e.rates.Rate(MonthKey(tx.Date), spec.SourceCurrency, targetCurrency)
	if err != nil {
		return e.errorDecision(spec, tx, &RateError{
			Month: MonthKey(tx.Date), From: spec.SourceCurrency, To: targetCurrency, Err: err,
		})
	}
	mirrorAmount := -ConvertMilliunits(tx.Amount, rate)
	mirrorID := sideTxID(m, otherRole(side))

	if _, err := e.api.UpdateTransaction(ctx, mirrorBudget, mirrorID, ledger.TransactionUpdate{
		Date:   tx.Date,
		Amount: &mirrorAmount,
	}); err != nil {
		return e.errorDecision(spec, tx, &LedgerWriteError{Op: "update", TxID: mirrorID, Err: err})
	}

	setSide(m, side, tx.ID, tx.Amount)
	setSide(m, otherRole(side), mirrorID, mirrorAmount)
	m.TransactionDate = tx.Date
	m.ExchangeRate = rate.String()

	if err := e.store.UpdateMapping(m); err != nil {
		return e.errorDecision(spec, tx, &StoreError{Op: "update mapping", Err: err})
	}

	return Decision{
		Action:     ActionUpdate,
		BudgetID:   spec.SourceBudgetID,
		TxID:       tx.ID,
		MirrorTxID: mirrorID,
		Details:    e.details(spec, tx, mirrorAmount, rate.String(), "source drift propagated"),
	}
}

// handleMirrorDrift restores a hand-edited mirror to the value implied by its
// live source. A mirror is never authoritative.
func (e *Engine) handleMirrorDrift(ctx context.Context, spec RunSpec, tx ledger.Transaction, m *store.TransactionMapping) Decision {
	if m == nil {
		return Decision{
			Action:   ActionSkip,
			BudgetID: spec.SourceBudgetID,
			TxID:     tx.ID,
			Details:  e.details(spec, tx, 0, "", "mirror without mapping"),
		}
	}

	side := mappingSide(m, tx.ID)
	if tx.Amount == sideAmount(m, side) && tx.Date == m.TransactionDate {
		return Decision{
			Action:   ActionSkip,
			BudgetID: spec.SourceBudgetID,
			TxID:     tx.ID,
			Details:  e.details(spec, tx, 0, "", "unchanged"),
		}
	}

	srcBudget := spec.remoteBudget(m)
	srcID := sideTxID(m, otherRole(side))
	src, err := e.api.GetTransaction(ctx, srcBudget, srcID)
	if errors.Is(err, ledger.ErrNotFound) || (err == nil && src.Deleted) {
		return Decision{
			Action:   ActionSkip,
			BudgetID: spec.SourceBudgetID,
			TxID:     tx.ID,
			Details:  e.details(spec, tx, 0, "", "source gone, awaiting deletion pass"),
		}
	}
	if err != nil {
		return e.errorDecision(spec, tx, fmt.Errorf("failed to read live source %s: %w", srcID, err))
	}

	srcCurrency, err := spec.currency(srcBudget)
	if err != nil {
		return e.errorDecision(spec, tx, err)
	}

	rate, err := e.rates.Rate(MonthKey(src.Date), srcCurrency, spec.SourceCurrency)
	if err != nil {
		return e.errorDecision(spec, tx, &RateError{
			Month: MonthKey(src.Date), From: srcCurrency, To: spec.SourceCurrency, Err: err,
		})
	}
	expected := -ConvertMilliunits(src.Amount, rate)

	if tx.Amount != expected || tx.Date != src.Date {
		if _, err := e.api.UpdateTransaction(ctx, spec.SourceBudgetID, tx.ID, ledger.TransactionUpdate{
			Date:   src.Date,
			Amount: &expected,
		}); err != nil {
			return e.errorDecision(spec, tx, &LedgerWriteError{Op: "update", TxID: tx.ID, Err: err})
		}
	}

	// The mapping's record stays untouched unless the live source itself
	// drifted from it.
	if sideAmount(m, otherRole(side)) != src.Amount || m.TransactionDate != src.Date {
		setSide(m, otherRole(side), src.ID, src.Amount)
		setSide(m, side, tx.ID, expected)
		m.TransactionDate = src.Date
		m.ExchangeRate = rate.String()
		if err := e.store.UpdateMapping(m); err != nil {
			return e.errorDecision(spec, tx, &StoreError{Op: "update mapping", Err: err})
		}
	}

	return Decision{
		Action:     ActionUpdate,
		BudgetID:   spec.SourceBudgetID,
		TxID:       srcID,
		MirrorTxID: tx.ID,
		Details:    e.details(spec, tx, expected, rate.String(), "mirror restored from source"),
	}
}

// handleDeleted processes tombstoned transactions: a deleted mirror is
// recreated while its source lives, a deleted source takes its mirror with
// it, and a mapping is marked deleted only once both sides are gone.
func (e *Engine) handleDeleted(ctx context.Context, spec RunSpec, tx ledger.Transaction) (Decision, bool) {
	m, err := e.store.GetMappingByTx(tx.ID)
	if err != nil {
		return e.errorDecision(spec, tx, &StoreError{Op: "get mapping", Err: err}), true
	}
	if m == nil {
		if _, ok := spec.Pairs[tx.AccountID]; ok {
			return Decision{
				Action:   ActionSkip,
				BudgetID: spec.SourceBudgetID,
				TxID:     tx.ID,
				Details:  e.details(spec, tx, 0, "", "deleted with no mapping"),
			}, true
		}
		return Decision{}, false
	}

	side := mappingSide(m, tx.ID)

	if spec.txIsSource(m, tx.ID) {
		// The source is gone: remove its mirror and retire the mapping.
		mirrorID := sideTxID(m, otherRole(side))
		if err := e.api.DeleteTransaction(ctx, spec.remoteBudget(m), mirrorID); err != nil {
			return e.errorDecision(spec, tx, &LedgerWriteError{Op: "delete", TxID: mirrorID, Err: err}), true
		}

		m.SyncStatus = store.StatusDeleted
		if err := e.store.UpdateMapping(m); err != nil {
			return e.errorDecision(spec, tx, &StoreError{Op: "update mapping", Err: err}), true
		}

		return Decision{
			Action:     ActionDelete,
			BudgetID:   spec.SourceBudgetID,
			TxID:       tx.ID,
			MirrorTxID: mirrorID,
			Details:    e.details(spec, tx, 0, "", "source deleted, mirror removed"),
		}, true
	}

	// The deleted transaction is a mirror. If its source is gone too, the
	// mapping is terminal; otherwise recreate the mirror from the live
	// source under a uniquified tag, reusing the same mapping row.
	srcBudget := spec.remoteBudget(m)
	srcID := sideTxID(m, otherRole(side))
	src, err := e.api.GetTransaction(ctx, srcBudget, srcID)
	if errors.Is(err, ledger.ErrNotFound) || (err == nil && src.Deleted) {
		m.SyncStatus = store.StatusDeleted
		if err := e.store.UpdateMapping(m); err != nil {
			return e.errorDecision(spec, tx, &StoreError{Op: "update mapping", Err: err}), true
		}
		return Decision{
			Action:   ActionDelete,
			BudgetID: spec.SourceBudgetID,
			TxID:     srcID,
			Details:  e.details(spec, tx, 0, "", "both sides gone, mapping retired"),
		}, true
	}
	if err != nil {
		return e.errorDecision(spec, tx, fmt.Errorf("failed to read live source %s: %w", srcID, err)), true
	}

	srcCurrency, err := spec.currency(srcBudget)
	if err != nil {
		return e.errorDecision(spec, tx, err), true
	}

	rate, err := e.rates.Rate(MonthKey(src.Date), srcCurrency, spec.SourceCurrency)
	if err != nil {
		return e.errorDecision(spec, tx, &RateError{
			Month: MonthKey(src.Date), From: srcCurrency, To: spec.SourceCurrency, Err: err,
		}), true
	}
	amount := -ConvertMilliunits(src.Amount, rate)

	tag := RecreationTag(OppositeDirection(spec.Direction), src.ID, e.now())
	created, err := e.api.CreateTransaction(ctx, spec.SourceBudgetID, ledger.NewTransaction{
		AccountID: tx.AccountID,
		Date:      src.Date,
		Amount:    amount,
		PayeeName: src.PayeeName,
		Memo:      src.Memo,
		ImportID:  tag,
		Cleared:   "cleared",
		Approved:  true,
	})
	if err != nil {
		return e.errorDecision(spec, tx, &LedgerWriteError{Op: "create", TxID: srcID, Err: err}), true
	}

	setSide(m, side, created.ID, amount)
	setSide(m, otherRole(side), src.ID, src.Amount)
	m.TransactionDate = src.Date
	m.ExchangeRate = rate.String()
	if err := e.store.UpdateMapping(m); err != nil {
		return e.errorDecision(spec, tx, &StoreError{Op: "update mapping", Err: err}), true
	}

	return Decision{
		Action:     ActionCreate,
		BudgetID:   spec.SourceBudgetID,
		TxID:       srcID,
		MirrorTxID: created.ID,
		Details:    e.details(spec, tx, amount, rate.String(), "mirror recreated from live source"),
	}, true
}

// findByImportID locates the transaction carrying an import tag in an
// account, looking back one dedup window from the given date.
func (e *Engine) findByImportID(ctx context.Context, budgetID, accountID, tag, date string) (*ledger.Transaction, error) {
	since := addDays(date, -e.matchWindowDays)
	txns, err := e.api.ListAccountTransactions(ctx, budgetID, accountID, since)
	if err != nil {
		return nil, err
	}

	for i := range txns {
		if txns[i].ImportID == tag && !txns[i].Deleted {
			return &txns[i], nil
		}
	}
	return nil, nil
}

// details builds the audit payload for a decision about tx.
func (e *Engine) details(spec RunSpec, tx ledger.Transaction, converted int64, rate, note string) *Details {
	return &Details{
		Date:            tx.Date,
		Amount:          tx.Amount,
		AmountDisplay:   displayAmount(tx.Amount, spec.SourceCurrency),
		Payee:           tx.PayeeName,
		Account:         tx.AccountID,
		Budget:          spec.SourceBudgetID,
		ConvertedAmount: converted,
		RateUsed:        rate,
		Note:            note,
	}
}

// displayAmount renders a milliunit amount as a human-readable currency
// string for the audit trail.
func displayAmount(milliunits int64, currency string) string {
	return money.New(milliunits/10, currency).Display()
}
