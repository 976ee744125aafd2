package engine

import "fmt"

// ConfigError reports a missing or inconsistent link/mapping configuration.
// It aborts only the affected sub-run.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// RateError reports a missing conversion rate for the needed month. It
// aborts only the affected transaction.
type RateError struct {
	Month string
	From  string
	To    string
	Err   error
}

func (e *RateError) Error() string {
	return fmt.Sprintf("rate unavailable for %s %s->%s: %v", e.Month, e.From, e.To, e.Err)
}

func (e *RateError) Unwrap() error { return e.Err }

// LedgerWriteError reports a rejected create/update/delete for a reason other
// than an idempotent conflict. The mapping is left untouched so the next pass
// retries from the same state.
type LedgerWriteError struct {
	Op   string
	TxID string
	Err  error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("ledger %s failed for %s: %v", e.Op, e.TxID, e.Err)
}

func (e *LedgerWriteError) Unwrap() error { return e.Err }

// StoreError reports a failed repository read or write.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
