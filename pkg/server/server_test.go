package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/config"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/engine"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/orchestrator"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/rates"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/store"
)

// emptyLedger serves empty deltas.
type emptyLedger struct{}

func (emptyLedger) ListTransactions(context.Context, string, string) ([]ledger.Transaction, string, error) {
	return nil, "wm-1", nil
}

func (emptyLedger) ListAccountTransactions(context.Context, string, string, string) ([]ledger.Transaction, error) {
	return nil, nil
}

func (emptyLedger) GetTransaction(context.Context, string, string) (*ledger.Transaction, error) {
	return nil, ledger.ErrNotFound
}

func (emptyLedger) CreateTransaction(context.Context, string, ledger.NewTransaction) (*ledger.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (emptyLedger) UpdateTransaction(context.Context, string, string, ledger.TransactionUpdate) (*ledger.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (emptyLedger) DeleteTransaction(context.Context, string, string) error {
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *orchestrator.CycleLock) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.CreateAccountLink(&store.AccountLink{
		CompanyBudgetID:   "budget-co",
		CompanyName:       "Acme",
		PersonalAccountID: "acct-personal",
		CompanyAccountID:  "acct-company",
		Active:            true,
	}))

	table, err := rates.NewTable(nil)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(emptyLedger{}, table, st, engine.Options{Logger: logger})

	topo := &config.Topology{
		Personal:  config.Budget{BudgetID: "budget-personal", Currency: "EUR"},
		Companies: []config.Company{{BudgetID: "budget-co", Name: "Acme", Currency: "EUR"}},
	}

	lock := orchestrator.NewCycleLock()
	orch := orchestrator.New(lock, eng, st, topo, logger)

	ts := httptest.NewServer(New(orch, st).Router())
	t.Cleanup(ts.Close)
	return ts, st, lock
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTriggerSync(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/sync", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report orchestrator.CycleReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.Directions, 2)
}

func TestTriggerSyncWhileBusy(t *testing.T) {
	ts, _, lock := newTestServer(t)

	require.True(t, lock.TryAcquire())
	defer lock.Release()

	resp, err := http.Post(ts.URL+"/api/sync", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "cycle_in_progress", body.Error)
}

func TestStatus(t *testing.T) {
	ts, st, _ := newTestServer(t)

	require.NoError(t, st.SetWatermark(&store.SyncWatermark{
		BudgetID:      "budget-personal",
		LastWatermark: "wm-42",
		LastStatus:    "success",
		TotalSynced:   7,
	}))

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Watermarks, 1)
	assert.Equal(t, "wm-42", body.Watermarks[0].LastWatermark)
	require.NotNil(t, body.Stats)
}

func TestRunLog(t *testing.T) {
	ts, st, _ := newTestServer(t)

	require.NoError(t, st.AppendLogEntry(&store.SyncLogEntry{
		RunID:    "run-1",
		BudgetID: "budget-personal",
		Action:   "create",
		TxID:     "p-1",
	}))

	resp, err := http.Get(ts.URL + "/api/runs/run-1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body RunLogResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "run-1", body.RunID)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "create", body.Entries[0].Action)

	resp, err = http.Get(ts.URL + "/api/runs/run-unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
