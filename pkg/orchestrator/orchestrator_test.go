package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/config"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/engine"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/rates"
	"github.com/shunichi-ikebuchi/ledger-bridge/pkg/store"
)

// stubLedger serves canned deltas, records which budget each sub-run
// consumed and what was created where. Optional hooks gate and fail
// individual budgets.
type stubLedger struct {
	mu      sync.Mutex
	order   []string
	delta   map[string][]ledger.Transaction
	failFor map[string]error
	created map[string][]ledger.Transaction
	nextID  int

	enteredOnce sync.Once
	entered     chan struct{}
	release     chan struct{}
}

func (s *stubLedger) ListTransactions(_ context.Context, budgetID, _ string) ([]ledger.Transaction, string, error) {
	if s.entered != nil {
		s.enteredOnce.Do(func() { close(s.entered) })
	}
	if s.release != nil {
		<-s.release
	}

	s.mu.Lock()
	s.order = append(s.order, budgetID)
	s.mu.Unlock()

	if err := s.failFor[budgetID]; err != nil {
		return nil, "", err
	}
	return s.delta[budgetID], "wm-1", nil
}

func (s *stubLedger) ListAccountTransactions(context.Context, string, string, string) ([]ledger.Transaction, error) {
	return nil, nil
}

func (s *stubLedger) GetTransaction(context.Context, string, string) (*ledger.Transaction, error) {
	return nil, ledger.ErrNotFound
}

func (s *stubLedger) CreateTransaction(_ context.Context, budgetID string, nt ledger.NewTransaction) (*ledger.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	tx := ledger.Transaction{
		ID:        fmt.Sprintf("gen-%d", s.nextID),
		BudgetID:  budgetID,
		AccountID: nt.AccountID,
		Date:      nt.Date,
		Amount:    nt.Amount,
		ImportID:  nt.ImportID,
	}
	if s.created == nil {
		s.created = make(map[string][]ledger.Transaction)
	}
	s.created[budgetID] = append(s.created[budgetID], tx)
	return &tx, nil
}

func (s *stubLedger) UpdateTransaction(context.Context, string, string, ledger.TransactionUpdate) (*ledger.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (s *stubLedger) DeleteTransaction(context.Context, string, string) error {
	return nil
}

func newTestOrchestrator(t *testing.T, sl *stubLedger, lock *CycleLock) (*Orchestrator, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "bridge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.CreateCompanyAccountLink(&store.CompanyAccountLink{
		BudgetIDA:  "budget-co-a",
		AccountIDA: "acct-a-transfers",
		BudgetIDB:  "budget-co-b",
		AccountIDB: "acct-b-transfers",
		Active:     true,
	}))
	require.NoError(t, st.CreateAccountLink(&store.AccountLink{
		CompanyBudgetID:   "budget-co-a",
		CompanyName:       "Acme",
		PersonalAccountID: "acct-personal-checking",
		CompanyAccountID:  "acct-a-reimbursements",
		Active:            true,
	}))

	table, err := rates.NewTable(nil)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(sl, table, st, engine.Options{Logger: logger})

	topo := &config.Topology{
		Personal: config.Budget{BudgetID: "budget-personal", Currency: "EUR"},
		Companies: []config.Company{
			{BudgetID: "budget-co-a", Name: "Acme", Currency: "EUR"},
			{BudgetID: "budget-co-b", Name: "Beta", Currency: "EUR"},
		},
	}

	return New(lock, eng, st, topo, logger), st
}

func TestRunCycleOrdersCompanyLinksFirst(t *testing.T) {
	sl := &stubLedger{}
	orch, _ := newTestOrchestrator(t, sl, NewCycleLock())

	report, err := orch.RunCycle(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)
	require.Len(t, report.Directions, 4)

	assert.Equal(t, engine.DirCompanyToCompany, report.Directions[0].Direction)
	assert.Equal(t, "budget-co-a", report.Directions[0].BudgetID)
	assert.Equal(t, engine.DirCompanyToCompany, report.Directions[1].Direction)
	assert.Equal(t, "budget-co-b", report.Directions[1].BudgetID)
	assert.Equal(t, engine.DirPersonalToCompany, report.Directions[2].Direction)
	assert.Equal(t, "budget-personal", report.Directions[2].BudgetID)
	assert.Equal(t, engine.DirCompanyToPersonal, report.Directions[3].Direction)
	assert.Equal(t, "budget-co-a", report.Directions[3].BudgetID)

	assert.Equal(t, []string{"budget-co-a", "budget-co-b", "budget-personal", "budget-co-a"}, sl.order)
}

func TestRunCycleRejectsConcurrentTrigger(t *testing.T) {
	lock := NewCycleLock()
	sl := &stubLedger{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	first, _ := newTestOrchestrator(t, sl, lock)
	second, _ := newTestOrchestrator(t, &stubLedger{}, lock)

	done := make(chan error, 1)
	go func() {
		_, err := first.RunCycle(context.Background())
		done <- err
	}()

	<-sl.entered
	_, err := second.RunCycle(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(sl.release)
	require.NoError(t, <-done)

	// The slot is free again once the cycle finishes.
	report, err := second.RunCycle(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, report)
}

func TestRunCycleContinuesAfterSubRunFailure(t *testing.T) {
	sl := &stubLedger{
		failFor: map[string]error{"budget-co-a": errors.New("upstream 503")},
	}
	orch, st := newTestOrchestrator(t, sl, NewCycleLock())

	report, err := orch.RunCycle(context.Background())
	require.NoError(t, err)

	// budget-co-a fails twice, as the c2c source and as the c2p source.
	assert.Equal(t, 2, report.Errors)
	assert.Equal(t, []string{"budget-co-a", "budget-co-b", "budget-personal", "budget-co-a"}, sl.order)

	wm, err := st.GetWatermark("budget-co-a")
	require.NoError(t, err)
	require.NotNil(t, wm)
	assert.Equal(t, "error", wm.LastStatus)

	wm, err = st.GetWatermark("budget-personal")
	require.NoError(t, err)
	require.NotNil(t, wm)
	assert.Equal(t, "success", wm.LastStatus)
}

func TestRunCycleMirrorsEveryLinkedCompany(t *testing.T) {
	sl := &stubLedger{
		delta: map[string][]ledger.Transaction{
			"budget-personal": {
				{
					ID:        "tx-for-beta",
					AccountID: "acct-personal-savings",
					Date:      "2026-01-15",
					Amount:    -2500,
				},
			},
		},
	}
	orch, st := newTestOrchestrator(t, sl, NewCycleLock())

	// Second organization, linked through a different personal account.
	require.NoError(t, st.CreateAccountLink(&store.AccountLink{
		CompanyBudgetID:   "budget-co-b",
		CompanyName:       "Beta",
		PersonalAccountID: "acct-personal-savings",
		CompanyAccountID:  "acct-b-reimbursements",
		Active:            true,
	}))

	report, err := orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Errors)
	assert.Equal(t, 1, report.Created)

	// The personal delta is consumed once and the transaction reaches the
	// second organization's budget, not the first one's.
	m, err := st.GetMappingByPersonalTx("tx-for-beta")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "budget-co-b", m.CompanyBudgetID)

	require.Len(t, sl.created["budget-co-b"], 1)
	mirror := sl.created["budget-co-b"][0]
	assert.Equal(t, "acct-b-reimbursements", mirror.AccountID)
	assert.Equal(t, int64(2500), mirror.Amount)
	assert.Empty(t, sl.created["budget-co-a"])
}

func TestRunCycleCountsMisconfiguredLink(t *testing.T) {
	sl := &stubLedger{}
	orch, st := newTestOrchestrator(t, sl, NewCycleLock())

	// budget-co-x is not part of the configured topology.
	require.NoError(t, st.CreateCompanyAccountLink(&store.CompanyAccountLink{
		BudgetIDA:  "budget-co-a",
		AccountIDA: "acct-a-transfers",
		BudgetIDB:  "budget-co-x",
		AccountIDB: "acct-x-transfers",
		Active:     true,
	}))

	report, err := orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Errors)
	// The misconfigured link is skipped, everything else still runs.
	require.Len(t, report.Directions, 4)
	assert.Equal(t, []string{"budget-co-a", "budget-co-b", "budget-personal", "budget-co-a"}, sl.order)
}
