package escrow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appesso/taskpay/internal/escrow"
	"github.com/appesso/taskpay/internal/ledger"
	"github.com/appesso/taskpay/internal/store"
	"github.com/appesso/taskpay/internal/task"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type receiptEvent struct {
	taskID string
	leg    escrow.LegKind
	amount int64
	from   string
	to     string
}

type statusEvent struct {
	taskID   string
	from, to task.Status
}

// recorder captures post-commit notifications so tests can assert the
// exactly-once receipt guarantee.
type recorder struct {
	mu       sync.Mutex
	receipts []receiptEvent
	statuses []statusEvent
}

func (r *recorder) SettlementCompleted(taskID string, leg escrow.LegKind, amount int64, from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, receiptEvent{taskID, leg, amount, from, to})
}

func (r *recorder) TaskStatusChanged(taskID string, old, new task.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, statusEvent{taskID, old, new})
}

type fixture struct {
	engine *escrow.Engine
	store  *store.Memory
	clock  *fakeClock
	events *recorder
	ctx    context.Context
}

func newFixture(t *testing.T, cfg escrow.Config) *fixture {
	t.Helper()
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	mem := store.NewMemory()
	rec := &recorder{}
	cfg.Now = clk.Now
	return &fixture{
		engine: escrow.New(mem, rec, cfg),
		store:  mem,
		clock:  clk,
		events: rec,
		ctx:    context.Background(),
	}
}

func (f *fixture) open(t *testing.T, id string) {
	t.Helper()
	_, err := f.engine.OpenAccount(f.ctx, id)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	acct, err := f.engine.Balance(f.ctx, id)
	require.NoError(t, err)
	return acct.Balance
}

// requireConserved checks the post-reconciliation invariant: every account's
// cached balance equals the fold of its COMPLETED ledger entries.
func (f *fixture) requireConserved(t *testing.T, accounts ...string) {
	t.Helper()
	for _, id := range accounts {
		rep, err := f.engine.Reconcile(f.ctx, id)
		require.NoError(t, err)
		assert.Zerof(t, rep.Drift, "account %s drifted: stored=%d computed=%d", id, rep.Stored, rep.Computed)
	}
}

func TestOpenAccountWelcomeBonus(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")

	assert.Equal(t, escrow.WelcomeBonus, f.balance(t, "alice"))
	assert.Equal(t, -escrow.WelcomeBonus, f.balance(t, escrow.SystemAccountID))
	f.requireConserved(t, "alice", escrow.SystemAccountID)

	// Re-opening is a no-op, not a second bonus.
	_, err := f.engine.OpenAccount(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, escrow.WelcomeBonus, f.balance(t, "alice"))
}

func TestHappyPath(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")
	f.open(t, "bob")

	tk, err := f.engine.CreateTask(f.ctx, "alice", "walk the dog", 100)
	require.NoError(t, err)
	assert.Equal(t, task.StatusOpen, tk.Status)
	assert.Equal(t, escrow.WelcomeBonus-100, f.balance(t, "alice"))
	assert.Equal(t, int64(100), f.balance(t, escrow.EscrowAccountID))

	tk, err = f.engine.Accept(f.ctx, tk.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, tk.Status)
	assert.Equal(t, int64(50), tk.InitialLeg)
	assert.Equal(t, int64(50), tk.FinalLeg)
	require.NotNil(t, tk.InitialPaidAt)
	assert.Equal(t, escrow.WelcomeBonus+50, f.balance(t, "bob"))

	tk, err = f.engine.RequestCompletion(f.ctx, tk.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompletionRequested, tk.Status)

	tk, err = f.engine.ConfirmCompletion(f.ctx, tk.ID, "alice", true)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, tk.Status)
	require.NotNil(t, tk.FinalPaidAt)

	// Owner's net debit is 100, acceptor's net credit is 100, escrow empty.
	assert.Equal(t, escrow.WelcomeBonus-100, f.balance(t, "alice"))
	assert.Equal(t, escrow.WelcomeBonus+100, f.balance(t, "bob"))
	assert.Equal(t, int64(0), f.balance(t, escrow.EscrowAccountID))
	f.requireConserved(t, "alice", "bob", escrow.EscrowAccountID, escrow.SystemAccountID)

	// Exactly one receipt per settled leg.
	require.Len(t, f.events.receipts, 2)
	assert.Equal(t, escrow.LegInitial, f.events.receipts[0].leg)
	assert.Equal(t, int64(50), f.events.receipts[0].amount)
	assert.Equal(t, escrow.LegFinal, f.events.receipts[1].leg)
	assert.Equal(t, int64(50), f.events.receipts[1].amount)

	// Monotonic lifecycle.
	want := []statusEvent{
		{tk.ID, task.StatusOpen, task.StatusInProgress},
		{tk.ID, task.StatusInProgress, task.StatusCompletionRequested},
		{tk.ID, task.StatusCompletionRequested, task.StatusCompleted},
	}
	assert.Equal(t, want, f.events.statuses)
}

func TestOddRewardSplit(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")
	f.open(t, "bob")

	tk, err := f.engine.CreateTask(f.ctx, "alice", "odd reward", 101)
	require.NoError(t, err)
	tk, err = f.engine.Accept(f.ctx, tk.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(50), tk.InitialLeg)
	assert.Equal(t, int64(51), tk.FinalLeg)

	_, err = f.engine.RequestCompletion(f.ctx, tk.ID, "bob")
	require.NoError(t, err)
	_, err = f.engine.ConfirmCompletion(f.ctx, tk.ID, "alice", true)
	require.NoError(t, err)

	assert.Equal(t, escrow.WelcomeBonus+101, f.balance(t, "bob"))
	assert.Equal(t, int64(0), f.balance(t, escrow.EscrowAccountID))
	f.requireConserved(t, "alice", "bob", escrow.EscrowAccountID)
}

func TestDenialLoop(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")
	f.open(t, "bob")

	tk, err := f.engine.CreateTask(f.ctx, "alice", "task", 100)
	require.NoError(t, err)
	_, err = f.engine.Accept(f.ctx, tk.ID, "bob")
	require.NoError(t, err)
	_, err = f.engine.RequestCompletion(f.ctx, tk.ID, "bob")
	require.NoError(t, err)

	bobBefore := f.balance(t, "bob")
	tk, err = f.engine.ConfirmCompletion(f.ctx, tk.ID, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, tk.Status)
	assert.Nil(t, tk.CompletionRequestedAt)
	assert.Equal(t, bobBefore, f.balance(t, "bob"), "denial moves no money")

	// Acceptor may re-request after a denial.
	tk, err = f.engine.RequestCompletion(f.ctx, tk.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompletionRequested, tk.Status)

	// Still only the initial-leg receipt.
	require.Len(t, f.events.receipts, 1)
	assert.Equal(t, escrow.LegInitial, f.events.receipts[0].leg)
}

func TestGuards(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")
	f.open(t, "bob")
	f.open(t, "carol")

	tk, err := f.engine.CreateTask(f.ctx, "alice", "task", 100)
	require.NoError(t, err)

	_, err = f.engine.Accept(f.ctx, tk.ID, "alice")
	assert.ErrorIs(t, err, task.ErrSelfAcceptance)

	_, err = f.engine.Accept(f.ctx, "no-such-task", "bob")
	assert.ErrorIs(t, err, escrow.ErrNotFound)

	_, err = f.engine.RequestCompletion(f.ctx, tk.ID, "bob")
	assert.ErrorIs(t, err, task.ErrNotAcceptor, "cannot request before accepting")

	_, err = f.engine.Accept(f.ctx, tk.ID, "bob")
	require.NoError(t, err)

	_, err = f.engine.Accept(f.ctx, tk.ID, "carol")
	assert.ErrorIs(t, err, task.ErrInvalidState, "claimed task cannot be re-accepted")

	_, err = f.engine.RequestCompletion(f.ctx, tk.ID, "carol")
	assert.ErrorIs(t, err, task.ErrNotAcceptor)

	_, err = f.engine.ConfirmCompletion(f.ctx, tk.ID, "alice", true)
	assert.ErrorIs(t, err, task.ErrInvalidState, "nothing requested yet")

	_, err = f.engine.RequestCompletion(f.ctx, tk.ID, "bob")
	require.NoError(t, err)

	_, err = f.engine.ConfirmCompletion(f.ctx, tk.ID, "bob", true)
	assert.ErrorIs(t, err, task.ErrNotOwner)
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")
	f.open(t, "bob")
	f.open(t, "carol")

	tk, err := f.engine.CreateTask(f.ctx, "alice", "task", 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, who := range []string{"bob", "carol"} {
		wg.Add(1)
		go func(i int, who string) {
			defer wg.Done()
			_, errs[i] = f.engine.Accept(f.ctx, tk.ID, who)
		}(i, who)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, task.ErrInvalidState):
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	// Only the winner got paid.
	assert.Equal(t, int64(50), f.balance(t, escrow.EscrowAccountID))
	f.requireConserved(t, "alice", "bob", "carol", escrow.EscrowAccountID)
}

func TestExpiryRefund(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")

	tk, err := f.engine.CreateTask(f.ctx, "alice", "nobody wants this", 100)
	require.NoError(t, err)
	assert.Equal(t, escrow.WelcomeBonus-100, f.balance(t, "alice"))

	// Not yet eligible.
	f.clock.Advance(29 * 24 * time.Hour)
	report, err := f.engine.RunExpireUnclaimedTasks(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)

	f.clock.Advance(2 * 24 * time.Hour)
	report, err = f.engine.RunExpireUnclaimedTasks(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)

	got, err := f.engine.Task(f.ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusExpired, got.Status)
	assert.Equal(t, escrow.WelcomeBonus, f.balance(t, "alice"), "owner refunded in full")
	assert.Equal(t, int64(0), f.balance(t, escrow.EscrowAccountID))

	// Idempotent: a second run finds nothing and refunds nothing.
	report, err = f.engine.RunExpireUnclaimedTasks(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	assert.Equal(t, escrow.WelcomeBonus, f.balance(t, "alice"))
	f.requireConserved(t, "alice", escrow.EscrowAccountID, escrow.SystemAccountID)
}

func TestAutoRelease(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")
	f.open(t, "bob")

	tk, err := f.engine.CreateTask(f.ctx, "alice", "task", 100)
	require.NoError(t, err)
	_, err = f.engine.Accept(f.ctx, tk.ID, "bob")
	require.NoError(t, err)
	_, err = f.engine.RequestCompletion(f.ctx, tk.ID, "bob")
	require.NoError(t, err)

	// Owner ignores the request for 8 days.
	f.clock.Advance(8 * 24 * time.Hour)
	report, err := f.engine.RunAutoReleaseCommission(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)

	got, err := f.engine.Task(f.ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	require.NotNil(t, got.FinalPaidAt)
	assert.Equal(t, escrow.WelcomeBonus+100, f.balance(t, "bob"))

	// Re-run: nothing eligible, no double release.
	report, err = f.engine.RunAutoReleaseCommission(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	assert.Equal(t, escrow.WelcomeBonus+100, f.balance(t, "bob"))
	f.requireConserved(t, "alice", "bob", escrow.EscrowAccountID)
}

func TestResolveOutcomeRefundsFinalLeg(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")
	f.open(t, "bob")

	tk, err := f.engine.CreateTask(f.ctx, "alice", "task", 100)
	require.NoError(t, err)
	_, err = f.engine.Accept(f.ctx, tk.ID, "bob")
	require.NoError(t, err)
	_, err = f.engine.RequestCompletion(f.ctx, tk.ID, "bob")
	require.NoError(t, err)

	tk, err = f.engine.ResolveOutcome(f.ctx, tk.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, tk.Status)

	// Owner reclaims the final leg; the acceptor keeps the initial leg.
	assert.Equal(t, escrow.WelcomeBonus-50, f.balance(t, "alice"))
	assert.Equal(t, escrow.WelcomeBonus+50, f.balance(t, "bob"))
	assert.Equal(t, int64(0), f.balance(t, escrow.EscrowAccountID))
	f.requireConserved(t, "alice", "bob", escrow.EscrowAccountID)
}

func TestInsufficientFundsFallback(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")
	f.open(t, "bob")

	tk, err := f.engine.CreateTask(f.ctx, "alice", "task", 100)
	require.NoError(t, err)
	_, err = f.engine.Accept(f.ctx, tk.ID, "bob")
	require.NoError(t, err)
	_, err = f.engine.RequestCompletion(f.ctx, tk.ID, "bob")
	require.NoError(t, err)

	// Drain the escrow pool to simulate drift: the payer can no longer
	// cover the final leg.
	require.NoError(t, f.store.InTx(f.ctx, func(ctx context.Context, tx escrow.Tx) error {
		return tx.SetBalance(ctx, escrow.EscrowAccountID, 0)
	}))

	systemBefore := f.balance(t, escrow.SystemAccountID)
	_, err = f.engine.ConfirmCompletion(f.ctx, tk.ID, "alice", true)
	require.NoError(t, err, "the credit side must still proceed")

	assert.Equal(t, escrow.WelcomeBonus+100, f.balance(t, "bob"))
	assert.Equal(t, systemBefore-50, f.balance(t, escrow.SystemAccountID),
		"system account funds the shortfall explicitly")

	// The ledger records the system account as the actual source.
	entries, err := f.engine.History(f.ctx, escrow.SystemAccountID, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].FromAccount)
	assert.Equal(t, escrow.SystemAccountID, *entries[0].FromAccount)
	f.requireConserved(t, "alice", "bob", escrow.SystemAccountID)

	// The injected escrow drift is untouched: the fallback pays around it
	// and leaves repair to reconciliation.
	rep, err := f.engine.Reconcile(f.ctx, escrow.EscrowAccountID)
	require.NoError(t, err)
	assert.Equal(t, int64(-50), rep.Drift)
}

func TestFallbackCap(t *testing.T) {
	f := newFixture(t, escrow.Config{FallbackCap: 10})
	f.open(t, "alice")
	f.open(t, "bob")

	tk, err := f.engine.CreateTask(f.ctx, "alice", "task", 100)
	require.NoError(t, err)
	_, err = f.engine.Accept(f.ctx, tk.ID, "bob")
	require.NoError(t, err)
	_, err = f.engine.RequestCompletion(f.ctx, tk.ID, "bob")
	require.NoError(t, err)

	require.NoError(t, f.store.InTx(f.ctx, func(ctx context.Context, tx escrow.Tx) error {
		return tx.SetBalance(ctx, escrow.EscrowAccountID, 0)
	}))

	bobBefore := f.balance(t, "bob")
	_, err = f.engine.ConfirmCompletion(f.ctx, tk.ID, "alice", true)
	assert.ErrorIs(t, err, escrow.ErrInsufficientFunds, "a leg above the cap is not minted")
	assert.Equal(t, bobBefore, f.balance(t, "bob"), "failed unit leaves no partial state")

	got, err := f.engine.Task(f.ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompletionRequested, got.Status, "task transition rolled back too")
}

func TestTransferDirect(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")
	f.open(t, "bob")

	entry, err := f.engine.TransferDirect(f.ctx, "alice", "bob", 300, "thanks")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, entry.Status)
	assert.Equal(t, escrow.WelcomeBonus-300, f.balance(t, "alice"))
	assert.Equal(t, escrow.WelcomeBonus+300, f.balance(t, "bob"))

	_, err = f.engine.TransferDirect(f.ctx, "alice", "alice", 10, "")
	assert.ErrorIs(t, err, escrow.ErrSelfTransfer)

	_, err = f.engine.TransferDirect(f.ctx, "alice", "bob", escrow.WelcomeBonus*10, "")
	assert.ErrorIs(t, err, escrow.ErrInsufficientFunds)

	_, err = f.engine.TransferDirect(f.ctx, "alice", "bob", 0, "")
	assert.ErrorIs(t, err, escrow.ErrInvalidAmount)

	_, err = f.engine.TransferDirect(f.ctx, "alice", "nobody", 10, "")
	assert.ErrorIs(t, err, escrow.ErrNotFound)
	f.requireConserved(t, "alice", "bob")
}

func TestDepositSettlesDurably(t *testing.T) {
	f := newFixture(t, escrow.Config{SettlementDelay: time.Minute})
	f.open(t, "alice")

	entry, err := f.engine.Deposit(f.ctx, "alice", 500, "")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, entry.Status)
	assert.Equal(t, escrow.WelcomeBonus, f.balance(t, "alice"), "pending deposit not yet credited")
	f.requireConserved(t, "alice")

	// Too fresh to settle.
	report, err := f.engine.RunSettlePendingTransfers(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)

	f.clock.Advance(2 * time.Minute)
	report, err = f.engine.RunSettlePendingTransfers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, escrow.WelcomeBonus+500, f.balance(t, "alice"))

	// Exactly once: a re-run finds nothing pending.
	report, err = f.engine.RunSettlePendingTransfers(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	assert.Equal(t, escrow.WelcomeBonus+500, f.balance(t, "alice"))
	f.requireConserved(t, "alice")
}

func TestUnderfundedWithdrawalWaits(t *testing.T) {
	f := newFixture(t, escrow.Config{SettlementDelay: time.Minute})
	f.open(t, "alice")
	f.open(t, "bob")

	entry, err := f.engine.Withdraw(f.ctx, "alice", 8000, "")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, entry.Status)

	// Alice spends the money before settlement.
	_, err = f.engine.TransferDirect(f.ctx, "alice", "bob", 9000, "")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	report, err := f.engine.RunSettlePendingTransfers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped, "underfunded withdrawal is retried, not reversed")
	assert.Equal(t, escrow.WelcomeBonus-9000, f.balance(t, "alice"))

	// Funds come back; the next scan completes the withdrawal.
	_, err = f.engine.TransferDirect(f.ctx, "bob", "alice", 9000, "")
	require.NoError(t, err)
	report, err = f.engine.RunSettlePendingTransfers(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, escrow.WelcomeBonus-8000, f.balance(t, "alice"))
	f.requireConserved(t, "alice", "bob")
}

func TestWithdrawRejectsOverdraft(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")

	_, err := f.engine.Withdraw(f.ctx, "alice", escrow.WelcomeBonus+1, "")
	assert.ErrorIs(t, err, escrow.ErrInsufficientFunds)
}

func TestReconcileDetectsAndCorrectsDrift(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")

	rep, err := f.engine.Reconcile(f.ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, rep.Drift)

	// Corrupt the cache directly; the ledger is untouched.
	require.NoError(t, f.store.InTx(f.ctx, func(ctx context.Context, tx escrow.Tx) error {
		return tx.SetBalance(ctx, "alice", escrow.WelcomeBonus+777)
	}))

	rep, err = f.engine.Reconcile(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(777), rep.Drift)
	assert.Equal(t, escrow.WelcomeBonus, rep.Computed)

	rep, err = f.engine.ApplyCorrection(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, escrow.WelcomeBonus, rep.Computed)
	assert.Equal(t, escrow.WelcomeBonus, f.balance(t, "alice"))
	f.requireConserved(t, "alice")
}

func TestApplyCorrectionClampsNegative(t *testing.T) {
	f := newFixture(t, escrow.Config{})
	f.open(t, "alice")

	// Inject a completed debit larger than the account's history so the
	// fold goes negative, as a partial failure could leave it.
	now := time.Now()
	src := "alice"
	require.NoError(t, f.store.InTx(f.ctx, func(ctx context.Context, tx escrow.Tx) error {
		return tx.AppendEntry(ctx, &ledger.Entry{
			ID:          uuid.New().String(),
			Type:        ledger.TypeWithdraw,
			Amount:      escrow.WelcomeBonus * 2,
			Status:      ledger.StatusCompleted,
			FromAccount: &src,
			Description: "orphaned debit",
			CreatedAt:   now,
			CompletedAt: &now,
		})
	}))

	rep, err := f.engine.ApplyCorrection(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rep.Computed, "user balances clamp at zero")
	assert.Equal(t, int64(0), f.balance(t, "alice"))
}
