// Package escrow is the task-escrow and wallet-settlement engine: every
// movement of APE between accounts goes through here, as one atomic unit
// combining the ledger write, the balance cache update and the task state
// transition that triggered it.
package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/appesso/taskpay/internal/ledger"
	"github.com/appesso/taskpay/internal/metrics"
	"github.com/appesso/taskpay/internal/task"
)

// WelcomeBonus is credited from the system account when a wallet is opened.
// 100 APE in minor units.
const WelcomeBonus int64 = 100_00

// Config tunes the engine. Zero values are usable defaults.
type Config struct {
	// FallbackCap bounds a single system-funded leg, in minor units.
	// 0 means unlimited, which matches the historical behavior.
	FallbackCap int64
	// SettlementDelay is how long a DEPOSIT/WITHDRAW entry stays PENDING
	// before the settlement job completes it.
	SettlementDelay time.Duration
	Logger          zerolog.Logger
	// Now is the clock, injectable for tests.
	Now func() time.Time
}

// Engine owns all money movement. Handlers and jobs call it; it talks to the
// store and emits notifications only after the store committed.
type Engine struct {
	store       Store
	notify      Notifier
	log         zerolog.Logger
	now         func() time.Time
	fallbackCap int64
	settleDelay time.Duration
}

func New(store Store, notify Notifier, cfg Config) *Engine {
	if notify == nil {
		notify = NopNotifier{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SettlementDelay <= 0 {
		cfg.SettlementDelay = 30 * time.Second
	}
	return &Engine{
		store:       store,
		notify:      notify,
		log:         cfg.Logger,
		now:         cfg.Now,
		fallbackCap: cfg.FallbackCap,
		settleDelay: cfg.SettlementDelay,
	}
}

// OpenAccount creates a wallet for ownerID and credits the welcome bonus.
// Calling it again for an existing account is a no-op returning the account.
func (e *Engine) OpenAccount(ctx context.Context, ownerID string) (*Account, error) {
	var out *Account
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if existing, err := tx.AccountForUpdate(ctx, ownerID); err == nil {
			out = existing
			return nil
		}
		acct := &Account{ID: ownerID, Balance: WelcomeBonus, CreatedAt: e.now()}
		if err := tx.InsertAccount(ctx, acct); err != nil {
			return err
		}
		if err := tx.AddBalance(ctx, SystemAccountID, -WelcomeBonus); err != nil {
			return err
		}
		now := e.now()
		sys, owner := SystemAccountID, ownerID
		if err := tx.AppendEntry(ctx, &ledger.Entry{
			ID:          uuid.New().String(),
			Type:        ledger.TypeReward,
			Amount:      WelcomeBonus,
			Status:      ledger.StatusCompleted,
			FromAccount: &sys,
			ToAccount:   &owner,
			Description: "Welcome bonus - 100 APE",
			CreatedAt:   now,
			CompletedAt: &now,
		}); err != nil {
			return err
		}
		out = acct
		return nil
	})
	return out, err
}

// CreateTask posts a paid task. The full reward moves from the owner into the
// escrow pool in the same unit that creates the task row, so an unclaimed
// task can always be refunded in full.
func (e *Engine) CreateTask(ctx context.Context, ownerID, content string, reward int64) (*task.Task, error) {
	if reward <= 0 {
		return nil, ErrInvalidAmount
	}
	var out *task.Task
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		owner, err := tx.AccountForUpdate(ctx, ownerID)
		if err != nil {
			return err
		}
		if owner.Balance < reward {
			return ErrInsufficientFunds
		}
		if err := tx.AddBalance(ctx, ownerID, -reward); err != nil {
			return err
		}
		if err := tx.AddBalance(ctx, EscrowAccountID, reward); err != nil {
			return err
		}
		now := e.now()
		from, to := ownerID, EscrowAccountID
		if err := tx.AppendEntry(ctx, &ledger.Entry{
			ID:          uuid.New().String(),
			Type:        ledger.TypeTransfer,
			Amount:      reward,
			Status:      ledger.StatusCompleted,
			FromAccount: &from,
			ToAccount:   &to,
			Description: "Task escrow hold - " + truncate(content, 50),
			CreatedAt:   now,
			CompletedAt: &now,
		}); err != nil {
			return err
		}
		t := &task.Task{
			ID:        uuid.New().String(),
			OwnerID:   ownerID,
			Content:   content,
			Reward:    reward,
			Status:    task.StatusOpen,
			CreatedAt: now,
		}
		if err := tx.InsertTask(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// Accept claims an OPEN task for actorID, freezes the 50/50 split and pays
// the initial leg out of escrow. Exactly one of two racing accepts succeeds;
// the loser sees InvalidState.
func (e *Engine) Accept(ctx context.Context, taskID, actorID string) (*task.Task, error) {
	var (
		out     *task.Task
		receipt func()
	)
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.TaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if err := t.CanAccept(actorID); err != nil {
			return err
		}
		now := e.now()
		initial, final := task.SplitReward(t.Reward)
		t.Status = task.StatusInProgress
		t.AcceptorID = &actorID
		t.AcceptedAt = &now
		t.InitialLeg = initial
		t.FinalLeg = final

		if initial > 0 {
			if err := e.settleLeg(ctx, tx, initial, EscrowAccountID, actorID,
				ledger.TypeReward, "Task commission (initial 50%) - "+truncate(t.Content, 50)); err != nil {
				return err
			}
			t.InitialPaidAt = &now
		}
		if err := tx.UpdateTask(ctx, t); err != nil {
			return err
		}
		out = t
		amt := initial
		receipt = func() {
			if amt > 0 {
				metrics.SettlementLegs.WithLabelValues(string(LegInitial)).Inc()
				e.notify.SettlementCompleted(taskID, LegInitial, amt, EscrowAccountID, actorID)
			}
			e.notify.TaskStatusChanged(taskID, task.StatusOpen, task.StatusInProgress)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	receipt()
	return out, nil
}

// RequestCompletion moves an IN_PROGRESS task to COMPLETION_REQUESTED. Only
// the recorded acceptor may call it. No money moves.
func (e *Engine) RequestCompletion(ctx context.Context, taskID, actorID string) (*task.Task, error) {
	var out *task.Task
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.TaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if err := t.CanRequestCompletion(actorID); err != nil {
			return err
		}
		now := e.now()
		t.Status = task.StatusCompletionRequested
		t.CompletionRequestedAt = &now
		if err := tx.UpdateTask(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notify.TaskStatusChanged(taskID, task.StatusInProgress, task.StatusCompletionRequested)
	return out, nil
}

// ConfirmCompletion is the owner's verdict on a pending completion request.
// Approval settles the final leg and completes the task; denial reverts to
// IN_PROGRESS so the acceptor can re-request.
func (e *Engine) ConfirmCompletion(ctx context.Context, taskID, actorID string, approved bool) (*task.Task, error) {
	var (
		out     *task.Task
		receipt func()
	)
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.TaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if err := t.CanConfirmCompletion(actorID); err != nil {
			return err
		}
		if !approved {
			t.Status = task.StatusInProgress
			t.CompletionRequestedAt = nil
			if err := tx.UpdateTask(ctx, t); err != nil {
				return err
			}
			out = t
			receipt = func() {
				e.notify.TaskStatusChanged(taskID, task.StatusCompletionRequested, task.StatusInProgress)
			}
			return nil
		}
		rcpt, err := e.finishTask(ctx, tx, t, "Task commission (final 50%) - "+truncate(t.Content, 50))
		if err != nil {
			return err
		}
		out = t
		receipt = rcpt
		return nil
	})
	if err != nil {
		return nil, err
	}
	receipt()
	return out, nil
}

// ResolveOutcome lets the owner reclaim the frozen final leg instead of
// approving a pending completion request; the task ends FAILED. The initial
// leg stays with the acceptor.
func (e *Engine) ResolveOutcome(ctx context.Context, taskID, actorID string) (*task.Task, error) {
	var (
		out     *task.Task
		receipt func()
	)
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.TaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if err := t.CanConfirmCompletion(actorID); err != nil {
			return err
		}
		now := e.now()
		if t.FinalLeg > 0 {
			if err := e.settleLeg(ctx, tx, t.FinalLeg, EscrowAccountID, t.OwnerID,
				ledger.TypeRefund, "Task failed, final leg returned - "+truncate(t.Content, 50)); err != nil {
				return err
			}
		}
		t.Status = task.StatusFailed
		t.CompletionConfirmedAt = &now
		if err := tx.UpdateTask(ctx, t); err != nil {
			return err
		}
		out = t
		amt, owner := t.FinalLeg, t.OwnerID
		receipt = func() {
			if amt > 0 {
				metrics.SettlementLegs.WithLabelValues(string(LegRefund)).Inc()
				e.notify.SettlementCompleted(taskID, LegRefund, amt, EscrowAccountID, owner)
			}
			e.notify.TaskStatusChanged(taskID, task.StatusCompletionRequested, task.StatusFailed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	receipt()
	return out, nil
}

// AutoExpire refunds and expires one unclaimed task. Scheduler-only; a task
// someone accepted since the scan is reported as InvalidState and skipped by
// the job loop.
func (e *Engine) AutoExpire(ctx context.Context, taskID string) error {
	var receipt func()
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.TaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if !t.ExpiredBy(e.now()) {
			return task.ErrInvalidState
		}
		now := e.now()
		if t.Reward > 0 {
			if err := e.settleLeg(ctx, tx, t.Reward, EscrowAccountID, t.OwnerID,
				ledger.TypeRefund, "Task expired unclaimed after 30 days - "+truncate(t.Content, 50)); err != nil {
				return err
			}
		}
		t.Status = task.StatusExpired
		t.CompletionConfirmedAt = &now
		if err := tx.UpdateTask(ctx, t); err != nil {
			return err
		}
		amt, owner := t.Reward, t.OwnerID
		receipt = func() {
			if amt > 0 {
				metrics.SettlementLegs.WithLabelValues(string(LegRefund)).Inc()
				e.notify.SettlementCompleted(taskID, LegRefund, amt, EscrowAccountID, owner)
			}
			e.notify.TaskStatusChanged(taskID, task.StatusOpen, task.StatusExpired)
		}
		return nil
	})
	if err != nil {
		return err
	}
	receipt()
	return nil
}

// AutoRelease settles the final leg of a task whose completion request the
// owner ignored past the grace period. Money movement is identical to an
// explicit approval.
func (e *Engine) AutoRelease(ctx context.Context, taskID string) error {
	var receipt func()
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.TaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}
		if !t.AutoReleasableBy(e.now()) {
			return task.ErrInvalidState
		}
		rcpt, err := e.finishTask(ctx, tx, t, "Task commission (final 50%, auto-released after 7 days) - "+truncate(t.Content, 50))
		if err != nil {
			return err
		}
		receipt = rcpt
		return nil
	})
	if err != nil {
		return err
	}
	receipt()
	return nil
}

// finishTask settles the final leg and marks the task COMPLETED. Caller holds
// the task row lock and fires the returned receipt after commit.
func (e *Engine) finishTask(ctx context.Context, tx Tx, t *task.Task, desc string) (func(), error) {
	now := e.now()
	if t.FinalLeg > 0 && t.AcceptorID != nil {
		if err := e.settleLeg(ctx, tx, t.FinalLeg, EscrowAccountID, *t.AcceptorID,
			ledger.TypeReward, desc); err != nil {
			return nil, err
		}
		t.FinalPaidAt = &now
	}
	old := t.Status
	t.Status = task.StatusCompleted
	t.CompletionConfirmedAt = &now
	if err := tx.UpdateTask(ctx, t); err != nil {
		return nil, err
	}
	taskID, amt := t.ID, t.FinalLeg
	var acceptor string
	if t.AcceptorID != nil {
		acceptor = *t.AcceptorID
	}
	return func() {
		if amt > 0 && acceptor != "" {
			metrics.SettlementLegs.WithLabelValues(string(LegFinal)).Inc()
			e.notify.SettlementCompleted(taskID, LegFinal, amt, EscrowAccountID, acceptor)
		}
		e.notify.TaskStatusChanged(taskID, old, task.StatusCompleted)
	}, nil
}

// settleLeg moves amount from payer to payee and appends the COMPLETED ledger
// entry, all inside the caller's unit. A payer that cannot cover the amount
// does not fail the leg: the system account is substituted as payer, logged
// and metered, unless the amount exceeds the configured cap. The credit side
// always proceeds.
func (e *Engine) settleLeg(ctx context.Context, tx Tx, amount int64, payer, payee string, typ ledger.EntryType, desc string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	from, err := tx.AccountForUpdate(ctx, payer)
	if err != nil {
		return err
	}
	source := payer
	if from.Balance < amount && payer != SystemAccountID {
		if e.fallbackCap > 0 && amount > e.fallbackCap {
			return fmt.Errorf("%w: leg of %d exceeds fallback cap %d", ErrInsufficientFunds, amount, e.fallbackCap)
		}
		e.log.Warn().
			Str("payer", payer).
			Str("payee", payee).
			Int64("amount", amount).
			Int64("shortfall", amount-from.Balance).
			Msg("payer cannot cover settlement leg, system account substituted")
		metrics.FallbackPayouts.Inc()
		metrics.FallbackMinted.Add(float64(amount))
		source = SystemAccountID
	}
	if err := tx.AddBalance(ctx, source, -amount); err != nil {
		return err
	}
	if err := tx.AddBalance(ctx, payee, amount); err != nil {
		return err
	}
	now := e.now()
	src, dst := source, payee
	return tx.AppendEntry(ctx, &ledger.Entry{
		ID:          uuid.New().String(),
		Type:        typ,
		Amount:      amount,
		Status:      ledger.StatusCompleted,
		FromAccount: &src,
		ToAccount:   &dst,
		Description: desc,
		CreatedAt:   now,
		CompletedAt: &now,
	})
}

// Task returns one task.
func (e *Engine) Task(ctx context.Context, id string) (*task.Task, error) {
	return e.store.Task(ctx, id)
}

// ListTasks returns the most recent tasks.
func (e *Engine) ListTasks(ctx context.Context, limit int) ([]task.Task, error) {
	return e.store.ListTasks(ctx, limit)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
