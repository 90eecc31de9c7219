package escrow

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/appesso/taskpay/internal/ledger"
	"github.com/appesso/taskpay/internal/task"
)

// TransferDirect moves amount between two user accounts immediately. Unlike
// task legs there is no fallback: an underfunded sender is rejected.
func (e *Engine) TransferDirect(ctx context.Context, fromID, toID string, amount int64, note string) (*ledger.Entry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromID == toID {
		return nil, ErrSelfTransfer
	}
	if note == "" {
		note = "Transfer"
	}
	var out *ledger.Entry
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		// Lock accounts in a fixed order so two opposing transfers
		// cannot deadlock.
		first, second := fromID, toID
		if second < first {
			first, second = second, first
		}
		var from *Account
		for _, id := range []string{first, second} {
			acct, err := tx.AccountForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if id == fromID {
				from = acct
			}
		}
		if from.Balance < amount {
			return ErrInsufficientFunds
		}
		if err := tx.AddBalance(ctx, fromID, -amount); err != nil {
			return err
		}
		if err := tx.AddBalance(ctx, toID, amount); err != nil {
			return err
		}
		now := e.now()
		src, dst := fromID, toID
		entry := &ledger.Entry{
			ID:          uuid.New().String(),
			Type:        ledger.TypeTransfer,
			Amount:      amount,
			Status:      ledger.StatusCompleted,
			FromAccount: &src,
			ToAccount:   &dst,
			Description: note,
			CreatedAt:   now,
			CompletedAt: &now,
		}
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		out = entry
		return nil
	})
	return out, err
}

// Deposit records an inbound external-rail transfer as a PENDING entry. The
// balance moves only when the settlement job completes the entry, so a crash
// between the two steps is always recoverable from the ledger.
func (e *Engine) Deposit(ctx context.Context, accountID string, amount int64, note string) (*ledger.Entry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if note == "" {
		note = "Deposit APE"
	}
	var out *ledger.Entry
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.AccountForUpdate(ctx, accountID); err != nil {
			return err
		}
		dst := accountID
		entry := &ledger.Entry{
			ID:          uuid.New().String(),
			Type:        ledger.TypeDeposit,
			Amount:      amount,
			Status:      ledger.StatusPending,
			ToAccount:   &dst,
			Description: note,
			CreatedAt:   e.now(),
		}
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		out = entry
		return nil
	})
	return out, err
}

// Withdraw records an outbound external-rail transfer as a PENDING entry.
// The balance is checked now and again at settlement; the debit happens at
// settlement so the cache stays equal to the COMPLETED-entry fold.
func (e *Engine) Withdraw(ctx context.Context, accountID string, amount int64, note string) (*ledger.Entry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if note == "" {
		note = "Withdraw APE"
	}
	var out *ledger.Entry
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		acct, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if acct.Balance < amount {
			return ErrInsufficientFunds
		}
		src := accountID
		entry := &ledger.Entry{
			ID:          uuid.New().String(),
			Type:        ledger.TypeWithdraw,
			Amount:      amount,
			Status:      ledger.StatusPending,
			FromAccount: &src,
			Description: note,
			CreatedAt:   e.now(),
		}
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return err
		}
		out = entry
		return nil
	})
	return out, err
}

// SettlePendingEntry completes one PENDING DEPOSIT/WITHDRAW entry exactly
// once, applying its balance delta in the same unit. An already-completed
// entry reports InvalidState so re-runs are harmless. A withdrawal whose
// account no longer covers the amount is left PENDING for the next scan —
// entries are never silently reversed.
func (e *Engine) SettlePendingEntry(ctx context.Context, entryID string) error {
	return e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		entry, err := tx.EntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != ledger.StatusPending {
			return task.ErrInvalidState
		}
		switch entry.Type {
		case ledger.TypeDeposit:
			if entry.ToAccount == nil {
				return errors.New("pending deposit has no destination account")
			}
			if err := tx.AddBalance(ctx, *entry.ToAccount, entry.Amount); err != nil {
				return err
			}
		case ledger.TypeWithdraw:
			if entry.FromAccount == nil {
				return errors.New("pending withdrawal has no source account")
			}
			acct, err := tx.AccountForUpdate(ctx, *entry.FromAccount)
			if err != nil {
				return err
			}
			if acct.Balance < entry.Amount {
				e.log.Warn().
					Str("entry", entry.ID).
					Str("account", *entry.FromAccount).
					Int64("amount", entry.Amount).
					Int64("balance", acct.Balance).
					Msg("pending withdrawal underfunded, leaving for next scan")
				return ErrInsufficientFunds
			}
			if err := tx.AddBalance(ctx, *entry.FromAccount, -entry.Amount); err != nil {
				return err
			}
		default:
			return task.ErrInvalidState
		}
		return tx.CompleteEntry(ctx, entry.ID, e.now())
	})
}

// Balance returns the cached balance for an account.
func (e *Engine) Balance(ctx context.Context, accountID string) (*Account, error) {
	return e.store.Account(ctx, accountID)
}

// History returns the account's most recent ledger entries.
func (e *Engine) History(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error) {
	if _, err := e.store.Account(ctx, accountID); err != nil {
		return nil, err
	}
	return e.store.EntriesFor(ctx, accountID, limit)
}

// Reconciliation compares the cached balance with the ledger fold.
type Reconciliation struct {
	AccountID string `json:"account_id"`
	Stored    int64  `json:"stored"`
	Computed  int64  `json:"computed"`
	Drift     int64  `json:"drift"`
}

// Reconcile recomputes the account's balance from its full ledger history
// and reports any drift against the cache. Read-only.
func (e *Engine) Reconcile(ctx context.Context, accountID string) (*Reconciliation, error) {
	acct, err := e.store.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	entries, err := e.store.EntriesFor(ctx, accountID, 0)
	if err != nil {
		return nil, err
	}
	computed := ledger.SumBalance(accountID, entries)
	return &Reconciliation{
		AccountID: accountID,
		Stored:    acct.Balance,
		Computed:  computed,
		Drift:     acct.Balance - computed,
	}, nil
}

// ApplyCorrection overwrites the cache with the ledger fold, clamped to be
// non-negative. The system account is exempt from the clamp: its negative
// balance is the record of fallback-minted currency.
func (e *Engine) ApplyCorrection(ctx context.Context, accountID string) (*Reconciliation, error) {
	var out *Reconciliation
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		acct, err := tx.AccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		entries, err := tx.EntriesFor(ctx, accountID)
		if err != nil {
			return err
		}
		computed := ledger.SumBalance(accountID, entries)
		corrected := computed
		if corrected < 0 && accountID != SystemAccountID {
			corrected = 0
		}
		if err := tx.SetBalance(ctx, accountID, corrected); err != nil {
			return err
		}
		out = &Reconciliation{
			AccountID: accountID,
			Stored:    acct.Balance,
			Computed:  corrected,
			Drift:     acct.Balance - corrected,
		}
		if out.Drift != 0 {
			e.log.Warn().
				Str("account", accountID).
				Int64("stored", acct.Balance).
				Int64("computed", corrected).
				Msg("balance cache drift corrected")
		}
		return nil
	})
	return out, err
}
