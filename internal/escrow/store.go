package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/appesso/taskpay/internal/ledger"
	"github.com/appesso/taskpay/internal/task"
)

// Well-known accounts. The escrow pool holds rewards between posting and
// settlement; the system account funds fallback payouts and bonuses, and is
// the only account allowed to go negative — its debt is the explicit record
// of minted currency.
const (
	EscrowAccountID = "escrow"
	SystemAccountID = "system"
)

// Account is a wallet balance. Balance is a cache over the COMPLETED ledger
// entries referencing the account; the ledger is the source of truth.
type Account struct {
	ID        string    `json:"id"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrSelfTransfer      = errors.New("cannot transfer to yourself")
)

// Tx is one atomic unit of work against the store. Implementations must give
// the usual ACID guarantees: everything done through a Tx commits together or
// not at all, and ForUpdate reads lock the row for the duration of the unit.
type Tx interface {
	TaskForUpdate(ctx context.Context, id string) (*task.Task, error)
	InsertTask(ctx context.Context, t *task.Task) error
	UpdateTask(ctx context.Context, t *task.Task) error

	AccountForUpdate(ctx context.Context, id string) (*Account, error)
	InsertAccount(ctx context.Context, a *Account) error
	AddBalance(ctx context.Context, id string, delta int64) error
	SetBalance(ctx context.Context, id string, balance int64) error

	AppendEntry(ctx context.Context, e *ledger.Entry) error
	EntryForUpdate(ctx context.Context, id string) (*ledger.Entry, error)
	// CompleteEntry flips a PENDING entry to COMPLETED exactly once; a
	// second attempt fails with task.ErrInvalidState.
	CompleteEntry(ctx context.Context, id string, at time.Time) error
	// EntriesFor returns the account's full history, oldest first.
	EntriesFor(ctx context.Context, accountID string) ([]ledger.Entry, error)
}

// Store is the persistence boundary of the settlement engine.
type Store interface {
	// InTx runs fn as a single atomic unit. Returning an error rolls the
	// whole unit back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Task(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context, limit int) ([]task.Task, error)
	// Job scans. IDs only: each hit is re-checked under lock in its own Tx
	// so a concurrent human action just makes the job skip the task.
	OpenTasksBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	CompletionRequestedBefore(ctx context.Context, cutoff time.Time) ([]string, error)
	PendingEntriesBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	Account(ctx context.Context, id string) (*Account, error)
	// EntriesFor returns up to limit entries, newest first; limit <= 0
	// returns everything.
	EntriesFor(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error)
}

// LegKind identifies which scheduled payment a settlement receipt is for.
type LegKind string

const (
	LegInitial LegKind = "initial"
	LegFinal   LegKind = "final"
	LegRefund  LegKind = "refund"
)

// Notifier receives post-commit side effects. Calls happen strictly after the
// financial transaction committed; failures are the notifier's problem and
// never roll money back.
type Notifier interface {
	SettlementCompleted(taskID string, leg LegKind, amount int64, from, to string)
	TaskStatusChanged(taskID string, oldStatus, newStatus task.Status)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) SettlementCompleted(string, LegKind, int64, string, string) {}
func (NopNotifier) TaskStatusChanged(string, task.Status, task.Status)         {}
