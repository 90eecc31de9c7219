package ledger

import "time"

// EntryType is the business reason for a money movement.
type EntryType string

const (
	TypeTransfer EntryType = "TRANSFER"
	TypeReward   EntryType = "REWARD"
	TypeRefund   EntryType = "REFUND"
	TypeDeposit  EntryType = "DEPOSIT"
	TypeWithdraw EntryType = "WITHDRAW"
)

// EntryStatus tracks settlement. A PENDING entry may be completed exactly
// once; a COMPLETED entry is immutable and can only be undone by a new
// compensating entry.
type EntryStatus string

const (
	StatusPending   EntryStatus = "PENDING"
	StatusCompleted EntryStatus = "COMPLETED"
)

// Entry is a single row in the ledger. Amounts are positive minor units
// (APE cents); direction comes from the source/destination accounts. A nil
// source is a pure credit, a nil destination a pure debit.
type Entry struct {
	ID          string      `json:"id"`
	Type        EntryType   `json:"type"`
	Amount      int64       `json:"amount"`
	Status      EntryStatus `json:"status"`
	FromAccount *string     `json:"from_account,omitempty"`
	ToAccount   *string     `json:"to_account,omitempty"`
	Description string      `json:"description"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Delta is the signed effect of the entry on the given account: +amount when
// the account is the destination, -amount when it is the source, 0 otherwise.
// Only COMPLETED entries count toward a balance.
func (e Entry) Delta(accountID string) int64 {
	if e.Status != StatusCompleted {
		return 0
	}
	var d int64
	if e.ToAccount != nil && *e.ToAccount == accountID {
		d += e.Amount
	}
	if e.FromAccount != nil && *e.FromAccount == accountID {
		d -= e.Amount
	}
	return d
}

// SumBalance folds a full entry history into the canonical balance for the
// account. The cached balance on the account row must always agree with this
// at commit boundaries.
func SumBalance(accountID string, entries []Entry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Delta(accountID)
	}
	return total
}
