package task

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a task post.
type Status string

const (
	StatusOpen                Status = "OPEN"
	StatusInProgress          Status = "IN_PROGRESS"
	StatusCompletionRequested Status = "COMPLETION_REQUESTED"
	StatusCompleted           Status = "COMPLETED"
	StatusFailed              Status = "FAILED"
	StatusExpired             Status = "EXPIRED"
)

// Terminal reports whether no further transition is legal from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// Deadlines enforced by the scheduled jobs.
const (
	// ExpireAfter is how long an unclaimed task stays OPEN before the
	// scheduler refunds and expires it.
	ExpireAfter = 30 * 24 * time.Hour
	// AutoReleaseAfter is how long a completion request may sit unconfirmed
	// before the scheduler releases the final leg on the owner's behalf.
	AutoReleaseAfter = 7 * 24 * time.Hour
)

// Guard errors. The escrow engine wraps these so HTTP handlers can map them
// to precise responses without inspecting task internals.
var (
	ErrInvalidState   = errors.New("transition not legal from current task status")
	ErrSelfAcceptance = errors.New("cannot accept your own task")
	ErrNotAcceptor    = errors.New("not the task acceptor")
	ErrNotOwner       = errors.New("not the task owner")
)

// Task is a paid unit of work posted by one account and claimable by another.
// Reward and the two leg amounts are minor units; the legs are frozen at
// acceptance and sum to the reward exactly.
type Task struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	AcceptorID  *string `json:"acceptor_id,omitempty"`
	Content     string  `json:"content"`
	Reward      int64   `json:"reward"`
	InitialLeg  int64   `json:"initial_leg"`
	FinalLeg    int64   `json:"final_leg"`
	Status      Status  `json:"status"`

	CreatedAt             time.Time  `json:"created_at"`
	AcceptedAt            *time.Time `json:"accepted_at,omitempty"`
	CompletionRequestedAt *time.Time `json:"completion_requested_at,omitempty"`
	CompletionConfirmedAt *time.Time `json:"completion_confirmed_at,omitempty"`
	InitialPaidAt         *time.Time `json:"initial_paid_at,omitempty"`
	FinalPaidAt           *time.Time `json:"final_paid_at,omitempty"`
}

// SplitReward fixes the 50/50 leg split under integer arithmetic. An odd
// remainder lands on the final leg, so initial+final == reward always.
func SplitReward(reward int64) (initial, final int64) {
	initial = reward / 2
	final = reward - initial
	return initial, final
}

// CanAccept validates the accept transition for the given actor.
func (t *Task) CanAccept(actorID string) error {
	if t.OwnerID == actorID {
		return ErrSelfAcceptance
	}
	if t.Status != StatusOpen {
		return ErrInvalidState
	}
	return nil
}

// CanRequestCompletion validates the completion request for the given actor.
func (t *Task) CanRequestCompletion(actorID string) error {
	if t.AcceptorID == nil || *t.AcceptorID != actorID {
		return ErrNotAcceptor
	}
	if t.Status != StatusInProgress {
		return ErrInvalidState
	}
	return nil
}

// CanConfirmCompletion validates approval/denial by the owner. The same guard
// covers the owner-side refund outcome, which is only legal while a
// completion request is pending.
func (t *Task) CanConfirmCompletion(actorID string) error {
	if t.OwnerID != actorID {
		return ErrNotOwner
	}
	if t.Status != StatusCompletionRequested {
		return ErrInvalidState
	}
	return nil
}

// ExpiredBy reports whether the scheduler may expire this task at now.
func (t *Task) ExpiredBy(now time.Time) bool {
	return t.Status == StatusOpen && now.Sub(t.CreatedAt) >= ExpireAfter
}

// AutoReleasableBy reports whether the scheduler may release the final leg
// at now. Requires a pending completion request older than the grace period
// with the final leg still unpaid.
func (t *Task) AutoReleasableBy(now time.Time) bool {
	return t.Status == StatusCompletionRequested &&
		t.CompletionRequestedAt != nil &&
		now.Sub(*t.CompletionRequestedAt) >= AutoReleaseAfter &&
		t.FinalPaidAt == nil
}
