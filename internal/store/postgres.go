package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appesso/taskpay/internal/escrow"
	"github.com/appesso/taskpay/internal/ledger"
	"github.com/appesso/taskpay/internal/task"
)

// Postgres implements escrow.Store on a pgx pool. Atomicity comes from one
// database transaction per unit; isolation between competing actors comes
// from SELECT ... FOR UPDATE on the task and account rows.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const taskColumns = `id, owner_id, acceptor_id, content, reward, initial_leg, final_leg, status,
	created_at, accepted_at, completion_requested_at, completion_confirmed_at, initial_paid_at, final_paid_at`

const entryColumns = `id, type, amount, status, from_account, to_account, description, created_at, completed_at`

func scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	err := row.Scan(&t.ID, &t.OwnerID, &t.AcceptorID, &t.Content, &t.Reward, &t.InitialLeg, &t.FinalLeg,
		&t.Status, &t.CreatedAt, &t.AcceptedAt, &t.CompletionRequestedAt, &t.CompletionConfirmedAt,
		&t.InitialPaidAt, &t.FinalPaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, escrow.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	err := row.Scan(&e.ID, &e.Type, &e.Amount, &e.Status, &e.FromAccount, &e.ToAccount,
		&e.Description, &e.CreatedAt, &e.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, escrow.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx escrow.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Task(ctx context.Context, id string) (*task.Task, error) {
	return scanTask(p.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

func (p *Postgres) ListTasks(ctx context.Context, limit int) ([]task.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (p *Postgres) OpenTasksBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return p.ids(ctx,
		`SELECT id FROM tasks WHERE status = $1 AND created_at < $2 ORDER BY created_at`,
		task.StatusOpen, cutoff)
}

func (p *Postgres) CompletionRequestedBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return p.ids(ctx,
		`SELECT id FROM tasks
		 WHERE status = $1 AND completion_requested_at <= $2 AND final_paid_at IS NULL
		 ORDER BY completion_requested_at`,
		task.StatusCompletionRequested, cutoff)
}

func (p *Postgres) PendingEntriesBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return p.ids(ctx,
		`SELECT id FROM ledger_entries
		 WHERE status = $1 AND type IN ($2, $3) AND created_at <= $4
		 ORDER BY created_at`,
		ledger.StatusPending, ledger.TypeDeposit, ledger.TypeWithdraw, cutoff)
}

func (p *Postgres) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *Postgres) Account(ctx context.Context, id string) (*escrow.Account, error) {
	var a escrow.Account
	err := p.pool.QueryRow(ctx,
		`SELECT id, balance, created_at FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.Balance, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, escrow.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *Postgres) EntriesFor(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
		 WHERE from_account = $1 OR to_account = $1 ORDER BY created_at`
	args := []any{accountID}
	if limit > 0 {
		query = `SELECT ` + entryColumns + ` FROM ledger_entries
			 WHERE from_account = $1 OR to_account = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, limit)
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) TaskForUpdate(ctx context.Context, id string) (*task.Task, error) {
	return scanTask(t.tx.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) InsertTask(ctx context.Context, tk *task.Task) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO tasks (id, owner_id, acceptor_id, content, reward, initial_leg, final_leg, status,
			created_at, accepted_at, completion_requested_at, completion_confirmed_at, initial_paid_at, final_paid_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		tk.ID, tk.OwnerID, tk.AcceptorID, tk.Content, tk.Reward, tk.InitialLeg, tk.FinalLeg, tk.Status,
		tk.CreatedAt, tk.AcceptedAt, tk.CompletionRequestedAt, tk.CompletionConfirmedAt, tk.InitialPaidAt, tk.FinalPaidAt)
	return err
}

func (t *pgTx) UpdateTask(ctx context.Context, tk *task.Task) error {
	res, err := t.tx.Exec(ctx,
		`UPDATE tasks SET acceptor_id = $2, status = $3, accepted_at = $4, completion_requested_at = $5,
			completion_confirmed_at = $6, initial_paid_at = $7, final_paid_at = $8,
			initial_leg = $9, final_leg = $10
		 WHERE id = $1`,
		tk.ID, tk.AcceptorID, tk.Status, tk.AcceptedAt, tk.CompletionRequestedAt,
		tk.CompletionConfirmedAt, tk.InitialPaidAt, tk.FinalPaidAt, tk.InitialLeg, tk.FinalLeg)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return escrow.ErrNotFound
	}
	return nil
}

func (t *pgTx) AccountForUpdate(ctx context.Context, id string) (*escrow.Account, error) {
	var a escrow.Account
	err := t.tx.QueryRow(ctx,
		`SELECT id, balance, created_at FROM accounts WHERE id = $1 FOR UPDATE`, id).
		Scan(&a.ID, &a.Balance, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, escrow.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *pgTx) InsertAccount(ctx context.Context, a *escrow.Account) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO accounts (id, balance, created_at) VALUES ($1, $2, $3)`,
		a.ID, a.Balance, a.CreatedAt)
	return err
}

func (t *pgTx) AddBalance(ctx context.Context, id string, delta int64) error {
	res, err := t.tx.Exec(ctx,
		`UPDATE accounts SET balance = balance + $2 WHERE id = $1`, id, delta)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return escrow.ErrNotFound
	}
	return nil
}

func (t *pgTx) SetBalance(ctx context.Context, id string, balance int64) error {
	res, err := t.tx.Exec(ctx,
		`UPDATE accounts SET balance = $2 WHERE id = $1`, id, balance)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return escrow.ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendEntry(ctx context.Context, e *ledger.Entry) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, type, amount, status, from_account, to_account, description, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.Type, e.Amount, e.Status, e.FromAccount, e.ToAccount, e.Description, e.CreatedAt, e.CompletedAt)
	return err
}

func (t *pgTx) EntryForUpdate(ctx context.Context, id string) (*ledger.Entry, error) {
	return scanEntry(t.tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) CompleteEntry(ctx context.Context, id string, at time.Time) error {
	res, err := t.tx.Exec(ctx,
		`UPDATE ledger_entries SET status = $2, completed_at = $3 WHERE id = $1 AND status = $4`,
		id, ledger.StatusCompleted, at, ledger.StatusPending)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return task.ErrInvalidState
	}
	return nil
}

func (t *pgTx) EntriesFor(ctx context.Context, accountID string) ([]ledger.Entry, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE from_account = $1 OR to_account = $1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
