package db

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var Conn *pgxpool.Pool

// Init connects to Postgres and ensures the schema is in place.
func Init() {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_NAME"),
	)

	var err error
	Conn, err = pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}

	if err = Conn.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("unable to ping database")
	}

	log.Info().Msg("connected to Postgres")

	ensureUsersTable()
	ensureAccountsTable()
	ensureTasksTable()
	ensureLedgerTable()
	seedLedgerAccounts()
}

func ensureUsersTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			handle TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		log.Error().Err(err).Msg("failed to create users table")
	}
}

func ensureAccountsTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		log.Error().Err(err).Msg("failed to create accounts table")
	}
}

func ensureTasksTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id UUID PRIMARY KEY,
			owner_id TEXT NOT NULL REFERENCES accounts(id),
			acceptor_id TEXT NULL REFERENCES accounts(id),
			content TEXT NOT NULL,
			reward BIGINT NOT NULL CHECK (reward > 0),
			initial_leg BIGINT NOT NULL DEFAULT 0,
			final_leg BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL CHECK (status IN (
				'OPEN', 'IN_PROGRESS', 'COMPLETION_REQUESTED',
				'COMPLETED', 'FAILED', 'EXPIRED'
			)),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			accepted_at TIMESTAMP WITH TIME ZONE NULL,
			completion_requested_at TIMESTAMP WITH TIME ZONE NULL,
			completion_confirmed_at TIMESTAMP WITH TIME ZONE NULL,
			initial_paid_at TIMESTAMP WITH TIME ZONE NULL,
			final_paid_at TIMESTAMP WITH TIME ZONE NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks(status, created_at);
		CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);
		CREATE INDEX IF NOT EXISTS idx_tasks_release ON tasks(completion_requested_at)
			WHERE status = 'COMPLETION_REQUESTED' AND final_paid_at IS NULL;
	`)
	if err != nil {
		log.Error().Err(err).Msg("failed to create tasks table")
	}
}

func ensureLedgerTable() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id UUID PRIMARY KEY,
			type TEXT NOT NULL CHECK (type IN (
				'TRANSFER', 'REWARD', 'REFUND', 'DEPOSIT', 'WITHDRAW'
			)),
			amount BIGINT NOT NULL CHECK (amount > 0),
			status TEXT NOT NULL CHECK (status IN ('PENDING', 'COMPLETED')),
			from_account TEXT NULL REFERENCES accounts(id),
			to_account TEXT NULL REFERENCES accounts(id),
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP WITH TIME ZONE NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_from ON ledger_entries(from_account, created_at);
		CREATE INDEX IF NOT EXISTS idx_ledger_to ON ledger_entries(to_account, created_at);
		CREATE INDEX IF NOT EXISTS idx_ledger_pending ON ledger_entries(created_at)
			WHERE status = 'PENDING';
	`)
	if err != nil {
		log.Error().Err(err).Msg("failed to create ledger_entries table")
	}
}

// seedLedgerAccounts inserts the escrow pool and system accounts every
// transfer leg settles against. Idempotent.
func seedLedgerAccounts() {
	ctx := context.Background()
	_, err := Conn.Exec(ctx, `
		INSERT INTO accounts (id, balance) VALUES ('escrow', 0), ('system', 0)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		log.Error().Err(err).Msg("failed to seed ledger accounts")
	}
}
