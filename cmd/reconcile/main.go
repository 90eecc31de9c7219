package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/appesso/taskpay/internal/db"
	"github.com/appesso/taskpay/internal/escrow"
	"github.com/appesso/taskpay/internal/store"
)

// Ops tool: audit cached balances against the ledger, optionally rewriting
// any that drifted.
func main() {
	account := flag.String("account", "", "account id to reconcile (default: all accounts)")
	apply := flag.Bool("apply", false, "rewrite drifted balances from the ledger")
	flag.Parse()

	_ = godotenv.Load()

	// Initialize DB from environment variables
	db.Init()

	engine := escrow.New(store.NewPostgres(db.Conn), nil, escrow.Config{})
	ctx := context.Background()

	ids := []string{*account}
	if *account == "" {
		var err error
		ids, err = allAccountIDs(ctx)
		if err != nil {
			log.Fatalf("failed to list accounts: %v", err)
		}
	}

	drifted := 0
	for _, id := range ids {
		var rep *escrow.Reconciliation
		var err error
		if *apply {
			rep, err = engine.ApplyCorrection(ctx, id)
		} else {
			rep, err = engine.Reconcile(ctx, id)
		}
		if err != nil {
			log.Fatalf("reconcile %s: %v", id, err)
		}
		if rep.Drift == 0 {
			continue
		}
		drifted++
		verb := "drifted"
		if *apply {
			verb = "corrected"
		}
		fmt.Printf("%s: %s stored=%d computed=%d drift=%d\n", rep.AccountID, verb, rep.Stored, rep.Computed, rep.Drift)
	}

	fmt.Printf("checked %d accounts, %d drifted\n", len(ids), drifted)
}

func allAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := db.Conn.Query(ctx, `SELECT id FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
