package alerts

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// Handlers below parse payloads and deliver in-app notifications. Delivery
// is currently a structured log line; a push gateway slots in here.

func handleSettlementReceipt(_ context.Context, t *asynq.Task) error {
	var p SettlementReceiptPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	log.Info().
		Str("task", p.TaskID).
		Str("leg", p.Leg).
		Int64("amount", p.Amount).
		Str("to", p.To).
		Msg("settlement receipt delivered")
	return nil
}

func handleStatusChange(_ context.Context, t *asynq.Task) error {
	var p StatusChangePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	log.Info().
		Str("task", p.TaskID).
		Str("old", string(p.Old)).
		Str("new", string(p.New)).
		Msg("task status change delivered")
	return nil
}
