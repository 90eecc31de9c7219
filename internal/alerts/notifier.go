package alerts

import (
	"encoding/json"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/appesso/taskpay/internal/escrow"
	"github.com/appesso/taskpay/internal/task"
)

var (
	client *asynq.Client
	server *asynq.Server
)

// Init starts the Asynq server and initializes a shared client.
func Init() {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}

	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client = asynq.NewClient(opts)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskSettlementReceipt, handleSettlementReceipt)
	mux.HandleFunc(TaskStatusChange, handleStatusChange)

	server = asynq.NewServer(opts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"receipts": 10,
			"status":   5,
		},
	})
	go func() {
		if err := server.Run(mux); err != nil {
			log.Error().Err(err).Msg("asynq server stopped")
		}
	}()

	log.Info().Str("addr", redisAddr).Msg("asynq initialized")
}

// Close releases the client and stops the server.
func Close() {
	if client != nil {
		_ = client.Close()
	}
	if server != nil {
		server.Shutdown()
	}
}

// Notifier delivers settlement receipts and status changes through the
// Asynq queue. Implements escrow.Notifier; called after the settlement
// transaction commits, so delivery is best effort and failures only log.
type Notifier struct{}

func (Notifier) SettlementCompleted(taskID string, leg escrow.LegKind, amount int64, from, to string) {
	payload := SettlementReceiptPayload{
		TaskID: taskID,
		Leg:    string(leg),
		Amount: amount,
		From:   from,
		To:     to,
		SentAt: time.Now(),
	}
	enqueue(TaskSettlementReceipt, "receipts", payload)
}

func (Notifier) TaskStatusChanged(taskID string, old, new task.Status) {
	payload := StatusChangePayload{
		TaskID: taskID,
		Old:    old,
		New:    new,
		SentAt: time.Now(),
	}
	enqueue(TaskStatusChange, "status", payload)
}

func enqueue(typ, queue string, payload any) {
	if client == nil {
		log.Warn().Str("type", typ).Msg("alerts not initialized, dropping notification")
		return
	}
	b, _ := json.Marshal(payload)
	if _, err := client.Enqueue(asynq.NewTask(typ, b), asynq.Queue(queue)); err != nil {
		log.Error().Err(err).Str("type", typ).Msg("failed to enqueue notification")
	}
}
