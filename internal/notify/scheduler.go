package notify

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"onboard-backend/internal/store"
)

// Scheduler retries failed notification deliveries on a background interval.
type Scheduler struct {
	store    *store.Store
	notifier *Notifier
	ticker   *time.Ticker
	done     chan struct{}
}

func NewScheduler(s *store.Store, n *Notifier) *Scheduler {
	return &Scheduler{store: s, notifier: n}
}

// Start begins the background ticker for retrying notifications.
func (sc *Scheduler) Start() {
	sc.ticker = time.NewTicker(30 * time.Second)
	sc.done = make(chan struct{})
	go sc.run()
	log.Println("Notification scheduler started (30s interval)")
}

// Stop halts the background ticker.
func (sc *Scheduler) Stop() {
	if sc.ticker != nil {
		sc.ticker.Stop()
	}
	if sc.done != nil {
		close(sc.done)
	}
}

func (sc *Scheduler) run() {
	for {
		select {
		case <-sc.done:
			return
		case <-sc.ticker.C:
			sc.processRetries()
		}
	}
}

func (sc *Scheduler) processRetries() {
	ctx := context.Background()

	rows, err := store.QueryRows(ctx, sc.store.Pool,
		`SELECT id, recipient, subject, body, attempt, max_attempts
		 FROM _notification_logs
		 WHERE status = 'retrying' AND next_retry_at < NOW()
		 ORDER BY next_retry_at ASC
		 LIMIT 50`)
	if err != nil {
		log.Printf("ERROR: notification scheduler query failed: %v", err)
		return
	}

	for _, row := range rows {
		logID := fmt.Sprintf("%v", row["id"])
		recipient := fmt.Sprintf("%v", row["recipient"])
		subject := fmt.Sprintf("%v", row["subject"])
		body := fmt.Sprintf("%v", row["body"])
		attempt := toInt(row["attempt"]) + 1
		maxAttempts := toInt(row["max_attempts"])

		sc.notifier.deliver(logID, recipient, subject, body, attempt, maxAttempts)
	}
}

// retryBackoff computes the delay before the next attempt: 30s doubled per
// attempt already made.
func retryBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * 30 * time.Second
}

func toInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int32:
		return int(val)
	case int64:
		return int(val)
	case float64:
		return int(val)
	default:
		return 0
	}
}
