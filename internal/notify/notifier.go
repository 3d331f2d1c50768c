// Package notify turns domain events into email notifications.
//
// Delivery is best-effort and asynchronous: every message is first written to
// the _notification_logs outbox, then sent in the background. A failed send
// never fails the request that produced the event; the scheduler retries it.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"onboard-backend/internal/assign"
	"onboard-backend/internal/store"
)

// Event names recorded in the outbox.
const (
	EventFormAssigned      = "form.assigned"
	EventSubmissionCreated = "submission.created"
)

// Mailer sends a single email.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Notifier records and dispatches notifications for domain events.
type Notifier struct {
	store  *store.Store
	mailer Mailer
}

func New(s *store.Store, mailer Mailer) *Notifier {
	return &Notifier{store: s, mailer: mailer}
}

// FormAssigned notifies every user in the resolved audience that a form has
// been assigned to them.
func (n *Notifier) FormAssigned(ctx context.Context, formName string, users []assign.Identity) {
	subject := fmt.Sprintf("New form assigned: %s", formName)
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		body := fmt.Sprintf(
			"Hello,\n\nThe form %q has been assigned to you. Please log in and complete it.\n",
			formName)
		n.enqueue(ctx, EventFormAssigned, u.Email, subject, body)
	}
}

// SubmissionCreated notifies the reviewers that a new submission arrived.
func (n *Notifier) SubmissionCreated(ctx context.Context, formName, submitterEmail string, reviewers []assign.Identity) {
	subject := fmt.Sprintf("New submission for %s", formName)
	for _, r := range reviewers {
		if r.Email == "" {
			continue
		}
		body := fmt.Sprintf(
			"Hello,\n\n%s submitted a response to the form %q.\n",
			submitterEmail, formName)
		n.enqueue(ctx, EventSubmissionCreated, r.Email, subject, body)
	}
}

// enqueue writes the message to the outbox and kicks off a background send.
// Outbox write failures are logged and dropped; notifications are not worth
// failing the request for.
func (n *Notifier) enqueue(ctx context.Context, event, recipient, subject, body string) {
	row, err := store.QueryRow(ctx, n.store.Pool,
		`INSERT INTO _notification_logs (event, recipient, subject, body)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		event, recipient, subject, body)
	if err != nil {
		log.Printf("ERROR: enqueue notification %s to %s: %v", event, recipient, err)
		return
	}
	logID := fmt.Sprintf("%v", row["id"])

	go n.deliver(logID, recipient, subject, body, 1, 5)
}

// deliver attempts one send and updates the outbox row accordingly.
func (n *Notifier) deliver(logID, recipient, subject, body string, attempt, maxAttempts int) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := n.mailer.Send(ctx, recipient, subject, body)
	if err == nil {
		_, uerr := store.Exec(ctx, n.store.Pool,
			`UPDATE _notification_logs
			 SET status = 'sent', attempt = $1, error = NULL, updated_at = NOW()
			 WHERE id = $2`, attempt, logID)
		if uerr != nil {
			log.Printf("ERROR: mark notification %s sent: %v", logID, uerr)
		}
		return
	}

	status := "retrying"
	var nextRetry *time.Time
	if attempt >= maxAttempts {
		status = "failed"
		log.Printf("ERROR: notification %s to %s exhausted after %d attempts: %v",
			logID, recipient, attempt, err)
	} else {
		t := time.Now().Add(retryBackoff(attempt))
		nextRetry = &t
		log.Printf("WARN: notification %s to %s failed (attempt %d/%d): %v",
			logID, recipient, attempt, maxAttempts, err)
	}

	_, uerr := store.Exec(ctx, n.store.Pool,
		`UPDATE _notification_logs
		 SET status = $1, attempt = $2, error = $3, next_retry_at = $4, updated_at = NOW()
		 WHERE id = $5`,
		status, attempt, err.Error(), nextRetry, logID)
	if uerr != nil {
		log.Printf("ERROR: record notification failure %s: %v", logID, uerr)
	}
}
