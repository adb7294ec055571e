package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PollJob is the queue message asking a worker to poll one transaction.
type PollJob struct {
	JobID             string `json:"job_id"`
	CheckoutRequestID string `json:"checkout_request_id"`
	CorrelationID     string `json:"correlation_id,omitempty"`
}

// MessageSender publishes a message body after delay; *aws.Publisher satisfies it.
type MessageSender interface {
	SendMessage(ctx context.Context, body string, attributes map[string]string, delay time.Duration) error
}

// QueueScheduler turns SchedulePoll into a delayed queue message.
type QueueScheduler struct {
	sender MessageSender
	delay  time.Duration
}

func NewQueueScheduler(sender MessageSender, delay time.Duration) *QueueScheduler {
	return &QueueScheduler{sender: sender, delay: delay}
}

func (q *QueueScheduler) SchedulePoll(ctx context.Context, checkoutRequestID string) error {
	job := PollJob{
		JobID:             uuid.NewString(),
		CheckoutRequestID: checkoutRequestID,
		CorrelationID:     CorrelationID(ctx),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal poll job: %w", err)
	}
	attrs := map[string]string{
		"job_id":              job.JobID,
		"checkout_request_id": checkoutRequestID,
	}
	if job.CorrelationID != "" {
		attrs["correlation_id"] = job.CorrelationID
	}
	return q.sender.SendMessage(ctx, string(body), attrs, q.delay)
}

type correlationKey struct{}

// WithCorrelationID tags ctx with a request id that follows scheduled jobs.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id set by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
