package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table. One record
// guards one client-supplied Idempotency-Key on POST /initiate-stk-push.
type Record struct {
	IdempotencyKey    string    `dynamodbav:"idempotency_key"` // PK
	Status            string    `dynamodbav:"status"`
	CheckoutRequestID string    `dynamodbav:"checkout_request_id,omitempty"`
	ResponseBody      string    `dynamodbav:"response_body,omitempty"`
	ResponseStatus    int       `dynamodbav:"response_status,omitempty"` // e.g., 200
	CreatedAt         time.Time `dynamodbav:"created_at"`
	UpdatedAt         time.Time `dynamodbav:"updated_at"`
	ExpiresAt         int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note              string    `dynamodbav:"note,omitempty"`
}

// Expired reports whether the TTL has passed. DynamoDB deletes expired items
// lazily, so a read can still return them.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt > 0 && now.Unix() >= r.ExpiresAt
}
