package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-mpesa-stk-relay/internal/reconcile"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/transactions"
)

// StatusChecker runs the poll path for one transaction; *reconcile.Engine satisfies it.
type StatusChecker interface {
	CheckStatus(ctx context.Context, checkoutRequestID string) (*reconcile.StatusResult, error)
}

// Processor handles delayed reconcile poll jobs from SQS.
type Processor struct {
	checker StatusChecker
}

// NewProcessor creates a worker processor around the reconcile engine.
func NewProcessor(checker StatusChecker) *Processor {
	return &Processor{checker: checker}
}

// Handle processes a batch and reports the messages that should be redelivered.
// The function must be wired with ReportBatchItemFailures enabled on the event source mapping.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	log.Printf("[worker] received %d SQS messages", len(ev.Records))

	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			log.Printf("[worker] message %s failed: %v", rec.MessageId, err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var job reconcile.PollJob
	if err := json.Unmarshal([]byte(rec.Body), &job); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if job.CheckoutRequestID == "" {
		return errors.New("invalid message body: missing checkout_request_id")
	}

	if job.CorrelationID != "" {
		ctx = reconcile.WithCorrelationID(ctx, job.CorrelationID)
	}
	log.Printf("[worker] polling checkout=%s job=%s corr=%s", job.CheckoutRequestID, job.JobID, job.CorrelationID)

	res, err := p.checker.CheckStatus(ctx, job.CheckoutRequestID)
	switch {
	case errors.Is(err, transactions.ErrNotFound), errors.Is(err, reconcile.ErrMissingMerchantRequestID):
		// nothing a retry can fix
		log.Printf("[worker] dropping checkout=%s: %v", job.CheckoutRequestID, err)
		return nil
	case err != nil:
		// includes the gateway's "still processing" answer; SQS redelivers after the visibility timeout
		return fmt.Errorf("check status %s: %w", job.CheckoutRequestID, err)
	}

	if !res.Status.Terminal() {
		return fmt.Errorf("check status %s: still %s", job.CheckoutRequestID, res.Status)
	}
	if res.Source == reconcile.SourceStore {
		log.Printf("[worker] checkout=%s already reconciled by callback, status=%s", job.CheckoutRequestID, res.Status)
		return nil
	}
	log.Printf("[worker] checkout=%s polled, status=%s", job.CheckoutRequestID, res.Status)
	return nil
}
