package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/imrishuroy/go-mpesa-stk-relay/internal/mpesa"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/phone"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/transactions"
)

var (
	// ErrInvalidAmount is returned when the whole-unit amount is not positive.
	ErrInvalidAmount = errors.New("amount must be greater than 0")
	// ErrCallbackMalformed marks a callback without a checkout request id or with an undecodable body.
	ErrCallbackMalformed = errors.New("invalid callback data")
	// ErrMissingMerchantRequestID blocks a poll for a record that never got a merchant id.
	ErrMissingMerchantRequestID = errors.New("merchant request ID not found for this transaction")
)

// Gateway is what the engine needs from the payment gateway; *mpesa.Client satisfies it.
type Gateway interface {
	InitiatePush(ctx context.Context, in mpesa.PushRequest) (*mpesa.PushResult, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResult, error)
}

// Scheduler enqueues a deferred status poll for a freshly created transaction.
type Scheduler interface {
	SchedulePoll(ctx context.Context, checkoutRequestID string) error
}

// Metrics records counters; implementations must not fail the caller.
type Metrics interface {
	Count(ctx context.Context, name string, dims map[string]string)
}

// Metric names.
const (
	MetricPushInitiated    = "StkPushInitiated"
	MetricCallbackReceived = "CallbackReceived"
	MetricStatusPolled     = "StatusPolled"
)

// Engine owns the transaction lifecycle: creation on push, completion on
// callback and refresh on poll.
type Engine struct {
	store     transactions.Store
	gateway   Gateway
	scheduler Scheduler
	metrics   Metrics
	nowFunc   func() time.Time
}

// Option configures optional collaborators.
type Option func(*Engine)

func WithScheduler(s Scheduler) Option { return func(e *Engine) { e.scheduler = s } }

func WithMetrics(m Metrics) Option { return func(e *Engine) { e.metrics = m } }

// NewEngine wires the engine to a store and gateway.
func NewEngine(store transactions.Store, gateway Gateway, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		gateway: gateway,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CodeToStatus maps a gateway result code onto the canonical status.
func CodeToStatus(code int) transactions.Status {
	switch code {
	case 0:
		return transactions.StatusCompleted
	case 1:
		return transactions.StatusInsufficientFunds
	case 1031, 1032:
		return transactions.StatusCancelled
	case 1037:
		return transactions.StatusExpired
	default:
		return transactions.StatusFailed
	}
}

// InitiateInput is a push request as received from a client.
type InitiateInput struct {
	PhoneNumber      string
	Amount           float64 // truncated to whole units
	AccountReference string
	TransactionDesc  string
}

// Initiate normalizes the input, sends the push and records a pending transaction.
func (e *Engine) Initiate(ctx context.Context, in InitiateInput) (*transactions.Transaction, error) {
	msisdn, err := phone.Parse(in.PhoneNumber)
	if err != nil {
		return nil, err
	}
	amount := int64(in.Amount)
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	res, err := e.gateway.InitiatePush(ctx, mpesa.PushRequest{
		PhoneNumber:      msisdn,
		Amount:           amount,
		AccountReference: in.AccountReference,
		TransactionDesc:  in.TransactionDesc,
	})
	if err != nil {
		return nil, err
	}

	tx := &transactions.Transaction{
		CheckoutRequestID: res.CheckoutRequestID,
		MerchantRequestID: res.MerchantRequestID,
		PhoneNumber:       msisdn,
		Amount:            amount,
		Status:            transactions.StatusPending,
		AccountReference:  in.AccountReference,
		TransactionDesc:   in.TransactionDesc,
		CreatedAt:         e.nowFunc().UTC(),
	}
	if err := e.store.Put(ctx, tx); err != nil {
		return nil, fmt.Errorf("store transaction %s: %w", tx.CheckoutRequestID, err)
	}

	if e.scheduler != nil {
		if err := e.scheduler.SchedulePoll(ctx, tx.CheckoutRequestID); err != nil {
			// the client can still poll manually
			log.Printf("[initiate] schedule poll for %s failed: %v", tx.CheckoutRequestID, err)
		}
	}
	e.count(ctx, MetricPushInitiated, nil)
	return tx, nil
}

// Source tells where a status answer came from.
type Source string

const (
	SourceStore   Source = "database"
	SourceGateway Source = "gateway"
)

// StatusResult is the answer to a status check.
type StatusResult struct {
	Source            Source              `json:"-"`
	CheckoutRequestID string              `json:"checkout_request_id"`
	Status            transactions.Status `json:"status"`
	ResultCode        *int                `json:"result_code"`
	ResultDescription string              `json:"result_description"`
	ReceiptNumber     string              `json:"receipt_number,omitempty"`
	Amount            float64             `json:"amount"`
	PhoneNumber       string              `json:"phone_number"`
	TransactionDate   string              `json:"transaction_date,omitempty"`
}

// CheckStatus applies the poll rule: a record that already got its callback is
// answered from the store; otherwise the gateway is queried and the result persisted.
func (e *Engine) CheckStatus(ctx context.Context, checkoutRequestID string) (*StatusResult, error) {
	tx, err := e.store.Get(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}

	if tx.CallbackReceived {
		return storedResult(tx), nil
	}
	if tx.MerchantRequestID == "" {
		return nil, ErrMissingMerchantRequestID
	}

	q, err := e.gateway.QueryStatus(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}

	code := int(q.ResultCode)
	status := CodeToStatus(code)
	err = e.store.UpdateFields(ctx, checkoutRequestID, transactions.Fields{
		transactions.AttrQueryResultCode:        &code,
		transactions.AttrQueryResultDescription: q.ResultDesc,
		transactions.AttrStatus:                 status,
		transactions.AttrLastQueried:            e.nowFunc().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("store poll result %s: %w", checkoutRequestID, err)
	}
	e.count(ctx, MetricStatusPolled, map[string]string{"Status": string(status)})

	return &StatusResult{
		Source:            SourceGateway,
		CheckoutRequestID: checkoutRequestID,
		Status:            status,
		ResultCode:        &code,
		ResultDescription: q.ResultDesc,
		Amount:            float64(tx.Amount),
		PhoneNumber:       tx.PhoneNumber,
	}, nil
}

func storedResult(tx *transactions.Transaction) *StatusResult {
	r := &StatusResult{
		Source:            SourceStore,
		CheckoutRequestID: tx.CheckoutRequestID,
		Status:            tx.Status,
		ResultCode:        tx.ResultCode,
		ResultDescription: tx.ResultDescription,
		ReceiptNumber:     tx.MpesaReceiptNumber,
		Amount:            float64(tx.Amount),
		PhoneNumber:       tx.PhoneNumber,
		TransactionDate:   tx.TransactionDate,
	}
	if tx.ConfirmedAmount != nil {
		r.Amount = *tx.ConfirmedAmount
	}
	if tx.ConfirmedPhoneNumber != "" {
		r.PhoneNumber = tx.ConfirmedPhoneNumber
	}
	return r
}

func (e *Engine) count(ctx context.Context, name string, dims map[string]string) {
	if e.metrics != nil {
		e.metrics.Count(ctx, name, dims)
	}
}
