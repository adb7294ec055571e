package transactions

import "time"

// Status is the canonical lifecycle state of a transaction.
type Status string

const (
	StatusPending           Status = "pending"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusExpired           Status = "expired"
	StatusInsufficientFunds Status = "insufficient_funds"
	StatusFailed            Status = "failed"
)

// Terminal reports whether s is one of the final states.
func (s Status) Terminal() bool {
	return s != StatusPending && s != ""
}

// Attribute names shared by every backend.
const (
	AttrCheckoutRequestID      = "checkout_request_id"
	AttrPhoneNumber            = "phone_number"
	AttrStatus                 = "status"
	AttrCallbackReceived       = "callback_received"
	AttrResultCode             = "result_code"
	AttrResultDescription      = "result_description"
	AttrQueryResultCode        = "query_result_code"
	AttrQueryResultDescription = "query_result_description"
	AttrConfirmedAmount        = "confirmed_amount"
	AttrMpesaReceiptNumber     = "mpesa_receipt_number"
	AttrTransactionDate        = "transaction_date"
	AttrConfirmedPhoneNumber   = "confirmed_phone_number"
	AttrRawCallback            = "raw_callback"
	AttrCreatedAt              = "created_at"
	AttrCallbackAt             = "callback_timestamp"
	AttrLastQueried            = "last_queried"
	AttrUpdatedAt              = "updated_at"
)

// Transaction is one STK push attempt, keyed by the gateway's checkout request id.
// The Mongo backend stores the key as _id, mirroring a document id.
type Transaction struct {
	ID                string `dynamodbav:"-" bson:"-" json:"id,omitempty"`                            // set on list results only
	CheckoutRequestID string `dynamodbav:"checkout_request_id" bson:"_id" json:"checkout_request_id"` // PK
	MerchantRequestID string `dynamodbav:"merchant_request_id" bson:"merchant_request_id" json:"merchant_request_id"`
	PhoneNumber       string `dynamodbav:"phone_number" bson:"phone_number" json:"phone_number"`
	Amount            int64  `dynamodbav:"amount" bson:"amount" json:"amount"`
	Status            Status `dynamodbav:"status" bson:"status" json:"status"`
	AccountReference  string `dynamodbav:"account_reference,omitempty" bson:"account_reference,omitempty" json:"account_reference,omitempty"`
	TransactionDesc   string `dynamodbav:"transaction_desc,omitempty" bson:"transaction_desc,omitempty" json:"transaction_desc,omitempty"`

	CallbackReceived  bool   `dynamodbav:"callback_received" bson:"callback_received" json:"callback_received"`
	ResultCode        *int   `dynamodbav:"result_code,omitempty" bson:"result_code,omitempty" json:"result_code,omitempty"`
	ResultDescription string `dynamodbav:"result_description,omitempty" bson:"result_description,omitempty" json:"result_description,omitempty"`

	QueryResultCode        *int   `dynamodbav:"query_result_code,omitempty" bson:"query_result_code,omitempty" json:"query_result_code,omitempty"`
	QueryResultDescription string `dynamodbav:"query_result_description,omitempty" bson:"query_result_description,omitempty" json:"query_result_description,omitempty"`

	// populated from successful callback metadata only
	ConfirmedAmount      *float64 `dynamodbav:"confirmed_amount,omitempty" bson:"confirmed_amount,omitempty" json:"confirmed_amount,omitempty"`
	MpesaReceiptNumber   string   `dynamodbav:"mpesa_receipt_number,omitempty" bson:"mpesa_receipt_number,omitempty" json:"mpesa_receipt_number,omitempty"`
	TransactionDate      string   `dynamodbav:"transaction_date,omitempty" bson:"transaction_date,omitempty" json:"transaction_date,omitempty"`
	ConfirmedPhoneNumber string   `dynamodbav:"confirmed_phone_number,omitempty" bson:"confirmed_phone_number,omitempty" json:"confirmed_phone_number,omitempty"`

	RawCallback map[string]interface{} `dynamodbav:"raw_callback,omitempty" bson:"raw_callback,omitempty" json:"raw_callback,omitempty"`

	CreatedAt   time.Time  `dynamodbav:"created_at" bson:"created_at" json:"created_at"`
	CallbackAt  *time.Time `dynamodbav:"callback_timestamp,omitempty" bson:"callback_timestamp,omitempty" json:"callback_timestamp,omitempty"`
	LastQueried *time.Time `dynamodbav:"last_queried,omitempty" bson:"last_queried,omitempty" json:"last_queried,omitempty"`
	UpdatedAt   time.Time  `dynamodbav:"updated_at" bson:"updated_at" json:"updated_at"`
}

// Filter narrows List results. Empty fields are ignored.
type Filter struct {
	Status      Status
	PhoneNumber string
	Limit       int
}

// DefaultListLimit applies when Filter.Limit is zero. Larger limits are
// clamped to MaxListLimit.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

func listLimit(f Filter) int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}
