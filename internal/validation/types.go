package validation

// InitiateRequest is the payload for POST /initiate-stk-push.
type InitiateRequest struct {
	PhoneNumber      string  `json:"phone_number" validate:"required"` // format checked by reconcile.Engine
	Amount           float64 `json:"amount" validate:"required,gte=1"` // truncated to whole shillings
	AccountReference string  `json:"account_reference,omitempty"`
	TransactionDesc  string  `json:"transaction_desc,omitempty"`
}

// StatusRequest is the payload for POST /check-transaction-status.
type StatusRequest struct {
	CheckoutRequestID string `json:"checkout_request_id" validate:"required"`
}

// ListQuery holds the GET /transactions filters.
type ListQuery struct {
	Limit       int    `form:"limit" validate:"omitempty,min=1"`
	Status      string `form:"status" validate:"omitempty,oneof=pending completed cancelled expired insufficient_funds failed"`
	PhoneNumber string `form:"phone_number" validate:"omitempty,msisdn"`
}
