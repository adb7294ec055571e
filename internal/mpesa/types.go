package mpesa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
)

// ResultCode is a Daraja result/response code. The gateway sends it as a JSON
// number in callbacks and as a quoted string in query responses.
type ResultCode int

// ResultCodeUnknown stands in for a code that is present but not numeric.
// It maps to a failed transaction.
const ResultCodeUnknown ResultCode = -1

func (c *ResultCode) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	raw := string(bytes.Trim(b, `"`))
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("[mpesa] non-numeric result code %q, treating as unknown", raw)
		*c = ResultCodeUnknown
		return nil
	}
	*c = ResultCode(n)
	return nil
}

// Int returns the code as a plain int, nil-safe.
func (c *ResultCode) Int() *int {
	if c == nil {
		return nil
	}
	v := int(*c)
	return &v
}

// PushRequest is the caller-facing input for an STK push.
type PushRequest struct {
	PhoneNumber      string
	Amount           int64
	AccountReference string
	TransactionDesc  string
}

// PushResult is the acknowledgment of an accepted push.
type PushResult struct {
	CheckoutRequestID   string
	MerchantRequestID   string
	ResponseDescription string
	CustomerMessage     string
}

// QueryResult is the raw outcome of an STK push query.
type QueryResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResultCode        ResultCode
	ResultDesc        string
}

// stkPushPayload is the body of /mpesa/stkpush/v1/processrequest.
type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorMessage        string `json:"errorMessage"`
}

// stkQueryPayload is the body of /mpesa/stkpushquery/v1/query.
type stkQueryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	MerchantRequestID   string      `json:"MerchantRequestID"`
	CheckoutRequestID   string      `json:"CheckoutRequestID"`
	ResponseCode        string      `json:"ResponseCode"`
	ResponseDescription string      `json:"ResponseDescription"`
	ResultCode          *ResultCode `json:"ResultCode"`
	ResultDesc          string      `json:"ResultDesc"`
	ErrorMessage        string      `json:"errorMessage"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// CallbackEnvelope is the body Daraja POSTs to CallBackURL.
type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        *ResultCode       `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem values are decoded with UseNumber, so numeric values arrive as json.Number.
type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

// DecodeCallback parses a callback body, keeping numbers exact.
func DecodeCallback(body []byte) (*CallbackEnvelope, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var env CallbackEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}
	return &env, nil
}
