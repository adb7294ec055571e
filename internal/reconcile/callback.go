package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/imrishuroy/go-mpesa-stk-relay/internal/mpesa"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/transactions"
)

// ApplyCallback records a gateway callback against its transaction.
// A body without a checkout request id yields ErrCallbackMalformed and no write.
func (e *Engine) ApplyCallback(ctx context.Context, body []byte) (transactions.Status, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCallbackMalformed, err)
	}
	env, err := mpesa.DecodeCallback(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCallbackMalformed, err)
	}

	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return "", ErrCallbackMalformed
	}

	fields := CallbackFields(cb, raw, e.nowFunc().UTC())
	if err := e.store.UpdateFields(ctx, cb.CheckoutRequestID, fields); err != nil {
		return "", fmt.Errorf("apply callback %s: %w", cb.CheckoutRequestID, err)
	}

	status := fields[transactions.AttrStatus].(transactions.Status)
	e.count(ctx, MetricCallbackReceived, map[string]string{"Status": string(status)})
	return status, nil
}

// CallbackFields builds the partial update for a callback. The same callback
// always produces the same terminal fields, so replays are harmless.
func CallbackFields(cb mpesa.StkCallback, raw map[string]interface{}, now time.Time) transactions.Fields {
	fields := transactions.Fields{
		transactions.AttrResultCode:        cb.ResultCode.Int(),
		transactions.AttrResultDescription: cb.ResultDesc,
		transactions.AttrCallbackReceived:  true,
		transactions.AttrCallbackAt:        now,
	}
	if raw != nil {
		fields[transactions.AttrRawCallback] = raw
	}

	if cb.ResultCode == nil || *cb.ResultCode != 0 {
		code := int(mpesa.ResultCodeUnknown)
		if cb.ResultCode != nil {
			code = int(*cb.ResultCode)
		}
		fields[transactions.AttrStatus] = CodeToStatus(code)
		return fields
	}

	fields[transactions.AttrStatus] = transactions.StatusCompleted
	if cb.CallbackMetadata == nil {
		return fields
	}
	for _, item := range cb.CallbackMetadata.Item {
		if item.Value == nil {
			continue
		}
		switch item.Name {
		case "Amount":
			f, err := toFloat(item.Value)
			if err != nil {
				log.Printf("[callback] %s: bad Amount %v: %v", cb.CheckoutRequestID, item.Value, err)
				continue
			}
			fields[transactions.AttrConfirmedAmount] = f
		case "MpesaReceiptNumber":
			fields[transactions.AttrMpesaReceiptNumber] = toString(item.Value)
		case "TransactionDate":
			fields[transactions.AttrTransactionDate] = toString(item.Value)
		case "PhoneNumber":
			fields[transactions.AttrConfirmedPhoneNumber] = phoneString(item.Value)
		}
	}
	return fields
}

func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Float64()
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// phoneString renders numeric phone values as integer digits (254722000000, not 2.54722e+11).
func phoneString(v interface{}) string {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return strconv.FormatInt(n, 10)
		}
		if f, err := x.Float64(); err == nil {
			return strconv.FormatInt(int64(f), 10)
		}
		return x.String()
	case float64:
		return strconv.FormatInt(int64(x), 10)
	default:
		return toString(v)
	}
}
