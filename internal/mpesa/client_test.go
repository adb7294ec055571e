package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		ConsumerKey:      "key",
		ConsumerSecret:   "secret",
		ShortCode:        "174379",
		PassKey:          "passkey",
		CallbackURL:      "https://relay.example.com/mpesa-callback",
		PartyB:           "4986750",
		TransactionType:  "CustomerBuyGoodsOnline",
		AccountReference: "CompanyXYZ",
		TransactionDesc:  "Payment for services",
	}
}

// gateway fakes the three Daraja endpoints; push and query reply with the given handlers.
func gateway(t *testing.T, push, query http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123", "expires_in": "3599"})
	})
	if push != nil {
		mux.HandleFunc(pushPath, push)
	}
	if query != nil {
		mux.HandleFunc(queryPath, query)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPassword(t *testing.T) {
	c := NewClient(testConfig("http://unused"), nil)
	got, err := c.Password("20240101120000")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(got)
	require.NoError(t, err)
	assert.Equal(t, "174379passkey20240101120000", string(raw))
}

func TestPassword_MissingPassKey(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.PassKey = ""
	_, err := NewClient(cfg, nil).Password("20240101120000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestTimestamp_UsesNairobiTime(t *testing.T) {
	c := NewClient(testConfig("http://unused"), nil)
	c.nowFunc = func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }
	assert.Equal(t, "20240101120000", c.Timestamp())
}

func TestAccessToken_Unconfigured(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.ConsumerSecret = ""
	_, err := NewClient(cfg, nil).AccessToken(context.Background())
	assert.True(t, errors.Is(err, ErrAuth))
}

func TestAccessToken_UpstreamFailure(t *testing.T) {
	srv := gateway(t, nil, nil)
	cfg := testConfig(srv.URL)
	cfg.ConsumerSecret = "wrong"
	_, err := NewClient(cfg, srv.Client()).AccessToken(context.Background())
	assert.True(t, errors.Is(err, ErrAuth))
}

func TestInitiatePush_Success(t *testing.T) {
	var got stkPushPayload
	srv := gateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"MerchantRequestID":   "29115-34620561-1",
			"CheckoutRequestID":   "ws_CO_191220191020363925",
			"ResponseCode":        "0",
			"ResponseDescription": "Success. Request accepted for processing",
			"CustomerMessage":     "Success. Request accepted for processing",
		})
	}, nil)

	c := NewClient(testConfig(srv.URL), srv.Client())
	res, err := c.InitiatePush(context.Background(), PushRequest{PhoneNumber: "254722000000", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", res.CheckoutRequestID)
	assert.Equal(t, "29115-34620561-1", res.MerchantRequestID)

	assert.Equal(t, "254722000000", got.PartyA)
	assert.Equal(t, "254722000000", got.PhoneNumber)
	assert.Equal(t, "4986750", got.PartyB)
	assert.Equal(t, int64(100), got.Amount)
	assert.Equal(t, "CompanyXYZ", got.AccountReference)
	assert.Equal(t, "Payment for services", got.TransactionDesc)
	assert.Len(t, got.Timestamp, len(TimestampLayout))
}

func TestInitiatePush_RejectedCarriesUpstreamMessage(t *testing.T) {
	srv := gateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"requestId":    "1234-5678",
			"errorCode":    "400.002.02",
			"errorMessage": "Bad Request - Invalid PhoneNumber",
		})
	}, nil)

	_, err := NewClient(testConfig(srv.URL), srv.Client()).
		InitiatePush(context.Background(), PushRequest{PhoneNumber: "254722000000", Amount: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "Bad Request - Invalid PhoneNumber", gwErr.Message)
}

func TestInitiatePush_NonZeroResponseCode(t *testing.T) {
	srv := gateway(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"ResponseCode": "1", "ResponseDescription": "Rejected"})
	}, nil)

	_, err := NewClient(testConfig(srv.URL), srv.Client()).
		InitiatePush(context.Background(), PushRequest{PhoneNumber: "254722000000", Amount: 1})
	assert.True(t, errors.Is(err, ErrRejected))
}

func TestInitiatePush_Unreachable(t *testing.T) {
	srv := gateway(t, func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer does not support hijacking")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Error(err)
			return
		}
		_ = conn.Close()
	}, nil)

	_, err := NewClient(testConfig(srv.URL), srv.Client()).
		InitiatePush(context.Background(), PushRequest{PhoneNumber: "254722000000", Amount: 1})
	assert.True(t, errors.Is(err, ErrUnreachable))
}

func TestInitiatePush_MissingPassKeyFailsBeforeNetwork(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.PassKey = ""
	_, err := NewClient(cfg, nil).InitiatePush(context.Background(), PushRequest{PhoneNumber: "254722000000", Amount: 1})
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestQueryStatus_StringResultCode(t *testing.T) {
	srv := gateway(t, nil, func(w http.ResponseWriter, r *http.Request) {
		var p stkQueryPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "ws_CO_1", p.CheckoutRequestID)
		_, _ = w.Write([]byte(`{"ResponseCode":"0","ResponseDescription":"The service request has been accepted successsfully","MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_1","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`))
	})

	res, err := NewClient(testConfig(srv.URL), srv.Client()).QueryStatus(context.Background(), "ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, ResultCode(1032), res.ResultCode)
	assert.Equal(t, "Request cancelled by user", res.ResultDesc)
}

func TestQueryStatus_StillProcessing(t *testing.T) {
	srv := gateway(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"requestId":"r-1","errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`))
	})

	_, err := NewClient(testConfig(srv.URL), srv.Client()).QueryStatus(context.Background(), "ws_CO_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "The transaction is being processed")
}

func TestDecodeCallback_NumericValuesStayExact(t *testing.T) {
	body := []byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok",
		"CallbackMetadata":{"Item":[{"Name":"PhoneNumber","Value":254722000000},{"Name":"Balance"}]}}}}`)
	env, err := DecodeCallback(body)
	require.NoError(t, err)

	cb := env.Body.StkCallback
	require.NotNil(t, cb.ResultCode)
	assert.Equal(t, 0, *cb.ResultCode.Int())
	require.Len(t, cb.CallbackMetadata.Item, 2)
	assert.Equal(t, json.Number("254722000000"), cb.CallbackMetadata.Item[0].Value)
	assert.Nil(t, cb.CallbackMetadata.Item[1].Value)
}

func TestDecodeCallback_NonNumericResultCode(t *testing.T) {
	body := []byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":"abc","ResultDesc":"garbled"}}}`)
	env, err := DecodeCallback(body)
	require.NoError(t, err)

	cb := env.Body.StkCallback
	require.NotNil(t, cb.ResultCode)
	assert.Equal(t, ResultCodeUnknown, *cb.ResultCode)
	assert.Equal(t, "ws_CO_1", cb.CheckoutRequestID)
}
