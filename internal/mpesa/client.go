package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	authPath  = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	// TimestampLayout is the YYYYMMDDHHMMSS format Daraja expects.
	TimestampLayout = "20060102150405"

	maxResponseBytes = 1 << 20
)

// eat is East Africa Time; Daraja validates timestamps against Nairobi local time.
var eat = time.FixedZone("EAT", 3*60*60)

// Config holds the gateway credentials and defaults. It is built once by the
// caller and handed to NewClient.
type Config struct {
	BaseURL          string
	ConsumerKey      string
	ConsumerSecret   string
	ShortCode        string
	PassKey          string
	CallbackURL      string
	PartyB           string
	TransactionType  string
	AccountReference string // used when a push request leaves it empty
	TransactionDesc  string // used when a push request leaves it empty
	HTTPTimeout      time.Duration
}

// Client talks to the Daraja STK push API.
type Client struct {
	cfg     Config
	http    *http.Client
	nowFunc func() time.Time
}

// NewClient returns a Client. A nil httpClient gets one with cfg.HTTPTimeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		nowFunc: time.Now,
	}
}

// AccessToken exchanges the consumer key/secret for a bearer token.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	const op = "access token"
	if c.cfg.ConsumerKey == "" || c.cfg.ConsumerSecret == "" {
		return "", newError(KindAuth, op, "M-Pesa credentials not configured", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+authPath, nil)
	if err != nil {
		return "", newError(KindAuth, op, "", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", newError(KindAuth, op, "", fmt.Errorf("error getting access token: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", newError(KindAuth, op, "", fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", newError(KindAuth, op, upstreamMessage(resp, body), nil)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", newError(KindAuth, op, "", fmt.Errorf("decode token: %w", err))
	}
	if tok.AccessToken == "" {
		return "", newError(KindAuth, op, "Failed to get access token from M-Pesa", nil)
	}
	return tok.AccessToken, nil
}

// Password returns base64(shortcode + passkey + timestamp).
func (c *Client) Password(timestamp string) (string, error) {
	if c.cfg.PassKey == "" {
		return "", newError(KindConfiguration, "password", "M-Pesa Pass Key not configured", nil)
	}
	raw := c.cfg.ShortCode + c.cfg.PassKey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw)), nil
}

// Timestamp formats the current Nairobi time for a signed request.
func (c *Client) Timestamp() string {
	return c.nowFunc().In(eat).Format(TimestampLayout)
}

// InitiatePush sends an STK push prompt to the customer's phone.
func (c *Client) InitiatePush(ctx context.Context, in PushRequest) (*PushResult, error) {
	const op = "stk push"
	ts := c.Timestamp()
	password, err := c.Password(ts)
	if err != nil {
		return nil, err
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	accountRef := in.AccountReference
	if accountRef == "" {
		accountRef = c.cfg.AccountReference
	}
	desc := in.TransactionDesc
	if desc == "" {
		desc = c.cfg.TransactionDesc
	}

	payload := stkPushPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         ts,
		TransactionType:   c.cfg.TransactionType,
		Amount:            in.Amount,
		PartyA:            in.PhoneNumber,
		PartyB:            c.cfg.PartyB,
		PhoneNumber:       in.PhoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  accountRef,
		TransactionDesc:   desc,
	}

	var out stkPushResponse
	if err := c.postJSON(ctx, op, pushPath, token, payload, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" {
		msg := out.ErrorMessage
		if msg == "" {
			msg = out.ResponseDescription
		}
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, newError(KindRejected, op, msg, nil)
	}

	return &PushResult{
		CheckoutRequestID:   out.CheckoutRequestID,
		MerchantRequestID:   out.MerchantRequestID,
		ResponseDescription: out.ResponseDescription,
		CustomerMessage:     out.CustomerMessage,
	}, nil
}

// QueryStatus asks the gateway for the outcome of a push.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*QueryResult, error) {
	const op = "stk query"
	ts := c.Timestamp()
	password, err := c.Password(ts)
	if err != nil {
		return nil, err
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := stkQueryPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}

	var out stkQueryResponse
	if err := c.postJSON(ctx, op, queryPath, token, payload, &out); err != nil {
		return nil, err
	}
	if out.ResultCode == nil {
		msg := out.ErrorMessage
		if msg == "" {
			msg = out.ResponseDescription
		}
		if msg == "" {
			msg = "query response has no ResultCode"
		}
		return nil, newError(KindRejected, op, msg, nil)
	}

	return &QueryResult{
		CheckoutRequestID: out.CheckoutRequestID,
		MerchantRequestID: out.MerchantRequestID,
		ResultCode:        *out.ResultCode,
		ResultDesc:        out.ResultDesc,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, op, path, token string, payload, out interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return newError(KindUnreachable, op, "", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return newError(KindUnreachable, op, "", fmt.Errorf("failed to communicate with M-Pesa API: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return newError(KindUnreachable, op, "", fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return newError(KindRejected, op, upstreamMessage(resp, body), nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return newError(KindRejected, op, "", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// upstreamMessage prefers Daraja's errorMessage and falls back to the HTTP status.
func upstreamMessage(resp *http.Response, body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.ErrorMessage != "" {
		return e.ErrorMessage
	}
	return fmt.Sprintf("unexpected status %s", resp.Status)
}
