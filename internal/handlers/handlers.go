package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-mpesa-stk-relay/internal/idempotency"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/phone"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/reconcile"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/transactions"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/validation"
)

// IdempotencyStore guards POST /initiate-stk-push against client retries;
// *idempotency.Store satisfies it.
type IdempotencyStore interface {
	CreateIfNotExists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key, checkoutRequestID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// HandlerConfig groups dependencies for the relay routes.
type HandlerConfig struct {
	Engine      *reconcile.Engine
	Store       transactions.Store
	Idempotency IdempotencyStore // optional
	ServiceName string
}

// RegisterRoutes registers every relay endpoint on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	h := newHandler(cfg)

	r.Use(RequestID())

	r.GET("/health", h.health)
	r.POST("/initiate-stk-push", h.initiate)
	r.POST("/mpesa-callback", h.callback)
	r.POST("/check-transaction-status", h.checkStatus)
	r.GET("/transaction/:checkout_request_id", h.getTransaction)
	r.GET("/transactions", h.listTransactions)
}

type handler struct {
	cfg     HandlerConfig
	v       *validatorv10.Validate
	marshal func(v interface{}) ([]byte, error)
}

func newHandler(cfg HandlerConfig) *handler {
	return &handler{cfg: cfg, v: validation.New(), marshal: json.Marshal}
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": h.cfg.ServiceName})
}

func (h *handler) initiate(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.InitiateRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	idempKey := c.GetHeader("Idempotency-Key")
	if idempKey != "" && h.cfg.Idempotency != nil {
		created, err := h.cfg.Idempotency.CreateIfNotExists(ctx, idempKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, APIResponse{Message: "idempotency_check_failed", Detail: err.Error()})
			return
		}
		if !created {
			h.replay(c, idempKey)
			return
		}
	}

	tx, err := h.cfg.Engine.Initiate(ctx, reconcile.InitiateInput{
		PhoneNumber:      req.PhoneNumber,
		Amount:           req.Amount,
		AccountReference: req.AccountReference,
		TransactionDesc:  req.TransactionDesc,
	})
	if err != nil {
		if idempKey != "" && h.cfg.Idempotency != nil {
			if merr := h.cfg.Idempotency.MarkFailed(ctx, idempKey, err.Error()); merr != nil {
				log.Printf("[initiate] mark idempotency key failed: %v", merr)
			}
		}
		respondError(c, err)
		return
	}

	resp := APIResponse{
		Success: true,
		Message: "STK push request sent successfully",
		Data: gin.H{
			"checkout_request_id": tx.CheckoutRequestID,
			"merchant_request_id": tx.MerchantRequestID,
			"phone_number":        tx.PhoneNumber,
			"amount":              tx.Amount,
		},
	}

	if idempKey != "" && h.cfg.Idempotency != nil {
		body, err := h.marshal(resp)
		if err != nil {
			// the push went out; a retry gets 409 instead of a second prompt
			log.Printf("[initiate] encode response for idempotency key %s: %v", idempKey, err)
			if merr := h.cfg.Idempotency.MarkFailed(ctx, idempKey, "response not recorded: "+err.Error()); merr != nil {
				log.Printf("[initiate] mark idempotency key failed: %v", merr)
			}
		} else if err := h.cfg.Idempotency.MarkDone(ctx, idempKey, tx.CheckoutRequestID, string(body), http.StatusOK); err != nil {
			// the push went out; a retry will see IN_PROGRESS rather than a second prompt
			log.Printf("[initiate] mark idempotency key done: %v", err)
		}
	}

	c.JSON(http.StatusOK, resp)
}

// replay answers a duplicate Idempotency-Key from the stored record.
func (h *handler) replay(c *gin.Context, key string) {
	rec, err := h.cfg.Idempotency.Get(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{Message: "idempotency_check_failed", Detail: err.Error()})
		return
	}
	if rec == nil {
		// expired between the conditional put and this read
		c.JSON(http.StatusConflict, APIResponse{Message: "idempotency key is being reused, retry"})
		return
	}

	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" && json.Valid([]byte(rec.ResponseBody)) {
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, APIResponse{
			Success: true,
			Message: "STK push request sent successfully",
			Data:    gin.H{"checkout_request_id": rec.CheckoutRequestID},
		})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, APIResponse{Message: "request already in progress"})
	case idempotency.StatusFailed:
		c.JSON(http.StatusConflict, APIResponse{Message: "previous attempt failed, use a new Idempotency-Key", Detail: rec.Note})
	default:
		c.JSON(http.StatusInternalServerError, APIResponse{Message: "unknown_idempotency_status"})
	}
}

// callback always answers 200; the ack's ResultCode tells the gateway whether it stuck.
func (h *handler) callback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Printf("[callback] read body: %v", err)
		c.JSON(http.StatusOK, callbackAck{ResultCode: 1, ResultDesc: "Callback processing failed"})
		return
	}
	log.Printf("[callback] received: %s", body)

	status, err := h.cfg.Engine.ApplyCallback(c.Request.Context(), body)
	switch {
	case errors.Is(err, reconcile.ErrCallbackMalformed):
		log.Printf("[callback] rejected: %v", err)
		c.JSON(http.StatusOK, callbackAck{ResultCode: 1, ResultDesc: "Invalid callback data"})
	case err != nil:
		log.Printf("[callback] processing failed: %v", err)
		c.JSON(http.StatusOK, callbackAck{ResultCode: 1, ResultDesc: "Callback processing failed"})
	default:
		log.Printf("[callback] applied, status=%s", status)
		c.JSON(http.StatusOK, callbackAck{ResultCode: 0, ResultDesc: "Callback processed successfully"})
	}
}

func (h *handler) checkStatus(c *gin.Context) {
	var req validation.StatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}

	res, err := h.cfg.Engine.CheckStatus(c.Request.Context(), req.CheckoutRequestID)
	if err != nil {
		respondError(c, err)
		return
	}

	msg := "Transaction status retrieved from M-Pesa API"
	if res.Source == reconcile.SourceStore {
		msg = "Transaction status retrieved from database"
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: msg, Data: res})
}

func (h *handler) getTransaction(c *gin.Context) {
	tx, err := h.cfg.Store.Get(c.Request.Context(), c.Param("checkout_request_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Transaction retrieved successfully", Data: tx})
}

func (h *handler) listTransactions(c *gin.Context) {
	var q validation.ListQuery
	if err := validation.BindQueryAndValidate(c, &q, h.v); err != nil {
		return
	}

	f := transactions.Filter{
		Status: transactions.Status(q.Status),
		Limit:  q.Limit,
	}
	if q.PhoneNumber != "" {
		f.PhoneNumber = phone.Normalize(q.PhoneNumber)
	}

	txs, err := h.cfg.Store.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Retrieved %d transactions", len(txs)),
		Data:    gin.H{"transactions": txs},
	})
}
