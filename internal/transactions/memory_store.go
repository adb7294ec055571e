package transactions

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is a process-local Store used for RUN_LOCAL development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	items   map[string]Transaction
	nowFunc func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   map[string]Transaction{},
		nowFunc: time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[tx.CheckoutRequestID]; ok {
		return ErrAlreadyExists
	}
	now := s.nowFunc().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now
	s.items[tx.CheckoutRequestID] = *tx
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, checkoutRequestID string) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.items[checkoutRequestID]
	if !ok {
		return nil, ErrNotFound
	}
	return &tx, nil
}

func (s *MemoryStore) UpdateFields(ctx context.Context, checkoutRequestID string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.items[checkoutRequestID]
	if !ok {
		return ErrNotFound
	}
	if err := applyFields(&tx, fields); err != nil {
		return err
	}
	if _, ok := fields[AttrUpdatedAt]; !ok {
		tx.UpdatedAt = s.nowFunc().UTC()
	}
	s.items[checkoutRequestID] = tx
	return nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]Transaction, error) {
	s.mu.RLock()
	out := make([]Transaction, 0, len(s.items))
	for _, tx := range s.items {
		if f.Status != "" && tx.Status != f.Status {
			continue
		}
		if f.PhoneNumber != "" && tx.PhoneNumber != f.PhoneNumber {
			continue
		}
		tx.ID = tx.CheckoutRequestID
		out = append(out, tx)
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if limit := listLimit(f); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// applyFields sets struct fields from attribute names, mirroring what the
// document backends do server-side.
func applyFields(tx *Transaction, fields Fields) error {
	for name, v := range fields {
		var ok bool
		switch name {
		case AttrStatus:
			tx.Status, ok = v.(Status)
		case AttrPhoneNumber:
			tx.PhoneNumber, ok = v.(string)
		case AttrCallbackReceived:
			tx.CallbackReceived, ok = v.(bool)
		case AttrResultCode:
			tx.ResultCode, ok = v.(*int)
		case AttrResultDescription:
			tx.ResultDescription, ok = v.(string)
		case AttrQueryResultCode:
			tx.QueryResultCode, ok = v.(*int)
		case AttrQueryResultDescription:
			tx.QueryResultDescription, ok = v.(string)
		case AttrConfirmedAmount:
			var f float64
			f, ok = v.(float64)
			tx.ConfirmedAmount = &f
		case AttrMpesaReceiptNumber:
			tx.MpesaReceiptNumber, ok = v.(string)
		case AttrTransactionDate:
			tx.TransactionDate, ok = v.(string)
		case AttrConfirmedPhoneNumber:
			tx.ConfirmedPhoneNumber, ok = v.(string)
		case AttrRawCallback:
			tx.RawCallback, ok = v.(map[string]interface{})
		case AttrCallbackAt:
			var t time.Time
			t, ok = v.(time.Time)
			tx.CallbackAt = &t
		case AttrLastQueried:
			var t time.Time
			t, ok = v.(time.Time)
			tx.LastQueried = &t
		case AttrUpdatedAt:
			tx.UpdatedAt, ok = v.(time.Time)
		default:
			return fmt.Errorf("update fields: unsupported attribute %q", name)
		}
		if !ok {
			return fmt.Errorf("update fields: attribute %q has unexpected type %T", name, v)
		}
	}
	return nil
}
