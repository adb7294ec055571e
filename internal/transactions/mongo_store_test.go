package transactions

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("put duplicate returns ErrAlreadyExists", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, "mpesa_transactions")
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: mpesa_transactions index: _id_",
		}))

		err := store.Put(context.Background(), &Transaction{CheckoutRequestID: "ws_CO_1", Status: StatusPending, Amount: 1})
		if !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	mt.Run("put stamps timestamps", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, "mpesa_transactions")
		fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		store.nowFunc = func() time.Time { return fixed }
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		tx := &Transaction{CheckoutRequestID: "ws_CO_1", Status: StatusPending, Amount: 1}
		if err := store.Put(context.Background(), tx); err != nil {
			t.Fatalf("put: %v", err)
		}
		if !tx.CreatedAt.Equal(fixed) || !tx.UpdatedAt.Equal(fixed) {
			t.Fatalf("timestamps not stamped: %v %v", tx.CreatedAt, tx.UpdatedAt)
		}
	})

	mt.Run("update missing returns ErrNotFound", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, "mpesa_transactions")
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := store.UpdateFields(context.Background(), "ghost", Fields{AttrStatus: StatusFailed})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("update existing succeeds", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, "mpesa_transactions")
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		if err := store.UpdateFields(context.Background(), "ws_CO_1", Fields{AttrStatus: StatusCompleted}); err != nil {
			t.Fatalf("update: %v", err)
		}
	})

	mt.Run("update rejects key", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, "mpesa_transactions")
		if err := store.UpdateFields(context.Background(), "ws_CO_1", Fields{AttrCheckoutRequestID: "other"}); err == nil {
			t.Fatal("expected error when updating the key")
		}
	})

	mt.Run("get missing returns ErrNotFound", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, "mpesa_transactions")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "mpesa.mpesa_transactions", mtest.FirstBatch))

		if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("list sorts newest first and applies limit", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, "mpesa_transactions")
		base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "mpesa.mpesa_transactions", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "b"}, {Key: "status", Value: "completed"}, {Key: "created_at", Value: base.Add(time.Hour)}},
			bson.D{{Key: "_id", Value: "a"}, {Key: "status", Value: "completed"}, {Key: "created_at", Value: base}},
		))

		got, err := store.List(context.Background(), Filter{Status: StatusCompleted, Limit: 2})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 2 || got[0].CheckoutRequestID != "b" || got[0].ID != "b" {
			t.Fatalf("unexpected result: %v", ids(got))
		}

		cmd := mt.GetStartedEvent().Command
		sort, ok := cmd.Lookup("sort").DocumentOK()
		if !ok {
			t.Fatalf("find sent no sort: %v", cmd)
		}
		if dir, ok := sort.Lookup(AttrCreatedAt).AsInt64OK(); !ok || dir != -1 {
			t.Fatalf("expected created_at descending, got %v", sort)
		}
		if limit, ok := cmd.Lookup("limit").AsInt64OK(); !ok || limit != 2 {
			t.Fatalf("expected limit 2, got %v", cmd.Lookup("limit"))
		}
		filter := cmd.Lookup("filter").Document()
		if st, ok := filter.Lookup(AttrStatus).StringValueOK(); !ok || st != "completed" {
			t.Fatalf("expected status filter, got %v", filter)
		}
	})

	mt.Run("list clamps oversized limit", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, "mpesa_transactions")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "mpesa.mpesa_transactions", mtest.FirstBatch))

		if _, err := store.List(context.Background(), Filter{Limit: 500}); err != nil {
			t.Fatalf("list: %v", err)
		}
		if limit, ok := mt.GetStartedEvent().Command.Lookup("limit").AsInt64OK(); !ok || limit != MaxListLimit {
			t.Fatalf("expected limit %d, got %v", MaxListLimit, limit)
		}
	})

	mt.Run("list default limit", func(mt *mtest.T) {
		store := NewMongoStore(mt.DB, "mpesa_transactions")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "mpesa.mpesa_transactions", mtest.FirstBatch))

		got, err := store.List(context.Background(), Filter{})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty non-nil slice, got %v", got)
		}
		if limit, ok := mt.GetStartedEvent().Command.Lookup("limit").AsInt64OK(); !ok || limit != DefaultListLimit {
			t.Fatalf("expected default limit %d, got %v", DefaultListLimit, limit)
		}
	})
}
