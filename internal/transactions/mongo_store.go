package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps transactions in a MongoDB collection, one document per
// checkout request id (stored as _id).
type MongoStore struct {
	col     *mongo.Collection
	nowFunc func() time.Time
}

// NewMongoStore returns a store over db.collection.
func NewMongoStore(db *mongo.Database, collection string) *MongoStore {
	return &MongoStore{
		col:     db.Collection(collection),
		nowFunc: time.Now,
	}
}

// EnsureIndexes creates the indexes List relies on. Safe to call on every start.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: AttrCreatedAt, Value: -1}}},
		{Keys: bson.D{{Key: AttrStatus, Value: 1}, {Key: AttrCreatedAt, Value: -1}}},
		{Keys: bson.D{{Key: AttrPhoneNumber, Value: 1}, {Key: AttrCreatedAt, Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Put(ctx context.Context, tx *Transaction) error {
	now := s.nowFunc().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	if _, err := s.col.InsertOne(ctx, tx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, checkoutRequestID string) (*Transaction, error) {
	var tx Transaction
	err := s.col.FindOne(ctx, bson.M{"_id": checkoutRequestID}).Decode(&tx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &tx, nil
}

func (s *MongoStore) UpdateFields(ctx context.Context, checkoutRequestID string, fields Fields) error {
	set := mongoSet(fields, s.nowFunc().UTC())
	if _, ok := set[AttrCheckoutRequestID]; ok {
		return fmt.Errorf("update fields: %s is immutable", AttrCheckoutRequestID)
	}

	res, err := s.col.UpdateOne(ctx, bson.M{"_id": checkoutRequestID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, f Filter) ([]Transaction, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: AttrCreatedAt, Value: -1}}).
		SetLimit(int64(listLimit(f)))

	cursor, err := s.col.Find(ctx, mongoFilter(f), opts)
	if err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}
	defer cursor.Close(ctx)

	out := []Transaction{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	for i := range out {
		out[i].ID = out[i].CheckoutRequestID
	}
	return out, nil
}

func mongoFilter(f Filter) bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter[AttrStatus] = string(f.Status)
	}
	if f.PhoneNumber != "" {
		filter[AttrPhoneNumber] = f.PhoneNumber
	}
	return filter
}

func mongoSet(fields Fields, now time.Time) bson.M {
	set := bson.M{AttrUpdatedAt: now}
	for k, v := range fields {
		set[k] = v
	}
	return set
}
