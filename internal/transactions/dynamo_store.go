package transactions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-mpesa-stk-relay/internal/aws"
)

// DynamoStore keeps transactions in a DynamoDB table whose partition key is checkout_request_id.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoStore creates a DynamoStore bound to tableName.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Put writes a new transaction, guarded by attribute_not_exists on the key.
func (s *DynamoStore) Put(ctx context.Context, tx *Transaction) error {
	now := s.nowFunc().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	item, err := attributevalue.MarshalMap(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(checkout_request_id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches a transaction by checkout request id.
func (s *DynamoStore) Get(ctx context.Context, checkoutRequestID string) (*Transaction, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       keyOf(checkoutRequestID),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var tx Transaction
	if err := attributevalue.UnmarshalMap(out.Item, &tx); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// UpdateFields issues a single SET over the given attributes.
// Placeholders are #f0/:v0, #f1/:v1, ... in sorted attribute order.
func (s *DynamoStore) UpdateFields(ctx context.Context, checkoutRequestID string, fields Fields) error {
	names := make([]string, 0, len(fields)+1)
	for k := range fields {
		if k == AttrCheckoutRequestID {
			return fmt.Errorf("update fields: %s is immutable", AttrCheckoutRequestID)
		}
		names = append(names, k)
	}
	if _, ok := fields[AttrUpdatedAt]; !ok {
		names = append(names, AttrUpdatedAt)
	}
	sort.Strings(names)

	exprNames := make(map[string]string, len(names))
	exprValues := make(map[string]types.AttributeValue, len(names))
	sets := make([]string, 0, len(names))
	for i, name := range names {
		n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)

		var raw interface{} = fields[name]
		if name == AttrUpdatedAt && raw == nil {
			raw = s.nowFunc().UTC()
		}
		av, err := attributevalue.Marshal(raw)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", name, err)
		}
		exprNames[n] = name
		exprValues[v] = av
		sets = append(sets, n+" = "+v)
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       keyOf(checkoutRequestID),
		UpdateExpression:          awsString("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       awsString("attribute_exists(checkout_request_id)"),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// List scans the table with equality filters, then orders by created_at descending.
// The table has no secondary index, so filtering happens in the scan.
func (s *DynamoStore) List(ctx context.Context, f Filter) ([]Transaction, error) {
	limit := listLimit(f)

	input := &dyn.ScanInput{TableName: &s.tableName}
	var conds []string
	exprNames := map[string]string{}
	exprValues := map[string]types.AttributeValue{}
	if f.Status != "" {
		conds = append(conds, "#st = :st")
		exprNames["#st"] = AttrStatus
		exprValues[":st"] = &types.AttributeValueMemberS{Value: string(f.Status)}
	}
	if f.PhoneNumber != "" {
		conds = append(conds, "#ph = :ph")
		exprNames["#ph"] = AttrPhoneNumber
		exprValues[":ph"] = &types.AttributeValueMemberS{Value: f.PhoneNumber}
	}
	if len(conds) > 0 {
		input.FilterExpression = awsString(strings.Join(conds, " AND "))
		input.ExpressionAttributeNames = exprNames
		input.ExpressionAttributeValues = exprValues
	}

	out := []Transaction{}
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var batch []Transaction
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal transactions: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}

	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].ID = out[i].CheckoutRequestID
	}
	return out, nil
}

func keyOf(checkoutRequestID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrCheckoutRequestID: &types.AttributeValueMemberS{Value: checkoutRequestID},
	}
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func sortNewestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

func awsString(s string) *string { return &s }
