package idempotency

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a very small in-memory mock for PutItem/GetItem/UpdateItem used in unit tests.
// It only understands the expressions Store emits.
type simpleMock struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	putCalls    int
	getCalls    int
	updateCalls int
	failWith    error
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func keyFrom(m map[string]types.AttributeValue) (string, error) {
	keyAttr, ok := m["idempotency_key"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing key")
	}
	return keyAttr.Value, nil
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	k, err := keyFrom(params.Item)
	if err != nil {
		return nil, err
	}
	if existing, ok := m.table[k]; ok && params.ConditionExpression != nil &&
		strings.HasPrefix(*params.ConditionExpression, "attribute_not_exists(idempotency_key)") {
		// "... OR expires_at < :now" lets an expired record be replaced
		expired := false
		if nowAttr, ok := params.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN); ok {
			if exp, ok := existing["expires_at"].(*types.AttributeValueMemberN); ok {
				e, _ := strconv.ParseInt(exp.Value, 10, 64)
				n, _ := strconv.ParseInt(nowAttr.Value, 10, 64)
				expired = e < n
			}
		}
		if !expired {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	k, err := keyFrom(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	k, err := keyFrom(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return nil, errors.New("item not found")
	}
	// placeholder -> attribute, for the fixed SET lists MarkDone/MarkFailed use
	attrs := map[string]string{
		":done": "status", ":failed": "status",
		":cid": "checkout_request_id", ":rb": "response_body", ":rs": "response_status",
		":n": "note", ":ua": "updated_at",
	}
	for placeholder, attr := range attrs {
		if v, ok := params.ExpressionAttributeValues[placeholder]; ok {
			item[attr] = v
		}
	}
	m.table[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *simpleMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return nil, errors.New("scan not supported on the idempotency table")
}
