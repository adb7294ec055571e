package aws

import (
	"context"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Clients hands out service clients built from one resolved AWS config.
// Each client is created on first use, so a deployment that only publishes
// metrics never constructs DynamoDB or SQS clients.
type Clients struct {
	cfg sdkaws.Config

	dynamoOnce sync.Once
	dynamo     DynamoDBAPI
	sqsOnce    sync.Once
	sqs        SQSAPI
	cwOnce     sync.Once
	cw         CloudWatchAPI
}

// NewClients wraps an already loaded config.
func NewClients(cfg sdkaws.Config) *Clients {
	return &Clients{cfg: cfg}
}

// LoadClients resolves the AWS config (see LoadAWSConfig) and wraps it.
func LoadClients(ctx context.Context) (*Clients, error) {
	cfg, err := LoadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewClients(cfg), nil
}

// Region is the region every client is bound to.
func (c *Clients) Region() string { return c.cfg.Region }

func (c *Clients) DynamoDB() DynamoDBAPI {
	c.dynamoOnce.Do(func() { c.dynamo = dynamodb.NewFromConfig(c.cfg) })
	return c.dynamo
}

func (c *Clients) SQS() SQSAPI {
	c.sqsOnce.Do(func() { c.sqs = sqs.NewFromConfig(c.cfg) })
	return c.sqs
}

func (c *Clients) CloudWatch() CloudWatchAPI {
	c.cwOnce.Do(func() { c.cw = cloudwatch.NewFromConfig(c.cfg) })
	return c.cw
}

// built reports which clients exist so far, for tests and startup logs.
func (c *Clients) built() (dynamo, queue, metrics bool) {
	return c.dynamo != nil, c.sqs != nil, c.cw != nil
}
