package app

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/imrishuroy/go-mpesa-stk-relay/internal/aws"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/config"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/handlers"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/idempotency"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/mpesa"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/reconcile"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/transactions"
)

// App holds the wired components shared by cmd/api and cmd/worker.
type App struct {
	Config      config.Config
	Store       transactions.Store
	Engine      *reconcile.Engine
	Idempotency *idempotency.Store // nil unless IDEMPOTENCY_TABLE is set

	closers []func(context.Context) error
}

// New builds the store, gateway client and engine described by cfg.
// The AWS config is loaded only when a component needs AWS, and each service
// client is built only for the component that uses it.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{Config: cfg}

	var clients *aws.Clients
	awsClients := func() (*aws.Clients, error) {
		if clients != nil {
			return clients, nil
		}
		c, err := aws.LoadClients(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to init aws clients: %w", err)
		}
		clients = c
		return clients, nil
	}

	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		c, err := awsClients()
		if err != nil {
			return nil, err
		}
		a.Store = transactions.NewDynamoStore(c.DynamoDB(), cfg.TransactionsTable)
	case config.BackendMongoDB:
		store, err := a.connectMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.Store = store
	case config.BackendMemory:
		log.Printf("[app] using in-memory transaction store; data is lost on restart")
		a.Store = transactions.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	var opts []reconcile.Option
	if cfg.ReconcileQueueURL != "" {
		c, err := awsClients()
		if err != nil {
			return nil, err
		}
		publisher := aws.NewPublisher(c.SQS(), cfg.ReconcileQueueURL)
		opts = append(opts, reconcile.WithScheduler(reconcile.NewQueueScheduler(publisher, cfg.ReconcileDelay)))
	}
	if cfg.MetricsNamespace != "" {
		c, err := awsClients()
		if err != nil {
			return nil, err
		}
		opts = append(opts, reconcile.WithMetrics(aws.NewMetrics(c.CloudWatch(), cfg.MetricsNamespace)))
	}
	if cfg.IdempotencyTable != "" {
		c, err := awsClients()
		if err != nil {
			return nil, err
		}
		a.Idempotency = idempotency.NewStore(c.DynamoDB(), cfg.IdempotencyTable, cfg.IdempotencyTTL)
	}

	gateway := mpesa.NewClient(cfg.Mpesa, nil)
	a.Engine = reconcile.NewEngine(a.Store, gateway, opts...)
	return a, nil
}

func (a *App) connectMongo(ctx context.Context, cfg config.Config) (*transactions.MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	a.closers = append(a.closers, client.Disconnect)

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	store := transactions.NewMongoStore(client.Database(cfg.MongoDatabase), cfg.TransactionsTable)
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// HandlerConfig returns the dependencies the HTTP routes need.
func (a *App) HandlerConfig() handlers.HandlerConfig {
	hc := handlers.HandlerConfig{
		Engine:      a.Engine,
		Store:       a.Store,
		ServiceName: a.Config.ServiceName,
	}
	// keep the interface nil rather than a typed nil pointer
	if a.Idempotency != nil {
		hc.Idempotency = a.Idempotency
	}
	return hc
}

// Close releases connections opened by New.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
