package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"

	"github.com/imrishuroy/go-mpesa-stk-relay/internal/app"
	"github.com/imrishuroy/go-mpesa-stk-relay/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env file:", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	// the worker consumes poll jobs; it never schedules new ones
	cfg.ReconcileQueueURL = ""

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer func() {
		if err := a.Close(ctx); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	p := NewProcessor(a.Engine)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"job_id":"local-job-1","checkout_request_id":"ws_CO_local"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local-1", Body: testBody},
			},
		}
		resp, err := p.Handle(ctx, event)
		if err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		log.Printf("local run done, %d failures", len(resp.BatchItemFailures))
		return
	}

	lambda.Start(p.Handle)
}
