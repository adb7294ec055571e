package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/imrishuroy/go-mpesa-stk-relay/internal/mpesa"
)

// Store backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendMongoDB  = "mongodb"
	BackendMemory   = "memory"
)

// Config is read once at startup and handed to every constructor.
type Config struct {
	Port        string
	RunLocal    bool
	ServiceName string

	StoreBackend      string
	TransactionsTable string
	IdempotencyTable  string
	IdempotencyTTL    time.Duration
	ReconcileQueueURL string
	ReconcileDelay    time.Duration
	MetricsNamespace  string

	MongoURI      string
	MongoDatabase string

	CORSAllowedOrigins []string

	Mpesa mpesa.Config
}

// Load reads the process environment. Missing gateway credentials are not an
// error here; the gateway client reports them per call.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := Config{
		Port:              v.GetString("port"),
		RunLocal:          v.GetBool("run_local"),
		ServiceName:       v.GetString("service_name"),
		StoreBackend:      strings.ToLower(v.GetString("store_backend")),
		TransactionsTable: v.GetString("transactions_table"),
		IdempotencyTable:  v.GetString("idempotency_table"),
		IdempotencyTTL:    v.GetDuration("idempotency_ttl"),
		ReconcileQueueURL: v.GetString("reconcile_queue_url"),
		ReconcileDelay:    v.GetDuration("reconcile_delay"),
		MetricsNamespace:  v.GetString("metrics_namespace"),
		MongoURI:          v.GetString("mongo_uri"),
		MongoDatabase:     v.GetString("mongo_database"),

		CORSAllowedOrigins: splitList(v.GetString("cors_allowed_origins")),

		Mpesa: mpesa.Config{
			BaseURL:          v.GetString("mpesa_base_url"),
			ConsumerKey:      v.GetString("mpesa_consumer_key"),
			ConsumerSecret:   v.GetString("mpesa_consumer_secret"),
			ShortCode:        v.GetString("mpesa_business_short_code"),
			PassKey:          v.GetString("mpesa_pass_key"),
			CallbackURL:      v.GetString("mpesa_callback_url"),
			PartyB:           v.GetString("mpesa_party_b"),
			TransactionType:  v.GetString("mpesa_transaction_type"),
			AccountReference: v.GetString("mpesa_account_reference"),
			TransactionDesc:  v.GetString("mpesa_transaction_desc"),
			HTTPTimeout:      v.GetDuration("mpesa_http_timeout"),
		},
	}

	switch cfg.StoreBackend {
	case BackendDynamoDB, BackendMemory:
	case BackendMongoDB:
		if cfg.MongoURI == "" {
			return cfg, fmt.Errorf("MONGO_URI is required for the %s backend", BackendMongoDB)
		}
	default:
		return cfg, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("run_local", false)
	v.SetDefault("service_name", "M-Pesa STK Push API")
	v.SetDefault("store_backend", BackendDynamoDB)
	v.SetDefault("transactions_table", "mpesa_transactions")
	v.SetDefault("idempotency_table", "")
	v.SetDefault("idempotency_ttl", "48h")
	v.SetDefault("reconcile_queue_url", "")
	v.SetDefault("reconcile_delay", "60s")
	v.SetDefault("metrics_namespace", "")
	v.SetDefault("mongo_uri", "")
	v.SetDefault("mongo_database", "mpesa")
	v.SetDefault("cors_allowed_origins", "*")

	v.SetDefault("mpesa_base_url", "https://api.safaricom.co.ke")
	v.SetDefault("mpesa_consumer_key", "")
	v.SetDefault("mpesa_consumer_secret", "")
	v.SetDefault("mpesa_business_short_code", "5501736")
	v.SetDefault("mpesa_pass_key", "")
	v.SetDefault("mpesa_callback_url", "")
	v.SetDefault("mpesa_party_b", "4986750")
	v.SetDefault("mpesa_transaction_type", "CustomerBuyGoodsOnline")
	v.SetDefault("mpesa_account_reference", "CompanyXYZ")
	v.SetDefault("mpesa_transaction_desc", "Payment for services")
	v.SetDefault("mpesa_http_timeout", "30s")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
