package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_BACKEND", "RECONCILE_DELAY", "MPESA_BASE_URL", "MPESA_HTTP_TIMEOUT", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendDynamoDB, cfg.StoreBackend)
	assert.Equal(t, "mpesa_transactions", cfg.TransactionsTable)
	assert.Equal(t, 60*time.Second, cfg.ReconcileDelay)
	assert.Equal(t, 48*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)

	assert.Equal(t, "https://api.safaricom.co.ke", cfg.Mpesa.BaseURL)
	assert.Equal(t, "5501736", cfg.Mpesa.ShortCode)
	assert.Equal(t, "4986750", cfg.Mpesa.PartyB)
	assert.Equal(t, "CustomerBuyGoodsOnline", cfg.Mpesa.TransactionType)
	assert.Equal(t, 30*time.Second, cfg.Mpesa.HTTPTimeout)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("RUN_LOCAL", "true")
	t.Setenv("STORE_BACKEND", "MongoDB")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("RECONCILE_DELAY", "2m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("MPESA_CONSUMER_KEY", "key")
	t.Setenv("MPESA_PASS_KEY", "pass")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.RunLocal)
	assert.Equal(t, BackendMongoDB, cfg.StoreBackend)
	assert.Equal(t, 2*time.Minute, cfg.ReconcileDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "key", cfg.Mpesa.ConsumerKey)
	assert.Equal(t, "pass", cfg.Mpesa.PassKey)
}

func TestLoad_MongoRequiresURI(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongodb")
	t.Setenv("MONGO_URI", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_UnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")

	_, err := Load()
	assert.ErrorContains(t, err, "postgres")
}
