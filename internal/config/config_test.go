package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("PAYMENT_HASH_SECRET", "hash-secret")
}

// TestLoad_Defaults verifies that default values are used when env vars are missing.
func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 50056, cfg.GRPCPort)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 3*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, int64(1000000), cfg.Checkout.FreeShippingThreshold)
	assert.Equal(t, int64(30000), cfg.Checkout.FlatShippingFee)
	assert.Equal(t, 15*time.Minute, cfg.Payment.Expire)
	assert.Equal(t, "VND", cfg.Payment.Currency)
	assert.Equal(t, "order-events", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Redis.Addr)
}

// TestLoad_EnvVars verifies that environment variables override defaults.
func TestLoad_EnvVars(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("STORAGE_TIMEOUT", "750ms")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("FREE_SHIPPING_THRESHOLD", "500000")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 750*time.Millisecond, cfg.Storage.Timeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, int64(500000), cfg.Checkout.FreeShippingThreshold)
	assert.Equal(t, "hash-secret", cfg.Payment.HashSecret)
}

// TestLoad_File verifies that values are loaded from a .env file.
func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
JWT_SECRET=file-jwt
PAYMENT_HASH_SECRET=file-hash
DB_HOST=db.internal
DB_NAME=orders
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), content, 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "file-jwt", cfg.JWTSecret)
	creds := cfg.Database.Credentials()
	assert.Equal(t, "db.internal", creds.Host)
	assert.Equal(t, "orders", creds.DBName)
	assert.Equal(t, 5432, creds.Port)
}

// TestLoad_ValidationFailure verifies that missing required fields return an error.
func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PAYMENT_HASH_SECRET", "")

	cfg, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "missing required configuration")
}

func TestLoad_UnknownDriver(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_DRIVER", "sqlite")

	_, err := Load(t.TempDir())
	assert.ErrorContains(t, err, "STORAGE_DRIVER")
}
