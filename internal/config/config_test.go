package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("LEDGER_MAX_RETRIES", "")

	cfg := Load()
	assert.Equal(t, ":8084", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Ledger.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Ledger.LockTTL)
	assert.Equal(t, "agencyId", cfg.Auth.AgencyClaim)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LEDGER_MAX_RETRIES", "7")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg := Load()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 7, cfg.Ledger.MaxRetries)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}
