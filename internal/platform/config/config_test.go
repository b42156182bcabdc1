package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "https://api.twilio.com", cfg.Twilio.APIBaseURL)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 30*time.Second, cfg.Session.TurnTimeout)
	assert.Equal(t, "receipt-acknowledgments", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.TransportConfigured())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("RECIBOS_SERVER_ADDR", ":9090")
	t.Setenv("RECIBOS_TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("RECIBOS_TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("RECIBOS_TWILIO_FROM", "whatsapp:+14155238886")
	t.Setenv("RECIBOS_SESSION_TTL", "5m")
	t.Setenv("RECIBOS_SESSION_TURN_TIMEOUT", "10s")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 10*time.Second, cfg.Session.TurnTimeout)
	assert.True(t, cfg.TransportConfigured())
}

func TestKafkaBrokersFromEnv(t *testing.T) {
	t.Setenv("RECIBOS_KAFKA_BROKERS", "a:9092, b:9092,a:9092")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}
