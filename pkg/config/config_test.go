package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "rental", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "kafka", cfg.Bus.Driver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Minute, cfg.Booking.PaymentTimeout)
	assert.Equal(t, "@every 2m", cfg.Booking.ExpirySchedule)
	assert.Equal(t, "ETH", cfg.Chain.Currency)
	assert.Equal(t, int32(18), cfg.Chain.Decimals)
	assert.Equal(t, "0.0001", cfg.Chain.AmountTolerance)
	assert.Equal(t, "booking_db", cfg.BookingDatabase.DBName)
	assert.Equal(t, "payment_db", cfg.PaymentDatabase.DBName)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BUS_DRIVER", "RabbitMQ")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("BOOKING_PAYMENT_TIMEOUT", "30m")
	t.Setenv("CHAIN_RPC_URL", "https://rpc.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "rabbitmq", cfg.Bus.Driver)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Minute, cfg.Booking.PaymentTimeout)
	assert.Equal(t, "https://rpc.example", cfg.Chain.RPCURL)
}

func TestLoadWithPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_PORT=9090\nBUS_DRIVER=none\n"), 0o600))

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "none", cfg.Bus.Driver)

	_, err = LoadWithPath(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			App:         AppConfig{Name: "rental", Environment: "development"},
			Server:      ServerConfig{Port: 8080},
			Bus:         BusConfig{Driver: "none"},
			ServiceAuth: ServiceAuthConfig{Secret: "s3cret"},
			Booking:     BookingConfig{PaymentTimeout: 15 * time.Minute},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "invalid server port"},
		{name: "unknown driver", mutate: func(c *Config) { c.Bus.Driver = "nats" }, wantErr: "unknown bus driver"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Bus.Driver = "kafka" }, wantErr: "KAFKA_BROKERS"},
		{name: "rabbit without url", mutate: func(c *Config) { c.Bus.Driver = "rabbitmq" }, wantErr: "RABBITMQ_URL"},
		{
			name: "default secret in production",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.ServiceAuth.Secret = defaultServiceSecret
			},
			wantErr: "must be changed in production",
		},
		{name: "zero payment timeout", mutate: func(c *Config) { c.Booking.PaymentTimeout = 0 }, wantErr: "payment timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "booking_db", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=booking_db sslmode=disable", d.DSN())
}
