package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-light/internal/broker"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	unsetEnv(t, "BROKER_DRIVER", "TRAFFIC_LIGHT_CHANNEL", "SUBSCRIPTION_BUFFER", "CORS_ALLOWED_ORIGINS",
		"SHUTDOWN_TIMEOUT_SEC", "WS_PING_PERIOD_SEC", "WS_PONG_WAIT_SEC", "PUBLISH_RATE_LIMIT")

	cfg := FromEnv()
	assert.Equal(t, broker.DriverRedis, cfg.BrokerDriver)
	assert.Equal(t, "traffic-light-channel", cfg.TrafficLightTopic)
	assert.Equal(t, 16, cfg.SubscriptionBuffer)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	require.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("BROKER_DRIVER", "NATS")
	t.Setenv("SUBSCRIPTION_BUFFER", "64")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.local, http://b.local,")
	t.Setenv("PUBLISH_RATE_LIMIT", "2.5")
	t.Setenv("WS_PONG_WAIT_SEC", "20")
	t.Setenv("WS_PING_PERIOD_SEC", "15")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := FromEnv()
	assert.Equal(t, broker.DriverNATS, cfg.BrokerDriver)
	assert.Equal(t, 64, cfg.SubscriptionBuffer)
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 2.5, cfg.PublishRateLimit)
	assert.Equal(t, 20*time.Second, cfg.WSPongWait)
	assert.Equal(t, 0, cfg.RedisDB)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			BrokerDriver:       broker.DriverMemory,
			TrafficLightTopic:  "traffic-light-channel",
			SubscriptionBuffer: 16,
			WSPingPeriod:       30 * time.Second,
			WSPongWait:         60 * time.Second,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.BrokerDriver = "kafka" }, "BROKER_DRIVER"},
		{"zero buffer", func(c *Config) { c.SubscriptionBuffer = 0 }, "SUBSCRIPTION_BUFFER"},
		{"empty topic", func(c *Config) { c.TrafficLightTopic = " " }, "TRAFFIC_LIGHT_CHANNEL"},
		{"negative rate", func(c *Config) { c.PublishRateLimit = -1 }, "PUBLISH_RATE_LIMIT"},
		{"unknown rate backend", func(c *Config) { c.PublishRateBackend = "etcd" }, "PUBLISH_RATE_LIMIT_BACKEND"},
		{"ping after pong deadline", func(c *Config) { c.WSPingPeriod = c.WSPongWait }, "WS_PING_PERIOD_SEC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestBrokerConfig(t *testing.T) {
	cfg := &Config{
		BrokerDriver:       broker.DriverRedis,
		SubscriptionBuffer: 8,
		RedisHost:          "cache",
		RedisPort:          "6380",
		RedisDB:            2,
	}
	bc := cfg.BrokerConfig()
	assert.Equal(t, broker.DriverRedis, bc.Driver)
	assert.Equal(t, 8, bc.BufferSize)
	assert.Equal(t, "cache:6380", bc.Redis.Addr())
	assert.Equal(t, 2, bc.Redis.DB)
}

func TestRedisRateLimit(t *testing.T) {
	cfg := &Config{PublishRateLimit: 2, PublishRateBurst: 10}
	rl := cfg.RedisRateLimit()
	assert.Equal(t, 10, rl.Limit)
	assert.Equal(t, 5*time.Second, rl.Window)

	// windows never drop below a second
	cfg = &Config{PublishRateLimit: 100, PublishRateBurst: 1}
	assert.Equal(t, time.Second, cfg.RedisRateLimit().Window)
}
