package main

import (
	"context"
	"log"
	"time"

	"traffic-light/config"
	"traffic-light/internal/bridge"
	"traffic-light/internal/broker"
	"traffic-light/internal/handler"
	"traffic-light/internal/middleware"
	"traffic-light/internal/redis"
	"traffic-light/internal/server"
	"traffic-light/internal/services"
	"traffic-light/internal/websocket"
	"traffic-light/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	l := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	b, err := broker.New(ctx, cfg.BrokerConfig(), l)
	cancel()
	if err != nil {
		l.Errorf("Failed to connect %s broker: %v", cfg.BrokerDriver, err)
		log.Fatalf("Failed to connect %s broker: %v", cfg.BrokerDriver, err)
	}
	l.Infof("Connected to %s broker, topic %q", cfg.BrokerDriver, cfg.TrafficLightTopic)

	hub := websocket.NewHub()
	handlers := &server.Handlers{
		Light:  handler.NewLightHandler(services.NewLightService(b, cfg.TrafficLightTopic, l)),
		Health: handler.NewHealthHandler(b, cfg.BrokerDriver, hub),
		Stream: websocket.NewHandler(
			bridge.New(b, cfg.TrafficLightTopic, l),
			hub,
			websocket.Options{
				AllowedOrigins: cfg.CORSAllowedOrigins,
				PingPeriod:     cfg.WSPingPeriod,
				PongWait:       cfg.WSPongWait,
				WriteWait:      cfg.WSWriteWait,
			},
			l,
		),
	}

	var limiter middleware.Limiter
	if cfg.PublishRateLimit > 0 {
		limiter, err = newLimiter(cfg, l)
		if err != nil {
			log.Fatalf("Failed to set up rate limiting: %v", err)
		}
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(handlers, limiter)
	srv.OnShutdown("websocket clients", func() error {
		hub.CloseAll()
		return nil
	})
	srv.OnShutdown("broker", b.Close)

	if closer, ok := limiter.(interface{ Close() error }); ok {
		srv.OnShutdown("rate limiter", closer.Close)
	}

	if err := srv.Start(); err != nil {
		l.Errorf("Server exited with error: %v", err)
		l.Sync()
		log.Fatalf("Server exited with error: %v", err)
	}
}

// redisLimiter owns the dedicated client behind the shared limiter.
type redisLimiter struct {
	*redis.RateLimiter
	client *goredis.Client
}

func (r redisLimiter) Close() error {
	return r.client.Close()
}

func newLimiter(cfg *config.Config, l *logger.Logger) (middleware.Limiter, error) {
	if cfg.PublishRateBackend != config.RateBackendRedis {
		l.Infof("Publish rate limit: %.2f req/s per IP, burst %d", cfg.PublishRateLimit, cfg.PublishRateBurst)
		return middleware.NewIPRateLimiter(cfg.PublishRateLimit, cfg.PublishRateBurst), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := redis.Connect(ctx, cfg.BrokerConfig().Redis)
	if err != nil {
		return nil, err
	}
	rl := cfg.RedisRateLimit()
	l.Infof("Publish rate limit: %d req per %s per IP, shared through redis", rl.Limit, rl.Window)
	return redisLimiter{RateLimiter: redis.NewRateLimiter(client, rl), client: client}, nil
}
