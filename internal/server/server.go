package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traffic-light/config"
	"traffic-light/internal/handler"
	"traffic-light/internal/middleware"
	"traffic-light/internal/transport/httpdto"
	"traffic-light/internal/websocket"
	"traffic-light/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	onShutdown []shutdownHook
}

type shutdownHook struct {
	name string
	fn   func() error
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Light  *handler.LightHandler
	Health *handler.HealthHandler
	Stream *websocket.Handler
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	if l == nil {
		l = logger.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// SetupRoutes installs the middleware chain and routes. A nil limiter
// disables publish rate limiting.
func (s *Server) SetupRoutes(handlers *Handlers, limiter middleware.Limiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware(s.config.CORSAllowedOrigins...))
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})
	s.engine.GET("/health", handlers.Health.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine.POST("/update-traffic-light", middleware.RateLimitMiddleware(limiter, s.logger), handlers.Light.Update)
	s.engine.GET("/traffic-light", handlers.Stream.Connect)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// OnShutdown registers fn to run after the HTTP listener has stopped.
// Hooks run in registration order.
func (s *Server) OnShutdown(name string, fn func() error) {
	s.onShutdown = append(s.onShutdown, shutdownHook{name: name, fn: fn})
}

func (s *Server) Start() error {
	serveErr := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("Error in starting the server: %s", err)
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(quit)

	s.logger.Infof("Server is running on :%s", s.config.AppPort)

	select {
	case err := <-serveErr:
		_ = s.runHooks()
		return err
	case <-quit:
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s.logger.Infof("Quitting signal received.. Shutting down within %s", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops accepting requests, waits for in-flight ones, then runs the
// shutdown hooks. Hook errors are joined with the listener error.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
	}
	if herr := s.runHooks(); herr != nil {
		err = errors.Join(err, herr)
	}
	if err == nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return err
}

func (s *Server) runHooks() error {
	var errs []error
	for _, h := range s.onShutdown {
		if err := h.fn(); err != nil {
			s.logger.Errorf("shutdown %s: %s", h.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	s.onShutdown = nil
	return errors.Join(errs...)
}
