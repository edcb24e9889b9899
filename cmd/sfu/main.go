package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live777go/internal/eventbus"
	"live777go/internal/httpapi"
	"live777go/internal/infrastructure/monitoring"
	"live777go/internal/stream"
	"live777go/pkg/config"
	"live777go/pkg/logger"
	"live777go/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

func main() {
	startTime := time.Now()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/root/configs/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		zapLogger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer tracerProvider.Shutdown(context.Background())

	instanceID := uuid.NewString()
	bus := eventbus.New(cfg, instanceID, zapLogger)
	defer bus.Close()

	webhookSink := eventbus.NewWebhookSink(cfg.Webhooks, zapLogger)
	webhookCtx, cancelWebhooks := context.WithCancel(context.Background())
	go webhookSink.Run(webhookCtx, bus)
	defer cancelWebhooks()

	iceServers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:           s.URLs,
			Username:       s.Username,
			Credential:     s.Credential,
			CredentialType: parseCredentialType(s.CredentialType),
		})
	}

	metrics := monitoring.NewPrometheusCollector()

	manager, err := stream.NewManager(stream.Config{
		ICEServers:                          iceServers,
		AutoCreateWhip:                      cfg.Strategy.AutoCreateWhip,
		AutoCreateWhep:                      cfg.Strategy.AutoCreateWhep,
		AutoDeleteWhipMs:                    cfg.Strategy.AutoDeleteWhipMs,
		AutoDeleteWhepMs:                    cfg.Strategy.AutoDeleteWhepMs,
		AutoDeleteWhipMsFromSubscribeCreate: cfg.Strategy.AutoDeleteWhipMsFromSubscribeCreate,
		MaxSubscribersPerStream:             cfg.Strategy.MaxSubscribersPerStream,
		CascadeConnectTimeout:               cfg.Cascade.ConnectTimeout,
		CascadeTotalTimeout:                 cfg.Cascade.TotalTimeout,
	}, bus, metrics, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to create stream manager", zap.Error(err))
	}
	defer manager.Close()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	handler := httpapi.NewHandler(manager, cfg, metrics, bus, zapLogger)
	handler.SetupRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTP.Listen,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		zapLogger.Info("starting live777go SFU", zap.String("listen", cfg.HTTP.Listen))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		zapLogger.Fatal("server failed", zap.Error(err))
	case sig := <-sigChan:
		zapLogger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("error during server shutdown", zap.Error(err))
		if closeErr := srv.Close(); closeErr != nil {
			zapLogger.Error("error force closing server", zap.Error(closeErr))
		}
	}

	zapLogger.Info("live777go SFU stopped")
}

func parseCredentialType(s string) webrtc.ICECredentialType {
	if s == "oauth" {
		return webrtc.ICECredentialTypeOauth
	}
	return webrtc.ICECredentialTypePassword
}
