package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.ApiService/health"
	container "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Container"
	"gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.IngestorService/ingestor"
)

func main() {
	// Initialize dependency injection container
	ctr, err := container.NewIngestorContainer()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize container: %v", err))
	}
	defer ctr.Shutdown(context.Background())

	logger := ctr.GetLogger()
	logger.Info("Starting MQTT Ingestor Service")

	config := ctr.GetConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	submitter, err := ctr.GetSubmitter(ctx)
	if err != nil {
		logger.FatalWithError(err, "Failed to initialize reading submitter")
	}
	repo, err := ctr.GetRepository(ctx)
	if err != nil {
		logger.FatalWithError(err, "Failed to open reading store")
	}

	ing := ingestor.New(config, submitter, logger)
	if err := ing.Start(ctx); err != nil {
		logger.FatalWithError(err, "Failed to start MQTT ingestor")
	}
	defer ing.Stop()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    ":" + config.Server.Port,
		Handler: healthRouter(ing, health.NewHealthChecker(repo, config.Store.Backend)),
	}

	go func() {
		logger.Info("Health server starting on port " + config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithError(err, "Failed to start health server")
		}
	}()

	logger.Info("MQTT ingestor running... press Ctrl+C to stop")

	// Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithError(err, "Health server forced to shutdown")
	}
}

// healthRouter serves broker and store health plus Prometheus metrics
func healthRouter(ing *ingestor.Ingestor, checker *health.HealthChecker) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		mqttStatus := "disconnected"
		if ing.IsConnected() {
			mqttStatus = "connected"
		}

		status := checker.GetHealthStatus(ctx)
		code := http.StatusOK
		if mqttStatus != "connected" || status["status"] != "ok" {
			status["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		status["mqtt"] = mqttStatus
		c.JSON(code, status)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
