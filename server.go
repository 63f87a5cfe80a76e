package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/bakery_backend/config"
	"bitbucket.org/mmdatafocus/bakery_backend/models"
	"bitbucket.org/mmdatafocus/bakery_backend/utils"
	"bitbucket.org/mmdatafocus/bakery_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("bakery-distribution")

func main() {
	logger := config.GetLogger()

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(customErrorLogger(logger))
	r.Use(cors.Default())

	r.GET("/healthz", func(c *gin.Context) {
		if config.GetDB() == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "connecting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Internal job-runner surface, not a public API. Triggers one run now;
	// the run-date lease still guards against overlap.
	r.POST("/internal/materialize", func(c *gin.Context) {
		if config.GetDB() == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not ready"})
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "manual-materialize")
		defer span.End()
		ctx = utils.SetCorrelationIdInContext(ctx, uuid.NewString())
		ctx = utils.SetIsAdminInContext(ctx, true)
		runCtx, cancel := context.WithTimeout(ctx, config.MaterializeRunTimeout())
		defer cancel()

		result, err := workflow.MaterializeStandingOrders(runCtx, time.Now())
		if err != nil {
			if errors.Is(err, utils.ErrLockNotObtained) {
				c.JSON(http.StatusConflict, gin.H{"error": "a run already holds the lease for this date"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	// Drops a cached week-route entry so route reassignments apply before
	// the cache TTL lapses.
	r.POST("/internal/route-cache/invalidate", func(c *gin.Context) {
		var req struct {
			TenantId          string `json:"tenant_id" binding:"required"`
			CustomerAddressId int    `json:"customer_address_id" binding:"required"`
			WeekdayName       string `json:"weekday_name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := models.InvalidateWeekRouteCache(req.TenantId, req.CustomerAddressId, req.WeekdayName); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
	})

	// Start listening immediately (startup probes are TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow running migrations
	// as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Register the recurring trigger. A bad schedule string is fatal here,
	// before the process reports itself healthy.
	var scheduler *workflow.Scheduler
	if config.MaterializeScheduleDisabled() {
		logger.WithFields(logrus.Fields{"field": "scheduler"}).Warn("MATERIALIZE_SCHEDULE=off; recurring trigger disabled")
	} else {
		var err error
		scheduler, err = workflow.NewScheduler(config.MaterializeSchedule())
		if err != nil {
			log.Fatalf("scheduler registration failed: %v", err)
		}
		scheduler.Start()
		logger.WithFields(logrus.Fields{
			"schedule": config.MaterializeSchedule(),
		}).Info("materialization schedule registered")
	}

	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Deregister the trigger first so no new run starts while draining.
	if scheduler != nil {
		scheduler.Stop()
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}
