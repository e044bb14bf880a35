package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/akarakonline-arch/hggzk-sub012/config"
	"github.com/akarakonline-arch/hggzk-sub012/health"
	"github.com/akarakonline-arch/hggzk-sub012/indexsync"
	"github.com/akarakonline-arch/hggzk-sub012/models"
	"github.com/akarakonline-arch/hggzk-sub012/utils"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("INDEX_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	var rebuilder *indexsync.Rebuilder

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil || rebuilder == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		report := health.Check(c.Request.Context())
		status := http.StatusOK
		if report.Status != health.StatusUp {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	})

	r.POST("/pubsub/lifecycle", func(c *gin.Context) {
		indexsync.PubSubPushHandler(rebuilder.Worker)(c)
	})

	r.POST("/api/index/rebuild/unit/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unit id must be numeric"})
			return
		}
		if err := rebuilder.RebuildUnit(c.Request.Context(), uint(id)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.POST("/api/index/rebuild/property/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "property id must be numeric"})
			return
		}
		if err := rebuilder.RebuildPropertyUnits(c.Request.Context(), uint(id)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.POST("/api/index/rebuild/all", func(c *gin.Context) {
		// Full rebuilds outlive the request; run detached and report start.
		go func() {
			ctx := context.Background()
			n, err := rebuilder.RebuildAll(ctx, intFromEnv("REBUILD_BATCH_SIZE", 100))
			if err != nil {
				config.LogError(logger, "indexsync", "RebuildAll", "background", n, err)
				return
			}
			logger.WithFields(logrus.Fields{"rebuilt": n}).Info("full index rebuild complete")
		}()
		c.JSON(http.StatusAccepted, gin.H{"status": "rebuild started"})
	})
	r.POST("/api/index/cleanup", func(c *gin.Context) {
		removed, err := rebuilder.CleanupOrphans(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "removed": removed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	})
	r.GET("/api/index/stats", func(c *gin.Context) {
		stats, err := rebuilder.Statistics(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})
	r.GET("/api/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, health.Default().Snapshot())
	})

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	store := indexsync.NewRedisDocumentStore(config.GetRedisDB())
	worker := indexsync.NewWorker(db, store, config.GetRedisLock(), logger)
	rebuilder = indexsync.NewRebuilder(db, worker)

	sweeper := indexsync.NewSweeper(db, worker, logger)
	go sweeper.Run(sigCtx)

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func intFromEnv(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
