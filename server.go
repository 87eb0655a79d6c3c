package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/finfacts_backend/config"
	"bitbucket.org/mmdatafocus/finfacts_backend/models"
	"bitbucket.org/mmdatafocus/finfacts_backend/utils"
	"bitbucket.org/mmdatafocus/finfacts_backend/workflow"
)

const defaultPort = "8080"

// RateLimiter throttles per client IP using Redis counters.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

type ingestRequest struct {
	SourcePath string   `json:"source_path" binding:"required"`
	Engines    []string `json:"engines"`
	Recompute  bool     `json:"recompute"`
}

func ingestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		logger := config.GetLogger()
		result, err := workflow.ProcessIngestWorkflow(c.Request.Context(), config.GetDB(), logger, config.Pipeline(), workflow.IngestInput{
			SourcePath: req.SourcePath,
			Engines:    req.Engines,
			Recompute:  req.Recompute,
		})
		if err != nil {
			status := http.StatusBadRequest
			if result != nil {
				// Engines ran but none succeeded.
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"report_id":      result.ReportId,
			"engines":        engineStatuses(result.Outcomes),
			"correlation_id": cid,
		})
	}
}

func engineStatuses(outcomes []workflow.EngineOutcome) []gin.H {
	out := make([]gin.H, 0, len(outcomes))
	for _, o := range outcomes {
		row := gin.H{
			"engine":     o.Engine,
			"version_id": o.VersionId,
			"status":     o.Status,
			"candidates": o.Candidates,
		}
		if o.Err != nil {
			row["error"] = o.Err.Error()
		}
		out = append(out, row)
	}
	return out
}

func resolveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reportId, err := strconv.Atoi(c.Param("id"))
		if err != nil || reportId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
			return
		}

		ctx := c.Request.Context()
		if strings.EqualFold(c.Query("force"), "true") {
			ctx = utils.SetForceResolveInContext(ctx, true)
		}

		logger := config.GetLogger()
		summary, err := workflow.ProcessResolveWorkflow(ctx, config.GetDB(), logger, config.Pipeline(), reportId)
		if err == utils.ErrorResolveInProgress {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		_ = config.RemoveRedisKey(runReportCacheKey(reportId))
		c.JSON(http.StatusOK, summary)
	}
}

func discrepanciesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reportId, err := strconv.Atoi(c.Param("id"))
		if err != nil || reportId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
			return
		}

		filter := models.DiscrepancyFilter{}
		if v := c.Query("fact_type"); v != "" {
			filter.FactType = models.FactType(v)
		}
		if v := c.Query("fiscal_year"); v != "" {
			if year, err := strconv.Atoi(v); err == nil {
				filter.FiscalYear = year
			}
		}
		if v := c.Query("period_end"); v != "" {
			if d, err := time.Parse("2006-01-02", v); err == nil {
				filter.PeriodEnd = &d
			}
		}

		facts, err := models.ListDiscrepancies(config.GetDB().WithContext(c.Request.Context()), reportId, filter)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"report_id": reportId, "discrepancies": facts})
	}
}

func discrepancyCandidatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reportId, err := strconv.Atoi(c.Param("id"))
		if err != nil || reportId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
			return
		}
		groupKey := c.Query("group_key")
		if groupKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "group_key is required"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		candidates, err := models.CandidatesForReport(db, reportId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		matching := make([]models.FactCandidate, 0)
		for _, candidate := range candidates {
			if models.GroupKeyForCandidate(&candidate) == groupKey {
				matching = append(matching, candidate)
			}
		}
		c.JSON(http.StatusOK, gin.H{"report_id": reportId, "group_key": groupKey, "candidates": matching})
	}
}

func manualResolutionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reportId, err := strconv.Atoi(c.Param("id"))
		if err != nil || reportId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
			return
		}

		var input workflow.ManualResolutionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := c.Request.Context()
		if reviewer := c.GetHeader("x-reviewer"); reviewer != "" && input.Reviewer == "" {
			ctx = utils.SetReviewerInContext(ctx, reviewer)
		}

		fact, err := workflow.ProcessManualResolution(ctx, config.GetDB(), config.GetLogger(), reportId, input)
		if err == utils.ErrorRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "candidate not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		_ = config.RemoveRedisKey(runReportCacheKey(reportId))
		c.JSON(http.StatusOK, fact)
	}
}

func factsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reportId, err := strconv.Atoi(c.Param("id"))
		if err != nil || reportId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
			return
		}
		facts, err := models.ResolvedFactsForReport(config.GetDB().WithContext(c.Request.Context()), reportId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"report_id": reportId, "facts": facts})
	}
}

func runReportCacheKey(reportId int) string {
	return "run_report:" + strconv.Itoa(reportId)
}

func runReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reportId, err := strconv.Atoi(c.Param("id"))
		if err != nil || reportId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
			return
		}

		// Redis cache is best-effort; invalidated on resolve and manual review.
		if cached, ok, err := config.GetRedisValue(runReportCacheKey(reportId)); err == nil && ok {
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
			return
		}

		summary, err := models.LatestRunSummary(config.GetDB().WithContext(c.Request.Context()), reportId)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no run report for report"})
			return
		}
		if payload, err := json.Marshal(summary); err == nil {
			_ = config.SetRedisValue(runReportCacheKey(reportId), string(payload), 5*time.Minute)
		}
		c.JSON(http.StatusOK, summary)
	}
}

func versionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		reportId, err := strconv.Atoi(c.Param("id"))
		if err != nil || reportId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report id"})
			return
		}
		versions, err := models.VersionsForReport(config.GetDB().WithContext(c.Request.Context()), reportId)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"report_id": reportId, "versions": versions})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the startup probe passes. Until the DB is
	// ready, app endpoints return 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
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
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Redis stays optional: it only accelerates the resolve lock.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// CORS: explicit allowlist in production, open in development.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-reviewer", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_ADDRESS")})
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/api/reports/ingest", ingestHandler())
	r.POST("/api/reports/:id/resolve", resolveHandler())
	r.GET("/api/reports/:id/versions", versionsHandler())
	r.GET("/api/reports/:id/facts", factsHandler())
	r.GET("/api/reports/:id/discrepancies", discrepanciesHandler())
	r.GET("/api/reports/:id/discrepancy-candidates", discrepancyCandidatesHandler())
	r.POST("/api/reports/:id/resolutions", manualResolutionHandler())
	r.GET("/api/reports/:id/run-report", runReportHandler())
	r.NoRoute(customNotFoundHandler)

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
	// AutoMigrate can run DDL that blocks tables; allow running it as a
	// separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimitMiddleware counts requests per client IP within a rolling window.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if exists == 0 {
		if err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
