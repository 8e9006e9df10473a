package main

import (
	"context"
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

	"github.com/bsm/redislock"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/elstonfarm/farmbooks_backend/config"
	"github.com/elstonfarm/farmbooks_backend/middlewares"
	"github.com/elstonfarm/farmbooks_backend/models"
	"github.com/elstonfarm/farmbooks_backend/utils"
	"github.com/elstonfarm/farmbooks_backend/workflow"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("farmbooks-reconciliation")

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
// Validation-class failures are the caller's fault (400); state conflicts
// (settled session, duplicate session, lost settlement race) are 409.
func writeEngineError(c *gin.Context, err error) {
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if ee, ok := utils.AsEngineError(err); ok {
		status := http.StatusInternalServerError
		switch ee.Code {
		case utils.ErrorCodeValidation, utils.ErrorCodeInvalidSplit, utils.ErrorCodeItemsPending:
			status = http.StatusBadRequest
		case utils.ErrorCodeSessionClosed, utils.ErrorCodeAlreadyExists, utils.ErrorCodeAlreadySettled:
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": ee.Message, "code": ee.Code, "details": ee.Details})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.LoginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		token, user, err := models.Login(c.Request.Context(), &input)
		if errors.Is(err, models.ErrorInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func listAccountsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		registry, err := models.ListPurchasingAccounts(c.Request.Context())
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, registry)
	}
}

func upsertAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewPurchasingAccount
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		account, err := models.UpsertPurchasingAccount(c.Request.Context(), &input)
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func deactivateAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		slug := c.Param("slug")
		account, err := models.DeactivatePurchasingAccount(c.Request.Context(), slug)
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	}
}

func listSessionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions, err := models.ListReconciliationSessions(c.Request.Context())
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	}
}

type openSessionRequest struct {
	FiscalYear   int  `json:"fiscal_year" binding:"required"`
	AutoPopulate bool `json:"auto_populate"`
}

func openSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req openSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		result, err := models.OpenReconciliationSession(c.Request.Context(), req.FiscalYear, req.AutoPopulate)
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func fiscalYearParam(c *gin.Context) (int, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fiscal year"})
		return 0, false
	}
	return year, true
}

func sessionDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		year, ok := fiscalYearParam(c)
		if !ok {
			return
		}
		detail, err := models.GetSessionDetail(c.Request.Context(), year)
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func sessionExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		year, ok := fiscalYearParam(c)
		if !ok {
			return
		}
		workbook, err := models.SessionWorkbook(c.Request.Context(), year)
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="reconciliation-fy%d.xlsx"`, year))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := workbook.Write(c.Writer); err != nil {
			config.LogError(logger, "server.go", "sessionExportHandler", "workbook.Write", year, err)
		}
	}
}

type addItemsRequest struct {
	FiscalYear int                        `json:"fiscal_year" binding:"required"`
	Items      []*models.NewCommingledItem `json:"items" binding:"required"`
}

func addItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addItemsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		result, err := models.AddCommingledItems(c.Request.Context(), req.FiscalYear, req.Items)
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func itemIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return 0, false
	}
	return id, true
}

func resolveItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := itemIdParam(c)
		if !ok {
			return
		}
		var input models.ResolveItemInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		item, impact, err := models.ResolveCommingledItem(c.Request.Context(), id, &input)
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"item": item, "impact": impact})
	}
}

func removeItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := itemIdParam(c)
		if !ok {
			return
		}
		if err := models.RemoveCommingledItem(c.Request.Context(), id); err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": id})
	}
}

func settleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var input workflow.SettleSessionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "SettleSession")
		defer span.End()

		// Redis lock is a best-effort optimization.
		// Reliability must not depend on Redis: settlement also serializes
		// via MySQL advisory locks inside SettleSession().
		var lock *redislock.Lock
		redisLock := config.GetRedisLock()
		if redisLock != nil {
			var err error
			lock, err = redisLock.Obtain(ctx, fmt.Sprintf("lock:settlement:%d", input.FiscalYear), 30*time.Second, nil)
			if err != nil {
				logger.WithFields(logrus.Fields{
					"field":       "settleHandler",
					"fiscal_year": input.FiscalYear,
				}).Warn("could not obtain redis lock; proceeding without redis lock: " + err.Error())
				lock = nil
			}
		}
		defer func() {
			if lock == nil {
				return
			}
			if releaseErr := lock.Release(ctx); releaseErr != nil {
				logger.WithFields(logrus.Fields{
					"field":       "settleHandler",
					"fiscal_year": input.FiscalYear,
				}).Warn("failed to release redis lock: " + releaseErr.Error())
			}
		}()

		summary, err := workflow.SettleSession(ctx, config.GetDB(), logger, models.GormLedger{}, &input)
		if err != nil {
			writeEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// newRouter builds the gin engine with the full middleware chain and routes.
// Recovery is registered first so a panic anywhere downstream, middlewares
// included, still yields a 500 instead of killing the connection.
func newRouter(logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
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
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require an explicit allowlist via CORS_ALLOWED_ORIGINS
	// (comma-separated). In non-production, allow all.
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
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))

	r.POST("/api/auth/login", loginHandler())

	api := r.Group("/api/reconciliation", middlewares.RequireAuth())
	api.GET("/accounts", listAccountsHandler())
	api.POST("/accounts", upsertAccountHandler())
	api.PUT("/accounts/:slug/deactivate", deactivateAccountHandler())
	api.GET("/sessions", listSessionsHandler())
	api.POST("/sessions", openSessionHandler())
	api.GET("/sessions/:year", sessionDetailHandler())
	api.GET("/sessions/:year/export", sessionExportHandler())
	api.POST("/items", addItemsHandler())
	api.PUT("/items/:id", resolveItemHandler())
	api.DELETE("/items/:id", removeItemHandler())
	api.POST("/settle", settleHandler())

	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP; until the DB is ready we return 503 for app
	// endpoints.
	r := newRouter(logger)

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
	config.ConnectRedis()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow disabling on startup
	// and running as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.Migrate(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("reconciliation engine listening on http://localhost:", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs only requests that ended with gin errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
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
