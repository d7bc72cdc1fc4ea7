package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Handlers contains all HTTP handlers. They only validate request shape and
// enqueue work; authentication is the excluded layer's concern.
type Handlers struct {
	db        *gorm.DB
	ingestor  *Ingestor
	deleter   *Deleter
	scheduler *Scheduler
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, ingestor *Ingestor, deleter *Deleter, scheduler *Scheduler) *Handlers {
	return &Handlers{
		db:        db,
		ingestor:  ingestor,
		deleter:   deleter,
		scheduler: scheduler,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Health check
	router.GET("/healthz", h.HealthCheck)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	{
		api.POST("/accounts/:id/ingest", h.TriggerIngest)
		api.DELETE("/emails", h.DeleteEmails)
		api.POST("/emails/reprocess", h.ReprocessEmails)

		// Scheduler control
		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Metrics:   make(map[string]string),
	}

	// Check database connection
	if err := h.db.Raw("SELECT 1").Error; err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	// Check scheduler status
	if h.scheduler.IsRunning() {
		response.Metrics["scheduler"] = "running"
		response.Metrics["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
		response.Metrics["last_run"] = h.scheduler.GetLastRun().Format(time.RFC3339)
	} else {
		response.Metrics["scheduler"] = "stopped"
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// TriggerIngest enqueues an ingestion run for one account. Fire-and-forget:
// responds as soon as the run is queued.
func (h *Handlers) TriggerIngest(c *gin.Context) {
	accountID := c.Param("id")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Account ID is required",
			Code:    http.StatusBadRequest,
		})
		return
	}

	batchID, err := h.ingestor.TriggerIngest(accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "enqueue_error",
			Message: "Failed to trigger email fetch",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusAccepted, BatchResponse{
		Status:  "success",
		BatchID: batchID,
		Message: "Email fetching triggered",
		Queued:  1,
	})
}

// DeleteEmails soft-deletes the requested messages synchronously and enqueues
// the finalize or unsubscribe tasks.
func (h *Handlers) DeleteEmails(c *gin.Context) {
	var request DeleteEmailsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	batchID, queued, err := h.deleter.RequestDelete(request.EmailIDs, request.Unsub)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "enqueue_error",
			Message: "Failed to trigger email delete",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusAccepted, BatchResponse{
		Status:  "success",
		BatchID: batchID,
		Message: "Email delete triggered",
		Queued:  queued,
	})
}

// ReprocessEmails re-runs classification for stored messages, honoring
// per-item idempotency keys.
func (h *Handlers) ReprocessEmails(c *gin.Context) {
	var request ReprocessRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	batchID, queued, err := h.ingestor.Reprocess(request.AccountID, request.Items)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "enqueue_error",
			Message: "Failed to trigger reprocessing",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusAccepted, BatchResponse{
		Status:  "success",
		BatchID: batchID,
		Message: "Reprocessing triggered",
		Queued:  queued,
	})
}

// StartScheduler starts the scheduler
func (h *Handlers) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "scheduler_error",
			Message: err.Error(),
			Code:    http.StatusConflict,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// StopScheduler stops the scheduler
func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// RunOnce triggers one ingestion cycle immediately
func (h *Handlers) RunOnce(c *gin.Context) {
	if err := h.scheduler.RunOnce(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "triggered"})
}

// GetSchedulerStatus reports the scheduler state
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	status := gin.H{"running": h.scheduler.IsRunning()}
	if h.scheduler.IsRunning() {
		status["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
		status["last_run"] = h.scheduler.GetLastRun().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, status)
}
