package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrderReader fetches platform orders for the split intake endpoint.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
}

// SplitQueries is the operational read side served by the HTTP API.
type SplitQueries interface {
	GetSplitOrder(ctx context.Context, splitID string) (*models.SplitOrder, error)
	GetSplitsByOrderRef(ctx context.Context, orderRefID string) ([]models.SplitOrder, error)
	GetSplitsByStatus(ctx context.Context, statuses []string, limit int) ([]models.SplitOrder, error)
	GetCourierTaskBySplit(ctx context.Context, splitID string) (*models.CourierTask, error)
}

// Handler contains HTTP handlers
type Handler struct {
	engine      *service.SplitEngine
	fulfillment *service.Fulfillment
	orders      OrderReader
	queries     SplitQueries
	webhookAuth *WebhookAuth
}

// NewHandler creates a new HTTP handler
func NewHandler(
	engine *service.SplitEngine,
	fulfillment *service.Fulfillment,
	orders OrderReader,
	queries SplitQueries,
	webhookAuth *WebhookAuth,
) *Handler {
	return &Handler{
		engine:      engine,
		fulfillment: fulfillment,
		orders:      orders,
		queries:     queries,
		webhookAuth: webhookAuth,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders/:id/split", h.splitOrder)
		v1.GET("/orders/:id/splits", h.getOrderSplits)
		v1.GET("/splits", h.listSplits)
		v1.GET("/splits/:splitId", h.getSplit)
		v1.POST("/splits/:splitId/confirm", h.confirmSplit)
		v1.POST("/splits/:splitId/dispatch", h.dispatchSplit)
		v1.POST("/splits/:splitId/cancel", h.cancelSplit)
		v1.POST("/splits/:splitId/refund", h.refundSplit)
		v1.POST("/splits/:splitId/hold", h.holdSplit)
	}

	webhooks := router.Group("/webhooks")
	webhooks.Use(h.webhookAuth.Middleware())
	{
		webhooks.POST("/courier", h.courierCallback)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// splitOrder fetches the platform order and runs it through the split engine
func (h *Handler) splitOrder(c *gin.Context) {
	orderID := c.Param("id")

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to read order",
			"details": err.Error(),
		})
		return
	}

	splits, err := h.engine.SplitOrder(c.Request.Context(), order)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrOutOfStock) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"error":   "Failed to split order",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"splits": splits})
}

// getOrderSplits returns all splits for one platform order
func (h *Handler) getOrderSplits(c *gin.Context) {
	splits, err := h.queries.GetSplitsByOrderRef(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"splits": splits})
}

// listSplits returns splits filtered by status
func (h *Handler) listSplits(c *gin.Context) {
	status := c.DefaultQuery("status", models.SplitStatusNew)
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}

	splits, err := h.queries.GetSplitsByStatus(c.Request.Context(), []string{status}, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"splits": splits})
}

// getSplit returns one split with its items and courier task
func (h *Handler) getSplit(c *gin.Context) {
	splitID := c.Param("splitId")

	sp, err := h.queries.GetSplitOrder(c.Request.Context(), splitID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Split order not found",
			"details": err.Error(),
		})
		return
	}

	task, err := h.queries.GetCourierTaskBySplit(c.Request.Context(), splitID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"split":        sp,
		"courier_task": task,
	})
}

// confirmSplit confirms a split and pushes it to the ERP
func (h *Handler) confirmSplit(c *gin.Context) {
	err := h.fulfillment.Confirm(c.Request.Context(), c.Param("splitId"))
	if err != nil {
		c.JSON(transitionErrorStatus(err), gin.H{
			"error":   "Failed to confirm split",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.SplitStatusConfirm})
}

// dispatchSplit creates the courier task for a confirmed split
func (h *Handler) dispatchSplit(c *gin.Context) {
	task, err := h.fulfillment.Dispatch(c.Request.Context(), c.Param("splitId"))
	if err != nil {
		c.JSON(transitionErrorStatus(err), gin.H{
			"error":   "Failed to dispatch split",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"courier_task": task})
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// cancelSplit cancels a split in any non-terminal state
func (h *Handler) cancelSplit(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.fulfillment.Cancel(c.Request.Context(), c.Param("splitId"), req.Reason); err != nil {
		c.JSON(transitionErrorStatus(err), gin.H{
			"error":   "Failed to cancel split",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.SplitStatusCancelled})
}

// refundSplit refunds a split against the order's original transaction
func (h *Handler) refundSplit(c *gin.Context) {
	if err := h.fulfillment.Refund(c.Request.Context(), c.Param("splitId")); err != nil {
		c.JSON(transitionErrorStatus(err), gin.H{
			"error":   "Failed to refund split",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"financial_status": models.SplitFinancialRefunded})
}

// holdSplit places a manual hold
func (h *Handler) holdSplit(c *gin.Context) {
	if err := h.fulfillment.PlaceOnHold(c.Request.Context(), c.Param("splitId")); err != nil {
		c.JSON(transitionErrorStatus(err), gin.H{
			"error":   "Failed to hold split",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"on_hold_status": models.HoldManual})
}

// courierCallbackRequest is the provider's status payload
type courierCallbackRequest struct {
	TaskID     string            `json:"task_id" binding:"required"`
	StatusCode int               `json:"status_code" binding:"required"`
	Message    string            `json:"message"`
	Rider      *models.RiderInfo `json:"rider"`
}

// courierCallback applies a courier status callback
func (h *Handler) courierCallback(c *gin.Context) {
	var req courierCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid callback payload",
			"details": err.Error(),
		})
		return
	}

	err := h.fulfillment.HandleCourierCallback(c.Request.Context(), req.TaskID, req.StatusCode, req.Message, req.Rider)
	if err != nil {
		c.JSON(transitionErrorStatus(err), gin.H{
			"error":   "Failed to apply callback",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// transitionErrorStatus maps the domain error kinds onto HTTP statuses
func transitionErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrOutOfStock):
		return http.StatusConflict
	case errors.Is(err, service.ErrMissingLinkage):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
