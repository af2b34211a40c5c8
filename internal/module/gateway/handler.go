package gateway

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/boglepay/gateway/internal/module/order"
	errs "github.com/boglepay/gateway/internal/shared/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler handles gateway HTTP requests.
type Handler struct {
	service         *Service
	signatureHeader string
	logger          *zap.Logger
}

// NewHandler creates a new gateway handler.
func NewHandler(service *Service, signatureHeader string, logger *zap.Logger) *Handler {
	return &Handler{
		service:         service,
		signatureHeader: signatureHeader,
		logger:          logger,
	}
}

// RegisterRoutes registers the gateway API routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, idempotency gin.HandlerFunc) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/checkout", idempotency, h.InitiateCheckout)
	}

	checkout := r.Group("/checkout")
	{
		checkout.GET("/return", h.HandleReturn)
		checkout.GET("/cancel", h.HandleCancel)
	}

	r.GET("/gateway/validate", h.ValidateAPIKey)
}

// RegisterWebhookRoutes registers the unauthenticated webhook endpoints.
// Both paths accept the same payload; the short one is the documented
// endpoint, the long one matches the processor dashboard's default.
func (h *Handler) RegisterWebhookRoutes(r *gin.Engine) {
	r.POST("/webhooks/boglepay", h.HandleWebhook)
	r.POST("/boglepay/v1/webhook", h.HandleWebhook)
}

// HandleWebhook receives BoglePay webhook notifications. Only a failed
// signature check produces a non-2xx response; all other outcomes ack
// with 200 so the processor does not retry events we cannot act on.
func (h *Handler) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
	if err != nil {
		h.logger.Error("failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	signature := c.GetHeader(h.signatureHeader)

	if err := h.service.ProcessWebhook(c.Request.Context(), payload, signature); err != nil {
		if errors.Is(err, errs.ErrInvalidSignature) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
		// Acked: malformed payloads, unresolved orders and apply
		// failures are logged but never bounced back to the sender
		h.logger.Warn("webhook processed with error", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// CreateOrder registers a storefront order.
func (h *Handler) CreateOrder(c *gin.Context) {
	var in CreateOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ord, err := h.service.CreateOrder(c.Request.Context(), &in)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ord)
}

// GetOrder returns an order by id.
func (h *Handler) GetOrder(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	ord, err := h.service.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ord)
}

// InitiateCheckout creates a checkout session and returns the redirect.
func (h *Handler) InitiateCheckout(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	redirect, err := h.service.InitiateCheckout(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, redirect)
}

// HandleReturn receives the customer back from hosted checkout.
func (h *Handler) HandleReturn(c *gin.Context) {
	orderID, key, ok := h.callbackParams(c)
	if !ok {
		return
	}

	target, err := h.service.HandleReturn(c.Request.Context(), orderID, key)
	if err != nil {
		h.logger.Error("return flow reconciliation failed", zap.Error(err))
	}

	c.Redirect(http.StatusFound, target)
}

// HandleCancel receives a customer who abandoned hosted checkout.
func (h *Handler) HandleCancel(c *gin.Context) {
	orderID, key, ok := h.callbackParams(c)
	if !ok {
		return
	}

	target, err := h.service.HandleCancel(c.Request.Context(), orderID, key)
	if err != nil {
		h.logger.Error("cancel flow failed", zap.Error(err))
	}

	c.Redirect(http.StatusFound, target)
}

func (h *Handler) callbackParams(c *gin.Context) (uint64, string, bool) {
	orderID, err := strconv.ParseUint(c.Query("order_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return 0, "", false
	}
	return orderID, c.Query("key"), true
}

// ValidateAPIKey checks the configured API credentials.
func (h *Handler) ValidateAPIKey(c *gin.Context) {
	info, err := h.service.ValidateAPIKey(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":       true,
		"merchant_id": info.ID,
		"name":        info.DisplayName,
		"status":      info.Status,
	})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var appErr *errs.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.StatusCode, gin.H{"error": appErr.Message})
		return
	}
	if errors.Is(err, order.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	if errors.Is(err, order.ErrDuplicateOrder) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(errs.GetStatusCode(err), gin.H{"error": err.Error()})
}
