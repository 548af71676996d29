package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/arunvm123/flashdeal/cache"
	"github.com/arunvm123/flashdeal/model"
	"github.com/arunvm123/flashdeal/seckill"
	"github.com/arunvm123/flashdeal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// VoucherOrders is the flash-sale surface used by the handlers
type VoucherOrders interface {
	PlaceOrder(ctx context.Context, voucherID, userID int64) (int64, error)
	PublishVoucher(ctx context.Context, voucher *model.SeckillVoucher) error
}

// HealthChecker pings one backing dependency
type HealthChecker func(ctx context.Context) error

type Handler struct {
	shops    service.ShopService
	vouchers VoucherOrders
	checks   map[string]HealthChecker
	log      *logrus.Entry
}

func NewHandler(shops service.ShopService, vouchers VoucherOrders, checks map[string]HealthChecker, log *logrus.Entry) *Handler {
	return &Handler{
		shops:    shops,
		vouchers: vouchers,
		checks:   checks,
		log:      log,
	}
}

// GetShop serves a shop through the cache-aside path
func (h *Handler) GetShop(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	shop, err := h.shops.QueryByID(c.Request.Context(), id)
	if err != nil {
		h.writeCacheError(c, err)
		return
	}

	c.JSON(http.StatusOK, shop)
}

// GetShopLocked serves a shop through the lock-guarded cache-aside path
func (h *Handler) GetShopLocked(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	shop, err := h.shops.QueryLockedByID(c.Request.Context(), id)
	if err != nil {
		h.writeCacheError(c, err)
		return
	}

	c.JSON(http.StatusOK, shop)
}

// GetHotShop serves a pre-warmed shop through the logical-expiry path
func (h *Handler) GetHotShop(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	shop, err := h.shops.QueryHotByID(c.Request.Context(), id)
	if err != nil {
		h.writeCacheError(c, err)
		return
	}

	c.JSON(http.StatusOK, shop)
}

// UpdateShop writes the shop and invalidates its cached copy
func (h *Handler) UpdateShop(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
		return
	}

	if err := h.shops.Update(c.Request.Context(), req.ToShop(id)); err != nil {
		h.writeCacheError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// WarmShop loads a shop into the hot-key cache
func (h *Handler) WarmShop(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.shops.Warm(c.Request.Context(), id); err != nil {
		h.writeCacheError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// PublishVoucher creates a flash-sale voucher and opens admission for it
func (h *Handler) PublishVoucher(c *gin.Context) {
	var req model.PublishVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
		})
		return
	}

	if err := h.vouchers.PublishVoucher(c.Request.Context(), req.ToSeckillVoucher()); err != nil {
		h.log.Errorf("Failed to publish voucher %d: %v", req.VoucherID, err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to publish voucher",
		})
		return
	}

	c.Status(http.StatusCreated)
}

// PlaceOrder runs flash-sale admission for the authenticated user
func (h *Handler) PlaceOrder(c *gin.Context) {
	voucherID, ok := parseID(c, "voucherId")
	if !ok {
		return
	}

	userID, ok := c.Get("user_id")
	if !ok {
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{
			Error:   "unauthorized",
			Message: "User ID not found in token",
		})
		return
	}

	orderID, err := h.vouchers.PlaceOrder(c.Request.Context(), voucherID, userID.(int64))
	if err != nil {
		h.writeOrderError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, model.OrderResponse{
		OrderID: strconv.FormatInt(orderID, 10),
		Status:  "accepted",
		Message: "Order admitted and queued for processing",
	})
}

// HealthCheck handles health check endpoint
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{
				Error:   "service_unavailable",
				Message: name + " check failed",
			})
			return
		}
	}

	c.JSON(http.StatusOK, model.HealthResponse{
		Status:    "healthy",
		Service:   "flashdeal",
		Timestamp: time.Now(),
	})
}

func (h *Handler) writeCacheError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, cache.ErrNotFound):
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Error:   "not_found",
			Message: "Shop not found",
		})
	case errors.Is(err, cache.ErrBusy):
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{
			Error:   "busy",
			Message: err.Error(),
		})
	default:
		h.log.Errorf("Shop request failed: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load shop",
		})
	}
}

func (h *Handler) writeOrderError(c *gin.Context, err error) {
	var rejection *seckill.RejectionError
	if !errors.As(err, &rejection) {
		h.log.Errorf("Order admission failed: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to place order",
		})
		return
	}

	status := http.StatusBadRequest
	code := "rejected"
	switch rejection {
	case seckill.ErrDuplicateOrder:
		status, code = http.StatusConflict, "duplicate_order"
	case seckill.ErrSoldOut:
		status, code = http.StatusGone, "sold_out"
	case seckill.ErrEnded:
		status, code = http.StatusGone, "sale_ended"
	case seckill.ErrVoucherNotFound:
		status, code = http.StatusNotFound, "voucher_not_found"
	case seckill.ErrNotStarted:
		status, code = http.StatusBadRequest, "sale_not_started"
	}

	c.JSON(status, model.ErrorResponse{
		Error:   code,
		Message: rejection.Reason,
	})
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid " + param,
		})
		return 0, false
	}
	return id, true
}
