package handlers

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"ticket-runners/internal/logger"
	"ticket-runners/internal/models"
	"ticket-runners/internal/payment/storage"
	"ticket-runners/internal/utils"

	"github.com/gin-gonic/gin"
)

// GatewayHandler terminates payment provider callbacks, records each outcome
// for audit, and forwards it to the ownership service. Delivery is at-least-
// once; the ownership service dedupes on transaction id.
type GatewayHandler struct {
	store         storage.Store
	ownership     *OwnershipClient
	webhookSecret string
	logger        *logger.Logger
}

func NewGatewayHandler(store storage.Store, ownership *OwnershipClient, webhookSecret string, log *logger.Logger) *GatewayHandler {
	return &GatewayHandler{
		store:         store,
		ownership:     ownership,
		webhookSecret: webhookSecret,
		logger:        log,
	}
}

func (h *GatewayHandler) Routes(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	r.POST("/callback/booking", h.BookingCallback)
	r.POST("/callback/transfer", h.TransferCallback)
}

func (h *GatewayHandler) Health(c *gin.Context) {
	if err := h.store.HealthCheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("storage unavailable", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("ok", nil))
}

func (h *GatewayHandler) BookingCallback(c *gin.Context) {
	h.handleCallback(c, models.PaymentBooking)
}

func (h *GatewayHandler) TransferCallback(c *gin.Context) {
	h.handleCallback(c, models.PaymentTransfer)
}

func (h *GatewayHandler) handleCallback(c *gin.Context, kind models.PaymentKind) {
	if !h.authorized(c) {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "invalid callback signature"))
		return
	}

	var outcome models.PaymentOutcome
	if err := c.ShouldBindJSON(&outcome); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	outcome.Kind = kind
	if outcome.TransactionID == "" {
		outcome.TransactionID = utils.GenerateTransactionID()
		h.logger.Warn("GATEWAY", fmt.Sprintf("Callback without transaction id, assigned %s", outcome.TransactionID))
	}
	if outcome.ReceivedAt.IsZero() {
		outcome.ReceivedAt = time.Now()
	}

	switch kind {
	case models.PaymentBooking:
		if outcome.Booking == nil || len(outcome.Booking.Slots) == 0 {
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", "booking payload with slots is required"))
			return
		}
	case models.PaymentTransfer:
		if outcome.Transfer == nil || outcome.Transfer.TicketID == "" {
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", "transfer payload with ticket_id is required"))
			return
		}
	}

	if err := h.store.SaveOutcome(outcome); err != nil {
		if err == storage.ErrDuplicateOutcome {
			h.logger.Info("GATEWAY", fmt.Sprintf("Duplicate callback for %s, re-forwarding", outcome.TransactionID))
		} else {
			c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to record outcome", err.Error()))
			return
		}
	}

	if err := h.ownership.DeliverOutcome(c.Request.Context(), outcome); err != nil {
		h.logger.Error("GATEWAY", fmt.Sprintf("Delivery of %s failed: %v", outcome.TransactionID, err))
		if markErr := h.store.MarkFailed(outcome.TransactionID, err.Error()); markErr != nil {
			h.logger.Error("GATEWAY", fmt.Sprintf("Failed to mark %s failed: %v", outcome.TransactionID, markErr))
		}
		// Accepted for retry; the sweep loop will redeliver.
		c.JSON(http.StatusAccepted, utils.SuccessResponse("outcome recorded, delivery pending", gin.H{
			"transaction_id": outcome.TransactionID,
		}))
		return
	}

	if err := h.store.MarkForwarded(outcome.TransactionID); err != nil {
		h.logger.Error("GATEWAY", fmt.Sprintf("Failed to mark %s forwarded: %v", outcome.TransactionID, err))
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("outcome processed", gin.H{
		"transaction_id": outcome.TransactionID,
	}))
}

// RetryPending redelivers outcomes that never reached the ownership service.
func (h *GatewayHandler) RetryPending(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		pending, err := h.store.ListPending(50)
		if err != nil {
			h.logger.Error("GATEWAY", fmt.Sprintf("Retry sweep failed to list pending: %v", err))
			continue
		}
		for _, stored := range pending {
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			err := h.ownership.DeliverOutcome(ctx, stored.Outcome)
			cancel()
			if err != nil {
				h.logger.Warn("GATEWAY", fmt.Sprintf("Retry of %s failed: %v", stored.Outcome.TransactionID, err))
				continue
			}
			if err := h.store.MarkForwarded(stored.Outcome.TransactionID); err != nil {
				h.logger.Error("GATEWAY", fmt.Sprintf("Failed to mark %s forwarded: %v", stored.Outcome.TransactionID, err))
			}
		}
	}
}

func (h *GatewayHandler) authorized(c *gin.Context) bool {
	if h.webhookSecret == "" {
		return true
	}
	provided := c.GetHeader("X-Callback-Secret")
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.webhookSecret)) == 1
}
