package handlers

import (
	"errors"
	"io"
	"net/http"

	"cafe_backend/internal/services"
	"cafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	razorpaySignatureHeader = "X-Razorpay-Signature"
	razorpayEventIDHeader   = "X-Razorpay-Event-Id"
	maxWebhookBody          = 1 << 20
)

// WebhookHandler receives payment gateway callbacks.
type WebhookHandler struct {
	paymentService services.PaymentService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(ps services.PaymentService) *WebhookHandler {
	return &WebhookHandler{paymentService: ps}
}

// HandleRazorpay verifies and applies a Razorpay event. Verified deliveries that do not
// match an order still get 200 so the gateway stops retrying them; only infrastructure
// failures return 5xx.
func (h *WebhookHandler) HandleRazorpay(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		utils.LogError(err, "HandleRazorpay: Failed to read body")
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, "Unreadable request body.", err.Error()))
		return
	}

	result, err := h.paymentService.HandleWebhook(c.Request.Context(), body, c.GetHeader(razorpaySignatureHeader), c.GetHeader(razorpayEventIDHeader))
	if err != nil {
		if errors.Is(err, services.ErrInvalidSignature) {
			utils.LogWarn("HandleRazorpay: signature verification failed", map[string]interface{}{"client_ip": c.ClientIP()})
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeInvalidSignature, "Invalid webhook signature.", "signature mismatch"))
		} else if errors.Is(err, services.ErrValidation) {
			utils.LogError(err, "HandleRazorpay: Malformed event")
			utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeValidationFailed, "Malformed webhook payload.", err.Error()))
		} else {
			utils.LogError(err, "HandleRazorpay: Error from paymentService.HandleWebhook")
			utils.RespondInternalError(c, "Failed to process webhook.")
		}
		return
	}
	c.JSON(http.StatusOK, result)
}
