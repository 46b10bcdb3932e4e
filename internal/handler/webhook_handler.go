package handler

import (
	"io"
	"log"
	"net/http"

	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Stripe caps event payloads well below this.
const maxWebhookBody = 1 << 16

type WebhookHandler struct {
	webhookService service.WebhookService
	signingSecret  string
}

func NewWebhookHandler(webhookService service.WebhookService, signingSecret string) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService, signingSecret: signingSecret}
}

func (h *WebhookHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/stripe", h.HandleStripe)
}

// HandleStripe verifies the event signature and dispatches it
// @Summary      Stripe webhook
// @Description  Signature-verified event intake. Handlers are idempotent under redelivery.
// @Tags         webhook
// @Accept       json
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Router       /webhook/stripe [post]
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "unable to read request body"))
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.signingSecret)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(response.CodeValidation, "webhook signature verification failed"))
		return
	}

	if err := h.webhookService.HandleEvent(c.Request.Context(), event); err != nil {
		// Non-2xx makes Stripe redeliver; every handler tolerates replays.
		log.Printf("webhook: %s %s failed: %v", event.Type, event.ID, err)
		c.JSON(response.FromError(err))
		return
	}
	c.JSON(http.StatusOK, response.Success("", nil))
}
