package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

// ReceiptDispatcher enqueues a receipt email for a recorded payment.
type ReceiptDispatcher interface {
	DispatchReceiptSend(ctx context.Context, workspaceID, invoiceID, paymentID uuid.UUID, email, subject, message string) error
}

// StripeHandler turns payment_intent.succeeded events into receipt
// sends. Payment recording itself is owned by the billing API; this
// handler only reacts to it.
type StripeHandler struct {
	dispatcher    ReceiptDispatcher
	webhookSecret string
	logger        zerolog.Logger
}

// NewStripeHandler creates a Stripe webhook handler.
func NewStripeHandler(dispatcher ReceiptDispatcher, webhookSecret string, logger zerolog.Logger) *StripeHandler {
	return &StripeHandler{
		dispatcher:    dispatcher,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// Routes registers the webhook endpoint on e.
func (h *StripeHandler) Routes(e *echo.Echo) {
	e.POST("/webhooks/stripe", h.handleWebhook)
}

func (h *StripeHandler) handleWebhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "error reading request body")
	}

	signature := c.Request().Header.Get("Stripe-Signature")
	if signature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing signature")
	}

	event, err := stripewebhook.ConstructEvent(payload, signature, h.webhookSecret)
	if err != nil {
		h.logger.Warn().Err(err).Msg("stripe signature verification failed")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	switch event.Type {
	case "payment_intent.succeeded":
		h.handlePaymentIntentSucceeded(c.Request().Context(), event)
	default:
		h.logger.Debug().Str("type", string(event.Type)).Msg("unhandled stripe event")
	}

	// Always acknowledge; Stripe retries on non-2xx.
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

// handlePaymentIntentSucceeded dispatches a receipt email when the
// payment metadata identifies one of our invoices. Failures are logged,
// not returned: the webhook must stay acknowledged either way.
func (h *StripeHandler) handlePaymentIntentSucceeded(ctx context.Context, event stripe.Event) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		h.logger.Error().Err(err).Msg("failed to parse payment intent from webhook")
		return
	}

	workspaceID, err := uuid.Parse(intent.Metadata["workspace_id"])
	if err != nil {
		h.logger.Debug().Str("payment_intent", intent.ID).Msg("payment intent without workspace metadata, skipping")
		return
	}
	invoiceID, err := uuid.Parse(intent.Metadata["invoice_id"])
	if err != nil {
		h.logger.Debug().Str("payment_intent", intent.ID).Msg("payment intent without invoice metadata, skipping")
		return
	}
	paymentID, err := uuid.Parse(intent.Metadata["payment_id"])
	if err != nil {
		h.logger.Debug().Str("payment_intent", intent.ID).Msg("payment intent without payment metadata, skipping")
		return
	}

	email := intent.Metadata["receipt_email"]
	if email == "" && intent.ReceiptEmail != "" {
		email = intent.ReceiptEmail
	}

	if err := h.dispatcher.DispatchReceiptSend(ctx, workspaceID, invoiceID, paymentID, email, "", ""); err != nil {
		h.logger.Error().Err(err).
			Str("invoice_id", invoiceID.String()).
			Str("payment_id", paymentID.String()).
			Msg("failed to dispatch receipt from webhook")
		return
	}

	h.logger.Info().
		Str("invoice_id", invoiceID.String()).
		Str("payment_id", paymentID.String()).
		Msg("receipt dispatched from stripe webhook")
}
