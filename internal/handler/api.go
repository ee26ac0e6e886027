package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rowanhale/fakturo/internal/domain"
)

// DispatchService is the application surface the HTTP layer drives.
type DispatchService interface {
	DispatchInvoiceSend(ctx context.Context, workspaceID uuid.UUID, sequence int64, email, subject, message string) (*domain.Invoice, error)
	MarkViewed(ctx context.Context, workspaceID, invoiceID uuid.UUID) error
	DispatchReceiptSend(ctx context.Context, workspaceID, invoiceID, paymentID uuid.UUID, email, subject, message string) error
}

// API exposes the dispatch operations over HTTP.
type API struct {
	dispatcher DispatchService
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewAPI wires the HTTP handlers.
func NewAPI(dispatcher DispatchService, logger zerolog.Logger) *API {
	return &API{
		dispatcher: dispatcher,
		validate:   validator.New(),
		logger:     logger,
	}
}

// Routes registers all endpoints on e.
func (a *API) Routes(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ws := e.Group("/api/workspaces/:workspace_id")
	ws.POST("/invoices/:sequence/send", a.sendInvoice)
	ws.POST("/invoices/:invoice_id/viewed", a.markViewed)
	ws.POST("/invoices/:invoice_id/payments/:payment_id/receipt", a.sendReceipt)
}

type sendInvoiceRequest struct {
	Email   string `json:"email" validate:"omitempty,email"`
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=5000"`
}

type sendReceiptRequest struct {
	Email   string `json:"email" validate:"omitempty,email"`
	Subject string `json:"subject" validate:"max=200"`
	Message string `json:"message" validate:"max=5000"`
}

// sendInvoice accepts an invoice for sending. A 202 means accepted for
// delivery, not delivered; the invoice shows as sending immediately.
func (a *API) sendInvoice(c echo.Context) error {
	workspaceID, err := uuid.Parse(c.Param("workspace_id"))
	if err != nil {
		return a.errorResponse(c, domain.Invalid("api.send", "workspace_id is not a valid UUID"))
	}
	var sequence int64
	if err := echo.PathParamsBinder(c).Int64("sequence", &sequence).BindError(); err != nil || sequence < 1 {
		return a.errorResponse(c, domain.Invalid("api.send", "sequence must be a positive integer"))
	}

	var req sendInvoiceRequest
	if err := c.Bind(&req); err != nil {
		return a.errorResponse(c, domain.Invalid("api.send", "malformed request body"))
	}
	if err := a.validate.Struct(&req); err != nil {
		return a.errorResponse(c, domain.WrapError(err, domain.EINVALID, "api.send", "invalid send request"))
	}

	inv, err := a.dispatcher.DispatchInvoiceSend(c.Request().Context(), workspaceID, sequence, req.Email, req.Subject, req.Message)
	if err != nil {
		return a.errorResponse(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"invoice_id": inv.ID,
		"sequence":   inv.Sequence,
		"status":     inv.Status,
	})
}

func (a *API) markViewed(c echo.Context) error {
	workspaceID, err := uuid.Parse(c.Param("workspace_id"))
	if err != nil {
		return a.errorResponse(c, domain.Invalid("api.viewed", "workspace_id is not a valid UUID"))
	}
	invoiceID, err := uuid.Parse(c.Param("invoice_id"))
	if err != nil {
		return a.errorResponse(c, domain.Invalid("api.viewed", "invoice_id is not a valid UUID"))
	}

	if err := a.dispatcher.MarkViewed(c.Request().Context(), workspaceID, invoiceID); err != nil {
		return a.errorResponse(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) sendReceipt(c echo.Context) error {
	workspaceID, err := uuid.Parse(c.Param("workspace_id"))
	if err != nil {
		return a.errorResponse(c, domain.Invalid("api.receipt", "workspace_id is not a valid UUID"))
	}
	invoiceID, err := uuid.Parse(c.Param("invoice_id"))
	if err != nil {
		return a.errorResponse(c, domain.Invalid("api.receipt", "invoice_id is not a valid UUID"))
	}
	paymentID, err := uuid.Parse(c.Param("payment_id"))
	if err != nil {
		return a.errorResponse(c, domain.Invalid("api.receipt", "payment_id is not a valid UUID"))
	}

	var req sendReceiptRequest
	if err := c.Bind(&req); err != nil {
		return a.errorResponse(c, domain.Invalid("api.receipt", "malformed request body"))
	}
	if err := a.validate.Struct(&req); err != nil {
		return a.errorResponse(c, domain.WrapError(err, domain.EINVALID, "api.receipt", "invalid receipt request"))
	}

	err = a.dispatcher.DispatchReceiptSend(c.Request().Context(), workspaceID, invoiceID, paymentID, req.Email, req.Subject, req.Message)
	if err != nil {
		return a.errorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

// errorResponse maps domain error codes to HTTP statuses. Internal
// detail is logged, never returned to the caller.
func (a *API) errorResponse(c echo.Context, err error) error {
	code := domain.ErrorCode(err)
	status := statusFromCode(code)

	if status >= http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	} else {
		a.logger.Debug().Err(err).Str("path", c.Path()).Msg("request rejected")
	}

	return c.JSON(status, map[string]string{
		"error": domain.ErrorMessage(err),
		"code":  code,
	})
}

func statusFromCode(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.ERECIPIENT:
		return http.StatusUnprocessableEntity
	case domain.EUPSTREAM:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
