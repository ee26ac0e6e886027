package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rowanhale/fakturo/internal/domain"
	"github.com/rowanhale/fakturo/internal/queue"
	"github.com/rowanhale/fakturo/internal/render"
	"github.com/rowanhale/fakturo/internal/telemetry"
)

// DocumentRenderer is the slice of the render client the worker needs.
type DocumentRenderer interface {
	RenderOne(ctx context.Context, payload render.Payload) ([]byte, error)
	RenderReceipt(ctx context.Context, payload render.Payload) ([]byte, error)
}

// Mailer sends the three email shapes the worker produces.
type Mailer interface {
	SendInvoice(ctx context.Context, to, businessName, subject, message, invoiceNumber string, document []byte) error
	SendReceipt(ctx context.Context, to, businessName, subject, message, invoiceNumber string, document []byte) error
	SendPlain(ctx context.Context, to, subject, message string) error
}

// StatusRecorder closes the send saga: confirm on success, fail on
// exhausted retries.
type StatusRecorder interface {
	ConfirmInvoiceSent(ctx context.Context, workspaceID, invoiceID uuid.UUID) error
	MarkSendFailed(ctx context.Context, workspaceID, invoiceID uuid.UUID) error
}

// Worker processes email jobs pulled from the queue. One Worker handles
// both topics; each handler processes a single delivery at a time.
type Worker struct {
	invoices   domain.InvoiceStore
	clients    domain.ClientStore
	payments   domain.PaymentStore
	businesses domain.BusinessStore
	renderer   DocumentRenderer
	mailer     Mailer
	statuses   StatusRecorder
	metrics    *telemetry.Metrics
	logger     zerolog.Logger

	// operatorEmail receives terminal-failure notifications. Empty
	// disables them.
	operatorEmail string
}

// New wires a worker.
func New(
	invoices domain.InvoiceStore,
	clients domain.ClientStore,
	payments domain.PaymentStore,
	businesses domain.BusinessStore,
	renderer DocumentRenderer,
	mailer Mailer,
	statuses StatusRecorder,
	metrics *telemetry.Metrics,
	logger zerolog.Logger,
	operatorEmail string,
) *Worker {
	return &Worker{
		invoices:      invoices,
		clients:       clients,
		payments:      payments,
		businesses:    businesses,
		renderer:      renderer,
		mailer:        mailer,
		statuses:      statuses,
		metrics:       metrics,
		logger:        logger,
		operatorEmail: operatorEmail,
	}
}

// HandleInvoiceJob processes one email-invoice delivery. A retryable
// error lets the queue redeliver with backoff; on the final attempt (or
// a permanent error) the invoice is moved to send_failed and the
// operator is notified.
func (w *Worker) HandleInvoiceJob(ctx context.Context, job *queue.Job) error {
	started := time.Now()
	payload, err := job.Envelope.DecodeInvoicePayload()
	if err != nil {
		return err
	}

	err = w.processInvoiceJob(ctx, payload)
	w.observe(queue.TopicEmailInvoice, started, err)
	if err == nil {
		return nil
	}

	if job.Final() || !domain.Retryable(err) {
		w.logger.Error().Err(err).
			Str("invoice_id", payload.InvoiceID.String()).
			Int("attempt", job.Attempt).
			Msg("invoice send failed terminally")

		if ferr := w.statuses.MarkSendFailed(ctx, payload.WorkspaceID, payload.InvoiceID); ferr != nil {
			w.logger.Error().Err(ferr).
				Str("invoice_id", payload.InvoiceID.String()).
				Msg("failed to mark invoice send_failed")
		}
		w.notifyOperator(ctx,
			fmt.Sprintf("Invoice send failed (sequence %d)", payload.Sequence),
			fmt.Sprintf("Sending invoice %s to %s failed after %d attempt(s): %v",
				payload.InvoiceID, payload.Email, job.Attempt, err))
	}
	return err
}

func (w *Worker) processInvoiceJob(ctx context.Context, payload *queue.InvoiceEmailPayload) error {
	inv, err := w.invoices.GetBySequence(ctx, payload.WorkspaceID, payload.Sequence)
	if err != nil {
		return err
	}

	// A missing client may be a lagging read; the attempt cap bounds
	// the retries either way.
	client, err := w.clients.GetByID(ctx, payload.WorkspaceID, inv.ClientID)
	if err != nil {
		return err
	}

	business, err := w.businesses.GetByWorkspace(ctx, payload.WorkspaceID)
	if err != nil {
		w.logger.Warn().Err(err).
			Str("workspace_id", payload.WorkspaceID.String()).
			Msg("rendering invoice without business details")
		business = nil
	}

	items, err := w.invoices.ListItems(ctx, inv.ID)
	if err != nil {
		w.logger.Warn().Err(err).
			Str("invoice", inv.InvoiceNumber).
			Msg("rendering invoice without line items")
		items = nil
	}

	doc, err := w.renderer.RenderOne(ctx, render.BuildPayload(inv, client, business, items))
	if err != nil {
		return err
	}

	subject := payload.Subject
	if subject == "" {
		subject = fmt.Sprintf("Invoice %s", inv.InvoiceNumber)
	}
	businessName := ""
	if business != nil {
		businessName = business.Name
	}

	if err := w.mailer.SendInvoice(ctx, payload.Email, businessName, subject, payload.Message, inv.InvoiceNumber, doc); err != nil {
		w.countEmail("invoice", false)
		return err
	}
	w.countEmail("invoice", true)

	if err := w.statuses.ConfirmInvoiceSent(ctx, payload.WorkspaceID, inv.ID); err != nil {
		// The email went out; a redelivery re-sends it, which the
		// at-least-once contract permits.
		return err
	}

	w.logger.Info().
		Str("invoice", inv.InvoiceNumber).
		Str("to", payload.Email).
		Msg("invoice email sent")
	return nil
}

// HandleReceiptJob processes one email-receipt delivery. Receipts do
// not touch invoice status; a terminal failure only notifies the
// operator.
func (w *Worker) HandleReceiptJob(ctx context.Context, job *queue.Job) error {
	started := time.Now()
	payload, err := job.Envelope.DecodeReceiptPayload()
	if err != nil {
		return err
	}

	err = w.processReceiptJob(ctx, payload)
	w.observe(queue.TopicEmailReceipt, started, err)
	if err == nil {
		return nil
	}

	if job.Final() || !domain.Retryable(err) {
		w.logger.Error().Err(err).
			Str("invoice_id", payload.InvoiceID.String()).
			Str("payment_id", payload.PaymentID.String()).
			Int("attempt", job.Attempt).
			Msg("receipt send failed terminally")
		w.notifyOperator(ctx,
			"Receipt send failed",
			fmt.Sprintf("Sending the receipt for invoice %s (payment %s) failed after %d attempt(s): %v",
				payload.InvoiceID, payload.PaymentID, job.Attempt, err))
	}
	return err
}

func (w *Worker) processReceiptJob(ctx context.Context, payload *queue.ReceiptEmailPayload) error {
	inv, err := w.invoices.GetByID(ctx, payload.WorkspaceID, payload.InvoiceID)
	if err != nil {
		return err
	}

	client, err := w.clients.GetByID(ctx, payload.WorkspaceID, inv.ClientID)
	if err != nil {
		return err
	}

	recipient := payload.Email
	if recipient == "" {
		recipient = client.Email
	}
	if recipient == "" {
		return domain.Errorf(domain.ERECIPIENT, "worker.receipt",
			"no recipient for receipt on invoice %s: payload and client both lack an email", inv.InvoiceNumber)
	}

	payment, err := w.payments.GetByID(ctx, payload.WorkspaceID, payload.InvoiceID, payload.PaymentID)
	if err != nil {
		return err
	}

	business, err := w.businesses.GetByWorkspace(ctx, payload.WorkspaceID)
	if err != nil {
		w.logger.Warn().Err(err).
			Str("workspace_id", payload.WorkspaceID.String()).
			Msg("rendering receipt without business details")
		business = nil
	}

	doc, err := w.renderer.RenderReceipt(ctx, render.BuildReceiptPayload(inv, client, business, payment))
	if err != nil {
		return err
	}

	businessName := ""
	if business != nil {
		businessName = business.Name
	}
	if err := w.mailer.SendReceipt(ctx, recipient, businessName, payload.Subject, payload.Message, inv.InvoiceNumber, doc); err != nil {
		w.countEmail("receipt", false)
		return err
	}
	w.countEmail("receipt", true)

	w.logger.Info().
		Str("invoice", inv.InvoiceNumber).
		Str("to", recipient).
		Msg("receipt email sent")
	return nil
}

// notifyOperator sends a failure alert. Notification failures are
// logged and swallowed; they must never fail the job that triggered
// them.
func (w *Worker) notifyOperator(ctx context.Context, subject, message string) {
	if w.operatorEmail == "" {
		return
	}
	if err := w.mailer.SendPlain(ctx, w.operatorEmail, subject, message); err != nil {
		w.logger.Error().Err(err).Msg("operator notification failed")
		w.countEmail("operator", false)
		return
	}
	w.countEmail("operator", true)
}

func (w *Worker) observe(topic string, started time.Time, err error) {
	if w.metrics == nil {
		return
	}
	w.metrics.JobDuration.WithLabelValues(topic).Observe(time.Since(started).Seconds())
	if err == nil {
		w.metrics.JobsProcessed.WithLabelValues(topic).Inc()
		return
	}
	permanent := "false"
	if !domain.Retryable(err) {
		permanent = "true"
	}
	w.metrics.JobsFailed.WithLabelValues(topic, permanent).Inc()
}

func (w *Worker) countEmail(kind string, ok bool) {
	if w.metrics == nil {
		return
	}
	if ok {
		w.metrics.EmailSent.WithLabelValues(kind).Inc()
	} else {
		w.metrics.EmailFailed.WithLabelValues(kind).Inc()
	}
}
