package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rowanhale/fakturo/internal/domain"
	"github.com/rowanhale/fakturo/internal/queue"
)

// Enqueuer is the slice of the queue broker the dispatcher needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, topic string, payload interface{}) error
}

// Dispatcher accepts send requests, applies the eager status
// transition, and hands the actual work to the queue. The invoice shows
// as sending immediately; the worker confirms or fails it later.
type Dispatcher struct {
	invoices domain.InvoiceStore
	clients  domain.ClientStore
	payments domain.PaymentStore
	queue    Enqueuer
	logger   zerolog.Logger
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(invoices domain.InvoiceStore, clients domain.ClientStore, payments domain.PaymentStore, q Enqueuer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		invoices: invoices,
		clients:  clients,
		payments: payments,
		queue:    q,
		logger:   logger,
	}
}

// DispatchInvoiceSend accepts an invoice for sending. The invoice moves
// to sending synchronously, before any render or provider call, so the
// caller sees the new status immediately. A missing invoice or client
// aborts with no state change.
//
// The status write and the enqueue are two steps, not one transaction:
// if the publish fails after the transition, the invoice is moved to
// send_failed so the caller can re-dispatch.
func (d *Dispatcher) DispatchInvoiceSend(ctx context.Context, workspaceID uuid.UUID, sequence int64, email, subject, message string) (*domain.Invoice, error) {
	const op = "dispatch.invoice"

	inv, err := d.invoices.GetBySequence(ctx, workspaceID, sequence)
	if err != nil {
		return nil, err
	}

	client, err := d.clients.GetByID(ctx, workspaceID, inv.ClientID)
	if err != nil {
		return nil, err
	}

	recipient := email
	if recipient == "" {
		recipient = client.Email
	}
	if recipient == "" {
		return nil, domain.Errorf(domain.ERECIPIENT, op,
			"invoice %s has no recipient: client %s has no email address", inv.InvoiceNumber, client.Name)
	}

	updated, err := d.invoices.TransitionStatus(ctx, workspaceID, inv.ID,
		[]domain.InvoiceStatus{domain.StatusDraft, domain.StatusSendFailed}, domain.StatusSending)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.Errorf(domain.ECONFLICT, op,
			"invoice %s is not in a sendable status (%s)", inv.InvoiceNumber, inv.Status)
	}
	inv.Status = domain.StatusSending

	err = d.queue.Enqueue(ctx, queue.TopicEmailInvoice, queue.InvoiceEmailPayload{
		WorkspaceID: workspaceID,
		InvoiceID:   inv.ID,
		Sequence:    sequence,
		Email:       recipient,
		Subject:     subject,
		Message:     message,
	})
	if err != nil {
		// Compensate so the invoice does not sit in sending forever.
		if _, ferr := d.invoices.TransitionStatus(ctx, workspaceID, inv.ID,
			[]domain.InvoiceStatus{domain.StatusSending}, domain.StatusSendFailed); ferr != nil {
			d.logger.Error().Err(ferr).
				Str("invoice", inv.InvoiceNumber).
				Msg("failed to mark invoice send_failed after enqueue failure")
		} else {
			inv.Status = domain.StatusSendFailed
		}
		return nil, err
	}

	d.logger.Info().
		Str("workspace_id", workspaceID.String()).
		Str("invoice", inv.InvoiceNumber).
		Msg("invoice send dispatched")
	return inv, nil
}

// ConfirmInvoiceSent records that the worker delivered the email. It is
// idempotent: confirming an invoice that already moved past sending is
// a no-op.
func (d *Dispatcher) ConfirmInvoiceSent(ctx context.Context, workspaceID, invoiceID uuid.UUID) error {
	updated, err := d.invoices.TransitionStatus(ctx, workspaceID, invoiceID,
		[]domain.InvoiceStatus{domain.StatusSending}, domain.StatusSent)
	if err != nil {
		return err
	}
	if updated {
		return nil
	}

	inv, err := d.invoices.GetByID(ctx, workspaceID, invoiceID)
	if err != nil {
		return err
	}
	switch inv.Status {
	case domain.StatusSent, domain.StatusViewed, domain.StatusOverdue, domain.StatusPaid:
		return nil
	}
	return domain.Errorf(domain.ECONFLICT, "dispatch.confirm",
		"invoice %s cannot be confirmed sent from %s", inv.InvoiceNumber, inv.Status)
}

// MarkSendFailed moves a sending invoice to send_failed after the queue
// exhausted its retries. Idempotent for already-failed invoices.
func (d *Dispatcher) MarkSendFailed(ctx context.Context, workspaceID, invoiceID uuid.UUID) error {
	updated, err := d.invoices.TransitionStatus(ctx, workspaceID, invoiceID,
		[]domain.InvoiceStatus{domain.StatusSending}, domain.StatusSendFailed)
	if err != nil {
		return err
	}
	if updated {
		return nil
	}

	inv, err := d.invoices.GetByID(ctx, workspaceID, invoiceID)
	if err != nil {
		return err
	}
	if inv.Status == domain.StatusSendFailed {
		return nil
	}
	return domain.Errorf(domain.ECONFLICT, "dispatch.fail",
		"invoice %s cannot be marked send_failed from %s", inv.InvoiceNumber, inv.Status)
}

// MarkViewed records that the client opened the invoice. Safe to call
// repeatedly; only sent invoices change.
func (d *Dispatcher) MarkViewed(ctx context.Context, workspaceID, invoiceID uuid.UUID) error {
	updated, err := d.invoices.TransitionStatus(ctx, workspaceID, invoiceID,
		[]domain.InvoiceStatus{domain.StatusSent}, domain.StatusViewed)
	if err != nil {
		return err
	}
	if updated {
		return nil
	}

	inv, err := d.invoices.GetByID(ctx, workspaceID, invoiceID)
	if err != nil {
		return err
	}
	switch inv.Status {
	case domain.StatusViewed, domain.StatusOverdue, domain.StatusPaid:
		return nil
	}
	return domain.Errorf(domain.ECONFLICT, "dispatch.viewed",
		"invoice %s cannot be marked viewed from %s", inv.InvoiceNumber, inv.Status)
}

// DispatchReceiptSend enqueues a receipt email for a recorded payment.
// No status change: receipts do not participate in the send lifecycle.
// The recipient may be empty; the worker falls back to the client's
// email at delivery time.
func (d *Dispatcher) DispatchReceiptSend(ctx context.Context, workspaceID, invoiceID, paymentID uuid.UUID, email, subject, message string) error {
	inv, err := d.invoices.GetByID(ctx, workspaceID, invoiceID)
	if err != nil {
		return err
	}
	if _, err := d.payments.GetByID(ctx, workspaceID, invoiceID, paymentID); err != nil {
		return err
	}

	err = d.queue.Enqueue(ctx, queue.TopicEmailReceipt, queue.ReceiptEmailPayload{
		WorkspaceID: workspaceID,
		InvoiceID:   invoiceID,
		PaymentID:   paymentID,
		Email:       email,
		Subject:     subject,
		Message:     message,
	})
	if err != nil {
		return err
	}

	d.logger.Info().
		Str("workspace_id", workspaceID.String()).
		Str("invoice", inv.InvoiceNumber).
		Str("payment_id", paymentID.String()).
		Msg("receipt send dispatched")
	return nil
}
