package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rowanhale/fakturo/internal/domain"
	"github.com/rowanhale/fakturo/internal/render"
	"github.com/rowanhale/fakturo/internal/telemetry"
)

// reminderBatchSize bounds one render-service batch call. Chunks fail
// independently: a broken chunk counts its invoices as failed without
// touching sibling chunks.
const reminderBatchSize = 25

// BatchRenderer is the slice of the render client the scheduler needs.
type BatchRenderer interface {
	RenderBatch(ctx context.Context, payloads []render.Payload) ([][]byte, error)
}

// ReminderMailer sends one reminder email with the rendered document
// attached.
type ReminderMailer interface {
	SendInvoice(ctx context.Context, to, businessName, subject, message, invoiceNumber string, document []byte) error
}

// FanoutResult is the outcome of one reminder run.
type FanoutResult struct {
	Sent   int
	Failed int
}

// Scheduler runs the daily reminder batch: the overdue sweep followed
// by the reminder fan-out. It is a single sequential process; both
// loops run strictly in order.
type Scheduler struct {
	invoices   domain.InvoiceStore
	clients    domain.ClientStore
	businesses domain.BusinessStore
	renderer   BatchRenderer
	mailer     ReminderMailer
	metrics    *telemetry.Metrics
	logger     zerolog.Logger
}

// NewScheduler wires a scheduler.
func NewScheduler(invoices domain.InvoiceStore, clients domain.ClientStore, businesses domain.BusinessStore, renderer BatchRenderer, mailer ReminderMailer, metrics *telemetry.Metrics, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		invoices:   invoices,
		clients:    clients,
		businesses: businesses,
		renderer:   renderer,
		mailer:     mailer,
		metrics:    metrics,
		logger:     logger,
	}
}

// RunOverdueSweep moves sent/viewed invoices whose due date is strictly
// before the start of today (UTC) to overdue. One bulk update,
// idempotent within a day.
func (s *Scheduler) RunOverdueSweep(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.invoices.MarkOverdue(ctx, now)
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.OverdueMarked.Add(float64(n))
	}
	s.logger.Info().Int64("marked", n).Msg("overdue sweep complete")
	return n, nil
}

// candidate pairs an eligible invoice with its resolved collaborators.
type candidate struct {
	invoice  domain.Invoice
	client   *domain.Client
	business *domain.Business
	pastDue  bool
}

// RunReminderFanout evaluates every sent/viewed/overdue invoice for
// reminder eligibility, renders the eligible set in bounded batches,
// and emails each document. Per-invoice failures are counted and
// logged, never fatal.
func (s *Scheduler) RunReminderFanout(ctx context.Context, now time.Time) (FanoutResult, error) {
	var result FanoutResult

	invoices, err := s.invoices.ListRemindable(ctx)
	if err != nil {
		return result, err
	}

	clientCache := map[uuid.UUID]*domain.Client{}
	businessCache := map[uuid.UUID]*domain.Business{}

	var eligible []candidate
	for i := range invoices {
		inv := invoices[i]

		client, ok := clientCache[inv.ClientID]
		if !ok {
			client, err = s.clients.GetByID(ctx, inv.WorkspaceID, inv.ClientID)
			if err != nil {
				s.logger.Warn().Err(err).
					Str("invoice", inv.InvoiceNumber).
					Msg("skipping invoice with unresolvable client")
				continue
			}
			clientCache[inv.ClientID] = client
		}

		pastDue := inv.PastDue(now)
		if !eligibleForReminder(&inv, client, now) {
			continue
		}

		business, ok := businessCache[inv.WorkspaceID]
		if !ok {
			business, err = s.businesses.GetByWorkspace(ctx, inv.WorkspaceID)
			if err != nil {
				s.logger.Warn().Err(err).
					Str("workspace_id", inv.WorkspaceID.String()).
					Msg("skipping invoice with unresolvable business")
				continue
			}
			businessCache[inv.WorkspaceID] = business
		}

		eligible = append(eligible, candidate{
			invoice:  inv,
			client:   client,
			business: business,
			pastDue:  pastDue,
		})
	}

	for start := 0; start < len(eligible); start += reminderBatchSize {
		end := start + reminderBatchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		sent, failed := s.processChunk(ctx, eligible[start:end], now)
		result.Sent += sent
		result.Failed += failed
	}

	if s.metrics != nil {
		s.metrics.RemindersSent.Add(float64(result.Sent))
		s.metrics.RemindersFailed.Add(float64(result.Failed))
	}
	s.logger.Info().
		Int("eligible", len(eligible)).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Msg("reminder fanout complete")
	return result, nil
}

// processChunk renders one bounded batch and emails its documents. A
// failed batch render fails the whole chunk; everything after that is
// per-invoice.
func (s *Scheduler) processChunk(ctx context.Context, chunk []candidate, now time.Time) (sent, failed int) {
	payloads := make([]render.Payload, len(chunk))
	for i, c := range chunk {
		items, err := s.invoices.ListItems(ctx, c.invoice.ID)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("invoice", c.invoice.InvoiceNumber).
				Msg("failed to load items, rendering without line items")
			items = nil
		}
		payloads[i] = render.BuildPayload(&chunk[i].invoice, c.client, c.business, items)
	}

	docs, err := s.renderer.RenderBatch(ctx, payloads)
	if err != nil {
		s.logger.Error().Err(err).
			Int("invoices", len(chunk)).
			Msg("batch render failed, chunk counted as failed")
		return 0, len(chunk)
	}

	for i, c := range chunk {
		if i >= len(docs) || docs[i] == nil {
			s.logger.Error().
				Str("invoice", c.invoice.InvoiceNumber).
				Msg("batch render returned no document for invoice")
			failed++
			continue
		}

		phrase := "is due soon"
		if c.pastDue {
			phrase = "is overdue"
		}
		subject := fmt.Sprintf("Reminder: invoice %s %s", c.invoice.InvoiceNumber, phrase)
		message := fmt.Sprintf("This is a reminder that invoice %s %s. The attached copy has the details.",
			c.invoice.InvoiceNumber, phrase)

		err := s.mailer.SendInvoice(ctx, c.client.Email, c.business.Name, subject, message, c.invoice.InvoiceNumber, docs[i])
		if err != nil {
			s.logger.Error().Err(err).
				Str("invoice", c.invoice.InvoiceNumber).
				Msg("reminder email failed")
			failed++
			continue
		}

		if err := s.invoices.SetLastReminderSentAt(ctx, c.invoice.WorkspaceID, c.invoice.ID, now); err != nil {
			// The email went out; the bookkeeping write can be retried
			// next run at worst (the client may get one extra reminder).
			s.logger.Error().Err(err).
				Str("invoice", c.invoice.InvoiceNumber).
				Msg("failed to record reminder timestamp")
		}
		sent++
	}
	return sent, failed
}

// eligibleForReminder applies the interval rule. An invoice that has
// never been reminded is immediately eligible once its direction is
// enabled; otherwise the configured number of whole days must have
// passed since the last reminder.
func eligibleForReminder(inv *domain.Invoice, client *domain.Client, now time.Time) bool {
	interval, enabled := client.ReminderInterval(inv.PastDue(now))
	if !enabled {
		return false
	}

	daysSinceLast := interval
	if inv.LastReminderSentAt != nil {
		elapsed := domain.StartOfDayUTC(now).Sub(domain.StartOfDayUTC(*inv.LastReminderSentAt))
		daysSinceLast = int32(elapsed.Hours() / 24)
	}
	return daysSinceLast >= interval
}
