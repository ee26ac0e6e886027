package postgres

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowanhale/fakturo/internal/domain"
)

// InvoiceStore implements domain.InvoiceStore using PostgreSQL.
type InvoiceStore struct {
	pool *pgxpool.Pool
}

var _ domain.InvoiceStore = (*InvoiceStore)(nil)

func NewInvoiceStore(pool *pgxpool.Pool) *InvoiceStore {
	return &InvoiceStore{pool: pool}
}

const invoiceColumns = `id, workspace_id, sequence, client_id, invoice_number, status,
	due_date, subtotal_cents, tax_cents, total_cents, balance_cents, currency,
	last_reminder_sent_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (*domain.Invoice, error) {
	var inv domain.Invoice
	var status string
	err := row.Scan(
		&inv.ID, &inv.WorkspaceID, &inv.Sequence, &inv.ClientID, &inv.InvoiceNumber,
		&status, &inv.DueDate, &inv.SubtotalCents, &inv.TaxCents, &inv.TotalCents,
		&inv.BalanceCents, &inv.Currency, &inv.LastReminderSentAt,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Status = domain.InvoiceStatus(status)
	return &inv, nil
}

// GetBySequence loads an invoice by its per-workspace sequence.
func (s *InvoiceStore) GetBySequence(ctx context.Context, workspaceID uuid.UUID, sequence int64) (*domain.Invoice, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE workspace_id = $1 AND sequence = $2`,
		workspaceID, sequence,
	)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("invoice.get", "invoice", invoiceRef(workspaceID, sequence))
	}
	if err != nil {
		return nil, domain.Internal(err, "invoice.get", "failed to load invoice")
	}
	return inv, nil
}

// GetByID loads an invoice by primary id.
func (s *InvoiceStore) GetByID(ctx context.Context, workspaceID, invoiceID uuid.UUID) (*domain.Invoice, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE workspace_id = $1 AND id = $2`,
		workspaceID, invoiceID,
	)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("invoice.get", "invoice", invoiceID.String())
	}
	if err != nil {
		return nil, domain.Internal(err, "invoice.get", "failed to load invoice")
	}
	return inv, nil
}

// TransitionStatus applies a guarded status change. The guard lives in
// the UPDATE itself so concurrent writers cannot interleave a
// read-modify-write.
func (s *InvoiceStore) TransitionStatus(ctx context.Context, workspaceID, invoiceID uuid.UUID, from []domain.InvoiceStatus, to domain.InvoiceStatus) (bool, error) {
	if !to.Valid() {
		return false, domain.Errorf(domain.EINVALID, "invoice.transition", "unknown status %q", to)
	}
	fromStrs := make([]string, len(from))
	for i, f := range from {
		if !domain.CanTransition(f, to) {
			return false, domain.Errorf(domain.ECONFLICT, "invoice.transition",
				"transition %s -> %s is not permitted", f, to)
		}
		fromStrs[i] = string(f)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE invoices SET status = $1, updated_at = now()
		 WHERE workspace_id = $2 AND id = $3 AND status = ANY($4)`,
		string(to), workspaceID, invoiceID, fromStrs,
	)
	if err != nil {
		return false, domain.Internal(err, "invoice.transition", "failed to update invoice status")
	}
	return tag.RowsAffected() > 0, nil
}

// MarkOverdue is the daily sweep's single bulk update. The strict
// inequality keeps invoices due today out; already-overdue rows are not
// selected, which makes a same-day rerun update zero rows.
func (s *InvoiceStore) MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE invoices SET status = 'overdue', updated_at = now()
		 WHERE status IN ('sent', 'viewed') AND due_date < $1`,
		domain.StartOfDayUTC(cutoff),
	)
	if err != nil {
		return 0, domain.Internal(err, "invoice.mark_overdue", "failed to mark invoices overdue")
	}
	return tag.RowsAffected(), nil
}

// ListRemindable returns reminder candidates across all workspaces.
func (s *InvoiceStore) ListRemindable(ctx context.Context) ([]domain.Invoice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE status IN ('sent', 'viewed', 'overdue')
		 ORDER BY workspace_id, sequence`,
	)
	if err != nil {
		return nil, domain.Internal(err, "invoice.list_remindable", "failed to list invoices")
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, domain.Internal(err, "invoice.list_remindable", "failed to scan invoice")
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "invoice.list_remindable", "failed to read invoices")
	}
	return invoices, nil
}

// SetLastReminderSentAt advances the reminder timestamp. GREATEST keeps
// the column monotonically non-decreasing under concurrent senders.
func (s *InvoiceStore) SetLastReminderSentAt(ctx context.Context, workspaceID, invoiceID uuid.UUID, sentAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE invoices
		 SET last_reminder_sent_at = GREATEST(COALESCE(last_reminder_sent_at, 'epoch'::timestamptz), $1),
		     updated_at = now()
		 WHERE workspace_id = $2 AND id = $3`,
		sentAt, workspaceID, invoiceID,
	)
	if err != nil {
		return domain.Internal(err, "invoice.set_reminder_sent", "failed to update reminder timestamp")
	}
	return nil
}

// ListItems returns the invoice's line items for rendering.
func (s *InvoiceStore) ListItems(ctx context.Context, invoiceID uuid.UUID) ([]domain.InvoiceItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT description, quantity, unit_cents, total_cents
		 FROM invoice_items WHERE invoice_id = $1 ORDER BY position`,
		invoiceID,
	)
	if err != nil {
		return nil, domain.Internal(err, "invoice.list_items", "failed to list invoice items")
	}
	defer rows.Close()

	var items []domain.InvoiceItem
	for rows.Next() {
		var it domain.InvoiceItem
		if err := rows.Scan(&it.Description, &it.Quantity, &it.UnitCents, &it.TotalCents); err != nil {
			return nil, domain.Internal(err, "invoice.list_items", "failed to scan invoice item")
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "invoice.list_items", "failed to read invoice items")
	}
	return items, nil
}

func invoiceRef(workspaceID uuid.UUID, sequence int64) string {
	return workspaceID.String()[:8] + "/" + strconv.FormatInt(sequence, 10)
}
