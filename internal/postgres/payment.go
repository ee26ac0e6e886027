package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowanhale/fakturo/internal/domain"
)

// PaymentStore implements domain.PaymentStore using PostgreSQL.
type PaymentStore struct {
	pool *pgxpool.Pool
}

var _ domain.PaymentStore = (*PaymentStore)(nil)

func NewPaymentStore(pool *pgxpool.Pool) *PaymentStore {
	return &PaymentStore{pool: pool}
}

func (s *PaymentStore) GetByID(ctx context.Context, workspaceID, invoiceID, paymentID uuid.UUID) (*domain.Payment, error) {
	var p domain.Payment
	err := s.pool.QueryRow(ctx,
		`SELECT id, workspace_id, invoice_id, amount_cents, method, paid_at, notes
		 FROM payments WHERE workspace_id = $1 AND invoice_id = $2 AND id = $3`,
		workspaceID, invoiceID, paymentID,
	).Scan(&p.ID, &p.WorkspaceID, &p.InvoiceID, &p.AmountCents, &p.Method, &p.PaidAt, &p.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("payment.get", "payment", paymentID.String())
	}
	if err != nil {
		return nil, domain.Internal(err, "payment.get", "failed to load payment")
	}
	return &p, nil
}
