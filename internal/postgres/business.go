package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowanhale/fakturo/internal/domain"
)

// BusinessStore implements domain.BusinessStore using PostgreSQL.
type BusinessStore struct {
	pool *pgxpool.Pool
}

var _ domain.BusinessStore = (*BusinessStore)(nil)

func NewBusinessStore(pool *pgxpool.Pool) *BusinessStore {
	return &BusinessStore{pool: pool}
}

func (s *BusinessStore) GetByWorkspace(ctx context.Context, workspaceID uuid.UUID) (*domain.Business, error) {
	var b domain.Business
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, address, phone, tax_id
		 FROM businesses WHERE workspace_id = $1`,
		workspaceID,
	).Scan(&b.ID, &b.Name, &b.Email, &b.Address, &b.Phone, &b.TaxID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("business.get", "business", workspaceID.String())
	}
	if err != nil {
		return nil, domain.Internal(err, "business.get", "failed to load business")
	}
	return &b, nil
}
