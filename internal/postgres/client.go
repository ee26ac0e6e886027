package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowanhale/fakturo/internal/domain"
)

// ClientStore implements domain.ClientStore using PostgreSQL.
type ClientStore struct {
	pool *pgxpool.Pool
}

var _ domain.ClientStore = (*ClientStore)(nil)

func NewClientStore(pool *pgxpool.Pool) *ClientStore {
	return &ClientStore{pool: pool}
}

func (s *ClientStore) GetByID(ctx context.Context, workspaceID, clientID uuid.UUID) (*domain.Client, error) {
	var c domain.Client
	err := s.pool.QueryRow(ctx,
		`SELECT id, workspace_id, name, email,
		        reminder_before_due_interval_days, reminder_after_due_interval_days
		 FROM clients WHERE workspace_id = $1 AND id = $2`,
		workspaceID, clientID,
	).Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.Email,
		&c.ReminderBeforeDueIntervalDays, &c.ReminderAfterDueIntervalDays)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("client.get", "client", clientID.String())
	}
	if err != nil {
		return nil, domain.Internal(err, "client.get", "failed to load client")
	}
	return &c, nil
}
