package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment is read-only from this subsystem's perspective; the receipt
// job reads it, nothing here writes it.
type Payment struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	InvoiceID   uuid.UUID
	AmountCents int64
	Method      string
	PaidAt      time.Time
	Notes       string
}
