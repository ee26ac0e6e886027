package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InvoiceStore is the narrow persistence surface this subsystem needs.
// Implementations must scope every operation by workspace and apply
// status guards inside the UPDATE itself rather than read-modify-write.
type InvoiceStore interface {
	// GetBySequence loads an invoice by its per-workspace sequence.
	GetBySequence(ctx context.Context, workspaceID uuid.UUID, sequence int64) (*Invoice, error)

	// GetByID loads an invoice by primary id.
	GetByID(ctx context.Context, workspaceID, invoiceID uuid.UUID) (*Invoice, error)

	// TransitionStatus applies a guarded status change: the row is
	// updated only if its current status is one of from. Returns
	// true when a row changed, false when the guard did not match.
	TransitionStatus(ctx context.Context, workspaceID, invoiceID uuid.UUID, from []InvoiceStatus, to InvoiceStatus) (bool, error)

	// MarkOverdue bulk-moves sent/viewed invoices with a due date
	// strictly before cutoff to overdue, across all workspaces.
	// Returns the number of rows updated.
	MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error)

	// ListRemindable returns invoices in sent/viewed/overdue status.
	ListRemindable(ctx context.Context) ([]Invoice, error)

	// SetLastReminderSentAt advances the reminder timestamp. The value
	// never moves backwards even under concurrent writers.
	SetLastReminderSentAt(ctx context.Context, workspaceID, invoiceID uuid.UUID, sentAt time.Time) error

	// ListItems returns the invoice's line items for rendering.
	ListItems(ctx context.Context, invoiceID uuid.UUID) ([]InvoiceItem, error)
}

// ClientStore resolves clients for invoices.
type ClientStore interface {
	GetByID(ctx context.Context, workspaceID, clientID uuid.UUID) (*Client, error)
}

// PaymentStore reads payments for receipt sends.
type PaymentStore interface {
	GetByID(ctx context.Context, workspaceID, invoiceID, paymentID uuid.UUID) (*Payment, error)
}

// BusinessStore resolves the issuing business of a workspace.
type BusinessStore interface {
	GetByWorkspace(ctx context.Context, workspaceID uuid.UUID) (*Business, error)
}
