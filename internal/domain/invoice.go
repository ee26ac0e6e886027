package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus is the closed set of invoice lifecycle states.
// All writes go through Transition; nothing else may change an
// invoice's status.
type InvoiceStatus string

const (
	StatusDraft      InvoiceStatus = "draft"
	StatusSending    InvoiceStatus = "sending"
	StatusSent       InvoiceStatus = "sent"
	StatusViewed     InvoiceStatus = "viewed"
	StatusOverdue    InvoiceStatus = "overdue"
	StatusPaid       InvoiceStatus = "paid"
	StatusSendFailed InvoiceStatus = "send_failed"
)

// Valid reports whether s is a known status value.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSending, StatusSent, StatusViewed,
		StatusOverdue, StatusPaid, StatusSendFailed:
		return true
	}
	return false
}

// transitions is the single source of truth for allowed status moves.
// A paid invoice never becomes overdue; an overdue invoice can still be
// paid. Reverting to draft is never automatic.
var transitions = map[InvoiceStatus][]InvoiceStatus{
	StatusDraft:      {StatusSending},
	StatusSending:    {StatusSent, StatusSendFailed},
	StatusSendFailed: {StatusSending},
	StatusSent:       {StatusViewed, StatusOverdue, StatusPaid},
	StatusViewed:     {StatusOverdue, StatusPaid},
	StatusOverdue:    {StatusPaid},
	StatusPaid:       {},
}

// CanTransition reports whether moving from one status to another is
// permitted by the state machine. A transition to the current status is
// treated as a permitted no-op so that retried operations stay idempotent.
func CanTransition(from, to InvoiceStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Invoice is the notification pipeline's view of an invoice. Creation
// and deletion are owned by the CRUD API; this subsystem only moves
// status forward and advances LastReminderSentAt.
type Invoice struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Sequence    int64
	ClientID    uuid.UUID

	InvoiceNumber string
	Status        InvoiceStatus
	DueDate       time.Time

	SubtotalCents int64
	TaxCents      int64
	TotalCents    int64
	BalanceCents  int64
	Currency      string

	// LastReminderSentAt is nil until the first reminder goes out and
	// is monotonically non-decreasing afterwards.
	LastReminderSentAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transition validates and applies a status change in memory.
// Persisting the change is the store's job; stores must apply the same
// guard in SQL (UPDATE ... WHERE status = ANY(from)).
func (inv *Invoice) Transition(to InvoiceStatus) error {
	if !to.Valid() {
		return Errorf(EINVALID, "invoice.transition", "unknown status %q", to)
	}
	if !CanTransition(inv.Status, to) {
		return Errorf(ECONFLICT, "invoice.transition",
			"invoice %s cannot move from %s to %s", inv.InvoiceNumber, inv.Status, to)
	}
	inv.Status = to
	return nil
}

// PastDue reports whether the invoice's due date, taken at 00:00 UTC,
// is strictly before today at 00:00 UTC. A due date of today is not
// past due.
func (inv *Invoice) PastDue(today time.Time) bool {
	return StartOfDayUTC(inv.DueDate).Before(StartOfDayUTC(today))
}

// StartOfDayUTC truncates t to 00:00 UTC of its calendar day.
func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// InvoiceItem is a line item carried into the render payload.
type InvoiceItem struct {
	Description string
	Quantity    int64
	UnitCents   int64
	TotalCents  int64
}

// Business is the issuing business, as rendered on documents.
type Business struct {
	ID      uuid.UUID
	Name    string
	Email   string
	Address string
	Phone   string
	TaxID   string
}
