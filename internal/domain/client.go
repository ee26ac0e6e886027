package domain

import "github.com/google/uuid"

// Client is the recipient of invoices, as consumed by the notification
// pipeline. The full client record lives with the CRUD API.
type Client struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Name        string
	Email       string

	// Reminder intervals in days. Nil or a value below 1 disables that
	// reminder direction for the client.
	ReminderBeforeDueIntervalDays *int32
	ReminderAfterDueIntervalDays  *int32
}

// ReminderInterval returns the configured interval for the given due
// direction and whether reminders are enabled for it.
func (c *Client) ReminderInterval(pastDue bool) (int32, bool) {
	v := c.ReminderBeforeDueIntervalDays
	if pastDue {
		v = c.ReminderAfterDueIntervalDays
	}
	if v == nil || *v < 1 {
		return 0, false
	}
	return *v, true
}
