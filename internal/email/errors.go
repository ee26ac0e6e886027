package email

import (
	"errors"
	"fmt"
)

// SendError classifies a provider failure. Permanent failures (bad or
// suppressed recipient, malformed request) will never succeed on
// retry; everything else is treated as transient.
type SendError struct {
	// ProviderCode is the provider's own error code (0 when the
	// failure happened before a response was parsed).
	ProviderCode int

	// StatusCode is the HTTP status of the provider response, if any.
	StatusCode int

	Message   string
	Permanent bool
}

func (e *SendError) Error() string {
	if e.ProviderCode != 0 {
		return fmt.Sprintf("email provider error %d: %s", e.ProviderCode, e.Message)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("email provider status %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

// IsPermanent reports whether err is a send failure that retrying
// cannot fix.
func IsPermanent(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Permanent
	}
	return false
}
