package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rowanhale/fakturo/internal/domain"
)

// Topic names. Each topic is backed by its own stream and durable
// consumer; there is no ordering relationship across topics.
const (
	TopicEmailInvoice = "email-invoice"
	TopicEmailReceipt = "email-receipt"
)

// SchemaVersion tags every envelope so in-flight jobs stay decodable
// across deployments. Bump it when a payload shape changes and keep
// decoding the old versions until the queues have drained.
const SchemaVersion = 1

// Envelope is the wire form of every job. The payload is kept raw so a
// consumer can reject unknown versions before committing to a shape.
type Envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Topic         string          `json:"topic"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
	Payload       json.RawMessage `json:"payload"`
}

// InvoiceEmailPayload is the email-invoice job body.
type InvoiceEmailPayload struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	InvoiceID   uuid.UUID `json:"invoice_id"`
	Sequence    int64     `json:"sequence"`
	Email       string    `json:"email"`
	Subject     string    `json:"subject"`
	Message     string    `json:"message"`
}

// ReceiptEmailPayload is the email-receipt job body. Email may be
// empty; the worker falls back to the invoice's client email.
type ReceiptEmailPayload struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	InvoiceID   uuid.UUID `json:"invoice_id"`
	PaymentID   uuid.UUID `json:"payment_id"`
	Email       string    `json:"email"`
	Subject     string    `json:"subject"`
	Message     string    `json:"message"`
}

// NewEnvelope wraps a payload for publication.
func NewEnvelope(topic string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, "queue.envelope", "failed to marshal job payload")
	}
	return &Envelope{
		SchemaVersion: SchemaVersion,
		Topic:         topic,
		EnqueuedAt:    time.Now().UTC(),
		Payload:       raw,
	}, nil
}

// DecodeEnvelope parses and version-checks a raw message.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, domain.WrapError(err, domain.EINVALID, "queue.envelope", "malformed job envelope")
	}
	if env.SchemaVersion != SchemaVersion {
		return nil, domain.Errorf(domain.EINVALID, "queue.envelope",
			"unsupported envelope schema version %d", env.SchemaVersion)
	}
	return &env, nil
}

// DecodeInvoicePayload extracts the email-invoice payload.
func (e *Envelope) DecodeInvoicePayload() (*InvoiceEmailPayload, error) {
	if e.Topic != TopicEmailInvoice {
		return nil, domain.Errorf(domain.EINVALID, "queue.envelope",
			"envelope topic %q is not %s", e.Topic, TopicEmailInvoice)
	}
	var p InvoiceEmailPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, domain.WrapError(err, domain.EINVALID, "queue.envelope", "malformed invoice email payload")
	}
	return &p, nil
}

// DecodeReceiptPayload extracts the email-receipt payload.
func (e *Envelope) DecodeReceiptPayload() (*ReceiptEmailPayload, error) {
	if e.Topic != TopicEmailReceipt {
		return nil, domain.Errorf(domain.EINVALID, "queue.envelope",
			"envelope topic %q is not %s", e.Topic, TopicEmailReceipt)
	}
	var p ReceiptEmailPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, domain.WrapError(err, domain.EINVALID, "queue.envelope", "malformed receipt email payload")
	}
	return &p, nil
}
