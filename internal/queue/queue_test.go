package queue

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowanhale/fakturo/internal/domain"
)

func Test_Envelope_RoundTrip(t *testing.T) {
	payload := InvoiceEmailPayload{
		WorkspaceID: uuid.New(),
		InvoiceID:   uuid.New(),
		Sequence:    42,
		Email:       "client@example.com",
		Subject:     "Invoice INV-042",
		Message:     "Please find your invoice attached.",
	}

	env, err := NewEnvelope(TopicEmailInvoice, payload)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, env.SchemaVersion)
	assert.Equal(t, TopicEmailInvoice, env.Topic)
	assert.False(t, env.EnqueuedAt.IsZero())

	data, err := json.Marshal(env)
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(data)
	require.NoError(t, err)

	got, err := decoded.DecodeInvoicePayload()
	require.NoError(t, err)
	assert.Equal(t, payload, *got)
}

func Test_DecodeEnvelope_RejectsUnknownVersion(t *testing.T) {
	data := []byte(fmt.Sprintf(`{"schema_version": %d, "topic": "email-invoice", "payload": {}}`, SchemaVersion+1))
	_, err := DecodeEnvelope(data)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.EINVALID))
	assert.False(t, domain.Retryable(err), "version mismatch must not be retried")
}

func Test_DecodeEnvelope_RejectsMalformedJSON(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{nope`))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.EINVALID))
}

func Test_DecodePayload_RejectsTopicMismatch(t *testing.T) {
	env, err := NewEnvelope(TopicEmailReceipt, ReceiptEmailPayload{})
	require.NoError(t, err)

	_, err = env.DecodeInvoicePayload()
	assert.True(t, domain.IsCode(err, domain.EINVALID))

	_, err = env.DecodeReceiptPayload()
	assert.NoError(t, err)
}

func Test_BackoffFor_Schedule(t *testing.T) {
	// Three attempts: delays after the first and second failures.
	assert.Equal(t, 5*time.Second, BackoffFor(1))
	assert.Equal(t, 10*time.Second, BackoffFor(2))
	assert.Equal(t, 20*time.Second, BackoffFor(3))
	assert.Equal(t, 5*time.Second, BackoffFor(0), "clamped to first attempt")
}

func Test_Job_Final(t *testing.T) {
	assert.False(t, (&Job{Attempt: 1}).Final())
	assert.False(t, (&Job{Attempt: MaxAttempts - 1}).Final())
	assert.True(t, (&Job{Attempt: MaxAttempts}).Final())
}

func Test_History_BoundedAndNewestFirst(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Record(JobRecord{Topic: TopicEmailInvoice, Outcome: OutcomeCompleted, Attempts: i})
	}

	recent := h.Recent()
	require.Len(t, recent, 3, "ring keeps only the newest records")
	assert.Equal(t, 4, recent[0].Attempts)
	assert.Equal(t, 3, recent[1].Attempts)
	assert.Equal(t, 2, recent[2].Attempts)
}

func Test_History_PartialFill(t *testing.T) {
	h := NewHistory(100)
	h.Record(JobRecord{Outcome: OutcomeFailed, Error: "render service unavailable"})

	recent := h.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, OutcomeFailed, recent[0].Outcome)
}
