package email

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowanhale/fakturo/internal/domain"
)

// mockSender records sent emails and returns a canned result.
type mockSender struct {
	sent []*Email
	err  error
}

func (m *mockSender) Send(_ context.Context, e *Email) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, e)
	return "msg-123", nil
}

func newTestService(t *testing.T, sender Sender) *Service {
	t.Helper()
	svc, err := NewService(sender, "billing@acme.test", "Acme Billing")
	require.NoError(t, err)
	return svc
}

func Test_SendInvoice_AttachesDocument(t *testing.T) {
	sender := &mockSender{}
	svc := newTestService(t, sender)

	err := svc.SendInvoice(context.Background(),
		"client@example.com", "Acme Studio",
		"Invoice INV-042", "Please find your invoice attached.",
		"INV-042", []byte("rendered document"))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, []string{"client@example.com"}, msg.To)
	assert.Equal(t, "Acme Billing <billing@acme.test>", msg.From)
	assert.Equal(t, "Invoice INV-042", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "Please find your invoice attached.")
	assert.Contains(t, msg.TextBody, "Please find your invoice attached.")
	assert.NotContains(t, msg.TextBody, "<p>")

	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "invoice-INV-042.html", msg.Attachments[0].Filename)
	assert.Equal(t, []byte("rendered document"), msg.Attachments[0].Content)
}

func Test_SendInvoice_MissingRecipientIsPermanent(t *testing.T) {
	svc := newTestService(t, &mockSender{})

	err := svc.SendInvoice(context.Background(), "", "Acme", "s", "m", "INV-001", nil)
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ERECIPIENT))
	assert.False(t, domain.Retryable(err))
}

func Test_SendReceipt_DefaultsSubjectAndMessage(t *testing.T) {
	sender := &mockSender{}
	svc := newTestService(t, sender)

	err := svc.SendReceipt(context.Background(),
		"client@example.com", "Acme Studio", "", "", "INV-042", []byte("doc"))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "Payment received for invoice INV-042", msg.Subject)
	assert.Contains(t, msg.HTMLBody, "Thank you for your payment")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "receipt-INV-042.html", msg.Attachments[0].Filename)
}

func Test_SendReceipt_CallerOverridesKept(t *testing.T) {
	sender := &mockSender{}
	svc := newTestService(t, sender)

	err := svc.SendReceipt(context.Background(),
		"client@example.com", "Acme", "Custom subject", "Custom body", "INV-001", nil)
	require.NoError(t, err)
	assert.Equal(t, "Custom subject", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].HTMLBody, "Custom body")
}

func Test_SendPlain_NoAttachments(t *testing.T) {
	sender := &mockSender{}
	svc := newTestService(t, sender)

	err := svc.SendPlain(context.Background(), "ops@acme.test", "Send failed", "invoice 42 exhausted retries")
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Empty(t, sender.sent[0].Attachments)
	assert.Equal(t, "invoice 42 exhausted retries", sender.sent[0].TextBody)
}

func Test_SendError_Classification(t *testing.T) {
	assert.True(t, isPermanentCode(300, http.StatusUnprocessableEntity), "invalid email request")
	assert.True(t, isPermanentCode(406, http.StatusUnprocessableEntity), "inactive recipient")
	assert.True(t, isPermanentCode(0, http.StatusUnprocessableEntity), "422 without code")
	assert.False(t, isPermanentCode(0, http.StatusInternalServerError), "provider outage")
	assert.False(t, isPermanentCode(0, http.StatusTooManyRequests), "rate limited")
}

func Test_IsPermanent_UnwrapsDomainError(t *testing.T) {
	se := &SendError{ProviderCode: 406, Message: "inactive", Permanent: true}
	wrapped := domain.WrapError(se, domain.ERECIPIENT, "email.send", "recipient permanently rejected")

	assert.True(t, IsPermanent(wrapped))
	assert.False(t, domain.Retryable(wrapped))
	assert.False(t, IsPermanent(errors.New("network timeout")))
}

func Test_Sender_FailurePropagates(t *testing.T) {
	boom := domain.Upstream(&SendError{StatusCode: 503, Message: "down"}, "email.send", "provider down")
	svc := newTestService(t, &mockSender{err: boom})

	err := svc.SendInvoice(context.Background(), "a@b.c", "Acme", "s", "m", "INV-1", nil)
	require.Error(t, err)
	assert.True(t, domain.Retryable(err), "provider outage should be retried")
}
