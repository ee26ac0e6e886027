package worker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowanhale/fakturo/internal/domain"
	"github.com/rowanhale/fakturo/internal/queue"
	"github.com/rowanhale/fakturo/internal/render"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

type fixture struct {
	workspaceID uuid.UUID
	invoice     *domain.Invoice
	client      *domain.Client
	payment     *domain.Payment
}

func newFixture() *fixture {
	workspaceID := uuid.New()
	clientID := uuid.New()
	invoiceID := uuid.New()
	return &fixture{
		workspaceID: workspaceID,
		invoice: &domain.Invoice{
			ID:            invoiceID,
			WorkspaceID:   workspaceID,
			Sequence:      7,
			ClientID:      clientID,
			InvoiceNumber: "INV-007",
			Status:        domain.StatusSending,
			DueDate:       time.Now().Add(14 * 24 * time.Hour),
		},
		client: &domain.Client{
			ID:          clientID,
			WorkspaceID: workspaceID,
			Name:        "Jordan",
			Email:       "jordan@example.com",
		},
		payment: &domain.Payment{
			ID:          uuid.New(),
			WorkspaceID: workspaceID,
			InvoiceID:   invoiceID,
			AmountCents: 10000,
			Method:      "card",
			PaidAt:      time.Now(),
		},
	}
}

type mockStores struct {
	fx *fixture

	invoiceErr error
	clientErr  error
	paymentErr error
}

func (m *mockStores) GetBySequence(_ context.Context, _ uuid.UUID, _ int64) (*domain.Invoice, error) {
	if m.invoiceErr != nil {
		return nil, m.invoiceErr
	}
	return m.fx.invoice, nil
}

func (m *mockStores) GetByID(_ context.Context, _, _ uuid.UUID) (*domain.Invoice, error) {
	if m.invoiceErr != nil {
		return nil, m.invoiceErr
	}
	return m.fx.invoice, nil
}

func (m *mockStores) TransitionStatus(_ context.Context, _, _ uuid.UUID, _ []domain.InvoiceStatus, _ domain.InvoiceStatus) (bool, error) {
	return true, nil
}

func (m *mockStores) MarkOverdue(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

func (m *mockStores) ListRemindable(_ context.Context) ([]domain.Invoice, error) { return nil, nil }

func (m *mockStores) SetLastReminderSentAt(_ context.Context, _, _ uuid.UUID, _ time.Time) error {
	return nil
}

func (m *mockStores) ListItems(_ context.Context, _ uuid.UUID) ([]domain.InvoiceItem, error) {
	return []domain.InvoiceItem{{Description: "Work", Quantity: 1, UnitCents: 10000, TotalCents: 10000}}, nil
}

type mockClients struct{ fx *fixture; err error }

func (m *mockClients) GetByID(_ context.Context, _, _ uuid.UUID) (*domain.Client, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.fx.client, nil
}

type mockPayments struct{ fx *fixture; err error }

func (m *mockPayments) GetByID(_ context.Context, _, _, _ uuid.UUID) (*domain.Payment, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.fx.payment, nil
}

type mockBusinesses struct{ err error }

func (m *mockBusinesses) GetByWorkspace(_ context.Context, _ uuid.UUID) (*domain.Business, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Business{Name: "Acme Studio"}, nil
}

type mockRenderer struct {
	oneErr     error
	receiptErr error
	rendered   []render.Payload
}

func (m *mockRenderer) RenderOne(_ context.Context, p render.Payload) ([]byte, error) {
	if m.oneErr != nil {
		return nil, m.oneErr
	}
	m.rendered = append(m.rendered, p)
	return []byte("invoice-doc"), nil
}

func (m *mockRenderer) RenderReceipt(_ context.Context, p render.Payload) ([]byte, error) {
	if m.receiptErr != nil {
		return nil, m.receiptErr
	}
	m.rendered = append(m.rendered, p)
	return []byte("receipt-doc"), nil
}

type sentMail struct {
	kind    string
	to      string
	subject string
	doc     []byte
}

type mockMailer struct {
	invoiceErr error
	receiptErr error
	plainErr   error
	sent       []sentMail
}

func (m *mockMailer) SendInvoice(_ context.Context, to, _, subject, _, _ string, doc []byte) error {
	if m.invoiceErr != nil {
		return m.invoiceErr
	}
	m.sent = append(m.sent, sentMail{kind: "invoice", to: to, subject: subject, doc: doc})
	return nil
}

func (m *mockMailer) SendReceipt(_ context.Context, to, _, subject, _, _ string, doc []byte) error {
	if m.receiptErr != nil {
		return m.receiptErr
	}
	m.sent = append(m.sent, sentMail{kind: "receipt", to: to, subject: subject, doc: doc})
	return nil
}

func (m *mockMailer) SendPlain(_ context.Context, to, subject, _ string) error {
	if m.plainErr != nil {
		return m.plainErr
	}
	m.sent = append(m.sent, sentMail{kind: "plain", to: to, subject: subject})
	return nil
}

type mockStatuses struct {
	confirmed  []uuid.UUID
	failed     []uuid.UUID
	confirmErr error
}

func (m *mockStatuses) ConfirmInvoiceSent(_ context.Context, _, invoiceID uuid.UUID) error {
	if m.confirmErr != nil {
		return m.confirmErr
	}
	m.confirmed = append(m.confirmed, invoiceID)
	return nil
}

func (m *mockStatuses) MarkSendFailed(_ context.Context, _, invoiceID uuid.UUID) error {
	m.failed = append(m.failed, invoiceID)
	return nil
}

type harness struct {
	fx       *fixture
	stores   *mockStores
	clients  *mockClients
	payments *mockPayments
	renderer *mockRenderer
	mailer   *mockMailer
	statuses *mockStatuses
	worker   *Worker
}

func newHarness(operatorEmail string) *harness {
	fx := newFixture()
	h := &harness{
		fx:       fx,
		stores:   &mockStores{fx: fx},
		clients:  &mockClients{fx: fx},
		payments: &mockPayments{fx: fx},
		renderer: &mockRenderer{},
		mailer:   &mockMailer{},
		statuses: &mockStatuses{},
	}
	h.worker = New(h.stores, h.clients, h.payments, &mockBusinesses{},
		h.renderer, h.mailer, h.statuses, nil, testLogger(), operatorEmail)
	return h
}

func invoiceJob(t *testing.T, fx *fixture, attempt int) *queue.Job {
	t.Helper()
	env, err := queue.NewEnvelope(queue.TopicEmailInvoice, queue.InvoiceEmailPayload{
		WorkspaceID: fx.workspaceID,
		InvoiceID:   fx.invoice.ID,
		Sequence:    fx.invoice.Sequence,
		Email:       "jordan@example.com",
		Subject:     "Invoice INV-007",
		Message:     "Attached.",
	})
	require.NoError(t, err)
	return &queue.Job{Envelope: env, Attempt: attempt}
}

func receiptJob(t *testing.T, fx *fixture, email string, attempt int) *queue.Job {
	t.Helper()
	env, err := queue.NewEnvelope(queue.TopicEmailReceipt, queue.ReceiptEmailPayload{
		WorkspaceID: fx.workspaceID,
		InvoiceID:   fx.invoice.ID,
		PaymentID:   fx.payment.ID,
		Email:       email,
	})
	require.NoError(t, err)
	return &queue.Job{Envelope: env, Attempt: attempt}
}

func Test_InvoiceJob_Success(t *testing.T) {
	h := newHarness("")

	err := h.worker.HandleInvoiceJob(context.Background(), invoiceJob(t, h.fx, 1))
	require.NoError(t, err)

	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "jordan@example.com", h.mailer.sent[0].to)
	assert.Equal(t, []byte("invoice-doc"), h.mailer.sent[0].doc)

	require.Len(t, h.statuses.confirmed, 1)
	assert.Equal(t, h.fx.invoice.ID, h.statuses.confirmed[0])
	assert.Empty(t, h.statuses.failed)
}

func Test_InvoiceJob_RetryableFailureLeavesStatusAlone(t *testing.T) {
	h := newHarness("ops@acme.test")
	h.renderer.oneErr = domain.Upstream(nil, "render.one", "render service down")

	err := h.worker.HandleInvoiceJob(context.Background(), invoiceJob(t, h.fx, 1))
	require.Error(t, err)
	assert.True(t, domain.Retryable(err))

	assert.Empty(t, h.statuses.failed, "non-final retryable failure must not close the saga")
	assert.Empty(t, h.mailer.sent, "no operator notification before the final attempt")
}

func Test_InvoiceJob_FinalAttemptClosesSaga(t *testing.T) {
	h := newHarness("ops@acme.test")
	h.renderer.oneErr = domain.Upstream(nil, "render.one", "render service down")

	err := h.worker.HandleInvoiceJob(context.Background(), invoiceJob(t, h.fx, queue.MaxAttempts))
	require.Error(t, err)

	require.Len(t, h.statuses.failed, 1)
	assert.Equal(t, h.fx.invoice.ID, h.statuses.failed[0])

	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "plain", h.mailer.sent[0].kind)
	assert.Equal(t, "ops@acme.test", h.mailer.sent[0].to)
}

func Test_InvoiceJob_PermanentErrorShortCircuits(t *testing.T) {
	h := newHarness("ops@acme.test")
	h.mailer.invoiceErr = domain.Errorf(domain.ERECIPIENT, "email.send", "recipient rejected")

	err := h.worker.HandleInvoiceJob(context.Background(), invoiceJob(t, h.fx, 1))
	require.Error(t, err)
	assert.False(t, domain.Retryable(err))

	// Even on the first attempt a permanent error closes the saga.
	require.Len(t, h.statuses.failed, 1)
	assert.Empty(t, h.statuses.confirmed)
}

func Test_InvoiceJob_MissingInvoiceIsRetryable(t *testing.T) {
	h := newHarness("")
	h.stores.invoiceErr = domain.NotFound("invoice.get", "invoice", "7")

	err := h.worker.HandleInvoiceJob(context.Background(), invoiceJob(t, h.fx, 1))
	require.Error(t, err)
	assert.True(t, domain.Retryable(err), "a lagging read may resolve on retry")
	assert.Empty(t, h.statuses.failed)
}

func Test_InvoiceJob_OperatorNotifyFailureSwallowed(t *testing.T) {
	h := newHarness("ops@acme.test")
	h.renderer.oneErr = domain.Upstream(nil, "render.one", "down")
	h.mailer.plainErr = domain.Upstream(nil, "email.send", "provider down")

	err := h.worker.HandleInvoiceJob(context.Background(), invoiceJob(t, h.fx, queue.MaxAttempts))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.EUPSTREAM), "the job error, not the notify error, propagates")
	require.Len(t, h.statuses.failed, 1)
}

func Test_ReceiptJob_Success(t *testing.T) {
	h := newHarness("")

	err := h.worker.HandleReceiptJob(context.Background(), receiptJob(t, h.fx, "payer@example.com", 1))
	require.NoError(t, err)

	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "receipt", h.mailer.sent[0].kind)
	assert.Equal(t, "payer@example.com", h.mailer.sent[0].to)
	assert.Equal(t, []byte("receipt-doc"), h.mailer.sent[0].doc)

	assert.Empty(t, h.statuses.confirmed, "receipts do not touch invoice status")
}

func Test_ReceiptJob_FallsBackToClientEmail(t *testing.T) {
	h := newHarness("")

	err := h.worker.HandleReceiptJob(context.Background(), receiptJob(t, h.fx, "", 1))
	require.NoError(t, err)
	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "jordan@example.com", h.mailer.sent[0].to)
}

func Test_ReceiptJob_NoRecipientIsPermanent(t *testing.T) {
	h := newHarness("")
	h.fx.client.Email = ""

	err := h.worker.HandleReceiptJob(context.Background(), receiptJob(t, h.fx, "", 1))
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ERECIPIENT))
	assert.False(t, domain.Retryable(err))
	assert.Empty(t, h.mailer.sent)
}

func Test_ReceiptJob_ReceiptPayloadCarriesPayment(t *testing.T) {
	h := newHarness("")

	err := h.worker.HandleReceiptJob(context.Background(), receiptJob(t, h.fx, "", 1))
	require.NoError(t, err)
	require.Len(t, h.renderer.rendered, 1)
	require.NotNil(t, h.renderer.rendered[0].Payment)
	assert.Equal(t, int64(10000), h.renderer.rendered[0].Payment.AmountCents)
}

func Test_ReceiptJob_TerminalFailureNotifiesOperator(t *testing.T) {
	h := newHarness("ops@acme.test")
	h.renderer.receiptErr = domain.Upstream(nil, "render.receipt", "down")

	err := h.worker.HandleReceiptJob(context.Background(), receiptJob(t, h.fx, "", queue.MaxAttempts))
	require.Error(t, err)

	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "plain", h.mailer.sent[0].kind)
	assert.Empty(t, h.statuses.failed, "receipt failures do not flip invoice status")
}
