package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rowanhale/fakturo/internal/domain"
	"github.com/rowanhale/fakturo/internal/render"
)

// Hand-written mocks with overridable funcs. Calls without an override
// return zero values.

type mockInvoiceStore struct {
	getBySequence         func(ctx context.Context, workspaceID uuid.UUID, sequence int64) (*domain.Invoice, error)
	getByID               func(ctx context.Context, workspaceID, invoiceID uuid.UUID) (*domain.Invoice, error)
	transitionStatus      func(ctx context.Context, workspaceID, invoiceID uuid.UUID, from []domain.InvoiceStatus, to domain.InvoiceStatus) (bool, error)
	markOverdue           func(ctx context.Context, cutoff time.Time) (int64, error)
	listRemindable        func(ctx context.Context) ([]domain.Invoice, error)
	setLastReminderSentAt func(ctx context.Context, workspaceID, invoiceID uuid.UUID, sentAt time.Time) error
	listItems             func(ctx context.Context, invoiceID uuid.UUID) ([]domain.InvoiceItem, error)

	transitions []transitionCall
}

type transitionCall struct {
	invoiceID uuid.UUID
	from      []domain.InvoiceStatus
	to        domain.InvoiceStatus
}

func (m *mockInvoiceStore) GetBySequence(ctx context.Context, workspaceID uuid.UUID, sequence int64) (*domain.Invoice, error) {
	if m.getBySequence != nil {
		return m.getBySequence(ctx, workspaceID, sequence)
	}
	return nil, domain.NotFound("mock", "invoice", "sequence")
}

func (m *mockInvoiceStore) GetByID(ctx context.Context, workspaceID, invoiceID uuid.UUID) (*domain.Invoice, error) {
	if m.getByID != nil {
		return m.getByID(ctx, workspaceID, invoiceID)
	}
	return nil, domain.NotFound("mock", "invoice", invoiceID.String())
}

func (m *mockInvoiceStore) TransitionStatus(ctx context.Context, workspaceID, invoiceID uuid.UUID, from []domain.InvoiceStatus, to domain.InvoiceStatus) (bool, error) {
	m.transitions = append(m.transitions, transitionCall{invoiceID: invoiceID, from: from, to: to})
	if m.transitionStatus != nil {
		return m.transitionStatus(ctx, workspaceID, invoiceID, from, to)
	}
	return true, nil
}

func (m *mockInvoiceStore) MarkOverdue(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.markOverdue != nil {
		return m.markOverdue(ctx, cutoff)
	}
	return 0, nil
}

func (m *mockInvoiceStore) ListRemindable(ctx context.Context) ([]domain.Invoice, error) {
	if m.listRemindable != nil {
		return m.listRemindable(ctx)
	}
	return nil, nil
}

func (m *mockInvoiceStore) SetLastReminderSentAt(ctx context.Context, workspaceID, invoiceID uuid.UUID, sentAt time.Time) error {
	if m.setLastReminderSentAt != nil {
		return m.setLastReminderSentAt(ctx, workspaceID, invoiceID, sentAt)
	}
	return nil
}

func (m *mockInvoiceStore) ListItems(ctx context.Context, invoiceID uuid.UUID) ([]domain.InvoiceItem, error) {
	if m.listItems != nil {
		return m.listItems(ctx, invoiceID)
	}
	return nil, nil
}

type mockClientStore struct {
	getByID func(ctx context.Context, workspaceID, clientID uuid.UUID) (*domain.Client, error)
}

func (m *mockClientStore) GetByID(ctx context.Context, workspaceID, clientID uuid.UUID) (*domain.Client, error) {
	if m.getByID != nil {
		return m.getByID(ctx, workspaceID, clientID)
	}
	return nil, domain.NotFound("mock", "client", clientID.String())
}

type mockPaymentStore struct {
	getByID func(ctx context.Context, workspaceID, invoiceID, paymentID uuid.UUID) (*domain.Payment, error)
}

func (m *mockPaymentStore) GetByID(ctx context.Context, workspaceID, invoiceID, paymentID uuid.UUID) (*domain.Payment, error) {
	if m.getByID != nil {
		return m.getByID(ctx, workspaceID, invoiceID, paymentID)
	}
	return nil, domain.NotFound("mock", "payment", paymentID.String())
}

type mockBusinessStore struct {
	getByWorkspace func(ctx context.Context, workspaceID uuid.UUID) (*domain.Business, error)
}

func (m *mockBusinessStore) GetByWorkspace(ctx context.Context, workspaceID uuid.UUID) (*domain.Business, error) {
	if m.getByWorkspace != nil {
		return m.getByWorkspace(ctx, workspaceID)
	}
	return &domain.Business{Name: "Acme Studio"}, nil
}

type enqueuedJob struct {
	topic   string
	payload interface{}
}

type mockEnqueuer struct {
	err  error
	jobs []enqueuedJob
}

func (m *mockEnqueuer) Enqueue(_ context.Context, topic string, payload interface{}) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, enqueuedJob{topic: topic, payload: payload})
	return nil
}

type batchCall struct {
	payloads []render.Payload
}

type mockBatchRenderer struct {
	render func(ctx context.Context, payloads []render.Payload) ([][]byte, error)
	calls  []batchCall
}

func (m *mockBatchRenderer) RenderBatch(ctx context.Context, payloads []render.Payload) ([][]byte, error) {
	m.calls = append(m.calls, batchCall{payloads: payloads})
	if m.render != nil {
		return m.render(ctx, payloads)
	}
	docs := make([][]byte, len(payloads))
	for i := range docs {
		docs[i] = []byte("doc")
	}
	return docs, nil
}

type sentReminder struct {
	to            string
	subject       string
	message       string
	invoiceNumber string
	document      []byte
}

type mockReminderMailer struct {
	err  func(invoiceNumber string) error
	sent []sentReminder
}

func (m *mockReminderMailer) SendInvoice(_ context.Context, to, _, subject, message, invoiceNumber string, document []byte) error {
	if m.err != nil {
		if err := m.err(invoiceNumber); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, sentReminder{
		to: to, subject: subject, message: message,
		invoiceNumber: invoiceNumber, document: document,
	})
	return nil
}
