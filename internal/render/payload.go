package render

import (
	"time"

	"github.com/rowanhale/fakturo/internal/domain"
)

// Payload is the flattened, self-contained projection handed to the
// rendering service. It is built fresh for every render call and never
// persisted.
type Payload struct {
	InvoiceNumber string    `json:"invoice_number"`
	IssuedAt      time.Time `json:"issued_at"`
	DueDate       time.Time `json:"due_date"`
	Status        string    `json:"status"`
	Currency      string    `json:"currency"`
	SubtotalCents int64     `json:"subtotal_cents"`
	TaxCents      int64     `json:"tax_cents"`
	TotalCents    int64     `json:"total_cents"`
	BalanceCents  int64     `json:"balance_cents"`

	Business BusinessInfo `json:"business"`
	Client   ClientInfo   `json:"client"`
	Items    []LineItem   `json:"items"`

	// Payment is set only on receipt payloads.
	Payment *PaymentInfo `json:"payment,omitempty"`
}

type BusinessInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	TaxID   string `json:"tax_id"`
}

type ClientInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type LineItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitCents   int64  `json:"unit_cents"`
	TotalCents  int64  `json:"total_cents"`
}

type PaymentInfo struct {
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"`
	PaidAt      time.Time `json:"paid_at"`
	Notes       string    `json:"notes,omitempty"`
}

// BuildPayload projects an invoice and its related entities into a
// render payload.
func BuildPayload(inv *domain.Invoice, client *domain.Client, business *domain.Business, items []domain.InvoiceItem) Payload {
	p := Payload{
		InvoiceNumber: inv.InvoiceNumber,
		IssuedAt:      inv.CreatedAt,
		DueDate:       inv.DueDate,
		Status:        string(inv.Status),
		Currency:      inv.Currency,
		SubtotalCents: inv.SubtotalCents,
		TaxCents:      inv.TaxCents,
		TotalCents:    inv.TotalCents,
		BalanceCents:  inv.BalanceCents,
		Client:        ClientInfo{Name: client.Name, Email: client.Email},
		Items:         make([]LineItem, 0, len(items)),
	}
	if business != nil {
		p.Business = BusinessInfo{
			Name:    business.Name,
			Email:   business.Email,
			Address: business.Address,
			Phone:   business.Phone,
			TaxID:   business.TaxID,
		}
	}
	for _, it := range items {
		p.Items = append(p.Items, LineItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitCents:   it.UnitCents,
			TotalCents:  it.TotalCents,
		})
	}
	return p
}

// BuildReceiptPayload projects an invoice plus one payment for the
// receipt document.
func BuildReceiptPayload(inv *domain.Invoice, client *domain.Client, business *domain.Business, payment *domain.Payment) Payload {
	p := BuildPayload(inv, client, business, nil)
	p.Payment = &PaymentInfo{
		AmountCents: payment.AmountCents,
		Method:      payment.Method,
		PaidAt:      payment.PaidAt,
		Notes:       payment.Notes,
	}
	return p
}
