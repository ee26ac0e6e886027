package renderservice

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/rowanhale/fakturo/internal/domain"
	"github.com/rowanhale/fakturo/internal/render"
)

// Engine renders one document at a time. Engines are not safe for
// concurrent use; callers obtain one from a Pool.
type Engine interface {
	RenderInvoice(payload render.Payload) ([]byte, error)
	RenderReceipt(payload render.Payload) ([]byte, error)
	Close() error
}

// templateEngine renders documents from compiled HTML templates. It is
// deliberately stateful (reused buffer) to match the one-job-at-a-time
// contract of Engine.
type templateEngine struct {
	invoice *template.Template
	receipt *template.Template
	buf     bytes.Buffer
}

func newTemplateEngine() (Engine, error) {
	funcs := template.FuncMap{
		"money": formatMoney,
		"date":  func(t time.Time) string { return t.Format("Jan 2, 2006") },
	}

	inv, err := template.New("invoice").Funcs(funcs).Parse(invoiceTemplate)
	if err != nil {
		return nil, domain.Internal(err, "renderservice.engine", "failed to parse invoice template")
	}
	rec, err := template.New("receipt").Funcs(funcs).Parse(receiptTemplate)
	if err != nil {
		return nil, domain.Internal(err, "renderservice.engine", "failed to parse receipt template")
	}
	return &templateEngine{invoice: inv, receipt: rec}, nil
}

func (e *templateEngine) RenderInvoice(payload render.Payload) ([]byte, error) {
	return e.execute(e.invoice, payload)
}

func (e *templateEngine) RenderReceipt(payload render.Payload) ([]byte, error) {
	if payload.Payment == nil {
		return nil, domain.Invalid("renderservice.engine", "receipt payload has no payment")
	}
	return e.execute(e.receipt, payload)
}

func (e *templateEngine) execute(tmpl *template.Template, payload render.Payload) ([]byte, error) {
	e.buf.Reset()
	if err := tmpl.Execute(&e.buf, payload); err != nil {
		return nil, domain.Internal(err, "renderservice.engine", "template execution failed")
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}

func (e *templateEngine) Close() error {
	return nil
}

// formatMoney renders cents as a decimal amount with the currency code.
func formatMoney(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(currency))
}

const invoiceTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Invoice {{.InvoiceNumber}}</title></head>
<body>
  <h1>Invoice {{.InvoiceNumber}}</h1>
  <p>{{.Business.Name}}{{if .Business.Address}} &middot; {{.Business.Address}}{{end}}</p>
  {{if .Business.TaxID}}<p>Tax ID: {{.Business.TaxID}}</p>{{end}}
  <p>Billed to: {{.Client.Name}} ({{.Client.Email}})</p>
  <p>Issued {{date .IssuedAt}} &middot; Due {{date .DueDate}}</p>
  <table>
    <tr><th>Description</th><th>Qty</th><th>Unit</th><th>Total</th></tr>
    {{range .Items}}
    <tr>
      <td>{{.Description}}</td>
      <td>{{.Quantity}}</td>
      <td>{{money .UnitCents $.Currency}}</td>
      <td>{{money .TotalCents $.Currency}}</td>
    </tr>
    {{end}}
  </table>
  <p>Subtotal: {{money .SubtotalCents .Currency}}</p>
  {{if .TaxCents}}<p>Tax: {{money .TaxCents .Currency}}</p>{{end}}
  <p><strong>Total: {{money .TotalCents .Currency}}</strong></p>
  <p>Balance due: {{money .BalanceCents .Currency}}</p>
</body>
</html>
`

const receiptTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Receipt for {{.InvoiceNumber}}</title></head>
<body>
  <h1>Payment receipt</h1>
  <p>{{.Business.Name}}</p>
  <p>Received from: {{.Client.Name}} ({{.Client.Email}})</p>
  <p>Invoice {{.InvoiceNumber}}</p>
  <p><strong>Amount paid: {{money .Payment.AmountCents .Currency}}</strong></p>
  <p>Method: {{.Payment.Method}} &middot; Paid {{date .Payment.PaidAt}}</p>
  {{if .Payment.Notes}}<p>{{.Payment.Notes}}</p>{{end}}
  <p>Remaining balance: {{money .BalanceCents .Currency}}</p>
</body>
</html>
`
