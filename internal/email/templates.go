package email

// Messages are short blocks of caller-provided text wrapped in a shared
// layout. Templates are compiled once at service construction.

const layoutTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; color: #1a1a1a;">
  <div style="max-width: 600px; margin: 0 auto; padding: 24px;">
    <h2>{{.BusinessName}}</h2>
    <p>{{.Message}}</p>
    {{if .InvoiceNumber}}<p>Reference: {{.InvoiceNumber}}</p>{{end}}
    <hr>
    <p style="color: #777; font-size: 12px;">Sent by {{.BusinessName}}</p>
  </div>
</body>
</html>
`

// messageData feeds the layout template.
type messageData struct {
	BusinessName  string
	Message       string
	InvoiceNumber string
}
