package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/rowanhale/fakturo/internal/domain"
)

// Service handles email composition and sending.
type Service struct {
	sender      Sender
	fromAddress string
	fromName    string
	layout      *template.Template
}

// NewService creates a new email service.
func NewService(sender Sender, fromAddress, fromName string) (*Service, error) {
	tmpl, err := template.New("layout").Parse(layoutTemplate)
	if err != nil {
		return nil, domain.Internal(err, "email.service", "failed to parse email layout")
	}
	return &Service{
		sender:      sender,
		fromAddress: fromAddress,
		fromName:    fromName,
		layout:      tmpl,
	}, nil
}

// SendInvoice sends an invoice email with the rendered document attached.
func (s *Service) SendInvoice(ctx context.Context, to, businessName, subject, message, invoiceNumber string, document []byte) error {
	if to == "" {
		return domain.Errorf(domain.ERECIPIENT, "email.invoice", "invoice %s has no recipient address", invoiceNumber)
	}

	htmlBody, textBody, err := s.renderMessage(messageData{
		BusinessName:  businessName,
		Message:       message,
		InvoiceNumber: invoiceNumber,
	})
	if err != nil {
		return err
	}

	msg := &Email{
		To:       []string{to},
		From:     s.from(),
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
		Attachments: []Attachment{{
			Filename:    fmt.Sprintf("invoice-%s.html", invoiceNumber),
			ContentType: "text/html",
			Content:     document,
		}},
	}

	_, err = s.sender.Send(ctx, msg)
	return err
}

// SendReceipt sends a payment receipt with the receipt document
// attached. Subject and message fall back to sensible defaults when
// the caller leaves them empty.
func (s *Service) SendReceipt(ctx context.Context, to, businessName, subject, message, invoiceNumber string, document []byte) error {
	if to == "" {
		return domain.Errorf(domain.ERECIPIENT, "email.receipt", "receipt for invoice %s has no recipient address", invoiceNumber)
	}
	if subject == "" {
		subject = fmt.Sprintf("Payment received for invoice %s", invoiceNumber)
	}
	if message == "" {
		message = fmt.Sprintf("Thank you for your payment. Your receipt for invoice %s is attached.", invoiceNumber)
	}

	htmlBody, textBody, err := s.renderMessage(messageData{
		BusinessName:  businessName,
		Message:       message,
		InvoiceNumber: invoiceNumber,
	})
	if err != nil {
		return err
	}

	msg := &Email{
		To:       []string{to},
		From:     s.from(),
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
		Attachments: []Attachment{{
			Filename:    fmt.Sprintf("receipt-%s.html", invoiceNumber),
			ContentType: "text/html",
			Content:     document,
		}},
	}

	_, err = s.sender.Send(ctx, msg)
	return err
}

// SendPlain sends a plain notification without attachments. Used for
// operator alerts.
func (s *Service) SendPlain(ctx context.Context, to, subject, message string) error {
	if to == "" {
		return domain.Errorf(domain.ERECIPIENT, "email.plain", "no recipient address")
	}
	msg := &Email{
		To:       []string{to},
		From:     s.from(),
		Subject:  subject,
		TextBody: message,
	}
	_, err := s.sender.Send(ctx, msg)
	return err
}

func (s *Service) from() string {
	if s.fromName != "" {
		return fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)
	}
	return s.fromAddress
}

func (s *Service) renderMessage(data messageData) (string, string, error) {
	var buf bytes.Buffer
	if err := s.layout.Execute(&buf, data); err != nil {
		return "", "", domain.Internal(err, "email.service", "failed to render email body")
	}
	htmlBody := buf.String()
	return htmlBody, generatePlainText(htmlBody), nil
}

// generatePlainText creates a simple plain text version from HTML.
func generatePlainText(html string) string {
	text := html

	text = strings.ReplaceAll(text, "<br>", "\n")
	text = strings.ReplaceAll(text, "<br/>", "\n")
	text = strings.ReplaceAll(text, "<br />", "\n")
	text = strings.ReplaceAll(text, "</p>", "\n\n")
	text = strings.ReplaceAll(text, "</div>", "\n")
	text = strings.ReplaceAll(text, "</h1>", "\n\n")
	text = strings.ReplaceAll(text, "</h2>", "\n\n")
	text = strings.ReplaceAll(text, "</h3>", "\n\n")

	for strings.Contains(text, "<") && strings.Contains(text, ">") {
		start := strings.Index(text, "<")
		end := strings.Index(text, ">")
		if start >= 0 && end > start {
			text = text[:start] + text[end+1:]
		} else {
			break
		}
	}

	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")

	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}

	return strings.Join(cleaned, "\n")
}
