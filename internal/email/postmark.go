package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rowanhale/fakturo/internal/domain"
)

const postmarkURL = "https://api.postmarkapp.com/email"

// Postmark error codes that mean the request itself can never succeed.
// 300 is a malformed/invalid email request, 406 an inactive (bounced
// or suppressed) recipient.
const (
	postmarkCodeInvalidEmail      = 300
	postmarkCodeInactiveRecipient = 406
)

// PostmarkSender implements the Sender interface using the Postmark API.
type PostmarkSender struct {
	apiKey string
	http   *http.Client
}

type postmarkEmail struct {
	From        string           `json:"From"`
	To          string           `json:"To"`
	Subject     string           `json:"Subject"`
	HtmlBody    string           `json:"HtmlBody,omitempty"`
	TextBody    string           `json:"TextBody,omitempty"`
	Headers     []postmarkHeader `json:"Headers,omitempty"`
	Attachments []postmarkAttach `json:"Attachments,omitempty"`
}

type postmarkHeader struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type postmarkAttach struct {
	Name        string `json:"Name"`
	Content     string `json:"Content"`
	ContentType string `json:"ContentType"`
}

type postmarkResponse struct {
	To        string `json:"To"`
	MessageID string `json:"MessageID"`
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// NewPostmarkSender creates a new Postmark email sender.
func NewPostmarkSender(apiKey string) *PostmarkSender {
	return &PostmarkSender{
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Send sends an email via Postmark. Failures come back as domain
// errors: permanent recipient problems carry ERECIPIENT and are never
// retried; everything else is EUPSTREAM.
func (p *PostmarkSender) Send(ctx context.Context, email *Email) (string, error) {
	if p.apiKey == "" {
		return "", domain.Config("email.send", "postmark token is not configured")
	}

	payload := postmarkEmail{
		From:     email.From,
		To:       strings.Join(email.To, ","),
		Subject:  email.Subject,
		HtmlBody: email.HTMLBody,
		TextBody: email.TextBody,
	}

	if len(email.Headers) > 0 {
		headers := make([]postmarkHeader, 0, len(email.Headers))
		for name, value := range email.Headers {
			headers = append(headers, postmarkHeader{Name: name, Value: value})
		}
		payload.Headers = headers
	}

	if len(email.Attachments) > 0 {
		attachments := make([]postmarkAttach, len(email.Attachments))
		for i, att := range email.Attachments {
			attachments[i] = postmarkAttach{
				Name:        att.Filename,
				Content:     base64.StdEncoding.EncodeToString(att.Content),
				ContentType: att.ContentType,
			}
		}
		payload.Attachments = attachments
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", domain.Internal(err, "email.send", "failed to marshal email payload")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", postmarkURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", domain.Internal(err, "email.send", "failed to create request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return "", domain.Upstream(&SendError{Message: err.Error()}, "email.send", "email provider unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.Upstream(&SendError{StatusCode: resp.StatusCode, Message: err.Error()},
			"email.send", "failed to read provider response")
	}

	var result postmarkResponse
	if jsonErr := json.Unmarshal(body, &result); jsonErr != nil {
		if resp.StatusCode != http.StatusOK {
			return "", domain.Upstream(&SendError{StatusCode: resp.StatusCode, Message: string(body)},
				"email.send", fmt.Sprintf("postmark API error (status %d)", resp.StatusCode))
		}
		return "", domain.Upstream(&SendError{StatusCode: resp.StatusCode, Message: jsonErr.Error()},
			"email.send", "failed to parse provider response")
	}

	if result.ErrorCode != 0 || resp.StatusCode != http.StatusOK {
		se := &SendError{
			ProviderCode: result.ErrorCode,
			StatusCode:   resp.StatusCode,
			Message:      result.Message,
			Permanent:    isPermanentCode(result.ErrorCode, resp.StatusCode),
		}
		if se.Permanent {
			return "", domain.WrapError(se, domain.ERECIPIENT, "email.send", "recipient permanently rejected")
		}
		return "", domain.Upstream(se, "email.send", "email provider rejected the message")
	}

	return result.MessageID, nil
}

// isPermanentCode classifies a provider failure. 4xx responses other
// than rate limiting (429) will not clear on retry.
func isPermanentCode(providerCode, statusCode int) bool {
	switch providerCode {
	case postmarkCodeInvalidEmail, postmarkCodeInactiveRecipient:
		return true
	}
	if statusCode == http.StatusUnprocessableEntity {
		return true
	}
	return false
}
