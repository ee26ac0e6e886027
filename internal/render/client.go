package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rowanhale/fakturo/internal/domain"
)

// SecretHeader authenticates calls to the rendering service.
const SecretHeader = "X-Render-Service-Key"

const renderTimeout = 30 * time.Second

// Client calls the external document-rendering service.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewClient builds a render client. baseURL and secret come from
// configuration; a missing value fails on first use, not here, so the
// error surfaces on the operation that needed it.
func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: renderTimeout},
	}
}

type batchRequest struct {
	Payloads []Payload `json:"payloads"`
}

type batchResponse struct {
	Documents []string `json:"documents"`
}

// RenderOne renders a single invoice document and returns its bytes.
// Any non-2xx response is a hard failure carrying the response body.
func (c *Client) RenderOne(ctx context.Context, payload Payload) ([]byte, error) {
	return c.renderSingle(ctx, "/generate-invoice", payload)
}

// RenderReceipt renders a single receipt document.
func (c *Client) RenderReceipt(ctx context.Context, payload Payload) ([]byte, error) {
	return c.renderSingle(ctx, "/generate-receipt", payload)
}

func (c *Client) renderSingle(ctx context.Context, path string, payload Payload) ([]byte, error) {
	resp, err := c.post(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Upstream(err, "render.one", "failed to read render response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.Upstream(
			fmt.Errorf("render service status %d: %s", resp.StatusCode, string(body)),
			"render.one", "render service rejected the request")
	}
	return body, nil
}

// RenderBatch renders N payloads in one round trip, returning N
// documents in the same order. The call is all-or-nothing: a failed
// batch produces no documents at all.
func (c *Client) RenderBatch(ctx context.Context, payloads []Payload) ([][]byte, error) {
	resp, err := c.post(ctx, "/generate-batch", batchRequest{Payloads: payloads})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Upstream(err, "render.batch", "failed to read batch response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.Upstream(
			fmt.Errorf("render service status %d: %s", resp.StatusCode, string(body)),
			"render.batch", "batch render rejected")
	}

	var parsed batchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.Upstream(err, "render.batch", "malformed batch response")
	}

	docs := make([][]byte, len(parsed.Documents))
	for i, encoded := range parsed.Documents {
		doc, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, domain.Upstream(err, "render.batch",
				fmt.Sprintf("document %d is not valid base64", i))
		}
		docs[i] = doc
	}
	return docs, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, domain.Config("render.post", "render service base URL is not configured")
	}
	if c.secret == "" {
		return nil, domain.Config("render.post", "render service secret is not configured")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.Internal(err, "render.post", "failed to marshal render payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, domain.Internal(err, "render.post", "failed to create render request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Upstream(err, "render.post", "render service unreachable")
	}
	return resp, nil
}
