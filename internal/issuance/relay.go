package issuance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	dErrors "docgate/pkg/domain-errors"
)

const maxRelayResponseBytes = 1 << 20

// RelayClient talks to the fee relay that builds, pays for and submits
// issuance transactions.
type RelayClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewRelayClient builds a client for baseURL. A nil httpClient uses a client
// without its own timeout; callers bound each call through the context.
func NewRelayClient(baseURL, apiKey string, httpClient *http.Client) *RelayClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &RelayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

type relayError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// post sends body as JSON and decodes a 2xx response into out. idempotencyKey
// lets the relay collapse retries of an issuance it already submitted.
func (c *RelayClient) post(ctx context.Context, path, idempotencyKey string, body, out any) error {
	if c.baseURL == "" {
		return dErrors.New(dErrors.CodeIssuanceFailed, "issuance relay not configured")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode issuance request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build issuance request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRelayResponseBytes))
	if err != nil {
		return classify(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var re relayError
		_ = json.Unmarshal(raw, &re)
		msg := re.Message
		if msg == "" {
			msg = re.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return dErrors.New(dErrors.CodeIssuanceFailed, "issuance relay rejected request: "+msg).
			WithDetail("relay_status", fmt.Sprint(resp.StatusCode))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeIssuanceFailed, "malformed issuance relay response")
	}
	return nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "issuance timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeIssuanceFailed, "issuance relay unavailable")
}
