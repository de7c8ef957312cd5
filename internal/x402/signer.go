// Package x402 signs outbound payment requests by delegating to a local
// signer sidecar. The agent never holds key material; it ships the payment
// payload to the sidecar and gets a detached signature back.
package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/aide/internal/agent"
)

const defaultTimeout = 10 * time.Second

// HTTPSigner posts payment payloads to a signer service.
type HTTPSigner struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSigner creates a signer that talks to the sidecar at baseURL.
func NewHTTPSigner(baseURL string) (*HTTPSigner, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("signer url is required")
	}
	return &HTTPSigner{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}, nil
}

// Sign submits the payment request and returns the signature the sidecar
// produced. The request bytes are forwarded untouched so the sidecar signs
// exactly what the agent proposed.
func (s *HTTPSigner) Sign(ctx context.Context, request json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(request)) == 0 {
		return "", errors.New("payment request is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sign", bytes.NewReader(request))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("signer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return "", fmt.Errorf("signer returned %s (read body: %w)", resp.Status, readErr)
		}
		if len(body) > 0 {
			return "", fmt.Errorf("signer returned %s (%s)", resp.Status, strings.TrimSpace(string(body)))
		}
		return "", fmt.Errorf("signer returned %s", resp.Status)
	}

	var out struct {
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode signer response: %w", err)
	}
	if out.Signature == "" {
		return "", errors.New("signer response missing signature")
	}
	return out.Signature, nil
}

var _ agent.PaymentSigner = (*HTTPSigner)(nil)
