package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ticket-runners/internal/auth"
	"ticket-runners/internal/logger"
	"ticket-runners/internal/models"
)

// OwnershipClient delivers payment outcomes to the ownership service,
// authenticating with a cached service token.
type OwnershipClient struct {
	BaseURL    string
	Tokens     *auth.ServiceTokenClient
	HTTPClient *http.Client
	Log        *logger.Logger
}

func NewOwnershipClient(baseURL string, tokens *auth.ServiceTokenClient, log *logger.Logger) *OwnershipClient {
	return &OwnershipClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Tokens:     tokens,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Log:        log,
	}
}

// DeliverOutcome posts the outcome to the internal payments endpoint. Any
// 2xx means the ownership service accepted (or had already processed) it.
func (c *OwnershipClient) DeliverOutcome(ctx context.Context, outcome models.PaymentOutcome) error {
	token, err := c.Tokens.GetServiceToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get service token: %w", err)
	}

	body, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	url := c.BaseURL + "/internal/payments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("outcome delivery failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.Log.Warn("GATEWAY", fmt.Sprintf("Error closing response body: %v", cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ownership service returned %s: %s", resp.Status, string(respBody))
	}

	c.Log.Info("GATEWAY", fmt.Sprintf("Outcome %s delivered (%s)", outcome.TransactionID, resp.Status))
	return nil
}
