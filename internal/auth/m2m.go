package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ticket-runners/internal/logger"
)

type serviceTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// ServiceTokenClient fetches machine-to-machine tokens for service calls,
// backed by the Redis token cache so the token endpoint is hit only on
// expiry.
type ServiceTokenClient struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Cache        *RedisTokenCache
	HTTPClient   *http.Client
	Log          *logger.Logger
}

func NewServiceTokenClient(issuer, clientID, clientSecret string, cache *RedisTokenCache, log *logger.Logger) *ServiceTokenClient {
	return &ServiceTokenClient{
		TokenURL:     fmt.Sprintf("%s/protocol/openid-connect/token", strings.TrimRight(issuer, "/")),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Cache:        cache,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		Log:          log,
	}
}

// GetServiceToken returns a valid service token, from cache when possible.
func (c *ServiceTokenClient) GetServiceToken(ctx context.Context) (string, error) {
	if c.Cache != nil {
		cached, err := c.Cache.GetToken(ctx)
		if err != nil {
			c.Log.Warn("AUTH", fmt.Sprintf("Token cache read failed: %v", err))
		} else if cached != nil {
			return cached.Token, nil
		}
	}

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.ClientID)
	data.Set("client_secret", c.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	c.Log.Info("AUTH", fmt.Sprintf("Requesting service token with client_id: %s", c.ClientID))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.Log.Warn("AUTH", fmt.Sprintf("Error closing token response body: %v", cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		c.Log.Error("AUTH", fmt.Sprintf("Token endpoint returned %s: %s", resp.Status, string(bodyBytes)))
		return "", fmt.Errorf("failed to get token, status: %s", resp.Status)
	}

	var tokenResp serviceTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	expiresAt := time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	if tokenResp.ExpiresIn <= 0 {
		// Some issuers omit expires_in; fall back to the exp claim.
		if exp, err := TokenExpiry(tokenResp.AccessToken); err == nil {
			expiresAt = exp
		}
	}

	if c.Cache != nil {
		if err := c.Cache.SetToken(ctx, tokenResp.AccessToken, expiresAt); err != nil {
			c.Log.Warn("AUTH", fmt.Sprintf("Token cache write failed: %v", err))
		}
	}

	return tokenResp.AccessToken, nil
}
