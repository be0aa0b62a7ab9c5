// Package provider encapsulates outbound HTTP calls to the supported
// third-party integrations: the authorization-code exchange shared by all of
// them and the per-provider item listing APIs.
package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/integration-hub/internal/domain/integration"
)

// Exchanger performs the OAuth authorization-code exchange against a
// provider's token endpoint.
type Exchanger interface {
	ExchangeCode(ctx context.Context, cfg integration.ProviderConfig, code string, extra url.Values) (integration.Credentials, error)
}

// HTTPExchanger is the default HTTP implementation.
type HTTPExchanger struct {
	httpClient *http.Client
}

var _ Exchanger = (*HTTPExchanger)(nil)

// NewHTTPExchanger constructs the default Exchanger.
func NewHTTPExchanger(client *http.Client) *HTTPExchanger {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPExchanger{httpClient: client}
}

// ExchangeCode posts the form-encoded authorization_code grant with a
// Basic-Auth header built from the provider's client credentials. The decoded
// token payload is returned to the caller for storage, nothing is persisted
// here.
func (c *HTTPExchanger) ExchangeCode(ctx context.Context, cfg integration.ProviderConfig, code string, extra url.Values) (integration.Credentials, error) {
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("token url missing for %s", cfg.Name)
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", cfg.RedirectURI)
	data.Set("client_id", cfg.ClientID)
	if cfg.ClientSecret != "" {
		data.Set("client_secret", cfg.ClientSecret)
	}
	for key, values := range extra {
		for _, value := range values {
			data.Set(key, value)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Authorization", basicAuthHeader(cfg.ClientID, cfg.ClientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &integration.TokenExchangeError{
			Provider: cfg.Name,
			Status:   resp.StatusCode,
			Body:     string(body),
		}
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("decode token response: invalid json")
	}
	return integration.Credentials(body), nil
}

func basicAuthHeader(clientID, clientSecret string) string {
	credentials := clientID + ":" + clientSecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
}

// accessTokenFrom pulls access_token out of a stored credential payload.
func accessTokenFrom(creds integration.Credentials) (string, error) {
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(creds, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", integration.ErrMalformedCredentials, err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", fmt.Errorf("%w: no access token in credentials", integration.ErrMalformedCredentials)
	}
	return payload.AccessToken, nil
}

// getJSON issues an authorized GET and decodes the response into out.
// A non-2xx status is reported through the returned status code, not an error.
func getJSON(ctx context.Context, client *http.Client, rawURL, accessToken string, headers map[string]string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response from %s: %w", rawURL, err)
	}
	return resp.StatusCode, nil
}

func parseTimestamp(value string) *time.Time {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &ts
}
