package provider

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/smallbiznis/integration-hub/internal/config"
	"github.com/smallbiznis/integration-hub/internal/domain/integration"
)

// Integration is one provider variant: its static config, how it builds an
// authorization URL, any extra token-exchange parameters, and how its objects
// are listed and normalized.
type Integration interface {
	Config() integration.ProviderConfig
	AuthorizationURL(state, codeChallenge string) (string, error)
	RequiresPKCE() bool
	TokenParams(codeVerifier string) url.Values
	LoadItems(ctx context.Context, creds integration.Credentials) ([]integration.Item, error)
}

// Registry holds the closed set of provider variants, dispatched by name.
type Registry struct {
	integrations map[integration.Provider]Integration
}

// NewRegistry builds the variant set from the loaded provider configs.
func NewRegistry(cfg config.Config, client *http.Client, logger *zap.Logger) *Registry {
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if logger == nil {
		logger = zap.L()
	}

	r := &Registry{integrations: make(map[integration.Provider]Integration)}
	if pc, ok := cfg.Providers[integration.ProviderHubSpot]; ok {
		r.integrations[integration.ProviderHubSpot] = &hubspotIntegration{cfg: pc, client: client, logger: logger}
	}
	if pc, ok := cfg.Providers[integration.ProviderNotion]; ok {
		r.integrations[integration.ProviderNotion] = &notionIntegration{cfg: pc, client: client, logger: logger}
	}
	if pc, ok := cfg.Providers[integration.ProviderAirtable]; ok {
		r.integrations[integration.ProviderAirtable] = &airtableIntegration{cfg: pc, client: client, logger: logger}
	}
	return r
}

// Lookup resolves an integration by name. Unknown or unconfigured names fail
// with ErrUnsupportedIntegration before any network call is made.
func (r *Registry) Lookup(name string) (Integration, error) {
	provider, err := integration.Parse(name)
	if err != nil {
		return nil, err
	}
	integ, ok := r.integrations[provider]
	if !ok {
		return nil, integration.ErrUnsupportedIntegration
	}
	return integ, nil
}

// authorizationURL appends the given query parameters to the provider's
// configured authorize endpoint.
func authorizationURL(base string, params map[string]string) (string, error) {
	authURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	query := authURL.Query()
	for key, value := range params {
		if value != "" {
			query.Set(key, value)
		}
	}
	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}
