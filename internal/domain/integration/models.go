package integration

import (
	"encoding/json"
	"time"
)

// Provider identifies one of the supported third-party integrations.
type Provider string

const (
	ProviderHubSpot  Provider = "hubspot"
	ProviderNotion   Provider = "notion"
	ProviderAirtable Provider = "airtable"
)

// Providers lists the closed set of supported integrations.
func Providers() []Provider {
	return []Provider{ProviderHubSpot, ProviderNotion, ProviderAirtable}
}

// Parse maps an integration name from the URL path onto the closed provider
// set. Unknown names fail with ErrUnsupportedIntegration.
func Parse(name string) (Provider, error) {
	switch Provider(name) {
	case ProviderHubSpot, ProviderNotion, ProviderAirtable:
		return Provider(name), nil
	default:
		return "", ErrUnsupportedIntegration
	}
}

func (p Provider) String() string { return string(p) }

// ProviderConfig stores the static configuration for an external provider.
// Loaded once at startup, immutable afterwards.
type ProviderConfig struct {
	Name         Provider
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	RedirectURI  string
	Scopes       []string
}

// StatePayload captures the nonce/user/org triple persisted during
// authorization. The encoded form of this payload is the state token itself.
type StatePayload struct {
	State  string `json:"state"`
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
}

// Credentials is the opaque token payload returned by a provider's token
// endpoint. The broker stores and hands it over without interpreting it;
// item loaders only pull access_token out of it.
type Credentials = json.RawMessage

// Item is the normalized shape providers' objects are mapped into. The field
// set mirrors what the web client consumes for every integration.
type Item struct {
	ID               string     `json:"id,omitempty"`
	Type             string     `json:"type,omitempty"`
	Directory        bool       `json:"directory"`
	ParentPathOrName string     `json:"parent_path_or_name,omitempty"`
	ParentID         string     `json:"parent_id,omitempty"`
	Name             string     `json:"name,omitempty"`
	CreationTime     *time.Time `json:"creation_time,omitempty"`
	LastModifiedTime *time.Time `json:"last_modified_time,omitempty"`
	URL              string     `json:"url,omitempty"`
	Children         []string   `json:"children,omitempty"`
	MimeType         string     `json:"mime_type,omitempty"`
	Delta            string     `json:"delta,omitempty"`
	DriveID          string     `json:"drive_id,omitempty"`
	Visibility       bool       `json:"visibility"`
}
