package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smallbiznis/integration-hub/internal/domain/integration"
)

// hubspotIntegration lists CRM contacts, companies, and deals.
type hubspotIntegration struct {
	cfg    integration.ProviderConfig
	client *http.Client
	logger *zap.Logger
}

func (h *hubspotIntegration) Config() integration.ProviderConfig { return h.cfg }

func (h *hubspotIntegration) RequiresPKCE() bool { return false }

func (h *hubspotIntegration) TokenParams(string) url.Values { return nil }

func (h *hubspotIntegration) AuthorizationURL(state, _ string) (string, error) {
	return authorizationURL(h.cfg.AuthURL, map[string]string{
		"client_id":    h.cfg.ClientID,
		"redirect_uri": h.cfg.RedirectURI,
		"scope":        strings.Join(h.cfg.Scopes, " "),
		"state":        state,
	})
}

type hubspotObject struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type hubspotListResponse struct {
	Results []hubspotObject `json:"results"`
}

// LoadItems fetches contacts, companies, and deals concurrently and maps them
// into the normalized item shape. An object family that returns a non-200 is
// skipped rather than failing the whole load.
func (h *hubspotIntegration) LoadItems(ctx context.Context, creds integration.Credentials) ([]integration.Item, error) {
	accessToken, err := accessTokenFrom(creds)
	if err != nil {
		return nil, err
	}

	families := []string{"contacts", "companies", "deals"}
	responses := make([]*hubspotListResponse, len(families))

	g, ctx := errgroup.WithContext(ctx)
	for i, family := range families {
		g.Go(func() error {
			endpoint := fmt.Sprintf("%s/objects/%s?limit=100", strings.TrimRight(h.cfg.APIBaseURL, "/"), family)
			var decoded hubspotListResponse
			status, err := getJSON(ctx, h.client, endpoint, accessToken, nil, &decoded)
			if err != nil {
				return fmt.Errorf("fetch hubspot %s: %w", family, err)
			}
			if status != http.StatusOK {
				h.logger.Warn("hubspot listing skipped",
					zap.String("family", family),
					zap.Int("status", status),
				)
				return nil
			}
			responses[i] = &decoded
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []integration.Item
	for i, family := range families {
		if responses[i] == nil {
			continue
		}
		for _, object := range responses[i].Results {
			items = append(items, h.buildItem(family, object))
		}
	}
	h.logger.Info("hubspot items loaded", zap.Int("count", len(items)))
	return items, nil
}

func (h *hubspotIntegration) buildItem(family string, object hubspotObject) integration.Item {
	props := object.Properties
	var name, itemType string
	switch family {
	case "contacts":
		itemType = "contact"
		name = strings.TrimSpace(props["firstname"] + " " + props["lastname"])
		if name == "" {
			name = "Unnamed Contact"
		}
	case "companies":
		itemType = "company"
		name = props["name"]
		if name == "" {
			name = "Unnamed Company"
		}
	default:
		itemType = "deal"
		name = props["dealname"]
		if name == "" {
			name = "Unnamed Deal"
		}
	}

	item := integration.Item{
		ID:               object.ID,
		Type:             itemType,
		Name:             name,
		CreationTime:     parseTimestamp(props["createdate"]),
		LastModifiedTime: parseTimestamp(props["lastmodifieddate"]),
		Visibility:       true,
	}
	if owner := props["hubspot_owner_id"]; owner != "" {
		item.URL = fmt.Sprintf("https://app.hubspot.com/contacts/%s/%s/%s", owner, itemType, object.ID)
	}
	return item
}
