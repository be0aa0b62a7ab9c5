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

// airtableIntegration lists bases and their tables from the metadata API.
// Airtable requires PKCE on the authorization-code exchange.
type airtableIntegration struct {
	cfg    integration.ProviderConfig
	client *http.Client
	logger *zap.Logger
}

func (a *airtableIntegration) Config() integration.ProviderConfig { return a.cfg }

func (a *airtableIntegration) RequiresPKCE() bool { return true }

func (a *airtableIntegration) TokenParams(codeVerifier string) url.Values {
	params := url.Values{}
	params.Set("code_verifier", codeVerifier)
	return params
}

func (a *airtableIntegration) AuthorizationURL(state, codeChallenge string) (string, error) {
	return authorizationURL(a.cfg.AuthURL, map[string]string{
		"client_id":             a.cfg.ClientID,
		"response_type":         "code",
		"owner":                 "user",
		"redirect_uri":          a.cfg.RedirectURI,
		"state":                 state,
		"code_challenge":        codeChallenge,
		"code_challenge_method": "S256",
		"scope":                 strings.Join(a.cfg.Scopes, " "),
	})
}

type airtableBase struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type airtableTable struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LoadItems pages through all bases, then fetches each base's tables
// concurrently. Bases map to "Base" items and tables to "Table" items that
// reference their base through parent_id.
func (a *airtableIntegration) LoadItems(ctx context.Context, creds integration.Credentials) ([]integration.Item, error) {
	accessToken, err := accessTokenFrom(creds)
	if err != nil {
		return nil, err
	}

	bases, err := a.fetchBases(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	tablesByBase := make([][]airtableTable, len(bases))
	g, ctx := errgroup.WithContext(ctx)
	for i, base := range bases {
		g.Go(func() error {
			tables, err := a.fetchTables(ctx, accessToken, base.ID)
			if err != nil {
				return err
			}
			tablesByBase[i] = tables
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []integration.Item
	for i, base := range bases {
		items = append(items, integration.Item{
			ID:         base.ID + "_Base",
			Type:       "Base",
			Name:       base.Name,
			Visibility: true,
		})
		for _, table := range tablesByBase[i] {
			items = append(items, integration.Item{
				ID:               table.ID + "_Table",
				Type:             "Table",
				Name:             table.Name,
				ParentID:         base.ID + "_Base",
				ParentPathOrName: base.Name,
				Visibility:       true,
			})
		}
	}
	a.logger.Info("airtable items loaded", zap.Int("bases", len(bases)), zap.Int("count", len(items)))
	return items, nil
}

func (a *airtableIntegration) fetchBases(ctx context.Context, accessToken string) ([]airtableBase, error) {
	endpoint := strings.TrimRight(a.cfg.APIBaseURL, "/") + "/meta/bases"

	var bases []airtableBase
	offset := ""
	for {
		pageURL := endpoint
		if offset != "" {
			pageURL = endpoint + "?offset=" + url.QueryEscape(offset)
		}
		var page struct {
			Bases  []airtableBase `json:"bases"`
			Offset string         `json:"offset"`
		}
		status, err := getJSON(ctx, a.client, pageURL, accessToken, nil, &page)
		if err != nil {
			return nil, fmt.Errorf("fetch airtable bases: %w", err)
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("fetch airtable bases: status=%d", status)
		}
		bases = append(bases, page.Bases...)
		if page.Offset == "" {
			return bases, nil
		}
		offset = page.Offset
	}
}

func (a *airtableIntegration) fetchTables(ctx context.Context, accessToken, baseID string) ([]airtableTable, error) {
	endpoint := fmt.Sprintf("%s/meta/bases/%s/tables", strings.TrimRight(a.cfg.APIBaseURL, "/"), baseID)
	var decoded struct {
		Tables []airtableTable `json:"tables"`
	}
	status, err := getJSON(ctx, a.client, endpoint, accessToken, nil, &decoded)
	if err != nil {
		return nil, fmt.Errorf("fetch airtable tables for %s: %w", baseID, err)
	}
	if status != http.StatusOK {
		a.logger.Warn("airtable tables listing skipped",
			zap.String("base_id", baseID),
			zap.Int("status", status),
		)
		return nil, nil
	}
	return decoded.Tables, nil
}
