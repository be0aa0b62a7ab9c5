package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/integration-hub/internal/domain/integration"
	"github.com/smallbiznis/integration-hub/internal/jsonutil"
)

const notionVersion = "2022-06-28"

// notionIntegration lists pages and databases through the search API.
type notionIntegration struct {
	cfg    integration.ProviderConfig
	client *http.Client
	logger *zap.Logger
}

func (n *notionIntegration) Config() integration.ProviderConfig { return n.cfg }

func (n *notionIntegration) RequiresPKCE() bool { return false }

func (n *notionIntegration) TokenParams(string) url.Values { return nil }

func (n *notionIntegration) AuthorizationURL(state, _ string) (string, error) {
	return authorizationURL(n.cfg.AuthURL, map[string]string{
		"client_id":     n.cfg.ClientID,
		"response_type": "code",
		"owner":         "user",
		"redirect_uri":  n.cfg.RedirectURI,
		"state":         state,
	})
}

// LoadItems runs an unfiltered search and normalizes every result. Result
// names come from a nested-key search for "content" since Notion buries page
// titles at varying depths depending on the object kind.
func (n *notionIntegration) LoadItems(ctx context.Context, creds integration.Credentials) ([]integration.Item, error) {
	accessToken, err := accessTokenFrom(creds)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(n.cfg.APIBaseURL, "/") + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("notion search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read notion search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("notion search failed: status=%d body=%s", resp.StatusCode, body)
	}

	var decoded struct {
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode notion search response: %w", err)
	}

	items := make([]integration.Item, 0, len(decoded.Results))
	for _, result := range decoded.Results {
		items = append(items, n.buildItem(result))
	}
	n.logger.Info("notion items loaded", zap.Int("count", len(items)))
	return items, nil
}

func (n *notionIntegration) buildItem(result map[string]any) integration.Item {
	objectType, _ := result["object"].(string)

	name := jsonutil.FindKey(result["properties"], "content")
	if name == nil {
		name = jsonutil.FindKey(result, "content")
	}
	label, _ := name.(string)
	if label == "" {
		label = "multi_select"
	}

	item := integration.Item{
		Type:       objectType,
		Name:       strings.TrimSpace(objectType + " " + label),
		Visibility: true,
	}
	if id, ok := result["id"].(string); ok {
		item.ID = id
	}
	if created, ok := result["created_time"].(string); ok {
		item.CreationTime = parseTimestamp(created)
	}
	if edited, ok := result["last_edited_time"].(string); ok {
		item.LastModifiedTime = parseTimestamp(edited)
	}

	// Workspace-level objects have no parent id; everything else keys the
	// parent reference by its own type.
	if parent, ok := result["parent"].(map[string]any); ok {
		if parentType, ok := parent["type"].(string); ok && parentType != "workspace" {
			if parentID, ok := parent[parentType].(string); ok {
				item.ParentID = parentID
			}
		}
	}
	return item
}
