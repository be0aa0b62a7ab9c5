package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/integration-hub/internal/domain/integration"
)

func TestNotion_AuthorizationURL(t *testing.T) {
	n := &notionIntegration{cfg: integration.ProviderConfig{
		Name:        integration.ProviderNotion,
		ClientID:    "client",
		AuthURL:     "https://api.notion.com/v1/oauth/authorize",
		RedirectURI: "http://localhost:8000/integrations/notion/oauth2callback",
	}}

	raw, err := n.AuthorizationURL("state-token", "")
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	query := parsed.Query()
	require.Equal(t, "code", query.Get("response_type"))
	require.Equal(t, "user", query.Get("owner"))
	require.Equal(t, "state-token", query.Get("state"))
}

func TestNotion_LoadItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.Equal(t, notionVersion, r.Header.Get("Notion-Version"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{
				"object":"page",
				"id":"page-1",
				"created_time":"2024-01-02T10:00:00Z",
				"last_edited_time":"2024-01-03T10:00:00Z",
				"parent":{"type":"database_id","database_id":"db-1"},
				"properties":{"title":{"title":[{"text":{"content":"Roadmap"}}]}}
			},
			{
				"object":"database",
				"id":"db-1",
				"parent":{"type":"workspace","workspace":true},
				"properties":{"Tags":{"multi_select":{"options":[]}}}
			}
		]}`))
	}))
	defer srv.Close()

	n := &notionIntegration{
		cfg:    integration.ProviderConfig{Name: integration.ProviderNotion, APIBaseURL: srv.URL},
		client: srv.Client(),
		logger: zap.NewNop(),
	}

	items, err := n.LoadItems(context.Background(), integration.Credentials(`{"access_token":"tok-1"}`))
	require.NoError(t, err)
	require.Len(t, items, 2)

	page := items[0]
	require.Equal(t, "page-1", page.ID)
	require.Equal(t, "page", page.Type)
	require.Equal(t, "page Roadmap", page.Name)
	require.Equal(t, "db-1", page.ParentID)
	require.NotNil(t, page.CreationTime)
	require.NotNil(t, page.LastModifiedTime)

	database := items[1]
	require.Equal(t, "db-1", database.ID)
	require.Equal(t, "database multi_select", database.Name)
	require.Empty(t, database.ParentID)
}

func TestNotion_LoadItemsSearchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"object":"error","status":401}`))
	}))
	defer srv.Close()

	n := &notionIntegration{
		cfg:    integration.ProviderConfig{Name: integration.ProviderNotion, APIBaseURL: srv.URL},
		client: srv.Client(),
		logger: zap.NewNop(),
	}

	_, err := n.LoadItems(context.Background(), integration.Credentials(`{"access_token":"expired"}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=401")
}
