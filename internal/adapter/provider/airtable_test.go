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

func TestAirtable_AuthorizationURL(t *testing.T) {
	a := &airtableIntegration{cfg: integration.ProviderConfig{
		Name:        integration.ProviderAirtable,
		ClientID:    "client",
		AuthURL:     "https://airtable.com/oauth2/v1/authorize",
		RedirectURI: "http://localhost:8000/integrations/airtable/oauth2callback",
		Scopes:      []string{"schema.bases:read"},
	}}

	raw, err := a.AuthorizationURL("state-token", "challenge-value")
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	query := parsed.Query()
	require.Equal(t, "challenge-value", query.Get("code_challenge"))
	require.Equal(t, "S256", query.Get("code_challenge_method"))
	require.Equal(t, "schema.bases:read", query.Get("scope"))
	require.Equal(t, "state-token", query.Get("state"))
}

func TestAirtable_TokenParams(t *testing.T) {
	a := &airtableIntegration{}
	require.True(t, a.RequiresPKCE())
	require.Equal(t, "verifier-value", a.TokenParams("verifier-value").Get("code_verifier"))
}

func TestAirtable_LoadItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/meta/bases" && r.URL.Query().Get("offset") == "":
			_, _ = w.Write([]byte(`{"bases":[{"id":"app1","name":"CRM"}],"offset":"page2"}`))
		case r.URL.Path == "/meta/bases" && r.URL.Query().Get("offset") == "page2":
			_, _ = w.Write([]byte(`{"bases":[{"id":"app2","name":"Inventory"}]}`))
		case r.URL.Path == "/meta/bases/app1/tables":
			_, _ = w.Write([]byte(`{"tables":[{"id":"tbl1","name":"Leads"},{"id":"tbl2","name":"Accounts"}]}`))
		case r.URL.Path == "/meta/bases/app2/tables":
			_, _ = w.Write([]byte(`{"tables":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := &airtableIntegration{
		cfg:    integration.ProviderConfig{Name: integration.ProviderAirtable, APIBaseURL: srv.URL},
		client: srv.Client(),
		logger: zap.NewNop(),
	}

	items, err := a.LoadItems(context.Background(), integration.Credentials(`{"access_token":"tok-1"}`))
	require.NoError(t, err)
	require.Len(t, items, 4)

	require.Equal(t, "app1_Base", items[0].ID)
	require.Equal(t, "Base", items[0].Type)
	require.Equal(t, "CRM", items[0].Name)

	require.Equal(t, "tbl1_Table", items[1].ID)
	require.Equal(t, "Table", items[1].Type)
	require.Equal(t, "app1_Base", items[1].ParentID)
	require.Equal(t, "CRM", items[1].ParentPathOrName)

	require.Equal(t, "app2_Base", items[3].ID)
}

func TestAirtable_LoadItemsBasesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := &airtableIntegration{
		cfg:    integration.ProviderConfig{Name: integration.ProviderAirtable, APIBaseURL: srv.URL},
		client: srv.Client(),
		logger: zap.NewNop(),
	}

	_, err := a.LoadItems(context.Background(), integration.Credentials(`{"access_token":"expired"}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "status=401")
}

func TestAirtable_LoadItemsTolerateTableFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/meta/bases" {
			_, _ = w.Write([]byte(`{"bases":[{"id":"app1","name":"CRM"}]}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	a := &airtableIntegration{
		cfg:    integration.ProviderConfig{Name: integration.ProviderAirtable, APIBaseURL: srv.URL},
		client: srv.Client(),
		logger: zap.NewNop(),
	}

	items, err := a.LoadItems(context.Background(), integration.Credentials(`{"access_token":"tok-1"}`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "app1_Base", items[0].ID)
}
