package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/integration-hub/internal/adapter/provider"
	"github.com/smallbiznis/integration-hub/internal/config"
	"github.com/smallbiznis/integration-hub/internal/domain/integration"
)

func TestBroker_StateRoundTrip(t *testing.T) {
	h := newBrokerTestHarness()
	ctx := context.Background()

	token, err := h.broker.GenerateState(ctx, integration.ProviderHubSpot, "user-1", "org-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	payload, err := h.broker.ValidateState(ctx, integration.ProviderHubSpot, token)
	require.NoError(t, err)
	require.Equal(t, "user-1", payload.UserID)
	require.Equal(t, "org-1", payload.OrgID)
}

func TestBroker_StateReplayFails(t *testing.T) {
	h := newBrokerTestHarness()
	ctx := context.Background()

	token, err := h.broker.GenerateState(ctx, integration.ProviderHubSpot, "user-1", "org-1")
	require.NoError(t, err)

	_, err = h.broker.ValidateState(ctx, integration.ProviderHubSpot, token)
	require.NoError(t, err)

	_, err = h.broker.ValidateState(ctx, integration.ProviderHubSpot, token)
	require.ErrorIs(t, err, integration.ErrStateMismatch)
}

func TestBroker_StateExpires(t *testing.T) {
	h := newBrokerTestHarness()
	ctx := context.Background()

	token, err := h.broker.GenerateState(ctx, integration.ProviderHubSpot, "user-1", "org-1")
	require.NoError(t, err)

	h.store.advance(11 * time.Minute)

	_, err = h.broker.ValidateState(ctx, integration.ProviderHubSpot, token)
	require.ErrorIs(t, err, integration.ErrStateMismatch)
}

func TestBroker_StateMalformedToken(t *testing.T) {
	h := newBrokerTestHarness()
	ctx := context.Background()

	_, err := h.broker.ValidateState(ctx, integration.ProviderHubSpot, "%%% not base64 %%%")
	require.ErrorIs(t, err, integration.ErrMalformedState)

	notJSON := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	_, err = h.broker.ValidateState(ctx, integration.ProviderHubSpot, notJSON)
	require.ErrorIs(t, err, integration.ErrMalformedState)
}

func TestBroker_StateMissingFields(t *testing.T) {
	h := newBrokerTestHarness()
	ctx := context.Background()

	partial, err := json.Marshal(integration.StatePayload{State: "nonce-only"})
	require.NoError(t, err)

	_, err = h.broker.ValidateState(ctx, integration.ProviderHubSpot, base64.RawURLEncoding.EncodeToString(partial))
	require.ErrorIs(t, err, integration.ErrInvalidState)
}

func TestBroker_StateNonceMismatch(t *testing.T) {
	h := newBrokerTestHarness()
	ctx := context.Background()

	_, err := h.broker.GenerateState(ctx, integration.ProviderHubSpot, "user-1", "org-1")
	require.NoError(t, err)

	forged, err := json.Marshal(integration.StatePayload{State: "forged-nonce", UserID: "user-1", OrgID: "org-1"})
	require.NoError(t, err)

	_, err = h.broker.ValidateState(ctx, integration.ProviderHubSpot, base64.RawURLEncoding.EncodeToString(forged))
	require.ErrorIs(t, err, integration.ErrStateMismatch)
}

func TestBroker_CredentialsSingleUse(t *testing.T) {
	h := newBrokerTestHarness()
	ctx := context.Background()
	payload := integration.Credentials(`{"access_token":"tok-123","token_type":"bearer"}`)

	require.NoError(t, h.broker.StoreCredentials(ctx, integration.ProviderNotion, "user-1", "org-1", payload))

	creds, err := h.broker.Credentials(ctx, "notion", "user-1", "org-1")
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(creds))

	_, err = h.broker.Credentials(ctx, "notion", "user-1", "org-1")
	require.ErrorIs(t, err, integration.ErrCredentialsNotFound)
}

func TestBroker_CredentialsExpire(t *testing.T) {
	h := newBrokerTestHarness()
	ctx := context.Background()

	require.NoError(t, h.broker.StoreCredentials(ctx, integration.ProviderNotion, "user-1", "org-1", integration.Credentials(`{"access_token":"tok"}`)))

	h.store.advance(11 * time.Minute)

	_, err := h.broker.Credentials(ctx, "notion", "user-1", "org-1")
	require.ErrorIs(t, err, integration.ErrCredentialsNotFound)
}

func TestBroker_CredentialsMalformed(t *testing.T) {
	h := newBrokerTestHarness()
	ctx := context.Background()

	require.NoError(t, h.store.Set(ctx, "notion_credentials:user-1:org-1", []byte("corrupted"), time.Minute))
	_, err := h.broker.Credentials(ctx, "notion", "user-1", "org-1")
	require.ErrorIs(t, err, integration.ErrMalformedCredentials)

	require.NoError(t, h.store.Set(ctx, "notion_credentials:user-1:org-1", []byte("{}"), time.Minute))
	_, err = h.broker.Credentials(ctx, "notion", "user-1", "org-1")
	require.ErrorIs(t, err, integration.ErrMalformedCredentials)
}

func TestBroker_UnsupportedIntegration(t *testing.T) {
	h := newBrokerTestHarness()
	ctx := context.Background()

	_, err := h.broker.Authorize(ctx, "slack", "user-1", "org-1")
	require.ErrorIs(t, err, integration.ErrUnsupportedIntegration)

	err = h.broker.HandleCallback(ctx, "slack", CallbackInput{Code: "code", State: "state"})
	require.ErrorIs(t, err, integration.ErrUnsupportedIntegration)

	_, err = h.broker.Credentials(ctx, "slack", "user-1", "org-1")
	require.ErrorIs(t, err, integration.ErrUnsupportedIntegration)

	_, err = h.broker.LoadItems(ctx, "slack", `{"access_token":"tok"}`)
	require.ErrorIs(t, err, integration.ErrUnsupportedIntegration)

	// The exchange must fail before any network call is attempted.
	require.Zero(t, h.exchanger.calls)
}

func TestBroker_AuthorizeEmbedsState(t *testing.T) {
	h := newBrokerTestHarness()
	ctx := context.Background()

	authURL, err := h.broker.Authorize(ctx, "hubspot", "user-1", "org-1")
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, "client", parsed.Query().Get("client_id"))

	token := parsed.Query().Get("state")
	require.NotEmpty(t, token)

	payload, err := h.broker.ValidateState(ctx, integration.ProviderHubSpot, token)
	require.NoError(t, err)
	require.Equal(t, "user-1", payload.UserID)
	require.Equal(t, "org-1", payload.OrgID)
}

func TestBroker_HandleCallbackStoresCredentials(t *testing.T) {
	h := newBrokerTestHarness()
	ctx := context.Background()
	h.exchanger.creds = integration.Credentials(`{"access_token":"exchanged","expires_in":1800}`)

	authURL, err := h.broker.Authorize(ctx, "hubspot", "user-1", "org-1")
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)

	err = h.broker.HandleCallback(ctx, "hubspot", CallbackInput{
		Code:  "auth-code",
		State: parsed.Query().Get("state"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, h.exchanger.calls)
	require.Equal(t, "auth-code", h.exchanger.lastCode)

	creds, err := h.broker.Credentials(ctx, "hubspot", "user-1", "org-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"access_token":"exchanged","expires_in":1800}`, string(creds))
}

func TestBroker_AirtablePKCE(t *testing.T) {
	h := newBrokerTestHarness()
	ctx := context.Background()
	h.exchanger.creds = integration.Credentials(`{"access_token":"exchanged"}`)

	authURL, err := h.broker.Authorize(ctx, "airtable", "user-1", "org-1")
	require.NoError(t, err)
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	require.NotEmpty(t, parsed.Query().Get("code_challenge"))
	require.Equal(t, "S256", parsed.Query().Get("code_challenge_method"))

	err = h.broker.HandleCallback(ctx, "airtable", CallbackInput{
		Code:  "auth-code",
		State: parsed.Query().Get("state"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, h.exchanger.lastExtra.Get("code_verifier"))

	// The verifier is consumed alongside the state, so a replay has nothing
	// left to exchange with.
	value, err := h.store.Get(ctx, "airtable_verifier:user-1:org-1")
	require.NoError(t, err)
	require.Nil(t, value)
}

func TestBroker_LoadItemsRejectsInvalidJSON(t *testing.T) {
	h := newBrokerTestHarness()

	_, err := h.broker.LoadItems(context.Background(), "hubspot", "not json at all")
	require.ErrorIs(t, err, integration.ErrMalformedCredentials)
}

// ---- Test harness and fakes ----

type brokerTestHarness struct {
	broker    *Broker
	store     *memoryStore
	exchanger *fakeExchanger
}

func newBrokerTestHarness() *brokerTestHarness {
	cfg := config.Config{
		RequestTimeout: time.Second,
		StateTTL:       10 * time.Minute,
		Providers: map[integration.Provider]integration.ProviderConfig{
			integration.ProviderHubSpot: {
				Name:         integration.ProviderHubSpot,
				ClientID:     "client",
				ClientSecret: "secret",
				AuthURL:      "https://app.hubspot.com/oauth/authorize",
				TokenURL:     "https://api.hubspot.com/oauth/v1/token",
				RedirectURI:  "http://localhost:8000/integrations/hubspot/oauth2callback",
				Scopes:       []string{"crm.objects.contacts.read", "oauth"},
			},
			integration.ProviderNotion: {
				Name:         integration.ProviderNotion,
				ClientID:     "client",
				ClientSecret: "secret",
				AuthURL:      "https://api.notion.com/v1/oauth/authorize",
				TokenURL:     "https://api.notion.com/v1/oauth/token",
				RedirectURI:  "http://localhost:8000/integrations/notion/oauth2callback",
			},
			integration.ProviderAirtable: {
				Name:         integration.ProviderAirtable,
				ClientID:     "client",
				ClientSecret: "secret",
				AuthURL:      "https://airtable.com/oauth2/v1/authorize",
				TokenURL:     "https://airtable.com/oauth2/v1/token",
				RedirectURI:  "http://localhost:8000/integrations/airtable/oauth2callback",
				Scopes:       []string{"schema.bases:read"},
			},
		},
	}

	store := newMemoryStore()
	exchanger := &fakeExchanger{}
	registry := provider.NewRegistry(cfg, nil, zap.NewNop())
	b := New(registry, exchanger, store, cfg.StateTTL, zap.NewNop())
	return &brokerTestHarness{broker: b, store: store, exchanger: exchanger}
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// memoryStore is a TransientStore double with an adjustable clock so expiry
// can be tested without sleeping.
type memoryStore struct {
	mu   sync.RWMutex
	now  time.Time
	data map[string]memoryEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{now: time.Now(), data: map[string]memoryEntry{}}
}

func (m *memoryStore) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := append([]byte(nil), value...)
	m.data[key] = memoryEntry{value: copied, expiresAt: m.now.Add(ttl)}
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.data[key]
	if !ok || m.now.After(entry.expiresAt) {
		return nil, nil
	}
	return append([]byte(nil), entry.value...), nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type fakeExchanger struct {
	calls     int
	lastCode  string
	lastExtra url.Values
	creds     integration.Credentials
	err       error
}

func (f *fakeExchanger) ExchangeCode(_ context.Context, _ integration.ProviderConfig, code string, extra url.Values) (integration.Credentials, error) {
	f.calls++
	f.lastCode = code
	f.lastExtra = extra
	if f.err != nil {
		return nil, f.err
	}
	if f.creds == nil {
		return nil, fmt.Errorf("exchange not configured")
	}
	return f.creds, nil
}
