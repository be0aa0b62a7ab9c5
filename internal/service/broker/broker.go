// Package broker implements the OAuth state and credential lifecycle: minting
// time-boxed anti-CSRF state tokens, validating them on callback, exchanging
// authorization codes, and handing token payloads to the client through
// single-use cache slots.
package broker

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/integration-hub/internal/adapter/provider"
	"github.com/smallbiznis/integration-hub/internal/domain/integration"
	"github.com/smallbiznis/integration-hub/internal/repository"
)

// Service defines the broker operations the HTTP layer consumes.
type Service interface {
	Authorize(ctx context.Context, name, userID, orgID string) (string, error)
	HandleCallback(ctx context.Context, name string, in CallbackInput) error
	Credentials(ctx context.Context, name, userID, orgID string) (integration.Credentials, error)
	LoadItems(ctx context.Context, name, rawCredentials string) ([]integration.Item, error)
}

// CallbackInput captures the OAuth callback query parameters.
type CallbackInput struct {
	Code  string
	State string
}

// Broker is the default Service implementation.
type Broker struct {
	registry  *provider.Registry
	exchanger provider.Exchanger
	store     repository.TransientStore
	ttl       time.Duration
	logger    *zap.Logger
}

var _ Service = (*Broker)(nil)

// New wires the broker. ttl bounds both state tokens and credential slots;
// entries not collected within the window are lost, forcing re-authorization.
func New(
	registry *provider.Registry,
	exchanger provider.Exchanger,
	store repository.TransientStore,
	ttl time.Duration,
	logger *zap.Logger,
) *Broker {
	if logger == nil {
		logger = zap.L()
	}
	return &Broker{
		registry:  registry,
		exchanger: exchanger,
		store:     store,
		ttl:       ttl,
		logger:    logger,
	}
}

// Authorize mints a state token (and, where the provider requires PKCE, a
// code verifier) and returns the authorization URL to redirect the user to.
func (b *Broker) Authorize(ctx context.Context, name, userID, orgID string) (string, error) {
	integ, err := b.registry.Lookup(name)
	if err != nil {
		return "", err
	}
	providerName := integ.Config().Name

	token, err := b.GenerateState(ctx, providerName, userID, orgID)
	if err != nil {
		return "", err
	}

	codeChallenge := ""
	if integ.RequiresPKCE() {
		verifier, err := secureRandomString(32)
		if err != nil {
			return "", fmt.Errorf("generate pkce verifier: %w", err)
		}
		key := verifierKey(providerName, userID, orgID)
		if err := b.store.Set(ctx, key, []byte(verifier), b.ttl); err != nil {
			return "", fmt.Errorf("persist pkce verifier: %w", err)
		}
		codeChallenge = pkceChallenge(verifier)
	}

	authURL, err := integ.AuthorizationURL(token, codeChallenge)
	if err != nil {
		return "", fmt.Errorf("build authorization url: %w", err)
	}

	b.logger.Info("authorization started",
		zap.String("integration", providerName.String()),
		zap.String("user_id", userID),
		zap.String("org_id", orgID),
	)
	return authURL, nil
}

// HandleCallback validates the returned state, exchanges the code, and parks
// the resulting credentials in the user's single-use slot.
func (b *Broker) HandleCallback(ctx context.Context, name string, in CallbackInput) error {
	integ, err := b.registry.Lookup(name)
	if err != nil {
		return err
	}
	providerName := integ.Config().Name

	payload, err := b.ValidateState(ctx, providerName, in.State)
	if err != nil {
		return err
	}

	var extra url.Values
	if integ.RequiresPKCE() {
		verifier, err := b.consumeVerifier(ctx, providerName, payload.UserID, payload.OrgID)
		if err != nil {
			return err
		}
		extra = integ.TokenParams(verifier)
	}

	creds, err := b.exchanger.ExchangeCode(ctx, integ.Config(), in.Code, extra)
	if err != nil {
		return err
	}

	if err := b.StoreCredentials(ctx, providerName, payload.UserID, payload.OrgID, creds); err != nil {
		return err
	}

	b.logger.Info("oauth callback completed",
		zap.String("integration", providerName.String()),
		zap.String("user_id", payload.UserID),
		zap.String("org_id", payload.OrgID),
	)
	return nil
}

// Credentials returns the stored token payload and deletes it, so a second
// read fails. The client gets exactly one chance to collect.
func (b *Broker) Credentials(ctx context.Context, name, userID, orgID string) (integration.Credentials, error) {
	integ, err := b.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	providerName := integ.Config().Name

	key := credentialsKey(providerName, userID, orgID)
	value, err := b.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if len(value) == 0 {
		return nil, integration.ErrCredentialsNotFound
	}

	var decoded map[string]any
	if err := json.Unmarshal(value, &decoded); err != nil {
		b.logger.Error("stored credentials failed to decode",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, integration.ErrMalformedCredentials
	}
	if len(decoded) == 0 {
		return nil, integration.ErrMalformedCredentials
	}

	if err := b.store.Delete(ctx, key); err != nil {
		b.logger.Warn("failed to delete credential slot", zap.String("key", key), zap.Error(err))
	}
	return integration.Credentials(value), nil
}

// LoadItems forwards the client-supplied credential payload to the provider's
// item loader.
func (b *Broker) LoadItems(ctx context.Context, name, rawCredentials string) ([]integration.Item, error) {
	integ, err := b.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(rawCredentials)) {
		return nil, integration.ErrMalformedCredentials
	}
	return integ.LoadItems(ctx, integration.Credentials(rawCredentials))
}

// GenerateState produces a random nonce, persists the nonce/user/org payload
// under the state key with TTL, and returns the encoded token to embed in the
// provider redirect URL.
func (b *Broker) GenerateState(ctx context.Context, name integration.Provider, userID, orgID string) (string, error) {
	nonce, err := secureRandomString(32)
	if err != nil {
		return "", fmt.Errorf("generate state nonce: %w", err)
	}

	payload := integration.StatePayload{
		State:  nonce,
		UserID: userID,
		OrgID:  orgID,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}

	if err := b.store.Set(ctx, stateKey(name, userID, orgID), encoded, b.ttl); err != nil {
		return "", fmt.Errorf("persist state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(encoded), nil
}

// ValidateState decodes the token, compares its nonce against the stored
// record, and consumes the record on success. The returned payload carries
// the user/org the flow was started for, so the callback does not trust
// client-supplied identity alone.
func (b *Broker) ValidateState(ctx context.Context, name integration.Provider, token string) (*integration.StatePayload, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, integration.ErrMalformedState
	}

	var payload integration.StatePayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil, integration.ErrMalformedState
	}
	if payload.State == "" || payload.UserID == "" || payload.OrgID == "" {
		return nil, integration.ErrInvalidState
	}

	key := stateKey(name, payload.UserID, payload.OrgID)
	saved, err := b.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if len(saved) == 0 {
		return nil, integration.ErrStateMismatch
	}

	var savedPayload integration.StatePayload
	if err := json.Unmarshal(saved, &savedPayload); err != nil {
		b.logger.Error("stored state failed to decode", zap.String("key", key), zap.Error(err))
		return nil, integration.ErrStateMismatch
	}
	if savedPayload.State != payload.State {
		return nil, integration.ErrStateMismatch
	}

	// Consume the record so a replayed token fails.
	if err := b.store.Delete(ctx, key); err != nil {
		b.logger.Warn("failed to delete state record", zap.String("key", key), zap.Error(err))
	}
	return &payload, nil
}

// StoreCredentials parks the token payload in the user's slot with the same
// TTL as state tokens.
func (b *Broker) StoreCredentials(ctx context.Context, name integration.Provider, userID, orgID string, creds integration.Credentials) error {
	key := credentialsKey(name, userID, orgID)
	if err := b.store.Set(ctx, key, creds, b.ttl); err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}
	return nil
}

func (b *Broker) consumeVerifier(ctx context.Context, name integration.Provider, userID, orgID string) (string, error) {
	key := verifierKey(name, userID, orgID)
	value, err := b.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("load pkce verifier: %w", err)
	}
	if len(value) == 0 {
		return "", integration.ErrStateMismatch
	}
	if err := b.store.Delete(ctx, key); err != nil {
		b.logger.Warn("failed to delete pkce verifier", zap.String("key", key), zap.Error(err))
	}
	return string(value), nil
}

func stateKey(name integration.Provider, userID, orgID string) string {
	return fmt.Sprintf("%s_state:%s:%s", name, userID, orgID)
}

func credentialsKey(name integration.Provider, userID, orgID string) string {
	return fmt.Sprintf("%s_credentials:%s:%s", name, userID, orgID)
}

func verifierKey(name integration.Provider, userID, orgID string) string {
	return fmt.Sprintf("%s_verifier:%s:%s", name, userID, orgID)
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
