package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	pkgsecrets "github.com/spms-io/spms/pkg/secrets"
)

// APIKeyResolver resolves the market-data feed API key from a secrets
// backend, caching the result locally to reduce API calls. When no secret
// ID is configured the fallback key (typically from the environment) is
// returned as-is.
type APIKeyResolver struct {
	logger   *zap.Logger
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[string]
	secretID string
	fallback string
}

// NewAPIKeyResolver constructs a feed API key resolver.
// provider may be nil when secretID is empty.
func NewAPIKeyResolver(
	logger *zap.Logger,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[string],
	secretID string,
	fallback string,
) *APIKeyResolver {
	return &APIKeyResolver{
		logger:   logger,
		provider: provider,
		cache:    cache,
		secretID: secretID,
		fallback: fallback,
	}
}

// Resolve returns the feed API key, preferring the secrets backend over
// the static fallback.
func (r *APIKeyResolver) Resolve(ctx context.Context) (string, error) {
	if r.secretID == "" {
		return r.fallback, nil
	}

	if key, ok := r.cache.Get(r.secretID); ok {
		return key, nil
	}

	values, err := r.provider.GetSecret(ctx, r.secretID)
	if err != nil {
		r.logger.Error("secrets.resolve_failed",
			zap.String("secret_id", r.secretID),
			zap.Error(err))
		return "", fmt.Errorf("resolve feed api key: %w", err)
	}

	key, ok := values["api_key"]
	if !ok || key == "" {
		return "", fmt.Errorf("secret [%s] has no api_key field", r.secretID)
	}

	r.cache.Put(r.secretID, key)
	return key, nil
}
