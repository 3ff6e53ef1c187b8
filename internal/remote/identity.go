package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-finance/peregrine/internal/domain"
)

// IdentityClient is the auxiliary identity/object-store check client.
// It issues a single GET against the identity endpoint and reports the
// caller identity the service resolved for the configured credentials.
type IdentityClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
}

// NewIdentityClient creates an identity client from config. Returns
// nil when no identity endpoint is configured.
func NewIdentityClient(cfg domain.RemoteConfig, logger *slog.Logger) *IdentityClient {
	if cfg.IdentityEndpoint == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &IdentityClient{
		endpoint: cfg.IdentityEndpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With("component", "identity"),
	}
}

func (c *IdentityClient) CheckIdentity(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build identity request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("check identity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("check identity: remote returned %d: %s", resp.StatusCode, string(msg))
	}

	var out struct {
		Identity string `json:"identity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode identity response: %w", err)
	}

	c.logger.Debug("identity check passed", "identity", out.Identity)
	return out.Identity, nil
}
