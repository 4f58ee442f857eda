package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/httpclient"
)

// Wallet is the identity service's view of a tenant's wallet
type Wallet struct {
	WalletAddress string `json:"walletAddress"`
	Exists        bool   `json:"exists"`
}

// IdentityClient looks up registered wallets
type IdentityClient interface {
	GetWallet(ctx context.Context, tenantID int64) (*Wallet, error)
}

// HTTPIdentityClient calls the identity service's internal API
type HTTPIdentityClient struct {
	http *httpclient.Client
}

// NewHTTPIdentityClient creates an identity client on top of c
func NewHTTPIdentityClient(c *httpclient.Client) *HTTPIdentityClient {
	return &HTTPIdentityClient{http: c}
}

// GetWallet returns the tenant's wallet. An unknown tenant is reported as a
// wallet that does not exist.
func (c *HTTPIdentityClient) GetWallet(ctx context.Context, tenantID int64) (*Wallet, error) {
	var w Wallet
	err := c.http.GetJSON(ctx, fmt.Sprintf("/internal/users/%d/wallet", tenantID), &w)
	switch {
	case errors.Is(err, httpclient.ErrNotFound):
		return &Wallet{}, nil
	case err != nil:
		return nil, fmt.Errorf("%w: identity: %w", domain.ErrUpstreamUnavailable, err)
	}
	return &w, nil
}
