package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/domain"
	"github.com/appLSI/decentralized-rental-app-sub000/pkg/httpclient"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Pricing is the nightly price of a property
type Pricing struct {
	PricePerNight decimal.Decimal `json:"pricePerNight"`
	Currency      string          `json:"currency"`
}

// ListingClient looks up property pricing
type ListingClient interface {
	GetPricing(ctx context.Context, propertyID int64) (*Pricing, error)
}

// HTTPListingClient calls the listing service's internal API. Concurrent
// lookups of the same property share one request.
type HTTPListingClient struct {
	http    *httpclient.Client
	sfGroup singleflight.Group
}

// NewHTTPListingClient creates a listing client on top of c
func NewHTTPListingClient(c *httpclient.Client) *HTTPListingClient {
	return &HTTPListingClient{http: c}
}

// GetPricing returns ErrPropertyNotFound for unknown properties
func (c *HTTPListingClient) GetPricing(ctx context.Context, propertyID int64) (*Pricing, error) {
	v, err, _ := c.sfGroup.Do(strconv.FormatInt(propertyID, 10), func() (interface{}, error) {
		var p Pricing
		if err := c.http.GetJSON(ctx, fmt.Sprintf("/internal/properties/%d", propertyID), &p); err != nil {
			return nil, err
		}
		return &p, nil
	})
	switch {
	case errors.Is(err, httpclient.ErrNotFound):
		return nil, domain.ErrPropertyNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: listings: %w", domain.ErrUpstreamUnavailable, err)
	}

	p := *v.(*Pricing)
	return &p, nil
}
