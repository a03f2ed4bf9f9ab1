// Package provider selects the market-data adapter at startup from
// configuration. Two adapters exist: the EODHD client and a plain-JSON
// WebSocket simulator for offline runs.
package provider

import (
	"fmt"

	"github.com/sharif3/momentum-trader/config"
	"github.com/sharif3/momentum-trader/internal/model"
	"github.com/sharif3/momentum-trader/pkg/eodhd"
)

// New returns the configured provider adapter.
func New(cfg *config.Config) (model.Provider, error) {
	switch cfg.Provider {
	case "eodhd":
		return eodhd.NewClient(cfg.ProviderAPIURL, cfg.ProviderWSURL, cfg.ProviderAPIKey), nil
	case "sim":
		return NewSim(cfg.ProviderWSURL), nil
	default:
		return nil, fmt.Errorf("unknown provider %q: %w", cfg.Provider, model.ErrInvalidRequest)
	}
}
