package adapters

import (
	"context"
	"time"

	"github.com/brettbedarf/datafs/config"
	"github.com/brettbedarf/datafs/internal/util"
)

type BuiltInConnector = string

const (
	// HTTPConnector is the hosted data API; it serves data:// and any scheme
	// without a dedicated connector
	HTTPConnector BuiltInConnector = "http"
	S3Connector   BuiltInConnector = "s3"
)

// RegisterBuiltins registers the built-in connectors enabled in cfg, all of
// them by default or only the specific ones if keys are provided
func RegisterBuiltins(ctx context.Context, r *Registry, cfg *config.Config, connectors ...BuiltInConnector) error {
	logger := util.GetLogger("RegisterBuiltins")

	if len(connectors) == 0 {
		connectors = []BuiltInConnector{HTTPConnector, S3Connector}
	}

	for _, key := range connectors {
		switch key {
		case HTTPConnector:
			if cfg.API.Address == "" {
				logger.Debug().Msg("No data API address configured")
				continue
			}
			timeout := time.Duration(cfg.API.Timeout) * time.Second
			r.SetDefault(Instrument(HTTPConnector, NewHTTPStore(cfg.API.Address, cfg.API.Key, timeout)))
			logger.Info().Str("address", cfg.API.Address).Msg("Registered data API connector")
		case S3Connector:
			if !cfg.S3.Enabled {
				continue
			}
			store, err := NewS3Store(ctx, cfg.S3)
			if err != nil {
				return err
			}
			r.Register(S3Connector, Instrument(S3Connector, store))
			logger.Info().Str("region", cfg.S3.Region).Str("endpoint", cfg.S3.Endpoint).Msg("Registered S3 connector")
		}
	}
	return nil
}
