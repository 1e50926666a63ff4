package connector

import (
	"context"
	"time"

	"github.com/hejijunhao/warden/internal/model"
)

// Connector defines the interface all log source connectors must implement.
type Connector interface {
	// Query fetches a batch of historical logs matching the given parameters.
	// Entries carry the provider's service id; Project is stamped by the caller.
	Query(ctx context.Context, cfg ConnectorConfig, params QueryParams) ([]model.LogEntry, error)
}

// ConnectorConfig holds provider-specific connection settings.
type ConnectorConfig struct {
	Provider string
	APIKey   string
	Endpoint string
	Extra    map[string]string
}

// QueryParams defines filters for historical log queries.
type QueryParams struct {
	Start  time.Time
	End    time.Time
	Limit  int
	Filter string
}
