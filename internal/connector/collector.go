package connector

import (
	"context"
	"fmt"

	"github.com/hejijunhao/warden/internal/model"
)

// Collector fetches logs for targets through the registered connectors.
type Collector struct {
	connectors map[string]Connector
	apiKeys    map[string]string // provider -> default API key
}

// NewCollector resolves a connector for every provider used by targets.
// apiKeys supplies a per-provider token for targets without their own.
func NewCollector(targets []model.Target, apiKeys map[string]string) (*Collector, error) {
	c := &Collector{connectors: make(map[string]Connector), apiKeys: apiKeys}
	for _, t := range targets {
		if _, ok := c.connectors[t.Provider]; ok {
			continue
		}
		ctor, err := Get(t.Provider)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.Label(), err)
		}
		c.connectors[t.Provider] = ctor()
	}
	return c, nil
}

// Fetch queries the target's provider and stamps every entry with the
// target's project, and with its service when the target overrides it.
func (c *Collector) Fetch(ctx context.Context, target model.Target, params QueryParams) ([]model.LogEntry, error) {
	conn, ok := c.connectors[target.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, target.Provider)
	}
	entries, err := conn.Query(ctx, c.config(target), params)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Project = target.Project
		if target.Service != "" {
			entries[i].Service = target.Service
		}
	}
	return entries, nil
}

// Ping fetches at most one entry from the target to verify credentials.
func (c *Collector) Ping(ctx context.Context, target model.Target) error {
	_, err := c.Fetch(ctx, target, QueryParams{Limit: 1})
	return err
}

func (c *Collector) config(t model.Target) ConnectorConfig {
	key := t.APIKey
	if key == "" {
		key = c.apiKeys[t.Provider]
	}
	extra := make(map[string]string, len(t.Extra)+1)
	for k, v := range t.Extra {
		extra[k] = v
	}
	if _, ok := extra["project_id"]; !ok {
		extra["project_id"] = t.Project
	}
	if _, ok := extra["app_name"]; !ok {
		extra["app_name"] = t.Project
	}
	return ConnectorConfig{
		Provider: t.Provider,
		APIKey:   key,
		Endpoint: t.Endpoint,
		Extra:    extra,
	}
}
