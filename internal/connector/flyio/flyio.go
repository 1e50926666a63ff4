package flyio

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/hejijunhao/warden/internal/connector"
	"github.com/hejijunhao/warden/internal/connector/httpclient"
	"github.com/hejijunhao/warden/internal/model"
)

const defaultEndpoint = "https://api.fly.io"

// maxPages bounds pagination for one query.
const maxPages = 50

func init() {
	connector.Register("flyio", func() connector.Connector {
		return &Connector{}
	})
}

// Connector implements the connector.Connector interface for Fly.io's HTTP logs API.
type Connector struct{}

// Response types (unexported).

type logsResponse struct {
	Data []logWrapper `json:"data"`
	Meta meta         `json:"meta"`
}

type logWrapper struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Attributes logAttributes `json:"attributes"`
}

type logAttributes struct {
	Timestamp string         `json:"timestamp"` // RFC 3339
	Message   string         `json:"message"`
	Level     string         `json:"level"`
	Instance  string         `json:"instance"`
	Region    string         `json:"region"`
	Meta      map[string]any `json:"meta"`
}

type meta struct {
	NextToken string `json:"next_token"`
}

// toLogEntry converts a Fly.io log record. The app name is the service id;
// Fly.io has no finer-grained service notion in its log API.
func toLogEntry(appName string, w logWrapper) model.LogEntry {
	ts, _ := time.Parse(time.RFC3339Nano, w.Attributes.Timestamp)

	md := map[string]any{
		"instance": w.Attributes.Instance,
		"region":   w.Attributes.Region,
		"id":       w.ID,
	}
	for k, v := range w.Attributes.Meta {
		md[k] = v
	}

	return model.LogEntry{
		Timestamp: ts,
		Level:     model.ParseLevel(w.Attributes.Level),
		Message:   w.Attributes.Message,
		Service:   appName,
		Metadata:  md,
	}
}

func (c *Connector) Query(ctx context.Context, cfg connector.ConnectorConfig, params connector.QueryParams) ([]model.LogEntry, error) {
	appName := cfg.Extra["app_name"]
	if appName == "" {
		return nil, fmt.Errorf("flyio connector: missing required config key \"app_name\" in Extra")
	}

	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = defaultEndpoint
	}
	client := httpclient.New(baseURL, cfg.APIKey)
	path := "/api/v1/apps/" + url.PathEscape(appName) + "/logs"

	var results []model.LogEntry
	cursor := ""

	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		if cursor != "" {
			q.Set("next_token", cursor)
		}

		var resp logsResponse
		if err := client.GetJSON(ctx, path, q, &resp); err != nil {
			return nil, fmt.Errorf("flyio connector: %w", err)
		}

		for _, w := range resp.Data {
			e := toLogEntry(appName, w)

			// Client-side time filter (Fly.io has no server-side time range).
			if !params.Start.IsZero() && e.Timestamp.Before(params.Start) {
				continue
			}
			if !params.End.IsZero() && !e.Timestamp.Before(params.End) {
				continue
			}

			results = append(results, e)
			if params.Limit > 0 && len(results) >= params.Limit {
				return results, nil
			}
		}

		cursor = resp.Meta.NextToken
		if cursor == "" {
			break
		}
	}

	return results, nil
}
