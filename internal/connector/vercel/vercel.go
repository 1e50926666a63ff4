package vercel

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/hejijunhao/warden/internal/connector"
	"github.com/hejijunhao/warden/internal/connector/httpclient"
	"github.com/hejijunhao/warden/internal/model"
)

const defaultEndpoint = "https://api.vercel.com"

// maxPages bounds pagination for one query.
const maxPages = 50

func init() {
	connector.Register("vercel", func() connector.Connector {
		return &Connector{}
	})
}

// Connector implements the connector.Connector interface for Vercel's REST logs API.
type Connector struct{}

// Response types (unexported).

type logsResponse struct {
	Data       []logEntry `json:"data"`
	Pagination pagination `json:"pagination"`
}

type logEntry struct {
	ID        string     `json:"id"`
	Message   string     `json:"message"`
	Timestamp int64      `json:"timestamp"` // unix milliseconds
	Source    string     `json:"source"`    // lambda, edge, build, static, external
	Level     string     `json:"level"`
	Proxy     *proxyInfo `json:"proxy,omitempty"`
}

type proxyInfo struct {
	StatusCode int    `json:"statusCode"`
	Path       string `json:"path"`
	Method     string `json:"method"`
	Host       string `json:"host"`
}

type pagination struct {
	Next string `json:"next"`
}

func toLogEntry(e logEntry) model.LogEntry {
	md := map[string]any{
		"id":     e.ID,
		"source": e.Source,
	}
	level := model.ParseLevel(e.Level)
	if e.Proxy != nil {
		md["status_code"] = e.Proxy.StatusCode
		md["path"] = e.Proxy.Path
		md["method"] = e.Proxy.Method
		md["host"] = e.Proxy.Host
		// Vercel reports 5xx responses at info level.
		if e.Proxy.StatusCode >= 500 && level < model.LevelError {
			level = model.LevelError
		}
	}

	service := e.Source
	if service == "" {
		service = "vercel"
	}

	return model.LogEntry{
		Timestamp: time.UnixMilli(e.Timestamp).UTC(),
		Level:     level,
		Message:   e.Message,
		Service:   service,
		Metadata:  md,
	}
}

func (c *Connector) Query(ctx context.Context, cfg connector.ConnectorConfig, params connector.QueryParams) ([]model.LogEntry, error) {
	projectID := cfg.Extra["project_id"]
	if projectID == "" {
		return nil, fmt.Errorf("vercel connector: missing required config key \"project_id\" in Extra")
	}

	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = defaultEndpoint
	}
	client := httpclient.New(baseURL, cfg.APIKey)
	path := "/v1/projects/" + url.PathEscape(projectID) + "/logs"

	base := url.Values{}
	if teamID := cfg.Extra["team_id"]; teamID != "" {
		base.Set("teamId", teamID)
	}
	if !params.Start.IsZero() {
		base.Set("from", strconv.FormatInt(params.Start.UnixMilli(), 10))
	}
	if !params.End.IsZero() {
		base.Set("to", strconv.FormatInt(params.End.UnixMilli(), 10))
	}

	var results []model.LogEntry
	cursor := ""

	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		for k, v := range base {
			q[k] = v
		}
		if cursor != "" {
			q.Set("next", cursor)
		}

		var resp logsResponse
		if err := client.GetJSON(ctx, path, q, &resp); err != nil {
			return nil, fmt.Errorf("vercel connector: %w", err)
		}

		for _, e := range resp.Data {
			results = append(results, toLogEntry(e))
			if params.Limit > 0 && len(results) >= params.Limit {
				return results, nil
			}
		}

		cursor = resp.Pagination.Next
		if cursor == "" {
			break
		}
	}

	return results, nil
}
