package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"ssmdquery/logger"
)

// Register declares every tool on the server and binds it to the service.
func Register(s *server.MCPServer, svc *Service) {
	s.AddTool(mcp.NewTool("query_trades",
		mcp.WithDescription("Aggregate a feed's trades for one date: per-ticker trade count, volume where the feed has one, and the price range. Most active tickers first."),
		mcp.WithString("feed", mcp.Required(), mcp.Description("Feed name: kalshi, kraken-futures or polymarket")),
		mcp.WithString("date", mcp.Description("Date partition YYYY-MM-DD, defaults to today (UTC)")),
		mcp.WithNumber("limit", mcp.Description("Maximum tickers to return, default 20, capped at 1000")),
	), handle("query_trades", func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		feedName, err := req.RequireString("feed")
		if err != nil {
			return nil, err
		}
		return svc.QueryTrades(ctx, feedName, req.GetString("date", ""), req.GetInt("limit", 0)), nil
	}))

	s.AddTool(mcp.NewTool("query_events",
		mcp.WithDescription("Roll a feed's trades up to the event level for one date: per-event trade count, distinct market count, and volume where the feed has one. Most active events first."),
		mcp.WithString("feed", mcp.Required(), mcp.Description("Feed name: kalshi, kraken-futures or polymarket")),
		mcp.WithString("date", mcp.Description("Date partition YYYY-MM-DD, defaults to today (UTC)")),
		mcp.WithNumber("limit", mcp.Description("Maximum events to return, default 20, capped at 1000")),
	), handle("query_events", func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		feedName, err := req.RequireString("feed")
		if err != nil {
			return nil, err
		}
		return svc.QueryEvents(ctx, feedName, req.GetString("date", ""), req.GetInt("limit", 0)), nil
	}))

	s.AddTool(mcp.NewTool("query_prices",
		mcp.WithDescription("Latest price snapshot per ticker for a feed, from one hour file or across a whole date."),
		mcp.WithString("feed", mcp.Required(), mcp.Description("Feed name: kalshi, kraken-futures or polymarket")),
		mcp.WithString("date", mcp.Description("Date partition YYYY-MM-DD, defaults to today (UTC)")),
		mcp.WithString("hour", mcp.Description("Hour token HHMM addressing one snapshot file, e.g. 1400")),
	), handle("query_prices", func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		feedName, err := req.RequireString("feed")
		if err != nil {
			return nil, err
		}
		return svc.QueryPrices(ctx, feedName, req.GetString("date", ""), req.GetString("hour", "")), nil
	}))

	s.AddTool(mcp.NewTool("run_sql",
		mcp.WithDescription("Run an arbitrary read-only SQL statement against the market data. ssmd_path('<feed>'[, '<date>']) expands to that partition's parquet glob. Unbounded statements are capped at 1000 rows."),
		mcp.WithString("sql", mcp.Required(), mcp.Description("The SQL statement to run")),
	), handle("run_sql", func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		sqlText, err := req.RequireString("sql")
		if err != nil {
			return nil, err
		}
		return svc.RunSQL(ctx, sqlText), nil
	}))

	s.AddTool(mcp.NewTool("lookup_market",
		mcp.WithDescription("Resolve market metadata (title, status, settlement) for ticker or asset identifiers."),
		mcp.WithArray("ids", mcp.Required(), mcp.Description("Market identifiers to resolve"), mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("feed", mcp.Description("Feed the identifiers belong to")),
	), handle("lookup_market", func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		ids := req.GetStringSlice("ids", nil)
		if len(ids) == 0 {
			return nil, fmt.Errorf("ids must be a non-empty array of strings")
		}
		return svc.LookupMarket(ctx, ids, req.GetString("feed", "")), nil
	}))

	s.AddTool(mcp.NewTool("list_feeds",
		mcp.WithDescription("List the supported market data feeds and their schema conventions."),
	), handle("list_feeds", func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		return svc.ListFeeds(ctx), nil
	}))

	s.AddTool(mcp.NewTool("check_freshness",
		mcp.WithDescription("Report how current each feed's data is: newest partition, newest hour file, age and staleness."),
		mcp.WithString("feed", mcp.Description("Check a single feed instead of all of them")),
	), handle("check_freshness", func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		return svc.CheckFreshness(ctx, req.GetString("feed", "")), nil
	}))

	s.AddTool(mcp.NewTool("query_volume",
		mcp.WithDescription("Per-feed trade activity summary for one date, in each feed's native units."),
		mcp.WithString("date", mcp.Description("Date partition YYYY-MM-DD, defaults to today (UTC)")),
		mcp.WithString("feed", mcp.Description("Summarize a single feed instead of all of them")),
	), handle("query_volume", func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
		return svc.QueryVolume(ctx, req.GetString("date", ""), req.GetString("feed", "")), nil
	}))
}

// handle adapts a tool function to the protocol: payloads are serialized to
// JSON text, argument errors become protocol-level tool errors, and every
// call is logged with a request id.
func handle(name string, fn func(ctx context.Context, req mcp.CallToolRequest) (any, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log := logger.GetLogger().WithComponent("tools").WithFields(logger.Fields{
			"tool":       name,
			"request_id": uuid.NewString(),
		})
		start := time.Now()

		payload, err := fn(ctx, req)
		if err != nil {
			logger.RecordToolCall(name, true)
			log.WithError(err).Warn("tool call rejected")
			return mcp.NewToolResultError(err.Error()), nil
		}

		failed := payloadFailed(payload)
		logger.RecordToolCall(name, failed)
		log.WithFields(logger.Fields{
			"duration_ms": time.Since(start).Milliseconds(),
			"failed":      failed,
		}).Info("tool call complete")

		data, err := json.Marshal(payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("serializing result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

// payloadFailed reports whether a tool payload carries a structured error.
func payloadFailed(payload any) bool {
	switch p := payload.(type) {
	case map[string]any:
		_, ok := p["error"]
		return ok
	case interface{ Failed() bool }:
		return p.Failed()
	}
	return false
}
