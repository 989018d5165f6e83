// Package mcp provides the Model Context Protocol server for wavault.
//
// It exposes the hybrid search engine as two tools: search_capabilities
// (a static descriptor of what this archive supports) and unified_search
// (search, count, and aggregate modes over the message archive). Supports
// stdio transport and streamable HTTP for remote access.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"wavault/internal/search"
)

// SchemaVersion identifies the capability descriptor format.
const SchemaVersion = "1.2"

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Engine  *search.Engine
	Version string // version string for MCP server info
}

// NewServer creates a configured MCP server with the wavault tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"wavault",
		ver,
		server.WithToolCapabilities(false),
	)

	registerCapabilitiesTool(s)
	registerUnifiedSearchTool(s, cfg.Engine)

	return s
}

// ServeStdio blocks serving the MCP protocol over stdin/stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// ServeHTTP blocks serving the MCP protocol over streamable HTTP.
func ServeHTTP(s *server.MCPServer, addr string) error {
	return server.NewStreamableHTTPServer(s).Start(addr)
}

func registerCapabilitiesTool(s *server.MCPServer) {
	tool := mcp.NewTool("search_capabilities",
		mcp.WithDescription("Return this server's search capabilities: supported retrieval methods, modes, filters, and result bounds."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(capabilities())
	})
}

// capabilities is the static descriptor unified_search callers use to plan
// queries against this archive.
func capabilities() map[string]any {
	return map[string]any{
		"schema_version":            SchemaVersion,
		"source_name":               search.SourceName,
		"source_class":              search.SourceClass,
		"display_label":             "WhatsApp messages",
		"alias_hints":               []string{"wa", "chat"},
		"freshness_window_days":     1,
		"latency_tier":              "low",
		"quality_tier":              "high",
		"cost_tier":                 "low",
		"supported_methods":         []string{"structured", "fulltext", "vector"},
		"supported_modes":           []string{"search", "count", "aggregate"},
		"supported_group_by_fields": search.GroupByFields,
		"supported_filters": []map[string]any{
			{"name": "chat_id", "type": "integer", "operators": []string{"eq"}, "description": "Filter by chat"},
			{"name": "from_me", "type": "boolean", "operators": []string{"eq"}, "description": "Sent by me"},
			{"name": "date_after", "type": "date", "operators": []string{"gte"}, "description": "Message on or after"},
			{"name": "date_before", "type": "date", "operators": []string{"lte"}, "description": "Message on or before"},
		},
		"max_limit":       search.MaxLimit,
		"default_limit":   search.DefaultLimit,
		"sort_fields":     []string{"timestamp", "relevance"},
		"default_ranking": "vector",
	}
}

func registerUnifiedSearchTool(s *server.MCPServer, engine *search.Engine) {
	tool := mcp.NewTool("unified_search",
		mcp.WithDescription("Hybrid search over WhatsApp messages. mode=search fuses structured, fulltext, and vector retrieval; mode=count returns a filtered total; mode=aggregate returns top groups by message count."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query",
			mcp.Description("Search text. Empty is allowed for structured browsing, count, and aggregate."),
		),
		mcp.WithArray("methods",
			mcp.Description("Retrieval methods to run: structured, fulltext, vector. Empty = auto-select."),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("filters",
			mcp.Description("Filter clauses, each {field, value}. Supported fields: chat_id, from_me, date_after, date_before."),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Maximum number of results (default: 10, max: 100)."),
		),
		mcp.WithString("mode",
			mcp.Description("Query mode (default: search)."),
			mcp.Enum("search", "count", "aggregate"),
		),
		mcp.WithString("group_by",
			mcp.Description("Aggregate grouping key: chat_id or contact_push_name. Required for mode=aggregate."),
		),
		mcp.WithNumber("aggregate_top_n",
			mcp.Description("Maximum number of aggregate groups (default: 10, max: 100)."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := req.GetString("query", "")
		mode := req.GetString("mode", "search")
		groupBy := req.GetString("group_by", "")
		topK := search.CapLimit(req.GetInt("top_k", search.DefaultLimit))
		topN := search.CapLimit(req.GetInt("aggregate_top_n", search.DefaultLimit))
		methods := stringSlice(req.GetArguments()["methods"])
		clauses := clauseSlice(req.GetArguments()["filters"])

		var resp *search.Response
		var err error
		switch mode {
		case "count":
			resp, err = engine.Count(ctx, clauses)
		case "aggregate":
			if !contains(search.GroupByFields, groupBy) {
				err = fmt.Errorf("aggregate mode requires group_by in %v, got %q", search.GroupByFields, groupBy)
			} else {
				resp, err = engine.Aggregate(ctx, groupBy, clauses, topN)
			}
		default:
			resp, err = engine.Search(ctx, query, methods, clauses, topK)
		}

		if err != nil {
			// Data-level failures surface through the envelope, not as
			// protocol errors, so callers always get a parseable response.
			slog.Error("unified_search failed", "mode", mode, "error", err)
			resp = &search.Response{
				Success:         false,
				Results:         []search.Result{},
				MethodsExecuted: []string{},
				TimingMS:        map[string]float64{},
				Error:           err.Error(),
			}
		}
		return jsonResult(resp)
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func clauseSlice(v any) []search.Clause {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []search.Clause
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		field, _ := m["field"].(string)
		out = append(out, search.Clause{Field: field, Value: m["value"]})
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
