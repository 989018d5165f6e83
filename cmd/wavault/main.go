package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"wavault/internal/audit"
	"wavault/internal/backfill"
	"wavault/internal/config"
	"wavault/internal/embed"
	"wavault/internal/mcp"
	"wavault/internal/search"
	"wavault/internal/store"
)

const version = "0.3.0"

func main() {
	// Logs go to stderr so the stdio MCP transport keeps stdout clean.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "mcp":
		err = runMCP(os.Args[2:])
	case "embed":
		err = runEmbed(os.Args[2:])
	case "check":
		err = runCheck(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("wavault %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags registers the configuration flags every command shares.
func commonFlags(fs *flag.FlagSet) (configPath, dbURL, embeddingURL *string) {
	configPath = fs.String("config", "", "Path to config file (default: ~/.wavault/config.yaml)")
	dbURL = fs.String("db", "", "PostgreSQL connection URL")
	embeddingURL = fs.String("embedding-url", "", "Embedding service base URL")
	return
}

func resolve(configPath, dbURL, embeddingURL string, needEmbedding bool) (config.ResolvedConfig, error) {
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:      configPath,
		CLIDatabaseURL:  dbURL,
		CLIEmbeddingURL: embeddingURL,
	})
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate(needEmbedding)
}

func runMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	configPath, dbURL, embeddingURL := commonFlags(fs)
	transport := fs.String("transport", "stdio", "MCP transport: stdio or http")
	addr := fs.String("addr", ":8421", "Listen address for --transport http")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := resolve(*configPath, *dbURL, *embeddingURL, false)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabaseURL.Value)
	if err != nil {
		return err
	}
	defer st.Close()

	var engine *search.Engine
	if cfg.EmbeddingURL.Value != "" {
		embedder, err := embed.NewClient(cfg.EmbeddingURL.Value, embed.DefaultTimeout)
		if err != nil {
			return err
		}
		engine = search.NewEngineWithEmbedder(st, embedder)
	} else {
		slog.Warn("no embedding URL configured, vector search disabled")
		engine = search.NewEngine(st)
	}

	srv := mcp.NewServer(mcp.ServerConfig{Engine: engine, Version: version})

	switch *transport {
	case "stdio":
		slog.Info("serving MCP over stdio", "version", version)
		return mcp.ServeStdio(srv)
	case "http":
		slog.Info("serving MCP over HTTP", "addr", *addr, "version", version)
		return mcp.ServeHTTP(srv, *addr)
	default:
		return fmt.Errorf("unknown transport %q (want stdio or http)", *transport)
	}
}

func runEmbed(args []string) error {
	fs := flag.NewFlagSet("embed", flag.ContinueOnError)
	configPath, dbURL, embeddingURL := commonFlags(fs)
	batchSize := fs.Int("batch-size", backfill.DefaultBatchSize, "Messages per embedding request")
	limit := fs.Int("limit", 0, "Stop after this many messages (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := resolve(*configPath, *dbURL, *embeddingURL, true)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabaseURL.Value)
	if err != nil {
		return err
	}
	defer st.Close()

	embedder, err := embed.NewClient(cfg.EmbeddingURL.Value, embed.DefaultTimeout)
	if err != nil {
		return err
	}

	n, err := backfill.Run(context.Background(), st, embedder, backfill.Options{
		BatchSize: *batchSize,
		Limit:     *limit,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Embed backfill complete: %d messages updated\n", n)
	return nil
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath, dbURL, embeddingURL := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := resolve(*configPath, *dbURL, *embeddingURL, false)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabaseURL.Value)
	if err != nil {
		return err
	}
	defer st.Close()

	results, err := audit.Run(context.Background(), st)
	if err != nil {
		return err
	}
	if ok := audit.WriteReport(os.Stdout, results); !ok {
		os.Exit(1)
	}
	return nil
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath, dbURL, embeddingURL := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := resolve(*configPath, *dbURL, *embeddingURL, false)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabaseURL.Value)
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := st.Migrate()
	if err != nil {
		return err
	}
	if result.Changed {
		fmt.Printf("Migrated to schema version %d\n", result.Version)
	} else {
		fmt.Printf("Schema already at version %d\n", result.Version)
	}
	return nil
}

// runConfig prints the resolved configuration with provenance, for
// debugging which file/env/flag a value came from.
func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	configPath, dbURL, embeddingURL := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:      *configPath,
		CLIDatabaseURL:  *dbURL,
		CLIEmbeddingURL: *embeddingURL,
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printUsage() {
	fmt.Printf(`wavault %s — hybrid search over a WhatsApp message archive

Usage:
  wavault <command> [flags]

Commands:
  mcp                 Serve the MCP tools (unified_search, search_capabilities)
  embed               Backfill message embeddings via the embedding service
  check               Run read-only data consistency checks
  migrate             Apply pending database migrations
  config              Print the resolved configuration and where it came from
  version             Print version

Common Flags:
  --config <path>     Config file (default: ~/.wavault/config.yaml)
  --db <url>          PostgreSQL connection URL
  --embedding-url <u> Embedding service base URL

MCP Flags:
  --transport <t>     stdio (default) or http
  --addr <addr>       Listen address for http transport (default :8421)

Embed Flags:
  --batch-size <n>    Messages per embedding request (default %d)
  --limit <n>         Stop after n messages (0 = all)
`, version, backfill.DefaultBatchSize)
}
