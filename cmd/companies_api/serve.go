package main

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jonathan/companies-search/internal/config"
	"github.com/jonathan/companies-search/internal/db"
	"github.com/jonathan/companies-search/internal/fetch"
	"github.com/jonathan/companies-search/internal/ingest"
	"github.com/jonathan/companies-search/internal/metrics"
	"github.com/jonathan/companies-search/internal/server"
)

// defaultPort is used when neither the flag, the config file, nor the
// environment sets a port.
const defaultPort = 8080

var (
	servePort  int
	configPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes ingestion control, company search, and company lookup endpoints.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", defaultPort, "Port to listen on")
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to JSON config file")
	rootCmd.AddCommand(serveCmd)
}

// resolveConfig merges flag, config file, and environment values, in that
// order of precedence.
func resolveConfig(port int) (config.Config, error) {
	cfg := config.Config{Port: port}
	if configPath != "" {
		fileCfg, err := config.LoadConfig(configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = cfg.MergeWithDefaults(*fileCfg)
	}
	cfg = cfg.MergeWithDefaults(config.FromEnv())
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if cfg.DatabaseURL == "" {
		return config.Config{}, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	return cfg, nil
}

// datasetOpener builds the ingestion pipeline's source. A pinned source URL is
// used as-is; otherwise the latest snapshot link is resolved from the
// Companies House download page at the start of each run.
func datasetOpener(cfg config.Config) ingest.OpenFunc {
	return func(ctx context.Context) (io.ReadCloser, int64, error) {
		opts := fetch.DefaultOptions()
		archiveURL := cfg.SourceURL
		if archiveURL == "" {
			page := cfg.DownloadPage
			if page == "" {
				page = fetch.DefaultDownloadPage
			}
			resolved, err := fetch.LatestSnapshotURL(ctx, page, opts)
			if err != nil {
				return nil, 0, err
			}
			archiveURL = resolved
		}
		stream, err := fetch.Archive(ctx, archiveURL, opts)
		if err != nil {
			return nil, 0, err
		}
		return stream, stream.UncompressedSize, nil
	}
}

// resolveServeConfig resolves the server configuration. The flag value only
// participates when the flag was set on the command line, so a port in the
// config file or environment is not masked by the flag default.
func resolveServeConfig(portFlagSet bool) (config.Config, error) {
	port := 0
	if portFlagSet {
		port = servePort
	}
	cfg, err := resolveConfig(port)
	if err != nil {
		return config.Config{}, err
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveServeConfig(cmd.Flags().Changed("port"))
	if err != nil {
		return err
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := database.InitSchema(ctx); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	controller := ingest.NewController(ingest.Config{
		Open:      datasetOpener(cfg),
		Store:     database,
		BatchSize: cfg.BatchSize,
		Metrics:   m,
	})

	srv := server.New(
		server.Config{Port: cfg.Port},
		database,
		controller,
		m,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	)
	return srv.Start()
}
