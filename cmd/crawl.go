package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Summary formats accepted by --format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "crawl [seed-url]",
		Short: "Crawl a site starting from a seed URL",
		Long: `Crawls every page reachable from the seed URL on the same origin, up to
--max-pages pages, using --threads concurrent workers. Pages are saved to the
configured storage backend. Individual page failures are reported in the
summary and do not fail the command.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawlCommand(cmd, args, format)
		},
	}

	flags := cmd.Flags()
	flags.String("seed", "", "seed URL (may also be given as the first argument)")
	flags.Int("threads", 5, "number of concurrent workers")
	flags.Int("max-pages", 20, "maximum number of pages to admit, seed included")
	flags.String("output", "pages", "directory for the local storage backend")
	flags.String("backend", "local", "storage backend: local, memory, sqlite or gcs")
	flags.String("sqlite-path", "", "database file for the sqlite backend")
	flags.String("bucket", "", "bucket for the gcs backend")
	flags.String("user-agent", "", "User-Agent header sent with every request")
	flags.Int("timeout", 5, "per-request timeout in seconds")
	flags.Bool("compare-port", true, "treat different ports on the same host as different origins")
	flags.Bool("serve", false, "expose /healthz, /metrics and /v1/crawl/status while crawling")
	flags.Int("port", 8080, "status server port")
	flags.StringVar(&format, "format", formatText, "summary format: text, json or yaml")

	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string, format string) error {
	cfg, err := resolveConfig(cmd.Context())
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Crawler.SeedURL = args[0]
	}
	if strings.TrimSpace(cfg.Crawler.SeedURL) == "" {
		return fmt.Errorf("%w: a seed URL is required", crawler.ErrInvalidConfig)
	}
	if _, err := crawler.Normalize("", cfg.Crawler.SeedURL); err != nil {
		return fmt.Errorf("%w: seed: %w", crawler.ErrInvalidConfig, err)
	}
	switch format {
	case formatText, formatJSON, formatYAML:
	default:
		return fmt.Errorf("unknown summary format %q", format)
	}

	appInstance, err := newApp(cmd.Context(), cfg, nil)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	defer func() {
		if cerr := appInstance.Close(); cerr != nil {
			appInstance.Logger().Warn("failed to close application services", zap.Error(cerr))
		}
	}()
	if err := appInstance.StartServer(); err != nil {
		return err
	}

	stats, crawlErr := appInstance.Dispatcher().Crawl(cmd.Context(), cfg.Crawler.SeedURL)
	if errors.Is(crawlErr, crawler.ErrInvalidConfig) || errors.Is(crawlErr, crawler.ErrInvalidURL) {
		return crawlErr
	}
	if err := writeSummary(cmd.OutOrStdout(), format, stats); err != nil {
		return err
	}
	if crawlErr != nil {
		return fmt.Errorf("crawl: %w", crawlErr)
	}
	return nil
}

func writeSummary(w io.Writer, format string, stats crawler.Stats) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(stats); err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
	default:
		_, err := fmt.Fprintf(w,
			"crawl %s from %s\n  pages saved:  %d\n  pages failed: %d\n  admitted:     %d\n  duration:     %s\n",
			stats.CrawlID, stats.Seed, stats.PagesSaved, stats.PagesFailed, stats.Admitted, stats.Duration)
		if err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}
