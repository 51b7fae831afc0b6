package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/fuelme/vendorprobe/engine/probe"
	"github.com/fuelme/vendorprobe/engine/semantic"
	"github.com/fuelme/vendorprobe/engine/vendor"
	"github.com/fuelme/vendorprobe/pkg/config"
	"github.com/fuelme/vendorprobe/pkg/metrics"
	"github.com/fuelme/vendorprobe/pkg/natsutil"
	"github.com/fuelme/vendorprobe/pkg/ollama"
)

type flags struct {
	envFile      string
	query        string
	limit        int
	transport    string
	collection   string
	lookupErrors string
	preflight    bool
	json         bool
	metrics      bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "vendorprobe",
		Short:         "Search vendors by meaning: Ollama embedding, Qdrant search, Postgres join",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.envFile)
			if err != nil {
				return err
			}
			applyFlags(cmd, &f, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			level, _ := cfg.Level()
			logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
			return run(cmd.Context(), cfg, f, stdout, stderr, logger)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.envFile, "env-file", ".env", "dotenv file to load before reading VENDORPROBE_* variables")
	fl.StringVarP(&f.query, "query", "q", "", "query text (overrides VENDORPROBE_QUERY)")
	fl.IntVarP(&f.limit, "limit", "n", 0, "number of hits to request")
	fl.StringVar(&f.transport, "transport", "", "qdrant transport: rest or grpc")
	fl.StringVar(&f.collection, "collection", "", "qdrant collection")
	fl.StringVar(&f.lookupErrors, "lookup-errors", "", "on a failed vendor lookup: abort or report")
	fl.BoolVar(&f.preflight, "preflight", false, "check the embedding model is pulled and the collection exists before searching")
	fl.BoolVar(&f.json, "json", false, "print the report as JSON")
	fl.BoolVar(&f.metrics, "metrics", false, "write run metrics to stderr in Prometheus text format")
	return cmd
}

// applyFlags copies explicitly set flags over the environment config.
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("query") {
		cfg.Query = f.query
	}
	if changed("limit") {
		cfg.Limit = f.limit
	}
	if changed("transport") {
		cfg.Transport = f.transport
	}
	if changed("collection") {
		cfg.Collection = f.collection
	}
	if changed("lookup-errors") {
		cfg.LookupErrors = f.lookupErrors
	}
	if changed("preflight") {
		cfg.Preflight = f.preflight
	}
}

func run(ctx context.Context, cfg *config.Config, f flags, stdout, stderr io.Writer, logger *slog.Logger) error {
	logger.Debug("configuration loaded", "config", cfg)

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	searcher, closeSearcher, err := newSearcher(cfg)
	if err != nil {
		return err
	}
	defer closeSearcher()

	store, err := vendor.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	var limiter *rate.Limiter
	if cfg.LookupRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.LookupRPS), 1)
	}

	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel, nil)
	reg := metrics.New()
	p := probe.New(probe.Deps{
		Embedder: embedder,
		Searcher: searcher,
		Vendors:  store,
		Out:      stdout,
		Logger:   logger,
		Metrics:  reg,
	}, probe.Opts{
		Model:              embedder.Model(),
		Limit:              cfg.Limit,
		ReportLookupErrors: cfg.LookupErrors == config.LookupReport,
		Preflight:          cfg.Preflight,
		Limiter:            limiter,
		JSON:               f.json,
	})

	report, err := p.Run(ctx, cfg.Query)
	if f.metrics {
		reg.WriteTo(stderr)
	}
	if err != nil {
		return err
	}

	if cfg.NATSURL != "" {
		if err := publish(ctx, cfg, report); err != nil {
			return err
		}
		logger.Info("report published", "subject", cfg.NATSSubject)
	}
	return nil
}

func newSearcher(cfg *config.Config) (semantic.Searcher, func(), error) {
	if cfg.Transport == config.TransportGRPC {
		vs, err := semantic.New(cfg.QdrantGRPCAddr, cfg.Collection)
		if err != nil {
			return nil, nil, err
		}
		return vs, func() { vs.Close() }, nil
	}
	return semantic.NewREST(cfg.QdrantURL, cfg.Collection, nil), func() {}, nil
}

func publish(ctx context.Context, cfg *config.Config, report *probe.Report) error {
	pub, err := natsutil.Connect(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	defer pub.Close()
	return pub.Publish(ctx, report)
}
