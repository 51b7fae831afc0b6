// Package probe runs the embed -> search -> join sequence and prints each
// matched vendor.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/fuelme/vendorprobe/engine/semantic"
	"github.com/fuelme/vendorprobe/engine/vendor"
	"github.com/fuelme/vendorprobe/pkg/fn"
	"github.com/fuelme/vendorprobe/pkg/metrics"
)

const tracerName = "github.com/fuelme/vendorprobe/engine/probe"

// DefaultLimit is the number of hits requested when Opts.Limit is zero.
const DefaultLimit = 5

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ModelChecker is implemented by embedders that can confirm their model is
// available before the first request.
type ModelChecker interface {
	HealthPing(ctx context.Context) error
}

// VendorLookup fetches one vendor by id. found=false with a nil error means
// the row does not exist.
type VendorLookup interface {
	Get(ctx context.Context, id int64) (vendor.Vendor, bool, error)
}

// Deps are the collaborators a Probe sequences. Logger and Metrics are
// optional.
type Deps struct {
	Embedder Embedder
	Searcher semantic.Searcher
	Vendors  VendorLookup
	Out      io.Writer
	Logger   *slog.Logger
	Metrics  *metrics.Registry
}

// Opts tunes a run.
type Opts struct {
	// Model is only used for log output.
	Model string
	// Limit is the number of hits requested from the searcher.
	Limit int
	// ReportLookupErrors prints a failed lookup and moves on to the next hit
	// instead of aborting the run.
	ReportLookupErrors bool
	// Preflight checks the embedding model is pulled (when the embedder is a
	// ModelChecker) and that the collection exists before searching; a
	// missing collection is reported as zero hits.
	Preflight bool
	// Limiter paces vendor lookups. Nil means unlimited.
	Limiter *rate.Limiter
	// JSON writes the Report as JSON instead of text blocks.
	JSON bool
}

// Result is one hit joined with its vendor row.
type Result struct {
	Hit    semantic.Hit   `json:"hit"`
	Vendor *vendor.Vendor `json:"vendor,omitempty"`
	Found  bool           `json:"found"`
	Err    string         `json:"error,omitempty"`
}

// Report is everything a run produced.
type Report struct {
	Query      string   `json:"query"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
	Results    []Result `json:"results"`
}

// Probe sequences embedding, search and vendor lookups. It is not safe for
// concurrent use.
type Probe struct {
	deps   Deps
	opts   Opts
	logger *slog.Logger

	stageDur     func(stage string) *metrics.Histogram
	hitsTotal    *metrics.Counter
	missingTotal *metrics.Counter
	lookupErrors *metrics.Counter
}

// New creates a Probe.
func New(deps Deps, opts Opts) *Probe {
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	reg := deps.Metrics
	if reg == nil {
		reg = metrics.New()
	}
	return &Probe{
		deps:   deps,
		opts:   opts,
		logger: logger,
		stageDur: func(stage string) *metrics.Histogram {
			return reg.Histogram(metrics.WithLabels("vendorprobe_stage_duration_seconds", "stage", stage), "Per-stage duration", nil)
		},
		hitsTotal:    reg.Counter("vendorprobe_hits_total", "Search hits returned"),
		missingTotal: reg.Counter("vendorprobe_vendors_missing_total", "Hits with no vendor row"),
		lookupErrors: reg.Counter("vendorprobe_lookup_errors_total", "Failed vendor lookups"),
	}
}

// Run embeds query, searches, and joins every hit in ranked order. On error
// the returned report holds the hits processed before the failure.
func (p *Probe) Run(ctx context.Context, query string) (*Report, error) {
	report := &Report{Query: query, Model: p.opts.Model, Results: []Result{}}
	p.logger.Info("🔎 query", "query", query, "model", p.opts.Model)

	embed := fn.TracedStage("probe.embed", fn.Lift(func(ctx context.Context, text string) ([]float64, error) {
		defer p.stageDur("embed").Since(time.Now())
		if mc, ok := p.deps.Embedder.(ModelChecker); ok && p.opts.Preflight {
			if err := mc.HealthPing(ctx); err != nil {
				return nil, fmt.Errorf("probe: preflight: %w", err)
			}
		}
		vec, err := p.deps.Embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("probe: embed: %w", err)
		}
		report.Dimensions = len(vec)
		p.logger.Info("✅ got embedding", "dim", len(vec))
		return vec, nil
	}))
	search := fn.TracedStage("probe.search", fn.Lift(p.search))

	res := fn.Then(embed, search)(ctx, query)
	hits, err := res.Unwrap()
	if !res.IsOk() {
		return report, err
	}
	p.hitsTotal.Add(int64(len(hits)))

	if len(hits) == 0 {
		if p.opts.JSON {
			return report, p.writeJSON(report)
		}
		_, err := fmt.Fprintln(p.deps.Out, "No results.")
		return report, err
	}

	if !p.opts.JSON {
		fmt.Fprint(p.deps.Out, "\n📊 Top results:\n")
	}
	for _, hit := range hits {
		if p.opts.Limiter != nil {
			if err := p.opts.Limiter.Wait(ctx); err != nil {
				return report, fmt.Errorf("probe: lookup %d: %w", hit.ID, err)
			}
		}

		res, err := p.lookup(ctx, hit)
		if err != nil {
			p.lookupErrors.Inc()
			if !p.opts.ReportLookupErrors {
				return report, err
			}
			res.Err = err.Error()
			p.logger.Warn("vendor lookup failed", "id", hit.ID, "err", err)
		} else if !res.Found {
			p.missingTotal.Inc()
		}
		report.Results = append(report.Results, res)
		if !p.opts.JSON {
			writeResult(p.deps.Out, res)
		}
	}

	p.logger.Info("done", "hits", len(hits), "lookups", p.stageDur("lookup").Count())
	if p.opts.JSON {
		return report, p.writeJSON(report)
	}
	return report, nil
}

func (p *Probe) search(ctx context.Context, vec []float64) ([]semantic.Hit, error) {
	defer p.stageDur("search").Since(time.Now())

	if p.opts.Preflight {
		ok, err := p.deps.Searcher.CollectionExists(ctx)
		if err != nil {
			return nil, fmt.Errorf("probe: preflight: %w", err)
		}
		if !ok {
			p.logger.Warn("collection is missing; run the ingester to create it")
			return nil, nil
		}
	}

	hits, err := p.deps.Searcher.Search(ctx, vec, p.opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("probe: search: %w", err)
	}
	return hits, nil
}

func (p *Probe) lookup(ctx context.Context, hit semantic.Hit) (Result, error) {
	defer p.stageDur("lookup").Since(time.Now())
	ctx, span := otel.Tracer(tracerName).Start(ctx, "probe.lookup")
	span.SetAttributes(attribute.Int64("vendor.id", hit.ID))
	defer span.End()

	res := Result{Hit: hit}
	v, found, err := p.deps.Vendors.Get(ctx, hit.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("probe: lookup %d: %w", hit.ID, err)
	}
	if found {
		res.Vendor = &v
		res.Found = true
	}
	return res, nil
}

func (p *Probe) writeJSON(r *Report) error {
	enc := json.NewEncoder(p.deps.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func writeResult(w io.Writer, r Result) {
	switch {
	case r.Err != "":
		fmt.Fprintf(w, "❌ Lookup failed for ID=%d: %s\n", r.Hit.ID, r.Err)
	case !r.Found:
		fmt.Fprintf(w, "⚠️ No vendor found in Postgres for ID=%d\n", r.Hit.ID)
	default:
		fmt.Fprintf(w, "\n⭐ Score: %.4f\n   ID: %d\n   Name: %s\n   Email: %s\n   Description: %s\n",
			r.Hit.Score, r.Vendor.ID, r.Vendor.Name, r.Vendor.Email, r.Vendor.Description)
	}
}
