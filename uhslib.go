// Package uhslib reads UHS hint files. The three historical container
// revisions are decoded into a single node tree: codec strips the
// byte-level obfuscation, builder turns the line stream into nodes, and
// resolver binds cross-references once every node exists.
package uhslib

import (
	"context"
	"fmt"
	"time"

	"github.com/openuhs/uhslib/builder"
	"github.com/openuhs/uhslib/codec"
	"github.com/openuhs/uhslib/observability"
	"github.com/openuhs/uhslib/resolver"
	"github.com/openuhs/uhslib/scanner"
	"github.com/openuhs/uhslib/tree"
)

// Config carries the knobs shared by the pipeline stages. The zero
// value is a working default configuration.
type Config struct {
	Logger   observability.Logger
	MaxDepth int
	Scanner  scanner.Config
}

// Pipeline orchestrates decode -> build -> resolve. It holds no
// per-document state, so one Pipeline may parse many documents,
// concurrently if desired.
type Pipeline struct {
	logger   observability.Logger
	builder  *builder.Builder
	resolver *resolver.Resolver
}

// NewDefault constructs a pipeline with default limits and no logging.
func NewDefault() *Pipeline {
	return New(Config{})
}

func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &Pipeline{
		logger: cfg.Logger,
		builder: builder.New(builder.Config{
			MaxDepth: cfg.MaxDepth,
			Scanner:  cfg.Scanner,
			Logger:   cfg.Logger,
		}),
		resolver: resolver.New(resolver.Config{Logger: cfg.Logger}),
	}
}

// Parse runs the full pipeline over an in-memory file. The input buffer
// is treated as read-only; the same bytes always produce the same
// document.
func (p *Pipeline) Parse(ctx context.Context, data []byte) (*tree.ResolvedDocument, error) {
	start := time.Now()
	raw, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding failed: %w", err)
	}
	p.logger.Debug("container decoded",
		observability.Revision(raw.Revision.String()),
		observability.Int(observability.MetricDecodeTime, int(time.Since(start).Microseconds())))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	unresolved, err := p.builder.Build(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("tree building failed: %w", err)
	}
	p.logger.Debug("tree built",
		observability.Int(observability.MetricBuildTime, int(time.Since(start).Microseconds())))

	start = time.Now()
	doc, err := p.resolver.Resolve(ctx, unresolved)
	if err != nil {
		return nil, fmt.Errorf("reference resolution failed: %w", err)
	}
	p.logger.Debug("references resolved",
		observability.Int(observability.MetricResolveTime, int(time.Since(start).Microseconds())))
	return doc, nil
}

// Parse is the one-call convenience entry point with default settings.
func Parse(ctx context.Context, data []byte) (*tree.ResolvedDocument, error) {
	return NewDefault().Parse(ctx, data)
}
