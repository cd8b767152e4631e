package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hwblueprint/pcigraph/pkg/buildinfo"
	"github.com/hwblueprint/pcigraph/pkg/cache"
	"github.com/hwblueprint/pcigraph/pkg/dot"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	graphOpts
	format  string // output format: dot, svg, png
	noCache bool   // bypass the render cache
}

// newRenderCmd creates the render command, which runs the pipeline and
// renders the document with Graphviz. Rendered artifacts are cached by
// content hash when caching is enabled in the config.
func newRenderCmd() *cobra.Command {
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render [lspci-file]",
		Short: "Render the PCI topology to SVG or PNG",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format == "" {
				opts.format = configFromContext(cmd.Context()).Render.Format
			}
			if err := dot.ValidateFormat(opts.format); err != nil {
				return err
			}
			return runRender(cmd.Context(), argOrStdin(args), &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.slots, "slots", "s", "", "dmidecode file with slot inventory")
	cmd.Flags().BoolVar(&opts.clusters, "clusters", false, "group devices into locality clusters")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format: dot, svg, png (default from config)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the render cache")

	return cmd
}

func runRender(ctx context.Context, input string, opts *renderOpts) error {
	result, err := runPipeline(ctx, input, &opts.graphOpts)
	if err != nil {
		return err
	}

	data, cached, err := renderCached(ctx, result.DOT, opts)
	if err != nil {
		return err
	}

	out, err := openOutput(opts.output)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.Write(data); err != nil {
		return err
	}
	if opts.output != "" {
		printSuccess("Rendered %s", opts.format)
		printFile(opts.output)
		printStats(result.Topology.DeviceCount(), result.Report.Len(), cached)
	}
	return nil
}

// renderCached renders the document, consulting the artifact cache first.
// The bool reports whether the artifact came from cache.
func renderCached(ctx context.Context, dotSrc string, opts *renderOpts) ([]byte, bool, error) {
	logger := loggerFromContext(ctx)
	cfg := configFromContext(ctx)

	c := cache.NewNullCache()
	if cfg.Cache.Enabled && !opts.noCache {
		dir, err := cfg.CacheDir()
		if err == nil {
			if fc, err := cache.NewFileCache(dir); err == nil {
				c = fc
			} else {
				logger.Warnf("cache disabled: %v", err)
			}
		}
	}
	defer c.Close()

	key := cache.Scoped(buildinfo.Version, cache.RenderKey(dotSrc, opts.format))
	if data, ok, err := c.Get(ctx, key); err == nil && ok {
		logger.Debugf("render cache hit")
		return data, true, nil
	}

	prog := newProgress(logger)
	data, err := dot.Render(ctx, dotSrc, opts.format)
	if err != nil {
		return nil, false, fmt.Errorf("render %s: %w", opts.format, err)
	}
	prog.done(fmt.Sprintf("Rendered %s: %d bytes", opts.format, len(data)))

	ttl, _ := cfg.CacheTTL()
	if err := c.Set(ctx, key, data, ttl); err != nil {
		logger.Warnf("cache set failed: %v", err)
	}
	return data, false, nil
}
