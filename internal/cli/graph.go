package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hwblueprint/pcigraph/pkg/pipeline"
)

// graphOpts holds the flags shared by the commands that run the pipeline.
type graphOpts struct {
	slots    string // dmidecode file path, empty disables slot annotation
	clusters bool   // group devices into locality clusters
	output   string // output file path (stdout if empty)
}

// newGraphCmd creates the graph command, which emits the DOT document.
func newGraphCmd() *cobra.Command {
	var opts graphOpts

	cmd := &cobra.Command{
		Use:   "graph [lspci-file]",
		Short: "Emit the PCI topology as a Graphviz DOT document",
		Long: `Parse lspci -nnvv output and emit the reconstructed bus topology as a
Graphviz DOT document. Reads stdin when no file is given.

Examples:
  lspci -nnvv | pcigraph graph
  pcigraph graph lspci.txt --slots dmidecode.txt -o topology.dot`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd.Context(), argOrStdin(args), &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.slots, "slots", "s", "", "dmidecode file with slot inventory")
	cmd.Flags().BoolVar(&opts.clusters, "clusters", false, "group devices into locality clusters")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (stdout if empty)")

	return cmd
}

func runGraph(ctx context.Context, input string, opts *graphOpts) error {
	result, err := runPipeline(ctx, input, opts)
	if err != nil {
		return err
	}

	out, err := openOutput(opts.output)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.WriteString(out, result.DOT); err != nil {
		return err
	}
	if opts.output != "" {
		printSuccess("Wrote %s", opts.output)
		printStats(result.Topology.DeviceCount(), result.Report.Len(), false)
	}
	return nil
}

// argOrStdin returns the single positional argument, or "-" for stdin.
func argOrStdin(args []string) string {
	if len(args) == 0 {
		return "-"
	}
	return args[0]
}

// runPipeline opens the inputs and runs the full transform. Non-fatal
// diagnostics are logged as warnings.
func runPipeline(ctx context.Context, input string, opts *graphOpts) (*pipeline.Result, error) {
	logger := loggerFromContext(ctx)
	cfg := configFromContext(ctx)

	in, err := openInput(input)
	if err != nil {
		return nil, fmt.Errorf("open device input: %w", err)
	}
	defer in.Close()

	popts := pipeline.Options{
		DeviceInput: in,
		Clusters:    opts.clusters || cfg.Render.Clusters,
		Logger:      logger,
	}

	policy := cfg.MatchPolicy()
	popts.MatchPolicy = &policy

	if opts.slots != "" {
		slots, err := openInput(opts.slots)
		if err != nil {
			return nil, fmt.Errorf("open slot input: %w", err)
		}
		defer slots.Close()
		popts.SlotInput = slots
	}

	prog := newProgress(logger)
	result, err := pipeline.Run(ctx, popts)
	if err != nil {
		return nil, err
	}
	prog.done(fmt.Sprintf("Built topology: %d devices", result.Topology.DeviceCount()))

	result.Report.Log(logger)
	return result, nil
}
