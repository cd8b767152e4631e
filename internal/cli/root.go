package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/hwblueprint/pcigraph/pkg/buildinfo"
	"github.com/hwblueprint/pcigraph/pkg/config"
)

// Execute runs the pcigraph CLI. This is the main entry point.
//
// The root command wires up all subcommands, loads the optional TOML config
// file, and configures logging based on the --verbose flag. Both the logger
// and the loaded config are attached to the command context.
func Execute(ctx context.Context) error {
	var (
		verbose    bool
		configPath string
	)

	root := &cobra.Command{
		Use:   "pcigraph",
		Short: "pcigraph visualizes PCI bus topology as a graph",
		Long: `pcigraph rebuilds the PCI device tree from lspci -nnvv output and renders
it as a Graphviz document. An optional dmidecode slot inventory maps
devices to the physical slots on the board.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			cfg, err := config.Discover(configPath)
			if err != nil {
				return err
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(withConfig(ctx, cfg))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/pcigraph/config.toml)")

	root.AddCommand(newGraphCmd())
	root.AddCommand(newRenderCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newBrowseCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newCacheCmd())

	return root.ExecuteContext(ctx)
}
