package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/hwblueprint/pcigraph/pkg/pci"
	"github.com/hwblueprint/pcigraph/pkg/topology"
)

// newInspectCmd creates the inspect command, a tabular view of the parsed
// devices for quick eyeballing without rendering anything.
func newInspectCmd() *cobra.Command {
	var opts graphOpts

	cmd := &cobra.Command{
		Use:   "inspect [lspci-file]",
		Short: "List parsed devices in a table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), argOrStdin(args), &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.slots, "slots", "s", "", "dmidecode file with slot inventory")

	return cmd
}

func runInspect(ctx context.Context, input string, opts *graphOpts) error {
	result, err := runPipeline(ctx, input, opts)
	if err != nil {
		return err
	}

	fmt.Println(StyleTitle.Render("PCI Topology"))
	fmt.Println(deviceTable(result.Topology))
	printStats(result.Topology.DeviceCount(), result.Report.Len(), false)

	for _, d := range result.Report.Diagnostics() {
		printWarning("%s: %s", d.Kind, d.Message)
	}
	return nil
}

// deviceTable renders every device as a row, sorted by address.
func deviceTable(t *topology.Topology) string {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	rows := [][]string{}
	for _, n := range t.Devices() {
		d := n.Device
		rows = append(rows, []string{
			d.Addr.String(),
			d.DisplayName(),
			d.ClassDesc,
			linkCell(d),
			d.SlotName,
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Address", "Device", "Class", "Link", "Slot").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if row < 0 || row >= len(rows) {
				return lipgloss.NewStyle()
			}
			if col == 0 {
				return StyleHighlight
			}
			if col == 3 && strings.Contains(rows[row][3], "downgraded") {
				return StyleWarning
			}
			return StyleValue
		}).
		Render()
}

func linkCell(d *pci.Device) string {
	switch {
	case d.LinkStatus != nil:
		return d.LinkStatus.String()
	case d.LinkCapability != nil:
		return "capable " + d.LinkCapability.String()
	default:
		return ""
	}
}
