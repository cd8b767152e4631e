package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/hwblueprint/pcigraph/pkg/topology"
)

var (
	treeSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	treeNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	treeDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	treeBridgeStyle   = lipgloss.NewStyle().Foreground(colorGreen)
)

// newBrowseCmd creates the browse command, an interactive terminal tree of
// the topology.
func newBrowseCmd() *cobra.Command {
	var opts graphOpts

	cmd := &cobra.Command{
		Use:   "browse [lspci-file]",
		Short: "Browse the PCI topology interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd.Context(), argOrStdin(args), &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.slots, "slots", "s", "", "dmidecode file with slot inventory")

	return cmd
}

func runBrowse(ctx context.Context, input string, opts *graphOpts) error {
	result, err := runPipeline(ctx, input, opts)
	if err != nil {
		return err
	}

	model := NewTreeModel(result.Topology)
	_, err = tea.NewProgram(model).Run()
	return err
}

// treeRow is one visible line of the tree.
type treeRow struct {
	node  *topology.Node
	depth int
}

// TreeModel is the bubbletea model for topology browsing. Bridge nodes can
// be collapsed and expanded; the detail pane shows the selected device.
type TreeModel struct {
	topo      *topology.Topology
	collapsed map[string]bool
	rows      []treeRow
	Cursor    int
	Height    int
	Offset    int
}

// NewTreeModel creates a tree model with every node expanded.
func NewTreeModel(t *topology.Topology) TreeModel {
	m := TreeModel{
		topo:      t,
		collapsed: make(map[string]bool),
		Height:    20,
	}
	m.rebuild()
	return m
}

// rebuild flattens the tree into visible rows, skipping collapsed subtrees.
func (m *TreeModel) rebuild() {
	m.rows = m.rows[:0]
	var walk func(n *topology.Node, depth int)
	walk = func(n *topology.Node, depth int) {
		m.rows = append(m.rows, treeRow{node: n, depth: depth})
		if m.collapsed[n.ID()] {
			return
		}
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(m.topo.Root, 0)
	if m.Cursor >= len(m.rows) {
		m.Cursor = len(m.rows) - 1
	}
}

func (m TreeModel) Init() tea.Cmd {
	return nil
}

func (m TreeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.rows)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter", " ", "left", "right", "h", "l":
			id := m.rows[m.Cursor].node.ID()
			if len(m.rows[m.Cursor].node.Children) > 0 {
				m.collapsed[id] = !m.collapsed[id]
				m.rebuild()
			}
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 8
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m TreeModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("PCI Topology"))
	b.WriteString("\n")
	b.WriteString(treeDimStyle.Render("↑/↓ navigate  ⏎ collapse/expand  q quit"))
	b.WriteString("\n\n")

	end := m.Offset + m.Height
	if end > len(m.rows) {
		end = len(m.rows)
	}

	for i := m.Offset; i < end; i++ {
		row := m.rows[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}

		line := cursor + strings.Repeat("  ", row.depth) + treeLabel(row.node, m.collapsed[row.node.ID()])

		switch {
		case i == m.Cursor:
			b.WriteString(treeSelectedStyle.Render(line))
		case row.node.Device != nil && row.node.Device.IsBridge():
			b.WriteString(treeBridgeStyle.Render(line))
		case row.node.Device == nil:
			b.WriteString(treeDimStyle.Render(line))
		default:
			b.WriteString(treeNormalStyle.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.detailView())
	b.WriteString("\n")
	b.WriteString(treeDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.rows))))

	return b.String()
}

// detailView shows the selected device below the tree.
func (m TreeModel) detailView() string {
	n := m.rows[m.Cursor].node
	if n.Device == nil {
		if n.IsRoot() {
			return treeDimStyle.Render("  host root")
		}
		return treeDimStyle.Render("  bus with no enumerated bridge")
	}

	d := n.Device
	parts := []string{d.Addr.String(), d.Name}
	if d.LinkStatus != nil {
		parts = append(parts, d.LinkStatus.String())
	}
	if d.SlotName != "" {
		parts = append(parts, "slot: "+d.SlotName)
	}
	if d.NUMANode != nil {
		parts = append(parts, fmt.Sprintf("NUMA %d", *d.NUMANode))
	}
	if d.SerialNumber != nil {
		parts = append(parts, fmt.Sprintf("serial %016x", *d.SerialNumber))
	}
	return "  " + StyleDim.Render(strings.Join(parts, " · "))
}

// treeLabel renders one node line: display name plus address, with a
// collapse marker on bridges.
func treeLabel(n *topology.Node, collapsed bool) string {
	marker := ""
	if len(n.Children) > 0 {
		marker = "− "
		if collapsed {
			marker = "+ "
		}
	}

	if n.IsRoot() {
		return marker + "host"
	}
	if n.Device == nil {
		return marker + n.ID()
	}

	label := fmt.Sprintf("%s%s  %s", marker, n.Device.Addr, n.Device.DisplayName())
	if n.Device.Downgraded() {
		label += " !"
	}
	return label
}
