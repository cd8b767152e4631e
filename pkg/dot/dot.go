// Package dot serializes an annotated topology into the Graphviz DOT
// grammar and optionally renders it to SVG or PNG.
//
// Emission is a total, deterministic function of the topology: nodes are
// written depth-first in the builder's child order, so identical inputs
// produce byte-identical documents across runs.
package dot

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/hwblueprint/pcigraph/pkg/pci"
	"github.com/hwblueprint/pcigraph/pkg/topology"
)

// Options configures DOT emission.
type Options struct {
	// Clusters groups device nodes into subgraph clusters: one per PCIe
	// switch (an upstream port with its downstream ports), then by
	// locality (NUMA node, PCH) for an extra visual hint on multi-socket
	// boxes.
	Clusters bool
}

// Write serializes the topology as an undirected Graphviz graph to w.
func Write(w io.Writer, t *topology.Topology, opts Options) error {
	_, err := io.WriteString(w, ToDOT(t, opts))
	return err
}

// ToDOT serializes the topology as an undirected Graphviz graph.
func ToDOT(t *topology.Topology, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("graph pci {\n")
	buf.WriteString("\trankdir=LR;\n")
	buf.WriteString("\n")

	writeNode(&buf, t.Root)
	for _, c := range t.Root.Children {
		writeSubtree(&buf, t.Root, c)
	}

	if opts.Clusters {
		next, inSwitch := writeSwitchClusters(&buf, t)
		writeLocalityClusters(&buf, t, next, inSwitch)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// writeSubtree declares the node, its edge from the parent, and recurses in
// child order.
func writeSubtree(buf *bytes.Buffer, parent, n *topology.Node) {
	writeNode(buf, n)
	writeEdge(buf, parent, n)
	for _, c := range n.Children {
		writeSubtree(buf, n, c)
	}
}

func writeNode(buf *bytes.Buffer, n *topology.Node) {
	switch {
	case n.IsRoot():
		fmt.Fprintf(buf, "\t%s [ label=\"host\" shape=rectangle ];\n", quote(n.ID()))
	case n.Placeholder:
		fmt.Fprintf(buf, "\t%s [ shape=rectangle ];\n", quote(n.ID()))
	default:
		fmt.Fprintf(buf, "\t%s [ label=%s ];\n", quote(n.ID()), quote(nodeLabel(n)))
	}
}

func writeEdge(buf *bytes.Buffer, parent, n *topology.Node) {
	label := ""
	if n.Device != nil && n.Device.LinkStatus != nil {
		label = fmt.Sprintf(" [ label=%s ]", quote(n.Device.LinkStatus.String()))
	}
	fmt.Fprintf(buf, "\t%s -- %s%s;\n", quote(parent.ID()), quote(n.ID()), label)
}

// nodeLabel composes the multi-line display label for a device node:
// name, address, class, link readings when present, slot name when known.
func nodeLabel(n *topology.Node) string {
	d := n.Device
	lines := []string{d.DisplayName(), d.Addr.String()}
	if d.ClassDesc != "" {
		lines = append(lines, d.ClassDesc)
	}
	if link := linkLine(n); link != "" {
		lines = append(lines, link)
	}
	if d.SlotName != "" {
		lines = append(lines, "slot: "+d.SlotName)
	}
	return strings.Join(lines, "\n")
}

// linkLine renders the negotiated link and, when it differs, the capable
// one. A device with no link readings gets no link line at all; absence is
// never rendered as zero.
func linkLine(n *topology.Node) string {
	d := n.Device
	switch {
	case d.LinkStatus == nil && d.LinkCapability == nil:
		return ""
	case d.LinkStatus == nil:
		return fmt.Sprintf("capable %s", d.LinkCapability)
	case d.LinkCapability == nil:
		return d.LinkStatus.String()
	}
	sta, capa := d.LinkStatus, d.LinkCapability
	if sta.SpeedGTs == capa.SpeedGTs && sta.Width == capa.Width {
		return sta.String()
	}
	return fmt.Sprintf("%s (capable %gGT/s x%d)", sta, capa.SpeedGTs, capa.Width)
}

// writeSwitchClusters emits one cluster per PCIe switch: the upstream port
// together with the downstream ports on its internal bus. It returns the
// next free cluster index and the ids it claimed, since a DOT node belongs
// to at most one cluster.
func writeSwitchClusters(buf *bytes.Buffer, t *topology.Topology) (int, map[string]bool) {
	claimed := make(map[string]bool)
	idx := 0
	t.Walk(func(n *topology.Node, _ int) {
		if n.Device == nil || n.Device.Port != pci.PortUpstream {
			return
		}
		ids := []string{n.ID()}
		for _, c := range n.Children {
			if c.Device != nil && c.Device.Port == pci.PortDownstream {
				ids = append(ids, c.ID())
			}
		}

		buf.WriteString("\n")
		fmt.Fprintf(buf, "\tsubgraph cluster%d {\n", idx)
		fmt.Fprintf(buf, "\t\tlabel=%s;\n", quote(switchLabel(n)))
		for _, id := range ids {
			fmt.Fprintf(buf, "\t\t%s;\n", quote(id))
			claimed[id] = true
		}
		buf.WriteString("\t}\n")
		idx++
	})
	return idx, claimed
}

// switchLabel names a switch cluster. The upstream port's Device Serial
// Number identifies the physical switch, but only when every downstream
// port that reports a serial reports the same one; a mismatch means the
// serial cannot be trusted and the label stays generic.
func switchLabel(n *topology.Node) string {
	d := n.Device
	if d.SerialNumber == nil {
		return "PCIe switch"
	}
	for _, c := range n.Children {
		cd := c.Device
		if cd == nil || cd.Port != pci.PortDownstream || cd.SerialNumber == nil {
			continue
		}
		if *cd.SerialNumber != *d.SerialNumber {
			return "PCIe switch"
		}
	}
	return fmt.Sprintf("PCIe switch %016x", *d.SerialNumber)
}

// writeLocalityClusters groups the remaining device nodes by locality.
// Cluster ids continue from start in group-name order so output stays
// stable.
func writeLocalityClusters(buf *bytes.Buffer, t *topology.Topology, start int, claimed map[string]bool) {
	groups := make(map[string][]string)
	t.Walk(func(n *topology.Node, _ int) {
		if n.Device == nil || claimed[n.ID()] {
			return
		}
		g := groupName(n)
		groups[g] = append(groups[g], n.ID())
	})

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	slices.Sort(names)
	for i, name := range names {
		buf.WriteString("\n")
		fmt.Fprintf(buf, "\tsubgraph cluster%d {\n", start+i)
		fmt.Fprintf(buf, "\t\tlabel=%s;\n", quote(name))
		for _, id := range groups[name] {
			fmt.Fprintf(buf, "\t\t%s;\n", quote(id))
		}
		buf.WriteString("\t}\n")
	}
}

// groupName buckets a device by locality the way hardware people read
// boards: bus 0 is the PCH/chipset side, everything else belongs to a CPU,
// refined by NUMA node when the enumeration reported one.
func groupName(n *topology.Node) string {
	d := n.Device
	onBusZero := d.Addr.Bus == 0
	if d.NUMANode == nil {
		if onBusZero {
			return "PCH"
		}
		return "CPU"
	}
	if onBusZero {
		return fmt.Sprintf("PCH (on NUMA node #%d)", *d.NUMANode)
	}
	return fmt.Sprintf("NUMA node #%d", *d.NUMANode)
}

// quote escapes a string for use as a DOT ID or label: backslashes and
// double quotes are escaped, newlines become the DOT line separator, and
// other control characters are dropped.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '"':
			b.WriteString(`\"`)
		case r == '\n':
			b.WriteString(`\n`)
		case r < 0x20:
			// drop raw control characters
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
