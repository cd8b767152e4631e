// Package topology reconstructs the PCI bridge hierarchy from a flat,
// ordered list of parsed device records.
//
// The source format implies the tree only through bus numbers: a bridge
// advertises the secondary bus it fronts, and every device's own bus number
// names its parent bridge. The builder turns that implicit relation into an
// explicit (domain, bus) → bridge index, so the resulting tree does not
// depend on enumeration order. Devices whose parent bridge never appeared in
// the input are attached under a synthesized placeholder rather than being
// dropped.
package topology

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hwblueprint/pcigraph/pkg/diag"
	"github.com/hwblueprint/pcigraph/pkg/pci"
)

// ErrNotRooted is returned by [Topology.Validate] when a node is not
// reachable from the root. This indicates builder corruption.
var ErrNotRooted = errors.New("node not reachable from root")

// Node is one vertex of the topology tree: an enumerated device, a
// synthesized placeholder for a bus whose bridge was missing from the
// enumeration, or the single synthetic root.
type Node struct {
	// Device is nil for the root and for placeholders.
	Device *pci.Device

	// Domain and Bus identify placeholder nodes; for device nodes they
	// mirror the device address.
	Domain uint16
	Bus    uint8

	// Placeholder marks a synthesized ancestor for a bus with no
	// enumerated bridge.
	Placeholder bool

	// Children are ordered by full address ascending.
	Children []*Node

	parent *Node
}

// IsRoot reports whether the node is the synthetic root.
func (n *Node) IsRoot() bool { return n.Device == nil && !n.Placeholder }

// Parent returns the parent node, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// ID returns a stable identifier: the device address, "bus dddd:bb" for
// placeholders, and "root" for the root. IDs double as graph node names.
func (n *Node) ID() string {
	switch {
	case n.Device != nil:
		return n.Device.Addr.String()
	case n.Placeholder:
		return fmt.Sprintf("bus %04x:%02x", n.Domain, n.Bus)
	default:
		return "root"
	}
}

// sortAddr is the address used to order a node among its siblings.
// Placeholders sort as device 0, function 0 of their bus; a placeholder and
// a real device can never share a bus under the same parent, so the key is
// unambiguous.
func (n *Node) sortAddr() pci.Addr {
	if n.Device != nil {
		return n.Device.Addr
	}
	return pci.Addr{Domain: n.Domain, Bus: n.Bus}
}

// Topology is the reconstructed, single-rooted PCI tree.
// It is built once and not safe for concurrent mutation; the annotator is
// the only post-construction writer.
type Topology struct {
	Root *Node

	byAddr map[pci.Addr]*Node
	byBus  map[busKey]*Node // (domain, secondary bus) -> claiming bridge
}

type busKey struct {
	domain uint16
	bus    uint8
}

// Lookup returns the device node with the given address.
func (t *Topology) Lookup(addr pci.Addr) (*Node, bool) {
	n, ok := t.byAddr[addr]
	return n, ok
}

// BridgeFor returns the bridge node fronting the given (domain, bus).
func (t *Topology) BridgeFor(domain uint16, bus uint8) (*Node, bool) {
	n, ok := t.byBus[busKey{domain, bus}]
	return n, ok
}

// DeviceCount returns the number of enumerated (non-placeholder) nodes.
func (t *Topology) DeviceCount() int { return len(t.byAddr) }

// Devices returns all device nodes ordered by address ascending.
func (t *Topology) Devices() []*Node {
	nodes := make([]*Node, 0, len(t.byAddr))
	for _, n := range t.byAddr {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b *Node) int {
		return a.Device.Addr.Compare(b.Device.Addr)
	})
	return nodes
}

// Walk visits every node depth-first in child order, the root at depth 0.
// The walk order is the emission order of the graph document.
func (t *Topology) Walk(visit func(n *Node, depth int)) {
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		visit(n, depth)
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(t.Root, 0)
}

// Validate checks the structural invariants: every indexed node is reachable
// from the root exactly once. Build always produces a valid tree; Validate
// exists for tests and for guarding future mutations.
func (t *Topology) Validate() error {
	seen := make(map[*Node]bool)
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if seen[n] {
			return fmt.Errorf("node %s visited twice", n.ID())
		}
		seen[n] = true
		for _, c := range n.Children {
			if c.parent != n {
				return fmt.Errorf("node %s has wrong parent link", c.ID())
			}
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(t.Root); err != nil {
		return err
	}
	for addr, n := range t.byAddr {
		if !seen[n] {
			return fmt.Errorf("%w: %s", ErrNotRooted, addr)
		}
	}
	return nil
}

// Build reconstructs the topology from the ordered device list.
//
// The algorithm indexes bridges by the bus they front, then attaches every
// device to the bridge claiming its bus. Bus 0 devices with no claiming
// bridge hang off the root. Devices on an unclaimed bus hang off a
// synthesized placeholder, one per (domain, bus). Duplicate secondary-bus
// claims keep the first-seen bridge and report INCONSISTENT_TOPOLOGY;
// attachment cycles in malformed input are broken by reattaching the
// affected devices under the root with an ORPHAN_DEVICE diagnostic.
//
// Children end up ordered by full address ascending regardless of input
// order, so identical inputs produce identical trees.
func Build(devices []pci.Device) (*Topology, diag.Report) {
	var report diag.Report

	t := &Topology{
		Root:   &Node{},
		byAddr: make(map[pci.Addr]*Node),
		byBus:  make(map[busKey]*Node),
	}

	// Own copies of the records: annotation mutates SlotName later and
	// must not write through to the caller's slice. Bridges are indexed
	// by the bus they front in the same pass; first-seen wins on
	// duplicate claims, and a bridge claiming its own bus would parent
	// itself and is rejected outright.
	for i := range devices {
		d := devices[i]
		if _, dup := t.byAddr[d.Addr]; dup {
			report.Add(diag.KindInconsistentTopology, d.Addr.String(),
				"duplicate device address, keeping first-seen record")
			continue
		}
		n := &Node{
			Device: &d,
			Domain: d.Addr.Domain,
			Bus:    d.Addr.Bus,
		}
		t.byAddr[d.Addr] = n

		if d.SecondaryBus == nil {
			continue
		}
		if *d.SecondaryBus == d.Addr.Bus {
			report.Add(diag.KindInconsistentTopology, d.Addr.String(),
				"bridge claims its own bus %02x, ignoring claim", d.Addr.Bus)
			continue
		}
		key := busKey{d.Addr.Domain, *d.SecondaryBus}
		if first, dup := t.byBus[key]; dup {
			report.Add(diag.KindInconsistentTopology, d.Addr.String(),
				"duplicate claim for bus %04x:%02x, keeping first-seen bridge %s",
				key.domain, key.bus, first.ID())
			continue
		}
		t.byBus[key] = n
	}

	// Attach every device: claiming bridge first, root for bus 0,
	// synthesized placeholder for any other unclaimed bus.
	placeholders := make(map[busKey]*Node)
	for _, n := range t.byAddr {
		key := busKey{n.Device.Addr.Domain, n.Device.Addr.Bus}
		if bridge, ok := t.byBus[key]; ok && bridge != n {
			attach(bridge, n)
			continue
		}
		if n.Device.Addr.Bus == 0 {
			attach(t.Root, n)
			continue
		}
		ph, ok := placeholders[key]
		if !ok {
			ph = &Node{Domain: key.domain, Bus: key.bus, Placeholder: true}
			placeholders[key] = ph
			attach(t.Root, ph)
		}
		attach(ph, n)
	}

	t.breakCycles(&report)
	t.sortChildren(t.Root)
	return t, report
}

// attach links child under parent.
func attach(parent, child *Node) {
	child.parent = parent
	parent.Children = append(parent.Children, child)
}

// detach removes child from its current parent.
func detach(child *Node) {
	p := child.parent
	if p == nil {
		return
	}
	p.Children = slices.DeleteFunc(p.Children, func(n *Node) bool { return n == child })
	child.parent = nil
}

// breakCycles reattaches nodes that ended up unreachable from the root.
// This only happens with mutually-claiming bridges in malformed input: the
// attachment loop then forms an island the root walk never reaches. Each
// island is broken at its first (lowest address) member, which moves under
// the root with an ORPHAN_DEVICE diagnostic.
func (t *Topology) breakCycles(report *diag.Report) {
	for {
		reachable := make(map[*Node]bool)
		t.Walk(func(n *Node, _ int) { reachable[n] = true })

		var stranded []*Node
		for _, n := range t.byAddr {
			if !reachable[n] {
				stranded = append(stranded, n)
			}
		}
		if len(stranded) == 0 {
			return
		}
		slices.SortFunc(stranded, func(a, b *Node) int {
			return a.sortAddr().Compare(b.sortAddr())
		})

		n := stranded[0]
		report.Add(diag.KindOrphanDevice, n.ID(),
			"parent chain forms a cycle, reattaching under root")
		detach(n)
		attach(t.Root, n)
	}
}

// sortChildren orders every child list by address ascending, recursively.
func (t *Topology) sortChildren(n *Node) {
	slices.SortFunc(n.Children, func(a, b *Node) int {
		return a.sortAddr().Compare(b.sortAddr())
	})
	for _, c := range n.Children {
		t.sortChildren(c)
	}
}
