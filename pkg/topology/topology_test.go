package topology

import (
	"slices"
	"testing"

	"github.com/hwblueprint/pcigraph/pkg/diag"
	"github.com/hwblueprint/pcigraph/pkg/pci"
)

// dev builds a minimal device record for builder tests. secondary < 0 means
// no secondary bus (endpoint).
func dev(t *testing.T, addr string, secondary int) pci.Device {
	t.Helper()
	a, err := pci.ParseAddr(addr)
	if err != nil {
		t.Fatalf("bad test address %q: %v", addr, err)
	}
	d := pci.Device{Addr: a, Name: "Test Vendor Corporation Test Device", ClassDesc: "Test controller"}
	if secondary >= 0 {
		d.ClassCode = pci.ClassPCIBridge
		bus := uint8(secondary)
		d.SecondaryBus = &bus
	}
	return d
}

func ids(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	return out
}

func TestBuildSimpleTree(t *testing.T) {
	devices := []pci.Device{
		dev(t, "00:00.0", -1),
		dev(t, "00:01.0", 3), // bridge fronting bus 3
		dev(t, "03:00.0", -1),
		dev(t, "03:00.1", -1),
	}

	topo, report := Build(devices)

	if !report.Empty() {
		t.Errorf("unexpected diagnostics: %v", report.Diagnostics())
	}
	if err := topo.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if topo.DeviceCount() != 4 {
		t.Errorf("DeviceCount = %d, want 4", topo.DeviceCount())
	}

	// Root holds the two bus-0 devices.
	if got := ids(topo.Root.Children); !slices.Equal(got, []string{"0000:00:00.0", "0000:00:01.0"}) {
		t.Errorf("root children = %v", got)
	}

	bridge, ok := topo.Lookup(pci.Addr{Bus: 0, Device: 1})
	if !ok {
		t.Fatal("bridge not indexed")
	}
	if got := ids(bridge.Children); !slices.Equal(got, []string{"0000:03:00.0", "0000:03:00.1"}) {
		t.Errorf("bridge children = %v", got)
	}
}

func TestBuildOrderIndependent(t *testing.T) {
	forward := []pci.Device{
		dev(t, "00:01.0", 3),
		dev(t, "03:00.0", 4), // nested bridge
		dev(t, "04:00.0", -1),
	}
	reversed := slices.Clone(forward)
	slices.Reverse(reversed)

	a, _ := Build(forward)
	b, _ := Build(reversed)

	var wantWalk, gotWalk []string
	a.Walk(func(n *Node, _ int) { wantWalk = append(wantWalk, n.ID()) })
	b.Walk(func(n *Node, _ int) { gotWalk = append(gotWalk, n.ID()) })

	if !slices.Equal(wantWalk, gotWalk) {
		t.Errorf("walk differs by input order:\n%v\n%v", wantWalk, gotWalk)
	}
}

func TestBuildChildOrdering(t *testing.T) {
	devices := []pci.Device{
		dev(t, "03:02.0", -1),
		dev(t, "00:01.0", 3),
		dev(t, "03:00.1", -1),
		dev(t, "03:00.0", -1),
		dev(t, "03:01.0", -1),
	}

	topo, _ := Build(devices)
	bridge, _ := topo.Lookup(pci.Addr{Bus: 0, Device: 1})

	want := []string{"0000:03:00.0", "0000:03:00.1", "0000:03:01.0", "0000:03:02.0"}
	if got := ids(bridge.Children); !slices.Equal(got, want) {
		t.Errorf("children = %v, want strictly ascending %v", got, want)
	}
}

func TestBuildGapSynthesizesPlaceholder(t *testing.T) {
	// Bus 5 has no bridge advertising secondary=5: the device must still
	// appear, under a synthesized ancestor.
	devices := []pci.Device{
		dev(t, "00:00.0", -1),
		dev(t, "05:00.0", -1),
	}

	topo, report := Build(devices)

	if !report.Empty() {
		t.Errorf("gap synthesis must not produce diagnostics, got %v", report.Diagnostics())
	}
	if err := topo.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	n, ok := topo.Lookup(pci.Addr{Bus: 5})
	if !ok {
		t.Fatal("device on unclaimed bus was dropped")
	}
	ph := n.Parent()
	if ph == nil || !ph.Placeholder {
		t.Fatalf("parent = %+v, want placeholder", ph)
	}
	if ph.ID() != "bus 0000:05" {
		t.Errorf("placeholder ID = %q", ph.ID())
	}
	if ph.Parent() != topo.Root {
		t.Error("placeholder must hang off the root")
	}
}

func TestBuildSharedPlaceholderPerBus(t *testing.T) {
	devices := []pci.Device{
		dev(t, "05:00.0", -1),
		dev(t, "05:00.1", -1),
	}
	topo, _ := Build(devices)

	if len(topo.Root.Children) != 1 {
		t.Fatalf("root children = %v, want one shared placeholder", ids(topo.Root.Children))
	}
	if got := len(topo.Root.Children[0].Children); got != 2 {
		t.Errorf("placeholder children = %d, want 2", got)
	}
}

func TestBuildDuplicateSecondaryBusKeepsFirst(t *testing.T) {
	devices := []pci.Device{
		dev(t, "00:01.0", 3),
		dev(t, "00:02.0", 3), // malformed duplicate claim
		dev(t, "03:00.0", -1),
	}

	topo, report := Build(devices)

	if got := report.CountKind(diag.KindInconsistentTopology); got != 1 {
		t.Fatalf("inconsistent diagnostics = %d, want 1", got)
	}

	first, _ := topo.Lookup(pci.Addr{Bus: 0, Device: 1})
	second, _ := topo.Lookup(pci.Addr{Bus: 0, Device: 2})
	if len(first.Children) != 1 || len(second.Children) != 0 {
		t.Errorf("children split = %d/%d, want first-seen bridge to win",
			len(first.Children), len(second.Children))
	}
}

func TestBuildSelfClaimingBridge(t *testing.T) {
	bad := dev(t, "03:00.0", 3) // claims its own bus
	topo, report := Build([]pci.Device{bad})

	if report.CountKind(diag.KindInconsistentTopology) != 1 {
		t.Errorf("self claim must be diagnosed, got %v", report.Diagnostics())
	}
	if err := topo.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if topo.DeviceCount() != 1 {
		t.Error("self-claiming bridge must still be kept")
	}
}

func TestBuildMutualClaimCycleIsBroken(t *testing.T) {
	// Bridges on buses 3 and 5 each claim the other's bus. Attachment
	// forms an island the root never reaches; it must be broken, not
	// dropped or looped forever.
	devices := []pci.Device{
		dev(t, "03:00.0", 5),
		dev(t, "05:00.0", 3),
	}

	topo, report := Build(devices)

	if err := topo.Validate(); err != nil {
		t.Fatalf("Validate after cycle break: %v", err)
	}
	if topo.DeviceCount() != 2 {
		t.Error("cycle members must be retained")
	}
	if report.CountKind(diag.KindOrphanDevice) == 0 {
		t.Error("cycle break must be diagnosed as ORPHAN_DEVICE")
	}
}

func TestBuildSeparateDomains(t *testing.T) {
	devices := []pci.Device{
		dev(t, "0000:00:01.0", 3),
		dev(t, "0001:00:01.0", 3), // same bus numbers, different domain
		dev(t, "0000:03:00.0", -1),
		dev(t, "0001:03:00.0", -1),
	}

	topo, report := Build(devices)
	if !report.Empty() {
		t.Fatalf("domains must not collide: %v", report.Diagnostics())
	}

	b0, _ := topo.Lookup(pci.Addr{Domain: 0, Bus: 0, Device: 1})
	b1, _ := topo.Lookup(pci.Addr{Domain: 1, Bus: 0, Device: 1})
	if len(b0.Children) != 1 || len(b1.Children) != 1 {
		t.Errorf("children = %d/%d, want 1/1", len(b0.Children), len(b1.Children))
	}
	if b0.Children[0].Device.Addr.Domain != 0 || b1.Children[0].Device.Addr.Domain != 1 {
		t.Error("child attached across domains")
	}
}

func TestWalkDepths(t *testing.T) {
	devices := []pci.Device{
		dev(t, "00:01.0", 3),
		dev(t, "03:00.0", -1),
	}
	topo, _ := Build(devices)

	depths := map[string]int{}
	topo.Walk(func(n *Node, depth int) { depths[n.ID()] = depth })

	if depths["root"] != 0 || depths["0000:00:01.0"] != 1 || depths["0000:03:00.0"] != 2 {
		t.Errorf("depths = %v", depths)
	}
}
