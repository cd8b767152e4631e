package topology

import (
	"slices"

	"github.com/hwblueprint/pcigraph/pkg/diag"
	"github.com/hwblueprint/pcigraph/pkg/dmi"
	"github.com/hwblueprint/pcigraph/pkg/pci"
)

// MatchPolicy tunes how slot-address hints are correlated with devices.
// The exact matching rules are firmware-dependent heuristics, so they are
// policy rather than hard-coded behavior.
type MatchPolicy struct {
	// AllowBusFallback permits bus-only hints to match when the bus holds
	// exactly one candidate device. When false, hints without a device
	// part never match.
	AllowBusFallback bool

	// PreferFunctionZero picks function 0 of a multi-function device
	// instead of treating its functions as ambiguous candidates.
	PreferFunctionZero bool
}

// DefaultMatchPolicy returns the policy used when no configuration is given:
// bus fallback allowed, function 0 preferred.
func DefaultMatchPolicy() MatchPolicy {
	return MatchPolicy{AllowBusFallback: true, PreferFunctionZero: true}
}

// Annotate merges slot records into the topology by address correlation,
// setting SlotName on the matched device nodes.
//
// A hint carrying a device number matches the functions of exactly that
// (domain, bus, device); a bus-only hint falls back to the devices of its
// bus when the policy allows. Matching is best-effort: several candidate
// device numbers at the same specificity is ambiguous and the record is
// skipped with an INCONSISTENT_TOPOLOGY diagnostic rather than guessed.
func Annotate(t *Topology, slots []dmi.SlotRecord, policy MatchPolicy) diag.Report {
	var report diag.Report

	for _, slot := range slots {
		node := match(t, slot.Hint, policy, &report, slot.Designation)
		if node == nil {
			continue
		}
		if node.Device.SlotName != "" {
			report.Add(diag.KindInconsistentTopology, slot.Hint.String(),
				"slot %q resolves to %s which already carries slot %q, keeping first",
				slot.Designation, node.ID(), node.Device.SlotName)
			continue
		}
		node.Device.SlotName = slot.Designation
	}
	return report
}

// match resolves one hint to a device node, or nil when the hint has no
// unambiguous match.
func match(t *Topology, hint dmi.AddrHint, policy MatchPolicy, report *diag.Report, designation string) *Node {
	if hint.Device != nil {
		return matchDevice(t, hint.Domain, hint.Bus, *hint.Device, policy)
	}
	if !policy.AllowBusFallback {
		return nil
	}

	candidates := busCandidates(t, hint.Domain, hint.Bus)
	devNumbers := map[uint8]bool{}
	for _, n := range candidates {
		devNumbers[n.Device.Addr.Device] = true
	}
	switch len(devNumbers) {
	case 0:
		return nil
	case 1:
		return matchDevice(t, hint.Domain, hint.Bus, candidates[0].Device.Addr.Device, policy)
	default:
		report.Add(diag.KindInconsistentTopology, hint.String(),
			"slot %q matches %d devices on bus, skipping annotation",
			designation, len(devNumbers))
		return nil
	}
}

// matchDevice returns the node for (domain, bus, device), resolving
// multi-function devices per policy: function 0 when preferred and present,
// otherwise the lowest enumerated function.
func matchDevice(t *Topology, domain uint16, bus, device uint8, policy MatchPolicy) *Node {
	if policy.PreferFunctionZero {
		if n, ok := t.Lookup(pci.Addr{Domain: domain, Bus: bus, Device: device}); ok {
			return n
		}
	}
	var functions []*Node
	for fn := 0; fn <= 7; fn++ {
		addr := pci.Addr{Domain: domain, Bus: bus, Device: device, Function: uint8(fn)}
		if n, ok := t.Lookup(addr); ok {
			functions = append(functions, n)
		}
	}
	if len(functions) == 0 {
		return nil
	}
	return functions[0]
}

// busCandidates returns the device nodes on (domain, bus) ordered by
// address.
func busCandidates(t *Topology, domain uint16, bus uint8) []*Node {
	var nodes []*Node
	for addr, n := range t.byAddr {
		if addr.Domain == domain && addr.Bus == bus {
			nodes = append(nodes, n)
		}
	}
	slices.SortFunc(nodes, func(a, b *Node) int {
		return a.Device.Addr.Compare(b.Device.Addr)
	})
	return nodes
}
