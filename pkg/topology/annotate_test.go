package topology

import (
	"testing"

	"github.com/hwblueprint/pcigraph/pkg/diag"
	"github.com/hwblueprint/pcigraph/pkg/dmi"
	"github.com/hwblueprint/pcigraph/pkg/pci"
)

func hint(domain uint16, bus uint8, device int) dmi.AddrHint {
	h := dmi.AddrHint{Domain: domain, Bus: bus}
	if device >= 0 {
		d := uint8(device)
		h.Device = &d
	}
	return h
}

func slotName(t *testing.T, topo *Topology, addr string) string {
	t.Helper()
	a, err := pci.ParseAddr(addr)
	if err != nil {
		t.Fatalf("bad address %q: %v", addr, err)
	}
	n, ok := topo.Lookup(a)
	if !ok {
		t.Fatalf("no node at %s", addr)
	}
	return n.Device.SlotName
}

func TestAnnotateDeviceSpecificity(t *testing.T) {
	// Two devices on bus 3; a device-level hint must label exactly one.
	topo, _ := Build([]pci.Device{
		dev(t, "00:01.0", 3),
		dev(t, "03:04.0", -1),
		dev(t, "03:05.0", -1),
	})

	report := Annotate(topo, []dmi.SlotRecord{
		{Designation: "Slot 7", Hint: hint(0, 3, 4)},
	}, DefaultMatchPolicy())

	if !report.Empty() {
		t.Errorf("unexpected diagnostics: %v", report.Diagnostics())
	}
	if got := slotName(t, topo, "03:04.0"); got != "Slot 7" {
		t.Errorf("device 4 slot = %q, want Slot 7", got)
	}
	if got := slotName(t, topo, "03:05.0"); got != "" {
		t.Errorf("device 5 slot = %q, want unlabeled", got)
	}
}

func TestAnnotateBusFallbackUnique(t *testing.T) {
	topo, _ := Build([]pci.Device{
		dev(t, "00:01.0", 3),
		dev(t, "03:00.0", -1),
	})

	report := Annotate(topo, []dmi.SlotRecord{
		{Designation: "PCIe Slot 1", Hint: hint(0, 3, -1)},
	}, DefaultMatchPolicy())

	if !report.Empty() {
		t.Errorf("unexpected diagnostics: %v", report.Diagnostics())
	}
	if got := slotName(t, topo, "03:00.0"); got != "PCIe Slot 1" {
		t.Errorf("slot = %q, want PCIe Slot 1", got)
	}
}

func TestAnnotateBusFallbackAmbiguous(t *testing.T) {
	topo, _ := Build([]pci.Device{
		dev(t, "00:01.0", 3),
		dev(t, "03:04.0", -1),
		dev(t, "03:05.0", -1),
	})

	report := Annotate(topo, []dmi.SlotRecord{
		{Designation: "Slot A", Hint: hint(0, 3, -1)},
	}, DefaultMatchPolicy())

	// Ambiguity is skipped and reported, never guessed.
	if got := report.CountKind(diag.KindInconsistentTopology); got != 1 {
		t.Fatalf("diagnostics = %d, want 1 ambiguity report", got)
	}
	if slotName(t, topo, "03:04.0") != "" || slotName(t, topo, "03:05.0") != "" {
		t.Error("ambiguous hint must label nothing")
	}
}

func TestAnnotateMultiFunctionPrefersFunctionZero(t *testing.T) {
	topo, _ := Build([]pci.Device{
		dev(t, "00:01.0", 3),
		dev(t, "03:00.0", -1),
		dev(t, "03:00.1", -1),
	})

	report := Annotate(topo, []dmi.SlotRecord{
		{Designation: "Slot 2", Hint: hint(0, 3, -1)},
	}, DefaultMatchPolicy())

	// One device number with two functions is not ambiguous.
	if !report.Empty() {
		t.Errorf("unexpected diagnostics: %v", report.Diagnostics())
	}
	if got := slotName(t, topo, "03:00.0"); got != "Slot 2" {
		t.Errorf("function 0 slot = %q, want Slot 2", got)
	}
	if got := slotName(t, topo, "03:00.1"); got != "" {
		t.Errorf("function 1 slot = %q, want unlabeled", got)
	}
}

func TestAnnotateLowestFunctionWhenZeroMissing(t *testing.T) {
	topo, _ := Build([]pci.Device{
		dev(t, "00:01.0", 3),
		dev(t, "03:00.2", -1),
		dev(t, "03:00.4", -1),
	})

	report := Annotate(topo, []dmi.SlotRecord{
		{Designation: "Slot 9", Hint: hint(0, 3, 0)},
	}, DefaultMatchPolicy())

	if !report.Empty() {
		t.Errorf("unexpected diagnostics: %v", report.Diagnostics())
	}
	if got := slotName(t, topo, "03:00.2"); got != "Slot 9" {
		t.Errorf("lowest function slot = %q, want Slot 9", got)
	}
}

func TestAnnotateBusFallbackDisabled(t *testing.T) {
	topo, _ := Build([]pci.Device{
		dev(t, "00:01.0", 3),
		dev(t, "03:00.0", -1),
	})

	policy := MatchPolicy{AllowBusFallback: false, PreferFunctionZero: true}
	report := Annotate(topo, []dmi.SlotRecord{
		{Designation: "Slot 1", Hint: hint(0, 3, -1)},
	}, policy)

	if !report.Empty() {
		t.Errorf("disabled fallback must be silent, got %v", report.Diagnostics())
	}
	if got := slotName(t, topo, "03:00.0"); got != "" {
		t.Errorf("slot = %q, want unlabeled with fallback disabled", got)
	}
}

func TestAnnotateUnmatchedHintIsSilent(t *testing.T) {
	topo, _ := Build([]pci.Device{dev(t, "00:00.0", -1)})

	report := Annotate(topo, []dmi.SlotRecord{
		{Designation: "Slot X", Hint: hint(0, 9, 0)},
	}, DefaultMatchPolicy())

	if !report.Empty() {
		t.Errorf("unmatched hint must not be an error, got %v", report.Diagnostics())
	}
}

func TestAnnotateDuplicateSlotKeepsFirst(t *testing.T) {
	topo, _ := Build([]pci.Device{
		dev(t, "00:01.0", 3),
		dev(t, "03:00.0", -1),
	})

	report := Annotate(topo, []dmi.SlotRecord{
		{Designation: "Slot 1", Hint: hint(0, 3, 0)},
		{Designation: "Slot 2", Hint: hint(0, 3, 0)},
	}, DefaultMatchPolicy())

	if got := slotName(t, topo, "03:00.0"); got != "Slot 1" {
		t.Errorf("slot = %q, want first-seen Slot 1", got)
	}
	if got := report.CountKind(diag.KindInconsistentTopology); got != 1 {
		t.Errorf("duplicate slot diagnostics = %d, want 1", got)
	}
}

func TestAnnotateBridgeHint(t *testing.T) {
	// Firmware often points the slot handle at the upstream port rather
	// than the device in the slot; the label then lands on the bridge.
	topo, _ := Build([]pci.Device{
		dev(t, "00:1c.4", 5),
		dev(t, "05:00.0", -1),
	})

	report := Annotate(topo, []dmi.SlotRecord{
		{Designation: "PCIe x4 Slot", Hint: hint(0, 0, 0x1c)},
	}, DefaultMatchPolicy())

	if !report.Empty() {
		t.Errorf("unexpected diagnostics: %v", report.Diagnostics())
	}
	if got := slotName(t, topo, "00:1c.4"); got != "PCIe x4 Slot" {
		t.Errorf("bridge slot = %q, want PCIe x4 Slot", got)
	}
}
