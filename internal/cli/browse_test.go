package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hwblueprint/pcigraph/pkg/pci"
	"github.com/hwblueprint/pcigraph/pkg/topology"
)

func browseTopology(t *testing.T) *topology.Topology {
	t.Helper()
	sec := uint8(3)
	devices := []pci.Device{
		{Addr: pci.Addr{Bus: 0, Device: 1}, ClassCode: pci.ClassPCIBridge, SecondaryBus: &sec, Name: "Intel Corporation Root Port", ClassDesc: "PCI bridge"},
		{Addr: pci.Addr{Bus: 3}, Name: "Intel Corporation I210", ClassDesc: "Ethernet controller"},
	}
	topo, report := topology.Build(devices)
	if !report.Empty() {
		t.Fatalf("unexpected diagnostics: %v", report.Diagnostics())
	}
	return topo
}

func keyMsg(s string) tea.KeyMsg {
	if s == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTreeModelRows(t *testing.T) {
	m := NewTreeModel(browseTopology(t))

	// root, bridge, endpoint
	if len(m.rows) != 3 {
		t.Fatalf("visible rows = %d, want 3", len(m.rows))
	}
	if !m.rows[0].node.IsRoot() {
		t.Error("first row should be the root")
	}
	if m.rows[2].depth != 2 {
		t.Errorf("endpoint depth = %d, want 2", m.rows[2].depth)
	}
}

func TestTreeModelNavigation(t *testing.T) {
	m := NewTreeModel(browseTopology(t))

	next, _ := m.Update(keyMsg("j"))
	m = next.(TreeModel)
	if m.Cursor != 1 {
		t.Errorf("cursor = %d after j, want 1", m.Cursor)
	}

	next, _ = m.Update(keyMsg("k"))
	m = next.(TreeModel)
	if m.Cursor != 0 {
		t.Errorf("cursor = %d after k, want 0", m.Cursor)
	}

	// Up at the top stays put.
	next, _ = m.Update(keyMsg("k"))
	m = next.(TreeModel)
	if m.Cursor != 0 {
		t.Errorf("cursor = %d, want 0", m.Cursor)
	}
}

func TestTreeModelCollapse(t *testing.T) {
	m := NewTreeModel(browseTopology(t))

	// Move to the bridge and collapse it.
	next, _ := m.Update(keyMsg("j"))
	m = next.(TreeModel)
	next, _ = m.Update(keyMsg("enter"))
	m = next.(TreeModel)

	if len(m.rows) != 2 {
		t.Fatalf("visible rows after collapse = %d, want 2", len(m.rows))
	}

	next, _ = m.Update(keyMsg("enter"))
	m = next.(TreeModel)
	if len(m.rows) != 3 {
		t.Errorf("visible rows after expand = %d, want 3", len(m.rows))
	}
}

func TestTreeModelQuit(t *testing.T) {
	m := NewTreeModel(browseTopology(t))

	_, cmd := m.Update(keyMsg("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
}

func TestTreeModelView(t *testing.T) {
	m := NewTreeModel(browseTopology(t))

	view := m.View()
	for _, want := range []string{"host", "0000:00:01.0", "0000:03:00.0"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestDeviceTable(t *testing.T) {
	out := deviceTable(browseTopology(t))

	for _, want := range []string{"Address", "0000:00:01.0", "0000:03:00.0", "Ethernet controller"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}
