package pci

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Class codes relevant to topology reconstruction. The 16-bit class code
// combines base class (high byte) and subclass (low byte) as printed by
// lspci -nn.
const (
	// ClassPCIBridge is the PCI-to-PCI bridge class (base 0x06, sub 0x04).
	// Devices of this class front a secondary bus and can have children.
	ClassPCIBridge = 0x0604

	// ClassHostBridge is the host bridge class. Host bridges sit on bus 0
	// and never expose a secondary bus of their own.
	ClassHostBridge = 0x0600
)

// PortKind classifies the PCI Express port type reported in the device's
// Express capability block. It refines bridge classification: a bridge with
// PortUpstream together with its downstream ports forms a PCIe switch.
type PortKind int

const (
	// PortUnknown means the device reported no Express capability.
	PortUnknown PortKind = iota
	// PortRootPort is a Root Complex root port.
	PortRootPort
	// PortUpstream is the upstream port of a PCIe switch.
	PortUpstream
	// PortDownstream is a downstream port of a PCIe switch.
	PortDownstream
	// PortEndpoint is a (possibly legacy) PCIe endpoint.
	PortEndpoint
	// PortPCIBridge is a PCIe-to-PCI/PCI-X bridge.
	PortPCIBridge
)

// String returns the human-readable port kind.
func (k PortKind) String() string {
	switch k {
	case PortRootPort:
		return "Root Port"
	case PortUpstream:
		return "Upstream Port"
	case PortDownstream:
		return "Downstream Port"
	case PortEndpoint:
		return "Endpoint"
	case PortPCIBridge:
		return "PCI Bridge"
	default:
		return "Unknown"
	}
}

// Link holds one PCIe link reading: transfer rate in GT/s and lane count.
// Status readings additionally carry the downgraded flag lspci reports when
// the negotiated value is below the capable one.
//
// Link values are always reached through pointers on [Device] so that an
// absent reading is distinguishable from an explicit zero.
type Link struct {
	SpeedGTs   float64 // transfer rate, e.g. 8 for Gen3
	Width      uint8   // lane count, e.g. 16 for x16
	Downgraded bool    // lspci flagged speed or width as downgraded
}

// String renders the link as "8GT/s x16", with a downgraded marker when set.
func (l Link) String() string {
	s := fmt.Sprintf("%gGT/s x%d", l.SpeedGTs, l.Width)
	if l.Downgraded {
		s += " (downgraded)"
	}
	return s
}

// Device is one parsed bus-enumeration record: the header line identity plus
// whatever the indented capability block reported. Optional fields are
// pointers; nil means the record did not report them.
type Device struct {
	Addr      Addr
	ClassDesc string // e.g. "Ethernet controller"
	ClassCode uint16 // e.g. 0x0200
	Name      string // combined vendor and device display text
	VendorID  uint16
	DeviceID  uint16

	// SecondaryBus is the bus this bridge fronts; nil for non-bridges and
	// for bridges whose bus-range line was absent.
	SecondaryBus *uint8

	// LinkStatus is the negotiated link (LnkSta); LinkCapability is the
	// maximum the device supports (LnkCap). Either may be nil.
	LinkStatus     *Link
	LinkCapability *Link

	Port         PortKind
	SerialNumber *uint64 // PCIe Device Serial Number, if reported
	NUMANode     *int

	// SlotName is populated by the slot annotator, never by the parser.
	SlotName string
}

// IsBridge reports whether the device's class marks it as a PCI-to-PCI
// bridge, i.e. a device that can have children in the topology.
func (d *Device) IsBridge() bool {
	return d.ClassCode == ClassPCIBridge
}

// Downgraded reports whether the negotiated link runs below its capability.
// It prefers lspci's own downgraded markers and falls back to comparing the
// status against the capability when both are present.
func (d *Device) Downgraded() bool {
	if d.LinkStatus == nil {
		return false
	}
	if d.LinkStatus.Downgraded {
		return true
	}
	if d.LinkCapability == nil {
		return false
	}
	return d.LinkStatus.SpeedGTs < d.LinkCapability.SpeedGTs ||
		d.LinkStatus.Width < d.LinkCapability.Width
}

// Vendor returns the vendor portion of the display name, best effort.
// lspci prints "<vendor> <device>" as one string; the split point is located
// at a recognized corporate suffix. When no suffix matches, the first word
// is treated as the vendor.
func (d *Device) Vendor() string {
	v, _ := splitVendor(d.Name)
	return v
}

// Model returns the device-model portion of the display name, best effort.
func (d *Device) Model() string {
	_, m := splitVendor(d.Name)
	return m
}

// vendorSuffixes are tokens that terminate a vendor name in lspci output.
// Matched against whole words, longest candidate wins.
var vendorSuffixes = []string{
	"Corporation", "Corp.", "Incorporated", "Inc.", "Inc",
	"Ltd.", "Ltd", "Co.,", "Co.", "GmbH", "S.A.", "AG",
	"Technologies", "Technology", "Semiconductor", "Semiconductors",
	"Electronics", "Microsystems", "Systems", "Devices,",
}

func splitVendor(name string) (vendor, model string) {
	words := strings.Fields(name)
	for i, w := range words {
		if !isVendorSuffix(w) {
			continue
		}
		// Consume chained suffixes ("Devices, Inc.") and bracketed
		// aliases like "[AMD]"; both belong to the vendor.
		end := i + 1
		for end < len(words) && (isVendorSuffix(words[end]) || isBracketAlias(words[end])) {
			end++
		}
		return strings.Join(words[:end], " "), strings.Join(words[end:], " ")
	}
	if len(words) > 1 {
		return words[0], strings.Join(words[1:], " ")
	}
	return "", name
}

func isVendorSuffix(w string) bool {
	for _, suffix := range vendorSuffixes {
		if w == suffix {
			return true
		}
	}
	return false
}

func isBracketAlias(w string) bool {
	return strings.HasPrefix(w, "[") && strings.HasSuffix(w, "]")
}

// Regular expressions for the lspci -nnvv grammar. The header carries the
// address, class text plus code, and the vendor/device text plus IDs; the
// remaining fields live on indented capability lines.
var (
	headerRe = regexp.MustCompile(
		`^(?:([0-9a-f]{4}):)?([0-9a-f]{2}):([0-9a-f]{2})\.([0-7]) ` +
			`([^\[]+) \[([0-9a-f]{4})\]: ` +
			`(.+?) \[([0-9a-f]{4}):([0-9a-f]{4})\]`)

	secondaryBusRe = regexp.MustCompile(`secondary=([0-9a-f]{2}), subordinate=`)

	lnkCapRe = regexp.MustCompile(`LnkCap:\s*Port #[0-9]+, Speed ([0-9.]+)GT/s, Width x([0-9]+)`)

	lnkStaRe = regexp.MustCompile(
		`LnkSta:\s*Speed ([0-9.]+)GT/s((?: \(ok\))?)((?: \(downgraded\))?), ` +
			`Width x([0-9]+)((?: \(ok\))?)((?: \(downgraded\))?)`)

	portKindRe = regexp.MustCompile(
		`Express \(v[0-9]\) (Root Port|Upstream Port|Downstream Port|(?:Legacy )?Endpoint|PCI-Express to PCI/PCI-X Bridge)`)

	serialRe = regexp.MustCompile(
		`Device Serial Number ((?:[0-9a-f]{2}-){7}[0-9a-f]{2})`)

	numaNodeRe = regexp.MustCompile(`NUMA node: ([0-9]+)`)
)

// ParseDevice parses one blank-line separated lspci section into a Device.
// The header line must match the address/class/vendor grammar; all other
// fields are optional and left absent when their lines are missing.
func ParseDevice(section string) (Device, error) {
	header, _, _ := strings.Cut(section, "\n")
	m := headerRe.FindStringSubmatch(header)
	if m == nil {
		return Device{}, fmt.Errorf("header does not match device grammar: %q", header)
	}

	var d Device
	if m[1] != "" {
		domain, _ := strconv.ParseUint(m[1], 16, 16)
		d.Addr.Domain = uint16(domain)
	}
	bus, _ := strconv.ParseUint(m[2], 16, 8)
	dev, _ := strconv.ParseUint(m[3], 16, 8)
	fn, _ := strconv.ParseUint(m[4], 16, 8)
	d.Addr.Bus = uint8(bus)
	d.Addr.Device = uint8(dev)
	d.Addr.Function = uint8(fn)

	d.ClassDesc = strings.TrimSpace(m[5])
	class, _ := strconv.ParseUint(m[6], 16, 16)
	d.ClassCode = uint16(class)
	d.Name = strings.TrimSpace(m[7])
	vendorID, _ := strconv.ParseUint(m[8], 16, 16)
	deviceID, _ := strconv.ParseUint(m[9], 16, 16)
	d.VendorID = uint16(vendorID)
	d.DeviceID = uint16(deviceID)

	d.Port = parsePortKind(section)
	parseCapabilities(&d, section)
	return d, nil
}

// parseCapabilities extracts the optional fields from the indented block.
// Unrecognized lines are ignored; absent fields stay nil.
func parseCapabilities(d *Device, section string) {
	if d.IsBridge() {
		if m := secondaryBusRe.FindStringSubmatch(section); m != nil {
			v, _ := strconv.ParseUint(m[1], 16, 8)
			bus := uint8(v)
			d.SecondaryBus = &bus
		}
	}

	if m := lnkCapRe.FindStringSubmatch(section); m != nil {
		speed, _ := strconv.ParseFloat(m[1], 64)
		width, _ := strconv.ParseUint(m[2], 10, 8)
		d.LinkCapability = &Link{SpeedGTs: speed, Width: uint8(width)}
	}

	if m := lnkStaRe.FindStringSubmatch(section); m != nil {
		speed, _ := strconv.ParseFloat(m[1], 64)
		width, _ := strconv.ParseUint(m[4], 10, 8)
		d.LinkStatus = &Link{
			SpeedGTs:   speed,
			Width:      uint8(width),
			Downgraded: m[3] != "" || m[6] != "",
		}
	}

	if m := serialRe.FindStringSubmatch(section); m != nil {
		hexStr := strings.ReplaceAll(m[1], "-", "")
		v, _ := strconv.ParseUint(hexStr, 16, 64)
		d.SerialNumber = &v
	}

	if m := numaNodeRe.FindStringSubmatch(section); m != nil {
		v, _ := strconv.Atoi(m[1])
		d.NUMANode = &v
	}
}

func parsePortKind(section string) PortKind {
	m := portKindRe.FindStringSubmatch(section)
	if m == nil {
		return PortUnknown
	}
	switch m[1] {
	case "Root Port":
		return PortRootPort
	case "Upstream Port":
		return PortUpstream
	case "Downstream Port":
		return PortDownstream
	case "Endpoint", "Legacy Endpoint":
		return PortEndpoint
	default:
		return PortPCIBridge
	}
}
