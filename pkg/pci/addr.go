package pci

import (
	"fmt"
	"regexp"
	"strconv"
)

// Addr identifies a PCI function by domain, bus, device and function number.
// Addresses order lexicographically by (Domain, Bus, Device, Function), which
// is the ordering used for deterministic child placement in the topology.
type Addr struct {
	Domain   uint16
	Bus      uint8
	Device   uint8
	Function uint8
}

// addrRe matches "bb:dd.f" with an optional "dddd:" domain prefix.
var addrRe = regexp.MustCompile(`^(?:([0-9a-f]{4}):)?([0-9a-f]{2}):([0-9a-f]{2})\.([0-7])$`)

// ParseAddr parses an address of the form "[dddd:]bb:dd.f".
// A missing domain defaults to 0, matching lspci output without -D.
func ParseAddr(s string) (Addr, error) {
	m := addrRe.FindStringSubmatch(s)
	if m == nil {
		return Addr{}, fmt.Errorf("invalid PCI address %q", s)
	}
	var a Addr
	if m[1] != "" {
		domain, _ := strconv.ParseUint(m[1], 16, 16)
		a.Domain = uint16(domain)
	}
	bus, _ := strconv.ParseUint(m[2], 16, 8)
	dev, _ := strconv.ParseUint(m[3], 16, 8)
	fn, _ := strconv.ParseUint(m[4], 16, 8)
	a.Bus = uint8(bus)
	a.Device = uint8(dev)
	a.Function = uint8(fn)
	return a, nil
}

// String renders the address in the canonical "dddd:bb:dd.f" form.
func (a Addr) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%x", a.Domain, a.Bus, a.Device, a.Function)
}

// Compare orders addresses by (Domain, Bus, Device, Function) ascending and
// returns -1, 0 or 1. It is suitable for slices.SortFunc.
func (a Addr) Compare(b Addr) int {
	switch {
	case a.Domain != b.Domain:
		return cmp(uint32(a.Domain), uint32(b.Domain))
	case a.Bus != b.Bus:
		return cmp(uint32(a.Bus), uint32(b.Bus))
	case a.Device != b.Device:
		return cmp(uint32(a.Device), uint32(b.Device))
	default:
		return cmp(uint32(a.Function), uint32(b.Function))
	}
}

func cmp(a, b uint32) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
