// Package dmi parses the subset of dmidecode output that names physical
// PCI slots: DMI type 9 (System Slot) sections. Each usable section yields a
// slot designation plus a bus-address hint that the topology annotator
// correlates with enumerated devices.
//
// The parser is deliberately narrow. dmidecode emits dozens of section
// types; everything that is not a System Slot section is ignored without
// comment, and slot sections that carry no recoverable bus address (for
// example empty slots) are dropped. Only a slot section whose Bus Address
// line exists but fails to parse produces a diagnostic.
package dmi

import (
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/hwblueprint/pcigraph/pkg/diag"
)

// AddrHint is a partial PCI address used to correlate a slot record with an
// enumerated device. Device is nil for bus-level hints; such hints can only
// be matched when the bus holds an unambiguous candidate.
type AddrHint struct {
	Domain uint16
	Bus    uint8
	Device *uint8
}

// String renders the hint as "dddd:bb" or "dddd:bb:dd".
func (h AddrHint) String() string {
	var b strings.Builder
	writeHex(&b, uint64(h.Domain), 4)
	b.WriteByte(':')
	writeHex(&b, uint64(h.Bus), 2)
	if h.Device != nil {
		b.WriteByte(':')
		writeHex(&b, uint64(*h.Device), 2)
	}
	return b.String()
}

func writeHex(b *strings.Builder, v uint64, digits int) {
	s := strconv.FormatUint(v, 16)
	for len(s) < digits {
		s = "0" + s
	}
	b.WriteString(s)
}

// SlotRecord is one physical slot from the hardware inventory.
type SlotRecord struct {
	Designation string // slot name as printed on the board, e.g. "PCIe Slot 2"
	Hint        AddrHint
}

var (
	slotSectionRe = regexp.MustCompile(`, DMI type 9, `)
	designationRe = regexp.MustCompile(`Designation: ([^\n]+)`)
	busAddressRe  = regexp.MustCompile(`Bus Address: ([^\n]+)`)

	// Full "dddd:bb:dd.f" address; the function digit is parsed but not
	// kept, slot correlation never needs function granularity.
	fullHintRe = regexp.MustCompile(`^([0-9a-f]{4}):([0-9a-f]{2}):([0-9a-f]{2})\.([0-7])$`)

	// Truncated "dddd:bb" form seen when firmware reports only the bus.
	busHintRe = regexp.MustCompile(`^([0-9a-f]{4}):([0-9a-f]{2})$`)
)

// ParseSlots consumes an entire dmidecode stream and returns the usable slot
// records in input order. The error is non-nil only for read failures.
func ParseSlots(r io.Reader) ([]SlotRecord, diag.Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, diag.Report{}, err
	}
	slots, report := ParseSlotsText(string(data))
	return slots, report, nil
}

// ParseSlotsText is the in-memory form of [ParseSlots].
func ParseSlotsText(text string) ([]SlotRecord, diag.Report) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		slots  []SlotRecord
		report diag.Report
	)
	for _, section := range strings.Split(text, "\n\n") {
		if !slotSectionRe.MatchString(section) {
			continue
		}
		desigMatch := designationRe.FindStringSubmatch(section)
		if desigMatch == nil {
			continue
		}
		designation := strings.TrimSpace(desigMatch[1])

		addrMatch := busAddressRe.FindStringSubmatch(section)
		if addrMatch == nil {
			// Empty or unrouted slot; nothing to correlate.
			continue
		}
		hint, ok := parseHint(strings.TrimSpace(addrMatch[1]))
		if !ok {
			report.Add(diag.KindMalformedRecord, designation,
				"skipping slot record: unparseable bus address %q", strings.TrimSpace(addrMatch[1]))
			continue
		}
		slots = append(slots, SlotRecord{Designation: designation, Hint: hint})
	}
	return slots, report
}

// parseHint accepts the full "dddd:bb:dd.f" form and the bus-only "dddd:bb"
// form. The latter yields a hint with no device part.
func parseHint(s string) (AddrHint, bool) {
	if m := fullHintRe.FindStringSubmatch(s); m != nil {
		domain, _ := strconv.ParseUint(m[1], 16, 16)
		bus, _ := strconv.ParseUint(m[2], 16, 8)
		dev, _ := strconv.ParseUint(m[3], 16, 8)
		device := uint8(dev)
		return AddrHint{Domain: uint16(domain), Bus: uint8(bus), Device: &device}, true
	}
	if m := busHintRe.FindStringSubmatch(s); m != nil {
		domain, _ := strconv.ParseUint(m[1], 16, 16)
		bus, _ := strconv.ParseUint(m[2], 16, 8)
		return AddrHint{Domain: uint16(domain), Bus: uint8(bus)}, true
	}
	return AddrHint{}, false
}
