package pci

import (
	"io"
	"strings"

	"github.com/hwblueprint/pcigraph/pkg/diag"
)

// ParseDevices consumes an entire lspci -nnvv stream and parses every
// blank-line separated section into a [Device]. Sections whose header line
// does not match the device grammar are skipped and recorded in the report
// as MALFORMED_RECORD; they never abort the run.
//
// The returned slice preserves input order. The error is non-nil only for
// read failures; an input with zero parseable records is not an error here,
// that policy belongs to the pipeline.
func ParseDevices(r io.Reader) ([]Device, diag.Report, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, diag.Report{}, err
	}
	devices, report := ParseDevicesText(string(data))
	return devices, report, nil
}

// ParseDevicesText is the in-memory form of [ParseDevices].
func ParseDevicesText(text string) ([]Device, diag.Report) {
	var (
		devices []Device
		report  diag.Report
	)
	for _, section := range splitSections(text) {
		d, err := ParseDevice(section)
		if err != nil {
			header, _, _ := strings.Cut(section, "\n")
			report.Add(diag.KindMalformedRecord, header, "skipping device block: %v", err)
			continue
		}
		devices = append(devices, d)
	}
	return devices, report
}

// splitSections splits a stream into blank-line separated sections,
// dropping empty ones. Windows line endings are normalized first.
func splitSections(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var sections []string
	for _, s := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(s) != "" {
			sections = append(sections, s)
		}
	}
	return sections
}
