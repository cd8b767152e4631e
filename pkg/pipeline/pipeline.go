// Package pipeline runs the complete lspci → topology → DOT transform.
//
// The pipeline is a single-pass batch job shared by the CLI commands and the
// HTTP server: device input is read entirely, parsed into records, rebuilt
// into a topology, optionally annotated with slot names, and serialized.
// All non-fatal conditions are collected into a diagnostics report returned
// beside the result; the only fatal condition is an input with zero
// parseable device records.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/hwblueprint/pcigraph/pkg/diag"
	"github.com/hwblueprint/pcigraph/pkg/dmi"
	"github.com/hwblueprint/pcigraph/pkg/dot"
	"github.com/hwblueprint/pcigraph/pkg/pci"
	"github.com/hwblueprint/pcigraph/pkg/topology"
)

// Options configures one pipeline run.
type Options struct {
	// DeviceInput is the lspci stream. Required.
	DeviceInput io.Reader

	// SlotInput is the dmidecode stream. When nil the slot annotator is
	// skipped entirely and no slot labels appear.
	SlotInput io.Reader

	// MatchPolicy tunes slot-hint correlation. Nil means
	// [topology.DefaultMatchPolicy].
	MatchPolicy *topology.MatchPolicy

	// Clusters enables locality clusters in the DOT output.
	Clusters bool

	// Logger receives per-stage progress at debug level. Optional.
	Logger *log.Logger
}

// Result is the outcome of a successful run.
type Result struct {
	// DOT is the emitted graph document.
	DOT string

	// Topology is the annotated tree, kept for callers that want to
	// inspect or re-render without re-parsing.
	Topology *topology.Topology

	// Report carries every non-fatal diagnostic from all stages.
	Report diag.Report
}

// Run executes the transform. It returns a fatal error only when the context
// is canceled, an input cannot be read, or the device stream contains no
// parseable records (EMPTY_INPUT); every other condition is a diagnostic
// inside the result.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.DeviceInput == nil {
		return nil, fmt.Errorf("pipeline: device input is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	devices, report, err := pci.ParseDevices(opts.DeviceInput)
	if err != nil {
		return nil, fmt.Errorf("read device input: %w", err)
	}
	logger.Debugf("parsed %d device records (%d skipped)",
		len(devices), report.CountKind(diag.KindMalformedRecord))

	if len(devices) == 0 {
		return nil, diag.Errorf(diag.KindEmptyInput, "no parseable device records in input")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	topo, buildReport := topology.Build(devices)
	report.Merge(buildReport)
	logger.Debugf("built topology: %d devices", topo.DeviceCount())

	if opts.SlotInput != nil {
		slots, slotReport, err := dmi.ParseSlots(opts.SlotInput)
		if err != nil {
			return nil, fmt.Errorf("read slot input: %w", err)
		}
		report.Merge(slotReport)

		policy := topology.DefaultMatchPolicy()
		if opts.MatchPolicy != nil {
			policy = *opts.MatchPolicy
		}
		report.Merge(topology.Annotate(topo, slots, policy))
		logger.Debugf("annotated from %d slot records", len(slots))
	}

	out := dot.ToDOT(topo, dot.Options{Clusters: opts.Clusters})
	return &Result{DOT: out, Topology: topo, Report: report}, nil
}
