// Package diag provides the diagnostic model shared by every stage of the
// pcigraph pipeline.
//
// Parsing and topology reconstruction are best-effort: a record that does not
// match the expected grammar is skipped, the condition is recorded, and
// processing continues. Diagnostics are therefore collected into a [Report]
// that travels beside the primary result instead of being raised as control
// flow. The only fatal condition is [KindEmptyInput]: a run that produced no
// parseable device records has no meaningful output.
//
// # Kinds
//
// Diagnostic kinds follow a machine-readable naming convention:
//   - MALFORMED_RECORD: a device or slot block did not match its grammar
//   - INCONSISTENT_TOPOLOGY: ambiguous parent or slot resolution
//   - ORPHAN_DEVICE: a device's parent bus could not be resolved at all
//   - EMPTY_INPUT: no parseable device records (fatal)
package diag

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable diagnostic category.
type Kind string

// Diagnostic kinds for the pipeline stages.
const (
	// KindMalformedRecord marks a device or slot block that did not match
	// the expected grammar. The block is skipped.
	KindMalformedRecord Kind = "MALFORMED_RECORD"

	// KindInconsistentTopology marks ambiguous parent resolution: duplicate
	// secondary-bus claims or an ambiguous slot-address match. Resolved by
	// a documented tie-break, never fatal.
	KindInconsistentTopology Kind = "INCONSISTENT_TOPOLOGY"

	// KindOrphanDevice marks a device whose parent bus could not be found
	// even after placeholder synthesis. Guarded against; should not occur.
	KindOrphanDevice Kind = "ORPHAN_DEVICE"

	// KindEmptyInput marks a run with zero parseable device records.
	// This is the only fatal condition.
	KindEmptyInput Kind = "EMPTY_INPUT"
)

// Diagnostic records one non-fatal condition encountered during a run.
type Diagnostic struct {
	Kind    Kind   // category of the condition
	Subject string // the offending line, address, or hint
	Message string // human-readable description
}

// String formats the diagnostic as "KIND: message (subject)".
func (d Diagnostic) String() string {
	if d.Subject == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", d.Kind, d.Message, d.Subject)
}

// Report is an append-only collection of diagnostics produced by one stage.
// The zero value is ready to use. Report is not safe for concurrent use; the
// pipeline is single-threaded and ownership transfers sequentially.
type Report struct {
	diags []Diagnostic
}

// Add appends a diagnostic with a formatted message.
func (r *Report) Add(kind Kind, subject, format string, args ...any) {
	r.diags = append(r.diags, Diagnostic{
		Kind:    kind,
		Subject: subject,
		Message: fmt.Sprintf(format, args...),
	})
}

// Merge appends all diagnostics from other, preserving order.
func (r *Report) Merge(other Report) {
	r.diags = append(r.diags, other.diags...)
}

// Diagnostics returns the collected diagnostics in insertion order.
// The returned slice is the report's backing store; callers must not mutate it.
func (r *Report) Diagnostics() []Diagnostic {
	return r.diags
}

// Len returns the number of collected diagnostics.
func (r *Report) Len() int { return len(r.diags) }

// Empty reports whether no diagnostics were collected.
func (r *Report) Empty() bool { return len(r.diags) == 0 }

// CountKind returns how many diagnostics of the given kind were collected.
func (r *Report) CountKind(kind Kind) int {
	n := 0
	for _, d := range r.diags {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Logger is the subset of a structured logger the report needs.
// *log.Logger from charmbracelet/log satisfies it.
type Logger interface {
	Warnf(format string, args ...any)
}

// Log emits every collected diagnostic as a warning.
func (r *Report) Log(l Logger) {
	for _, d := range r.diags {
		l.Warnf("%s", d)
	}
}

// Error is a structured, code-carrying error for fatal conditions.
type Error struct {
	Kind    Kind   // machine-readable kind
	Message string // human-readable message
	Cause   error  // underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error { return e.Cause }

// Errorf creates a new Error with the given kind and formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether err carries the given diagnostic kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
