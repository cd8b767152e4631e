package diag

import (
	"errors"
	"fmt"
	"testing"
)

func TestReportAddAndMerge(t *testing.T) {
	var a, b Report
	a.Add(KindMalformedRecord, "line 1", "bad header")
	b.Add(KindInconsistentTopology, "bus 03", "duplicate secondary bus claim")
	b.Add(KindMalformedRecord, "line 9", "bad slot address")

	a.Merge(b)

	if a.Len() != 3 {
		t.Fatalf("Len = %d, want 3", a.Len())
	}
	if got := a.CountKind(KindMalformedRecord); got != 2 {
		t.Errorf("CountKind(MALFORMED_RECORD) = %d, want 2", got)
	}
	// Merge preserves insertion order.
	if a.Diagnostics()[0].Subject != "line 1" {
		t.Errorf("first diagnostic = %v, want subject 'line 1'", a.Diagnostics()[0])
	}
}

func TestDiagnosticString(t *testing.T) {
	tests := []struct {
		d    Diagnostic
		want string
	}{
		{Diagnostic{Kind: KindEmptyInput, Message: "no records"}, "EMPTY_INPUT: no records"},
		{Diagnostic{Kind: KindOrphanDevice, Subject: "0000:05:00.0", Message: "no parent"}, "ORPHAN_DEVICE: no parent (0000:05:00.0)"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := Errorf(KindEmptyInput, "no parseable device records")
	wrapped := fmt.Errorf("run: %w", err)

	if !Is(wrapped, KindEmptyInput) {
		t.Error("Is should match through wrapping")
	}
	if Is(wrapped, KindOrphanDevice) {
		t.Error("Is should not match a different kind")
	}
	if Is(errors.New("plain"), KindEmptyInput) {
		t.Error("Is should not match plain errors")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("read failed")
	err := &Error{Kind: KindEmptyInput, Message: "no input", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}
	want := "EMPTY_INPUT: no input: read failed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

type captureLogger struct{ lines []string }

func (c *captureLogger) Warnf(format string, args ...any) {
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}

func TestReportLog(t *testing.T) {
	var r Report
	r.Add(KindMalformedRecord, "xx", "skipping block")

	var l captureLogger
	r.Log(&l)

	if len(l.lines) != 1 {
		t.Fatalf("logged %d lines, want 1", len(l.lines))
	}
	if l.lines[0] != "MALFORMED_RECORD: skipping block (xx)" {
		t.Errorf("logged %q", l.lines[0])
	}
}
