package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"capturepair/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Drivers", statusError, "failed", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Drivers:", "[ERROR] failed")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Drivers", statusOK, "installed", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green wrapped line, got %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatal("expected non-file writer to disable color")
	}
}

func TestDriverLinesSuggestInstall(t *testing.T) {
	lines := driverLines(api.DriverState{Phase: "missing"}, false)
	if len(lines) != 2 || !strings.Contains(lines[1], "drivers install") {
		t.Fatalf("expected install hint, got %q", lines)
	}
	lines = driverLines(api.DriverState{Phase: "installed", NotRequired: true}, false)
	if !strings.Contains(lines[0], "not required") {
		t.Fatalf("expected not-required message, got %q", lines[0])
	}
}

func TestRenderStatusSections(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, api.DaemonStatus{
		Running:     true,
		PID:         42,
		Drivers:     api.DriverState{Phase: "installed"},
		DeviceCount: 2,
		Checks: []api.CheckResult{
			{Name: "State directory", Passed: true},
			{Name: "idevicepair", Passed: false, Detail: "binary \"idevicepair\" not found"},
		},
		LastSession: &api.Session{Operation: "setup", DeviceID: "AAAA", State: "failed", ErrorMessage: "timeout"},
	}, false)

	out := buf.String()
	for _, want := range []string{"running (pid 42)", "2 attached", "1 check(s) failed", "failed: timeout", "idle"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in status output:\n%s", want, out)
		}
	}
}

func TestHistoryRowsFormatting(t *testing.T) {
	rows := historyRows([]api.Session{{
		DeviceID:       "00008110-AAAA",
		DeviceName:     "iPhone",
		Operation:      "pairing_file",
		State:          "complete",
		PairingFile:    "/p/AAAA.plist",
		FinishedAt:     "2026-01-02T03:04:05.000Z",
		DurationMillis: 1500,
	}})
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0][1] != "iPhone (…AAAA)" {
		t.Fatalf("unexpected device column %q", rows[0][1])
	}
	if rows[0][4] != "1.5s" {
		t.Fatalf("unexpected duration column %q", rows[0][4])
	}
	if rows[0][5] != "/p/AAAA.plist" {
		t.Fatalf("unexpected detail column %q", rows[0][5])
	}
}

func TestParseOutputFormat(t *testing.T) {
	for input, want := range map[string]outputFormat{"": outputTable, "JSON": outputJSON, "yml": outputYAML} {
		got, err := parseOutputFormat(input)
		if err != nil || got != want {
			t.Fatalf("parseOutputFormat(%q) = %q, %v; want %q", input, got, err, want)
		}
	}
	if _, err := parseOutputFormat("xml"); err == nil {
		t.Fatal("expected error for xml")
	}
}
