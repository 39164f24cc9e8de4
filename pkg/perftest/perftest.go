// Package perftest builds ib_write_bw command lines and extracts the
// bandwidth average from the tool's free-form report.
package perftest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/perflab/linksweep/internal/remote"
	"github.com/perflab/linksweep/pkg/perftest/spec"
)

// ServerLogPath returns the deterministic remote log path for a server
// bound to dev/port, rendezvousing on tcpPort. Keying the name on all
// three keeps concurrent links in one run from clobbering each other.
func ServerLogPath(dev string, port, tcpPort int) string {
	return fmt.Sprintf("%s/ib_write_bw_%s_p%d_%d.log", spec.ServerLogDir, dev, port, tcpPort)
}

// ServerCommand returns the remote command that launches an ib_write_bw
// server in the background, detached from the invoking shell, and prints
// its PID. The server runs until explicitly killed.
func ServerCommand(dev string, port, tcpPort int, logPath string) string {
	inner := fmt.Sprintf(
		"sudo -n ib_write_bw -d %s -i %d -p %d --report_gbits --run_infinitely > %s 2>&1 & echo $!",
		dev, port, tcpPort, logPath)
	return "bash -lc " + remote.ShellQuote(inner)
}

// ClientCommand returns the remote command that runs an ib_write_bw
// client against serverAddr for the given number of seconds. Stderr is
// folded into stdout so the whole report arrives on one stream.
func ClientCommand(dev string, port int, serverAddr string, tcpPort, durationSec int) string {
	inner := fmt.Sprintf(
		"sudo -n ib_write_bw -d %s -i %d -p %d %s --report_gbits -D %d 2>&1",
		dev, port, tcpPort, serverAddr, durationSec)
	return "bash -lc " + remote.ShellQuote(inner)
}

// StopCommand returns the remote command that force-kills a PID. It
// always exits zero so cleanup can never fail loudly.
func StopCommand(pid int) string {
	return fmt.Sprintf("sudo -n kill -9 %d >/dev/null 2>&1 || true", pid)
}

// KillAllCommand returns the broad fallback that terminates every
// ib_write_bw process on a host, used as a last resort during cleanup.
func KillAllCommand() string {
	return "sudo -n pkill -f ib_write_bw >/dev/null 2>&1 || true"
}

// ParseBWAverage extracts the bandwidth average in Gb/s from a completed
// run's report. It returns false when the report contains no parseable
// value; that is an expected outcome (failed run, truncated output), not
// an error.
func ParseBWAverage(output string) (float64, bool) {
	lines := strings.Split(output, "\n")

	headerIdx := -1
	for i, line := range lines {
		if strings.Contains(line, spec.BWAverageMarker) {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 {
		return 0, false
	}

	end := headerIdx + spec.ReportScanWindow
	if end > len(lines) {
		end = len(lines)
	}
	for _, line := range lines[headerIdx+1 : end] {
		row := strings.TrimSpace(line)
		if row == "" || isSeparator(row) {
			continue
		}
		fields := strings.Fields(row)
		if len(fields) < 4 {
			continue
		}
		if bw, err := strconv.ParseFloat(fields[3], 64); err == nil {
			return bw, true
		}
	}
	return 0, false
}

// isSeparator reports whether row consists only of dashes and spaces.
func isSeparator(row string) bool {
	for _, r := range row {
		if r != '-' && r != ' ' {
			return false
		}
	}
	return true
}

// Tail returns the last n lines of output, for failure diagnostics.
func Tail(output string, n int) string {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
