package sweep

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/perflab/linksweep/internal/devmap"
	"github.com/perflab/linksweep/internal/metrics"
	"github.com/perflab/linksweep/pkg/perftest"
	"github.com/perflab/linksweep/pkg/perftest/spec"
)

// ServerStartError means the remote server process could not be
// launched. It carries the captured output for diagnostics. It is a
// per-link failure: the link is recorded as FAIL and the sweep moves on.
type ServerStartError struct {
	Host   string
	Stdout string
	Stderr string
	Err    error
}

func (e *ServerStartError) Error() string {
	msg := fmt.Sprintf("starting ib_write_bw server on %s failed", e.Host)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stdout != "" {
		msg += "\nstdout: " + e.Stdout
	}
	if e.Stderr != "" {
		msg += "\nstderr: " + e.Stderr
	}
	return msg
}

func (e *ServerStartError) Unwrap() error { return e.Err }

// startServer launches an ib_write_bw server for entry on the server
// host, rendezvousing on tcpPort, and returns the remote PID and the
// server-side log path.
func (s *Sweeper) startServer(ctx context.Context, entry devmap.Entry, tcpPort int) (int, string, error) {
	logPath := perftest.ServerLogPath(entry.Device, entry.Port, tcpPort)
	cmd := perftest.ServerCommand(entry.Device, entry.Port, tcpPort, logPath)

	rctx, cancel := context.WithTimeout(ctx, spec.ServerStartTimeout)
	defer cancel()
	res, err := s.exec.Run(rctx, s.config.ServerHost, cmd)
	metrics.RemoteCommands.WithLabelValues("server_start").Inc()
	if err != nil {
		return 0, "", &ServerStartError{Host: s.config.ServerHost, Err: err}
	}
	if res.ExitCode != 0 {
		return 0, "", &ServerStartError{
			Host:   s.config.ServerHost,
			Stdout: res.Stdout,
			Stderr: res.Stderr,
		}
	}
	pid, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		return 0, "", &ServerStartError{
			Host:   s.config.ServerHost,
			Stdout: res.Stdout,
			Stderr: res.Stderr,
			Err:    fmt.Errorf("unparsable server pid %q", res.Stdout),
		}
	}
	return pid, logPath, nil
}
