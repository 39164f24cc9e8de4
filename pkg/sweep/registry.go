package sweep

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/perflab/linksweep/internal/remote"
	"github.com/perflab/linksweep/pkg/perftest"
	"github.com/perflab/linksweep/pkg/perftest/spec"
)

// registry tracks every server PID started on the server host during a
// run so that cleanup can terminate them all on any exit path. It is
// only ever touched by the goroutine driving the sweep, so no locking is
// needed.
type registry struct {
	exec   remote.Executor
	host   string
	pids   []int
	closed bool
}

func newRegistry(exec remote.Executor, host string) *registry {
	return &registry{exec: exec, host: host}
}

func (r *registry) add(pid int) {
	r.pids = append(r.pids, pid)
}

// Close sends one termination attempt to every registered PID and then
// issues a broad kill-by-name fallback for the test tool on the server
// host. It is idempotent and never fails; it uses fresh contexts so
// cleanup still runs after the run's context has been cancelled.
func (r *registry) Close() {
	if r.closed {
		return
	}
	r.closed = true
	for _, pid := range r.pids {
		stopProcess(r.exec, r.host, pid)
	}
	ctx, cancel := context.WithTimeout(context.Background(), spec.StopTimeout)
	defer cancel()
	if _, err := r.exec.Run(ctx, r.host, perftest.KillAllCommand()); err != nil {
		log.Debug("fallback kill failed", "host", r.host, "error", err)
	}
}

// stopProcess is a best-effort forced termination. The remote process
// may well have exited already, so failures are swallowed; this must be
// safe to call unconditionally during cleanup.
func stopProcess(exec remote.Executor, host string, pid int) {
	ctx, cancel := context.WithTimeout(context.Background(), spec.StopTimeout)
	defer cancel()
	if _, err := exec.Run(ctx, host, perftest.StopCommand(pid)); err != nil {
		log.Debug("stop failed", "host", host, "pid", pid, "error", err)
	}
}
