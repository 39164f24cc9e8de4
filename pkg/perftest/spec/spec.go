// Package spec contains constants for driving ib_write_bw sweeps.
package spec

import "time"

const (
	// BasePort is the first coordination TCP port used by a sweep. Link i
	// in sorted order uses BasePort + i, so ports never collide within a
	// run.
	BasePort = 18515

	// DefaultDuration is the default length of one link's client run.
	DefaultDuration = 10 * time.Second

	// WarmupDelay is the pause between starting the remote server and
	// launching the client, giving the server socket time to bind. There
	// is no readiness handshake in the tool, so this is a heuristic.
	WarmupDelay = 500 * time.Millisecond

	// ClientTimeoutSlack is added on top of the client run duration when
	// bounding the remote call, so the remote process can exit cleanly
	// before the transport gives up.
	ClientTimeoutSlack = 30 * time.Second

	// DiscoveryTimeout bounds the ibdev2netdev listing call on each host.
	DiscoveryTimeout = 30 * time.Second

	// AddrTimeout bounds one interface address resolution call.
	AddrTimeout = 15 * time.Second

	// ServerStartTimeout bounds the remote server launch call. The server
	// itself runs until stopped; this only covers the fork-and-echo-pid
	// step.
	ServerStartTimeout = 20 * time.Second

	// StopTimeout bounds one best-effort process termination call.
	StopTimeout = 10 * time.Second

	// ServerLogDir is where the remote server writes its output.
	ServerLogDir = "/tmp"

	// ReportScanWindow is how many lines past the bandwidth header are
	// scanned for the data row.
	ReportScanWindow = 10

	// FailureTailLines is how many trailing output lines are kept for
	// diagnostics when a link fails.
	FailureTailLines = 30

	// BWAverageMarker identifies the report header line preceding the
	// bandwidth average column.
	BWAverageMarker = "BW average[Gb/sec]"
)
