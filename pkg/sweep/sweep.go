// Package sweep sequences one isolated bandwidth test per paired link.
// Links run strictly one at a time: each measurement needs exclusive use
// of its physical path, and overlapping tests would contaminate the
// averages.
package sweep

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/perflab/linksweep/internal/metrics"
	"github.com/perflab/linksweep/internal/pairing"
	"github.com/perflab/linksweep/internal/remote"
	"github.com/perflab/linksweep/pkg/perftest"
	"github.com/perflab/linksweep/pkg/perftest/spec"
	"github.com/perflab/linksweep/pkg/results"
)

// Config holds the parameters of one sweep.
type Config struct {
	// ServerHost runs the ib_write_bw servers.
	ServerHost string
	// PeerHost runs the clients.
	PeerHost string
	// Duration is the length of each link's client run. Defaults to
	// spec.DefaultDuration.
	Duration time.Duration
	// BasePort is the first coordination port; link i uses BasePort + i.
	// Defaults to spec.BasePort.
	BasePort int
	// Warmup is the pause between server start and client launch.
	// Defaults to spec.WarmupDelay.
	Warmup time.Duration
	// Emitter receives progress callbacks. Defaults to HumanReadable.
	Emitter Emitter
}

// Sweeper drives the per-link test sequence over a remote executor.
type Sweeper struct {
	exec     remote.Executor
	config   Config
	emitter  Emitter
	registry *registry
}

// New returns a Sweeper for the given executor and configuration,
// filling in defaults for unset Config fields.
func New(exec remote.Executor, config Config) *Sweeper {
	if config.Duration == 0 {
		config.Duration = spec.DefaultDuration
	}
	if config.BasePort == 0 {
		config.BasePort = spec.BasePort
	}
	if config.Warmup == 0 {
		config.Warmup = spec.WarmupDelay
	}
	emitter := config.Emitter
	if emitter == nil {
		emitter = HumanReadable{}
	}
	return &Sweeper{
		exec:     exec,
		config:   config,
		emitter:  emitter,
		registry: newRegistry(exec, config.ServerHost),
	}
}

// Run tests every link in order and returns one record per tested link,
// in the same order. A per-link failure is recorded and the sweep
// continues; only context cancellation stops the run early, in which
// case the records collected so far are returned along with ctx's error.
// Every server process started is terminated before Run returns, on
// every path.
func (s *Sweeper) Run(ctx context.Context, links []pairing.Link) ([]results.LinkResult, error) {
	defer s.registry.Close()

	var records []results.LinkResult
	for i, link := range links {
		if ctx.Err() != nil {
			return records, ctx.Err()
		}
		s.emitter.OnLinkStart(i, len(links), link.Netdev)

		rec := s.testLink(ctx, i, link)
		records = append(records, rec)
		s.emitter.OnLinkResult(rec)

		if rec.OK {
			metrics.LinksTested.WithLabelValues("ok").Inc()
			metrics.LinkBandwidth.WithLabelValues(rec.Netdev).Set(rec.BandwidthGbps)
		} else {
			metrics.LinksTested.WithLabelValues("fail").Inc()
			s.emitter.OnFailureOutput(rec.Netdev, rec.OutputTail)
		}
	}
	return records, nil
}

// testLink runs one link's test: allocate the coordination port, start
// the server, wait for it to warm up, run the client, and stop the
// server. The server stop is unconditional, whatever happened to the
// client.
func (s *Sweeper) testLink(ctx context.Context, index int, link pairing.Link) results.LinkResult {
	rec := results.LinkResult{
		Netdev:     link.Netdev,
		ServerDev:  link.Server.Label(),
		PeerDev:    link.Peer.Label(),
		ServerAddr: link.ServerAddr,
	}
	tcpPort := s.config.BasePort + index

	pid, logPath, err := s.startServer(ctx, link.Server, tcpPort)
	if err != nil {
		log.Error("server start failed", "netdev", link.Netdev, "error", err)
		rec.OutputTail = err.Error()
		return rec
	}
	s.registry.add(pid)
	defer stopProcess(s.exec, s.config.ServerHost, pid)
	log.Debug("server started", "netdev", link.Netdev, "pid", pid,
		"port", tcpPort, "log", logPath)

	// Give the server socket time to bind before the client connects.
	if err := sleepCtx(ctx, s.config.Warmup); err != nil {
		rec.OutputTail = err.Error()
		return rec
	}

	output, err := s.runClient(ctx, link, tcpPort)
	if err != nil {
		// Timeouts and transport failures fold into the diagnostic
		// output; the parser decides below whether anything usable came
		// back before the failure.
		output = strings.TrimSpace(output + "\n" + err.Error())
	}
	if bw, ok := perftest.ParseBWAverage(output); ok {
		rec.BandwidthGbps = bw
		rec.OK = true
		return rec
	}
	rec.OutputTail = perftest.Tail(output, spec.FailureTailLines)
	return rec
}

// runClient runs the client side of one link's test, emitting a progress
// tick every second while the remote call is in flight. The indicator
// goroutine is stopped and joined as soon as the call returns.
func (s *Sweeper) runClient(ctx context.Context, link pairing.Link, tcpPort int) (string, error) {
	cmd := perftest.ClientCommand(link.Peer.Device, link.Peer.Port,
		link.ServerAddr, tcpPort, int(s.config.Duration.Seconds()))

	// The timeout must exceed the run duration so the remote process can
	// finish and report on its own.
	rctx, cancel := context.WithTimeout(ctx, s.config.Duration+spec.ClientTimeoutSlack)
	defer cancel()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.emitter.OnProgress()
			}
		}
	}()

	res, err := s.exec.Run(rctx, s.config.PeerHost, cmd)
	close(stop)
	<-done

	metrics.RemoteCommands.WithLabelValues("client_run").Inc()
	return res.Output(), err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
