package sweep_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/perflab/linksweep/internal/devmap"
	"github.com/perflab/linksweep/internal/pairing"
	"github.com/perflab/linksweep/internal/remote"
	"github.com/perflab/linksweep/pkg/results"
	"github.com/perflab/linksweep/pkg/sweep"
)

const clientReport = ` #bytes     #iterations    BW peak[Gb/sec]    BW average[Gb/sec]   MsgRate[Mpps]
---------------------------------------------------------------------------------------
 2 1000 0 912.45 912.45 0.000000
`

// scriptedExecutor plays the remote side of a sweep: it hands out PIDs
// for server starts, serves a canned report for client runs and records
// every termination command.
type scriptedExecutor struct {
	failServerFor string             // device whose server start fails
	cancel        context.CancelFunc // if set, invoked during the first client run

	nextPID    int
	serverCmds []string
	killedPIDs []int
	pkills     int
}

func (e *scriptedExecutor) Run(_ context.Context, _, command string) (remote.Result, error) {
	switch {
	case strings.Contains(command, "--run_infinitely"):
		e.serverCmds = append(e.serverCmds, command)
		if e.failServerFor != "" && strings.Contains(command, e.failServerFor) {
			return remote.Result{ExitCode: 1, Stderr: "Couldn't get context for the device"}, nil
		}
		e.nextPID++
		return remote.Result{Stdout: strconv.Itoa(4000 + e.nextPID)}, nil
	case strings.Contains(command, "-D "):
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		return remote.Result{Stdout: clientReport}, nil
	case strings.Contains(command, "kill -9"):
		pid, err := strconv.Atoi(strings.Fields(command)[4])
		if err != nil {
			return remote.Result{ExitCode: 1}, nil
		}
		e.killedPIDs = append(e.killedPIDs, pid)
		return remote.Result{}, nil
	case strings.Contains(command, "pkill"):
		e.pkills++
		return remote.Result{}, nil
	}
	return remote.Result{ExitCode: 127, Stderr: "unexpected command"}, nil
}

// quietEmitter silences progress output in tests.
type quietEmitter struct{}

func (quietEmitter) OnLinkStart(int, int, string) {}

func (quietEmitter) OnProgress() {}

func (quietEmitter) OnLinkResult(results.LinkResult) {}

func (quietEmitter) OnFailureOutput(string, string) {}

func testLinks() []pairing.Link {
	var links []pairing.Link
	for i, netdev := range []string{"rdma0", "rdma1", "rdma2"} {
		links = append(links, pairing.Link{
			Netdev: netdev,
			Server: devmap.Entry{
				Device: "mlx5_" + strconv.Itoa(i), Port: 1, Netdev: netdev, State: "Up",
			},
			Peer: devmap.Entry{
				Device: "mlx5_" + strconv.Itoa(4+i), Port: 1, Netdev: netdev, State: "Up",
			},
			ServerAddr: "192.168.1" + strconv.Itoa(i) + ".4",
		})
	}
	return links
}

func newSweeper(exec remote.Executor) *sweep.Sweeper {
	return sweep.New(exec, sweep.Config{
		ServerHost: "server01",
		PeerHost:   "peer01",
		Duration:   time.Second,
		Warmup:     time.Millisecond,
		Emitter:    quietEmitter{},
	})
}

func TestRun(t *testing.T) {
	exec := &scriptedExecutor{}
	records, err := newSweeper(exec).Run(context.Background(), testLinks())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, rec := range records {
		if !rec.OK {
			t.Errorf("record %d failed: %+v", i, rec)
		}
		if rec.BandwidthGbps != 912.45 {
			t.Errorf("record %d bandwidth = %v", i, rec.BandwidthGbps)
		}
	}
	// Records keep the sorted link order regardless of timing.
	for i, netdev := range []string{"rdma0", "rdma1", "rdma2"} {
		if records[i].Netdev != netdev {
			t.Errorf("records[%d].Netdev = %q, want %q", i, records[i].Netdev, netdev)
		}
	}
}

func TestRun_CoordinationPorts(t *testing.T) {
	exec := &scriptedExecutor{}
	if _, err := newSweeper(exec).Run(context.Background(), testLinks()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(exec.serverCmds) != 3 {
		t.Fatalf("expected 3 server starts, got %d", len(exec.serverCmds))
	}
	// Link i uses base port + i; the default base is 18515.
	for i, cmd := range exec.serverCmds {
		want := "-p " + strconv.Itoa(18515+i)
		if !strings.Contains(cmd, want) {
			t.Errorf("server command %d missing %q: %s", i, want, cmd)
		}
	}
}

func TestRun_ServerStartFailureDoesNotAbort(t *testing.T) {
	// The middle link's server never comes up.
	exec := &scriptedExecutor{failServerFor: "mlx5_1"}
	records, err := newSweeper(exec).Run(context.Background(), testLinks())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if !records[0].OK || !records[2].OK {
		t.Errorf("expected links 1 and 3 to succeed: %+v", records)
	}
	if records[1].OK {
		t.Errorf("expected link 2 to fail: %+v", records[1])
	}
	if !strings.Contains(records[1].OutputTail, "Couldn't get context") {
		t.Errorf("failure record missing diagnostics: %+v", records[1])
	}
}

func TestRun_CleansUpAllServers(t *testing.T) {
	exec := &scriptedExecutor{}
	if _, err := newSweeper(exec).Run(context.Background(), testLinks()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, pid := range []int{4001, 4002, 4003} {
		if !containsPID(exec.killedPIDs, pid) {
			t.Errorf("pid %d never received a termination attempt", pid)
		}
	}
	if exec.pkills != 1 {
		t.Errorf("expected exactly one fallback pkill, got %d", exec.pkills)
	}
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The context is cancelled while the first client is running; the
	// remaining links must not be attempted, and every started server
	// must still be terminated.
	exec := &scriptedExecutor{cancel: cancel}
	records, err := newSweeper(exec).Run(ctx, testLinks())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record before cancellation, got %d", len(records))
	}
	if len(exec.serverCmds) != 1 {
		t.Errorf("expected no further server starts after cancellation, got %d",
			len(exec.serverCmds))
	}
	if !containsPID(exec.killedPIDs, 4001) {
		t.Error("started server was not terminated after cancellation")
	}
	if exec.pkills != 1 {
		t.Errorf("expected exactly one fallback pkill, got %d", exec.pkills)
	}
}

func TestRun_NoLinks(t *testing.T) {
	exec := &scriptedExecutor{}
	records, err := newSweeper(exec).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %+v", records)
	}
	if exec.pkills != 1 {
		t.Errorf("cleanup must run even for an empty sweep, got %d pkills", exec.pkills)
	}
}

func containsPID(pids []int, pid int) bool {
	for _, p := range pids {
		if p == pid {
			return true
		}
	}
	return false
}
