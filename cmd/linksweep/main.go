// linksweep measures per-interface RDMA bandwidth between two hosts by
// running one isolated ib_write_bw test per interface present on both.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/perflab/linksweep/internal/devmap"
	"github.com/perflab/linksweep/internal/inventory"
	"github.com/perflab/linksweep/internal/pairing"
	"github.com/perflab/linksweep/internal/persistence"
	"github.com/perflab/linksweep/internal/remote"
	"github.com/perflab/linksweep/pkg/perftest/spec"
	"github.com/perflab/linksweep/pkg/results"
	"github.com/perflab/linksweep/pkg/sweep"
	"github.com/perflab/linksweep/pkg/version"
)

var (
	flagServer     = flag.String("server", "", "Host that runs the ib_write_bw servers")
	flagPeer       = flag.String("peer", "", "Host that runs the clients; empty to pick an idle node")
	flagPartition  = flag.String("partition", "", "Slurm partition for the idle-node lookup")
	flagDuration   = flag.Duration("duration", spec.DefaultDuration, "Length of each link's client run")
	flagBasePort   = flag.Int("base-port", spec.BasePort, "First coordination TCP port")
	flagDataDir    = flag.String("datadir", "", "Directory to archive sweep records in; empty disables archival")
	flagSSHOptions = flag.String("ssh-options", "", "Extra ssh options for remote commands")
	flagVerbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	log.SetReportTimestamp(true)
	if *flagVerbose {
		log.SetLevel(log.DebugLevel)
	}

	if *flagServer == "" {
		log.Fatal("-server is required")
	}

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	// An interrupt or termination signal cancels the run; the sweep
	// observes the cancellation between links and inside every remote
	// call, terminates all spawned servers and returns what it has.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ssh, err := remote.NewSSH(*flagSSHOptions)
	rtx.Must(err, "invalid -ssh-options")

	peer := *flagPeer
	if peer == "" {
		peer, err = selectIdlePeer(ctx, *flagPartition, *flagServer)
		rtx.Must(err, "peer selection failed")
	}

	runID := uuid.NewString()
	log.Info("starting sweep", "version", version.Version, "run", runID,
		"server", *flagServer, "peer", peer)

	serverEntries, err := discover(ctx, ssh, *flagServer)
	rtx.Must(err, "device discovery failed on %s", *flagServer)
	peerEntries, err := discover(ctx, ssh, peer)
	rtx.Must(err, "device discovery failed on %s", peer)

	links, err := pairing.New(ssh).Pair(ctx, *flagServer, serverEntries, peerEntries)
	rtx.Must(err, "pairing failed")
	if len(links) == 0 {
		log.Fatal("no paired links with resolvable addresses to test")
	}

	sweeper := sweep.New(ssh, sweep.Config{
		ServerHost: *flagServer,
		PeerHost:   peer,
		Duration:   *flagDuration,
		BasePort:   *flagBasePort,
	})
	start := time.Now()
	records, runErr := sweeper.Run(ctx, links)

	fmt.Println("\nResults:")
	fmt.Println()
	rtx.Must(results.Table(os.Stdout, records), "failed to render results")

	if *flagDataDir != "" {
		archive(*flagDataDir, runID, peer, start, records)
	}

	if runErr != nil {
		log.Fatal("sweep interrupted", "error", runErr)
	}
}

// discover lists and filters the device mapping on host. A failure here
// is fatal: without device data there is nothing to pair.
func discover(ctx context.Context, exec remote.Executor, host string) ([]devmap.Entry, error) {
	rctx, cancel := context.WithTimeout(ctx, spec.DiscoveryTimeout)
	defer cancel()
	res, err := exec.Run(rctx, host, "ibdev2netdev")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("ibdev2netdev on %s exited %d: %s", host, res.ExitCode, res.Stderr)
	}
	return devmap.FilterUsable(devmap.Parse(res.Stdout)), nil
}

// selectIdlePeer asks Slurm for idle nodes and lets the operator pick
// one by number or name.
func selectIdlePeer(ctx context.Context, partition, exclude string) (string, error) {
	nodes, err := inventory.IdleNodes(ctx, remote.Local{}, partition, exclude)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", errors.New("no idle nodes found")
	}

	fmt.Println("Idle nodes:")
	for i, node := range nodes {
		fmt.Printf("%d. %s\n", i+1, node)
	}
	fmt.Print("select peer by number or hostname: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", errors.New("no peer selected")
	}
	sel := strings.TrimSpace(scanner.Text())
	if idx, err := strconv.Atoi(sel); err == nil {
		if idx < 1 || idx > len(nodes) {
			return "", fmt.Errorf("selection %d out of range", idx)
		}
		return nodes[idx-1], nil
	}
	for _, node := range nodes {
		if node == sel {
			return node, nil
		}
	}
	return "", fmt.Errorf("%q is not in the idle node list", sel)
}

// archive writes the sweep record to datadir. Archival failures are
// logged, not fatal: the operator already has the table.
func archive(datadir, runID, peer string, start time.Time, records []results.LinkResult) {
	record := results.SweepResult{
		GitShortCommit: prometheusx.GitShortCommit,
		Version:        version.Version,
		RunID:          runID,
		ServerHost:     *flagServer,
		PeerHost:       peer,
		StartTime:      start,
		EndTime:        time.Now(),
		Links:          records,
	}
	path, err := persistence.WriteDataFile(datadir, "linksweep", "sweep", runID, record)
	if err != nil {
		log.Error("failed to archive sweep record", "run", runID, "error", err)
		return
	}
	log.Info("sweep record archived", "path", path)
}
