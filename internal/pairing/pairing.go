// Package pairing computes the set of RDMA interfaces usable on both
// hosts of a sweep and resolves the server-side address for each.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jellydator/ttlcache/v3"

	"github.com/perflab/linksweep/internal/devmap"
	"github.com/perflab/linksweep/internal/remote"
	"github.com/perflab/linksweep/pkg/perftest/spec"
)

// ErrNoCommonLinks is returned when the two hosts share no usable RDMA
// interface name. It is a fatal condition: there is nothing to measure.
var ErrNoCommonLinks = errors.New("no common RDMA interfaces between server and peer")

// addrCacheTTL bounds how long a resolved interface address is reused.
// Addresses are stable for far longer than one sweep; the TTL only keeps
// the cache from pinning stale state across very long sessions.
const addrCacheTTL = 5 * time.Minute

// Link is one interface confirmed present and up on both hosts, with the
// server-side address that forces traffic onto that physical path.
type Link struct {
	Netdev     string
	Server     devmap.Entry
	Peer       devmap.Entry
	ServerAddr string
}

// Pairer intersects device maps and resolves addresses through the given
// executor.
type Pairer struct {
	exec  remote.Executor
	addrs *ttlcache.Cache[string, string]
}

// New returns a Pairer that resolves addresses via exec.
func New(exec remote.Executor) *Pairer {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, string](addrCacheTTL),
	)
	go cache.Start()
	return &Pairer{
		exec:  exec,
		addrs: cache,
	}
}

// Pair computes the sorted intersection of interface names between the
// two filtered entry sets and resolves the server-side IPv4 address for
// each. Interfaces whose address cannot be resolved are dropped without
// error; an empty intersection fails with ErrNoCommonLinks before any
// resolution is attempted.
func (p *Pairer) Pair(ctx context.Context, serverHost string, server, peer []devmap.Entry) ([]Link, error) {
	srvByNetdev := byNetdev(server)
	peerByNetdev := byNetdev(peer)

	var common []string
	for netdev := range srvByNetdev {
		if _, ok := peerByNetdev[netdev]; ok {
			common = append(common, netdev)
		}
	}
	if len(common) == 0 {
		return nil, ErrNoCommonLinks
	}
	// Sorted names keep link ordering, port assignment and result order
	// reproducible across runs.
	sort.Strings(common)

	var links []Link
	for _, netdev := range common {
		addr, err := p.serverAddr(ctx, serverHost, netdev)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug("dropping interface without a resolvable address",
				"host", serverHost, "netdev", netdev, "error", err)
			continue
		}
		links = append(links, Link{
			Netdev:     netdev,
			Server:     srvByNetdev[netdev],
			Peer:       peerByNetdev[netdev],
			ServerAddr: addr,
		})
	}
	return links, nil
}

// serverAddr resolves the first IPv4 address bound to netdev on host,
// consulting the cache first.
func (p *Pairer) serverAddr(ctx context.Context, host, netdev string) (string, error) {
	key := host + "/" + netdev
	if item := p.addrs.Get(key); item != nil {
		return item.Value(), nil
	}

	cmd := fmt.Sprintf(
		"ip -4 -o addr show dev %s | awk '{print $4}' | cut -d/ -f1 | head -n1",
		remote.ShellQuote(netdev))
	rctx, cancel := context.WithTimeout(ctx, spec.AddrTimeout)
	defer cancel()

	res, err := p.exec.Run(rctx, host, cmd)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("address lookup exited %d: %s", res.ExitCode, res.Stderr)
	}
	addr := res.Stdout
	if addr == "" {
		return "", fmt.Errorf("no IPv4 address on %s", netdev)
	}
	p.addrs.Set(key, addr, ttlcache.DefaultTTL)
	return addr, nil
}

// byNetdev builds a last-wins lookup from interface name to entry. A
// well-behaved listing never repeats a name; if one does, the later entry
// silently replaces the earlier.
func byNetdev(entries []devmap.Entry) map[string]devmap.Entry {
	m := make(map[string]devmap.Entry, len(entries))
	for _, e := range entries {
		m[e.Netdev] = e
	}
	return m
}
