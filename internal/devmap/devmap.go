// Package devmap parses ibdev2netdev device-mapping listings into
// structured entries and filters them down to the interfaces a bandwidth
// sweep can actually use.
package devmap

import (
	"regexp"
	"strconv"
	"strings"
)

// lineRE matches one row of ibdev2netdev output, e.g.:
//
//	mlx5_0 port 1 ==> rdma0 (Up)
//
// Anything that does not match is skipped: the tool's output is not
// contractually stable line-by-line, so headers and noise must not be
// treated as errors.
var lineRE = regexp.MustCompile(`(?i)^(\S+)\s+port\s+(\d+)\s+==>\s+(\S+)\s+\((Up|Down)\)$`)

// rdmaPrefixes are the netdev name prefixes considered part of the RDMA
// interface family.
var rdmaPrefixes = []string{"rdma", "ib"}

// Entry is one row of a device-mapping listing: a physical device/port
// pair bound to an OS-visible network interface.
type Entry struct {
	// Device is the physical adapter identifier (e.g. "mlx5_0").
	Device string
	// Port is the port number on that device.
	Port int
	// Netdev is the logical network interface bound to Device:Port.
	Netdev string
	// State is the reported link state, "Up" or "Down".
	State string
}

// Up reports whether the entry's link state is up.
func (e Entry) Up() bool {
	return strings.EqualFold(e.State, "up")
}

// Label returns the device:port label used in results and log paths.
func (e Entry) Label() string {
	return e.Device + ":" + strconv.Itoa(e.Port)
}

// Parse extracts every well-formed mapping row from the given listing
// text, in input order. Malformed rows are ignored.
func Parse(text string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(text, "\n") {
		m := lineRE.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		port, err := strconv.Atoi(m[2])
		if err != nil {
			// Unreachable given the pattern, but do not crash on it.
			continue
		}
		entries = append(entries, Entry{
			Device: m[1],
			Port:   port,
			Netdev: m[3],
			State:  m[4],
		})
	}
	return entries
}

// FilterUsable keeps only entries that are up and whose netdev belongs to
// the RDMA interface family. Input order is preserved.
func FilterUsable(entries []Entry) []Entry {
	var usable []Entry
	for _, e := range entries {
		if e.Up() && isRDMANetdev(e.Netdev) {
			usable = append(usable, e)
		}
	}
	return usable
}

func isRDMANetdev(netdev string) bool {
	name := strings.ToLower(netdev)
	for _, prefix := range rdmaPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
