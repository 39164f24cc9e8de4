// Package results defines the per-link and per-run result records and
// their terminal rendering.
package results

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// LinkResult is the terminal, immutable record of one link's
// measurement. Records appear in the final list in link-processing
// order.
type LinkResult struct {
	// Netdev is the shared interface name the link was paired on.
	Netdev string
	// ServerDev and PeerDev are the device:port labels on each side.
	ServerDev string
	PeerDev   string
	// ServerAddr is the server-side address the client connected to.
	ServerAddr string
	// BandwidthGbps is the measured bandwidth average. Only meaningful
	// when OK is true.
	BandwidthGbps float64
	// OK indicates whether a bandwidth value was obtained.
	OK bool
	// OutputTail holds the tail of the client output, retained only on
	// failure for diagnostics.
	OutputTail string `json:",omitempty" bigquery:"-"`
}

// SweepResult is the archival record of one whole run.
type SweepResult struct {
	// GitShortCommit is the Git commit (short form) of the running code.
	GitShortCommit string
	// Version is the symbolic version of the running code.
	Version string

	// RunID uniquely identifies this sweep.
	RunID string
	// ServerHost ran the ib_write_bw servers; PeerHost ran the clients.
	ServerHost string
	PeerHost   string
	// StartTime and EndTime delimit the whole sweep.
	StartTime time.Time
	EndTime   time.Time
	// Links holds one record per paired link, in test order.
	Links []LinkResult
}

// Bandwidth renders the bandwidth column value for a link, using FAIL as
// the failure marker.
func (r LinkResult) Bandwidth() string {
	if !r.OK {
		return "FAIL"
	}
	return fmt.Sprintf("%.2f", r.BandwidthGbps)
}

// Table writes an aligned results table to w.
func Table(w io.Writer, links []LinkResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NETDEV\tSERVER DEV\tSERVER IP\tPEER DEV\tBW AVG [Gb/s]")
	for _, r := range links {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Netdev, r.ServerDev, r.ServerAddr, r.PeerDev, r.Bandwidth())
	}
	return tw.Flush()
}
