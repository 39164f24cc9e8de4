package sweep

import (
	"fmt"

	"github.com/perflab/linksweep/pkg/results"
)

// Emitter is an interface for reporting sweep progress to the operator.
type Emitter interface {
	// OnLinkStart is called before a link's test begins. index is the
	// zero-based position of the link in the sweep.
	OnLinkStart(index, total int, netdev string)
	// OnProgress is called periodically while a client run is in flight.
	OnProgress()
	// OnLinkResult is called with the finished record of a link.
	OnLinkResult(r results.LinkResult)
	// OnFailureOutput is called with the tail of the client output when a
	// link fails.
	OnFailureOutput(netdev, tail string)
}

// HumanReadable prints human-readable progress to stdout.
type HumanReadable struct{}

// OnLinkStart announces which link is being tested.
func (HumanReadable) OnLinkStart(index, total int, netdev string) {
	fmt.Printf("[%d/%d] testing %s...", index+1, total, netdev)
}

// OnProgress prints one dot per tick while the client runs.
func (HumanReadable) OnProgress() {
	fmt.Print(".")
}

// OnLinkResult prints the link's bandwidth or the failure marker.
func (HumanReadable) OnLinkResult(r results.LinkResult) {
	if r.OK {
		fmt.Printf(" %.2f Gb/s\n", r.BandwidthGbps)
		return
	}
	fmt.Println(" FAIL")
}

// OnFailureOutput dumps the failing client's output tail.
func (HumanReadable) OnFailureOutput(netdev, tail string) {
	fmt.Printf("\nFAIL %s - client output tail:\n\n%s\n\n", netdev, tail)
}
