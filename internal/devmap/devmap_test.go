package devmap_test

import (
	"testing"

	"github.com/perflab/linksweep/internal/devmap"
)

const sampleListing = `
mlx5_0 port 1 ==> rdma0 (Up)
mlx5_1 port 1 ==> rdma1 (Down)
mlx5_2 port 1 ==> eth0 (Up)
mlx5_3 port 1 ==> ib0 (Up)

this line is not a mapping
mlx5_4 port ==> rdma4 (Up)
mlx5_5 port 2 ==> rdma5 (UP)
`

func TestParse(t *testing.T) {
	entries := devmap.Parse(sampleListing)
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d: %+v", len(entries), entries)
	}

	want := devmap.Entry{Device: "mlx5_0", Port: 1, Netdev: "rdma0", State: "Up"}
	if entries[0] != want {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[4].Port != 2 || entries[4].Netdev != "rdma5" {
		t.Errorf("unexpected last entry: %+v", entries[4])
	}
}

func TestParse_Empty(t *testing.T) {
	if entries := devmap.Parse(""); entries != nil {
		t.Errorf("expected no entries, got %+v", entries)
	}
	if entries := devmap.Parse("garbage\nmore garbage\n"); entries != nil {
		t.Errorf("expected no entries, got %+v", entries)
	}
}

func TestFilterUsable(t *testing.T) {
	entries := devmap.Parse(sampleListing)
	usable := devmap.FilterUsable(entries)

	// rdma1 is down and eth0 is not an RDMA netdev; rdma5 is up with a
	// case-variant state.
	if len(usable) != 3 {
		t.Fatalf("expected 3 usable entries, got %d: %+v", len(usable), usable)
	}
	wantNetdevs := []string{"rdma0", "ib0", "rdma5"}
	for i, netdev := range wantNetdevs {
		if usable[i].Netdev != netdev {
			t.Errorf("usable[%d].Netdev = %q, want %q", i, usable[i].Netdev, netdev)
		}
	}
}

func TestEntryLabel(t *testing.T) {
	e := devmap.Entry{Device: "mlx5_0", Port: 1, Netdev: "rdma0", State: "Up"}
	if e.Label() != "mlx5_0:1" {
		t.Errorf("unexpected label: %s", e.Label())
	}
}
