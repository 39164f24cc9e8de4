// Package inventory looks up candidate peer hosts from the Slurm
// controller the sweep runs on.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/perflab/linksweep/internal/remote"
)

// IdleNodes returns the sorted, deduplicated hostnames of idle nodes,
// optionally restricted to a partition, with exclude removed. Commands
// run through exec on the local host.
func IdleNodes(ctx context.Context, exec remote.Executor, partition, exclude string) ([]string, error) {
	cmd := `sinfo -h -o "%N %t"`
	if partition != "" {
		cmd += " -p " + remote.ShellQuote(partition)
	}
	res, err := exec.Run(ctx, "", cmd)
	if err != nil {
		return nil, fmt.Errorf("sinfo: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("sinfo exited %d: %s", res.ExitCode, res.Stderr)
	}

	seen := map[string]bool{}
	var nodes []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		nodelist, state := fields[0], strings.ToLower(fields[1])
		if !strings.HasPrefix(state, "idle") {
			continue
		}
		expanded, err := expandNodeList(ctx, exec, nodelist)
		if err != nil {
			return nil, err
		}
		for _, node := range expanded {
			if node == exclude || seen[node] {
				continue
			}
			seen[node] = true
			nodes = append(nodes, node)
		}
	}
	sort.Strings(nodes)
	log.Debug("idle node lookup", "partition", partition, "count", len(nodes))
	return nodes, nil
}

// expandNodeList turns a compressed Slurm node list (e.g. "node[01-04]")
// into individual hostnames.
func expandNodeList(ctx context.Context, exec remote.Executor, nodelist string) ([]string, error) {
	res, err := exec.Run(ctx, "", "scontrol show hostnames "+remote.ShellQuote(nodelist))
	if err != nil {
		return nil, fmt.Errorf("scontrol show hostnames %s: %w", nodelist, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("scontrol show hostnames %s exited %d: %s",
			nodelist, res.ExitCode, res.Stderr)
	}
	var nodes []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if node := strings.TrimSpace(line); node != "" {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}
