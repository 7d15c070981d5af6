// Package probe runs ping commands on ring nodes over their multiplexed
// SSH channels and reduces the heterogeneous outcomes into a uniform
// result set.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"ozzus/ring-exporter/internal/config"
	"ozzus/ring-exporter/internal/domain"
	"ozzus/ring-exporter/internal/execx"
)

// ChannelSource is the view of the session layer the executor needs: the
// current status gate and the multiplexing socket for each hostname.
type ChannelSource interface {
	Status(hostname string) domain.ChannelStatus
	ControlPath(hostname string) string
}

type Executor struct {
	log      *slog.Logger
	runner   execx.Runner
	cfg      *config.Config
	channels ChannelSource
}

func NewExecutor(log *slog.Logger, runner execx.Runner, cfg *config.Config, channels ChannelSource) *Executor {
	return &Executor{
		log:      log,
		runner:   runner,
		cfg:      cfg,
		channels: channels,
	}
}

// Probe pings target from every node concurrently, bounded by the probe
// worker pool. Every node yields a result: failures are captured as data,
// never aborting sibling probes. Results keep the order of nodes.
func (e *Executor) Probe(ctx context.Context, target string, nodes []domain.RingNode) domain.ResultSet {
	results := make([]domain.ProbeResult, len(nodes))

	workers := e.cfg.Pools.ProbeWorkers
	if workers <= 0 {
		workers = 1
	}

	p := pool.New().WithMaxGoroutines(workers)
	for i, node := range nodes {
		i, node := i, node
		p.Go(func() {
			results[i] = e.probeNode(ctx, node, target)
		})
	}
	p.Wait()

	return domain.ResultSet{
		Target:  target,
		Results: results,
	}
}

func (e *Executor) probeNode(ctx context.Context, node domain.RingNode, target string) domain.ProbeResult {
	result := domain.ProbeResult{
		Node:   node,
		Target: target,
	}

	if status := e.channels.Status(node.Hostname); status != domain.ChannelHealthy {
		result.Status = domain.ProbeChannelUnavailable
		result.Error = fmt.Sprintf("ssh channel is %s", status)
		return result
	}

	started := time.Now()
	output, err := e.runRemotePing(ctx, node.Hostname, target)
	result.Duration = time.Since(started)

	result.PacketsSent, result.PacketsRecv = parseSummary(output, e.cfg.Ping.Count)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = domain.ProbeSSHTimeout
		result.Error = "ssh command timed out"
		e.log.Warn("SSH ping timed out", "host", node.Hostname, "target", target)

	case err != nil:
		result.Status = domain.ProbePingError
		result.Error = commandError(output, err)
		e.log.Warn("ping command failed", "host", node.Hostname, "target", target, "error", err)

	default:
		if rtt := parseRTT(output); rtt != nil {
			result.Status = domain.ProbeOK
			result.RTT = rtt
		} else {
			result.Status = domain.ProbeNoRTT
			result.Error = "no rtt summary in ping output"
			e.log.Warn("no RTT output in ping", "host", node.Hostname, "target", target)
		}
	}

	return result
}

// runRemotePing executes ping on the node through its control socket.
// Output is stdout+stderr combined; the command timeout folds into a
// DeadlineExceeded error the way the caller can classify.
func (e *Executor) runRemotePing(ctx context.Context, hostname, target string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.GetCommandTimeout())
	defer cancel()

	args := []string{
		"-o", "BatchMode=yes",
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(e.cfg.GetConnectTimeout().Seconds())),
		"-o", "StrictHostKeyChecking=accept-new",
	}
	if e.cfg.SSH.KeyPath != "" {
		args = append(args, "-i", e.cfg.SSH.KeyPath)
	}
	args = append(args,
		"-l", e.cfg.SSH.Username,
		"-o", "ControlPath="+e.channels.ControlPath(hostname),
		hostname,
		fmt.Sprintf("ping -c%d -W%d %s", e.cfg.Ping.Count, e.cfg.Ping.Timeout, target),
	)

	e.log.Debug("running SSH ping", "host", hostname, "target", target)
	output, err := e.runner.CombinedOutput(cctx, "ssh", args...)
	if cctx.Err() != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		err = context.DeadlineExceeded
	}
	return output, err
}

// commandError condenses a failed command into one line for the result.
func commandError(output string, err error) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return err.Error()
}
