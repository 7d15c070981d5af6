// Package registry holds the authoritative in-memory set of ring nodes.
// Writers always swap in a freshly built slice, so a reader that grabbed
// the current set keeps iterating it safely without holding the lock.
package registry

import (
	"log/slog"
	"sort"
	"sync"

	"ozzus/ring-exporter/internal/domain"
)

type Registry struct {
	log *slog.Logger

	mu    sync.RWMutex
	nodes []domain.RingNode
}

func New(log *slog.Logger) *Registry {
	return &Registry{log: log}
}

// ReplaceAll atomically swaps the node set after a directory sync. Channel
// status carries over for hostnames that survive the swap, new nodes start
// out unknown. Duplicate hostnames are dropped.
func (r *Registry) ReplaceAll(nodes []domain.RingNode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prior := make(map[string]domain.ChannelStatus, len(r.nodes))
	for _, n := range r.nodes {
		prior[n.Hostname] = n.Status
	}

	fresh := make([]domain.RingNode, 0, len(nodes))
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if _, dup := seen[n.Hostname]; dup {
			r.log.Warn("duplicate node in directory listing", "host", n.Hostname)
			continue
		}
		seen[n.Hostname] = struct{}{}

		if status, ok := prior[n.Hostname]; ok {
			n.Status = status
		} else {
			n.Status = domain.ChannelUnknown
		}
		fresh = append(fresh, n)
	}

	r.nodes = fresh
}

// UpdateStatus records a channel status change for one node. Missing
// hostnames are ignored. The node slice is cloned before mutation so
// concurrent readers never observe the change mid-iteration.
func (r *Registry) UpdateStatus(hostname string, status domain.ChannelStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, n := range r.nodes {
		if n.Hostname != hostname {
			continue
		}
		if n.Status == status {
			return
		}

		fresh := make([]domain.RingNode, len(r.nodes))
		copy(fresh, r.nodes)
		fresh[i].Status = status
		r.nodes = fresh
		return
	}
}

// snapshot returns the current node slice. Writers never mutate a
// published slice, so callers may read it without further locking.
func (r *Registry) snapshot() []domain.RingNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes
}

// Nodes returns a copy of the full node set.
func (r *Registry) Nodes() []domain.RingNode {
	nodes := r.snapshot()
	out := make([]domain.RingNode, len(nodes))
	copy(out, nodes)
	return out
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	return len(r.snapshot())
}

// HealthyCount returns how many nodes currently have a healthy channel.
func (r *Registry) HealthyCount() int {
	n := 0
	for _, node := range r.snapshot() {
		if node.Status == domain.ChannelHealthy {
			n++
		}
	}
	return n
}

// Hostnames returns the hostnames of every registered node, sorted.
func (r *Registry) Hostnames() []string {
	nodes := r.snapshot()
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Hostname)
	}
	sort.Strings(out)
	return out
}

// Filter returns nodes matching every supplied predicate. With healthyOnly
// set, nodes without a healthy channel are excluded.
func (r *Registry) Filter(filters domain.Filters, healthyOnly bool) []domain.RingNode {
	nodes := r.snapshot()

	out := make([]domain.RingNode, 0, len(nodes))
	for _, n := range nodes {
		if healthyOnly && n.Status != domain.ChannelHealthy {
			continue
		}
		if !n.Matches(filters) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Resolve picks the set of nodes a probe will run from: healthy nodes
// matching the filters, reduced to limit. Multi-value filters switch the
// draw to balanced sampling across the groups they induce.
func (r *Registry) Resolve(filters domain.Filters, limit int) []domain.RingNode {
	eligible := r.Filter(filters, true)
	if limit <= 0 || limit >= len(eligible) {
		return eligible
	}

	if fields := filters.MultiValueFields(); len(fields) > 0 {
		return balancedSample(eligible, limit, fields)
	}
	return uniformSample(eligible, limit)
}

// DistinctValues lists, per filter dimension, the values present on nodes
// with a healthy channel. Used to populate selection UIs.
func (r *Registry) DistinctValues() map[string][]string {
	healthy := r.Filter(nil, true)

	sets := make(map[string]map[string]struct{}, len(domain.FilterFields))
	for _, field := range domain.FilterFields {
		sets[field] = make(map[string]struct{})
	}
	for _, n := range healthy {
		for _, field := range domain.FilterFields {
			if v := n.FieldValue(field); v != "" {
				sets[field][v] = struct{}{}
			}
		}
	}

	out := make(map[string][]string, len(sets))
	for field, vals := range sets {
		list := make([]string, 0, len(vals))
		for v := range vals {
			list = append(list, v)
		}
		sort.Strings(list)
		out[field] = list
	}
	return out
}
