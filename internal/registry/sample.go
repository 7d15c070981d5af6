package registry

import (
	"math/rand"
	"sort"
	"strings"

	"ozzus/ring-exporter/internal/domain"
)

// groupKey joins the node's values for the grouping dimensions.
func groupKey(node domain.RingNode, fields []string) string {
	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = strings.ToLower(node.FieldValue(field))
	}
	return strings.Join(parts, "|")
}

// balancedSample draws round-robin across the groups induced by fields, so
// no group dominates the sample just by having more nodes. Each group is
// shuffled first, exhausted groups are skipped.
func balancedSample(nodes []domain.RingNode, limit int, fields []string) []domain.RingNode {
	if limit >= len(nodes) {
		out := make([]domain.RingNode, len(nodes))
		copy(out, nodes)
		return out
	}

	groups := make(map[string][]domain.RingNode)
	for _, n := range nodes {
		key := groupKey(n, fields)
		groups[key] = append(groups[key], n)
	}

	order := make([]string, 0, len(groups))
	for key := range groups {
		order = append(order, key)
	}
	sort.Strings(order)

	for _, key := range order {
		g := groups[key]
		rand.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
	}

	out := make([]domain.RingNode, 0, limit)
	for round := 0; len(out) < limit; round++ {
		drew := false
		for _, key := range order {
			g := groups[key]
			if round >= len(g) {
				continue
			}
			out = append(out, g[round])
			drew = true
			if len(out) == limit {
				break
			}
		}
		if !drew {
			break
		}
	}
	return out
}

// uniformSample is a random draw of size limit.
func uniformSample(nodes []domain.RingNode, limit int) []domain.RingNode {
	if limit >= len(nodes) {
		out := make([]domain.RingNode, len(nodes))
		copy(out, nodes)
		return out
	}

	out := make([]domain.RingNode, len(nodes))
	copy(out, nodes)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:limit]
}
