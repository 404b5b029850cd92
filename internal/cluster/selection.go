package cluster

import "sort"

// Quorum set selection is deterministic and port-derived: the W alive
// followers with the smallest ports replicate synchronously, the R alive
// followers with the largest ports serve reads, and everything alive outside
// the sync set replicates asynchronously. A follower can sit in both the
// sync and read sets when W + R exceeds the alive count.

// SyncFollowers returns the w alive followers with the smallest ports.
func SyncFollowers(alive []NodeDescriptor, w int) []NodeDescriptor {
	sorted := sortByPort(alive, false)
	if w > len(sorted) {
		w = len(sorted)
	}
	return sorted[:w]
}

// AsyncFollowers returns the alive followers outside the sync set.
func AsyncFollowers(alive []NodeDescriptor, w int) []NodeDescriptor {
	sorted := sortByPort(alive, false)
	if w > len(sorted) {
		w = len(sorted)
	}
	return sorted[w:]
}

// ReadFollowers returns the r alive followers with the largest ports.
func ReadFollowers(alive []NodeDescriptor, r int) []NodeDescriptor {
	sorted := sortByPort(alive, true)
	if r > len(sorted) {
		r = len(sorted)
	}
	return sorted[:r]
}

// URLs projects a descriptor list to its base URLs, preserving order.
func URLs(nodes []NodeDescriptor) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.URL
	}
	return out
}

func sortByPort(nodes []NodeDescriptor, descending bool) []NodeDescriptor {
	sorted := make([]NodeDescriptor, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool {
		if descending {
			return sorted[i].Port > sorted[j].Port
		}
		return sorted[i].Port < sorted[j].Port
	})
	return sorted
}
