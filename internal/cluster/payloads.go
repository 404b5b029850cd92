package cluster

// Wire payloads exchanged between the coordinator, nodes, and registry.
// Everything is JSON over HTTP.

// Replication receipt statuses returned by a follower's /replicate.
// Only ReplicationAccepted counts as an ack when the leader tallies quorum;
// a rejected (stale) receipt still travels as HTTP 200.
const (
	ReplicationAccepted = "accepted"
	ReplicationRejected = "rejected"
)

// WriteRequest is the leader-bound write: the payload plus the sync and
// async follower URL sets computed by the coordinator.
type WriteRequest struct {
	Key            string   `json:"key" binding:"required"`
	Value          string   `json:"value"`
	SyncFollowers  []string `json:"sync_followers,omitempty"`
	AsyncFollowers []string `json:"async_followers,omitempty"`
}

// ReplicationResult summarizes one write's fan-out.
type ReplicationResult struct {
	SyncAcks    int      `json:"sync_acks"`
	SyncAckedBy []string `json:"sync_acked_by"`
	AsyncQueued int      `json:"async_queued"`
}

// WriteResponse is the leader's answer to a WriteRequest.
type WriteResponse struct {
	Key         string            `json:"key"`
	Value       string            `json:"value"`
	Version     uint64            `json:"version"`
	Replication ReplicationResult `json:"replication"`
}

// ReplicateRequest delivers one replicated entry to a follower.
type ReplicateRequest struct {
	Key     string `json:"key" binding:"required"`
	Value   string `json:"value"`
	Version uint64 `json:"version" binding:"required"`
	Source  string `json:"source"`
}

// ReplicateResponse reports whether the follower applied the entry or
// discarded it as stale.
type ReplicateResponse struct {
	Status  string `json:"status"`
	NodeID  string `json:"node_id"`
	Key     string `json:"key"`
	Version uint64 `json:"version"`
}

// ReadResponse is a node's answer to GET /data/{key}.
type ReadResponse struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Version uint64 `json:"version"`
	NodeID  string `json:"node_id"`
}

// SnapshotPayload is the full-state shape served by GET /snapshot and
// consumed by POST /catchup.
type SnapshotPayload struct {
	Data     map[string]string `json:"data"`
	Versions map[string]uint64 `json:"versions"`
}

// CatchupResponse acknowledges an installed snapshot.
type CatchupResponse struct {
	NodeID       string `json:"node_id"`
	KeysReceived int    `json:"keys_received"`
}

// RegisterFollowerRequest introduces a follower URL to the leader.
type RegisterFollowerRequest struct {
	URL string `json:"url" binding:"required"`
}

// HeartbeatRequest is what every node POSTs to the registry each tick.
type HeartbeatRequest struct {
	NodeID string `json:"node_id" binding:"required"`
	Port   int    `json:"port" binding:"required"`
	URL    string `json:"url" binding:"required"`
	Role   Role   `json:"role" binding:"required"`
}

// HealthResponse answers GET /health on a node.
type HealthResponse struct {
	Status string `json:"status"`
	NodeID string `json:"node_id"`
	Role   Role   `json:"role"`
}

// SpawnRequest optionally pins the slot a follower should revive into.
// An empty body lets the coordinator pick (oldest dead slot, then new).
type SpawnRequest struct {
	NodeID string `json:"node_id,omitempty"`
	Port   int    `json:"port,omitempty"`
}

// CatchupRequest asks the coordinator to sync one follower from the leader.
type CatchupRequest struct {
	NodeID string `json:"node_id" binding:"required"`
	URL    string `json:"url,omitempty"`
}

// NodeDiedRequest notifies the coordinator of a registry-detected death.
type NodeDiedRequest struct {
	NodeID string `json:"node_id" binding:"required"`
}
