// Package node implements the stateful key-value replica. One binary serves
// both roles: in leader mode it accepts primary writes and drives the
// replication fan-out, in follower mode it accepts replicated entries and
// catch-up snapshots. Both roles emit heartbeats to the registry and answer
// health, snapshot, and data-read probes.
package node

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"replicated-kvstore/internal/cluster"
	"replicated-kvstore/internal/store"
)

// Per-call timeouts for outbound RPCs.
const (
	replicateTimeout = 10 * time.Second
	heartbeatTimeout = 2 * time.Second
)

// Config carries everything a node needs at startup.
type Config struct {
	ID          string
	Role        cluster.Role
	Port        int
	LeaderURL   string
	RegistryURL string

	// Cosmetic replication delays that make the sync/async split observable
	// in demos. Zero in production.
	SyncDelay  time.Duration
	AsyncDelay time.Duration

	// HeartbeatInterval defaults to 2s when zero.
	HeartbeatInterval time.Duration
}

// Node is one replica process.
type Node struct {
	cfg    Config
	store  *store.Store
	log    zerolog.Logger
	client *http.Client

	mu        sync.Mutex
	followers []string // leader only: URLs registered via /register-follower

	metrics *metrics
}

// New creates a Node from cfg.
func New(cfg Config, log zerolog.Logger) *Node {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 2 * time.Second
	}
	return &Node{
		cfg:     cfg,
		store:   store.New(),
		log:     log.With().Str("node_id", cfg.ID).Str("role", string(cfg.Role)).Logger(),
		client:  &http.Client{},
		metrics: newMetrics(),
	}
}

// ID returns the node id.
func (n *Node) ID() string { return n.cfg.ID }

// Role returns the node role.
func (n *Node) Role() cluster.Role { return n.cfg.Role }

// URL returns the node's loopback base URL.
func (n *Node) URL() string { return cluster.URLForPort(n.cfg.Port) }

// IsLeader reports whether this node is the leader.
func (n *Node) IsLeader() bool { return n.cfg.Role == cluster.RoleLeader }

// Read returns the local entry for key.
func (n *Node) Read(key string) (store.Entry, bool) {
	return n.store.Get(key)
}

// Dump returns every local entry.
func (n *Node) Dump() map[string]store.Entry {
	return n.store.Dump()
}

// Snapshot returns the full local state in wire shape.
func (n *Node) Snapshot() cluster.SnapshotPayload {
	data, versions := n.store.Snapshot()
	return cluster.SnapshotPayload{Data: data, Versions: versions}
}

// ApplyReplication handles one replicated entry on a follower. Stale versions
// are discarded; the receipt says which happened either way.
func (n *Node) ApplyReplication(req cluster.ReplicateRequest) cluster.ReplicateResponse {
	applied := n.store.Apply(req.Key, req.Value, req.Version)

	resp := cluster.ReplicateResponse{
		NodeID:  n.cfg.ID,
		Key:     req.Key,
		Version: req.Version,
	}
	if applied {
		resp.Status = cluster.ReplicationAccepted
		n.metrics.replicationsAccepted.Inc()
		n.log.Debug().Str("key", req.Key).Uint64("version", req.Version).Str("source", req.Source).Msg("replication applied")
	} else {
		resp.Status = cluster.ReplicationRejected
		n.metrics.replicationsRejected.Inc()
		n.log.Debug().Str("key", req.Key).Uint64("version", req.Version).Msg("stale replication rejected")
	}
	return resp
}

// InstallSnapshot replaces local state with a catch-up payload and returns
// the number of keys received. Safe to apply repeatedly.
func (n *Node) InstallSnapshot(payload cluster.SnapshotPayload) int {
	count := n.store.Install(payload.Data, payload.Versions)
	n.log.Info().Int("keys", count).Msg("catch-up snapshot installed")
	return count
}

// RegisterFollower records a follower URL on the leader and returns the
// current list. Registering the same URL twice is a no-op.
func (n *Node) RegisterFollower(url string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, existing := range n.followers {
		if existing == url {
			return append([]string(nil), n.followers...)
		}
	}
	n.followers = append(n.followers, url)
	n.log.Info().Str("url", url).Int("followers", len(n.followers)).Msg("follower registered")
	return append([]string(nil), n.followers...)
}

// Followers returns the leader's registered follower URLs.
func (n *Node) Followers() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.followers...)
}
