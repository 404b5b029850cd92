// Package registry implements the cluster's membership oracle. Nodes prove
// liveness by heartbeating; the registry converts heartbeat absence into
// death events for the coordinator, triggers catch-up for newly arrived
// followers, and can optionally request respawn of dead followers.
//
// The registry owns truth-about-liveness only. The coordinator owns the data
// plane and the process handles; the two synchronize through small
// idempotent HTTP calls, so either can restart and rebuild from heartbeats.
package registry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"replicated-kvstore/internal/cluster"
)

const notifyTimeout = 5 * time.Second

// Config carries registry tunables.
type Config struct {
	Port           int
	CoordinatorURL string

	// Expiry is how long a node may go silent before it is declared dead.
	// Defaults to 5s.
	Expiry time.Duration

	// PruneInterval is the pruner tick. Defaults to 1s.
	PruneInterval time.Duration

	// AutoSpawn asks the coordinator to revive dead followers after
	// SpawnDelay.
	AutoSpawn  bool
	SpawnDelay time.Duration
}

// Registry tracks every node that has ever heartbeated.
type Registry struct {
	cfg    Config
	log    zerolog.Logger
	client *http.Client

	mu    sync.Mutex
	nodes map[string]*cluster.NodeDescriptor
}

// New creates a Registry from cfg.
func New(cfg Config, log zerolog.Logger) *Registry {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 5 * time.Second
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = time.Second
	}
	return &Registry{
		cfg:    cfg,
		log:    log.With().Str("component", "registry").Logger(),
		client: &http.Client{},
		nodes:  make(map[string]*cluster.NodeDescriptor),
	}
}

// Heartbeat upserts the node descriptor and refreshes its liveness. A first
// heartbeat from a follower triggers an asynchronous catch-up request so
// late arrivals receive the leader's state without a manual step.
func (r *Registry) Heartbeat(req cluster.HeartbeatRequest) []cluster.NodeDescriptor {
	r.mu.Lock()
	prev, known := r.nodes[req.NodeID]
	// A heartbeat from a dead slot is a respawned process, so it needs
	// catch-up exactly like a brand-new follower.
	fresh := !known || prev.Status == cluster.StatusDead
	r.nodes[req.NodeID] = &cluster.NodeDescriptor{
		ID:            req.NodeID,
		URL:           req.URL,
		Port:          req.Port,
		Role:          req.Role,
		Status:        cluster.StatusAlive,
		LastHeartbeat: time.Now(),
	}
	r.mu.Unlock()

	if fresh {
		r.log.Info().Str("node_id", req.NodeID).Str("role", string(req.Role)).Msg("node joined")
		if req.Role == cluster.RoleFollower && r.cfg.CoordinatorURL != "" {
			go r.triggerCatchup(req.NodeID, req.URL)
		}
	}
	return r.Alive()
}

// Deregister drops a node from the table, used on graceful shutdown.
func (r *Registry) Deregister(nodeID string) {
	r.mu.Lock()
	delete(r.nodes, nodeID)
	r.mu.Unlock()
	r.log.Info().Str("node_id", nodeID).Msg("node deregistered")
}

// Nodes returns every descriptor, dead or alive.
func (r *Registry) Nodes() []cluster.NodeDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]cluster.NodeDescriptor, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	return out
}

// Alive returns only the descriptors currently marked alive.
func (r *Registry) Alive() []cluster.NodeDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]cluster.NodeDescriptor, 0, len(r.nodes))
	for _, n := range r.nodes {
		if n.Status == cluster.StatusAlive {
			out = append(out, *n)
		}
	}
	return out
}

// RunPruner flips silent nodes to dead every tick until ctx is cancelled.
func (r *Registry) RunPruner(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.prune()
		case <-ctx.Done():
			return
		}
	}
}

// prune marks expired nodes dead and fires the death side effects. The
// outbound notifications run off-lock on the snapshot taken here.
func (r *Registry) prune() {
	now := time.Now()

	var expired []cluster.NodeDescriptor
	r.mu.Lock()
	for _, n := range r.nodes {
		if n.Status == cluster.StatusAlive && now.Sub(n.LastHeartbeat) > r.cfg.Expiry {
			n.Status = cluster.StatusDead
			expired = append(expired, *n)
		}
	}
	r.mu.Unlock()

	for _, n := range expired {
		r.log.Warn().
			Str("node_id", n.ID).
			Dur("silent_for", now.Sub(n.LastHeartbeat)).
			Msg("node expired, no heartbeat")

		go r.notifyDied(n.ID)
		if r.cfg.AutoSpawn && n.Role == cluster.RoleFollower {
			go r.requestRespawn(n)
		}
	}
}

func (r *Registry) notifyDied(nodeID string) {
	if r.cfg.CoordinatorURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	req := cluster.NodeDiedRequest{NodeID: nodeID}
	if err := cluster.PostJSON(ctx, r.client, r.cfg.CoordinatorURL+"/node-died", req, nil); err != nil {
		r.log.Warn().Str("node_id", nodeID).Err(err).Msg("death notification failed")
	}
}

// requestRespawn asks the coordinator to revive the dead follower's exact
// slot after the configured delay.
func (r *Registry) requestRespawn(n cluster.NodeDescriptor) {
	if r.cfg.CoordinatorURL == "" {
		return
	}
	time.Sleep(r.cfg.SpawnDelay)

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	req := cluster.SpawnRequest{NodeID: n.ID, Port: n.Port}
	if err := cluster.PostJSON(ctx, r.client, r.cfg.CoordinatorURL+"/spawn", req, nil); err != nil {
		r.log.Warn().Str("node_id", n.ID).Err(err).Msg("auto-spawn request failed")
		return
	}
	r.log.Info().Str("node_id", n.ID).Int("port", n.Port).Msg("auto-spawn requested")
}

func (r *Registry) triggerCatchup(nodeID, url string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	req := cluster.CatchupRequest{NodeID: nodeID, URL: url}
	if err := cluster.PostJSON(ctx, r.client, r.cfg.CoordinatorURL+"/catchup", req, nil); err != nil {
		r.log.Warn().Str("node_id", nodeID).Err(err).Msg("catch-up trigger failed")
		return
	}
	r.log.Info().Str("node_id", nodeID).Msg("catch-up triggered")
}
