// Package coordinator implements the cluster controller: it owns membership
// and the process handles, exposes the quorum data plane, and orchestrates
// node lifecycles (spawn, kill, respawn-into-slot, catch-up).
//
// The coordinator and the registry split responsibilities on purpose: the
// coordinator owns the data plane, the registry owns truth-about-liveness.
// They synchronize through small idempotent HTTP calls.
package coordinator

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"replicated-kvstore/internal/cluster"
)

// Per-call timeouts by call class.
const (
	healthProbeTimeout = 2 * time.Second
	writeTimeout       = 30 * time.Second
	readTimeout        = 10 * time.Second
	snapshotTimeout    = 5 * time.Second
	catchupSendTimeout = 10 * time.Second
	registerTimeout    = 5 * time.Second
)

// slot pairs a node descriptor with the opaque handle of its process. The
// (id, port) pair outlives any single process: a dead follower's slot is
// revived in place before a new slot is allocated.
type slot struct {
	desc   cluster.NodeDescriptor
	handle cluster.Handle
}

// Coordinator is the cluster controller.
type Coordinator struct {
	cfg      Config
	log      zerolog.Logger
	launcher cluster.Launcher
	client   *http.Client
	metrics  *metrics

	mu         sync.Mutex
	leader     *slot
	followers  map[string]*slot
	spawnOrder []string // follower ids in slot-creation order
	counter    int      // monotonic, names new slots
	prevStatus map[string]cluster.Status
}

// New creates a Coordinator. The launcher is injectable so tests can spawn
// without forking.
func New(cfg Config, launcher cluster.Launcher, log zerolog.Logger) *Coordinator {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 2 * time.Second
	}
	if cfg.CatchupAttempts <= 0 {
		cfg.CatchupAttempts = 3
	}
	return &Coordinator{
		cfg:        cfg,
		log:        log.With().Str("component", "coordinator").Logger(),
		launcher:   launcher,
		client:     &http.Client{},
		metrics:    newMetrics(),
		followers:  make(map[string]*slot),
		prevStatus: make(map[string]cluster.Status),
	}
}

// Bootstrap spawns the leader and the configured number of followers. The
// leader is created exactly once and is never re-elected; its death later
// only degrades can_write.
func (c *Coordinator) Bootstrap() error {
	leaderPort := c.cfg.BasePort + 1
	handle, err := c.launcher.Launch(cluster.NodeSpec{
		ID:          cluster.LeaderID,
		Port:        leaderPort,
		Role:        cluster.RoleLeader,
		RegistryURL: c.cfg.RegistryURL,
		SyncDelay:   c.cfg.SyncDelay,
		AsyncDelay:  c.cfg.AsyncDelay,
	})
	if err != nil {
		return fmt.Errorf("bootstrap leader: %w", err)
	}

	c.mu.Lock()
	c.leader = &slot{
		desc: cluster.NodeDescriptor{
			ID:     cluster.LeaderID,
			URL:    cluster.URLForPort(leaderPort),
			Port:   leaderPort,
			Role:   cluster.RoleLeader,
			Status: cluster.StatusStarting,
		},
		handle: handle,
	}
	c.mu.Unlock()

	for i := 0; i < c.cfg.Followers; i++ {
		if _, err := c.Spawn(cluster.SpawnRequest{}); err != nil {
			return fmt.Errorf("bootstrap follower %d: %w", i+1, err)
		}
	}

	c.log.Info().
		Int("followers", c.cfg.Followers).
		Int("write_quorum", c.cfg.WriteQuorum).
		Int("read_quorum", c.cfg.ReadQuorum).
		Msg("cluster bootstrapped")
	return nil
}

// Spawn starts a follower process. Slot choice is deliberate: an explicit
// (node_id, port) hint wins (registry-driven revival), then the oldest dead
// slot is reused, and only then is a new slot allocated.
func (c *Coordinator) Spawn(req cluster.SpawnRequest) (cluster.NodeDescriptor, error) {
	c.mu.Lock()

	id, port := req.NodeID, req.Port
	if id == "" || port == 0 {
		id, port = c.oldestDeadSlotLocked()
	}
	if id == "" {
		c.counter++
		id = cluster.FollowerID(c.counter)
		port = c.cfg.BasePort + c.counter + 1
	}

	var leaderURL string
	if c.leader != nil {
		leaderURL = c.leader.desc.URL
	}
	c.mu.Unlock()

	handle, err := c.launcher.Launch(cluster.NodeSpec{
		ID:          id,
		Port:        port,
		Role:        cluster.RoleFollower,
		LeaderURL:   leaderURL,
		RegistryURL: c.cfg.RegistryURL,
		SyncDelay:   c.cfg.SyncDelay,
		AsyncDelay:  c.cfg.AsyncDelay,
	})
	if err != nil {
		return cluster.NodeDescriptor{}, fmt.Errorf("spawn %s: %w", id, err)
	}

	desc := cluster.NodeDescriptor{
		ID:     id,
		URL:    cluster.URLForPort(port),
		Port:   port,
		Role:   cluster.RoleFollower,
		Status: cluster.StatusStarting,
	}

	c.mu.Lock()
	if _, known := c.followers[id]; !known {
		c.spawnOrder = append(c.spawnOrder, id)
	}
	c.followers[id] = &slot{desc: desc, handle: handle}
	c.prevStatus[id] = cluster.StatusStarting
	c.mu.Unlock()

	c.log.Info().Str("node_id", id).Int("port", port).Msg("follower spawned")

	// Give the new process time to bind before introducing it to the leader.
	if leaderURL != "" {
		c.registerFollowerLater(leaderURL, desc.URL)
	}
	return desc, nil
}

// oldestDeadSlotLocked returns the id and port of the earliest-created dead
// follower slot, or zero values when every slot is live.
func (c *Coordinator) oldestDeadSlotLocked() (string, int) {
	for _, id := range c.spawnOrder {
		if s, ok := c.followers[id]; ok && s.desc.Status == cluster.StatusDead {
			return id, s.desc.Port
		}
	}
	return "", 0
}

// Kill terminates a follower's process and marks the slot dead. The slot
// stays in the map for future reuse.
func (c *Coordinator) Kill(nodeID string) (bool, error) {
	c.mu.Lock()
	s, ok := c.followers[nodeID]
	if !ok {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}

	if s.handle != nil {
		_ = s.handle.Terminate()
	}
	s.desc.Status = cluster.StatusDead
	c.prevStatus[nodeID] = cluster.StatusDead

	canWrite := c.canWriteLocked()
	canRead := c.canReadLocked()
	c.mu.Unlock()

	c.logQuorumImpact(nodeID, canWrite, canRead)
	return canWrite, nil
}

// NodeDied records a registry-reported death. Idempotent; the registry and
// the health loop may both report the same death.
func (c *Coordinator) NodeDied(nodeID string) {
	c.mu.Lock()
	var changed bool
	if c.leader != nil && nodeID == c.leader.desc.ID {
		changed = c.leader.desc.Status != cluster.StatusDead
		c.leader.desc.Status = cluster.StatusDead
	} else if s, ok := c.followers[nodeID]; ok {
		changed = s.desc.Status != cluster.StatusDead
		s.desc.Status = cluster.StatusDead
	}
	c.prevStatus[nodeID] = cluster.StatusDead
	canWrite := c.canWriteLocked()
	canRead := c.canReadLocked()
	c.mu.Unlock()

	if changed {
		c.log.Warn().Str("node_id", nodeID).Msg("registry reported node death")
		c.logQuorumImpact(nodeID, canWrite, canRead)
	}
}

func (c *Coordinator) logQuorumImpact(nodeID string, canWrite, canRead bool) {
	if !canWrite {
		c.log.Warn().Str("node_id", nodeID).Msg("write quorum lost")
	}
	if !canRead {
		c.log.Warn().Str("node_id", nodeID).Msg("read quorum lost")
	}
}

// CanWrite reports whether the leader is alive and at least W followers are.
func (c *Coordinator) CanWrite() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canWriteLocked()
}

// CanRead reports whether at least R followers are alive.
func (c *Coordinator) CanRead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canReadLocked()
}

func (c *Coordinator) canWriteLocked() bool {
	return c.leaderAliveLocked() && len(c.aliveFollowersLocked()) >= c.cfg.WriteQuorum
}

func (c *Coordinator) canReadLocked() bool {
	return len(c.aliveFollowersLocked()) >= c.cfg.ReadQuorum
}

func (c *Coordinator) leaderAliveLocked() bool {
	return c.leader != nil && c.leader.desc.Status == cluster.StatusAlive
}

func (c *Coordinator) aliveFollowersLocked() []cluster.NodeDescriptor {
	out := make([]cluster.NodeDescriptor, 0, len(c.followers))
	for _, s := range c.followers {
		if s.desc.Status == cluster.StatusAlive {
			out = append(out, s.desc)
		}
	}
	return out
}

// StatusReport is the shape of GET /status.
type StatusReport struct {
	Leader      *cluster.NodeDescriptor  `json:"leader"`
	Followers   []cluster.NodeDescriptor `json:"followers"`
	WriteQuorum int                      `json:"write_quorum"`
	ReadQuorum  int                      `json:"read_quorum"`
	CanWrite    bool                     `json:"can_write"`
	CanRead     bool                     `json:"can_read"`
}

// Status snapshots the cluster view.
func (c *Coordinator) Status() StatusReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := StatusReport{
		WriteQuorum: c.cfg.WriteQuorum,
		ReadQuorum:  c.cfg.ReadQuorum,
		CanWrite:    c.canWriteLocked(),
		CanRead:     c.canReadLocked(),
	}
	if c.leader != nil {
		leader := c.leader.desc
		report.Leader = &leader
	}
	for _, s := range c.followers {
		report.Followers = append(report.Followers, s.desc)
	}
	sort.Slice(report.Followers, func(i, j int) bool {
		return report.Followers[i].Port < report.Followers[j].Port
	})
	return report
}

// Shutdown terminates every child process the coordinator launched. Called
// on graceful exit so node processes do not outlive their controller.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.leader != nil && c.leader.handle != nil {
		_ = c.leader.handle.Terminate()
	}
	for _, s := range c.followers {
		if s.handle != nil {
			_ = s.handle.Terminate()
		}
	}
	c.log.Info().Msg("child nodes terminated")
}

// registerFollowerLater introduces a follower URL to the leader after the
// configured delay.
func (c *Coordinator) registerFollowerLater(leaderURL, followerURL string) {
	delay := c.cfg.RegisterDelay
	time.AfterFunc(delay, func() {
		ctx, cancel := contextWithTimeout(registerTimeout)
		defer cancel()

		req := cluster.RegisterFollowerRequest{URL: followerURL}
		if err := cluster.PostJSON(ctx, c.client, leaderURL+"/register-follower", req, nil); err != nil {
			c.log.Warn().Str("url", followerURL).Err(err).Msg("register-follower failed")
		}
	})
}
