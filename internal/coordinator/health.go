package coordinator

import (
	"context"
	"time"

	"replicated-kvstore/internal/cluster"
)

// RunHealthLoop probes every known node's /health each tick until ctx is
// cancelled. Status changes are logged only on transition; a transition to
// dead also logs the quorum impact.
func (c *Coordinator) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.checkAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// checkAll probes all descriptors off-lock on a snapshot.
func (c *Coordinator) checkAll(ctx context.Context) {
	c.mu.Lock()
	targets := make([]cluster.NodeDescriptor, 0, len(c.followers)+1)
	if c.leader != nil {
		targets = append(targets, c.leader.desc)
	}
	for _, s := range c.followers {
		targets = append(targets, s.desc)
	}
	c.mu.Unlock()

	aliveFollowers := 0
	for _, desc := range targets {
		status := c.probe(ctx, desc)
		if desc.Role == cluster.RoleFollower && status == cluster.StatusAlive {
			aliveFollowers++
		}
		c.applyStatus(desc.ID, status)
	}
	c.metrics.aliveFollowers.Set(float64(aliveFollowers))
}

// probe returns the node's next status. A starting node that fails its probe
// stays starting: the process may not have bound yet, and the registry's
// pruner is the backstop for a spawn that never comes up.
func (c *Coordinator) probe(ctx context.Context, desc cluster.NodeDescriptor) cluster.Status {
	reqCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	var health cluster.HealthResponse
	if err := cluster.GetJSON(reqCtx, c.client, desc.URL+"/health", &health); err != nil {
		if desc.Status == cluster.StatusStarting {
			return cluster.StatusStarting
		}
		return cluster.StatusDead
	}
	return cluster.StatusAlive
}

// applyStatus records a probe result and logs transitions.
func (c *Coordinator) applyStatus(nodeID string, status cluster.Status) {
	c.mu.Lock()
	var target *slot
	if c.leader != nil && nodeID == c.leader.desc.ID {
		target = c.leader
	} else if s, ok := c.followers[nodeID]; ok {
		target = s
	}
	if target == nil {
		c.mu.Unlock()
		return
	}

	prev := c.prevStatus[nodeID]
	target.desc.Status = status
	c.prevStatus[nodeID] = status
	canWrite := c.canWriteLocked()
	canRead := c.canReadLocked()
	c.mu.Unlock()

	if prev == status {
		return
	}
	switch status {
	case cluster.StatusAlive:
		c.log.Info().Str("node_id", nodeID).Msg("node is alive")
	case cluster.StatusDead:
		c.log.Warn().Str("node_id", nodeID).Msg("node went dead")
		c.logQuorumImpact(nodeID, canWrite, canRead)
	}
}
