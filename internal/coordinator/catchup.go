package coordinator

import (
	"context"
	"fmt"
	"time"

	"replicated-kvstore/internal/cluster"
)

// Catchup pulls the leader's snapshot and installs it on the target
// follower. The send is retried a bounded number of times with a fixed
// delay to absorb the follower's startup window.
func (c *Coordinator) Catchup(ctx context.Context, nodeID, url string) error {
	c.mu.Lock()
	if c.leader == nil {
		c.mu.Unlock()
		return ErrNoLeader
	}
	leaderURL := c.leader.desc.URL
	if url == "" {
		s, ok := c.followers[nodeID]
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
		}
		url = s.desc.URL
	}
	c.mu.Unlock()

	snapCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	var snapshot cluster.SnapshotPayload
	if err := cluster.GetJSON(snapCtx, c.client, leaderURL+"/snapshot", &snapshot); err != nil {
		return fmt.Errorf("%w: snapshot fetch: %v", ErrCatchupFailed, err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.CatchupAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(c.cfg.CatchupBackoff)
		}

		sendCtx, cancelSend := context.WithTimeout(ctx, catchupSendTimeout)
		var ack cluster.CatchupResponse
		lastErr = cluster.PostJSON(sendCtx, c.client, url+"/catchup", snapshot, &ack)
		cancelSend()

		if lastErr == nil {
			c.log.Info().
				Str("node_id", nodeID).
				Int("keys", ack.KeysReceived).
				Int("attempt", attempt).
				Msg("follower caught up")
			return nil
		}
		c.log.Warn().
			Str("node_id", nodeID).
			Int("attempt", attempt).
			Err(lastErr).
			Msg("catch-up send failed")
	}

	return fmt.Errorf("%w: %d attempts to %s: %v", ErrCatchupFailed, c.cfg.CatchupAttempts, url, lastErr)
}
