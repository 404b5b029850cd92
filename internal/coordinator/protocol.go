package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"replicated-kvstore/internal/cluster"
)

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

// WriteResult is the coordinator's view of a completed quorum write.
type WriteResult struct {
	Key              string
	Value            string
	Version          uint64
	SyncAcks         int
	SyncReplicatedTo []string
	AsyncQueued      int
}

// Write runs the quorum write protocol: pick the sync set S (W alive
// smallest-port followers) and async set A (remaining alive), hand both to
// the leader, and judge the leader's ack count against W.
//
// A result below W returns ErrWriteQuorumNotMet together with the partial
// result. The leader's local commit stands either way; async replication
// and catch-up converge the stragglers, and the caller is told loudly so it
// can retry or escalate.
func (c *Coordinator) Write(ctx context.Context, key, value string) (*WriteResult, error) {
	c.mu.Lock()
	if !c.canWriteLocked() {
		alive := len(c.aliveFollowersLocked())
		c.mu.Unlock()
		c.metrics.writeFailures.Inc()
		return nil, fmt.Errorf("%w: leader alive=%t, alive followers=%d, need W=%d",
			ErrWriteQuorumUnavailable, c.leaderAliveLocked(), alive, c.cfg.WriteQuorum)
	}
	alive := c.aliveFollowersLocked()
	leaderURL := c.leader.desc.URL
	c.mu.Unlock()

	syncSet := cluster.SyncFollowers(alive, c.cfg.WriteQuorum)
	asyncSet := cluster.AsyncFollowers(alive, c.cfg.WriteQuorum)

	reqCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	req := cluster.WriteRequest{
		Key:            key,
		Value:          value,
		SyncFollowers:  cluster.URLs(syncSet),
		AsyncFollowers: cluster.URLs(asyncSet),
	}
	var resp cluster.WriteResponse
	if err := cluster.PostJSON(reqCtx, c.client, leaderURL+"/data", req, &resp); err != nil {
		c.metrics.writeFailures.Inc()
		return nil, fmt.Errorf("%w: %v", ErrLeaderUnreachable, err)
	}

	result := &WriteResult{
		Key:              key,
		Value:            value,
		Version:          resp.Version,
		SyncAcks:         resp.Replication.SyncAcks,
		SyncReplicatedTo: resp.Replication.SyncAckedBy,
		AsyncQueued:      resp.Replication.AsyncQueued,
	}

	if result.SyncAcks < c.cfg.WriteQuorum {
		c.metrics.writeFailures.Inc()
		c.log.Warn().
			Str("key", key).
			Uint64("version", result.Version).
			Int("sync_acks", result.SyncAcks).
			Int("write_quorum", c.cfg.WriteQuorum).
			Msg("write under-replicated")
		return result, fmt.Errorf("%w: %d/%d sync acks", ErrWriteQuorumNotMet, result.SyncAcks, c.cfg.WriteQuorum)
	}

	c.metrics.writes.Inc()
	c.log.Info().
		Str("key", key).
		Uint64("version", result.Version).
		Int("sync_acks", result.SyncAcks).
		Msg("write replicated")
	return result, nil
}

// ReadResult is the coordinator's view of a completed quorum read.
type ReadResult struct {
	Key             string
	Value           string
	Version         uint64
	ServedBy        string
	QuorumResponses int
}

type readReply struct {
	resp  cluster.ReadResponse
	found bool
}

// Read runs the quorum read protocol against the R alive largest-port
// followers. A not-found still counts as a quorum response; only transport
// failures do not. The highest version among responders wins outright —
// conflicts are resolved, never surfaced.
func (c *Coordinator) Read(ctx context.Context, key string) (*ReadResult, error) {
	c.mu.Lock()
	if !c.canReadLocked() {
		alive := len(c.aliveFollowersLocked())
		c.mu.Unlock()
		c.metrics.readFailures.Inc()
		return nil, fmt.Errorf("%w: alive followers=%d, need R=%d",
			ErrReadQuorumUnavailable, alive, c.cfg.ReadQuorum)
	}
	alive := c.aliveFollowersLocked()
	c.mu.Unlock()

	readSet := cluster.ReadFollowers(alive, c.cfg.ReadQuorum)

	replies := make(chan readReply, len(readSet))
	var wg sync.WaitGroup
	for _, follower := range readSet {
		wg.Add(1)
		go func(f cluster.NodeDescriptor) {
			defer wg.Done()

			reqCtx, cancel := context.WithTimeout(ctx, readTimeout)
			defer cancel()

			var resp cluster.ReadResponse
			err := cluster.GetJSON(reqCtx, c.client, f.URL+"/data/"+key, &resp)
			if err == nil {
				resp.NodeID = orDefault(resp.NodeID, f.ID)
				replies <- readReply{resp: resp, found: true}
				return
			}

			var httpErr *cluster.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode == 404 {
				replies <- readReply{resp: cluster.ReadResponse{NodeID: f.ID}}
				return
			}
			c.log.Warn().Str("node_id", f.ID).Str("key", key).Err(err).Msg("read probe failed")
		}(follower)
	}
	wg.Wait()
	close(replies)

	var (
		responses int
		best      *readReply
	)
	for reply := range replies {
		responses++
		if !reply.found {
			continue
		}
		r := reply
		if best == nil || r.resp.Version > best.resp.Version {
			best = &r
		}
	}

	if responses < c.cfg.ReadQuorum {
		c.metrics.readFailures.Inc()
		return nil, fmt.Errorf("%w: %d/%d responses", ErrReadQuorumNotMet, responses, c.cfg.ReadQuorum)
	}
	if best == nil {
		c.metrics.readFailures.Inc()
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	c.metrics.reads.Inc()
	return &ReadResult{
		Key:             key,
		Value:           best.resp.Value,
		Version:         best.resp.Version,
		ServedBy:        best.resp.NodeID,
		QuorumResponses: responses,
	}, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
