package node

import (
	"context"
	"sync"
	"time"

	"replicated-kvstore/internal/cluster"
)

// Write commits key=value locally and fans out to the supplied follower
// sets. The leader's commit happens first: a failed sync replication never
// rolls it back, it only lowers the ack count the coordinator judges against
// its write quorum.
//
// Sync followers are contacted in parallel and each waited on (success or
// failure, with a per-request timeout). Async followers are queued on a
// detached goroutine; the only guarantee is that the fan-out started.
func (n *Node) Write(ctx context.Context, key, value string, syncURLs, asyncURLs []string) cluster.WriteResponse {
	version := n.store.Write(key, value)
	n.metrics.writes.Inc()

	if n.cfg.SyncDelay > 0 {
		time.Sleep(n.cfg.SyncDelay)
	}

	ackedBy := n.fanOut(ctx, key, value, version, syncURLs)

	if len(asyncURLs) > 0 {
		go func() {
			if n.cfg.AsyncDelay > 0 {
				time.Sleep(n.cfg.AsyncDelay)
			}
			acked := n.fanOut(context.Background(), key, value, version, asyncURLs)
			n.log.Debug().
				Str("key", key).
				Uint64("version", version).
				Int("acks", len(acked)).
				Int("targets", len(asyncURLs)).
				Msg("async replication finished")
		}()
	}

	n.log.Info().
		Str("key", key).
		Uint64("version", version).
		Int("sync_acks", len(ackedBy)).
		Int("async_queued", len(asyncURLs)).
		Msg("write committed")

	return cluster.WriteResponse{
		Key:     key,
		Value:   value,
		Version: version,
		Replication: cluster.ReplicationResult{
			SyncAcks:    len(ackedBy),
			SyncAckedBy: ackedBy,
			AsyncQueued: len(asyncURLs),
		},
	}
}

// fanOut replicates one entry to every URL in parallel and returns the ids
// of the followers that accepted it. Only a receipt with status "accepted"
// counts: a 200 carrying "rejected" is a stale drop, not an ack.
func (n *Node) fanOut(ctx context.Context, key, value string, version uint64, urls []string) []string {
	if len(urls) == 0 {
		return nil
	}

	var (
		mu    sync.Mutex
		acked []string
		wg    sync.WaitGroup
	)

	for _, url := range urls {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()

			reqCtx, cancel := context.WithTimeout(ctx, replicateTimeout)
			defer cancel()

			req := cluster.ReplicateRequest{
				Key:     key,
				Value:   value,
				Version: version,
				Source:  n.cfg.ID,
			}
			var resp cluster.ReplicateResponse
			if err := cluster.PostJSON(reqCtx, n.client, target+"/replicate", req, &resp); err != nil {
				n.log.Warn().Str("target", target).Str("key", key).Err(err).Msg("replication failed")
				return
			}
			if resp.Status != cluster.ReplicationAccepted {
				return
			}

			name := resp.NodeID
			if name == "" {
				name = target
			}
			mu.Lock()
			acked = append(acked, name)
			mu.Unlock()
		}(url)
	}

	wg.Wait()
	return acked
}
