package node

import (
	"context"
	"time"

	"replicated-kvstore/internal/cluster"
)

// RunHeartbeat POSTs this node's descriptor to the registry every tick until
// ctx is cancelled. A failed beat is logged and retried on the next tick; a
// node that cannot reach the registry keeps serving local reads.
func (n *Node) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()

	n.beat(ctx)
	for {
		select {
		case <-ticker.C:
			n.beat(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) beat(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, heartbeatTimeout)
	defer cancel()

	req := cluster.HeartbeatRequest{
		NodeID: n.cfg.ID,
		Port:   n.cfg.Port,
		URL:    n.URL(),
		Role:   n.cfg.Role,
	}
	if err := cluster.PostJSON(reqCtx, n.client, n.cfg.RegistryURL+"/heartbeat", req, nil); err != nil {
		n.log.Warn().Err(err).Msg("heartbeat failed")
	}
}

// Deregister tells the registry this node is leaving. Best effort, used
// during graceful shutdown.
func (n *Node) Deregister() {
	ctx, cancel := context.WithTimeout(context.Background(), heartbeatTimeout)
	defer cancel()

	body := map[string]string{"node_id": n.cfg.ID}
	if err := cluster.PostJSON(ctx, n.client, n.cfg.RegistryURL+"/deregister", body, nil); err != nil {
		n.log.Warn().Err(err).Msg("deregister failed")
	}
}
