package node

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"replicated-kvstore/internal/cluster"
)

// Handler mounts the node HTTP surface on a gin router.
type Handler struct {
	node *Node
}

// NewHandler creates a Handler for n.
func NewHandler(n *Node) *Handler {
	return &Handler{node: n}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/data", h.Write)
	r.GET("/data/:key", h.Read)
	r.GET("/data", h.Dump)
	r.POST("/replicate", h.Replicate)
	r.POST("/catchup", h.Catchup)
	r.GET("/snapshot", h.Snapshot)
	r.POST("/register-follower", h.RegisterFollower)
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.node.metrics.registry, promhttp.HandlerOpts{})))
}

// Write handles POST /data: the primary write path, leader only.
func (h *Handler) Write(c *gin.Context) {
	if !h.node.IsLeader() {
		c.JSON(http.StatusForbidden, gin.H{"error": "not leader: writes must go to the leader"})
		return
	}

	var req cluster.WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := h.node.Write(c.Request.Context(), req.Key, req.Value, req.SyncFollowers, req.AsyncFollowers)
	c.JSON(http.StatusOK, resp)
}

// Read handles GET /data/:key.
func (h *Handler) Read(c *gin.Context) {
	key := c.Param("key")

	entry, ok := h.node.Read(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found", "key": key, "node_id": h.node.ID()})
		return
	}
	c.JSON(http.StatusOK, cluster.ReadResponse{
		Key:     key,
		Value:   entry.Value,
		Version: entry.Version,
		NodeID:  h.node.ID(),
	})
}

// Dump handles GET /data: every local entry plus a count.
func (h *Handler) Dump(c *gin.Context) {
	data := h.node.Dump()
	c.JSON(http.StatusOK, gin.H{"data": data, "count": len(data)})
}

// Replicate handles POST /replicate: follower only. A stale entry still
// answers 200, with status "rejected", so the leader can tell a drop from a
// dead peer.
func (h *Handler) Replicate(c *gin.Context) {
	if h.node.IsLeader() {
		c.JSON(http.StatusForbidden, gin.H{"error": "not follower: leader does not accept replication"})
		return
	}

	var req cluster.ReplicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.node.ApplyReplication(req))
}

// Catchup handles POST /catchup: wholesale snapshot install.
func (h *Handler) Catchup(c *gin.Context) {
	var payload cluster.SnapshotPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	count := h.node.InstallSnapshot(payload)
	c.JSON(http.StatusOK, cluster.CatchupResponse{NodeID: h.node.ID(), KeysReceived: count})
}

// Snapshot handles GET /snapshot.
func (h *Handler) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.node.Snapshot())
}

// RegisterFollower handles POST /register-follower: leader only.
func (h *Handler) RegisterFollower(c *gin.Context) {
	if !h.node.IsLeader() {
		c.JSON(http.StatusForbidden, gin.H{"error": "not leader: followers do not track peers"})
		return
	}

	var req cluster.RegisterFollowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	followers := h.node.RegisterFollower(req.URL)
	c.JSON(http.StatusOK, gin.H{"followers": followers})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, cluster.HealthResponse{
		Status: "ok",
		NodeID: h.node.ID(),
		Role:   h.node.Role(),
	})
}
