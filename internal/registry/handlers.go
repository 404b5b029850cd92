package registry

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"replicated-kvstore/internal/cluster"
)

// Handler mounts the registry HTTP surface on a gin router.
type Handler struct {
	registry *Registry
}

// NewHandler creates a Handler for reg.
func NewHandler(reg *Registry) *Handler {
	return &Handler{registry: reg}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/heartbeat", h.Heartbeat)
	r.POST("/deregister", h.Deregister)
	r.GET("/nodes", h.Nodes)
	r.GET("/alive", h.Alive)
	r.GET("/health", h.Health)
}

// Heartbeat handles POST /heartbeat.
func (h *Handler) Heartbeat(c *gin.Context) {
	var req cluster.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alive := h.registry.Heartbeat(req)
	summaries := make([]gin.H, 0, len(alive))
	for _, n := range alive {
		summaries = append(summaries, gin.H{"node_id": n.ID, "url": n.URL, "role": n.Role})
	}
	c.JSON(http.StatusOK, gin.H{"nodes": summaries})
}

// Deregister handles POST /deregister.
func (h *Handler) Deregister(c *gin.Context) {
	var req cluster.NodeDiedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.registry.Deregister(req.NodeID)
	c.JSON(http.StatusOK, gin.H{"status": "deregistered", "node_id": req.NodeID})
}

// Nodes handles GET /nodes: every descriptor with its last-seen age.
func (h *Handler) Nodes(c *gin.Context) {
	nodes := h.registry.Nodes()
	now := time.Now()

	out := make([]gin.H, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, gin.H{
			"node_id":        n.ID,
			"url":            n.URL,
			"port":           n.Port,
			"role":           n.Role,
			"status":         n.Status,
			"last_seen_secs": now.Sub(n.LastHeartbeat).Seconds(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"nodes": out, "count": len(out)})
}

// Alive handles GET /alive.
func (h *Handler) Alive(c *gin.Context) {
	alive := h.registry.Alive()
	c.JSON(http.StatusOK, gin.H{"nodes": alive, "count": len(alive)})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
