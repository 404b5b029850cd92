package coordinator

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"replicated-kvstore/internal/cluster"
)

// Handler mounts the coordinator HTTP surface on a gin router. This is the
// boundary where error kinds become the status codes clients see: 503 for
// quorum trouble, 404 for missing keys and unknown ids, 500 for exhausted
// catch-up.
type Handler struct {
	coord *Coordinator
}

// NewHandler creates a Handler for coord.
func NewHandler(coord *Coordinator) *Handler {
	return &Handler{coord: coord}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/write", h.Write)
	r.GET("/read/:key", h.Read)
	r.POST("/spawn", h.Spawn)
	r.POST("/kill/:node_id", h.Kill)
	r.GET("/status", h.Status)
	r.POST("/catchup", h.Catchup)
	r.POST("/node-died", h.NodeDied)
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.coord.metrics.registry, promhttp.HandlerOpts{})))
}

// Write handles POST /write.
func (h *Handler) Write(c *gin.Context) {
	var req struct {
		Key   string `json:"key" binding:"required"`
		Value string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.coord.Write(c.Request.Context(), req.Key, req.Value)
	if err != nil {
		body := gin.H{"error": err.Error()}
		if result != nil {
			body["version"] = result.Version
			body["sync_acks"] = result.SyncAcks
		}
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"key":                result.Key,
		"value":              result.Value,
		"version":            result.Version,
		"sync_acks":          result.SyncAcks,
		"quorum":             h.coord.cfg.WriteQuorum,
		"sync_replicated_to": result.SyncReplicatedTo,
	})
}

// Read handles GET /read/:key.
func (h *Handler) Read(c *gin.Context) {
	key := c.Param("key")

	result, err := h.coord.Read(c.Request.Context(), key)
	switch {
	case errors.Is(err, ErrKeyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "key": key})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":              result.Key,
		"value":            result.Value,
		"version":          result.Version,
		"served_by":        result.ServedBy,
		"quorum_responses": result.QuorumResponses,
	})
}

// Spawn handles POST /spawn. The body is optional: an empty body lets the
// coordinator choose the slot.
func (h *Handler) Spawn(c *gin.Context) {
	var req cluster.SpawnRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	desc, err := h.coord.Spawn(req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "spawned", "node_id": desc.ID, "url": desc.URL})
}

// Kill handles POST /kill/:node_id.
func (h *Handler) Kill(c *gin.Context) {
	nodeID := c.Param("node_id")

	canWrite, err := h.coord.Kill(nodeID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "killed", "node_id": nodeID, "can_write": canWrite})
}

// Status handles GET /status.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.Status())
}

// Catchup handles POST /catchup, fired by the registry when a follower
// arrives or revives.
func (h *Handler) Catchup(c *gin.Context) {
	var req cluster.CatchupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.coord.Catchup(c.Request.Context(), req.NodeID, req.URL)
	switch {
	case errors.Is(err, ErrNoLeader):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, ErrUnknownNode):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "caught-up", "node_id": req.NodeID})
	}
}

// NodeDied handles POST /node-died.
func (h *Handler) NodeDied(c *gin.Context) {
	var req cluster.NodeDiedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.coord.NodeDied(req.NodeID)
	c.JSON(http.StatusOK, gin.H{"status": "acknowledged", "node_id": req.NodeID})
}

// Health handles GET /health for the coordinator process itself.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
