package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replicated-kvstore/internal/cluster"
)

func startCoordinatorServer(t *testing.T, c *Coordinator) *httptest.Server {
	t.Helper()

	r := gin.New()
	NewHandler(c).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doPost(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	resp, err := http.Post(url, "application/json", reader)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestWriteEndpointReturns503WithoutQuorum(t *testing.T) {
	c, _ := newTestCoordinator(DefaultConfig())
	srv := startCoordinatorServer(t, c)

	resp := doPost(t, srv.URL+"/write", map[string]string{"key": "k", "value": "v"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWriteEndpointHappyPath(t *testing.T) {
	c, _ := newTestCoordinator(DefaultConfig())

	_, leaderSrv := startNodeServer(t, cluster.LeaderID, cluster.RoleLeader)
	_, s1 := startNodeServer(t, "follower-1", cluster.RoleFollower)
	_, s2 := startNodeServer(t, "follower-2", cluster.RoleFollower)

	setLeader(c, leaderSrv.URL, cluster.StatusAlive)
	addFollower(c, "follower-1", 7002, s1.URL, cluster.StatusAlive)
	addFollower(c, "follower-2", 7003, s2.URL, cluster.StatusAlive)

	srv := startCoordinatorServer(t, c)

	resp := doPost(t, srv.URL+"/write", map[string]string{"key": "k1", "value": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["version"])
	assert.GreaterOrEqual(t, body["sync_acks"], float64(2))
	assert.Equal(t, float64(2), body["quorum"])
}

func TestReadEndpointStatusCodes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadQuorum = 1
	c, _ := newTestCoordinator(cfg)

	f, fs := startNodeServer(t, "follower-1", cluster.RoleFollower)
	addFollower(c, "follower-1", 7002, fs.URL, cluster.StatusAlive)
	srv := startCoordinatorServer(t, c)

	// Missing key → 404.
	resp, err := http.Get(srv.URL + "/read/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Present key → 200 with version and server.
	f.ApplyReplication(cluster.ReplicateRequest{Key: "k1", Value: "hello", Version: 1})
	resp, err = http.Get(srv.URL + "/read/k1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "hello", body["value"])
	assert.Equal(t, float64(1), body["version"])
	assert.Equal(t, "follower-1", body["served_by"])
}

func TestReadEndpointReturns503WithoutQuorum(t *testing.T) {
	c, _ := newTestCoordinator(DefaultConfig())
	srv := startCoordinatorServer(t, c)

	resp, err := http.Get(srv.URL + "/read/any")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestKillEndpoint(t *testing.T) {
	c, _ := newTestCoordinator(DefaultConfig())
	_, err := c.Spawn(cluster.SpawnRequest{})
	require.NoError(t, err)

	srv := startCoordinatorServer(t, c)

	resp := doPost(t, srv.URL+"/kill/follower-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "killed", body["status"])
	assert.Equal(t, false, body["can_write"])

	resp = doPost(t, srv.URL+"/kill/follower-99", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSpawnEndpointWithAndWithoutBody(t *testing.T) {
	c, _ := newTestCoordinator(DefaultConfig())
	srv := startCoordinatorServer(t, c)

	resp := doPost(t, srv.URL+"/spawn", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "spawned", body["status"])
	assert.Equal(t, "follower-1", body["node_id"])

	resp = doPost(t, srv.URL+"/spawn", cluster.SpawnRequest{NodeID: "follower-5", Port: 7007})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, "follower-5", body["node_id"])
	assert.Equal(t, "http://localhost:7007", body["url"])
}

func TestStatusEndpointFreshClusterShape(t *testing.T) {
	c, _ := newTestCoordinator(DefaultConfig())

	setLeader(c, "http://localhost:7001", cluster.StatusAlive)
	addFollower(c, "follower-1", 7002, "", cluster.StatusAlive)
	addFollower(c, "follower-2", 7003, "", cluster.StatusAlive)
	addFollower(c, "follower-3", 7004, "", cluster.StatusAlive)

	srv := startCoordinatorServer(t, c)

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report StatusReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	require.NotNil(t, report.Leader)
	assert.Equal(t, cluster.StatusAlive, report.Leader.Status)
	assert.Len(t, report.Followers, 3)
	assert.True(t, report.CanWrite)
	assert.True(t, report.CanRead)
}

func TestNodeDiedEndpointAcknowledges(t *testing.T) {
	c, _ := newTestCoordinator(DefaultConfig())
	addFollower(c, "follower-1", 7002, "", cluster.StatusAlive)
	srv := startCoordinatorServer(t, c)

	resp := doPost(t, srv.URL+"/node-died", cluster.NodeDiedRequest{NodeID: "follower-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	report := c.Status()
	assert.Equal(t, cluster.StatusDead, report.Followers[0].Status)
}

func TestCatchupEndpointStatusCodes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CatchupAttempts = 1
	cfg.CatchupBackoff = 10 * time.Millisecond
	c, _ := newTestCoordinator(cfg)
	srv := startCoordinatorServer(t, c)

	// No leader yet → 503.
	resp := doPost(t, srv.URL+"/catchup", cluster.CatchupRequest{NodeID: "follower-1", URL: "http://localhost:7002"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// Leader present but follower unreachable → 500 after retries.
	_, leaderSrv := startNodeServer(t, cluster.LeaderID, cluster.RoleLeader)
	setLeader(c, leaderSrv.URL, cluster.StatusAlive)

	gone := httptest.NewServer(nil)
	gone.Close()
	resp = doPost(t, srv.URL+"/catchup", cluster.CatchupRequest{NodeID: "follower-1", URL: gone.URL})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// Reachable follower → 200.
	_, followerSrv := startNodeServer(t, "follower-1", cluster.RoleFollower)
	resp = doPost(t, srv.URL+"/catchup", cluster.CatchupRequest{NodeID: "follower-1", URL: followerSrv.URL})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWriteReadRoundTrip(t *testing.T) {
	// W=2, R=2 over three followers: W+R > N, so a write followed by a read
	// must return the written value at the written version.
	c, _ := newTestCoordinator(DefaultConfig())

	_, leaderSrv := startNodeServer(t, cluster.LeaderID, cluster.RoleLeader)
	_, s1 := startNodeServer(t, "follower-1", cluster.RoleFollower)
	_, s2 := startNodeServer(t, "follower-2", cluster.RoleFollower)
	_, s3 := startNodeServer(t, "follower-3", cluster.RoleFollower)

	setLeader(c, leaderSrv.URL, cluster.StatusAlive)
	addFollower(c, "follower-1", 7002, s1.URL, cluster.StatusAlive)
	addFollower(c, "follower-2", 7003, s2.URL, cluster.StatusAlive)
	addFollower(c, "follower-3", 7004, s3.URL, cluster.StatusAlive)

	first, err := c.Write(context.Background(), "v_test", "v1")
	require.NoError(t, err)
	second, err := c.Write(context.Background(), "v_test", "v2")
	require.NoError(t, err)
	require.Greater(t, second.Version, first.Version)

	result, err := c.Read(context.Background(), "v_test")
	require.NoError(t, err)
	assert.Equal(t, "v2", result.Value)
	assert.Equal(t, second.Version, result.Version)
}
