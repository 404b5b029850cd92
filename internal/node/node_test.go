package node

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replicated-kvstore/internal/cluster"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

// startNode runs a node's HTTP surface on an httptest server.
func startNode(t *testing.T, cfg Config) (*Node, *httptest.Server) {
	t.Helper()

	n := New(cfg, zerolog.Nop())
	r := gin.New()
	NewHandler(n).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return n, srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestLeaderWriteFansOutToSyncFollowers(t *testing.T) {
	leader := New(Config{ID: cluster.LeaderID, Role: cluster.RoleLeader}, zerolog.Nop())
	_, f1 := startNode(t, Config{ID: "follower-1", Role: cluster.RoleFollower})
	_, f2 := startNode(t, Config{ID: "follower-2", Role: cluster.RoleFollower})

	resp := leader.Write(context.Background(), "k1", "hello", []string{f1.URL, f2.URL}, nil)

	assert.Equal(t, uint64(1), resp.Version)
	assert.Equal(t, 2, resp.Replication.SyncAcks)
	assert.ElementsMatch(t, []string{"follower-1", "follower-2"}, resp.Replication.SyncAckedBy)
	assert.Equal(t, 0, resp.Replication.AsyncQueued)
}

func TestLeaderWriteCountsOnlyAcceptedReceipts(t *testing.T) {
	leader := New(Config{ID: cluster.LeaderID, Role: cluster.RoleLeader}, zerolog.Nop())
	ahead, srv := startNode(t, Config{ID: "follower-1", Role: cluster.RoleFollower})

	// Follower already holds a newer version, so the incoming version 1 is
	// stale and its 200-rejected receipt must not count as an ack.
	require.True(t, ahead.store.Apply("k", "future", 10))

	resp := leader.Write(context.Background(), "k", "v", []string{srv.URL}, nil)
	assert.Equal(t, 0, resp.Replication.SyncAcks)
	assert.Empty(t, resp.Replication.SyncAckedBy)
}

func TestLeaderWriteSurvivesDeadFollower(t *testing.T) {
	leader := New(Config{ID: cluster.LeaderID, Role: cluster.RoleLeader}, zerolog.Nop())
	_, alive := startNode(t, Config{ID: "follower-1", Role: cluster.RoleFollower})

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	resp := leader.Write(context.Background(), "k", "resilient", []string{alive.URL, dead.URL}, nil)

	// The dead peer costs an ack, never the local commit.
	assert.Equal(t, 1, resp.Replication.SyncAcks)
	entry, ok := leader.Read("k")
	require.True(t, ok)
	assert.Equal(t, "resilient", entry.Value)
}

func TestLeaderWriteQueuesAsyncFollowers(t *testing.T) {
	leader := New(Config{ID: cluster.LeaderID, Role: cluster.RoleLeader}, zerolog.Nop())

	var mu sync.Mutex
	got := 0
	async := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got++
		mu.Unlock()
		json.NewEncoder(w).Encode(cluster.ReplicateResponse{Status: cluster.ReplicationAccepted, NodeID: "follower-9"})
	}))
	defer async.Close()

	resp := leader.Write(context.Background(), "k", "v", nil, []string{async.URL})
	assert.Equal(t, 1, resp.Replication.AsyncQueued)

	// Fire-and-forget: the call returns before the fan-out lands, so poll.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWriteVersionsAreMonotonicPerKey(t *testing.T) {
	leader := New(Config{ID: cluster.LeaderID, Role: cluster.RoleLeader}, zerolog.Nop())

	first := leader.Write(context.Background(), "v_test", "v1", nil, nil)
	second := leader.Write(context.Background(), "v_test", "v2", nil, nil)

	assert.Equal(t, uint64(1), first.Version)
	assert.Equal(t, uint64(2), second.Version)
}

func TestFollowerRejectsPrimaryWrites(t *testing.T) {
	_, srv := startNode(t, Config{ID: "follower-1", Role: cluster.RoleFollower})

	resp := postJSON(t, srv.URL+"/data", cluster.WriteRequest{Key: "k", Value: "v"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLeaderRejectsReplication(t *testing.T) {
	_, srv := startNode(t, Config{ID: cluster.LeaderID, Role: cluster.RoleLeader})

	resp := postJSON(t, srv.URL+"/replicate", cluster.ReplicateRequest{Key: "k", Value: "v", Version: 1})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestFollowerRejectsRegisterFollower(t *testing.T) {
	_, srv := startNode(t, Config{ID: "follower-1", Role: cluster.RoleFollower})

	resp := postJSON(t, srv.URL+"/register-follower", cluster.RegisterFollowerRequest{URL: "http://localhost:7002"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestReplicateEndpointAcceptsThenRejectsStale(t *testing.T) {
	_, srv := startNode(t, Config{ID: "follower-1", Role: cluster.RoleFollower})

	resp := postJSON(t, srv.URL+"/replicate", cluster.ReplicateRequest{Key: "k", Value: "v2", Version: 2, Source: "leader"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	receipt := decode[cluster.ReplicateResponse](t, resp)
	assert.Equal(t, cluster.ReplicationAccepted, receipt.Status)

	// Deliver v1 after v2: 200, but rejected, and the follower stays at v2.
	resp = postJSON(t, srv.URL+"/replicate", cluster.ReplicateRequest{Key: "k", Value: "v1", Version: 1, Source: "leader"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	receipt = decode[cluster.ReplicateResponse](t, resp)
	assert.Equal(t, cluster.ReplicationRejected, receipt.Status)

	read, err := http.Get(srv.URL + "/data/k")
	require.NoError(t, err)
	defer read.Body.Close()
	body := decode[cluster.ReadResponse](t, read)
	assert.Equal(t, "v2", body.Value)
	assert.Equal(t, uint64(2), body.Version)
}

func TestReadMissingKeyIs404(t *testing.T) {
	_, srv := startNode(t, Config{ID: "follower-1", Role: cluster.RoleFollower})

	resp, err := http.Get(srv.URL + "/data/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSnapshotCatchupRoundTrip(t *testing.T) {
	leader, leaderSrv := startNode(t, Config{ID: cluster.LeaderID, Role: cluster.RoleLeader})
	follower, followerSrv := startNode(t, Config{ID: "follower-1", Role: cluster.RoleFollower})

	leader.Write(context.Background(), "a", "1", nil, nil)
	leader.Write(context.Background(), "b", "2", nil, nil)
	leader.Write(context.Background(), "b", "2b", nil, nil)

	resp, err := http.Get(leaderSrv.URL + "/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	snapshot := decode[cluster.SnapshotPayload](t, resp)

	install := postJSON(t, followerSrv.URL+"/catchup", snapshot)
	require.Equal(t, http.StatusOK, install.StatusCode)
	ack := decode[cluster.CatchupResponse](t, install)
	assert.Equal(t, 2, ack.KeysReceived)

	assert.Equal(t, leader.Dump(), follower.Dump())

	// Idempotence: applying the same payload again changes nothing.
	again := postJSON(t, followerSrv.URL+"/catchup", snapshot)
	require.Equal(t, http.StatusOK, again.StatusCode)
	assert.Equal(t, leader.Dump(), follower.Dump())
}

func TestCatchupDoesNotResurrectNewerLocalState(t *testing.T) {
	// Wholesale install is the contract: a snapshot replaces everything,
	// including entries the follower held at higher versions.
	follower, srv := startNode(t, Config{ID: "follower-1", Role: cluster.RoleFollower})
	follower.store.Apply("k", "newer", 9)

	payload := cluster.SnapshotPayload{
		Data:     map[string]string{"k": "leader-truth"},
		Versions: map[string]uint64{"k": 4},
	}
	resp := postJSON(t, srv.URL+"/catchup", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entry, _ := follower.Read("k")
	assert.Equal(t, "leader-truth", entry.Value)
	assert.Equal(t, uint64(4), entry.Version)
}

func TestRegisterFollowerDeduplicates(t *testing.T) {
	leader := New(Config{ID: cluster.LeaderID, Role: cluster.RoleLeader}, zerolog.Nop())

	leader.RegisterFollower("http://localhost:7002")
	leader.RegisterFollower("http://localhost:7003")
	followers := leader.RegisterFollower("http://localhost:7002")

	assert.Equal(t, []string{"http://localhost:7002", "http://localhost:7003"}, followers)
}

func TestHealthReportsIdentity(t *testing.T) {
	_, srv := startNode(t, Config{ID: "follower-2", Role: cluster.RoleFollower})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[cluster.HealthResponse](t, resp)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "follower-2", health.NodeID)
	assert.Equal(t, cluster.RoleFollower, health.Role)
}

func TestHeartbeatPostsDescriptor(t *testing.T) {
	var mu sync.Mutex
	var got cluster.HeartbeatRequest
	beats := 0
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		beats++
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(gin.H{"nodes": []any{}})
	}))
	defer registry.Close()

	n := New(Config{
		ID:          "follower-1",
		Role:        cluster.RoleFollower,
		Port:        7002,
		RegistryURL: registry.URL,
	}, zerolog.Nop())

	n.beat(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, beats)
	assert.Equal(t, "follower-1", got.NodeID)
	assert.Equal(t, 7002, got.Port)
	assert.Equal(t, "http://localhost:7002", got.URL)
	assert.Equal(t, cluster.RoleFollower, got.Role)
}
