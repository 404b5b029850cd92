// Package client provides a Go SDK for the coordinator's HTTP API. It wraps
// the raw requests behind a typed interface so callers (the kvctl CLI, test
// harnesses) never touch JSON or status codes directly.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to one coordinator.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. A zero timeout defaults to 10s; never call the
// network without one.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WriteResponse is returned after a quorum write.
type WriteResponse struct {
	Status           string   `json:"status"`
	Key              string   `json:"key"`
	Value            string   `json:"value"`
	Version          uint64   `json:"version"`
	SyncAcks         int      `json:"sync_acks"`
	Quorum           int      `json:"quorum"`
	SyncReplicatedTo []string `json:"sync_replicated_to"`
}

// ReadResponse is returned after a quorum read.
type ReadResponse struct {
	Key             string `json:"key"`
	Value           string `json:"value"`
	Version         uint64 `json:"version"`
	ServedBy        string `json:"served_by"`
	QuorumResponses int    `json:"quorum_responses"`
}

// SpawnResponse describes the slot a spawn landed in.
type SpawnResponse struct {
	Status string `json:"status"`
	NodeID string `json:"node_id"`
	URL    string `json:"url"`
}

// KillResponse reports a kill and the remaining write capability.
type KillResponse struct {
	Status   string `json:"status"`
	NodeID   string `json:"node_id"`
	CanWrite bool   `json:"can_write"`
}

// Write stores key=value through the coordinator's quorum write path.
func (c *Client) Write(ctx context.Context, key, value string) (*WriteResponse, error) {
	body, _ := json.Marshal(map[string]string{"key": key, "value": value})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/write", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("write request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var result WriteResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Read fetches key through the coordinator's quorum read path. A 404 becomes
// ErrNotFound, a 503 becomes ErrNoQuorum.
func (c *Client) Read(ctx context.Context, key string) (*ReadResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/read/"+key, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("read request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusServiceUnavailable:
		return nil, ErrNoQuorum
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var result ReadResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Spawn starts a follower, optionally pinning it to a slot.
func (c *Client) Spawn(ctx context.Context, nodeID string, port int) (*SpawnResponse, error) {
	payload := map[string]any{}
	if nodeID != "" {
		payload["node_id"] = nodeID
		payload["port"] = port
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/spawn", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("spawn request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var result SpawnResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Kill terminates a follower.
func (c *Client) Kill(ctx context.Context, nodeID string) (*KillResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/kill/"+nodeID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kill request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var result KillResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// ─── Errors ───────────────────────────────────────────────────────────────────

// ErrNotFound is returned when no read responder held the key.
var ErrNotFound = errors.New("key not found")

// ErrNoQuorum is returned when the cluster cannot currently satisfy the
// requested quorum.
var ErrNoQuorum = errors.New("quorum unavailable")

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// checkStatus converts non-2xx responses into APIError, extracting the
// server's {"error": "..."} message when present.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
