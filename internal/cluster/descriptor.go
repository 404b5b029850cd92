// Package cluster holds the types and helpers shared by the coordinator,
// node, and registry processes: node descriptors, wire payloads, HTTP JSON
// plumbing, quorum set selection, and the process launcher.
package cluster

import (
	"fmt"
	"time"
)

// Role distinguishes the single leader from follower replicas.
type Role string

const (
	RoleLeader   Role = "leader"
	RoleFollower Role = "follower"
)

// Status is a node's lifecycle state as seen by the coordinator or registry.
// A follower moves starting → alive → dead and only re-enters starting
// through a fresh spawn.
type Status string

const (
	StatusStarting Status = "starting"
	StatusAlive    Status = "alive"
	StatusDead     Status = "dead"
)

// LeaderID is the reserved node id of the statically designated leader.
const LeaderID = "leader"

// FollowerID derives the id for follower slot n.
func FollowerID(n int) string {
	return fmt.Sprintf("follower-%d", n)
}

// NodeDescriptor identifies one node and where to reach it. The coordinator
// and the registry each keep their own table of these.
type NodeDescriptor struct {
	ID            string    `json:"node_id"`
	URL           string    `json:"url"`
	Port          int       `json:"port"`
	Role          Role      `json:"role"`
	Status        Status    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
}

// URLForPort builds the loopback base URL for a node port.
func URLForPort(port int) string {
	return fmt.Sprintf("http://localhost:%d", port)
}
