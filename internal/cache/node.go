package cache

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// NodeStatus represents the liveness state of a cache node.
type NodeStatus int

const (
	NodeOnline NodeStatus = iota
	NodeOffline
	NodeDegraded
	NodeSyncing
	NodeMaintenance
)

func (s NodeStatus) String() string {
	switch s {
	case NodeOnline:
		return "online"
	case NodeOffline:
		return "offline"
	case NodeDegraded:
		return "degraded"
	case NodeSyncing:
		return "syncing"
	case NodeMaintenance:
		return "maintenance"
	default:
		return "unknown"
	}
}

// ParseNodeStatus maps a wire/config string to a NodeStatus.
func ParseNodeStatus(s string) (NodeStatus, error) {
	switch s {
	case "online":
		return NodeOnline, nil
	case "offline":
		return NodeOffline, nil
	case "degraded":
		return NodeDegraded, nil
	case "syncing":
		return NodeSyncing, nil
	case "maintenance":
		return NodeMaintenance, nil
	default:
		return NodeOffline, fmt.Errorf("cache: invalid node status %q", s)
	}
}

// Node is one participant in the cache cluster.
type Node struct {
	ID            string            `json:"id"`
	Address       string            `json:"address"`
	Status        NodeStatus        `json:"status"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	MemoryUsageMB float64           `json:"memory_usage_mb"`
	HitRate       float64           `json:"hit_rate"`
	Load          float64           `json:"load"`
	Version       string            `json:"version"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewNode builds a node in the Online state and validates the address.
func NewNode(id, address string) (*Node, error) {
	n := &Node{
		ID:            id,
		Address:       address,
		Status:        NodeOnline,
		LastHeartbeat: time.Now(),
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// Validate checks the node's invariants: non-empty id, a host:port address
// with a port in [1,65535], and hit rate / load within [0,1].
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("cache: node id is required")
	}
	if n.Address == "" {
		return fmt.Errorf("cache: node address is required")
	}
	_, portStr, err := net.SplitHostPort(n.Address)
	if err != nil {
		return fmt.Errorf("cache: node address %q: %w", n.Address, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("cache: node port %q out of range", portStr)
	}
	if n.MemoryUsageMB < 0 {
		return fmt.Errorf("cache: node memory usage must not be negative")
	}
	if n.HitRate < 0 || n.HitRate > 1 {
		return fmt.Errorf("cache: node hit rate must be within [0,1]")
	}
	if n.Load < 0 || n.Load > 1 {
		return fmt.Errorf("cache: node load must be within [0,1]")
	}
	return nil
}

// HealthScore summarises node fitness as a [0,1] figure. Any status other
// than Online scores zero; otherwise memory pressure, hit rate and load are
// blended 30/40/30.
func (n *Node) HealthScore() float64 {
	if n.Status != NodeOnline {
		return 0
	}

	memScore := 1 - n.MemoryUsageMB/1000
	if memScore < 0 {
		memScore = 0
	}

	score := 0.3*memScore + 0.4*n.HitRate + 0.3*(1-n.Load)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// clone returns a copy safe to hand outside the registry lock.
func (n *Node) clone() *Node {
	c := *n
	if n.Metadata != nil {
		c.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
