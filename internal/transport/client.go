package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/meshcache/internal/cache"
)

// Client is the HTTP-backed NodeClient and HealthProbe. Node ids are mapped
// to base URLs at registration time; every call carries its own timeout so
// an unreachable peer cannot stall the engine.
type Client struct {
	mu      sync.RWMutex
	addrs   map[string]string
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a transport client with a per-call timeout.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		addrs:   make(map[string]string),
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

// Register maps a node id to its transport base URL, e.g.
// "http://10.0.0.5:8081".
func (c *Client) Register(nodeID, baseURL string) {
	c.mu.Lock()
	c.addrs[nodeID] = baseURL
	c.mu.Unlock()
	c.logger.Debug("registered peer address",
		zap.String("node_id", nodeID),
		zap.String("base_url", baseURL))
}

// Unregister forgets a node's address.
func (c *Client) Unregister(nodeID string) {
	c.mu.Lock()
	delete(c.addrs, nodeID)
	c.mu.Unlock()
	c.logger.Debug("unregistered peer address", zap.String("node_id", nodeID))
}

func (c *Client) baseURL(nodeID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	base, ok := c.addrs[nodeID]
	if !ok {
		return "", fmt.Errorf("transport: no address for node %s", nodeID)
	}
	return base, nil
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("transport: building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: %s %s: %w", method, url, err)
	}
	if resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("transport: %s %s: status %d", method, url, resp.StatusCode)
	}
	return resp, nil
}

// Apply replicates an entry onto a remote node.
func (c *Client) Apply(ctx context.Context, nodeID string, entry *cache.Entry) error {
	base, err := c.baseURL(nodeID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("transport: encoding entry: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPut, base+"/internal/v1/entries", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Delete removes a key on a remote node.
func (c *Client) Delete(ctx context.Context, nodeID, key string) error {
	base, err := c.baseURL(nodeID)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodDelete, base+"/internal/v1/entries/"+url.PathEscape(key), nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Clear drops every entry on a remote node.
func (c *Client) Clear(ctx context.Context, nodeID string) error {
	base, err := c.baseURL(nodeID)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, base+"/internal/v1/clear", nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Fingerprint fetches a remote entry's fingerprint.
func (c *Client) Fingerprint(ctx context.Context, nodeID, key string) (string, error) {
	base, err := c.baseURL(nodeID)
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, http.MethodGet, base+"/internal/v1/entries/"+url.PathEscape(key)+"/fingerprint", nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var out fingerprintResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("transport: decoding fingerprint: %w", err)
	}
	return out.Fingerprint, nil
}

// Check probes a remote node's health endpoint.
func (c *Client) Check(ctx context.Context, nodeID string) (cache.HealthReport, error) {
	base, err := c.baseURL(nodeID)
	if err != nil {
		return cache.HealthReport{}, err
	}
	resp, err := c.do(ctx, http.MethodGet, base+"/internal/v1/health", nil)
	if err != nil {
		return cache.HealthReport{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return cache.HealthReport{}, fmt.Errorf("transport: decoding health: %w", err)
	}
	status, err := cache.ParseNodeStatus(out.Status)
	if err != nil {
		return cache.HealthReport{}, err
	}
	return cache.HealthReport{
		Status:        status,
		MemoryUsageMB: out.MemoryUsageMB,
		HitRate:       out.HitRate,
		Load:          out.Load,
	}, nil
}

type fingerprintResponse struct {
	Fingerprint string `json:"fingerprint"`
}

type healthResponse struct {
	Status        string  `json:"status"`
	MemoryUsageMB float64 `json:"memory_usage_mb"`
	HitRate       float64 `json:"hit_rate"`
	Load          float64 `json:"load"`
}
