package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNode(t *testing.T) {
	t.Run("valid node starts online", func(t *testing.T) {
		n, err := NewNode("node-1", "10.0.0.1:7000")
		require.NoError(t, err)

		assert.Equal(t, NodeOnline, n.Status)
		assert.False(t, n.LastHeartbeat.IsZero())
	})

	t.Run("rejects malformed nodes", func(t *testing.T) {
		cases := []struct {
			name    string
			id      string
			address string
		}{
			{"empty id", "", "10.0.0.1:7000"},
			{"empty address", "node-1", ""},
			{"missing port", "node-1", "10.0.0.1"},
			{"port zero", "node-1", "10.0.0.1:0"},
			{"port too high", "node-1", "10.0.0.1:70000"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := NewNode(tc.id, tc.address)
				assert.Error(t, err)
			})
		}
	})

	t.Run("rejects out-of-range health figures", func(t *testing.T) {
		n, err := NewNode("node-1", "10.0.0.1:7000")
		require.NoError(t, err)

		n.HitRate = 1.5
		assert.Error(t, n.Validate())

		n.HitRate = 0.5
		n.Load = -0.1
		assert.Error(t, n.Validate())

		n.Load = 0.5
		n.MemoryUsageMB = -1
		assert.Error(t, n.Validate())
	})
}

func TestNode_HealthScore(t *testing.T) {
	t.Run("zero unless online", func(t *testing.T) {
		n, err := NewNode("node-1", "10.0.0.1:7000")
		require.NoError(t, err)
		n.HitRate = 0.9

		for _, status := range []NodeStatus{NodeOffline, NodeDegraded, NodeSyncing, NodeMaintenance} {
			n.Status = status
			assert.Zero(t, n.HealthScore(), status.String())
		}

		n.Status = NodeOnline
		assert.Greater(t, n.HealthScore(), 0.0)
	})

	t.Run("stays within bounds", func(t *testing.T) {
		n, err := NewNode("node-1", "10.0.0.1:7000")
		require.NoError(t, err)

		// Extreme memory pressure clamps the memory term at zero.
		n.MemoryUsageMB = 5000
		n.HitRate = 1
		n.Load = 0
		score := n.HealthScore()
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
		assert.InDelta(t, 0.7, score, 0.001)

		// Ideal node scores 1.
		n.MemoryUsageMB = 0
		assert.InDelta(t, 1.0, n.HealthScore(), 0.001)
	})
}

func TestParseNodeStatus(t *testing.T) {
	for _, status := range []NodeStatus{NodeOnline, NodeOffline, NodeDegraded, NodeSyncing, NodeMaintenance} {
		parsed, err := ParseNodeStatus(status.String())
		require.NoError(t, err)
		assert.Equal(t, status, parsed)
	}

	_, err := ParseNodeStatus("bogus")
	assert.Error(t, err)
}
