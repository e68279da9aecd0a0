package transport

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/FairForge/meshcache/internal/cache"
)

// NewHandler builds the node-side replication surface consumed by Client.
// These endpoints mutate the local store verbatim: no version bumps and no
// further fan-out, so replication cannot loop between peers.
func NewHandler(c *cache.DistributedCache, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Put("/internal/v1/entries", func(w http.ResponseWriter, req *http.Request) {
		var entry cache.Entry
		if err := json.NewDecoder(req.Body).Decode(&entry); err != nil {
			http.Error(w, "invalid entry payload", http.StatusBadRequest)
			return
		}
		if err := c.ApplyReplica(&entry); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Debug("replica applied", zap.String("key", entry.Key))
		w.WriteHeader(http.StatusNoContent)
	})

	r.Delete("/internal/v1/entries/{key}", func(w http.ResponseWriter, req *http.Request) {
		key, err := url.PathUnescape(chi.URLParam(req, "key"))
		if err != nil {
			http.Error(w, "invalid key", http.StatusBadRequest)
			return
		}
		c.DeleteReplica(key)
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/internal/v1/clear", func(w http.ResponseWriter, req *http.Request) {
		removed := c.ClearReplica()
		writeJSON(w, map[string]int{"removed": removed})
	})

	r.Get("/internal/v1/entries/{key}/fingerprint", func(w http.ResponseWriter, req *http.Request) {
		key, err := url.PathUnescape(chi.URLParam(req, "key"))
		if err != nil {
			http.Error(w, "invalid key", http.StatusBadRequest)
			return
		}
		fp, ok := c.LocalFingerprint(key)
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		writeJSON(w, fingerprintResponse{Fingerprint: fp})
	})

	r.Get("/internal/v1/health", func(w http.ResponseWriter, req *http.Request) {
		stats := c.GetMetrics()
		writeJSON(w, healthResponse{
			Status:        cache.NodeOnline.String(),
			MemoryUsageMB: c.UsedMemoryMB(),
			HitRate:       stats.HitRate,
			// Load reporting needs host-level inputs the engine does not
			// collect; peers treat zero as unloaded.
			Load: 0,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
