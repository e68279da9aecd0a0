package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"
)

// Entry is a single cached value with expiry metadata and a content
// fingerprint. The fingerprint is computed once at construction and never
// changes; overwriting a key builds a new Entry with an incremented version.
type Entry struct {
	Key         string            `json:"key"`
	Value       []byte            `json:"value"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   time.Time         `json:"expires_at,omitempty"`
	TTL         time.Duration     `json:"ttl"`
	Version     int64             `json:"version"`
	Fingerprint string            `json:"fingerprint"`
	AccessCount int64             `json:"access_count"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewEntry builds a versioned entry and computes its fingerprint.
// A zero ttl means the entry never expires.
func NewEntry(key string, value []byte, ttl time.Duration, version int64) (*Entry, error) {
	if key == "" {
		return nil, errors.New("cache: entry key is required")
	}
	if ttl < 0 {
		return nil, errors.New("cache: entry ttl must not be negative")
	}
	if version < 1 {
		return nil, errors.New("cache: entry version must be at least 1")
	}

	now := time.Now()
	e := &Entry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		TTL:       ttl,
		Version:   version,
	}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	e.Fingerprint = fingerprint(key, value, version, now)
	return e, nil
}

// clone returns a copy safe to read outside the store lock. The value bytes
// are written once at construction and never mutated, so the slice header is
// shared; the metadata map is copied.
func (e *Entry) clone() *Entry {
	out := *e
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// IsExpired reports whether the entry's lifetime has elapsed.
func (e *Entry) IsExpired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// ApproxSize estimates the in-memory footprint of the entry in bytes.
func (e *Entry) ApproxSize() int64 {
	// Struct, map and bookkeeping overhead beyond the raw key/value bytes.
	const entryOverhead = 96
	return int64(len(e.Key)) + int64(len(e.Value)) + entryOverhead
}

// fingerprint digests key, value, version and creation time. Including the
// creation timestamp means two writes of the same logical value at different
// instants diverge; replica repair rewrites the whole entry so replicas
// converge on an identical preimage.
func fingerprint(key string, value []byte, version int64, createdAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write(value)

	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(version))
	binary.BigEndian.PutUint64(buf[8:16], uint64(createdAt.UnixNano()))
	h.Write(buf[:])

	return hex.EncodeToString(h.Sum(nil))
}
