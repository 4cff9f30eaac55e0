// Package storage provides the durable key-value layer behind the storefront
// stores: pluggable backends, per-device namespacing and a best-effort
// asynchronous writer.
package storage

import (
	"context"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fixed keys under which each store persists its JSON snapshot.
const (
	KeyCart          = "cart-storage"
	KeySubscriptions = "subscription-storage"
	KeyWishlist      = "wishlist-storage"
	KeyBranchCache   = "branch-cache"
)

// KV is durable string storage. GetItem reports ok=false for absent keys.
type KV interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

type namespaced struct {
	kv     KV
	prefix string
}

// Namespace scopes kv so every key is stored as prefix+key.
func Namespace(kv KV, prefix string) KV {
	return &namespaced{kv: kv, prefix: prefix}
}

func (n *namespaced) GetItem(ctx context.Context, key string) (string, bool, error) {
	return n.kv.GetItem(ctx, n.prefix+key)
}

func (n *namespaced) SetItem(ctx context.Context, key, value string) error {
	return n.kv.SetItem(ctx, n.prefix+key, value)
}

func (n *namespaced) RemoveItem(ctx context.Context, key string) error {
	return n.kv.RemoveItem(ctx, n.prefix+key)
}

func (n *namespaced) Ping(ctx context.Context) error {
	return n.kv.Ping(ctx)
}

// DevicePrefix is the namespace used for one device's state. Keys carry a
// digest of the id so raw device identifiers never reach the backend.
func DevicePrefix(deviceID string) string {
	sum := blake2b.Sum256([]byte(deviceID))
	return "device:" + hex.EncodeToString(sum[:16]) + ":"
}

// Bucket is a device-scoped view of storage. Writes are handed to the shared
// Persister and never fail; reads see queued writes before the backend.
type Bucket struct {
	kv        KV
	prefix    string
	persister *Persister
}

// NewBucket builds a bucket over kv whose writes are queued on p.
func NewBucket(kv KV, p *Persister, prefix string) *Bucket {
	return &Bucket{kv: Namespace(kv, prefix), prefix: prefix, persister: p}
}

// GetItem reads key synchronously.
func (b *Bucket) GetItem(ctx context.Context, key string) (string, bool, error) {
	if value, removed, ok := b.persister.Lookup(b.prefix + key); ok {
		return value, !removed, nil
	}
	return b.kv.GetItem(ctx, key)
}

// Save queues a write of value under key.
func (b *Bucket) Save(key, value string) {
	b.persister.Save(b.prefix+key, value)
}

// Remove queues deletion of key.
func (b *Bucket) Remove(key string) {
	b.persister.Remove(b.prefix + key)
}
