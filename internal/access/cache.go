package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "access:version"
	// InvalidationChannel carries invalidation events between processes.
	InvalidationChannel = "access.invalidate"

	defaultCacheSize = 10000
	// generationTTL bounds how long a per-user invalidation counter outlives its last bump.
	generationTTL = 24 * time.Hour
)

// storeIfCurrent writes a snapshot only when neither the keyspace version nor the user's
// invalidation counter moved since the snapshot's computation started.
var storeIfCurrent = redis.NewScript(`
local version = redis.call('GET', KEYS[1]) or '0'
local generation = redis.call('GET', KEYS[2]) or '0'
if version ~= ARGV[1] or generation ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[3], ARGV[3], 'PX', ARGV[4])
return 1
`)

// CacheConfig sizes the snapshot cache.
type CacheConfig struct {
	// Size bounds the number of local entries.
	Size int
	// TTL bounds how long a local entry lives. Zero keeps entries until evicted.
	TTL time.Duration
	// SharedTTL is the lifetime of Redis entries. Zero disables the shared tier.
	SharedTTL time.Duration
}

// Cache stores resolved snapshots per user. Entries live in a local LRU and, when a Redis
// client is configured, in a versioned Redis keyspace shared by every process. Invalidations
// are broadcast so other processes drop their local copies.
type Cache struct {
	local     *lru.LRU[int64, EffectivePermissions]
	client    *redis.Client
	sharedTTL time.Duration
	origin    string
	logger    *slog.Logger
	metrics   *Metrics

	// generation moves on every local or remote invalidation.
	generation atomic.Uint64
}

// writeToken captures the invalidation state observed before a snapshot is computed.
type writeToken struct {
	local      uint64
	version    string
	generation string
	shared     bool
}

// InvalidationEvent is published on InvalidationChannel.
type InvalidationEvent struct {
	ID     string `json:"id"`
	Origin string `json:"origin"`
	UserID int64  `json:"user_id,omitempty"`
	All    bool   `json:"all,omitempty"`
}

// NewCache builds a cache. A nil client keeps the cache process-local.
func NewCache(client *redis.Client, cfg CacheConfig, logger *slog.Logger, metrics *Metrics) *Cache {
	size := cfg.Size
	if size <= 0 {
		size = defaultCacheSize
	}
	return &Cache{
		local:     lru.NewLRU[int64, EffectivePermissions](size, nil, cfg.TTL),
		client:    client,
		sharedTTL: cfg.SharedTTL,
		origin:    uuid.NewString(),
		logger:    logger,
		metrics:   metrics,
	}
}

func (c *Cache) shared() bool {
	return c.client != nil && c.sharedTTL > 0
}

// Get returns the cached snapshot for the user. Shared tier failures count as misses.
func (c *Cache) Get(ctx context.Context, userID int64) (EffectivePermissions, bool) {
	if snapshot, ok := c.local.Get(userID); ok {
		c.metrics.lookup("local", true)
		return snapshot.Clone(), true
	}
	c.metrics.lookup("local", false)
	if !c.shared() {
		return EffectivePermissions{}, false
	}

	key, err := c.key(ctx, userID)
	if err != nil {
		c.warn("access cache version", err)
		return EffectivePermissions{}, false
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn("access cache get", err)
		}
		c.metrics.lookup("shared", false)
		return EffectivePermissions{}, false
	}
	snapshot, err := decodeSnapshot(payload)
	if err != nil {
		c.warn("access cache decode", err)
		c.metrics.lookup("shared", false)
		return EffectivePermissions{}, false
	}
	c.metrics.lookup("shared", true)
	c.local.Add(userID, snapshot)
	return snapshot.Clone(), true
}

// Set stores the snapshot in every tier.
func (c *Cache) Set(ctx context.Context, userID int64, snapshot EffectivePermissions) {
	c.store(ctx, userID, snapshot, c.token(ctx, userID))
}

// token reads the invalidation state a later store call is checked against. When the shared
// counters cannot be read the snapshot is only kept locally.
func (c *Cache) token(ctx context.Context, userID int64) writeToken {
	tok := writeToken{local: c.generation.Load()}
	if !c.shared() {
		return tok
	}
	values, err := c.client.MGet(ctx, cacheVersionKey, generationKey(userID)).Result()
	if err != nil {
		c.warn("access cache token", err)
		return tok
	}
	tok.version = counterValue(values[0])
	tok.generation = counterValue(values[1])
	tok.shared = true
	return tok
}

// store writes the snapshot unless an invalidation happened after tok was taken. It reports
// whether the snapshot was kept.
func (c *Cache) store(ctx context.Context, userID int64, snapshot EffectivePermissions, tok writeToken) bool {
	if c.generation.Load() != tok.local {
		return false
	}
	snapshot = snapshot.Clone()
	if tok.shared {
		payload, err := encodeSnapshot(snapshot)
		if err != nil {
			c.warn("access cache encode", err)
			return false
		}
		keys := []string{cacheVersionKey, generationKey(userID), snapshotKey(tok.version, userID)}
		stored, err := storeIfCurrent.Run(ctx, c.client, keys, tok.version, tok.generation, payload, c.sharedTTL.Milliseconds()).Int()
		if err != nil {
			c.warn("access cache set", err)
			return false
		}
		if stored == 0 {
			return false
		}
	}
	c.local.Add(userID, snapshot)
	if c.generation.Load() != tok.local {
		c.local.Remove(userID)
		return false
	}
	return true
}

// Delete drops the user's snapshot locally and in Redis, then notifies other processes.
// Snapshots of the user still being computed anywhere are discarded instead of stored.
func (c *Cache) Delete(ctx context.Context, userID int64) error {
	c.generation.Add(1)
	c.local.Remove(userID)
	if c.client == nil {
		return nil
	}
	if c.shared() {
		genKey := generationKey(userID)
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, genKey)
			pipe.Expire(ctx, genKey, generationTTL)
			return nil
		})
		if err != nil {
			return fmt.Errorf("access: cache generation: %w", err)
		}
		key, err := c.key(ctx, userID)
		if err != nil {
			return fmt.Errorf("access: cache version: %w", err)
		}
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("access: cache delete: %w", err)
		}
	}
	return c.publish(ctx, InvalidationEvent{UserID: userID})
}

// Clear drops every snapshot. The shared tier is invalidated by bumping its version.
func (c *Cache) Clear(ctx context.Context) error {
	c.generation.Add(1)
	c.local.Purge()
	if c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		return fmt.Errorf("access: cache bump: %w", err)
	}
	return c.publish(ctx, InvalidationEvent{All: true})
}

// Len reports the number of local entries.
func (c *Cache) Len() int {
	return c.local.Len()
}

// Listen subscribes to invalidation events from other processes and applies them to the
// local tier until ctx is done. It returns once the subscription is confirmed.
func (c *Cache) Listen(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, InvalidationChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("access: subscribe: %w", err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c.apply(msg.Payload)
			}
		}
	}()
	return nil
}

func (c *Cache) apply(payload string) {
	var event InvalidationEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		// An unreadable event may have targeted anyone.
		c.warn("access invalidation decode", err)
		c.generation.Add(1)
		c.local.Purge()
		return
	}
	if event.Origin == c.origin {
		return
	}
	c.generation.Add(1)
	if event.All {
		c.local.Purge()
		return
	}
	c.local.Remove(event.UserID)
}

func (c *Cache) publish(ctx context.Context, event InvalidationEvent) error {
	event.ID = uuid.NewString()
	event.Origin = c.origin
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, InvalidationChannel, payload).Err(); err != nil {
		return fmt.Errorf("access: publish invalidation %s: %w", event.ID, err)
	}
	return nil
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

func (c *Cache) key(ctx context.Context, userID int64) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return snapshotKey(strconv.FormatInt(ver, 10), userID), nil
}

func snapshotKey(version string, userID int64) string {
	return "access:snapshot:" + version + ":" + strconv.FormatInt(userID, 10)
}

func generationKey(userID int64) string {
	return "access:generation:" + strconv.FormatInt(userID, 10)
}

func counterValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "0"
}

func (c *Cache) warn(msg string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn(msg, slog.Any("error", err))
}
