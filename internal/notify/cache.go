package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// alertKeyPrefix namespaces the per-alert cache entries.
	alertKeyPrefix = "alert:"
	// queueKeyPrefix namespaces the per-role notification lists.
	queueKeyPrefix = "notifications:"

	// DefaultAlertTTL bounds how long a per-alert cache entry outlives its
	// last write.
	DefaultAlertTTL = time.Hour
	// DefaultQueueCap bounds each role queue to its most recent entries.
	DefaultQueueCap = 100

	pingTimeout = 1 * time.Second
)

// removeScript deletes the first queue entry whose alert_id matches. The
// scan runs server-side so concurrent pushes cannot shift list positions
// between the read and the LREM.
var removeScript = redis.NewScript(`
local entries = redis.call('LRANGE', KEYS[1], 0, -1)
for _, entry in ipairs(entries) do
	local ok, decoded = pcall(cjson.decode, entry)
	if ok and decoded['alert_id'] == ARGV[1] then
		redis.call('LREM', KEYS[1], 1, entry)
		return 1
	end
end
return 0
`)

// Cache is the Redis-backed delivery cache. It never propagates Redis
// errors: writes degrade to logged no-ops and reads to empty results, so a
// cache outage leaves the engine fully functional on Postgres alone.
type Cache struct {
	client   *redis.Client
	ttl      time.Duration
	queueCap int64
}

// NewCacheWithClient wraps an existing client. The caller keeps ownership of
// the client lifecycle unless Close is called; a failed connection is not
// fatal, the cache starts degraded and recovers on its own once Redis is
// reachable.
func NewCacheWithClient(client *redis.Client, ttl time.Duration, queueCap int) *Cache {
	if ttl <= 0 {
		ttl = DefaultAlertTTL
	}
	if queueCap <= 0 {
		queueCap = DefaultQueueCap
	}
	return &Cache{client: client, ttl: ttl, queueCap: int64(queueCap)}
}

// Available reports whether Redis currently answers pings.
func (c *Cache) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.client.Ping(ctx).Err() == nil
}

// SetAlert upserts the per-alert cache entry with the configured TTL.
func (c *Cache) SetAlert(ctx context.Context, id string, env *Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		slog.Warn("Failed to marshal alert envelope", "alert_id", id, "error", err)
		return
	}
	if err := c.client.Set(ctx, alertKeyPrefix+id, payload, c.ttl).Err(); err != nil {
		slog.Warn("Failed to cache alert", "alert_id", id, "error", err)
	}
}

// Alert reads the per-alert cache entry, or nil when absent, expired, or the
// cache is unreachable.
func (c *Cache) Alert(ctx context.Context, id string) *Envelope {
	data, err := c.client.Get(ctx, alertKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		slog.Warn("Failed to read cached alert", "alert_id", id, "error", err)
		return nil
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("Malformed cached alert entry", "alert_id", id, "error", err)
		return nil
	}
	return &env
}

// DeleteAlert drops the per-alert cache entry.
func (c *Cache) DeleteAlert(ctx context.Context, id string) {
	if err := c.client.Del(ctx, alertKeyPrefix+id).Err(); err != nil {
		slog.Warn("Failed to delete cached alert", "alert_id", id, "error", err)
	}
}

// PushNotification appends an envelope to a role queue and trims the queue
// to its cap, pipelined so the queue never exceeds the cap between the two.
func (c *Cache) PushNotification(ctx context.Context, role Role, env *Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		slog.Warn("Failed to marshal notification envelope", "role", role, "error", err)
		return
	}
	key := queueKeyPrefix + string(role)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.LTrim(ctx, key, -c.queueCap, -1)
		return nil
	})
	if err != nil {
		slog.Warn("Failed to push notification", "role", role, "alert_id", env.AlertID, "error", err)
	}
}

// RecentNotifications returns up to count envelopes from a role queue, most
// recent first. Malformed entries are skipped.
func (c *Cache) RecentNotifications(ctx context.Context, role Role, count int) []*Envelope {
	if count <= 0 {
		return nil
	}
	key := queueKeyPrefix + string(role)
	raw, err := c.client.LRange(ctx, key, int64(-count), -1).Result()
	if err != nil {
		slog.Warn("Failed to read notifications", "role", role, "error", err)
		return nil
	}

	envs := make([]*Envelope, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var env Envelope
		if err := json.Unmarshal([]byte(raw[i]), &env); err != nil {
			slog.Warn("Skipping malformed notification entry", "role", role, "error", err)
			continue
		}
		envs = append(envs, &env)
	}
	return envs
}

// RemoveNotification deletes the queue entry for one alert from a role queue.
func (c *Cache) RemoveNotification(ctx context.Context, role Role, alertID string) {
	key := queueKeyPrefix + string(role)
	if err := removeScript.Run(ctx, c.client, []string{key}, alertID).Err(); err != nil {
		slog.Warn("Failed to remove notification", "role", role, "alert_id", alertID, "error", err)
	}
}

// ClearQueue drops a role queue entirely.
func (c *Cache) ClearQueue(ctx context.Context, role Role) {
	if err := c.client.Del(ctx, queueKeyPrefix+string(role)).Err(); err != nil {
		slog.Warn("Failed to clear notification queue", "role", role, "error", err)
	}
}
