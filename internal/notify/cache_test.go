package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"alert-engine/internal/alert"
)

// testCache connects to a local Redis and skips the test when none is running.
func testCache(t *testing.T, queueCap int) (*Cache, *redis.Client) {
	t.Helper()
	ctx := context.Background()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Skipping test: Redis not available: %v", err)
		return nil, nil
	}
	t.Cleanup(func() { client.Close() })

	return NewCacheWithClient(client, time.Minute, queueCap), client
}

func testEnvelope(alertID string) *Envelope {
	return &Envelope{
		AlertID:     alertID,
		EventType:   alert.TransitionCreated,
		Kind:        alert.KindStockCritical,
		Severity:    alert.SeverityHigh,
		Message:     "Critical stock: Amoxicillin 500mg has 4 units (minimum: 10)",
		SubjectName: "Amoxicillin 500mg",
		Timestamp:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestCache_AlertRoundTrip(t *testing.T) {
	cache, _ := testCache(t, DefaultQueueCap)
	ctx := context.Background()

	env := testEnvelope("cache-test-rt")
	cache.SetAlert(ctx, env.AlertID, env)
	defer cache.DeleteAlert(ctx, env.AlertID)

	got := cache.Alert(ctx, env.AlertID)
	if got == nil {
		t.Fatal("Alert() = nil after SetAlert")
	}
	if got.AlertID != env.AlertID || got.Kind != env.Kind || got.Message != env.Message {
		t.Errorf("Alert() = %+v, want the stored envelope", got)
	}

	cache.DeleteAlert(ctx, env.AlertID)
	if got := cache.Alert(ctx, env.AlertID); got != nil {
		t.Errorf("Alert() = %+v after delete, want nil", got)
	}
}

func TestCache_Alert_Missing(t *testing.T) {
	cache, _ := testCache(t, DefaultQueueCap)

	if got := cache.Alert(context.Background(), "cache-test-missing"); got != nil {
		t.Errorf("Alert() = %+v for unknown id, want nil", got)
	}
}

func TestCache_QueueRecentFirst(t *testing.T) {
	cache, _ := testCache(t, DefaultQueueCap)
	ctx := context.Background()

	cache.ClearQueue(ctx, RoleAdmin)
	defer cache.ClearQueue(ctx, RoleAdmin)

	for i := 1; i <= 3; i++ {
		cache.PushNotification(ctx, RoleAdmin, testEnvelope(fmt.Sprintf("cache-test-q%d", i)))
	}

	envs := cache.RecentNotifications(ctx, RoleAdmin, 10)
	if len(envs) != 3 {
		t.Fatalf("RecentNotifications() returned %d envelopes, want 3", len(envs))
	}
	for i, want := range []string{"cache-test-q3", "cache-test-q2", "cache-test-q1"} {
		if envs[i].AlertID != want {
			t.Errorf("envs[%d].AlertID = %q, want %q", i, envs[i].AlertID, want)
		}
	}

	// A smaller count returns only the most recent entries.
	envs = cache.RecentNotifications(ctx, RoleAdmin, 2)
	if len(envs) != 2 || envs[0].AlertID != "cache-test-q3" || envs[1].AlertID != "cache-test-q2" {
		t.Errorf("RecentNotifications(2) = %v, want the two newest", envs)
	}
}

func TestCache_QueueTrimsAtCapacity(t *testing.T) {
	cache, _ := testCache(t, 3)
	ctx := context.Background()

	cache.ClearQueue(ctx, RolePurchasing)
	defer cache.ClearQueue(ctx, RolePurchasing)

	for i := 1; i <= 5; i++ {
		cache.PushNotification(ctx, RolePurchasing, testEnvelope(fmt.Sprintf("cache-test-cap%d", i)))
	}

	envs := cache.RecentNotifications(ctx, RolePurchasing, 10)
	if len(envs) != 3 {
		t.Fatalf("RecentNotifications() returned %d envelopes, want the cap of 3", len(envs))
	}
	if envs[0].AlertID != "cache-test-cap5" || envs[2].AlertID != "cache-test-cap3" {
		t.Errorf("queue kept [%s..%s], want the newest three", envs[0].AlertID, envs[2].AlertID)
	}
}

func TestCache_RemoveNotification(t *testing.T) {
	cache, _ := testCache(t, DefaultQueueCap)
	ctx := context.Background()

	cache.ClearQueue(ctx, RolePharmacist)
	defer cache.ClearQueue(ctx, RolePharmacist)

	for _, id := range []string{"cache-test-rm1", "cache-test-rm2", "cache-test-rm3"} {
		cache.PushNotification(ctx, RolePharmacist, testEnvelope(id))
	}

	cache.RemoveNotification(ctx, RolePharmacist, "cache-test-rm2")

	envs := cache.RecentNotifications(ctx, RolePharmacist, 10)
	if len(envs) != 2 {
		t.Fatalf("RecentNotifications() returned %d envelopes after removal, want 2", len(envs))
	}
	for _, env := range envs {
		if env.AlertID == "cache-test-rm2" {
			t.Error("removed alert still present in the queue")
		}
	}

	// Removing an id that is not queued leaves the queue untouched.
	cache.RemoveNotification(ctx, RolePharmacist, "cache-test-rm9")
	if envs := cache.RecentNotifications(ctx, RolePharmacist, 10); len(envs) != 2 {
		t.Errorf("queue has %d entries after no-op removal, want 2", len(envs))
	}
}

func TestCache_ClearQueue(t *testing.T) {
	cache, _ := testCache(t, DefaultQueueCap)
	ctx := context.Background()

	cache.PushNotification(ctx, RoleAdmin, testEnvelope("cache-test-clear"))
	cache.ClearQueue(ctx, RoleAdmin)

	if envs := cache.RecentNotifications(ctx, RoleAdmin, 10); len(envs) != 0 {
		t.Errorf("RecentNotifications() returned %d envelopes after clear, want 0", len(envs))
	}
}

func TestCache_DegradedWithoutRedis(t *testing.T) {
	// Point at a port nothing listens on. Every operation must be a quiet no-op.
	client := redis.NewClient(&redis.Options{Addr: "localhost:1", DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	cache := NewCacheWithClient(client, time.Minute, DefaultQueueCap)
	ctx := context.Background()

	if cache.Available(ctx) {
		t.Skip("Skipping test: something is listening on localhost:1")
	}

	cache.SetAlert(ctx, "a1", testEnvelope("a1"))
	cache.PushNotification(ctx, RoleAdmin, testEnvelope("a1"))
	cache.RemoveNotification(ctx, RoleAdmin, "a1")
	cache.DeleteAlert(ctx, "a1")
	cache.ClearQueue(ctx, RoleAdmin)

	if got := cache.Alert(ctx, "a1"); got != nil {
		t.Errorf("Alert() = %+v without Redis, want nil", got)
	}
	if envs := cache.RecentNotifications(ctx, RoleAdmin, 10); envs != nil {
		t.Errorf("RecentNotifications() = %v without Redis, want nil", envs)
	}
}
