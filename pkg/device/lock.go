package device

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/routersync/pkg/util"
)

// acquireLockScript is a Lua script for atomic lock acquisition.
// Returns 1 on success, 0 if already locked by another holder.
var acquireLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	if redis.call("HGET", key, "holder") == ARGV[1] then
		redis.call("EXPIRE", key, tonumber(ARGV[3]))
		return 1
	end
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2], "ttl", ARGV[3])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

// releaseLockScript is a Lua script for atomic lock release with holder verification.
// Returns 1 on success, 0 if holder mismatch, -1 if key doesn't exist.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
local current = redis.call("HGET", key, "holder")
if current ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// Lock is a cross-process device lock kept in Redis. Two agents configuring
// the same device hold it around each batch of commands.
type Lock struct {
	client *redis.Client
	holder string
	ttl    time.Duration
}

// NewLock creates a lock handle identifying this process as holder.
func NewLock(client *redis.Client, holder string, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Lock{client: client, holder: holder, ttl: ttl}
}

func lockKey(device string) string {
	return fmt.Sprintf("ROUTERSYNC_LOCK|%s", device)
}

// Acquire takes the lock for device. The stored entry is ROUTERSYNC_LOCK|<device>
// with holder, acquired time and TTL. Returns util.ErrDeviceLocked if another
// holder has it. Re-acquiring by the same holder refreshes the TTL.
func (l *Lock) Acquire(ctx context.Context, device string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	ttl := int(l.ttl / time.Second)

	result, err := acquireLockScript.Run(ctx, l.client, []string{lockKey(device)},
		l.holder, now, fmt.Sprintf("%d", ttl)).Int()
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", device, err)
	}
	if result == 0 {
		return fmt.Errorf("%s: %w", device, util.ErrDeviceLocked)
	}
	util.WithDevice(device).Debugf("Lock acquired by %s", l.holder)
	return nil
}

// Release drops the lock for device if this holder owns it.
func (l *Lock) Release(ctx context.Context, device string) error {
	result, err := releaseLockScript.Run(ctx, l.client, []string{lockKey(device)}, l.holder).Int()
	if err != nil {
		return fmt.Errorf("releasing lock for %s: %w", device, err)
	}
	switch result {
	case 0:
		return fmt.Errorf("lock holder mismatch for %s", device)
	case -1:
		return nil // Lock doesn't exist, treat as success
	}
	util.WithDevice(device).Debug("Lock released")
	return nil
}

// Holder returns the current lock holder and acquisition time for device.
// Returns ("", zero, nil) if no lock is held.
func (l *Lock) Holder(ctx context.Context, device string) (string, time.Time, error) {
	vals, err := l.client.HGetAll(ctx, lockKey(device)).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("getting lock holder for %s: %w", device, err)
	}
	if len(vals) == 0 {
		return "", time.Time{}, nil
	}

	acquired := time.Time{}
	if ts, ok := vals["acquired"]; ok {
		acquired, _ = time.Parse(time.RFC3339, ts)
	}
	return vals["holder"], acquired, nil
}
