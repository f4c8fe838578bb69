//go:build integration

package redisstore_test

import (
	"reflect"
	"testing"

	"github.com/newtron-network/routersync/internal/testutil"
	"github.com/newtron-network/routersync/pkg/registry"
	"github.com/newtron-network/routersync/pkg/registry/redisstore"
)

func TestStoreRoundTrip(t *testing.T) {
	client := testutil.RedisClient(t)
	ctx := testutil.Context(t)
	store := redisstore.NewFromClient(client)

	reg := registry.New(store)
	reg.VRFs.Acquire(ctx, registry.VRFKey("asr-1", "tenant-9"), "r1", nil)
	reg.VRFs.Acquire(ctx, registry.VRFKey("asr-1", "tenant-9"), "r2", nil)
	reg.SecondaryIPs.Acquire(ctx, registry.SecondaryIPKey("asr-1", "pc.100", "10.0.0.0/24"), registry.FIPHolder("10.0.0.7"), nil)

	exists, err := client.Exists(ctx, "ROUTERSYNC_REFS|vrf|asr-1|tenant-9").Result()
	if err != nil || exists != 1 {
		t.Fatalf("expected VRF set in redis, exists=%d err=%v", exists, err)
	}

	restored := registry.New(redisstore.NewFromClient(client))
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if got := restored.VRFs.Holders(registry.VRFKey("asr-1", "tenant-9")); !reflect.DeepEqual(got, []string{"r1", "r2"}) {
		t.Errorf("restored holders = %v", got)
	}
	if !restored.SecondaryIPs.Has(registry.SecondaryIPKey("asr-1", "pc.100", "10.0.0.0/24")) {
		t.Error("secondary ip not restored")
	}
}

func TestStoreRemoveDeletesEmptySet(t *testing.T) {
	client := testutil.RedisClient(t)
	ctx := testutil.Context(t)

	reg := registry.New(redisstore.NewFromClient(client))
	key := registry.NATPoolKey("asr-1", "tenant-9_nat_pool")
	reg.NATPools.Acquire(ctx, key, "r1", nil)
	reg.NATPools.Release(ctx, key, "r1", nil)

	if n := testutil.KeyCount(t, client); n != 0 {
		t.Errorf("expected empty database, got %d keys", n)
	}
}
