// Package redisstore persists registry membership in Redis so that holders
// survive an agent restart. Each key is a Redis set:
//
//	ROUTERSYNC_REFS|<kind>|<device>|<resource>  ->  {holder, ...}
package redisstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/routersync/pkg/registry"
)

const keyPrefix = "ROUTERSYNC_REFS|"

// Store is a registry.Store on a Redis database.
type Store struct {
	client *redis.Client
}

// New connects to Redis at addr using database db.
func New(ctx context.Context, addr string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}
	return &Store{client: client}, nil
}

// NewFromClient wraps an existing client. The store takes ownership of it.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Client returns the underlying client, shared with the device lock.
func (s *Store) Client() *redis.Client {
	return s.client
}

func redisKey(kind registry.Kind, key string) string {
	return keyPrefix + string(kind) + "|" + key
}

func parseKey(rk string) (registry.Kind, string, bool) {
	rest := strings.TrimPrefix(rk, keyPrefix)
	if rest == rk {
		return "", "", false
	}
	kind, key, ok := strings.Cut(rest, "|")
	if !ok || key == "" {
		return "", "", false
	}
	return registry.Kind(kind), key, true
}

// Load reads every persisted set.
func (s *Store) Load(ctx context.Context) (map[registry.Kind]map[string][]string, error) {
	out := make(map[registry.Kind]map[string][]string)

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		kind, key, ok := parseKey(iter.Val())
		if !ok {
			continue
		}
		holders, err := s.client.SMembers(ctx, iter.Val()).Result()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", iter.Val(), err)
		}
		if out[kind] == nil {
			out[kind] = make(map[string][]string)
		}
		out[kind][key] = holders
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning registry keys: %w", err)
	}
	return out, nil
}

func (s *Store) Add(ctx context.Context, kind registry.Kind, key, holder string) error {
	return s.client.SAdd(ctx, redisKey(kind, key), holder).Err()
}

// Remove drops holder; Redis deletes the set once it is empty.
func (s *Store) Remove(ctx context.Context, kind registry.Kind, key, holder string) error {
	return s.client.SRem(ctx, redisKey(kind, key), holder).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
