package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/newtron-network/routersync/pkg/util"
)

// Kind names one of the reference-counted resource families.
type Kind string

const (
	KindVRF         Kind = "vrf"
	KindNATPool     Kind = "nat_pool"
	KindSecondaryIP Kind = "secondary_ip"
)

// Hook creates or destroys the device-side object a key stands for.
type Hook func(ctx context.Context) error

// RefSet maps a key to the set of holders referencing it. The object behind
// a key exists on the device iff its holder set is non-empty.
//
// The check-and-create in Acquire and the check-and-delete in Release are
// serialised per key, so two routers racing on the same VRF cannot both
// create it or both miss the last release.
type RefSet struct {
	kind  Kind
	store Store

	mu    sync.RWMutex
	sets  map[string]map[string]struct{}
	locks map[string]*sync.Mutex
}

func newRefSet(kind Kind, store Store) *RefSet {
	return &RefSet{
		kind:  kind,
		store: store,
		sets:  make(map[string]map[string]struct{}),
		locks: make(map[string]*sync.Mutex),
	}
}

// Kind returns the resource family this set tracks.
func (s *RefSet) Kind() Kind { return s.kind }

func (s *RefSet) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Acquire adds holder to key. On the first holder, create runs before the
// membership is recorded; if it fails nothing is recorded and the error is
// returned. Acquiring a pair that is already held is a no-op.
func (s *RefSet) Acquire(ctx context.Context, key, holder string, create Hook) (bool, error) {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	set := s.sets[key]
	_, held := set[holder]
	first := len(set) == 0
	s.mu.RUnlock()

	if held {
		return false, nil
	}

	if first && create != nil {
		if err := create(ctx); err != nil {
			return false, fmt.Errorf("creating %s %s: %w", s.kind, key, err)
		}
	}

	s.mu.Lock()
	if s.sets[key] == nil {
		s.sets[key] = make(map[string]struct{})
	}
	s.sets[key][holder] = struct{}{}
	s.mu.Unlock()

	if err := s.store.Add(ctx, s.kind, key, holder); err != nil {
		util.WithField("kind", s.kind).Warnf("Persisting %s holder %s: %v", key, holder, err)
	}
	return first, nil
}

// Release removes holder from key. When the last holder goes, destroy runs;
// if it fails the holder is put back and the error returned. Releasing a pair
// that is not held is logged and ignored, since events are replayed after a
// restart.
func (s *RefSet) Release(ctx context.Context, key, holder string, destroy Hook) (bool, error) {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	set := s.sets[key]
	if _, held := set[holder]; !held {
		s.mu.Unlock()
		util.WithField("kind", s.kind).Debugf("Release of unheld %s by %s ignored", key, holder)
		return false, nil
	}
	delete(set, holder)
	last := len(set) == 0
	if last {
		delete(s.sets, key)
	}
	s.mu.Unlock()

	if last && destroy != nil {
		if err := destroy(ctx); err != nil {
			s.mu.Lock()
			if s.sets[key] == nil {
				s.sets[key] = make(map[string]struct{})
			}
			s.sets[key][holder] = struct{}{}
			s.mu.Unlock()
			return false, fmt.Errorf("removing %s %s: %w", s.kind, key, err)
		}
	}

	if err := s.store.Remove(ctx, s.kind, key, holder); err != nil {
		util.WithField("kind", s.kind).Warnf("Persisting release of %s by %s: %v", key, holder, err)
	}
	return last, nil
}

// Holders returns the sorted holders of key.
func (s *RefSet) Holders(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sets[key]))
	for h := range s.sets[key] {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Has reports whether key has at least one holder.
func (s *RefSet) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets[key]) > 0
}

// Keys returns the sorted keys that currently have holders.
func (s *RefSet) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sets))
	for k := range s.sets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HeldBy returns the sorted keys holder currently references.
func (s *RefSet) HeldBy(holder string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k, set := range s.sets {
		if _, ok := set[holder]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// restore records membership without running hooks or touching the store.
func (s *RefSet) restore(key string, holders []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(holders) == 0 {
		return
	}
	if s.sets[key] == nil {
		s.sets[key] = make(map[string]struct{})
	}
	for _, h := range holders {
		s.sets[key][h] = struct{}{}
	}
}
