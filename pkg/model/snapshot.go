package model

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Snapshot is the full desired state handed over by the control plane: every
// logical router the scheduler has placed on a hosting device.
type Snapshot struct {
	Routers []*LogicalRouter `yaml:"routers"`
}

// ParseSnapshot decodes and validates a YAML snapshot document.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSnapshot reads a snapshot file, or every .yaml file in a directory
// merged together.
func LoadSnapshot(path string) (*Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	if !info.IsDir() {
		return loadSnapshotFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot dir %s: %w", path, err)
	}
	merged := &Snapshot{}
	for _, e := range entries {
		if e.IsDir() || !(strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}
		s, err := loadSnapshotFile(filepath.Join(path, e.Name()))
		if err != nil {
			return nil, err
		}
		merged.Routers = append(merged.Routers, s.Routers...)
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

func loadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	s, err := ParseSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks every router and rejects duplicate router ids.
func (s *Snapshot) Validate() error {
	seen := make(map[string]bool)
	for _, r := range s.Routers {
		if r == nil {
			return fmt.Errorf("snapshot contains an empty router entry")
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate router %s in snapshot", r.ID)
		}
		seen[r.ID] = true
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Router looks up a router by id.
func (s *Snapshot) Router(id string) (*LogicalRouter, bool) {
	for _, r := range s.Routers {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// ForDevice returns the routers placed on the given hosting device.
func (s *Snapshot) ForDevice(device string) []*LogicalRouter {
	var out []*LogicalRouter
	for _, r := range s.Routers {
		if r.HostingDevice == device {
			out = append(out, r)
		}
	}
	return out
}

// Devices returns the sorted set of hosting devices referenced by the
// snapshot.
func (s *Snapshot) Devices() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range s.Routers {
		if r.HostingDevice != "" && !seen[r.HostingDevice] {
			seen[r.HostingDevice] = true
			out = append(out, r.HostingDevice)
		}
	}
	sort.Strings(out)
	return out
}
