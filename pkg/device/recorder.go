package device

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/newtron-network/routersync/pkg/snippets"
)

// Recorder is a Session that records commands instead of sending them. It
// backs dry-run rendering and tests. Safe for concurrent use.
type Recorder struct {
	device string

	mu      sync.Mutex
	applied []string
	running string
	closed  bool

	// FailOn, when set, is consulted for each command; a non-nil error is
	// returned from Apply as a CommandError and nothing after it is recorded.
	FailOn func(cmd string) error
}

// NewRecorder creates a Recorder for device whose RunningConfig returns
// running.
func NewRecorder(device, running string) *Recorder {
	return &Recorder{device: device, running: running}
}

func (r *Recorder) Device() string { return r.device }

func (r *Recorder) Apply(ctx context.Context, cmds []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return &CommandError{Device: r.device, Command: firstOr(cmds, ""), Err: fmt.Errorf("session closed")}
	}
	for _, cmd := range cmds {
		if r.FailOn != nil {
			if err := r.FailOn(cmd); err != nil {
				return &CommandError{Device: r.device, Command: cmd, Err: err}
			}
		}
		r.applied = append(r.applied, cmd)
	}
	return nil
}

func (r *Recorder) RunningConfig(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running, nil
}

// SetRunningConfig replaces the text returned by RunningConfig.
func (r *Recorder) SetRunningConfig(running string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = running
}

// Commands returns a copy of every command applied so far.
func (r *Recorder) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.applied...)
}

// Reset forgets the recorded commands.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = nil
}

// Script renders the recorded commands as device CLI lines.
func (r *Recorder) Script() string {
	var sb strings.Builder
	for _, cmd := range r.Commands() {
		for _, line := range snippets.Lines(cmd) {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func firstOr(s []string, def string) string {
	if len(s) > 0 {
		return s[0]
	}
	return def
}
