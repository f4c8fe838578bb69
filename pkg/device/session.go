// Package device handles the connection to a hosting device: pushing
// configuration commands, reading back the running configuration, and the
// optional cross-process lock that serialises writers.
package device

import (
	"context"
	"fmt"

	"github.com/newtron-network/routersync/pkg/util"
)

// Session is an exclusive command channel to one device. A session is owned
// by a single worker; implementations need not be safe for concurrent use
// unless stated.
type Session interface {
	// Device returns the device id the session is bound to.
	Device() string
	// Apply pushes rendered commands in order. It stops at the first command
	// the device rejects.
	Apply(ctx context.Context, cmds []string) error
	// RunningConfig returns the device's current running configuration.
	RunningConfig(ctx context.Context) (string, error)
	Close() error
}

// CommandError reports a command the device rejected or a transport failure
// while sending it. It is always retryable.
type CommandError struct {
	Device  string
	Command string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("device %s: command %q failed", e.Device, e.Command)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() []error {
	if e.Err != nil {
		return []error{util.ErrDeviceCommunication, e.Err}
	}
	return []error{util.ErrDeviceCommunication}
}
