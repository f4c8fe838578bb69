// Package audit records every change set pushed to a hosting device.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/newtron-network/routersync/pkg/driver"
	"github.com/newtron-network/routersync/pkg/util"
)

// Event is one driver operation as seen by the device.
type Event struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Device    string          `json:"device"`
	Router    string          `json:"router,omitempty"`
	Operation string          `json:"operation"`
	Changes   []driver.Change `json:"changes"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	// Fatal is set when the error will not be retried.
	Fatal  bool `json:"fatal,omitempty"`
	DryRun bool `json:"dry_run,omitempty"`
}

// Filter selects events in Query. Zero fields match everything.
type Filter struct {
	Device      string
	Router      string
	Operation   string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates an event for a device operation.
func NewEvent(device, router, operation string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Device:    device,
		Router:    router,
		Operation: operation,
	}
}

// FromChangeSet builds the event for a driver operation and its outcome.
// Commands that reached the device before a failure are kept.
func FromChangeSet(cs *driver.ChangeSet, err error) *Event {
	e := NewEvent(cs.Device, cs.Router, cs.Operation)
	e.Timestamp = cs.Timestamp
	e.Changes = cs.Changes
	if err != nil {
		return e.WithError(err)
	}
	return e.WithSuccess()
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	e.Error = ""
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
		e.Fatal = util.IsFatal(err)
	}
	return e
}

// WithDryRun marks events rendered without a device.
func (e *Event) WithDryRun(dry bool) *Event {
	e.DryRun = dry
	return e
}

func (e *Event) matches(f Filter) bool {
	if f.Device != "" && e.Device != f.Device {
		return false
	}
	if f.Router != "" && e.Router != f.Router {
		return false
	}
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	if f.SuccessOnly && !e.Success {
		return false
	}
	if f.FailureOnly && e.Success {
		return false
	}
	return true
}
