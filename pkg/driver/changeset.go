package driver

import (
	"fmt"
	"strings"
	"time"
)

// ChangeType represents the direction of a configuration change.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeDelete ChangeType = "delete"
)

// Change is one rendered device command.
type Change struct {
	Template string     `json:"template"`
	Command  string     `json:"command"`
	Type     ChangeType `json:"type"`
}

// ChangeSet is the ordered list of commands one driver operation sent to the
// device.
type ChangeSet struct {
	Device    string    `json:"device"`
	Router    string    `json:"router,omitempty"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
	Changes   []Change  `json:"changes"`

	// rendered but not yet pushed
	pending []Change
}

// NewChangeSet creates a new ChangeSet.
func NewChangeSet(device, router, operation string) *ChangeSet {
	return &ChangeSet{
		Device:    device,
		Router:    router,
		Operation: operation,
		Timestamp: time.Now(),
		Changes:   make([]Change, 0),
	}
}

// Add records an already-applied change.
func (cs *ChangeSet) Add(template, command string, changeType ChangeType) {
	cs.Changes = append(cs.Changes, Change{Template: template, Command: command, Type: changeType})
}

// Merge appends the changes of other, in order. A nil other is ignored.
func (cs *ChangeSet) Merge(other *ChangeSet) {
	if other == nil {
		return
	}
	cs.Changes = append(cs.Changes, other.Changes...)
}

// Commands returns the command text of every change.
func (cs *ChangeSet) Commands() []string {
	out := make([]string, len(cs.Changes))
	for i, c := range cs.Changes {
		out[i] = c.Command
	}
	return out
}

// IsEmpty returns true if there are no changes.
func (cs *ChangeSet) IsEmpty() bool {
	return cs == nil || len(cs.Changes) == 0
}

// String returns a human-readable representation of the changes.
func (cs *ChangeSet) String() string {
	if cs.IsEmpty() {
		return "No changes"
	}

	var sb strings.Builder
	for _, c := range cs.Changes {
		typeStr := "[ADD]"
		if c.Type == ChangeDelete {
			typeStr = "[DEL]"
		}
		sb.WriteString(fmt.Sprintf("  %s %s\n", typeStr, c.Command))
	}
	return sb.String()
}

// Preview returns a formatted preview of the changes.
func (cs *ChangeSet) Preview() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Operation: %s\n", cs.Operation))
	sb.WriteString(fmt.Sprintf("Device: %s\n", cs.Device))
	if cs.Router != "" {
		sb.WriteString(fmt.Sprintf("Router: %s\n", cs.Router))
	}
	sb.WriteString(fmt.Sprintf("Changes:\n%s", cs.String()))
	return sb.String()
}
