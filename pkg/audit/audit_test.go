package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/newtron-network/routersync/pkg/device"
	"github.com/newtron-network/routersync/pkg/driver"
	"github.com/newtron-network/routersync/pkg/util"
)

func newTestLogger(t *testing.T, rotation RotationConfig) *FileLogger {
	t.Helper()
	l, err := NewFileLogger(filepath.Join(t.TempDir(), "audit", "audit.log"), rotation)
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestNewEvent(t *testing.T) {
	e := NewEvent("asr-1", "r1", "internal-network-add")
	if e.Device != "asr-1" || e.Router != "r1" || e.Operation != "internal-network-add" {
		t.Errorf("NewEvent() = %+v", e)
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		t.Errorf("ID %q is not a uuid: %v", e.ID, err)
	}
	if e.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if other := NewEvent("asr-1", "r1", "internal-network-add"); other.ID == e.ID {
		t.Error("IDs should be unique")
	}
}

func TestFromChangeSet(t *testing.T) {
	cs := driver.NewChangeSet("asr-1", "r1", "floating-ip-add")
	cs.Add("SET_STATIC_NAT", "ip nat inside source static 10.0.0.7 203.0.113.5 vrf tenant-42", driver.ChangeAdd)

	tests := []struct {
		name      string
		err       error
		wantOK    bool
		wantFatal bool
	}{
		{"success", nil, true, false},
		{"retryable", &util.NotReadyError{Router: "r1", Reason: "no gateway"}, false, false},
		{"fatal", &util.MalformedInputError{Resource: "port", Key: "fixed_ips", Details: "missing"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := FromChangeSet(cs, tt.err)
			if e.Success != tt.wantOK || e.Fatal != tt.wantFatal {
				t.Errorf("Success=%v Fatal=%v, want %v %v", e.Success, e.Fatal, tt.wantOK, tt.wantFatal)
			}
			if len(e.Changes) != 1 || e.Router != "r1" || !e.Timestamp.Equal(cs.Timestamp) {
				t.Errorf("event = %+v", e)
			}
			if tt.err != nil && e.Error != tt.err.Error() {
				t.Errorf("Error = %q", e.Error)
			}
		})
	}
}

func TestFileLogger_QueryFilters(t *testing.T) {
	l := newTestLogger(t, RotationConfig{})
	start := time.Now().Add(-time.Hour)

	events := []*Event{
		NewEvent("asr-1", "r1", "internal-network-add").WithSuccess(),
		NewEvent("asr-1", "r2", "external-gateway-add").WithSuccess(),
		NewEvent("asr-2", "r1", "internal-network-add").WithError(errors.New("connection reset")),
		NewEvent("asr-2", "r3", "floating-ip-add").WithSuccess().WithDryRun(true),
	}
	events[0].Timestamp = start
	for _, e := range events {
		if err := l.Log(e); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"device", Filter{Device: "asr-1"}, 2},
		{"router", Filter{Router: "r1"}, 2},
		{"operation", Filter{Operation: "internal-network-add"}, 2},
		{"device and router", Filter{Device: "asr-2", Router: "r1"}, 1},
		{"success only", Filter{SuccessOnly: true}, 3},
		{"failure only", Filter{FailureOnly: true}, 1},
		{"start time", Filter{StartTime: start.Add(time.Minute)}, 3},
		{"end time", Filter{EndTime: start.Add(time.Minute)}, 1},
		{"limit", Filter{Limit: 2}, 2},
		{"offset", Filter{Offset: 3}, 1},
		{"offset past end", Filter{Offset: 10}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Query(tt.filter)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Query() returned %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFileLogger_Record(t *testing.T) {
	l := newTestLogger(t, RotationConfig{})

	empty := driver.NewChangeSet("asr-1", "r1", "vrf-create")
	l.Record(empty, nil)
	l.Record(nil, errors.New("ignored"))

	failed := driver.NewChangeSet("asr-1", "r1", "external-gateway-add")
	l.Record(failed, &device.CommandError{Device: "asr-1", Command: "interface po10.500", Err: errors.New("timeout")})

	got, err := l.Query(Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Query() = %d events, want only the failed operation", len(got))
	}
	if got[0].Success || got[0].Fatal || !strings.Contains(got[0].Error, "timeout") {
		t.Errorf("event = %+v", got[0])
	}
}

func TestFileLogger_Rotation(t *testing.T) {
	l := newTestLogger(t, RotationConfig{MaxSize: 100, MaxBackups: 2})

	for i := 0; i < 5; i++ {
		if err := l.Log(NewEvent("asr-1", fmt.Sprintf("r%d", i), "internal-network-add").WithSuccess()); err != nil {
			t.Fatalf("Log(%d) error = %v", i, err)
		}
	}

	backups, err := filepath.Glob(l.Path() + ".*")
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 2 {
		t.Errorf("backups = %v, want 2", backups)
	}

	got, err := l.Query(Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	var routers []string
	for _, e := range got {
		routers = append(routers, e.Router)
	}
	if strings.Join(routers, ",") != "r2,r3,r4" {
		t.Errorf("routers across files = %v, want oldest pruned", routers)
	}
}

func TestFileLogger_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	for i := 0; i < 2; i++ {
		l, err := NewFileLogger(path, RotationConfig{})
		if err != nil {
			t.Fatal(err)
		}
		if err := l.Log(NewEvent("asr-1", "r1", "vrf-create").WithSuccess()); err != nil {
			t.Fatal(err)
		}
		l.Close()
	}

	l, err := NewFileLogger(path, RotationConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	got, err := l.Query(Filter{})
	if err != nil || len(got) != 2 {
		t.Errorf("Query() = %d events, %v; want 2 appended", len(got), err)
	}
}

func TestFileLogger_Errors(t *testing.T) {
	if _, err := NewFileLogger("/dev/null/impossible/audit.log", RotationConfig{}); err == nil {
		t.Error("NewFileLogger() under a file should fail")
	}

	l := newTestLogger(t, RotationConfig{})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := l.Log(NewEvent("asr-1", "r1", "vrf-create")); err == nil {
		t.Error("Log() after Close should fail")
	}
}

func TestFileLogger_QueryMalformed(t *testing.T) {
	l := newTestLogger(t, RotationConfig{})
	if err := l.Log(NewEvent("asr-1", "r1", "vrf-create").WithSuccess()); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{not json\n")
	f.Close()

	if err := l.Log(NewEvent("asr-1", "r2", "vrf-create").WithSuccess()); err != nil {
		t.Fatal(err)
	}
	got, err := l.Query(Filter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Query() = %d events, want malformed line skipped", len(got))
	}
}
