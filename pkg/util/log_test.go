package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// captureLogger redirects the global logger into a buffer for the duration
// of the test and restores it afterwards.
func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	out, level, formatter := Logger.Out, Logger.Level, Logger.Formatter
	t.Cleanup(func() {
		Logger.SetOutput(out)
		Logger.SetLevel(level)
		Logger.SetFormatter(formatter)
	})

	var buf bytes.Buffer
	SetLogOutput(&buf)
	return &buf
}

func TestSetLogLevel(t *testing.T) {
	captureLogger(t)

	tests := []struct {
		level   string
		wantErr bool
	}{
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"invalid", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			err := SetLogLevel(tt.level)
			if (err != nil) != tt.wantErr {
				t.Errorf("SetLogLevel(%q) error = %v, wantErr %v", tt.level, err, tt.wantErr)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureLogger(t)
	SetLogLevel("warn")

	Infof("pushed %d commands", 3)
	if buf.Len() != 0 {
		t.Errorf("info should be suppressed at warn level, got %q", buf.String())
	}

	Warnf("retrying router %s", "r1")
	if !strings.Contains(buf.String(), "retrying router r1") {
		t.Errorf("expected warning in output, got %q", buf.String())
	}
}

func TestSetJSONFormat(t *testing.T) {
	buf := captureLogger(t)
	SetJSONFormat()

	WithRouter("asr-1", "r1").Info("gateway set")

	output := buf.String()
	if !strings.HasPrefix(output, "{") {
		t.Fatalf("Expected JSON output, got: %s", output)
	}
	for _, want := range []string{`"device":"asr-1"`, `"router":"r1"`, `"msg":"gateway set"`} {
		if !strings.Contains(output, want) {
			t.Errorf("JSON output missing %s: %s", want, output)
		}
	}
}

func TestContextLoggers(t *testing.T) {
	tests := []struct {
		name  string
		entry *logrus.Entry
		want  logrus.Fields
	}{
		{"device", WithDevice("asr-1"), logrus.Fields{"device": "asr-1"}},
		{"router", WithRouter("asr-1", "r1"), logrus.Fields{"device": "asr-1", "router": "r1"}},
		{"operation", WithOperation("gateway.set"), logrus.Fields{"operation": "gateway.set"}},
		{"field", WithField("vrf", "tenant-42"), logrus.Fields{"vrf": "tenant-42"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.want {
				if tt.entry.Data[k] != v {
					t.Errorf("field %s = %v, want %v", k, tt.entry.Data[k], v)
				}
			}
		})
	}
}
