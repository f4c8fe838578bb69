package util

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMalformedInputError(t *testing.T) {
	err := NewMalformedInputError("port p1", "hosting_info.cidr_exposed", "required for internal ports")

	msg := err.Error()
	for _, want := range []string{"port p1", "hosting_info.cidr_exposed", "required for internal ports"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error message should contain %q: %s", want, msg)
		}
	}

	if !errors.Is(err, ErrMalformedInput) {
		t.Errorf("MalformedInputError should unwrap to ErrMalformedInput")
	}
}

func TestMalformedInputErrorNoDetails(t *testing.T) {
	err := NewMalformedInputError("router r1", "tenant_id", "")
	if strings.HasSuffix(err.Error(), ")") {
		t.Errorf("Error message should not have a details section: %s", err.Error())
	}
}

func TestNotReadyError(t *testing.T) {
	t.Run("with port", func(t *testing.T) {
		err := NewNotReadyError("r1", "p1", "HA info missing")
		if !strings.Contains(err.Error(), "port p1") {
			t.Errorf("Error message should name the port: %s", err.Error())
		}
		if !errors.Is(err, ErrNotReady) {
			t.Errorf("NotReadyError should unwrap to ErrNotReady")
		}
	})

	t.Run("router only", func(t *testing.T) {
		err := NewNotReadyError("r1", "", "no gateway")
		if strings.Contains(err.Error(), "port") {
			t.Errorf("Error message should not mention a port: %s", err.Error())
		}
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not ready", NewNotReadyError("r1", "p1", "x"), true},
		{"wrapped not ready", fmt.Errorf("adding port: %w", NewNotReadyError("r1", "p1", "x")), true},
		{"device communication", fmt.Errorf("push: %w", ErrDeviceCommunication), true},
		{"device locked", ErrDeviceLocked, true},
		{"malformed", NewMalformedInputError("port p1", "x", ""), false},
		{"joined with malformed", errors.Join(NewNotReadyError("r1", "p1", "x"), NewMalformedInputError("port p2", "x", "")), true},
		{"only malformed joined", errors.Join(NewMalformedInputError("port p1", "x", ""), errors.New("other")), false},
		{"joined not ready", errors.Join(errors.New("other"), NewNotReadyError("r1", "p1", "x")), true},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFatalParts(t *testing.T) {
	bad1 := fmt.Errorf("port p1: %w", NewMalformedInputError("port p1", "cidr_exposed", ""))
	bad2 := NewMalformedInputError("port p3", "fixed_ips", "")
	notReady := NewNotReadyError("r1", "p2", "no HA binding")

	tests := []struct {
		name string
		err  error
		want []error
	}{
		{"nil", nil, nil},
		{"not ready", notReady, nil},
		{"single", bad1, []error{bad1}},
		{"joined", errors.Join(bad1, notReady, bad2), []error{bad1, bad2}},
		{"nested join", errors.Join(notReady, errors.Join(bad2)), []error{bad2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FatalParts(tt.err)
			if len(got) != len(tt.want) {
				t.Fatalf("FatalParts() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("part %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(fmt.Errorf("wrap: %w", NewMalformedInputError("r", "k", ""))) {
		t.Error("wrapped MalformedInputError should be fatal")
	}
	if IsFatal(NewNotReadyError("r", "", "x")) {
		t.Error("NotReadyError should not be fatal")
	}
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("field is required")
		msg := err.Error()
		if !strings.Contains(msg, "field is required") {
			t.Errorf("Error message should contain the error: %s", msg)
		}
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("ValidationError should unwrap to ErrValidationFailed")
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("field1 is required", "field2 is invalid", "field3 out of range")
		msg := err.Error()
		if !strings.Contains(msg, "field1") || !strings.Contains(msg, "field2") || !strings.Contains(msg, "field3") {
			t.Errorf("Error message should contain all errors: %s", msg)
		}
	})
}

func TestValidationBuilder(t *testing.T) {
	t.Run("no errors", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Add(true, "this should not appear")

		if v.HasErrors() {
			t.Error("Should not have errors when all conditions are true")
		}
		if err := v.Build(); err != nil {
			t.Errorf("Build() should return nil when no errors: %v", err)
		}
	})

	t.Run("with errors", func(t *testing.T) {
		v := &ValidationBuilder{}
		v.Add(false, "first error")
		v.Add(true, "this passes")
		v.AddErrorf("formatted error: %d", 42)

		err := v.Build()
		if err == nil {
			t.Fatal("Build() should return error")
		}

		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("Expected *ValidationError, got %T", err)
		}
		if len(validationErr.Errors) != 2 {
			t.Errorf("Expected 2 errors, got %d", len(validationErr.Errors))
		}
	})
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrNotConnected,
		ErrDeviceLocked,
		ErrDeviceCommunication,
		ErrMalformedInput,
		ErrNotReady,
		ErrInvalidConfig,
		ErrValidationFailed,
	}

	for i, err1 := range sentinels {
		for j, err2 := range sentinels {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("Sentinel errors should be distinct: %v == %v", err1, err2)
			}
		}
	}
}
