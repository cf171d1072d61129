package errors

import (
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Code:    ErrNotFound,
		Status:  404,
		Message: "contact not found: c1",
	}

	expected := "NOT_FOUND: contact not found: c1"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidParameter(t *testing.T) {
	err := NewInvalidParameter("halfLife", 0, "> 0")

	if err.Code != ErrInvalidParameter {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidParameter)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Details["parameter"] != "halfLife" {
		t.Errorf("Details[parameter] = %v, want halfLife", err.Details["parameter"])
	}
}

func TestNewUnknownDecayType(t *testing.T) {
	err := NewUnknownDecayType("sigmoid")

	if err.Code != ErrUnknownDecayType {
		t.Errorf("Code = %q, want %q", err.Code, ErrUnknownDecayType)
	}
	if err.Details["type"] != "sigmoid" {
		t.Errorf("Details[type] = %v, want sigmoid", err.Details["type"])
	}
}

func TestNewInvalidRuleConfig(t *testing.T) {
	err := NewInvalidRuleConfig("inactivity", "inactivityDays must be > 0")

	if err.Code != ErrInvalidRuleConfig {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRuleConfig)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
	if err.Message != "inactivity rule: inactivityDays must be > 0" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewInternalNil(t *testing.T) {
	err := NewInternal(nil)
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestIs(t *testing.T) {
	err := NewNotFound("rule", "r1")

	if !Is(err, ErrNotFound) {
		t.Error("Is(err, ErrNotFound) = false, want true")
	}
	if Is(err, ErrInternal) {
		t.Error("Is(err, ErrInternal) = true, want false")
	}

	wrapped := fmt.Errorf("load rule: %w", err)
	if !Is(wrapped, ErrNotFound) {
		t.Error("Is should see through wrapping")
	}

	if Is(fmt.Errorf("plain"), ErrNotFound) {
		t.Error("plain error should not match")
	}
}

func TestStatusOf(t *testing.T) {
	if got := StatusOf(NewInvalidRuleConfig("date", "bad")); got != 422 {
		t.Errorf("StatusOf = %d, want 422", got)
	}
	if got := StatusOf(fmt.Errorf("boom")); got != 500 {
		t.Errorf("StatusOf(plain) = %d, want 500", got)
	}
}
