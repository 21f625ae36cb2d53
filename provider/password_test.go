package provider

import (
	"strings"
	"testing"
)

func TestGeneratePassword_Length(t *testing.T) {
	for _, length := range []int{12, 16, 24} {
		pw, err := GeneratePassword(length)
		if err != nil {
			t.Fatalf("GeneratePassword(%d): %v", length, err)
		}
		if len(pw) != length {
			t.Errorf("length = %d, want %d", len(pw), length)
		}
	}
}

func TestGeneratePassword_BelowMinimumRejected(t *testing.T) {
	if _, err := GeneratePassword(8); err == nil {
		t.Error("lengths below the minimum must be rejected")
	}
}

func TestGeneratePassword_ComplexityPolicy(t *testing.T) {
	// Complexity is guaranteed by construction, not probabilistically,
	// so a small sample suffices.
	for range 32 {
		pw, err := GeneratePassword(MinPasswordLength)
		if err != nil {
			t.Fatalf("GeneratePassword: %v", err)
		}
		if !strings.ContainsAny(pw, passwordUppercase) {
			t.Errorf("%q lacks an uppercase character", pw)
		}
		if !strings.ContainsAny(pw, passwordLowercase) {
			t.Errorf("%q lacks a lowercase character", pw)
		}
		if !strings.ContainsAny(pw, passwordDigits) {
			t.Errorf("%q lacks a digit", pw)
		}
		if !strings.ContainsAny(pw, passwordSymbols) {
			t.Errorf("%q lacks a symbol", pw)
		}
	}
}

func TestGeneratePassword_NotConstant(t *testing.T) {
	a, err := GeneratePassword(16)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GeneratePassword(16)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two generated passwords should not collide")
	}
}
