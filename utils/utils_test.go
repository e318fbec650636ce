package utils

import (
	"testing"
)

func TestContainsNonASCII(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{
			name:     "empty string",
			input:    "",
			expected: false,
		},
		{
			name:     "pure ASCII",
			input:    "hello world",
			expected: false,
		},
		{
			name:     "email address",
			input:    "user@example.com",
			expected: false,
		},
		{
			name:     "ASCII with control characters",
			input:    "hello\r\n\tworld",
			expected: false,
		},
		{
			name:     "UTF-8 umlaut",
			input:    "hello wörld",
			expected: true,
		},
		{
			name:     "UTF-8 emoji",
			input:    "hi 🎉",
			expected: true,
		},
		{
			name:     "invalid UTF-8 high byte",
			input:    "a\xffb",
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ContainsNonASCII(tt.input)
			if result != tt.expected {
				t.Errorf("ContainsNonASCII(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestEqualFoldASCII(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Subject", "subject", true},
		{"MESSAGE-ID", "Message-Id", true},
		{"From", "Fro", false},
		{"To", "Tp", false},
		{"", "", true},
		{"Ä", "ä", false},
	}

	for _, tt := range tests {
		if got := EqualFoldASCII(tt.a, tt.b); got != tt.want {
			t.Errorf("EqualFoldASCII(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRandomHex(t *testing.T) {
	id, err := RandomHex(28)
	if err != nil {
		t.Fatalf("RandomHex failed: %v", err)
	}

	// 28 bytes -> 56 hex characters
	if len(id) != 56 {
		t.Errorf("RandomHex(28) returned string of length %d, want 56", len(id))
	}

	for _, c := range id {
		if !isHexChar(c) {
			t.Errorf("RandomHex() returned non-hex character: %c", c)
			break
		}
	}

	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		newID, _ := RandomHex(8)
		if ids[newID] {
			t.Errorf("RandomHex() returned duplicate ID: %s", newID)
		}
		ids[newID] = true
	}
}

func isHexChar(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func TestDomainOf(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"user@example.com", "example.com"},
		{"\"a@b\"@example.org", "example.org"},
		{"postmaster", ""},
		{"user@", ""},
	}

	for _, tt := range tests {
		if got := DomainOf(tt.input); got != tt.want {
			t.Errorf("DomainOf(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
