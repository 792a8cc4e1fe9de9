package normalize

import (
	"strings"
	"testing"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple lowercase",
			input:    "acme",
			expected: "acme",
		},
		{
			name:     "uppercase conversion",
			input:    "ACME Corp",
			expected: "acme corp",
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "  Allegro  ",
			expected: "allegro",
		},
		{
			name:     "internal whitespace collapsed",
			input:    "ACME   Corp\t Intl",
			expected: "acme corp intl",
		},
		{
			name:     "tabs and newlines collapsed",
			input:    "ACME\n\tCorp",
			expected: "acme corp",
		},
		{
			name:     "account number stripped",
			input:    "  ACME  Corp 12345678901  ",
			expected: "acme corp",
		},
		{
			name:     "nine digit run kept",
			input:    "ACME 123456789",
			expected: "acme 123456789",
		},
		{
			name:     "ten digit run stripped",
			input:    "ACME 1234567890",
			expected: "acme",
		},
		{
			name:     "embedded digit run stripped mid-name",
			input:    "transfer 12345678901 holdings",
			expected: "transfer holdings",
		},
		{
			name:     "short store numbers kept",
			input:    "Zabka 001",
			expected: "zabka 001",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "whitespace only",
			input:    "   \t\n ",
			expected: "",
		},
		{
			name:     "all digits",
			input:    "9876543210",
			expected: "",
		},
		{
			name:     "digits and whitespace only",
			input:    "  1234567890123  ",
			expected: "",
		},
		{
			name:     "unicode preserved",
			input:    "Żabka Nova",
			expected: "żabka nova",
		},
		{
			name:     "diacritics not folded",
			input:    "Café Früh",
			expected: "café früh",
		},
		{
			name:     "iban-like reference stripped",
			input:    "payment ref 00123456789012 gmbh",
			expected: "payment ref gmbh",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Key(tt.input)
			if result != tt.expected {
				t.Errorf("Key(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestKey_Idempotent(t *testing.T) {
	inputs := []string{
		"  ACME  Corp 12345678901  ",
		"Żabka Nova 4412",
		"ACME\t\tCorp",
		"transfer 12345678901 holdings",
		"",
		"plain name",
	}

	for _, input := range inputs {
		once := Key(input)
		twice := Key(once)
		if once != twice {
			t.Errorf("Key not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}

func TestKey_DistinctShortNumbers(t *testing.T) {
	// Store branch numbers under the strip threshold must stay distinct.
	a := Key("Zabka 001")
	b := Key("Zabka 002")
	if a == b {
		t.Errorf("expected distinct keys, both normalized to %q", a)
	}
}

func TestKey_RunBoundary(t *testing.T) {
	kept := Key("x " + strings.Repeat("1", MinStripDigits-1))
	if !strings.Contains(kept, "1") {
		t.Errorf("run below threshold should be kept, got %q", kept)
	}

	stripped := Key("x " + strings.Repeat("1", MinStripDigits))
	if stripped != "x" {
		t.Errorf("run at threshold should be stripped, got %q", stripped)
	}
}

func TestDisplay(t *testing.T) {
	if got := Display("  ACME Corp  "); got != "ACME Corp" {
		t.Errorf("Display trimmed wrong: %q", got)
	}
	if got := Display("ACME Corp"); got != "ACME Corp" {
		t.Errorf("Display should keep casing: %q", got)
	}
}

func TestKeyLength(t *testing.T) {
	if got := KeyLength("żabka"); got != 5 {
		t.Errorf("KeyLength(żabka) = %d, want 5 runes", got)
	}
	if got := KeyLength(""); got != 0 {
		t.Errorf("KeyLength(\"\") = %d, want 0", got)
	}
}
