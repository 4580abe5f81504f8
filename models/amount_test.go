package models

import (
	"math"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"450", "450"},
		{"1,250.50", "1250.5"},
		{"₱ 450", "450"},
		{"PHP -20", "-20"},
		{" -0.75 ", "-0.75"},
	}
	for _, tc := range cases {
		got, err := ParseAmount("amount", tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", tc.in, err)
		}
		if !got.Equal(d(tc.expected)) {
			t.Fatalf("ParseAmount(%q) = %s, want %s", tc.in, got, tc.expected)
		}
	}
}

func TestParseAmount_Rejects(t *testing.T) {
	for _, in := range []string{"", "abc", "NaN", "Infinity", "-inf", "12..5", "100000000000000", "-123,456,789,012,345,678,901.1234"} {
		_, err := ParseAmount("delta", in)
		if err == nil {
			t.Fatalf("expected error for %q", in)
		}
		if KindOf(err) != ErrorKindValidation {
			t.Fatalf("expected validation error for %q, got %s", in, KindOf(err))
		}
	}
}

func TestAmountFromFloat(t *testing.T) {
	if _, err := AmountFromFloat("delta", math.NaN()); err == nil {
		t.Fatalf("NaN must be rejected")
	}
	if _, err := AmountFromFloat("delta", math.Inf(-1)); err == nil {
		t.Fatalf("-Inf must be rejected")
	}
	got, err := AmountFromFloat("delta", 12.5)
	if err != nil || !got.Equal(d("12.5")) {
		t.Fatalf("AmountFromFloat(12.5) = %s, %v", got, err)
	}
}

func TestValidateAmount(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"0", true},
		{"99999999999999.9999", true},
		{"-99999999999999.9999", true},
		{"99999999999999.99995", false},
		{"100000000000000", false},
		{"123456789012345678901.1234", false},
	}
	for _, tc := range cases {
		err := ValidateAmount("delta", d(tc.in))
		if tc.ok && err != nil {
			t.Fatalf("ValidateAmount(%s): unexpected %v", tc.in, err)
		}
		if !tc.ok && KindOf(err) != ErrorKindValidation {
			t.Fatalf("ValidateAmount(%s): expected validation error, got %v", tc.in, err)
		}
	}
	if _, err := AmountFromFloat("delta", 1e20); err == nil {
		t.Fatalf("1e20 must be rejected")
	}
}
