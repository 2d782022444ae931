package utils

import "testing"

func TestParseMemoryBytes(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1024", 1024},
		{"1k", 1024},
		{"1KB", 1024},
		{"2m", 2 * 1024 * 1024},
		{"1g", 1 << 30},
		{"1.5g", 1610612736},
		{"10 GB", 10 << 30},
		{"3t", 3 << 40},
	}
	for _, c := range cases {
		got, err := ParseMemoryBytes(c.in)
		if err != nil {
			t.Fatalf("ParseMemoryBytes(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseMemoryBytes(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseMemoryBytesRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1x", "-5g", "1gib"} {
		if _, err := ParseMemoryBytes(in); err == nil {
			t.Fatalf("ParseMemoryBytes(%q) expected error", in)
		}
	}
}

func TestParseISO8601Duration(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"PT30S", 30},
		{"PT5M", 300},
		{"PT1H30M", 5400},
		{"P1D", 86400},
		{"P1DT12H", 129600},
		{"P2W", 14 * 86400},
		{"P1Y", 31557600},
		{"P1M", 2629800},
		{"PT0.5H", 1800},
	}
	for _, c := range cases {
		got, err := ParseISO8601Duration(c.in)
		if err != nil {
			t.Fatalf("ParseISO8601Duration(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseISO8601Duration(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseISO8601DurationRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "P", "PT", "1h", "P1S", "T30S"} {
		if _, err := ParseISO8601Duration(in); err == nil {
			t.Fatalf("ParseISO8601Duration(%q) expected error", in)
		}
	}
}
