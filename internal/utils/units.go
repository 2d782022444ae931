package utils

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Fixed approximations used when converting calendar components of an
// ISO-8601 duration to seconds.
const (
	secondsPerYear  = 31557600
	secondsPerMonth = 2629800
	secondsPerDay   = 86400
)

var memoryRe = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)\s*([a-zA-Z]*)$`)

// ParseMemoryBytes converts a human memory string such as "10g" or "512 mb"
// into bytes. Suffixes k/kb, m/mb, g/gb, t/tb are binary units and
// case-insensitive; a bare number is bytes.
func ParseMemoryBytes(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty memory string")
	}
	m := memoryRe.FindStringSubmatch(trimmed)
	if m == nil {
		return 0, fmt.Errorf("invalid memory string %q", s)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory value %q: %w", s, err)
	}
	var mult float64
	switch strings.ToLower(m[2]) {
	case "":
		mult = 1
	case "k", "kb":
		mult = 1 << 10
	case "m", "mb":
		mult = 1 << 20
	case "g", "gb":
		mult = 1 << 30
	case "t", "tb":
		mult = 1 << 40
	default:
		return 0, fmt.Errorf("unknown memory suffix %q in %q", m[2], s)
	}
	return int64(math.Round(value * mult)), nil
}

var iso8601Re = regexp.MustCompile(`^P(?:([0-9]+(?:\.[0-9]+)?)Y)?(?:([0-9]+(?:\.[0-9]+)?)M)?(?:([0-9]+(?:\.[0-9]+)?)D)?(?:T(?:([0-9]+(?:\.[0-9]+)?)H)?(?:([0-9]+(?:\.[0-9]+)?)M)?(?:([0-9]+(?:\.[0-9]+)?)S)?)?$`)
var iso8601WeekRe = regexp.MustCompile(`^P([0-9]+(?:\.[0-9]+)?)W$`)

// ParseISO8601Duration converts an ISO-8601 duration (PnYnMnDTnHnMnS or PnW)
// into whole seconds.
func ParseISO8601Duration(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if w := iso8601WeekRe.FindStringSubmatch(trimmed); w != nil {
		weeks, err := strconv.ParseFloat(w[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return int64(math.Round(weeks * 7 * secondsPerDay)), nil
	}
	m := iso8601Re.FindStringSubmatch(trimmed)
	if m == nil || trimmed == "P" || strings.HasSuffix(trimmed, "T") {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", s)
	}
	matchedAny := false
	total := 0.0
	mults := []float64{secondsPerYear, secondsPerMonth, secondsPerDay, 3600, 60, 1}
	for i, mult := range mults {
		part := m[i+1]
		if part == "" {
			continue
		}
		matchedAny = true
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		total += v * mult
	}
	if !matchedAny {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", s)
	}
	return int64(math.Round(total)), nil
}
