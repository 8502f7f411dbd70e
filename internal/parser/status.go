package parser

import (
	"regexp"
	"strconv"
	"strings"

	"labflow/internal/models"
)

var (
	rangePattern = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*-\s*(-?\d+(?:\.\d+)?)`)
	nonNumeric   = regexp.MustCompile(`[^0-9.\-]`)
	leadingFloat = regexp.MustCompile(`^-?\d+(?:\.\d+)?`)
)

const (
	criticalLowFactor  = 0.7
	criticalHighFactor = 1.3
)

// CalculateStatus classifies an observed value against a reference range.
// Numeric bounds win when both are present; otherwise rangeText is searched for
// "<min> - <max>". Values more than 30% outside the range are CRITICAL.
func CalculateStatus(value string, rangeMin, rangeMax *float64, rangeText string) string {
	v, ok := parseValue(value)
	if !ok {
		return models.TestPending
	}
	lo, hi, ok := resolveRange(rangeMin, rangeMax, rangeText)
	if !ok {
		return models.TestPending
	}
	switch {
	case v < lo*criticalLowFactor || v > hi*criticalHighFactor:
		return models.TestCritical
	case v < lo:
		return models.TestLow
	case v > hi:
		return models.TestHigh
	default:
		return models.TestNormal
	}
}

func parseValue(value string) (float64, bool) {
	// Only the leading number counts: "5.4." reads as 5.4.
	num := leadingFloat.FindString(nonNumeric.ReplaceAllString(value, ""))
	if num == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func resolveRange(rangeMin, rangeMax *float64, rangeText string) (float64, float64, bool) {
	if rangeMin != nil && rangeMax != nil {
		return *rangeMin, *rangeMax, true
	}
	m := rangePattern.FindStringSubmatch(strings.TrimSpace(rangeText))
	if m == nil {
		return 0, 0, false
	}
	lo, err1 := strconv.ParseFloat(m[1], 64)
	hi, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// Flagged reports whether a status deserves attention in the UI.
func Flagged(status string) bool {
	switch strings.ToUpper(status) {
	case models.TestHigh, models.TestLow, models.TestCritical, models.TestAbnormal:
		return true
	}
	return false
}

// NormalizeStatus upper-cases a provider supplied status and drops anything unknown.
func NormalizeStatus(status string) string {
	s := strings.ToUpper(strings.TrimSpace(status))
	switch s {
	case models.TestNormal, models.TestHigh, models.TestLow, models.TestCritical, models.TestPending, models.TestAbnormal:
		return s
	}
	return ""
}
