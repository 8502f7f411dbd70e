package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"labflow/internal/models"
	"labflow/internal/util"
)

// DecodeReport pulls a ParsedMedicalReport out of a provider reply. The reply may be
// bare JSON, fenced JSON, or prose with a JSON object somewhere inside it.
func DecodeReport(raw string) (models.ParsedMedicalReport, error) {
	raw = stripCodeFence(strings.TrimSpace(raw))
	if raw == "" {
		return models.ParsedMedicalReport{}, fmt.Errorf("%w: empty reply", util.ErrMalformedResponse)
	}
	var report models.ParsedMedicalReport
	if err := json.Unmarshal([]byte(raw), &report); err == nil {
		return report, nil
	}
	span, ok := firstObject(raw)
	if !ok {
		return models.ParsedMedicalReport{}, fmt.Errorf("%w: no JSON object in reply", util.ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(span), &report); err != nil {
		return models.ParsedMedicalReport{}, fmt.Errorf("%w: %v", util.ErrMalformedResponse, err)
	}
	return report, nil
}

func stripCodeFence(s string) string {
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// firstObject returns the first balanced {...} span, ignoring braces inside JSON strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
