package providers

import "strings"

// ParseModelLadder splits "gpt-4o-mini|gpt-4o|gpt-4.1" into an ordered, de-duplicated list.
func ParseModelLadder(raw string) []string {
	parts := strings.Split(raw, "|")
	out := make([]string, 0, len(parts))
	seen := map[string]bool{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
