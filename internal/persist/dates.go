package persist

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2.1.2006",
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// NormalizeDate parses the date formats lab reports commonly print. Slash, dash and
// dot numeric forms are read day first. Unrecognised input yields nil.
func NormalizeDate(s string) *time.Time {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	// Month names may arrive upper- or lower-cased.
	titled := titleWords(s)
	if titled != s {
		for _, layout := range dateLayouts[7:] {
			if t, err := time.Parse(layout, titled); err == nil {
				return &t
			}
		}
	}
	return nil
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
