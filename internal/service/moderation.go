package service

import (
	"context"
	"strings"
)

// Classifier flags message text that should not be delivered. Callers treat
// classifier failures as "not flagged" so a broken moderation backend never
// blocks messaging (fail-open).
type Classifier interface {
	Classify(ctx context.Context, text string) (flagged bool, err error)
}

// WordFilter is a local Classifier backed by a configured blocklist. Matching
// is case-insensitive substring containment, which catches the common
// obfuscations the platform actually sees (suffixes, embedding in longer
// words) at the cost of some false positives.
type WordFilter struct {
	words []string
}

// NewWordFilter builds a WordFilter from a comma-separated blocklist.
func NewWordFilter(raw string) *WordFilter {
	var words []string
	for _, w := range strings.Split(raw, ",") {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			words = append(words, w)
		}
	}
	return &WordFilter{words: words}
}

// Classify reports whether text contains any blocked word.
func (f *WordFilter) Classify(_ context.Context, text string) (bool, error) {
	if len(f.words) == 0 {
		return false, nil
	}
	lower := strings.ToLower(text)
	for _, w := range f.words {
		if strings.Contains(lower, w) {
			return true, nil
		}
	}
	return false, nil
}
