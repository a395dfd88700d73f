// Package intent classifies admitted turn text against the fixed rules:
// sell-keyword short-circuit, empty-input short-circuit, or normal flow.
package intent

import "strings"

// Intent is the category of an inbound turn's text.
type Intent int

const (
	Normal Intent = iota
	Sell
	Empty
)

func (i Intent) String() string {
	switch i {
	case Sell:
		return "sell"
	case Empty:
		return "empty"
	default:
		return "normal"
	}
}

// minTextRunes is the threshold under which bare text counts as empty input.
const minTextRunes = 3

// Classifier matches normalized turn text against a configured keyword set.
type Classifier struct {
	sellKeywords []string
}

// NewClassifier creates a Classifier. Keywords are normalized once up front.
func NewClassifier(sellKeywords []string) *Classifier {
	kws := make([]string, 0, len(sellKeywords))
	for _, kw := range sellKeywords {
		if kw = Normalize(kw); kw != "" {
			kws = append(kws, kw)
		}
	}
	return &Classifier{sellKeywords: kws}
}

// Normalize trims surrounding whitespace and lowercases with the
// locale-invariant Unicode fold.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Classify categorizes normalized text. The sell check runs before the empty
// check: a short message matching a sell keyword is still Sell.
func (c *Classifier) Classify(text string, hasAttachment bool) Intent {
	norm := Normalize(text)

	for _, kw := range c.sellKeywords {
		if strings.Contains(norm, kw) {
			return Sell
		}
	}

	if len([]rune(norm)) < minTextRunes && !hasAttachment {
		return Empty
	}

	return Normal
}
