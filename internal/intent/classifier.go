// Package intent classifies a free-text reply to a pending proposal.
// The keyword approach is deliberately simple and known-fragile; it sits
// behind the Classifier interface so a real model can replace it without
// touching the workflow.
package intent

import (
	"strings"
	"unicode"
)

type Verdict int

const (
	VerdictAmbiguous Verdict = iota
	VerdictAccept
	VerdictDecline
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return "accept"
	case VerdictDecline:
		return "decline"
	}
	return "ambiguous"
}

// Classifier decides whether a reply accepts or declines a proposal.
// Anything unclear must come back ambiguous: the workflow then asks a
// clarifying question and mutates nothing.
type Classifier interface {
	Classify(message string) Verdict
}

var defaultAccepts = []string{
	"yes", "sure", "accept", "sounds good", "ok", "okay", "let's do it",
	"definitely", "absolutely", "i'm in", "im in", "connect us",
}

var defaultDeclines = []string{
	"no", "nope", "decline", "not interested", "pass", "no thanks",
	"rather not", "don't think so", "dont think so",
}

// KeywordClassifier matches lowercased keyword lists against the reply.
type KeywordClassifier struct {
	accepts  []string
	declines []string
}

// NewKeywordClassifier returns a classifier with the default keyword
// lists.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{accepts: defaultAccepts, declines: defaultDeclines}
}

func (k *KeywordClassifier) Classify(message string) Verdict {
	text := strings.ToLower(strings.TrimSpace(message))
	if text == "" {
		return VerdictAmbiguous
	}

	words := tokenize(text)
	accepted := containsAny(text, words, k.accepts)
	declined := containsAny(text, words, k.declines)

	// Both or neither matching means we cannot tell.
	switch {
	case accepted && !declined:
		return VerdictAccept
	case declined && !accepted:
		return VerdictDecline
	}
	return VerdictAmbiguous
}

// containsAny matches phrases as substrings but single words only on
// word boundaries, so "no" does not fire inside "know".
func containsAny(text string, words []string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.ContainsRune(kw, ' ') {
			if strings.Contains(text, kw) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == kw {
				return true
			}
		}
	}
	return false
}

// tokenize splits on anything that is not a letter or an apostrophe.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}
