package collab

import (
	"errors"
	"strconv"
	"strings"
)

// ErrMissingField is returned when a generated response lacks a field a
// caller requires. Call sites treat it as a soft failure: respond with a
// fallback message and write nothing.
var ErrMissingField = errors.New("generated response missing expected field")

// NoneSentinel is what the scoring prompt asks the model to emit when no
// candidate is acceptable.
const NoneSentinel = "none"

// ExtractTag pulls the text between <tag> and </tag> out of a response
// body. Generated output is not well-formed XML, so this is a plain
// scan: first opening tag wins, unmatched tags report absence.
func ExtractTag(body, tag string) (string, bool) {
	open := "<" + tag + ">"
	close := "</" + tag + ">"

	start := strings.Index(body, open)
	if start < 0 {
		return "", false
	}
	start += len(open)
	end := strings.Index(body[start:], close)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(body[start : start+end]), true
}

// MatchSelection is the parsed result of one batched scoring call.
type MatchSelection struct {
	CandidateID string
	Score       int
	Reasoning   string
	None        bool
}

// ParseMatchSelection extracts the chosen candidate, score and reasoning
// from a scoring response. The "none" sentinel (or an absent bestMatch
// tag whose body says none) parses successfully with None set; anything
// else missing is ErrMissingField.
func ParseMatchSelection(body string) (MatchSelection, error) {
	var sel MatchSelection

	best, ok := ExtractTag(body, "bestMatch")
	if !ok {
		return sel, ErrMissingField
	}
	if strings.EqualFold(best, NoneSentinel) {
		sel.None = true
		return sel, nil
	}
	sel.CandidateID = best

	rawScore, ok := ExtractTag(body, "score")
	if !ok {
		return sel, ErrMissingField
	}
	score, err := strconv.Atoi(strings.TrimSuffix(rawScore, "%"))
	if err != nil {
		return sel, ErrMissingField
	}
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}
	sel.Score = score

	// Reasoning is informative only; tolerate its absence.
	sel.Reasoning, _ = ExtractTag(body, "reasoning")

	return sel, nil
}

// ContextSummary is the parsed result of a summarize call.
type ContextSummary struct {
	Persona    string
	Connection string
}

// ParseContextSummary extracts persona/connection summaries. Both fields
// are required.
func ParseContextSummary(body string) (ContextSummary, error) {
	persona, ok := ExtractTag(body, "personaContext")
	if !ok {
		return ContextSummary{}, ErrMissingField
	}
	connection, ok := ExtractTag(body, "connectionContext")
	if !ok {
		return ContextSummary{}, ErrMissingField
	}
	return ContextSummary{Persona: persona, Connection: connection}, nil
}
