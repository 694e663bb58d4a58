package intent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/introweave/matchmaker/internal/intent"
)

func TestClassifyAccept(t *testing.T) {
	c := intent.NewKeywordClassifier()

	for _, msg := range []string{
		"Yes please!",
		"sounds good to me",
		"ok, connect us",
		"ABSOLUTELY",
	} {
		assert.Equal(t, intent.VerdictAccept, c.Classify(msg), "message: %s", msg)
	}
}

func TestClassifyDecline(t *testing.T) {
	c := intent.NewKeywordClassifier()

	for _, msg := range []string{
		"no thanks",
		"I'd rather not",
		"Not interested, sorry",
	} {
		assert.Equal(t, intent.VerdictDecline, c.Classify(msg), "message: %s", msg)
	}
}

func TestClassifyAmbiguous(t *testing.T) {
	c := intent.NewKeywordClassifier()

	for _, msg := range []string{
		"",
		"tell me more about them",
		"hmm",
		// "know" must not read as "no"
		"let me know their age first",
		// contains both accept and decline keywords
		"yes and no",
	} {
		assert.Equal(t, intent.VerdictAmbiguous, c.Classify(msg), "message: %s", msg)
	}
}
