package proposal

import "fmt"

// introPrompt asks the generator to draft the message delivered to the
// proposal recipient.
func introPrompt(fromName, toName, persona, connection, reasoning string) string {
	if fromName == "" {
		fromName = "a fellow member"
	}
	if toName == "" {
		toName = "you"
	}
	return fmt.Sprintf(`Write a short, warm introduction message for %s, on behalf of %s.

About %s: %s
They are looking for: %s
Why this looks like a good match: %s

Keep it to three sentences, no salutation block.`, toName, fromName, fromName, persona, connection, reasoning)
}
