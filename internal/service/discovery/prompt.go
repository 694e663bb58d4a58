package discovery

import (
	"fmt"
	"strings"

	"github.com/introweave/matchmaker/internal/db"
)

// scoringPrompt builds the single batched compatibility call: the
// requester's summaries plus every candidate, asked to pick one best
// match or the "none" sentinel. The threshold appears in the prompt as
// guidance, but the service re-checks the parsed score regardless.
func scoringPrompt(persona, connection string, candidates []db.User, threshold int) string {
	var b strings.Builder

	b.WriteString("You are matching members of a community for meaningful introductions.\n\n")
	fmt.Fprintf(&b, "Requester persona: %s\n", persona)
	fmt.Fprintf(&b, "Requester is looking for: %s\n\n", connection)

	b.WriteString("Candidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id=%s persona: %s; looking for: %s\n", c.ID, c.PersonaContext, c.ConnectionContext)
	}

	fmt.Fprintf(&b, `
Pick the single best candidate for the requester, or "none" if no
candidate would score at least %d out of 100.

Answer in exactly this format:
<bestMatch>candidate id or none</bestMatch>
<score>0-100</score>
<reasoning>one or two sentences</reasoning>
`, threshold)

	return b.String()
}

// summarizePrompt asks the generator to distill partial profile text
// into the two context summaries discovery needs.
func summarizePrompt(persona, connection string) string {
	return fmt.Sprintf(`Summarize this member profile into two short paragraphs.

Known persona text: %s
Known connection preferences: %s

Answer in exactly this format:
<personaContext>who they are</personaContext>
<connectionContext>what connection they want</connectionContext>
`, persona, connection)
}
