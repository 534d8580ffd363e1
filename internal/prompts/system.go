// Package prompts contains the prompt templates microbot sends to
// model backends.
//
// Prompt text is Go code rather than config files because it is
// program logic: templates use fmt.Sprintf interpolation, benefit from
// compile-time embedding, and can be validated by tests. A deployment
// that wants a different identity supplies a persona file in config.
package prompts

import "fmt"

// baseIdentity is the default identity prompt used when no persona
// file is configured or the configured one cannot be read.
const baseIdentity = `You are microbot, a helpful conversational assistant.

You can invoke skills to act on the user's behalf. To call a skill, emit a
tagged block naming the skill, with one nested tag per parameter:

<skill-name><param>value</param></skill-name>

If a skill takes a single free-form input, you may put it directly between
the skill tags. The result of each call is fed back to you before you
produce your final answer.

Rules:
- Only call skills listed in the Skills section of this prompt.
- Answer directly when no skill is needed — greetings and questions about
  yourself never need a skill.
- Keep final answers concise and conversational.`

// BaseIdentity returns the default identity prompt.
func BaseIdentity() string {
	return baseIdentity
}

// Compose assembles the full system prompt for one turn from the
// identity text, the memory excerpt, and the skill summary. Empty
// sections are omitted entirely rather than rendered as bare headings.
func Compose(identity, memoryExcerpt, skillSummary string) string {
	prompt := identity

	if memoryExcerpt != "" {
		prompt += fmt.Sprintf("\n\n## Memory\nThings you know from earlier conversations:\n%s", memoryExcerpt)
	}

	if skillSummary != "" {
		prompt += fmt.Sprintf("\n\n## Skills\nSkills you may invoke:\n%s", skillSummary)
	}

	return prompt
}
