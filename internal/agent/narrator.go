package agent

import "context"

// StaticNarrator is a model-less Narrator for local development and tests:
// it returns the prompt's event lines under a fixed header instead of
// generated prose.
type StaticNarrator struct{}

func (StaticNarrator) Narrate(_ context.Context, prompt string) ([]Part, error) {
	return []Part{
		TextPart("Situation report (narrative generation disabled):\n"),
		TextPart(prompt),
	}, nil
}
