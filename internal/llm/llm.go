// Package llm provides the narrow text-generation collaborator boundary.
// The pipeline treats it as an opaque, possibly slow, possibly failing
// dependency; retries belong to callers, not here.
package llm

import "context"

// ChatCompleter produces one completion for a prompt. Implementations are
// expected to return text that satisfies the prompt's format contract (often
// JSON), but callers must validate rather than trust the shape.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, prompt string) (string, error)
}
