package provider

import (
	"context"
	"errors"
)

// ErrUnavailable marks failures reaching or understanding the external
// provider, as opposed to bad input on our side.
var ErrUnavailable = errors.New("provider unavailable")

// Provider is the external AI collaborator used by the retrieval
// pipeline: embeddings for chunks and queries, completions for
// comparison answers.
type Provider interface {
	// CreateEmbedding returns one vector per input text, in input order.
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	// Completion generates a chat completion for the given prompts.
	Completion(ctx context.Context, system, user string) (string, error)
}
