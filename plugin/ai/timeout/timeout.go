// Package timeout defines centralized timeout and limit constants for AI operations.
package timeout

import "time"

// AI operation timeout constants.
const (
	// TurnTimeout is the overall deadline for one coaching turn's context assembly.
	TurnTimeout = 10 * time.Second

	// EmbeddingTimeout is the timeout for embedding generation.
	EmbeddingTimeout = 30 * time.Second

	// NamespaceQueryTimeout is the timeout for a single namespace vector query.
	NamespaceQueryTimeout = 2 * time.Second

	// GenerationTimeout is the timeout for the model gateway call.
	GenerationTimeout = 2 * time.Minute

	// MaxInflightNamespaceQueries bounds concurrent namespace fan-out.
	MaxInflightNamespaceQueries = 4

	// MaxRetryAttempts is the attempt cap shared by all retried external calls.
	MaxRetryAttempts = 3

	// RetryBaseDelay is the base delay for jittered exponential backoff.
	RetryBaseDelay = 200 * time.Millisecond

	// RetryMaxDelay caps a single backoff sleep.
	RetryMaxDelay = 5 * time.Second
)
