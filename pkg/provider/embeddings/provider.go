// Package embeddings abstracts text-embedding backends.
//
// The translation memory stores every translated segment together with an
// embedding of its source text; fuzzy lookup is then a nearest-neighbour
// search over those vectors. A Provider wraps whatever service produces the
// vectors — a hosted API or a local model server.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider computes dense vector embeddings for text.
//
// Every vector a Provider instance returns has length Dimensions(). Vectors
// from different providers (or different models behind the same provider)
// live in different spaces and must not be compared against each other; the
// translation memory records ModelID alongside its vectors for that reason.
type Provider interface {
	// Embed returns the embedding for one text. The text is passed to the
	// backend verbatim; any model-specific prefixing is the caller's job.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds several texts in one backend call, element i of the
	// result matching texts[i]. All or nothing: on error the result is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the fixed vector length, constant per instance.
	Dimensions() int

	// ModelID identifies the embedding model, e.g. "nomic-embed-text" or
	// "text-embedding-3-small".
	ModelID() string
}
