// Package mock is a test double for [embeddings.Provider].
//
//	p := &mock.Provider{
//	    EmbedResult:     []float32{1, 0, 0, 0},
//	    DimensionsValue: 4,
//	}
//	vec, _ := p.Embed(ctx, "The cat sat.")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tomeglot/pkg/provider/embeddings"
)

// Provider returns canned vectors and records what was embedded.
// Safe for concurrent use.
type Provider struct {
	// EmbedResult is returned by every Embed call.
	EmbedResult []float32
	// EmbedErr, when set, makes Embed fail.
	EmbedErr error

	// EmbedBatchResult is returned by EmbedBatch; when nil, EmbedBatch
	// returns len(texts) nil vectors so length-checking callers still work.
	EmbedBatchResult [][]float32
	// EmbedBatchErr, when set, makes EmbedBatch fail.
	EmbedBatchErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int
	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	mu         sync.Mutex
	embedded   []string
	batchCalls [][]string
}

var _ embeddings.Provider = (*Provider)(nil)

func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.embedded = append(p.embedded, text)
	p.mu.Unlock()
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	return p.EmbedResult, nil
}

func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.mu.Lock()
	p.batchCalls = append(p.batchCalls, cp)
	p.mu.Unlock()
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	return make([][]float32, len(texts)), nil
}

func (p *Provider) Dimensions() int { return p.DimensionsValue }

func (p *Provider) ModelID() string { return p.ModelIDValue }

// Embedded returns a copy of every text passed to Embed, in order.
func (p *Provider) Embedded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.embedded))
	copy(out, p.embedded)
	return out
}

// BatchCalls returns a copy of the text slices passed to EmbedBatch.
func (p *Provider) BatchCalls() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]string, len(p.batchCalls))
	copy(out, p.batchCalls)
	return out
}
