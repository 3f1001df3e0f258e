package document

import (
	"context"
	"strings"

	"github.com/MrWong99/tomeglot/internal/engine"
	"github.com/MrWong99/tomeglot/pkg/textseg"
)

// TextTranslator translates plain text files chunk by chunk.
type TextTranslator struct {
	Engine *engine.Engine

	// MainLines is the chunk target size. Zero means textseg.DefaultMainLines.
	MainLines int
}

// Translate splits src into chunks, translates them in order and joins the
// parts back with newlines. On cancellation the joined partial output is
// returned together with the context error so the caller can save it.
func (t *TextTranslator) Translate(ctx context.Context, src string, hooks engine.Hooks) (string, engine.Stats, error) {
	n := t.MainLines
	if n <= 0 {
		n = textseg.DefaultMainLines
	}

	chunks := textseg.Chunks(src, n)
	if len(chunks) == 0 {
		if strings.TrimSpace(src) == "" {
			return "", engine.Stats{}, nil
		}
		// Non-empty text the chunker could not split: translate as one block.
		chunks = []textseg.Chunk{{Main: src}}
	}

	parts, stats, err := t.Engine.TranslateChunks(ctx, chunks, hooks)
	return strings.Join(parts, "\n"), stats, err
}
