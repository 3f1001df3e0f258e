package srt

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MrWong99/tomeglot/internal/engine"
	"github.com/MrWong99/tomeglot/internal/prompt"
)

// DefaultMaxAttempts bounds the per-block translation attempts, including
// retries with escalated tag instructions.
const DefaultMaxAttempts = 3

// contextSubtitles is how many translated entries roll into the next block's
// prompt as context.
const contextSubtitles = 5

// Translator translates subtitle files block by block.
type Translator struct {
	Engine *engine.Engine

	// BlockSubtitles and BlockChars bound the grouping; zero means defaults.
	BlockSubtitles int
	BlockChars     int

	// MaxAttempts bounds translation attempts per block; zero means 3.
	MaxAttempts int

	// PostProcess enables the second model round per block.
	PostProcess bool

	// PostProcessInstructions are extra instructions for that round.
	PostProcessInstructions string

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

func (t *Translator) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func (t *Translator) maxAttempts() int {
	if t.MaxAttempts > 0 {
		return t.MaxAttempts
	}
	return DefaultMaxAttempts
}

// TranslateDocument parses content, translates it and reconstructs the SRT
// file. On cancellation the reconstruction with whatever was translated so
// far is returned together with the context error.
func (t *Translator) TranslateDocument(ctx context.Context, content string, hooks engine.Hooks) (string, engine.Stats, error) {
	subs := Parse(content)
	translations, stats, err := t.TranslateSubtitles(ctx, subs, hooks)

	out := make([]Subtitle, len(subs))
	copy(out, subs)
	for i := range out {
		if translated, ok := translations[out[i].Sequence-1]; ok {
			out[i].Text = translated
		}
	}
	return Reconstruct(out), stats, err
}

// TranslateSubtitles translates subs in blocks and returns a map from
// 0-based index (sequence − 1) to translated text. Every extracted entry goes
// through the engine's cleaning pipeline. Entries of failed blocks are absent
// from the map, so callers keep the original text. Stats count subtitles, not
// blocks.
func (t *Translator) TranslateSubtitles(ctx context.Context, subs []Subtitle, hooks engine.Hooks) (map[int]string, engine.Stats, error) {
	blocks := Group(subs, t.BlockSubtitles, t.BlockChars)
	translations := make(map[int]string)

	var (
		stats     engine.Stats
		prevBlock string
	)
	total := len(blocks)
	for _, s := range subs {
		if strings.TrimSpace(s.Text) != "" {
			stats.Total++
		}
	}

	for blockIdx, block := range blocks {
		if err := hooks.Cancelled(ctx); err != nil {
			return translations, stats, err
		}
		if hooks.Progress != nil && total > 0 {
			hooks.Progress(float64(blockIdx) / float64(total) * 100)
		}

		entries, indices := blockEntries(block)
		if len(entries) == 0 {
			continue
		}

		translated, err := t.translateBlock(ctx, entries, indices, prevBlock)
		if err != nil {
			if ctx.Err() != nil {
				return translations, stats, ctx.Err()
			}
			t.logger().Error("subtitle block failed, keeping originals",
				"block", blockIdx+1, "total", total, "subtitles", len(entries), "err", err)
			stats.Failed += len(entries)
			prevBlock = ""
			emitStats(hooks, stats)
			continue
		}

		if t.PostProcess {
			translated = t.postProcessBlock(ctx, translated, indices)
		}

		extracted := ExtractBlock(translated, indices)
		for _, idx := range indices {
			if text, ok := extracted[idx]; ok && text != "" {
				text = t.Engine.Pipeline().Process(text)
				extracted[idx] = text
				translations[idx] = text
				stats.Completed++
			} else {
				t.logger().Warn("subtitle missing from block translation, keeping original", "index", idx)
				stats.Failed++
			}
		}
		prevBlock = contextFromBlock(extracted, indices)
		emitStats(hooks, stats)
	}
	return translations, stats, nil
}

// translateBlock requests one block translation, retrying with escalated
// instructions while [index] tags go missing from the response.
func (t *Translator) translateBlock(ctx context.Context, entries []prompt.SubtitleEntry, indices []int, prevBlock string) (string, error) {
	var (
		extra   string
		lastErr error
	)
	for attempt := 1; attempt <= t.maxAttempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if attempt > 1 {
			t.logger().Debug("retrying subtitle block", "attempt", attempt)
		}

		p := t.Engine.Prompts().SubtitleBlock(entries, prevBlock, extra)
		raw, err := t.Engine.Provider().Translate(ctx, p)
		if err != nil {
			lastErr = err
			continue
		}

		missing := MissingTags(raw, indices)
		if len(missing) == 0 {
			return raw, nil
		}
		lastErr = errMissingTags(missing)
		extra = prompt.SubtitleCritical(tagNames(missing))
	}
	return "", lastErr
}

// postProcessBlock runs the second model round over a whole block. The round
// must keep every [index] tag; after three failed attempts the pre-round
// translation is returned unchanged.
func (t *Translator) postProcessBlock(ctx context.Context, translated string, indices []int) string {
	instructions := t.PostProcessInstructions
	for attempt := 1; attempt <= t.maxAttempts(); attempt++ {
		improved, err := t.Engine.Provider().Translate(ctx, t.Engine.Prompts().PostProcessing(translated, instructions))
		if err != nil || strings.TrimSpace(improved) == "" {
			if ctx.Err() != nil {
				return translated
			}
			continue
		}
		missing := MissingTags(improved, indices)
		if len(missing) == 0 {
			return improved
		}
		t.logger().Warn("post-processing lost subtitle tags, retrying",
			"attempt", attempt, "missing", tagNames(missing))
		instructions = strings.TrimSpace(t.PostProcessInstructions + "\n\n" + prompt.SubtitleCritical(tagNames(missing)))
	}
	t.logger().Warn("post-processing kept losing subtitle tags, keeping translation")
	return translated
}

// blockEntries builds the prompt entries for a block, skipping whitespace
// subtitles. Indices are 0-based (sequence − 1).
func blockEntries(block []Subtitle) ([]prompt.SubtitleEntry, []int) {
	var (
		entries []prompt.SubtitleEntry
		indices []int
	)
	for _, s := range block {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		idx := s.Sequence - 1
		entries = append(entries, prompt.SubtitleEntry{Index: idx, Text: text})
		indices = append(indices, idx)
	}
	return entries, indices
}

// contextFromBlock renders the last translated entries of a block as the
// next block's rolling context.
func contextFromBlock(extracted map[int]string, indices []int) string {
	var lines []string
	for _, idx := range indices {
		if text, ok := extracted[idx]; ok && text != "" {
			lines = append(lines, IndexTag(idx)+text)
		}
	}
	if len(lines) > contextSubtitles {
		lines = lines[len(lines)-contextSubtitles:]
	}
	return strings.Join(lines, "\n")
}

func tagNames(indices []int) []string {
	names := make([]string, len(indices))
	for i, idx := range indices {
		names[i] = IndexTag(idx)
	}
	return names
}

func emitStats(hooks engine.Hooks, s engine.Stats) {
	if hooks.Stats != nil {
		hooks.Stats(s)
	}
}

type errMissingTags []int

func (e errMissingTags) Error() string {
	return "srt: block translation is missing " + strings.Join(tagNames(e), ", ")
}
