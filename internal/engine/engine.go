// Package engine drives chunk-by-chunk translation of a document.
//
// Chunks are translated strictly in order: each successful translation feeds
// a rolling context window (its last 25 words) into the next prompt, which is
// what keeps pronouns, tense and terminology stable across chunk boundaries.
// Because of that dependency the engine is sequential on purpose — there is
// no per-chunk concurrency to tune.
//
// A failed chunk never aborts the run. The original text is kept inside a
// visible error placeholder so the output document stays complete and the
// failure is findable afterwards.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/tomeglot/internal/postproc"
	"github.com/MrWong99/tomeglot/internal/prompt"
	"github.com/MrWong99/tomeglot/pkg/provider/llm"
	"github.com/MrWong99/tomeglot/pkg/tagpreserve"
	"github.com/MrWong99/tomeglot/pkg/textseg"
)

// contextWords is the size of the rolling context window carried between
// chunks, in words.
const contextWords = 25

// Stats is the running tally of a translation pass.
type Stats struct {
	// Total counts the units of work identified up front, before any of
	// them ran.
	Total int

	// Completed counts chunks that produced output (including passthroughs).
	Completed int

	// Failed counts chunks that ended as error placeholders.
	Failed int
}

// Memory is an optional translation memory consulted before the model and
// fed after it. Implementations must be safe for concurrent use.
type Memory interface {
	// Lookup returns a stored translation for source, if one exists.
	Lookup(ctx context.Context, source string) (translation string, ok bool, err error)

	// Store records a successful translation of source.
	Store(ctx context.Context, source, translation string) error
}

// Hooks carries the optional per-chunk callbacks. Nil fields are skipped.
type Hooks struct {
	// Progress receives the completion percentage before each chunk starts.
	Progress func(percent float64)

	// Stats receives the updated tally after each chunk finishes.
	Stats func(Stats)

	// Interrupted is polled between chunks; once it reports true the run
	// stops with ErrInterrupted. The chunk in flight always finishes first.
	Interrupted func() bool
}

// ErrInterrupted reports that the interrupt poll fired between units of work.
// The unit in flight was allowed to finish; partial output is preserved.
var ErrInterrupted = errors.New("engine: translation interrupted")

// Cancelled reports why a run must stop: the context error, or ErrInterrupted
// when the interrupt poll fires. It returns nil while work may continue.
func (h Hooks) Cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.Interrupted != nil && h.Interrupted() {
		return ErrInterrupted
	}
	return nil
}

// Engine translates chunk sequences through an llm.Provider.
type Engine struct {
	provider llm.Provider
	prompts  prompt.Builder
	pipeline *postproc.Pipeline
	memory   Memory
	logger   *slog.Logger

	postProcess   bool
	ppInstruction string
}

// Option is a functional option for Engine.
type Option func(*Engine)

// WithPostProcessing enables the second model round that polishes each
// translation, with optional extra instructions for that round.
func WithPostProcessing(instructions string) Option {
	return func(e *Engine) {
		e.postProcess = true
		e.ppInstruction = instructions
	}
}

// WithMemory attaches a translation memory.
func WithMemory(m Memory) Option {
	return func(e *Engine) {
		e.memory = m
	}
}

// WithPipeline replaces the default cleaning pipeline.
func WithPipeline(p *postproc.Pipeline) Option {
	return func(e *Engine) {
		e.pipeline = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New constructs an Engine translating with the given provider and prompts.
func New(provider llm.Provider, prompts prompt.Builder, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		prompts:  prompts,
		pipeline: postproc.NewPipeline(),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Prompts returns the prompt builder the engine was constructed with.
func (e *Engine) Prompts() prompt.Builder { return e.prompts }

// Provider returns the underlying llm.Provider.
func (e *Engine) Provider() llm.Provider { return e.provider }

// Pipeline returns the cleaning pipeline applied to model output.
func (e *Engine) Pipeline() *postproc.Pipeline { return e.pipeline }

// ErrorPlaceholder wraps original text in the visible failure marker used
// when a chunk cannot be translated. segment is 1-based.
func ErrorPlaceholder(segment int, original string) string {
	return fmt.Sprintf("[TRANSLATION_ERROR SEGMENT %d]\n%s\n[/TRANSLATION_ERROR SEGMENT %d]", segment, original, segment)
}

// TranslateChunks translates chunks in order and returns one output part per
// chunk. Cancellation and interrupts are checked between chunks: the parts
// translated so far are returned together with the context error or
// ErrInterrupted, letting the caller save partial output.
func (e *Engine) TranslateChunks(ctx context.Context, chunks []textseg.Chunk, hooks Hooks) ([]string, Stats, error) {
	return e.TranslateChunksFrom(ctx, chunks, "", hooks)
}

// TranslateChunksFrom is TranslateChunks with a pre-seeded rolling context,
// used when a chunk sequence continues earlier translated material (EPUB
// blocks share context across elements).
func (e *Engine) TranslateChunksFrom(ctx context.Context, chunks []textseg.Chunk, initialContext string, hooks Hooks) ([]string, Stats, error) {
	var (
		parts []string
		stats Stats
	)
	rolling := initialContext
	total := len(chunks)
	stats.Total = total

	for i, chunk := range chunks {
		if err := hooks.Cancelled(ctx); err != nil {
			return parts, stats, err
		}
		if hooks.Progress != nil && total > 0 {
			hooks.Progress(float64(i) / float64(total) * 100)
		}

		main := chunk.Main
		if strings.TrimSpace(main) == "" {
			parts = append(parts, main)
			stats.Completed++
			emitStats(hooks, stats)
			continue
		}

		translated, err := e.translateOne(ctx, main, rolling)
		if err != nil {
			if ctx.Err() != nil {
				return parts, stats, ctx.Err()
			}
			e.logger.Error("chunk translation failed, keeping original",
				"segment", i+1, "total", total, "err", err)
			parts = append(parts, ErrorPlaceholder(i+1, main))
			stats.Failed++
			rolling = ""
			emitStats(hooks, stats)
			continue
		}

		parts = append(parts, translated)
		stats.Completed++
		rolling = tailWords(translated, contextWords)
		emitStats(hooks, stats)
	}
	return parts, stats, nil
}

// errDiscarded reports a markerless response that merely echoed its input.
var errDiscarded = errors.New("engine: response echoes the input, discarded")

// translateOne translates a single main content with the rolling context.
func (e *Engine) translateOne(ctx context.Context, main, rolling string) (string, error) {
	// Single characters and bare punctuation gain nothing from the model.
	if len(strings.TrimSpace(main)) <= 1 {
		return e.pipeline.Process(main), nil
	}

	if e.memory != nil {
		if hit, ok, err := e.memory.Lookup(ctx, main); err != nil {
			e.logger.Warn("translation memory lookup failed", "err", err)
		} else if ok {
			e.logger.Debug("translation memory hit", "chars", len(main))
			return hit, nil
		}
	}

	p := e.prompts.Translation(main, rolling)
	translated, err := e.provider.Translate(ctx, p)
	if err != nil {
		if !errors.Is(err, llm.ErrMarkersMissing) {
			return "", fmt.Errorf("engine: translate: %w", err)
		}
		// The model answered without markers. If it just echoed the input the
		// response is worthless; otherwise the unwrapped text is usually the
		// translation itself.
		if strings.Contains(translated, main) {
			return "", errDiscarded
		}
		e.logger.Warn("translation markers missing, using raw response", "chars", len(translated))
	}

	translated = e.pipeline.Process(translated)
	if e.postProcess {
		translated = e.PostProcess(ctx, translated, nil, e.ppInstruction)
	}

	e.warnOnEcho(main, translated)

	if e.memory != nil {
		if err := e.memory.Store(ctx, main, translated); err != nil {
			e.logger.Warn("translation memory store failed", "err", err)
		}
	}
	return translated, nil
}

// PostProcess runs the second model round over translated text. The round's
// output goes through the cleaning pipeline before it is accepted. When tags
// is non-empty the result must preserve every ⟦TAGn⟧ placeholder: mutations
// are repaired, and a persistent loss triggers one retry with escalated
// instructions. The pre-round text is returned whenever the round fails —
// post-processing may only ever improve the output, never lose it.
func (e *Engine) PostProcess(ctx context.Context, translated string, tags map[int]string, extra string) string {
	if len(strings.TrimSpace(translated)) <= 1 {
		return translated
	}

	improved, err := e.provider.Translate(ctx, e.prompts.PostProcessing(translated, extra))
	if err != nil && !errors.Is(err, llm.ErrMarkersMissing) {
		e.logger.Warn("post-processing request failed, keeping translation", "err", err)
		return translated
	}
	if strings.TrimSpace(improved) == "" {
		return translated
	}
	improved = e.pipeline.Process(improved)

	if len(tags) == 0 {
		return improved
	}

	report := tagpreserve.Validate(improved, tags)
	if len(report.Mutated) > 0 {
		improved = tagpreserve.FixMutations(improved, tags)
		report = tagpreserve.Validate(improved, tags)
	}
	if report.OK() {
		return improved
	}

	// Retry once with the escalated placeholder instructions.
	missing := placeholderNames(report.Missing)
	e.logger.Warn("post-processing lost placeholders, retrying", "missing", missing)

	critical := strings.TrimSpace(extra + "\n\n" + prompt.PlaceholderCritical(missing))
	retry, err := e.provider.Translate(ctx, e.prompts.PostProcessing(translated, critical))
	if err != nil && !errors.Is(err, llm.ErrMarkersMissing) {
		return translated
	}
	retry = tagpreserve.FixMutations(e.pipeline.Process(retry), tags)
	if tagpreserve.Validate(retry, tags).OK() {
		return retry
	}

	e.logger.Warn("post-processing retry still missing placeholders, keeping translation")
	return translated
}

// warnOnEcho flags translations suspiciously close to their source — usually
// a sign the model refused or the language pair confused it. Levenshtein over
// the first few hundred characters keeps the check cheap on big chunks.
func (e *Engine) warnOnEcho(main, translated string) {
	const window = 400
	a, b := clip(main, window), clip(translated, window)
	if len(a) < 20 {
		return
	}
	dist := matchr.Levenshtein(a, b)
	if dist*10 < len(a) {
		e.logger.Warn("translation nearly identical to source text",
			"distance", dist, "chars", len(a))
	}
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n]
	}
	return s
}

func emitStats(hooks Hooks, s Stats) {
	if hooks.Stats != nil {
		hooks.Stats(s)
	}
}

// tailWords returns the last n words of text, or the whole text when shorter.
func tailWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

// placeholderNames renders placeholder indices as their canonical strings.
func placeholderNames(indices []int) []string {
	names := make([]string, len(indices))
	for i, n := range indices {
		names[i] = tagpreserve.Placeholder(n)
	}
	return names
}
