package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/tomeglot/internal/api"
	"github.com/MrWong99/tomeglot/internal/document"
	"github.com/MrWong99/tomeglot/internal/document/epub"
	"github.com/MrWong99/tomeglot/internal/document/srt"
	"github.com/MrWong99/tomeglot/internal/engine"
	"github.com/MrWong99/tomeglot/internal/jobs"
	"github.com/MrWong99/tomeglot/internal/mcpserver"
	"github.com/MrWong99/tomeglot/internal/observe"
	"github.com/MrWong99/tomeglot/internal/prompt"
	"github.com/MrWong99/tomeglot/pkg/provider/llm"
)

// request is a submission with every default resolved.
type request struct {
	filename string
	fileType document.Type
	content  []byte

	source       string
	target       string
	model        string
	instructions string

	postProcess    bool
	ppInstructions string
}

// Submit validates a submission, resolves defaults from the configuration and
// starts the translation job. It satisfies [api.SubmitFunc].
func (a *App) Submit(ctx context.Context, sub api.Submission) (string, error) {
	req, err := a.resolve(sub)
	if err != nil {
		return "", err
	}

	jcfg := jobs.Config{
		InputName:      req.filename,
		FileType:       string(req.fileType),
		SourceLanguage: req.source,
		TargetLanguage: req.target,
		Model:          req.model,
		Instructions:   req.instructions,
	}

	id, err := a.jobs.Submit(ctx, jcfg, func(ctx context.Context, h *jobs.Handle) (string, error) {
		return a.runJob(ctx, h, req)
	})
	if err != nil {
		return "", err
	}

	a.metrics.JobsSubmitted.Add(ctx, 1,
		metric.WithAttributes(observe.Attr("file_type", string(req.fileType))))
	a.metrics.QueuedJobs.Add(ctx, 1)
	return id, nil
}

// resolve fills submission gaps from the configured defaults and rejects what
// cannot be translated.
func (a *App) resolve(sub api.Submission) (request, error) {
	fileType, err := document.Detect(sub.Filename, sub.Content)
	if err != nil {
		return request{}, fmt.Errorf("%w: %v", api.ErrBadSubmission, err)
	}

	tc := a.cfg.Translation
	req := request{
		filename:       filepath.Base(sub.Filename),
		fileType:       fileType,
		content:        sub.Content,
		source:         firstNonEmpty(sub.SourceLanguage, tc.SourceLanguage),
		target:         firstNonEmpty(sub.TargetLanguage, tc.TargetLanguage),
		model:          sub.Model,
		instructions:   joinInstructions(tc.Instructions, sub.Instructions),
		postProcess:    tc.PostProcessing,
		ppInstructions: tc.PostProcessingInstructions,
	}
	if sub.PostProcessing != nil {
		req.postProcess = *sub.PostProcessing
	}

	if req.target == "" {
		return request{}, fmt.Errorf("%w: no target language given and none configured", api.ErrBadSubmission)
	}
	if req.model != "" && req.model != a.cfg.Provider.Model && a.providers.LLMForModel == nil {
		return request{}, fmt.Errorf("%w: model overrides are not supported by this deployment", api.ErrBadSubmission)
	}
	return req, nil
}

// runJob performs one translation job from start to output file. On
// interruption the partial document produced so far is still written before
// the context error is returned.
func (a *App) runJob(ctx context.Context, h *jobs.Handle, req request) (string, error) {
	start := time.Now()
	a.metrics.QueuedJobs.Add(ctx, -1)
	a.metrics.ActiveJobs.Add(ctx, 1)
	defer a.metrics.ActiveJobs.Add(context.WithoutCancel(ctx), -1)

	eng, err := a.engineFor(req)
	if err != nil {
		return "", err
	}

	hooks := a.jobHooks(ctx, h, req.fileType)
	output, stats, runErr := a.translate(ctx, eng, req, hooks)

	outputName := ""
	if len(output) > 0 {
		outputName = document.OutputName(req.filename, req.target)
		path := filepath.Join(a.outputDir, outputName)
		if werr := os.WriteFile(path, output, 0o644); werr != nil {
			if runErr == nil {
				runErr = fmt.Errorf("app: write output: %w", werr)
			}
			outputName = ""
		}
	}

	elapsed := time.Since(start)
	a.metrics.JobDuration.Record(context.WithoutCancel(ctx), elapsed.Seconds(),
		metric.WithAttributes(observe.Attr("file_type", string(req.fileType))))

	report := fmt.Sprintf("translated %d chunks (%d failed) in %s",
		stats.Completed, stats.Failed, elapsed.Round(time.Second))
	h.Log(report)
	a.logger.Info("translation session finished",
		"job_id", h.ID(), "input", req.filename, "output", outputName,
		"completed", stats.Completed, "failed", stats.Failed,
		"elapsed", elapsed.Round(time.Second))

	return outputName, runErr
}

// engineFor builds the translation engine for one job. SRT jobs run their own
// tag-aware post-processing inside the subtitle translator, so the engine's
// built-in round stays off for them.
func (a *App) engineFor(req request) (*engine.Engine, error) {
	provider := a.providers.LLM
	if req.model != "" && req.model != a.cfg.Provider.Model {
		p, err := a.providers.LLMForModel(req.model)
		if err != nil {
			return nil, fmt.Errorf("app: provider for model %q: %w", req.model, err)
		}
		provider = p
	}

	builder := prompt.Builder{
		Source:       req.source,
		Target:       req.target,
		Instructions: req.instructions,
	}

	opts := []engine.Option{engine.WithLogger(a.logger)}
	if a.memory != nil {
		opts = append(opts, engine.WithMemory(a.memory.ForPair(req.source, req.target)))
	}
	if req.postProcess && req.fileType != document.TypeSRT {
		opts = append(opts, engine.WithPostProcessing(req.ppInstructions))
	}
	return engine.New(provider, builder, opts...), nil
}

// translate dispatches to the format processor.
func (a *App) translate(ctx context.Context, eng *engine.Engine, req request, hooks engine.Hooks) ([]byte, engine.Stats, error) {
	switch req.fileType {
	case document.TypeText:
		t := &document.TextTranslator{Engine: eng, MainLines: a.cfg.Translation.ChunkLines}
		out, stats, err := t.Translate(ctx, string(req.content), hooks)
		return []byte(out), stats, err

	case document.TypeSRT:
		t := &srt.Translator{
			Engine:                  eng,
			BlockSubtitles:          a.cfg.Subtitles.LinesPerBlock,
			BlockChars:              a.cfg.Subtitles.MaxCharsPerBlock,
			PostProcess:             req.postProcess,
			PostProcessInstructions: req.ppInstructions,
			Logger:                  a.logger,
		}
		out, stats, err := t.TranslateDocument(ctx, string(req.content), hooks)
		return []byte(out), stats, err

	case document.TypeEPUB:
		p := &epub.Processor{Engine: eng, MainLines: a.cfg.Translation.ChunkLines, Logger: a.logger}
		return p.Translate(ctx, req.content, hooks)
	}
	return nil, engine.Stats{}, fmt.Errorf("app: no processor for file type %q", req.fileType)
}

// jobHooks bridges engine callbacks into the job record and the metrics. The
// chunk duration is approximated as the time between stats callbacks — the
// engine is strictly sequential, so the gap is the chunk.
func (a *App) jobHooks(ctx context.Context, h *jobs.Handle, fileType document.Type) engine.Hooks {
	metricsCtx := context.WithoutCancel(ctx)
	last := time.Now()
	prev := engine.Stats{}

	return engine.Hooks{
		Progress:    h.SetProgress,
		Interrupted: h.Interrupted,
		Stats: func(s engine.Stats) {
			h.SetStats(jobs.Stats{
				TotalChunks:     s.Total,
				CompletedChunks: s.Completed,
				FailedChunks:    s.Failed,
			})

			now := time.Now()
			status := "completed"
			if s.Failed > prev.Failed {
				status = "failed"
			}
			a.metrics.RecordChunk(metricsCtx, string(fileType), status, now.Sub(last).Seconds())
			last, prev = now, s
		},
	}
}

// --- MCP backend -------------------------------------------------------------

var _ mcpserver.Backend = (*App)(nil)

// TranslateText translates a snippet synchronously, outside the job system.
func (a *App) TranslateText(ctx context.Context, text, sourceLang, targetLang, instructions string) (string, error) {
	tc := a.cfg.Translation
	req := request{
		fileType:     document.TypeText,
		source:       firstNonEmpty(sourceLang, tc.SourceLanguage),
		target:       firstNonEmpty(targetLang, tc.TargetLanguage),
		instructions: joinInstructions(tc.Instructions, instructions),
	}
	if req.target == "" {
		return "", fmt.Errorf("app: no target language given and none configured")
	}

	eng, err := a.engineFor(req)
	if err != nil {
		return "", err
	}
	t := &document.TextTranslator{Engine: eng, MainLines: a.cfg.Translation.ChunkLines}
	out, _, err := t.Translate(ctx, text, engine.Hooks{})
	return out, err
}

// SubmitJob starts an asynchronous document translation from string content.
func (a *App) SubmitJob(ctx context.Context, filename, content, sourceLang, targetLang string) (string, error) {
	return a.Submit(ctx, api.Submission{
		Filename:       filename,
		Content:        []byte(content),
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
	})
}

// JobStatus returns the snapshot of a job.
func (a *App) JobStatus(id string) (jobs.Snapshot, bool) {
	return a.jobs.Status(id)
}

// Provider exposes the configured LLM provider.
func (a *App) Provider() llm.Provider { return a.providers.LLM }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// joinInstructions merges the configured instructions with per-request ones.
func joinInstructions(configured, extra string) string {
	configured = strings.TrimSpace(configured)
	extra = strings.TrimSpace(extra)
	switch {
	case configured == "":
		return extra
	case extra == "":
		return configured
	}
	return configured + "\n" + extra
}
