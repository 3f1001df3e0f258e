package epub

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/MrWong99/tomeglot/internal/engine"
	"github.com/MrWong99/tomeglot/pkg/tagpreserve"
	"github.com/MrWong99/tomeglot/pkg/textseg"
)

// Rolling-context limits for the shared block accumulator.
const (
	contextBlocks   = 10
	contextMinLines = 10
	contextMinWords = 300
	contextMaxLines = 20
)

// Processor translates EPUB archives.
type Processor struct {
	Engine *engine.Engine

	// MainLines is the sub-chunk target size. Zero means the default.
	MainLines int

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// xmlDeclRe strips the XML declaration before the lenient HTML parse; it is
// re-emitted on serialization.
var xmlDeclRe = regexp.MustCompile(`^\s*<\?xml[^?]*\?>\s*`)

// Translate translates every spine document of the EPUB in src and returns
// the repackaged archive. On cancellation the jobs translated so far are
// spliced in and the partial archive is returned with the context error.
func (p *Processor) Translate(ctx context.Context, src []byte, hooks engine.Hooks) ([]byte, engine.Stats, error) {
	var stats engine.Stats

	a, err := readArchive(src)
	if err != nil {
		return nil, stats, err
	}
	opfPath, err := a.findOPF()
	if err != nil {
		return nil, stats, err
	}
	docPaths, err := a.spineDocuments(opfPath)
	if err != nil {
		return nil, stats, err
	}

	mainLines := p.MainLines
	if mainLines <= 0 {
		mainLines = textseg.DefaultMainLines
	}

	// Phase 1: parse spine documents and collect translation jobs.
	var (
		jobs []*job
		docs = make(map[string]*html.Node)
	)
	for i, file := range docPaths {
		if hooks.Progress != nil {
			hooks.Progress(float64(i) / float64(len(docPaths)) * 10)
		}
		content, ok := a.files[file]
		if !ok {
			p.logger().Warn("spine document missing from archive, skipped", "file", file)
			continue
		}
		doc, err := html.Parse(bytes.NewReader(xmlDeclRe.ReplaceAll(content, nil)))
		if err != nil {
			p.logger().Warn("spine document failed to parse, skipped", "file", file, "err", err)
			continue
		}
		docs[file] = doc
		if body := findBody(doc); body != nil {
			collectJobs(body, file, mainLines, &jobs)
		}
	}

	if len(jobs) == 0 {
		p.logger().Info("no translatable segments found")
		if hooks.Progress != nil {
			hooks.Progress(100)
		}
		return src, stats, nil
	}
	p.logger().Info("translatable segments collected", "segments", len(jobs), "documents", len(docs))
	stats.Total = len(jobs)

	// Phase 2: translate jobs in document order with a context window that
	// rolls across block boundaries.
	var (
		recent []string
		ctxErr error
	)
	for i, j := range jobs {
		if err := hooks.Cancelled(ctx); err != nil {
			p.logger().Warn("translation interrupted, splicing partial result",
				"done", i, "total", len(jobs))
			ctxErr = err
			break
		}
		if hooks.Progress != nil {
			hooks.Progress(10 + float64(i+1)/float64(len(jobs))*90)
		}

		parts, _, err := p.Engine.TranslateChunksFrom(ctx, j.chunks, contextTail(recent), engine.Hooks{Interrupted: hooks.Interrupted})
		if err != nil {
			ctxErr = err
			break
		}
		translated := strings.Join(parts, "\n")

		if len(j.tags) > 0 {
			translated, err = p.checkPlaceholders(translated, j, i)
			if err != nil {
				p.logger().Warn("segment declined, keeping error marker", "segment", i+1, "err", err)
				j.translated = engine.ErrorPlaceholder(i+1, tagpreserve.Restore(j.payload, j.tags))
				j.done = true
				stats.Failed++
				emitStats(hooks, stats)
				continue
			}
		}

		j.translated = translated
		j.done = true
		if strings.Contains(translated, "[TRANSLATION_ERROR") {
			stats.Failed++
		} else {
			stats.Completed++
			recent = append(recent, translated)
			if len(recent) > contextBlocks {
				recent = recent[len(recent)-contextBlocks:]
			}
		}
		emitStats(hooks, stats)
	}

	// Phase 3: splice translations back and repackage.
	modified := make(map[string]bool)
	for _, j := range jobs {
		if !j.done {
			continue
		}
		p.splice(j)
		modified[j.file] = true
	}

	for file := range modified {
		var buf bytes.Buffer
		buf.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
		if err := html.Render(&buf, docs[file]); err != nil {
			return nil, stats, fmt.Errorf("epub: serialize %q: %w", file, err)
		}
		a.files[file] = buf.Bytes()
	}
	a.setLanguage(opfPath, p.Engine.Prompts().Target)

	out, err := a.write()
	if err != nil {
		return nil, stats, err
	}
	if hooks.Progress != nil && ctxErr == nil {
		hooks.Progress(100)
	}
	return out, stats, ctxErr
}

// checkPlaceholders verifies a block translation kept every markup
// placeholder, repairing mutated forms first.
func (p *Processor) checkPlaceholders(translated string, j *job, jobIdx int) (string, error) {
	report := tagpreserve.Validate(translated, j.tags)
	if len(report.Mutated) > 0 {
		translated = tagpreserve.FixMutations(translated, j.tags)
		report = tagpreserve.Validate(translated, j.tags)
	}
	if !report.OK() {
		return "", fmt.Errorf("epub: segment %d lost %d markup placeholder(s)", jobIdx+1, len(report.Missing))
	}
	return translated, nil
}

// splice writes a finished job back into its document tree.
func (p *Processor) splice(j *job) {
	switch j.kind {
	case blockJob:
		restored := tagpreserve.Restore(j.translated, j.tags)
		for j.node.FirstChild != nil {
			j.node.RemoveChild(j.node.FirstChild)
		}
		nodes, err := html.ParseFragment(strings.NewReader(restored), &html.Node{
			Type:     html.ElementNode,
			Data:     "div",
			DataAtom: atom.Div,
		})
		if err != nil {
			// Never lose the translation: fall back to plain text.
			j.node.AppendChild(&html.Node{Type: html.TextNode, Data: restored})
			return
		}
		for _, n := range nodes {
			n.Parent, n.PrevSibling, n.NextSibling = nil, nil, nil
			j.node.AppendChild(n)
		}
	case textJob, tailJob:
		j.node.Data = j.leading + html.UnescapeString(j.translated) + j.trailing
	}
}

// contextTail builds the rolling context from recent block translations: the
// tail of the accumulator covering at least 10 lines or 300 words, capped at
// 20 lines.
func contextTail(blocks []string) string {
	if len(blocks) == 0 {
		return ""
	}
	all := strings.Split(strings.Join(blocks, "\n"), "\n")
	var (
		out   []string
		words int
	)
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		words += len(strings.Fields(all[i]))
		if len(out) >= contextMaxLines {
			break
		}
		if len(out) >= contextMinLines || words >= contextMinWords {
			break
		}
	}
	// Reverse back into document order.
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return strings.Join(out, "\n")
}

func emitStats(hooks engine.Hooks, s engine.Stats) {
	if hooks.Stats != nil {
		hooks.Stats(s)
	}
}
