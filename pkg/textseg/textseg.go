// Package textseg segments document text into translation chunks.
//
// Long-form text cannot be sent to a language model in one request, and
// cutting it at arbitrary line counts produces chunks that start or stop in
// the middle of a sentence — which reliably degrades translation quality.
// This package refines raw text into sentence-shaped lines and then cuts
// sentence-aligned windows with surrounding context:
//
//  1. De-hyphenate words broken across line endings.
//  2. Split on newlines, then split each line after sentence terminators.
//  3. Walk the refined lines cutting main windows of roughly n lines,
//     nudging both edges onto sentence boundaries, and attach a few lines
//     of preceding and following context to each window.
//
// Whitespace-only lines are preserved verbatim so paragraph structure
// survives reassembly.
package textseg

import (
	"regexp"
	"strings"
)

// DefaultMainLines is the target number of refined lines per chunk.
const DefaultMainLines = 25

// Terminators are the sentence-ending suffixes recognised by the splitter.
// Quote-wrapped variants come first: the alternation must try the longest
// forms before the bare punctuation they contain.
var Terminators = []string{
	`."`, `?"`, `!"`, `.'`, `?'`, `!'`, `.)`,
	`.`, `!`, `?`, `:`,
}

// terminatorRe is the alternation of all terminators, longest first.
var terminatorRe = regexp.MustCompile(buildTerminatorPattern())

func buildTerminatorPattern() string {
	parts := make([]string, len(Terminators))
	for i, t := range Terminators {
		parts[i] = regexp.QuoteMeta(t)
	}
	return strings.Join(parts, "|")
}

// EndsWithTerminator reports whether the stripped line ends a sentence.
func EndsWithTerminator(line string) bool {
	s := strings.TrimSpace(line)
	if s == "" {
		return false
	}
	for _, t := range Terminators {
		if strings.HasSuffix(s, t) {
			return true
		}
	}
	return false
}

// hyphenBreakRe matches a word split across a line ending: letter or digit,
// hyphen, newline, optional indentation, letter or digit.
var hyphenBreakRe = regexp.MustCompile(`([\p{L}\d])-(?:\r\n|\r|\n)\s*([\p{L}\d])`)

// Dehyphenate rejoins words that were hyphenated across line endings, a
// common artefact of scanned or justified sources.
func Dehyphenate(text string) string {
	return hyphenBreakRe.ReplaceAllString(text, "$1$2")
}

// RefineLines splits text into sentence-shaped lines: first on newlines,
// then each line after every sentence terminator. Segments keep their
// terminator; whitespace-only lines pass through verbatim.
func RefineLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\r", "\n"), "\n")
	var refined []string
	for _, line := range raw {
		if strings.TrimSpace(line) == "" {
			refined = append(refined, line)
			continue
		}

		var segments []string
		last := 0
		for _, loc := range terminatorRe.FindAllStringIndex(line, -1) {
			segment := line[last:loc[1]]
			if strings.TrimSpace(segment) != "" {
				segments = append(segments, segment)
			}
			last = loc[1]
		}
		if rest := line[last:]; strings.TrimSpace(rest) != "" {
			segments = append(segments, rest)
		}

		if len(segments) == 0 {
			refined = append(refined, line)
		} else {
			refined = append(refined, segments...)
		}
	}
	return refined
}

// Chunk is one translation unit: the main content to translate plus the
// surrounding context shown to the model but never translated.
type Chunk struct {
	// ContextBefore is the text immediately preceding Main, or "".
	ContextBefore string

	// Main is the content the model is asked to translate.
	Main string

	// ContextAfter is the text immediately following Main, or "".
	ContextAfter string
}

// Chunks runs the whole segmentation pipeline on text: de-hyphenation, line
// refinement, then sentence-aligned windowing with context. mainLines below 1
// falls back to [DefaultMainLines]. Non-empty input always yields at least
// one chunk unless the text is pure whitespace.
func Chunks(text string, mainLines int) []Chunk {
	if mainLines < 1 {
		mainLines = DefaultMainLines
	}
	lines := RefineLines(Dehyphenate(text))
	return chunkLines(lines, mainLines)
}

func chunkLines(all []string, target int) []Chunk {
	if len(all) == 0 {
		return nil
	}

	lookBackMain := max(1, target/4)
	lookForwardMain := max(1, target/4)
	lookBackContext := max(1, target/8)
	lookForwardContext := max(1, target/8)
	contextLines := target / 4

	var chunks []Chunk
	pos := 0
	for pos < len(all) {
		initialStart := pos
		initialEnd := min(pos+target, len(all))

		start := adjustedStart(all, initialStart, lookBackMain)
		end := adjustedEnd(all, initialEnd, lookForwardMain)

		// Boundary adjustment can cross over on terminator-free stretches;
		// fall back to the unadjusted window.
		if start > end {
			start, end = initialStart, initialEnd
		}
		if end <= start {
			if initialStart >= len(all) {
				break
			}
			start = initialStart
			if initialEnd > initialStart {
				end = initialEnd
			} else {
				end = len(all)
			}
		}

		main := all[start:end]
		if len(main) == 0 {
			if start < len(all) {
				pos = start + 1
				continue
			}
			break
		}

		// A window of pure whitespace carries nothing to translate; skip it
		// but keep the cursor moving.
		if strings.TrimSpace(strings.Join(main, "")) == "" {
			pos = end
			if pos <= initialStart {
				pos = initialStart + 1
			}
			continue
		}

		before := contextBefore(all, start, contextLines, lookBackContext)
		after := contextAfter(all, end, contextLines, lookForwardContext)

		chunks = append(chunks, Chunk{
			ContextBefore: strings.Join(before, "\n"),
			Main:          strings.Join(main, "\n"),
			ContextAfter:  strings.Join(after, "\n"),
		})

		pos = end
		if pos <= initialStart {
			pos = initialStart + 1
		}
	}
	return chunks
}

func contextBefore(all []string, mainStart, contextLines, lookBack int) []string {
	intendedStart := max(0, mainStart-contextLines)
	start := adjustedStart(all, intendedStart, lookBack)
	if start < mainStart {
		return all[start:mainStart]
	}
	return nil
}

func contextAfter(all []string, mainEnd, contextLines, lookForward int) []string {
	intendedEnd := min(len(all), mainEnd+contextLines)
	end := adjustedEnd(all, intendedEnd, lookForward)
	if mainEnd < end {
		return all[mainEnd:end]
	}
	return nil
}

// adjustedStart nudges an intended start index backwards onto the line after
// the nearest sentence end, scanning at most lookBack lines. When no boundary
// is found and the intended start is within lookBack of the top, the window
// starts at the very beginning.
func adjustedStart(all []string, intended, lookBack int) int {
	if intended == 0 {
		return 0
	}
	for i := intended - 1; i >= 0 && i >= intended-lookBack; i-- {
		if EndsWithTerminator(all[i]) {
			return i + 1
		}
	}
	if intended <= lookBack {
		return 0
	}
	return intended
}

// adjustedEnd nudges an intended end index forwards onto the line after the
// nearest sentence end, scanning at most lookForward lines from just before
// the intended end. When the remaining tail is within lookForward lines, the
// window swallows it whole.
func adjustedEnd(all []string, intended, lookForward int) int {
	if intended >= len(all) {
		return len(all)
	}
	searchStart := max(0, intended-1)
	for i := searchStart; i < min(len(all), searchStart+lookForward); i++ {
		if EndsWithTerminator(all[i]) {
			return i + 1
		}
	}
	if intended+lookForward >= len(all) {
		return len(all)
	}
	return intended
}
