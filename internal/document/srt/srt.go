// Package srt parses, translates and reconstructs SubRip subtitle files.
//
// Subtitles are translated in blocks of a few entries each: the block shares
// one prompt, which gives the model enough dialogue context to keep tone and
// pronouns consistent, while [index] labels let the individual entries be
// recovered from the block translation afterwards.
package srt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Block limits applied by Group when the caller passes zero values.
const (
	DefaultBlockSubtitles = 5
	DefaultBlockChars     = 500
)

// Subtitle is one parsed SRT entry. Start and End keep the source formatting
// (HH:MM:SS,mmm) verbatim.
type Subtitle struct {
	Sequence int
	Start    string
	End      string
	Text     string
}

var timingRe = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2},\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2},\d{3})`)

// Parse reads SRT content into subtitle entries. Malformed blocks (missing
// sequence number, bad timing line, no text) are skipped, not fatal —
// subtitle files in the wild are rarely pristine.
func Parse(content string) []Subtitle {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	var subs []Subtitle
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if len(lines) < 3 {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil || seq <= 0 {
			continue
		}
		m := timingRe.FindStringSubmatch(lines[1])
		if m == nil {
			continue
		}
		subs = append(subs, Subtitle{
			Sequence: seq,
			Start:    m[1],
			End:      m[2],
			Text:     strings.Join(lines[2:], "\n"),
		})
	}
	return subs
}

// Reconstruct renders subtitles back into SRT format: sequence, timing line
// and text per entry, entries separated by blank lines.
func Reconstruct(subs []Subtitle) string {
	blocks := make([]string, len(subs))
	for i, s := range subs {
		blocks[i] = fmt.Sprintf("%d\n%s --> %s\n%s\n", s.Sequence, s.Start, s.End, s.Text)
	}
	return strings.Join(blocks, "\n")
}

// Group partitions subtitles into translation blocks of at most maxSubs
// entries and maxChars total text length. Whitespace-only subtitles join the
// current block without consuming its budget. Zero limits mean the defaults.
func Group(subs []Subtitle, maxSubs, maxChars int) [][]Subtitle {
	if maxSubs <= 0 {
		maxSubs = DefaultBlockSubtitles
	}
	if maxChars <= 0 {
		maxChars = DefaultBlockChars
	}

	var (
		blocks  [][]Subtitle
		current []Subtitle
		count   int
		chars   int
	)
	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, current)
			current, count, chars = nil, 0, 0
		}
	}

	for _, s := range subs {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			current = append(current, s)
			continue
		}
		if count+1 > maxSubs || chars+len(text) > maxChars {
			flush()
		}
		current = append(current, s)
		count++
		chars += len(text)
	}
	flush()
	return blocks
}

var indexTagRe = regexp.MustCompile(`\[(\d+)\]`)
var embeddedTagRe = regexp.MustCompile(`([^\n])(\[\d+\])`)

// IndexTag renders a subtitle index label as it appears in block prompts.
func IndexTag(index int) string {
	return fmt.Sprintf("[%d]", index)
}

// FoundTags returns the set of [index] labels present in text.
func FoundTags(text string) map[int]bool {
	found := make(map[int]bool)
	for _, m := range indexTagRe.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			found[n] = true
		}
	}
	return found
}

// MissingTags returns the expected indices whose labels are absent from text,
// in ascending order.
func MissingTags(text string, expected []int) []int {
	found := FoundTags(text)
	var missing []int
	for _, idx := range expected {
		if !found[idx] {
			missing = append(missing, idx)
		}
	}
	return missing
}

// ExtractBlock splits a block translation back into per-index texts. Models
// sometimes run several entries onto one line, so a newline is inserted
// before any label that is not at a line start. Lines before the first label
// are dropped; indices outside expected are ignored.
func ExtractBlock(text string, expected []int) map[int]string {
	want := make(map[int]bool, len(expected))
	for _, idx := range expected {
		want[idx] = true
	}

	text = embeddedTagRe.ReplaceAllString(text, "$1\n$2")

	out := make(map[int]string)
	currentIdx := -1
	var currentLines []string
	commit := func() {
		if currentIdx >= 0 && want[currentIdx] {
			out[currentIdx] = strings.TrimSpace(strings.Join(currentLines, "\n"))
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := indexTagRe.FindStringIndex(trimmed); m != nil && m[0] == 0 {
			idx, _ := strconv.Atoi(trimmed[m[0]+1 : m[1]-1])
			commit()
			currentIdx = idx
			currentLines = []string{strings.TrimSpace(trimmed[m[1]:])}
			continue
		}
		if currentIdx >= 0 {
			currentLines = append(currentLines, line)
		}
	}
	commit()
	return out
}
