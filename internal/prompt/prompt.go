// Package prompt assembles the prompts sent to the translation model.
//
// Every prompt is built from stripped sections joined by blank lines; empty
// sections are omitted. The section wording is deliberately imperative and
// redundant — smaller local models follow the marker protocol far more
// reliably when the formatting rules are stated twice in different words.
package prompt

import (
	"fmt"
	"strings"

	"github.com/MrWong99/tomeglot/pkg/provider/llm"
)

// Builder produces prompts for one translation run. The zero value is not
// usable; construct with language names (free-form, e.g. "English",
// "Brazilian Portuguese").
type Builder struct {
	// Source is the language translated from.
	Source string

	// Target is the language translated into.
	Target string

	// Instructions are optional user-supplied directives appended to every
	// translation prompt under an INSTRUCTIONS heading.
	Instructions string
}

// Translation builds the chunk translation prompt. main is the text to
// translate; prevTranslation is the rolling tail of the previous chunk's
// translation shown to the model for continuity, or "".
func (b Builder) Translation(main, prevTranslation string) string {
	role := fmt.Sprintf(`## ROLE
# You are a %s writer.

## TRANSLATION
+ Translate in the author's style
+ Preserve meaning and enhance fluidity
+ Adapt expressions and culture to the %s language
+ Maintain the original layout of the text

## FORMATING
+ Translate ONLY the text enclosed within the tags "%s" and "%s" from %s into %s
+ Surround your translation with %s and %s tags. For example: %sYour text translated here.%s
+ Return ONLY the translation, formatted as requested`,
		b.Target, b.Target,
		llm.InputMarkerOpen, llm.InputMarkerClose, strings.ToUpper(b.Source), b.Target,
		llm.OutputMarkerOpen, llm.OutputMarkerClose, llm.OutputMarkerOpen, llm.OutputMarkerClose)

	return join(
		role,
		instructionsSection(b.Instructions),
		previousSection(prevTranslation),
		payloadSection(main),
	)
}

// PostProcessing builds the second-round prompt that asks the model to polish
// an existing translation without changing its meaning or structure. extra is
// appended to the builder's instructions (used for the CRITICAL retry).
func (b Builder) PostProcessing(translated, extra string) string {
	role := fmt.Sprintf(`## ROLE
# You are a %s copy editor.

## REVIEW
+ Improve fluidity and naturalness of the %s text
+ Fix grammar, agreement and punctuation mistakes
+ Do NOT change the meaning, add content, or remove content
+ Keep the original layout, line breaks and any ⟦TAGn⟧ placeholders untouched

## FORMATING
+ Rework ONLY the text enclosed within the tags "%s" and "%s"
+ Surround your reviewed text with %s and %s tags
+ Return ONLY the reviewed text, formatted as requested`,
		b.Target, b.Target,
		llm.InputMarkerOpen, llm.InputMarkerClose,
		llm.OutputMarkerOpen, llm.OutputMarkerClose)

	return join(
		role,
		instructionsSection(extra),
		payloadSection(translated),
	)
}

// SubtitleEntry is one labelled subtitle line inside a block prompt.
type SubtitleEntry struct {
	// Index is the zero-based subtitle index used as the [n] label.
	Index int

	// Text is the subtitle text, possibly spanning multiple lines.
	Text string
}

// SubtitleBlock builds the prompt for a block of subtitles. Each subtitle is
// labelled with its [index] tag; the model must keep every tag in its output
// so the block can be split apart again. prevBlock is the previous block's
// translation, or ""; extra is appended to the builder's instructions.
func (b Builder) SubtitleBlock(entries []SubtitleEntry, prevBlock, extra string) string {
	role := fmt.Sprintf(`## ROLE
# You are a %s subtitler.

## TRANSLATION
+ Translate each subtitle from %s into %s
+ Keep subtitles short and natural for on-screen reading
+ Preserve the tone and register of the dialogue

## FORMATING
+ Each subtitle is prefixed with an index tag like [0], [1], [2]
+ Keep EVERY index tag exactly as it appears, each at the start of its translated subtitle
+ Translate ONLY the text enclosed within the tags "%s" and "%s"
+ Surround your translation with %s and %s tags
+ Return ONLY the translation, formatted as requested`,
		b.Target, strings.ToUpper(b.Source), b.Target,
		llm.InputMarkerOpen, llm.InputMarkerClose,
		llm.OutputMarkerOpen, llm.OutputMarkerClose)

	var payload strings.Builder
	for i, e := range entries {
		if i > 0 {
			payload.WriteString("\n")
		}
		fmt.Fprintf(&payload, "[%d]%s", e.Index, e.Text)
	}

	instructions := b.Instructions
	if extra != "" {
		instructions = strings.TrimSpace(instructions + "\n\n" + extra)
	}

	return join(
		role,
		instructionsSection(instructions),
		previousSection(prevBlock),
		payloadSection(payload.String()),
	)
}

// PlaceholderCritical is the escalation appended to a retry prompt when a
// response dropped ⟦TAGn⟧ placeholders.
func PlaceholderCritical(missing []string) string {
	return "CRITICAL: You MUST preserve ALL placeholder tags EXACTLY as they appear. " +
		"Tags like ⟦TAG0⟧, ⟦TAG1⟧, etc. must remain COMPLETELY UNCHANGED. " +
		"Missing tags that MUST be preserved: " + strings.Join(missing, ", ")
}

// SubtitleCritical is the escalation appended to a retry prompt when a
// subtitle block response dropped [n] index tags.
func SubtitleCritical(missing []string) string {
	return "CRITICAL: You MUST preserve ALL [NUMBER] tags EXACTLY as they appear. " +
		"Missing tags: " + strings.Join(missing, ", ")
}

func instructionsSection(instructions string) string {
	if strings.TrimSpace(instructions) == "" {
		return ""
	}
	return "### INSTRUCTIONS\n" + strings.TrimSpace(instructions)
}

func previousSection(prev string) string {
	if strings.TrimSpace(prev) == "" {
		return ""
	}
	return "## Previous paragraph :\n(...) " + prev
}

func payloadSection(main string) string {
	return llm.InputMarkerOpen + "\n" + main + "\n" + llm.InputMarkerClose
}

// join strips each section and joins the non-empty ones with blank lines.
func join(sections ...string) string {
	var kept []string
	for _, s := range sections {
		s = strings.TrimSpace(s)
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n")
}
