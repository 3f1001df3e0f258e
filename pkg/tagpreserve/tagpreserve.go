// Package tagpreserve protects inline markup from the language model.
//
// Before a fragment of XHTML is sent for translation, every tag is swapped
// for an opaque placeholder of the form ⟦TAGn⟧ (white square brackets,
// U+27E6/U+27E7 — characters no model output or document text plausibly
// contains). After translation the placeholders are swapped back, restoring
// the exact original markup around the translated text.
//
// Models occasionally mangle placeholders into near-forms like [[TAG3]] or
// <TAG3>. Validate detects both missing and mutated placeholders, and
// FixMutations rewrites the recoverable near-forms back to canonical shape.
package tagpreserve

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Placeholder delimiters. The white square brackets survive every tokenizer
// we have tested without being merged into neighbouring text.
const (
	placeholderOpen  = "⟦" // ⟦
	placeholderClose = "⟧" // ⟧
)

// tagRe matches a single markup tag: opening, closing, or self-closing.
var tagRe = regexp.MustCompile(`<[^>]+>`)

// bracketedMutationRes lists the bracketed near-forms models produce when
// they mangle a placeholder, most specific first so e.g. [[TAG3]] is not
// half-matched as [TAG3].
var bracketedMutationRes = []*regexp.Regexp{
	regexp.MustCompile(`\[\[TAG(\d+)\]\]`),
	regexp.MustCompile(`\[TAG(\d+)\]`),
	regexp.MustCompile(`\{TAG(\d+)\}`),
	regexp.MustCompile(`<TAG(\d+)>`),
}

// bareMutationRe matches a placeholder stripped of its brackets entirely.
// Handled separately from the bracketed forms because the same characters
// occur inside every canonical placeholder and must not match there.
var bareMutationRe = regexp.MustCompile(`\bTAG(\d+)\b`)

// Placeholder returns the canonical placeholder string for index n.
func Placeholder(n int) string {
	return fmt.Sprintf("%sTAG%d%s", placeholderOpen, n, placeholderClose)
}

// Preserve replaces every markup tag in fragment with a placeholder and
// returns the protected text together with the placeholder→tag mapping.
// Indices are dense, starting at 0, in document order.
func Preserve(fragment string) (string, map[int]string) {
	tags := make(map[int]string)
	n := 0
	text := tagRe.ReplaceAllStringFunc(fragment, func(tag string) string {
		ph := Placeholder(n)
		tags[n] = tag
		n++
		return ph
	})
	return text, tags
}

// Restore substitutes the original tags back into text. Replacement runs in
// descending index order so that e.g. ⟦TAG1⟧ is never consumed as a prefix
// match while ⟦TAG10⟧ is still outstanding.
func Restore(text string, tags map[int]string) string {
	indices := make([]int, 0, len(tags))
	for n := range tags {
		indices = append(indices, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))

	for _, n := range indices {
		text = strings.ReplaceAll(text, Placeholder(n), tags[n])
	}
	return text
}

// Report is the outcome of validating a translated text against the
// placeholder mapping it was produced from.
type Report struct {
	// Missing lists indices whose canonical placeholder does not appear in
	// the text at all — not even as a recognised mutation.
	Missing []int

	// Mutated lists indices found only in a mangled near-form. These are
	// recoverable via FixMutations.
	Mutated []int
}

// OK reports whether every placeholder survived in canonical form.
func (r Report) OK() bool {
	return len(r.Missing) == 0 && len(r.Mutated) == 0
}

// Validate checks that every placeholder in tags appears in text. Indices
// absent in canonical form but present as a known near-form are reported as
// mutated; indices absent in every form are reported as missing.
func Validate(text string, tags map[int]string) Report {
	mutated := mutatedIndices(text)

	var r Report
	indices := make([]int, 0, len(tags))
	for n := range tags {
		indices = append(indices, n)
	}
	sort.Ints(indices)

	for _, n := range indices {
		if strings.Contains(text, Placeholder(n)) {
			continue
		}
		if mutated[n] {
			r.Mutated = append(r.Mutated, n)
		} else {
			r.Missing = append(r.Missing, n)
		}
	}
	return r
}

// FixMutations rewrites every recognised placeholder near-form in text back
// to the canonical ⟦TAGn⟧ shape, for indices present in tags. Near-forms
// whose index has no mapping entry are left untouched — they may be
// legitimate document text.
func FixMutations(text string, tags map[int]string) string {
	for _, re := range bracketedMutationRes {
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			n, ok := parseIndex(re, m)
			if !ok {
				return m
			}
			if _, known := tags[n]; !known {
				return m
			}
			return Placeholder(n)
		})
	}

	// Bare TAGn, skipping occurrences already inside a canonical placeholder.
	var b strings.Builder
	last := 0
	for _, loc := range bareMutationRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		n, ok := parseIndex(bareMutationRe, text[start:end])
		if !ok {
			continue
		}
		if _, known := tags[n]; !known || insidePlaceholder(text, start, end) {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(Placeholder(n))
		last = end
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// mutatedIndices scans text for placeholder near-forms and returns the set of
// indices seen in any mangled shape.
func mutatedIndices(text string) map[int]bool {
	seen := make(map[int]bool)
	for _, re := range bracketedMutationRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if n, ok := parseIndex(re, m[0]); ok {
				seen[n] = true
			}
		}
	}
	for _, loc := range bareMutationRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		if insidePlaceholder(text, start, end) {
			continue
		}
		if n, ok := parseIndex(bareMutationRe, text[start:end]); ok {
			seen[n] = true
		}
	}
	return seen
}

// parseIndex extracts the numeric capture group of a near-form match.
func parseIndex(re *regexp.Regexp, match string) (int, bool) {
	sub := re.FindStringSubmatch(match)
	if sub == nil {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(sub[1], "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

// insidePlaceholder reports whether text[start:end] is directly wrapped in
// the canonical placeholder brackets.
func insidePlaceholder(text string, start, end int) bool {
	return strings.HasSuffix(text[:start], placeholderOpen) &&
		strings.HasPrefix(text[end:], placeholderClose)
}
