// Package postproc cleans translated text before it is written back into a
// document.
//
// Cleaning is organised as an ordered pipeline of named rules. The default
// pipeline unescapes stray HTML entities and normalises whitespace — the two
// artefacts language models introduce most reliably. A separate residual-tag
// rule strips leftover placeholder fragments; it is destructive to legitimate
// placeholders and therefore never part of the default pipeline, only applied
// explicitly as a final step before output is saved.
package postproc

import (
	"regexp"
	"strings"
)

// Rule is one named cleaning step.
type Rule struct {
	// Name identifies the rule for Add/Remove and diagnostics.
	Name string

	// Description says what the rule does, for operator-facing listings.
	Description string

	// Apply transforms the text.
	Apply func(string) string
}

// Pipeline applies its rules in order. The zero value is an empty pipeline;
// use [NewPipeline] for the defaults. Pipeline is not safe for concurrent
// mutation; configure it once, then share.
type Pipeline struct {
	rules []Rule
}

// NewPipeline returns the default cleaning pipeline: HTML entity cleanup
// followed by whitespace normalisation.
func NewPipeline() *Pipeline {
	p := &Pipeline{}
	p.Add(HTMLEntityRule())
	p.Add(WhitespaceRule())
	return p
}

// Add appends a rule to the pipeline.
func (p *Pipeline) Add(r Rule) {
	p.rules = append(p.rules, r)
}

// Remove deletes every rule with the given name. It reports whether any rule
// was removed.
func (p *Pipeline) Remove(name string) bool {
	kept := p.rules[:0]
	removed := false
	for _, r := range p.rules {
		if r.Name == name {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	p.rules = kept
	return removed
}

// Rules returns the active rules in application order.
func (p *Pipeline) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	copy(out, p.rules)
	return out
}

// Process runs the full pipeline over text. Empty input passes through.
func (p *Pipeline) Process(text string) string {
	if text == "" {
		return text
	}
	for _, r := range p.rules {
		text = r.Apply(text)
	}
	return text
}

// Clean applies the default pipeline. Convenience for callers that never
// customise rules.
func Clean(text string) string {
	return NewPipeline().Process(text)
}

var (
	nbspRunRe         = regexp.MustCompile(`(&nbsp;)+`)
	multiSpaceRe      = regexp.MustCompile(` +`)
	spaceBeforePunct  = regexp.MustCompile(` +([.,!?;:])`)
	tripleNewlineRe   = regexp.MustCompile(`\n\s*\n\s*\n`)
	residualTagRe     = regexp.MustCompile(`⟦TAG\d+⟧`)
	residualBracketed = regexp.MustCompile(`\[\[TAG\d+\]\]`)
	residualBareRe    = regexp.MustCompile(`TAG\d+`)
	orphanSquareRe    = regexp.MustCompile(`\[\[|\]\]`)
	orphanSpecialRe   = regexp.MustCompile(`⟦|⟧`)
)

// entityReplacements maps the HTML entities that commonly leak into model
// output to their literal characters.
var entityReplacements = []struct{ entity, literal string }{
	{"&amp;", "&"},
	{"&lt;", "<"},
	{"&gt;", ">"},
	{"&quot;", `"`},
	{"&#39;", "'"},
	{"&apos;", "'"},
	{"&mdash;", "—"},
	{"&ndash;", "–"},
	{"&hellip;", "…"},
}

// HTMLEntityRule replaces leaked HTML entities with their literal characters.
// Runs of &nbsp; become the same number of non-breaking spaces.
func HTMLEntityRule() Rule {
	return Rule{
		Name:        "html-entities",
		Description: "Replace leaked HTML entities with literal characters",
		Apply: func(text string) string {
			text = nbspRunRe.ReplaceAllStringFunc(text, func(m string) string {
				return strings.Repeat("\u00a0", len(m)/len("&nbsp;"))
			})
			for _, r := range entityReplacements {
				text = strings.ReplaceAll(text, r.entity, r.literal)
			}
			return text
		},
	}
}

// WhitespaceRule collapses space runs, strips spaces before punctuation,
// limits blank-line runs to one, and trims the result.
func WhitespaceRule() Rule {
	return Rule{
		Name:        "whitespace",
		Description: "Normalise spaces, punctuation spacing and blank lines",
		Apply: func(text string) string {
			text = multiSpaceRe.ReplaceAllString(text, " ")
			text = spaceBeforePunct.ReplaceAllString(text, "$1")
			text = tripleNewlineRe.ReplaceAllString(text, "\n\n")
			return strings.TrimSpace(text)
		},
	}
}

// ResidualTagRule strips leftover placeholder fragments: intact or mangled
// ⟦TAGn⟧ forms and orphaned brackets. Only safe once placeholder restoration
// is complete.
func ResidualTagRule() Rule {
	return Rule{
		Name:        "residual-tags",
		Description: "Strip leftover placeholder fragments and orphaned brackets",
		Apply:       CleanResidualTags,
	}
}

// CleanResidualTags removes every placeholder remnant from text. Used as the
// final step before document output is saved.
func CleanResidualTags(text string) string {
	text = residualTagRe.ReplaceAllString(text, "")
	text = residualBracketed.ReplaceAllString(text, "")
	text = residualBareRe.ReplaceAllString(text, "")
	text = orphanSquareRe.ReplaceAllString(text, "")
	text = orphanSpecialRe.ReplaceAllString(text, "")
	return text
}
