package epub

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/MrWong99/tomeglot/pkg/tagpreserve"
	"github.com/MrWong99/tomeglot/pkg/textseg"
)

type jobKind int

const (
	// blockJob carries the full inline content of a paragraph-like element.
	blockJob jobKind = iota
	// textJob carries a bare text node preceding any sibling element.
	textJob
	// tailJob carries a bare text node following an element.
	tailJob
)

// job is one translatable unit found in a spine document.
type job struct {
	kind jobKind
	file string

	// node is the host element for blockJob, the text node itself otherwise.
	node *html.Node

	// payload is the stripped text sent to translation; for blockJob it
	// carries ⟦TAGn⟧ placeholders and tags maps them back to markup.
	payload string
	tags    map[int]string

	// leading and trailing whitespace restored around text/tail payloads.
	leading  string
	trailing string

	chunks []textseg.Chunk

	translated string
	done       bool
}

// collectJobs walks a document body and appends one job per translatable
// unit, in document order.
func collectJobs(body *html.Node, file string, mainLines int, jobs *[]*job) {
	walkNode(body, file, mainLines, jobs)
}

func walkNode(n *html.Node, file string, mainLines int, jobs *[]*job) {
	if n.Type == html.ElementNode && ignoredTags[n.Data] {
		return
	}

	if n.Type == html.ElementNode && blockTags[n.Data] && !hasBlockDescendant(n) {
		content := strings.TrimSpace(serializeInline(n))
		if content == "" {
			return
		}
		payload, tags := tagpreserve.Preserve(content)
		*jobs = append(*jobs, &job{
			kind:    blockJob,
			file:    file,
			node:    n,
			payload: payload,
			tags:    tags,
			chunks:  subChunks(payload, mainLines),
		})
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			stripped := strings.TrimSpace(c.Data)
			if stripped == "" {
				continue
			}
			kind := textJob
			if prev := c.PrevSibling; prev != nil && prev.Type == html.ElementNode {
				kind = tailJob
			}
			leading := c.Data[:len(c.Data)-len(strings.TrimLeft(c.Data, " \t\r\n"))]
			trailing := c.Data[len(strings.TrimRight(c.Data, " \t\r\n")):]
			*jobs = append(*jobs, &job{
				kind:     kind,
				file:     file,
				node:     c,
				payload:  stripped,
				leading:  leading,
				trailing: trailing,
				chunks:   subChunks(stripped, mainLines),
			})
		case html.ElementNode:
			walkNode(c, file, mainLines, jobs)
		}
	}
}

// subChunks splits a payload for translation; a payload the chunker cannot
// split still becomes one chunk so nothing is silently dropped.
func subChunks(payload string, mainLines int) []textseg.Chunk {
	chunks := textseg.Chunks(payload, mainLines)
	if len(chunks) == 0 {
		chunks = []textseg.Chunk{{Main: payload}}
	}
	return chunks
}

func hasBlockDescendant(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if blockTags[c.Data] || hasBlockDescendant(c) {
			return true
		}
	}
	return false
}

// voidTags never carry children and serialize self-closed.
var voidTags = map[string]bool{
	"img": true, "hr": true, "wbr": true, "input": true, "source": true,
}

// serializeInline renders the children of an element back to markup,
// preserving inline tags and attributes. <br> flattens to a newline;
// consecutive flattenings do not accumulate.
func serializeInline(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderInline(&b, c)
	}
	return b.String()
}

func renderInline(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode:
		if ignoredTags[n.Data] {
			return
		}
		if n.Data == "br" {
			if s := b.String(); s != "" && !strings.HasSuffix(s, "\n") {
				b.WriteByte('\n')
			}
			return
		}
		b.WriteByte('<')
		b.WriteString(n.Data)
		for _, a := range n.Attr {
			b.WriteByte(' ')
			b.WriteString(a.Key)
			b.WriteString(`="`)
			b.WriteString(html.EscapeString(a.Val))
			b.WriteByte('"')
		}
		if voidTags[n.Data] {
			b.WriteString("/>")
			return
		}
		b.WriteByte('>')
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderInline(b, c)
		}
		b.WriteString("</")
		b.WriteString(n.Data)
		b.WriteByte('>')
	}
}

// findBody returns the body element of a parsed document, or nil.
func findBody(doc *html.Node) *html.Node {
	var body *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "body" {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return body
}
