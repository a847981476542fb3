package rewrite

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/satlens/satlens/convert"
	"github.com/satlens/satlens/fiat"
)

// skipTags are elements whose subtrees must never be rewritten: executable
// or opaque content, media, and user input.
var skipTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Canvas:   true,
	atom.Video:    true,
	atom.Audio:    true,
	atom.Picture:  true,
	atom.Code:     true,
	atom.Pre:      true,
	atom.Math:     true,
	atom.Input:    true,
	atom.Textarea: true,
}

// Apply runs one full traversal pass over root: adapters first, then the
// generic text-node walk, depth-first in document order. Any panic escaping
// the per-node isolation is caught here and abandons the rest of the pass —
// already-committed replacements stay, nothing further is touched, and the
// page is never left broken.
func Apply(root *html.Node, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ctx.Logger.Error("rewrite: pass abandoned", "panic", fmt.Sprint(r))
			err = fmt.Errorf("rewrite: pass abandoned: %v", r)
		}
	}()

	RunAdapters(root, ctx)
	walk(root, ctx, false)
	return nil
}

// walk is the node state machine. editable tracks whether an ancestor is
// contenteditable; such regions are user input and are never rewritten.
func walk(n *html.Node, ctx *Context, editable bool) {
	if n.Type == html.ElementNode {
		if skipTags[n.DataAtom] {
			return
		}
		if isEditable(n) {
			editable = true
		}
		if hasAttr(n, ProcessedAttr) {
			return
		}
	}

	// Children are snapshotted first: rewriting a text node splices new
	// siblings into the tree mid-iteration.
	var children []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}

	for _, c := range children {
		switch c.Type {
		case html.TextNode:
			if editable || n.Type != html.ElementNode {
				continue
			}
			processTextNode(n, c, ctx)
		case html.ElementNode, html.DocumentNode:
			walk(c, ctx, editable)
		}
	}
}

// processTextNode matches prices in one text node and, when at least one
// converts, swaps the node for a fragment of text and annotation spans.
// A single failing node never aborts the walk.
func processTextNode(parent, textNode *html.Node, ctx *Context) {
	defer func() {
		if r := recover(); r != nil {
			ctx.Logger.Error("rewrite: node skipped", "panic", fmt.Sprint(r))
		}
	}()

	text := textNode.Data
	matches := ctx.Matcher.Find(text)
	if len(matches) == 0 {
		return
	}

	results := make([]convertedMatch, 0, len(matches))
	okCount := 0
	for _, m := range matches {
		out, err := ctx.formatFiat(m.Text)
		if err != nil {
			// Parse failure or missing rate: keep this span verbatim,
			// keep scanning the rest of the node.
			results = append(results, convertedMatch{match: m})
			continue
		}
		results = append(results, convertedMatch{match: m, output: out, ok: true})
		okCount++
	}
	if okCount == 0 {
		// Fail open: no partial markup, the text stays byte-identical.
		return
	}

	frag := buildFragment(text, results, ctx)
	for _, node := range frag {
		parent.InsertBefore(node, textNode)
	}
	parent.RemoveChild(textNode)
	setAttr(parent, ProcessedAttr, "1")
	ctx.Replaced += okCount
}

// convertedMatch pairs a matcher hit with its conversion outcome.
type convertedMatch struct {
	match  convert.Match
	output string
	ok     bool
}

// buildFragment reassembles the original text with annotation spans spliced
// in at each successful match, preserving every unmatched byte (including
// trailing whitespace captured by the matcher) verbatim.
func buildFragment(text string, results []convertedMatch, ctx *Context) []*html.Node {
	var nodes []*html.Node
	var pending strings.Builder
	last := 0

	flush := func() {
		if pending.Len() > 0 {
			nodes = append(nodes, &html.Node{Type: html.TextNode, Data: pending.String()})
			pending.Reset()
		}
	}

	for _, r := range results {
		m := r.match
		pending.WriteString(text[last:m.Start])
		if !r.ok {
			pending.WriteString(m.Text)
		} else {
			if ctx.Prefs.DisplayMode == fiat.DisplayDual {
				pending.WriteString(m.Text)
				pending.WriteString(Separator)
			}
			flush()
			nodes = append(nodes, priceSpan(r.output, ctx))
		}
		pending.WriteString(m.Trailing)
		last = m.End + len(m.Trailing)
	}
	pending.WriteString(text[last:])
	flush()
	return nodes
}

// priceSpan builds the annotation element carrying the bitcoin value.
func priceSpan(display string, ctx *Context) *html.Node {
	class := PriceClass
	if ctx.Prefs.Highlight {
		class += " " + HighlightClass
	}
	span := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Span,
		Data:     "span",
		Attr:     []html.Attribute{{Key: "class", Val: class}},
	}
	span.AppendChild(&html.Node{Type: html.TextNode, Data: display})
	return span
}

func isEditable(n *html.Node) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, "contenteditable") && !strings.EqualFold(a.Val, "false") {
			return true
		}
	}
	return false
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
