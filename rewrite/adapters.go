package rewrite

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/satlens/satlens/fiat"
)

// Adapter extracts prices from a known third-party markup pattern that the
// generic text-node walk cannot see in one piece — typically a price split
// across sibling elements. Adapters use the same processed marker as the
// walker, so each is independently idempotent and safe to run on every
// mutation batch.
type Adapter func(root *html.Node, ctx *Context)

// Adapters is the registry run, in order, before every generic walk.
var Adapters = []Adapter{
	OffscreenPriceAdapter,
	SplitPartsPriceAdapter,
	MicrodataPriceAdapter,
}

// RunAdapters applies every registered adapter. A panicking adapter is
// isolated: it is logged and the remaining adapters still run.
func RunAdapters(root *html.Node, ctx *Context) {
	for _, a := range Adapters {
		func() {
			defer func() {
				if r := recover(); r != nil {
					ctx.Logger.Error("rewrite: adapter skipped", "panic", fmt.Sprint(r))
				}
			}()
			a(root, ctx)
		}()
	}
}

// OffscreenPriceAdapter handles the widget where the complete price lives
// in a visually-hidden accessible span ("a-offscreen", "sr-only", or
// "visually-hidden") next to styled whole/fraction sub-spans. The hidden
// span is authoritative; the annotation is appended to the container so it
// renders after the visible parts.
func OffscreenPriceAdapter(root *html.Node, ctx *Context) {
	eachElement(root, func(n *html.Node) bool {
		if n.DataAtom != atom.Span || !hasHiddenPriceClass(n) {
			return true
		}
		container := n.Parent
		if container == nil || container.Type != html.ElementNode || hasAttr(container, ProcessedAttr) {
			return true
		}
		text := collectText(n)
		if len(ctx.Matcher.Find(text)) == 0 {
			return true
		}
		out, err := ctx.formatFiat(strings.TrimSpace(text))
		if err != nil {
			return true
		}
		appendAnnotation(container, out, ctx)
		return false
	})
}

// SplitPartsPriceAdapter handles markup that splits a price into dedicated
// symbol/integer/fraction child elements (class names containing
// "price-symbol"/"price-whole"/"price-fraction" and common variants). The
// pieces are concatenated in document order and matched as one string.
func SplitPartsPriceAdapter(root *html.Node, ctx *Context) {
	eachElement(root, func(n *html.Node) bool {
		if hasAttr(n, ProcessedAttr) {
			return false
		}
		sym := childWithClassPart(n, "price-symbol", "currency-symbol")
		whole := childWithClassPart(n, "price-whole", "price-integer")
		if sym == nil || whole == nil {
			return true
		}
		text := strings.TrimSpace(collectText(sym)) + strings.TrimSpace(collectText(whole))
		if frac := childWithClassPart(n, "price-fraction", "price-decimal"); frac != nil {
			text += "." + strings.TrimSpace(collectText(frac))
		}
		if len(ctx.Matcher.Find(text)) == 0 {
			return true
		}
		out, err := ctx.formatFiat(text)
		if err != nil {
			return true
		}
		appendAnnotation(n, out, ctx)
		return false
	})
}

// MicrodataPriceAdapter handles schema.org offer markup where the amount is
// carried in a content attribute (itemprop="price" content="24.99") and the
// currency in a sibling itemprop="priceCurrency". Only offers priced in the
// active currency are annotated. The carrier is very often a void
// <meta> element, which cannot hold children; the annotation then goes on
// the nearest renderable ancestor, usually the itemscope container.
func MicrodataPriceAdapter(root *html.Node, ctx *Context) {
	eachElement(root, func(n *html.Node) bool {
		if getAttr(n, "itemprop") != "price" {
			return true
		}
		target := annotationTarget(n)
		if target == nil || hasAttr(target, ProcessedAttr) {
			return true
		}
		amount := getAttr(n, "content")
		if amount == "" {
			return true
		}
		if cur := siblingPriceCurrency(n); cur != "" && !strings.EqualFold(cur, ctx.Currency.Code) {
			return true
		}
		out, err := ctx.formatFiat(amount)
		if err != nil {
			return true
		}
		appendAnnotation(target, out, ctx)
		return false
	})
}

// voidTags are elements the serializer refuses to render with children.
var voidTags = map[atom.Atom]bool{
	atom.Area:   true,
	atom.Base:   true,
	atom.Br:     true,
	atom.Col:    true,
	atom.Embed:  true,
	atom.Hr:     true,
	atom.Img:    true,
	atom.Input:  true,
	atom.Link:   true,
	atom.Meta:   true,
	atom.Param:  true,
	atom.Source: true,
	atom.Track:  true,
	atom.Wbr:    true,
}

// annotationTarget resolves where an adapter may append children: the node
// itself when it can hold them, otherwise its closest non-void ancestor.
func annotationTarget(n *html.Node) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && !voidTags[n.DataAtom] {
			return n
		}
	}
	return nil
}

// appendAnnotation appends the styled bitcoin span (with separator in dual
// display) and stamps the element in the same operation, preserving the
// write-and-mark invariant. Void elements are never written to.
func appendAnnotation(n *html.Node, display string, ctx *Context) {
	if voidTags[n.DataAtom] {
		return
	}
	if ctx.Prefs.DisplayMode == fiat.DisplayDual {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: Separator})
	}
	n.AppendChild(priceSpan(display, ctx))
	setAttr(n, ProcessedAttr, "1")
	ctx.Replaced++
}

// eachElement walks elements depth-first; the visitor returns false to
// prune the subtree below the visited node.
func eachElement(n *html.Node, visit func(*html.Node) bool) {
	if n.Type == html.ElementNode {
		if skipTags[n.DataAtom] {
			return
		}
		if !visit(n) {
			return
		}
	}
	var children []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}
	for _, c := range children {
		eachElement(c, visit)
	}
}

// collectText concatenates the text content of a subtree.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

func hasHiddenPriceClass(n *html.Node) bool {
	class := getAttr(n, "class")
	for _, marker := range []string{"a-offscreen", "sr-only", "visually-hidden"} {
		if strings.Contains(class, marker) {
			return true
		}
	}
	return false
}

func childWithClassPart(n *html.Node, parts ...string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		class := getAttr(c, "class")
		for _, p := range parts {
			if strings.Contains(class, p) {
				return c
			}
		}
	}
	return nil
}

func siblingPriceCurrency(n *html.Node) string {
	parent := n.Parent
	if parent == nil {
		return ""
	}
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && getAttr(c, "itemprop") == "priceCurrency" {
			if v := getAttr(c, "content"); v != "" {
				return v
			}
			return strings.TrimSpace(collectText(c))
		}
	}
	return ""
}
