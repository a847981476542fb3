package rewrite

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTML parses a full document, runs one pass, and renders it back.
func HTML(src string, ctx *Context) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("rewrite: parse document: %w", err)
	}
	if err := Apply(doc, ctx); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("rewrite: render document: %w", err)
	}
	return buf.String(), nil
}

// Fragment rewrites an HTML fragment (a subtree delivered by a mutation
// feed, not a full document). The fragment is parsed in a body context and
// rendered back without html/head/body wrappers.
func Fragment(src string, ctx *Context) (string, error) {
	body := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	nodes, err := html.ParseFragment(strings.NewReader(src), body)
	if err != nil {
		return "", fmt.Errorf("rewrite: parse fragment: %w", err)
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	if err := Apply(body, ctx); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("rewrite: render fragment: %w", err)
		}
	}
	return buf.String(), nil
}
