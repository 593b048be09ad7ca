// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package markdown renders documentation pages and reduces them to a typed
// block structure (headings, paragraphs, tables) that extractors read by
// name instead of by raw tree position.
package markdown

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parser renders GitHub-flavoured markdown to HTML and converts the HTML into
// a Document. It is stateless and can be reused across files.
type Parser struct {
	engine goldmark.Markdown
}

// NewParser returns a Parser with GFM tables, strikethrough, autolinks,
// task lists and footnotes enabled. Raw HTML in pages is passed through.
func NewParser() *Parser {
	return &Parser{
		engine: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Footnote),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

// Render strips optional YAML front matter from source and renders the body
// to HTML. The front matter, if any, is returned as a map.
func (p *Parser) Render(source []byte) ([]byte, map[string]any, error) {
	meta := map[string]any{}
	body, err := frontmatter.Parse(bytes.NewReader(source), &meta)
	if err != nil {
		return nil, nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	var buf bytes.Buffer
	if err := p.engine.Convert(body, &buf); err != nil {
		return nil, nil, fmt.Errorf("markdown render: %w", err)
	}
	return buf.Bytes(), meta, nil
}

// Parse renders source and builds its Document.
func (p *Parser) Parse(source []byte) (*Document, error) {
	rendered, meta, err := p.Render(source)
	if err != nil {
		return nil, err
	}
	doc, err := FromHTML(bytes.NewReader(rendered))
	if err != nil {
		return nil, err
	}
	doc.FrontMatter = meta
	return doc, nil
}

// ParseFile reads and parses the markdown file at path.
func (p *Parser) ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := p.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

// FromHTML builds a Document from the top-level elements of an HTML body.
func FromHTML(r io.Reader) (*Document, error) {
	root, err := xhtml.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("html parse: %w", err)
	}
	doc := &Document{}
	body := findBody(root)
	if body == nil {
		return doc, nil
	}

	for n := body.FirstChild; n != nil; n = n.NextSibling {
		if n.Type != xhtml.ElementNode {
			continue
		}
		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			doc.Blocks = append(doc.Blocks, Block{
				Kind:    BlockHeading,
				Level:   int(n.Data[1] - '0'),
				Inlines: collectInlines(n),
			})
		case atom.P:
			doc.Blocks = append(doc.Blocks, Block{
				Kind:    BlockParagraph,
				Inlines: collectInlines(n),
			})
		case atom.Table:
			doc.Blocks = append(doc.Blocks, Block{
				Kind:  BlockTable,
				Table: collectTable(n),
			})
		}
	}
	return doc, nil
}

func findBody(n *xhtml.Node) *xhtml.Node {
	if n.Type == xhtml.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

// collectInlines flattens the inline content of n into runs. Emphasis and
// other wrappers contribute their text; footnote references are dropped.
func collectInlines(n *xhtml.Node) Inlines {
	var runs Inlines
	var walk func(*xhtml.Node)
	walk = func(c *xhtml.Node) {
		switch c.Type {
		case xhtml.TextNode:
			runs = appendText(runs, c.Data)
			return
		case xhtml.ElementNode:
		default:
			return
		}

		switch c.DataAtom {
		case atom.Code:
			runs = append(runs, Inline{Kind: InlineCode, Text: textContent(c)})
			return
		case atom.A:
			if hasClass(c, "footnote-ref") {
				return
			}
			runs = append(runs, Inline{Kind: InlineLink, Text: textContent(c), Href: attr(c, "href")})
			return
		case atom.Br:
			runs = append(runs, Inline{Kind: InlineBreak})
			return
		case atom.Img, atom.Input:
			return
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			walk(cc)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return runs
}

// appendText merges adjacent text runs.
func appendText(runs Inlines, text string) Inlines {
	if text == "" {
		return runs
	}
	if last := len(runs) - 1; last >= 0 && runs[last].Kind == InlineText {
		runs[last].Text += text
		return runs
	}
	return append(runs, Inline{Kind: InlineText, Text: text})
}

func collectTable(n *xhtml.Node) *Table {
	t := &Table{}
	var walk func(*xhtml.Node, bool)
	walk = func(c *xhtml.Node, inHead bool) {
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			if cc.Type != xhtml.ElementNode {
				continue
			}
			switch cc.DataAtom {
			case atom.Thead:
				walk(cc, true)
			case atom.Tbody, atom.Tfoot:
				walk(cc, false)
			case atom.Tr:
				cells := collectRow(cc)
				if inHead {
					t.Header = cells
				} else {
					t.Rows = append(t.Rows, cells)
				}
			}
		}
	}
	walk(n, false)
	return t
}

func collectRow(tr *xhtml.Node) []Inlines {
	var cells []Inlines
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xhtml.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, collectInlines(c))
		}
	}
	return cells
}

func textContent(n *xhtml.Node) string {
	var b strings.Builder
	var walk func(*xhtml.Node)
	walk = func(c *xhtml.Node) {
		if c.Type == xhtml.TextNode {
			b.WriteString(c.Data)
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			walk(cc)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *xhtml.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *xhtml.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
