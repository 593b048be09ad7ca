// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package markdown

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed reports a document missing the structure an extractor expects.
var ErrMalformed = errors.New("malformed document")

// BlockKind identifies a top-level block.
type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockParagraph
	BlockTable
)

func (k BlockKind) String() string {
	switch k {
	case BlockHeading:
		return "heading"
	case BlockParagraph:
		return "paragraph"
	case BlockTable:
		return "table"
	}
	return fmt.Sprintf("BlockKind(%d)", int(k))
}

// InlineKind identifies an inline run inside a heading, paragraph or cell.
type InlineKind int

const (
	InlineText InlineKind = iota
	InlineCode
	InlineLink
	InlineBreak
)

// Inline is one run of inline content. Href is set for links only.
type Inline struct {
	Kind InlineKind
	Text string
	Href string
}

// Link is an inline link.
type Link struct {
	Text string
	Href string
}

// Inlines is an ordered run of inline content.
type Inlines []Inline

// Text concatenates the runs in document order. Hard breaks become "\n".
func (in Inlines) Text() string {
	var b strings.Builder
	for _, r := range in {
		if r.Kind == InlineBreak {
			b.WriteByte('\n')
			continue
		}
		b.WriteString(r.Text)
	}
	return b.String()
}

// Plain returns Text with all whitespace runs collapsed to single spaces.
func (in Inlines) Plain() string {
	return strings.Join(strings.Fields(in.Text()), " ")
}

// Lines splits Text on hard and soft line breaks and trims each line.
// Empty lines are dropped.
func (in Inlines) Lines() []string {
	var lines []string
	for _, l := range strings.Split(in.Text(), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Links returns the links in document order.
func (in Inlines) Links() []Link {
	var links []Link
	for _, r := range in {
		if r.Kind == InlineLink {
			links = append(links, Link{Text: strings.TrimSpace(r.Text), Href: r.Href})
		}
	}
	return links
}

// Table is a parsed table. Rows holds body rows only.
type Table struct {
	Header []Inlines
	Rows   [][]Inlines
}

// Block is one top-level block of a document.
type Block struct {
	Kind    BlockKind
	Level   int // heading level, 1-6
	Inlines Inlines
	Table   *Table
}

// Document is the ordered list of top-level headings, paragraphs and tables
// of one rendered markdown page. Other blocks (lists, code, raw HTML) are
// not represented.
type Document struct {
	Blocks      []Block
	FrontMatter map[string]any
}

// Layout describes the minimum structure an extractor relies on.
type Layout struct {
	Title      bool
	Paragraphs int
	Tables     int
}

// Require checks the document against l once, so the accessors used
// afterwards can assume the structure is there.
func (d *Document) Require(l Layout) error {
	if l.Title {
		if _, ok := d.title(); !ok {
			return fmt.Errorf("%w: no level-1 heading", ErrMalformed)
		}
	}
	if n := len(d.Paragraphs()); n < l.Paragraphs {
		return fmt.Errorf("%w: want at least %d paragraphs, found %d", ErrMalformed, l.Paragraphs, n)
	}
	if n := len(d.Tables()); n < l.Tables {
		return fmt.Errorf("%w: want at least %d tables, found %d", ErrMalformed, l.Tables, n)
	}
	return nil
}

// Title returns the text of the first level-1 heading.
func (d *Document) Title() (string, error) {
	t, ok := d.title()
	if !ok {
		return "", fmt.Errorf("%w: no level-1 heading", ErrMalformed)
	}
	return t, nil
}

func (d *Document) title() (string, bool) {
	for _, b := range d.Blocks {
		if b.Kind == BlockHeading && b.Level == 1 {
			return b.Inlines.Plain(), true
		}
	}
	return "", false
}

// Paragraphs returns the top-level paragraphs in document order.
func (d *Document) Paragraphs() []Inlines {
	var ps []Inlines
	for _, b := range d.Blocks {
		if b.Kind == BlockParagraph {
			ps = append(ps, b.Inlines)
		}
	}
	return ps
}

// Paragraph returns the i-th top-level paragraph.
func (d *Document) Paragraph(i int) (Inlines, error) {
	ps := d.Paragraphs()
	if i < 0 || i >= len(ps) {
		return nil, fmt.Errorf("%w: no paragraph %d (found %d)", ErrMalformed, i, len(ps))
	}
	return ps[i], nil
}

// Tables returns the top-level tables in document order.
func (d *Document) Tables() []*Table {
	var ts []*Table
	for _, b := range d.Blocks {
		if b.Kind == BlockTable {
			ts = append(ts, b.Table)
		}
	}
	return ts
}

// Table returns the i-th top-level table.
func (d *Document) Table(i int) (*Table, error) {
	ts := d.Tables()
	if i < 0 || i >= len(ts) {
		return nil, fmt.Errorf("%w: no table %d (found %d)", ErrMalformed, i, len(ts))
	}
	return ts[i], nil
}
