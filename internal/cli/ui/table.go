package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Table renders rows in aligned columns under a highlighted header
type Table struct {
	w       io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a table with the given headers
func NewTable(w io.Writer, noColor bool, headers ...string) *Table {
	return &Table{w: w, headers: headers, noColor: noColor}
}

// AddRow appends a row. Missing cells render empty and extra cells are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Len returns the number of rows
func (t *Table) Len() int { return len(t.rows) }

// Render writes the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	header := newColor(t.noColor, color.FgCyan, color.Bold)
	rule := newColor(t.noColor, color.FgHiBlack)

	t.line(widths, t.headers, header)
	dashes := make([]string, len(widths))
	for i, w := range widths {
		dashes[i] = strings.Repeat("-", w)
	}
	t.line(widths, dashes, rule)
	for _, row := range t.rows {
		t.line(widths, row, nil)
	}
}

func (t *Table) line(widths []int, cells []string, c *color.Color) {
	for i, cell := range cells {
		if i > 0 {
			fmt.Fprint(t.w, "  ")
		}
		// the last column is not padded so lines carry no trailing spaces
		if i < len(cells)-1 {
			cell = pad(cell, widths[i])
		}
		if c != nil {
			c.Fprint(t.w, cell)
		} else {
			fmt.Fprint(t.w, cell)
		}
	}
	fmt.Fprintln(t.w)
}

// KeyValues renders label/value pairs with the labels aligned
type KeyValues struct {
	w       io.Writer
	pairs   [][2]string
	noColor bool
}

// NewKeyValues creates an empty key/value listing
func NewKeyValues(w io.Writer, noColor bool) *KeyValues {
	return &KeyValues{w: w, noColor: noColor}
}

// Add appends a pair
func (kv *KeyValues) Add(key, value string) {
	kv.pairs = append(kv.pairs, [2]string{key, value})
}

// Render writes the pairs
func (kv *KeyValues) Render() {
	width := 0
	for _, p := range kv.pairs {
		if n := utf8.RuneCountInString(p[0]); n > width {
			width = n
		}
	}
	label := newColor(kv.noColor, color.FgCyan)
	for _, p := range kv.pairs {
		label.Fprint(kv.w, pad(p[0]+":", width+1))
		fmt.Fprintf(kv.w, " %s\n", p[1])
	}
}

// Section writes a bold section title followed by a blank line
func Section(w io.Writer, title string, noColor bool) {
	newColor(noColor, color.Bold).Fprintln(w, title)
	fmt.Fprintln(w)
}

func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func newColor(noColor bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if noColor {
		c.DisableColor()
	}
	return c
}
