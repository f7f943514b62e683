package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// TableWriter provides simple table formatting
type TableWriter struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTableWriter creates a new table writer
func NewTableWriter(headers []string) *TableWriter {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	return &TableWriter{headers: headers, widths: widths}
}

// AddRow adds a row; missing cells render empty.
func (t *TableWriter) AddRow(row []string) {
	t.rows = append(t.rows, row)
	for i, cell := range row {
		if n := utf8.RuneCountInString(cell); i < len(t.widths) && n > t.widths[i] {
			t.widths[i] = n
		}
	}
}

// Print writes the table with borders
func (t *TableWriter) Print(w io.Writer) {
	t.separator(w, "┌", "┬", "┐")
	t.row(w, t.headers)
	t.separator(w, "├", "┼", "┤")
	for _, row := range t.rows {
		t.row(w, row)
	}
	t.separator(w, "└", "┴", "┘")
}

func (t *TableWriter) separator(w io.Writer, left, mid, right string) {
	var b strings.Builder
	b.WriteString(left)
	for i, width := range t.widths {
		b.WriteString(strings.Repeat("─", width+2))
		if i < len(t.widths)-1 {
			b.WriteString(mid)
		}
	}
	b.WriteString(right)
	fmt.Fprintln(w, b.String())
}

func (t *TableWriter) row(w io.Writer, row []string) {
	var b strings.Builder
	b.WriteString("│")
	for i, width := range t.widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		b.WriteString(" " + cell + strings.Repeat(" ", width-utf8.RuneCountInString(cell)) + " │")
	}
	fmt.Fprintln(w, b.String())
}
