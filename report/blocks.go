package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

type preBlock string

func (p preBlock) text(w io.Writer) {
	io.WriteString(w, string(p))
	if !strings.HasSuffix(string(p), "\n") {
		io.WriteString(w, "\n")
	}
}

func (p preBlock) markdown(w io.Writer, _ string) {
	fmt.Fprintf(w, "```\n%s\n```\n\n", strings.TrimRight(string(p), "\n"))
}

type lineBlock string

func (l lineBlock) text(w io.Writer) { fmt.Fprintln(w, string(l)) }

func (l lineBlock) markdown(w io.Writer, _ string) { fmt.Fprintf(w, "%s\n\n", l) }

type metricBlock struct {
	name  string
	value float64
}

func (m metricBlock) text(w io.Writer) { fmt.Fprintf(w, "%s: %.4f\n", m.name, m.value) }

func (m metricBlock) markdown(w io.Writer, _ string) {
	fmt.Fprintf(w, "**%s**: %.4f\n\n", m.name, m.value)
}

type confusionBlock struct {
	cm     *mat.Dense
	labels []string
}

func (c confusionBlock) cells() [][]string {
	n, _ := c.cm.Dims()
	out := make([][]string, n)
	for i := range out {
		out[i] = make([]string, n)
		for j := range out[i] {
			out[i][j] = strconv.FormatFloat(c.cm.At(i, j), 'f', 0, 64)
		}
	}
	return out
}

func (c confusionBlock) text(w io.Writer) {
	cells := c.cells()
	rowNames := make([]string, len(c.labels))
	colNames := make([]string, len(c.labels))
	rowWidth := 0
	for i, l := range c.labels {
		rowNames[i] = "actual " + l
		colNames[i] = "pred " + l
		rowWidth = max(rowWidth, len(rowNames[i]))
	}
	colWidth := 0
	for j := range colNames {
		colWidth = max(colWidth, len(colNames[j]))
		for i := range cells {
			colWidth = max(colWidth, len(cells[i][j]))
		}
	}

	fmt.Fprintln(w, "Confusion matrix (rows: actual, columns: predicted)")
	fmt.Fprintf(w, "%-*s", rowWidth, "")
	for _, name := range colNames {
		fmt.Fprintf(w, "  %*s", colWidth, name)
	}
	fmt.Fprintln(w)
	for i, row := range cells {
		fmt.Fprintf(w, "%-*s", rowWidth, rowNames[i])
		for _, v := range row {
			fmt.Fprintf(w, "  %*s", colWidth, v)
		}
		fmt.Fprintln(w)
	}
}

func (c confusionBlock) markdown(w io.Writer, _ string) {
	io.WriteString(w, "| actual \\ predicted |")
	for _, l := range c.labels {
		fmt.Fprintf(w, " %s |", escapeCell(l))
	}
	io.WriteString(w, "\n|---|")
	for range c.labels {
		io.WriteString(w, "---:|")
	}
	io.WriteString(w, "\n")
	for i, row := range c.cells() {
		fmt.Fprintf(w, "| **%s** |", escapeCell(c.labels[i]))
		for _, v := range row {
			fmt.Fprintf(w, " %s |", v)
		}
		io.WriteString(w, "\n")
	}
	io.WriteString(w, "\n")
}

type importanceBlock []Importance

func (b importanceBlock) text(w io.Writer) {
	width := len("feature")
	for _, row := range b {
		width = max(width, len(row.Feature))
	}
	fmt.Fprintf(w, "%-*s  %10s\n", width, "feature", "importance")
	for _, row := range b {
		fmt.Fprintf(w, "%-*s  %10.4f\n", width, row.Feature, row.Value)
	}
}

func (b importanceBlock) markdown(w io.Writer, _ string) {
	io.WriteString(w, "| rank | feature | importance |\n|---:|---|---:|\n")
	for i, row := range b {
		fmt.Fprintf(w, "| %d | %s | %.4f |\n", i+1, escapeCell(row.Feature), row.Value)
	}
	io.WriteString(w, "\n")
}

type imageBlock struct {
	caption string
	path    string
}

func (img imageBlock) text(w io.Writer) {
	fmt.Fprintf(w, "plot written: %s\n", img.path)
}

func (img imageBlock) markdown(w io.Writer, dir string) {
	target := img.path
	if dir != "" {
		if rel, err := filepath.Rel(dir, img.path); err == nil {
			target = rel
		}
	}
	fmt.Fprintf(w, "![%s](%s)\n\n", img.caption, filepath.ToSlash(target))
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
