// Package report collects the printed output of a study into sections that
// are echoed to the console as they are added and can be saved afterwards
// as Markdown and HTML.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// element is one block of a section, renderable as plain text and Markdown.
type element interface {
	text(w io.Writer)
	markdown(w io.Writer, dir string)
}

// Report is an ordered list of titled sections. It is safe for concurrent
// use; sections are written to the live writer in the order they are
// created.
type Report struct {
	Title string

	mu       sync.Mutex
	live     io.Writer
	sections []*Section
}

// Section is a titled group of blocks.
type Section struct {
	r        *Report
	Heading  string
	elements []element
}

// New creates a report. When live is non-nil every block is printed to it
// as soon as it is added.
func New(title string, live io.Writer) *Report {
	return &Report{Title: title, live: live}
}

// Section starts a new section and prints its heading.
func (r *Report) Section(heading string) *Section {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &Section{r: r, Heading: heading}
	r.sections = append(r.sections, s)
	if r.live != nil {
		fmt.Fprintf(r.live, "\n=== %s ===\n", heading)
	}
	return s
}

// Headings returns the section headings in order.
func (r *Report) Headings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sections))
	for i, s := range r.sections {
		out[i] = s.Heading
	}
	return out
}

func (s *Section) add(e element) *Section {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.elements = append(s.elements, e)
	if s.r.live != nil {
		e.text(s.r.live)
	}
	return s
}

// Pre adds a preformatted block such as a rendered table.
func (s *Section) Pre(block string) *Section {
	return s.add(preBlock(block))
}

// Line adds a line of prose.
func (s *Section) Line(format string, args ...interface{}) *Section {
	return s.add(lineBlock(fmt.Sprintf(format, args...)))
}

// Shape adds a "name shape: (rows, cols)" line.
func (s *Section) Shape(name string, rows, cols int) *Section {
	return s.add(lineBlock(fmt.Sprintf("%s shape: (%d, %d)", name, rows, cols)))
}

// Metric adds a named score printed with four decimals.
func (s *Section) Metric(name string, value float64) *Section {
	return s.add(metricBlock{name: name, value: value})
}

// ConfusionMatrix adds a confusion matrix grid. Rows are true labels and
// columns predicted labels.
func (s *Section) ConfusionMatrix(cm mat.Matrix, labels []string) *Section {
	return s.add(confusionBlock{cm: mat.DenseCopyOf(cm), labels: append([]string(nil), labels...)})
}

// Importance is one row of a feature ranking.
type Importance struct {
	Feature string
	Value   float64
}

// Importances adds a ranked feature-importance table.
func (s *Section) Importances(rows []Importance) *Section {
	return s.add(importanceBlock(append([]Importance(nil), rows...)))
}

// Image adds a reference to a written plot.
func (s *Section) Image(caption, path string) *Section {
	return s.add(imageBlock{caption: caption, path: path})
}

// WriteText renders the whole report as plain text.
func (r *Report) WriteText(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(w, "%s\n%s\n", r.Title, strings.Repeat("=", len(r.Title)))
	for _, s := range r.sections {
		fmt.Fprintf(w, "\n=== %s ===\n", s.Heading)
		for _, e := range s.elements {
			e.text(w)
		}
	}
}

// Markdown renders the report as Markdown. Image paths are made relative
// to dir, the directory the Markdown file will live in.
func (r *Report) Markdown(dir string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", r.Title)
	for _, s := range r.sections {
		fmt.Fprintf(&b, "\n## %s\n\n", s.Heading)
		for _, e := range s.elements {
			e.markdown(&b, dir)
		}
	}
	return []byte(b.String())
}
