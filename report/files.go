package report

import (
	"os"
	"path/filepath"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
)

// File names written by Save.
const (
	MarkdownFile = "report.md"
	HTMLFile     = "report.html"
)

// HTML converts the Markdown rendering into a standalone HTML page.
func (r *Report) HTML(dir string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: r.Title,
	})
	return markdown.ToHTML(r.Markdown(dir), p, renderer)
}

// Save writes report.md and report.html into dir and returns their paths.
func (r *Report) Save(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create report directory %s", dir)
	}
	files := []struct {
		name string
		data []byte
	}{
		{MarkdownFile, r.Markdown(dir)},
		{HTMLFile, r.HTML(dir)},
	}
	logger := log.GetLoggerWithName("report")
	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return paths, errors.Wrapf(err, "write %s", path)
		}
		logger.Debug("report written", log.PhaseKey, log.PhaseReport, log.OutputPathKey, path)
		paths = append(paths, path)
	}
	return paths, nil
}
