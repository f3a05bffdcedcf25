package report

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func sampleReport(live io.Writer, dir string) *Report {
	r := New("Heart disease study", live)
	r.Section("Split").
		Shape("X_train", 242, 13).
		Shape("X_test", 61, 13)
	r.Section("Logistic regression").
		Metric("Accuracy", 0.8524590163934426).
		ConfusionMatrix(mat.NewDense(2, 2, []float64{24, 4, 3, 30}), []string{"0", "1"}).
		Image("Confusion matrix", filepath.Join(dir, "cm.png"))
	r.Section("Feature importance").
		Importances([]Importance{{"thalach", 0.3}, {"cp", 0.4}}).
		Pre("table\nrow\n")
	return r
}

func TestLiveOutput(t *testing.T) {
	var buf bytes.Buffer
	sampleReport(&buf, "plots")
	out := buf.String()

	assert.Contains(t, out, "\n=== Split ===\nX_train shape: (242, 13)\nX_test shape: (61, 13)\n")
	assert.Contains(t, out, "Accuracy: 0.8525\n")
	assert.Contains(t, out, "Confusion matrix (rows: actual, columns: predicted)\n"+
		"          pred 0  pred 1\n"+
		"actual 0      24       4\n"+
		"actual 1       3      30\n")
	assert.Contains(t, out, "feature  importance\n")
	assert.Contains(t, out, "thalach      0.3000\n")
	assert.Contains(t, out, "plot written: "+filepath.Join("plots", "cm.png")+"\n")
	assert.True(t, strings.HasSuffix(out, "table\nrow\n"))
}

func TestWriteTextMatchesLive(t *testing.T) {
	var live, replay bytes.Buffer
	r := sampleReport(&live, "plots")
	r.WriteText(&replay)
	assert.True(t, strings.HasPrefix(replay.String(), "Heart disease study\n==================="))
	assert.True(t, strings.HasSuffix(replay.String(), live.String()))
	assert.Equal(t, []string{"Split", "Logistic regression", "Feature importance"}, r.Headings())
}

func TestMarkdown(t *testing.T) {
	md := string(sampleReport(nil, "out").Markdown("out"))

	assert.True(t, strings.HasPrefix(md, "# Heart disease study\n"))
	assert.Contains(t, md, "## Logistic regression\n")
	assert.Contains(t, md, "**Accuracy**: 0.8525")
	assert.Contains(t, md, "| actual \\ predicted | 0 | 1 |\n|---|---:|---:|\n| **0** | 24 | 4 |\n")
	assert.Contains(t, md, "| 1 | thalach | 0.3000 |\n| 2 | cp | 0.4000 |\n")
	assert.Contains(t, md, "![Confusion matrix](cm.png)")
	assert.Contains(t, md, "```\ntable\nrow\n```")
}

func TestSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := sampleReport(nil, dir).Save(dir)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, MarkdownFile), filepath.Join(dir, HTMLFile)}, paths)

	html, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	page := string(html)
	assert.Contains(t, page, "<title>Heart disease study</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, `<img src="cm.png" alt="Confusion matrix"`)
}

func TestConcurrentSections(t *testing.T) {
	var buf bytes.Buffer
	r := New("concurrent", &buf)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Section("model").Metric("Accuracy", 1)
		}()
	}
	wg.Wait()
	assert.Len(t, r.Headings(), 8)
	assert.Equal(t, 8, strings.Count(buf.String(), "Accuracy: 1.0000"))
}
