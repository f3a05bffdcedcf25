package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// displayWidth is the console width tables are wrapped to.
const displayWidth = 80

// FormatShape renders a shape tuple as "(rows, cols)".
func FormatShape(rows, cols int) string {
	return fmt.Sprintf("(%d, %d)", rows, cols)
}

// String renders the frame as a table with a row index. Integer columns are
// printed without decimals, float columns with the fewest decimals that
// represent every value (at most six).
func (f *Frame) String() string {
	rows, cols := f.Shape()
	index := make([]string, rows)
	for i := range index {
		index[i] = strconv.Itoa(i)
	}
	cells := make([][]string, cols)
	for j := 0; j < cols; j++ {
		cells[j] = formatColumn(f, j)
	}
	return renderTable(index, f.columns, cells)
}

func formatColumn(f *Frame, j int) []string {
	rows := f.NRows()
	out := make([]string, rows)
	if f.isIntegral(j) {
		for i := 0; i < rows; i++ {
			out[i] = strconv.FormatFloat(f.data.At(i, j), 'f', 0, 64)
		}
		return out
	}
	decimals := 1
	for i := 0; i < rows; i++ {
		s := strconv.FormatFloat(f.data.At(i, j), 'f', -1, 64)
		if dot := strings.IndexByte(s, '.'); dot >= 0 && len(s)-dot-1 > decimals {
			decimals = len(s) - dot - 1
		}
	}
	if decimals > 6 {
		decimals = 6
	}
	for i := 0; i < rows; i++ {
		out[i] = strconv.FormatFloat(f.data.At(i, j), 'f', decimals, 64)
	}
	return out
}

// String renders the info summary.
func (info *FrameInfo) String() string {
	var b strings.Builder
	b.WriteString("<heartml dataset.Frame>\n")
	if info.Rows > 0 {
		fmt.Fprintf(&b, "RangeIndex: %d entries, 0 to %d\n", info.Rows, info.Rows-1)
	} else {
		b.WriteString("RangeIndex: 0 entries\n")
	}
	fmt.Fprintf(&b, "Data columns (total %d columns):\n", len(info.Columns))

	nameWidth := len("Column")
	for _, c := range info.Columns {
		if len(c.Name) > nameWidth {
			nameWidth = len(c.Name)
		}
	}
	numWidth := len(strconv.Itoa(len(info.Columns)))
	if numWidth < 3 {
		numWidth = 3
	}
	nonNullWidth := len("Non-Null Count")
	row := func(num, name, nonNull, dtype string) {
		fmt.Fprintf(&b, " %-*s %-*s  %-*s  %s\n", numWidth, num, nameWidth, name, nonNullWidth, nonNull, dtype)
	}
	row("#", "Column", "Non-Null Count", "Dtype")
	row("---", "------", "--------------", "-----")
	dtypes := make(map[string]int)
	for i, c := range info.Columns {
		row(strconv.Itoa(i), c.Name, fmt.Sprintf("%d non-null", c.NonNull), c.Dtype)
		dtypes[c.Dtype]++
	}

	names := make([]string, 0, len(dtypes))
	for d := range dtypes {
		names = append(names, d)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, d := range names {
		parts[i] = fmt.Sprintf("%s(%d)", d, dtypes[d])
	}
	fmt.Fprintf(&b, "dtypes: %s\n", strings.Join(parts, ", "))
	fmt.Fprintf(&b, "memory usage: %s\n", formatBytes(info.MemoryBytes))
	return b.String()
}

func formatBytes(n int) string {
	v := float64(n)
	for _, unit := range []string{"bytes", "KB", "MB", "GB"} {
		if v < 1024 {
			return fmt.Sprintf("%.1f %s", v, unit)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.1f TB", v)
}

// String renders the statistics with one row per statistic and one column
// per frame column, six decimals, like the describe output of pandas.
func (d *Description) String() string {
	labels := []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}
	cells := make([][]string, len(d.Columns))
	for j, s := range d.Stats {
		values := []float64{s.Count, s.Mean, s.Std, s.Min, s.Q25, s.Q50, s.Q75, s.Max}
		cells[j] = make([]string, len(values))
		for i, v := range values {
			cells[j][i] = formatFixed(v)
		}
	}
	return renderTable(labels, d.Columns, cells)
}

// String renders the counts as "value    count" lines under the column name.
func (vc *ValueCounts) String() string {
	values := make([]string, len(vc.Counts))
	valueWidth, countWidth := 0, 0
	for i, c := range vc.Counts {
		if vc.Dtype == "int64" {
			values[i] = strconv.FormatFloat(c.Value, 'f', 0, 64)
		} else {
			values[i] = strconv.FormatFloat(c.Value, 'f', -1, 64)
		}
		valueWidth = max(valueWidth, len(values[i]))
		countWidth = max(countWidth, len(strconv.Itoa(c.Count)))
	}
	var b strings.Builder
	b.WriteString(vc.Column + "\n")
	for i, c := range vc.Counts {
		fmt.Fprintf(&b, "%-*s    %*d\n", valueWidth, values[i], countWidth, c.Count)
	}
	b.WriteString("Name: count, dtype: int64\n")
	return b.String()
}

// String renders the correlation matrix with six decimals.
func (c *Correlation) String() string {
	n := len(c.Columns)
	cells := make([][]string, n)
	for j := 0; j < n; j++ {
		cells[j] = make([]string, n)
		for i := 0; i < n; i++ {
			cells[j][i] = formatFixed(c.Matrix.At(i, j))
		}
	}
	return renderTable(c.Columns, c.Columns, cells)
}

func formatFixed(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// renderTable prints a left-aligned index column followed by right-aligned
// data columns. cells is indexed [column][row]. Tables wider than
// displayWidth are split into blocks of columns, each repeating the index.
func renderTable(index, headers []string, cells [][]string) string {
	indexWidth := 0
	for _, s := range index {
		indexWidth = max(indexWidth, len(s))
	}
	widths := make([]int, len(headers))
	for j, h := range headers {
		widths[j] = len(h)
		for _, s := range cells[j] {
			widths[j] = max(widths[j], len(s))
		}
	}

	var b strings.Builder
	start := 0
	for start < len(headers) {
		end, width := start, indexWidth
		for end < len(headers) && (end == start || width+2+widths[end] <= displayWidth) {
			width += 2 + widths[end]
			end++
		}
		if start > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.Repeat(" ", indexWidth))
		for j := start; j < end; j++ {
			fmt.Fprintf(&b, "  %*s", widths[j], headers[j])
		}
		b.WriteString("\n")
		for i, idx := range index {
			fmt.Fprintf(&b, "%-*s", indexWidth, idx)
			for j := start; j < end; j++ {
				fmt.Fprintf(&b, "  %*s", widths[j], cells[j][i])
			}
			b.WriteString("\n")
		}
		start = end
	}
	return b.String()
}
