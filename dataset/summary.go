package dataset

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/heartml/core/parallel"
	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// parallelThreshold is the column count above which summaries fan out
// across goroutines.
const parallelThreshold = 8

// ColumnInfo describes one column for Info.
type ColumnInfo struct {
	Name    string
	NonNull int
	Dtype   string
}

// FrameInfo is the structural summary of a frame.
type FrameInfo struct {
	Rows        int
	Columns     []ColumnInfo
	MemoryBytes int
}

// Info summarises column names, non-null counts, dtypes and memory use.
// Memory is the size of the float64 values plus a fixed 128 bytes for the
// row index.
func (f *Frame) Info() *FrameInfo {
	rows, cols := f.Shape()
	info := &FrameInfo{
		Rows:        rows,
		Columns:     make([]ColumnInfo, cols),
		MemoryBytes: rows*cols*8 + 128,
	}
	for j, name := range f.columns {
		nonNull := 0
		for i := 0; i < rows; i++ {
			if !math.IsNaN(f.data.At(i, j)) {
				nonNull++
			}
		}
		info.Columns[j] = ColumnInfo{Name: name, NonNull: nonNull, Dtype: f.dtype(j)}
	}
	return info
}

// ColumnStats are the describe statistics of one column.
type ColumnStats struct {
	Count float64
	Mean  float64
	Std   float64 // sample standard deviation (ddof=1); NaN for a single row
	Min   float64
	Q25   float64
	Q50   float64
	Q75   float64
	Max   float64
}

// Description holds describe statistics for every column, in column order.
type Description struct {
	Columns []string
	Stats   []ColumnStats
}

// Describe computes count, mean, sample std, min, quartiles and max per
// column. Quartiles use linear interpolation between closest ranks.
func (f *Frame) Describe() (*Description, error) {
	rows, cols := f.Shape()
	if rows == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "%s: describe", f.source)
	}
	desc := &Description{
		Columns: f.Columns(),
		Stats:   make([]ColumnStats, cols),
	}
	errs := make([]error, cols)
	parallel.ParallelizeWithThreshold(cols, parallelThreshold, -1, func(start, end int) {
		for j := start; j < end; j++ {
			desc.Stats[j], errs[j] = describeColumn(mat.Col(nil, j, f.data))
		}
	})
	for j, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "describe column %q", f.columns[j])
		}
	}
	return desc, nil
}

func describeColumn(values []float64) (ColumnStats, error) {
	data := stats.Float64Data(values)
	var s ColumnStats
	var err error
	s.Count = float64(data.Len())
	if s.Mean, err = stats.Mean(data); err != nil {
		return s, err
	}
	s.Std = math.NaN()
	if data.Len() > 1 {
		if s.Std, err = stats.StandardDeviationSample(data); err != nil {
			return s, err
		}
	}
	if s.Min, err = stats.Min(data); err != nil {
		return s, err
	}
	if s.Max, err = stats.Max(data); err != nil {
		return s, err
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	s.Q25 = Quantile(sorted, 0.25)
	s.Q50 = Quantile(sorted, 0.50)
	s.Q75 = Quantile(sorted, 0.75)
	return s, nil
}

// Quantile returns the q-th quantile of sorted data by linear interpolation
// between the closest ranks: h = (n-1)q, result = x[⌊h⌋] + (h-⌊h⌋)(x[⌊h⌋+1]-x[⌊h⌋]).
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	h := float64(n-1) * q
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// ValueCount is one distinct value and its frequency.
type ValueCount struct {
	Value float64
	Count int
}

// ValueCounts lists the distinct values of a column.
type ValueCounts struct {
	Column string
	Counts []ValueCount
	Dtype  string
}

// ValueCounts counts distinct values of a column, most frequent first.
// Ties keep ascending value order.
func (f *Frame) ValueCounts(name string) (*ValueCounts, error) {
	j, err := f.columnIndex(name)
	if err != nil {
		return nil, err
	}
	counts := make(map[float64]int)
	rows := f.NRows()
	for i := 0; i < rows; i++ {
		counts[f.data.At(i, j)]++
	}
	out := &ValueCounts{Column: name, Dtype: f.dtype(j), Counts: make([]ValueCount, 0, len(counts))}
	for v, c := range counts {
		out.Counts = append(out.Counts, ValueCount{Value: v, Count: c})
	}
	sort.Slice(out.Counts, func(a, b int) bool {
		if out.Counts[a].Count != out.Counts[b].Count {
			return out.Counts[a].Count > out.Counts[b].Count
		}
		return out.Counts[a].Value < out.Counts[b].Value
	})
	return out, nil
}

// Correlation is a Pearson correlation matrix with its column labels.
type Correlation struct {
	Columns []string
	Matrix  *mat.SymDense
}

// Corr computes pairwise Pearson correlations between all columns.
// Every entry involving a constant column is NaN.
func (f *Frame) Corr() (*Correlation, error) {
	rows, cols := f.Shape()
	if rows < 2 {
		return nil, errors.NewValueError("dataset.Corr", "at least two rows are required")
	}
	corr := mat.NewSymDense(cols, nil)
	stat.CorrelationMatrix(corr, f.data, nil)
	// CorrelationMatrix は分散 0 の列でも対角を 1 にするので行と列ごと NaN にする
	for j := 0; j < cols; j++ {
		_, variance := stat.PopMeanVariance(mat.Col(nil, j, f.data), nil)
		if variance > 0 {
			corr.SetSym(j, j, 1)
			continue
		}
		for k := 0; k < cols; k++ {
			corr.SetSym(j, k, math.NaN())
		}
	}
	return &Correlation{Columns: f.Columns(), Matrix: corr}, nil
}

// At returns the correlation between two named columns.
func (c *Correlation) At(a, b string) (float64, error) {
	i, j := -1, -1
	for k, name := range c.Columns {
		if name == a {
			i = k
		}
		if name == b {
			j = k
		}
	}
	if i < 0 || j < 0 {
		return 0, errors.Wrapf(errors.ErrUnknownColumn, "correlation: %q, %q", a, b)
	}
	return c.Matrix.At(i, j), nil
}
