// Package dataset holds tabular numeric data loaded from CSV or XLSX files
// and the exploratory summaries printed before modelling: head, info,
// describe, value counts and the Pearson correlation matrix.
package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// Frame is an ordered set of named float64 columns backed by a dense matrix.
// Rows are samples. A Frame is immutable once built; selections return
// new frames.
type Frame struct {
	source  string
	columns []string
	index   map[string]int
	data    *mat.Dense
}

// NewFrame builds a frame from column names and an n×len(columns) matrix.
// The matrix is not copied.
func NewFrame(columns []string, data *mat.Dense) (*Frame, error) {
	return newFrame("frame", columns, data)
}

func newFrame(source string, columns []string, data *mat.Dense) (*Frame, error) {
	if len(columns) == 0 {
		return nil, errors.NewDataError(source, 0, "", "no columns")
	}
	if data == nil {
		return nil, errors.NewDataError(source, 0, "", "no data rows")
	}
	if _, c := data.Dims(); c != len(columns) {
		return nil, errors.NewDimensionError("dataset.NewFrame", len(columns), c, 1)
	}
	index := make(map[string]int, len(columns))
	for j, name := range columns {
		if name == "" {
			return nil, errors.NewDataError(source, 0, "", fmt.Sprintf("column %d has an empty name", j+1))
		}
		if _, dup := index[name]; dup {
			return nil, errors.NewDataError(source, 0, name, "duplicate column name")
		}
		index[name] = j
	}
	return &Frame{
		source:  source,
		columns: append([]string(nil), columns...),
		index:   index,
		data:    data,
	}, nil
}

// Source names where the frame was loaded from.
func (f *Frame) Source() string { return f.source }

// Columns returns a copy of the column names in order.
func (f *Frame) Columns() []string { return append([]string(nil), f.columns...) }

// Shape returns (rows, columns).
func (f *Frame) Shape() (int, int) { return f.data.Dims() }

// NRows returns the number of rows.
func (f *Frame) NRows() int {
	r, _ := f.data.Dims()
	return r
}

// Matrix returns the underlying matrix. Callers must not modify it.
func (f *Frame) Matrix() mat.Matrix { return f.data }

// Dense returns a copy of the data.
func (f *Frame) Dense() *mat.Dense { return mat.DenseCopyOf(f.data) }

// HasColumn reports whether name is a column of the frame.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

func (f *Frame) columnIndex(name string) (int, error) {
	j, ok := f.index[name]
	if !ok {
		return 0, errors.Wrapf(errors.ErrUnknownColumn, "%s: %q", f.source, name)
	}
	return j, nil
}

// Column returns a copy of the named column.
func (f *Frame) Column(name string) ([]float64, error) {
	j, err := f.columnIndex(name)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, j, f.data), nil
}

// Drop returns a frame without the named columns.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	drop := make(map[int]bool, len(names))
	for _, name := range names {
		j, err := f.columnIndex(name)
		if err != nil {
			return nil, err
		}
		drop[j] = true
	}
	keep := make([]int, 0, len(f.columns)-len(drop))
	for j := range f.columns {
		if !drop[j] {
			keep = append(keep, j)
		}
	}
	return f.selectColumns(keep)
}

// Select returns a frame with only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	keep := make([]int, len(names))
	for i, name := range names {
		j, err := f.columnIndex(name)
		if err != nil {
			return nil, err
		}
		keep[i] = j
	}
	return f.selectColumns(keep)
}

func (f *Frame) selectColumns(keep []int) (*Frame, error) {
	if len(keep) == 0 {
		return nil, errors.NewDataError(f.source, 0, "", "selection leaves no columns")
	}
	rows := f.NRows()
	data := mat.NewDense(rows, len(keep), nil)
	cols := make([]string, len(keep))
	for k, j := range keep {
		cols[k] = f.columns[j]
		for i := 0; i < rows; i++ {
			data.Set(i, k, f.data.At(i, j))
		}
	}
	return newFrame(f.source, cols, data)
}

// XY splits the frame into the feature frame (every column except target)
// and the target as an n×1 label column.
func (f *Frame) XY(target string) (*Frame, *mat.Dense, error) {
	yCol, err := f.Column(target)
	if err != nil {
		return nil, nil, err
	}
	for i, v := range yCol {
		if v != math.Trunc(v) {
			return nil, nil, errors.NewDataError(f.source, i+2, target, "target values must be integer class labels")
		}
	}
	X, err := f.Drop(target)
	if err != nil {
		return nil, nil, err
	}
	return X, mat.NewDense(len(yCol), 1, yCol), nil
}

// Rows returns a frame holding the given rows in the given order.
func (f *Frame) Rows(idx []int) (*Frame, error) {
	n, c := f.Shape()
	if len(idx) == 0 {
		return nil, errors.NewDataError(f.source, 0, "", "row selection is empty")
	}
	data := mat.NewDense(len(idx), c, nil)
	for k, i := range idx {
		if i < 0 || i >= n {
			return nil, errors.NewValueError("dataset.Rows", fmt.Sprintf("row %d out of range [0, %d)", i, n))
		}
		data.SetRow(k, f.data.RawRowView(i))
	}
	return newFrame(f.source, f.columns, data)
}

// Head returns the first n rows (all rows when the frame is shorter).
// n <= 0 selects the default of 5.
func (f *Frame) Head(n int) *Frame {
	if n <= 0 {
		n = 5
	}
	if rows := f.NRows(); n > rows {
		n = rows
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	head, _ := f.Rows(idx)
	return head
}

// isIntegral reports whether every value in column j is a whole number,
// which is how the loader decides between the int64 and float64 dtypes.
func (f *Frame) isIntegral(j int) bool {
	rows := f.NRows()
	for i := 0; i < rows; i++ {
		v := f.data.At(i, j)
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Dtype returns "int64" when every value of the column is whole and
// "float64" otherwise.
func (f *Frame) Dtype(name string) (string, error) {
	j, err := f.columnIndex(name)
	if err != nil {
		return "", err
	}
	return f.dtype(j), nil
}

func (f *Frame) dtype(j int) string {
	if f.isIntegral(j) {
		return "int64"
	}
	return "float64"
}
