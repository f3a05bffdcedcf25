package dataset

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

const sampleCSV = `age,chol,oldpeak,target
63,233,2.3,1
37,250,3.5,1
41,204,1.4,0
56,236,0.8,0
`

func sampleFrame(t *testing.T) *Frame {
	t.Helper()
	f, err := ReadCSV(strings.NewReader(sampleCSV), "heart.csv")
	require.NoError(t, err)
	return f
}

func requireDataError(t *testing.T, err error) *errors.DataError {
	t.Helper()
	require.Error(t, err)
	var derr *errors.DataError
	require.True(t, errors.As(err, &derr), "expected DataError, got %v", err)
	return derr
}

func TestReadCSV(t *testing.T) {
	f := sampleFrame(t)

	rows, cols := f.Shape()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 4, cols)
	assert.Equal(t, []string{"age", "chol", "oldpeak", "target"}, f.Columns())
	assert.Equal(t, "heart.csv", f.Source())

	age, err := f.Column("age")
	require.NoError(t, err)
	assert.Equal(t, []float64{63, 37, 41, 56}, age)

	dtype, err := f.Dtype("oldpeak")
	require.NoError(t, err)
	assert.Equal(t, "float64", dtype)
	dtype, err = f.Dtype("target")
	require.NoError(t, err)
	assert.Equal(t, "int64", dtype)
}

func TestReadCSVHeaderCleanup(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("\ufeffa, b\n1,2\n\n3,4\n"), "bom.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, f.Columns())
	assert.Equal(t, 2, f.NRows())
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		row    int
		column string
	}{
		{name: "empty file", input: "", row: 0},
		{name: "header only", input: "a,b\n", row: 0},
		{name: "ragged row", input: "a,b\n1,2\n3\n", row: 3},
		{name: "ragged row after blank line", input: "a,b\n1,2\n\n3\n", row: 4},
		{name: "unparseable cell", input: "a,b\n1,x\n", row: 2, column: "b"},
		{name: "missing cell", input: "a,b\n1,2\n,4\n", row: 3, column: "a"},
		{name: "nan cell", input: "a\nNaN\n", row: 2, column: "a"},
		{name: "duplicate column", input: "a,a\n1,2\n", row: 0, column: "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input), "bad.csv")
			derr := requireDataError(t, err)
			assert.Equal(t, "bad.csv", derr.Source)
			assert.Equal(t, tt.row, derr.Row)
			assert.Equal(t, tt.column, derr.Column)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("csv", func(t *testing.T) {
		path := filepath.Join(dir, "heart.csv")
		require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o600))
		f, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 4, f.NRows())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.csv"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "heart.json"))
		requireDataError(t, err)
	})
}

func writeWorkbook(t *testing.T, path string, rows [][]interface{}) {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, book.SetSheetRow("Sheet1", cell, &r))
	}
	require.NoError(t, book.SaveAs(path))
}

func TestLoadXLSX(t *testing.T) {
	dir := t.TempDir()

	t.Run("first sheet", func(t *testing.T) {
		path := filepath.Join(dir, "heart.xlsx")
		writeWorkbook(t, path, [][]interface{}{
			{"age", "oldpeak", "target"},
			{63, 2.3, 1},
			{37, 3.5, 0},
		})
		f, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"age", "oldpeak", "target"}, f.Columns())
		oldpeak, err := f.Column("oldpeak")
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{2.3, 3.5}, oldpeak, 1e-12)
	})

	t.Run("trailing empty cell", func(t *testing.T) {
		path := filepath.Join(dir, "short.xlsx")
		writeWorkbook(t, path, [][]interface{}{
			{"age", "target"},
			{63, 1},
			{37},
		})
		_, err := LoadXLSX(path, "")
		derr := requireDataError(t, err)
		assert.Equal(t, 3, derr.Row)
		assert.Equal(t, "target", derr.Column)
	})

	t.Run("unknown sheet", func(t *testing.T) {
		path := filepath.Join(dir, "sheet.xlsx")
		writeWorkbook(t, path, [][]interface{}{{"a"}, {1}})
		_, err := LoadXLSX(path, "Missing")
		assert.Error(t, err)
	})
}

func TestFrameSelection(t *testing.T) {
	f := sampleFrame(t)

	t.Run("XY", func(t *testing.T) {
		X, y, err := f.XY("target")
		require.NoError(t, err)
		assert.Equal(t, []string{"age", "chol", "oldpeak"}, X.Columns())
		assert.Equal(t, []float64{1, 1, 0, 0}, mat.Col(nil, 0, y))
		_, cols := f.Shape()
		assert.Equal(t, 4, cols, "source frame is untouched")
	})

	t.Run("XY unknown target", func(t *testing.T) {
		_, _, err := f.XY("num")
		assert.True(t, errors.Is(err, errors.ErrUnknownColumn))
	})

	t.Run("XY fractional target", func(t *testing.T) {
		_, _, err := f.XY("oldpeak")
		derr := requireDataError(t, err)
		assert.Equal(t, 2, derr.Row)
		assert.Equal(t, "oldpeak", derr.Column)
	})

	t.Run("Drop and Select", func(t *testing.T) {
		d, err := f.Drop("chol", "oldpeak")
		require.NoError(t, err)
		assert.Equal(t, []string{"age", "target"}, d.Columns())

		s, err := f.Select("target", "age")
		require.NoError(t, err)
		assert.Equal(t, []string{"target", "age"}, s.Columns())
		assert.Equal(t, []float64{1, 63}, mat.Row(nil, 0, s.Matrix()))

		_, err = f.Drop("age", "chol", "oldpeak", "target")
		requireDataError(t, err)
	})

	t.Run("Rows", func(t *testing.T) {
		r, err := f.Rows([]int{3, 0})
		require.NoError(t, err)
		age, _ := r.Column("age")
		assert.Equal(t, []float64{56, 63}, age)

		_, err = f.Rows([]int{4})
		var verr *errors.ValueError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("Head", func(t *testing.T) {
		assert.Equal(t, 2, f.Head(2).NRows())
		assert.Equal(t, 4, f.Head(10).NRows())
		assert.Equal(t, 4, f.Head(0).NRows())
	})
}

func TestNewFrame(t *testing.T) {
	_, err := NewFrame([]string{"a", "b"}, mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	_, err = NewFrame(nil, mat.NewDense(1, 1, nil))
	requireDataError(t, err)

	_, err = NewFrame([]string{"a", ""}, mat.NewDense(1, 2, nil))
	requireDataError(t, err)
}

func TestDescribe(t *testing.T) {
	f := sampleFrame(t)
	desc, err := f.Describe()
	require.NoError(t, err)
	require.Len(t, desc.Stats, 4)

	age := desc.Stats[0]
	assert.Equal(t, 4.0, age.Count)
	assert.InDelta(t, 49.25, age.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(452.75/3), age.Std, 1e-12)
	assert.Equal(t, 37.0, age.Min)
	assert.InDelta(t, 40.0, age.Q25, 1e-12)
	assert.InDelta(t, 48.5, age.Q50, 1e-12)
	assert.InDelta(t, 57.75, age.Q75, 1e-12)
	assert.Equal(t, 63.0, age.Max)

	out := desc.String()
	for _, label := range []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"} {
		assert.Contains(t, out, label)
	}
	assert.Contains(t, out, "49.250000")
}

func TestDescribeSingleRow(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("a\n5\n"), "one.csv")
	require.NoError(t, err)
	desc, err := f.Describe()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(desc.Stats[0].Std))
	assert.Equal(t, 5.0, desc.Stats[0].Q75)
	assert.Contains(t, desc.String(), "NaN")
}

func TestDescribeManyColumns(t *testing.T) {
	cols := make([]string, 20)
	data := mat.NewDense(3, 20, nil)
	for j := range cols {
		cols[j] = fmt.Sprintf("c%d", j)
		for i := 0; i < 3; i++ {
			data.Set(i, j, float64(j+i))
		}
	}
	f, err := NewFrame(cols, data)
	require.NoError(t, err)
	desc, err := f.Describe()
	require.NoError(t, err)
	for j, s := range desc.Stats {
		assert.InDelta(t, float64(j+1), s.Mean, 1e-12, "column %d", j)
		assert.InDelta(t, 1.0, s.Std, 1e-12, "column %d", j)
	}
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.0, Quantile(sorted, 0))
	assert.InDelta(t, 1.75, Quantile(sorted, 0.25), 1e-12)
	assert.InDelta(t, 2.5, Quantile(sorted, 0.5), 1e-12)
	assert.Equal(t, 4.0, Quantile(sorted, 1))
	assert.Equal(t, 7.0, Quantile([]float64{7}, 0.5))
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestValueCounts(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("target\n1\n0\n1\n2\n0\n1\n"), "t.csv")
	require.NoError(t, err)
	vc, err := f.ValueCounts("target")
	require.NoError(t, err)
	assert.Equal(t, []ValueCount{{Value: 1, Count: 3}, {Value: 0, Count: 2}, {Value: 2, Count: 1}}, vc.Counts)
	assert.Equal(t, "target\n1    3\n0    2\n2    1\nName: count, dtype: int64\n", vc.String())

	_, err = f.ValueCounts("sex")
	assert.True(t, errors.Is(err, errors.ErrUnknownColumn))
}

func TestValueCountsTiesAscending(t *testing.T) {
	f := sampleFrame(t)
	vc, err := f.ValueCounts("target")
	require.NoError(t, err)
	assert.Equal(t, []ValueCount{{Value: 0, Count: 2}, {Value: 1, Count: 2}}, vc.Counts)
}

func TestCorr(t *testing.T) {
	data := mat.NewDense(4, 4, []float64{
		1, 2, 4, 5,
		2, 4, 3, 5,
		3, 6, 2, 5,
		4, 8, 1, 5,
	})
	f, err := NewFrame([]string{"a", "b", "c", "d"}, data)
	require.NoError(t, err)

	corr, err := f.Corr()
	require.NoError(t, err)

	ab, err := corr.At("a", "b")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ab, 1e-12)
	ac, _ := corr.At("a", "c")
	assert.InDelta(t, -1.0, ac, 1e-12)
	aa, _ := corr.At("a", "a")
	assert.Equal(t, 1.0, aa)
	ad, _ := corr.At("a", "d")
	assert.True(t, math.IsNaN(ad))
	dd, _ := corr.At("d", "d")
	assert.True(t, math.IsNaN(dd))

	ba, _ := corr.At("b", "a")
	assert.Equal(t, ab, ba)

	_, err = corr.At("a", "z")
	assert.True(t, errors.Is(err, errors.ErrUnknownColumn))
	assert.Contains(t, corr.String(), "NaN")
}

func TestCorrConstantColumnIsNaN(t *testing.T) {
	f, err := NewFrame([]string{"a", "d"}, mat.NewDense(3, 2, []float64{
		1, 5,
		2, 5,
		3, 5,
	}))
	require.NoError(t, err)

	corr, err := f.Corr()
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		assert.True(t, math.IsNaN(corr.Matrix.At(1, i)), "row d, column %d", i)
		assert.True(t, math.IsNaN(corr.Matrix.At(i, 1)), "row %d, column d", i)
	}
	assert.Equal(t, 1.0, corr.Matrix.At(0, 0))
}

func TestCorrTooFewRows(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("a,b\n1,2\n"), "one.csv")
	require.NoError(t, err)
	_, err = f.Corr()
	var verr *errors.ValueError
	assert.True(t, errors.As(err, &verr))
}

func TestInfo(t *testing.T) {
	f := sampleFrame(t)
	info := f.Info()
	assert.Equal(t, 4, info.Rows)
	assert.Equal(t, 4*4*8+128, info.MemoryBytes)
	assert.Equal(t, ColumnInfo{Name: "oldpeak", NonNull: 4, Dtype: "float64"}, info.Columns[2])

	out := info.String()
	assert.Contains(t, out, "RangeIndex: 4 entries, 0 to 3")
	assert.Contains(t, out, "Data columns (total 4 columns):")
	assert.Contains(t, out, "4 non-null")
	assert.Contains(t, out, "dtypes: float64(1), int64(3)")
	assert.Contains(t, out, "memory usage: 256.0 bytes")
}

func TestInfoMemoryUnits(t *testing.T) {
	cols := make([]string, 14)
	for j := range cols {
		cols[j] = fmt.Sprintf("f%d", j)
	}
	f, err := NewFrame(cols, mat.NewDense(303, 14, nil))
	require.NoError(t, err)
	assert.Contains(t, f.Info().String(), "memory usage: 33.3 KB")
}

func TestFrameString(t *testing.T) {
	f, err := NewFrame([]string{"a", "b"}, mat.NewDense(2, 2, []float64{1, 0.5, 10, 1.25}))
	require.NoError(t, err)
	assert.Equal(t, "    a     b\n0   1  0.50\n1  10  1.25\n", f.String())
	assert.Equal(t, "(303, 14)", FormatShape(303, 14))
}

func TestRenderTableWraps(t *testing.T) {
	headers := make([]string, 10)
	cells := make([][]string, 10)
	for j := range headers {
		headers[j] = fmt.Sprintf("column_%03d", j)
		cells[j] = []string{"1"}
	}
	out := renderTable([]string{"0"}, headers, cells)
	blocks := strings.Split(strings.TrimSuffix(out, "\n"), "\n\n")
	require.Len(t, blocks, 2)
	assert.Contains(t, blocks[0], "column_005")
	assert.NotContains(t, blocks[0], "column_006")
	assert.Contains(t, blocks[1], "column_006")
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len(line), displayWidth)
	}
}
