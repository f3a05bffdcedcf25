package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/pkg/log"
)

// Load reads a CSV or XLSX file, choosing the reader by extension. XLSX
// files are read from their first sheet.
func Load(path string) (*Frame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return LoadXLSX(path, "")
	case ".csv", ".txt", "":
		return LoadCSV(path)
	default:
		return nil, errors.NewDataError(path, 0, "", "unsupported file type "+filepath.Ext(path))
	}
}

// LoadCSV reads a comma separated file with a header row.
func LoadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()
	return ReadCSV(file, path)
}

// ReadCSV parses CSV content from r. source names the input in errors.
func ReadCSV(r io.Reader, source string) (*Frame, error) {
	start := time.Now()
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	// 列数の検査は parseRecords で行番号付きのエラーにする
	reader.FieldsPerRecord = -1

	var rows [][]string
	var lines []int
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, errors.NewDataError(source, perr.Line, "", perr.Err.Error())
			}
			return nil, errors.Wrapf(err, "read %s", source)
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, record)
		lines = append(lines, line)
	}

	frame, err := parseRecords(source, rows, lines)
	if err != nil {
		return nil, err
	}
	logLoaded(frame, "csv", start)
	return frame, nil
}

// LoadXLSX reads the given sheet of an Excel workbook, or the first sheet
// when sheet is empty.
func LoadXLSX(path, sheet string) (*Frame, error) {
	start := time.Now()
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.NewDataError(path, 0, "", "workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %q of %s", sheet, path)
	}

	// GetRows は末尾の空セルを切り詰めるので、ヘッダー幅まで補う
	if len(rows) > 0 {
		width := len(rows[0])
		for i := 1; i < len(rows); i++ {
			if n := len(rows[i]); n > 0 && n < width {
				rows[i] = append(rows[i], make([]string, width-n)...)
			}
		}
	}

	frame, err := parseRecords(path, rows, nil)
	if err != nil {
		return nil, err
	}
	logLoaded(frame, "xlsx", start)
	return frame, nil
}

// parseRecords converts raw string rows (header first) into a Frame.
// Row numbers in errors are 1-based file rows, so the first data row is 2.
// fileLines holds the file line of each row; nil means row i is line i+1.
func parseRecords(source string, rows [][]string, fileLines []int) (*Frame, error) {
	// 空行は読み飛ばす
	records := rows[:0:0]
	lines := make([]int, 0, len(rows))
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		records = append(records, row)
		if fileLines != nil {
			lines = append(lines, fileLines[i])
		} else {
			lines = append(lines, i+1)
		}
	}
	if len(records) == 0 {
		return nil, errors.NewDataError(source, 0, "", "file is empty")
	}

	header := make([]string, len(records[0]))
	for j, h := range records[0] {
		header[j] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	if len(records) == 1 {
		return nil, errors.NewDataError(source, 0, "", "file has a header but no data rows")
	}

	width := len(header)
	data := mat.NewDense(len(records)-1, width, nil)
	for i, rec := range records[1:] {
		line := lines[i+1]
		if len(rec) != width {
			return nil, errors.NewDataError(source, line, "",
				"expected "+strconv.Itoa(width)+" fields, got "+strconv.Itoa(len(rec)))
		}
		for j, cell := range rec {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				return nil, errors.NewDataError(source, line, header[j], "missing value")
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.NewDataError(source, line, header[j], "cannot parse "+strconv.Quote(cell)+" as a number")
			}
			data.Set(i, j, v)
		}
	}
	return newFrame(source, header, data)
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func logLoaded(f *Frame, format string, start time.Time) {
	rows, cols := f.Shape()
	log.GetLoggerWithName("dataset").Debug("dataset loaded",
		log.PhaseKey, log.PhaseLoad,
		log.SourceKey, f.source,
		"format", format,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
}
