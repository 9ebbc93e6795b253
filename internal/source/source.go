// Package source loads KPI datasets from CSV and Excel files and writes
// result frames back out.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KaramelBytes/geopower/internal/frame"
	"github.com/KaramelBytes/geopower/internal/utils"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrDuplicateKey      = errors.New("duplicate date and region")
)

func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}

// LoadCSV reads a CSV (or TSV) file with a header row. Column types are
// inferred.
func LoadCSV(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	df := dataframe.ReadCSV(f, dataframe.WithDelimiter(sniffDelimiter(path)))
	if df.Err != nil {
		return df, fmt.Errorf("read csv %s: %w", path, df.Err)
	}
	return df, nil
}

// LoadXLSX reads one sheet of an Excel workbook. The first row is the
// header. An empty sheet name selects the first sheet.
func LoadXLSX(path, sheet string) (dataframe.DataFrame, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return dataframe.DataFrame{}, fmt.Errorf("%s has no sheets", path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return dataframe.DataFrame{}, fmt.Errorf("sheet %q is empty", sheet)
	}
	width := len(rows[0])
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		if len(r) == 0 {
			continue
		}
		// trailing empty cells are not returned
		rec := make([]string, width)
		for i := 0; i < width && i < len(r); i++ {
			rec[i] = r[i]
		}
		for i := len(r); i < width; i++ {
			rec[i] = "NaN"
		}
		records = append(records, rec)
	}
	df := dataframe.LoadRecords(records, dataframe.HasHeader(true))
	if df.Err != nil {
		return df, fmt.Errorf("load sheet %q: %w", sheet, df.Err)
	}
	return df, nil
}

// Load dispatches on the file extension: .csv and .tsv are read as text,
// .xlsx through LoadXLSX with its first sheet.
func Load(path string) (dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv":
		return LoadCSV(path)
	case ".xlsx", ".xlsm":
		return LoadXLSX(path, "")
	}
	return dataframe.DataFrame{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Pivot turns a long frame with one row per date and region into a wide
// panel: dateCol followed by one column per region in sorted order. Rows are
// sorted by date and missing cells hold NaN.
func Pivot(long dataframe.DataFrame, dateCol, regionCol, valueCol string) (dataframe.DataFrame, error) {
	for _, c := range []string{dateCol, regionCol, valueCol} {
		if !frame.HasColumn(long, c) {
			return long, fmt.Errorf("%w: %q", frame.ErrColumnNotFound, c)
		}
	}
	dates, err := frame.DateColumn(long, dateCol)
	if err != nil {
		return long, err
	}
	regions := long.Col(regionCol).Records()
	values := long.Col(valueCol).Float()

	type key struct {
		date   string
		region string
	}
	cells := make(map[key]float64, len(dates))
	dateSet := map[string]bool{}
	regionSet := map[string]bool{}
	for i, d := range dates {
		k := key{frame.FormatDate(d), regions[i]}
		if _, dup := cells[k]; dup {
			return long, fmt.Errorf("%w: %s / %s", ErrDuplicateKey, k.date, k.region)
		}
		cells[k] = values[i]
		dateSet[k.date] = true
		regionSet[k.region] = true
	}
	dateKeys := sortedKeys(dateSet)
	regionKeys := sortedKeys(regionSet)

	cols := []series.Series{series.New(dateKeys, series.String, dateCol)}
	for _, r := range regionKeys {
		vals := make([]float64, len(dateKeys))
		for i, d := range dateKeys {
			v, ok := cells[key{d, r}]
			if !ok {
				v = math.NaN()
			}
			vals[i] = v
		}
		cols = append(cols, series.New(vals, series.Float, r))
	}
	wide := dataframe.New(cols...)
	if wide.Err != nil {
		return long, fmt.Errorf("build panel: %w", wide.Err)
	}
	return wide, nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// WriteCSV writes df with a header row.
func WriteCSV(df dataframe.DataFrame, path string) error {
	var buf bytes.Buffer
	if err := df.WriteCSV(&buf); err != nil {
		return fmt.Errorf("encode csv: %w", err)
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

// WriteXLSX writes df to a new workbook with a single sheet. Numeric cells
// are stored as numbers and missing values are left empty.
func WriteXLSX(df dataframe.DataFrame, path, sheet string) error {
	if sheet == "" {
		sheet = "Sheet1"
	}
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	names := df.Names()
	header := make([]interface{}, len(names))
	for i, n := range names {
		header[i] = n
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	cols := make([]series.Series, len(names))
	for i, n := range names {
		cols[i] = df.Col(n)
	}
	for r := 0; r < df.Nrow(); r++ {
		row := make([]interface{}, len(cols))
		for c, s := range cols {
			row[c] = cellValue(s, r)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", r+1, err)
		}
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save xlsx: %w", err)
	}
	return nil
}

func cellValue(s series.Series, row int) interface{} {
	e := s.Elem(row)
	if e.IsNA() {
		return nil
	}
	switch s.Type() {
	case series.Int:
		v, err := e.Int()
		if err != nil {
			return nil
		}
		return v
	case series.Float:
		v := e.Float()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	case series.Bool:
		v, err := e.Bool()
		if err != nil {
			return e.String()
		}
		return v
	}
	return e.String()
}
