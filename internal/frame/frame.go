// Package frame holds the dataframe helpers used to prepare region time
// series: header sanitization, date-grid completion and validation, and
// Monday-aligned weekly aggregation. Frames are gota DataFrames; dates live
// in a named column as ISO strings.
package frame

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// DateLayout is the layout used when dates are written back to a frame.
const DateLayout = "2006-01-02"

var (
	ErrColumnNotFound    = errors.New("column not found")
	ErrDuplicateColumns  = errors.New("columns with same name found")
	ErrDuplicateDates    = errors.New("duplicate dates found")
	ErrMissingDates      = errors.New("missing dates in series")
	ErrFrequencyMismatch = errors.New("dates do not match expected frequency")
	ErrInvalidDate       = errors.New("invalid date")
)

var dateLayouts = []string{
	DateLayout, time.RFC3339, "2006/01/02", "2006-01-02 15:04:05", "2006-01-02 15:04", "20060102",
}

// ParseDate parses s with the supported layouts and truncates it to the day, in UTC.
func ParseDate(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, v); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FormatDate renders t with DateLayout.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// DateColumn parses every value of column col as a date. Missing values are an error.
func DateColumn(df dataframe.DataFrame, col string) ([]time.Time, error) {
	s, err := column(df, col)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, s.Len())
	for i := 0; i < s.Len(); i++ {
		e := s.Elem(i)
		if e.IsNA() {
			return nil, fmt.Errorf("%w: row %d of %q is empty", ErrInvalidDate, i, col)
		}
		t, err := ParseDate(e.String())
		if err != nil {
			return nil, fmt.Errorf("row %d of %q: %w", i, col, err)
		}
		out[i] = t
	}
	return out, nil
}

// HasColumn reports whether df has a column called name.
func HasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

func column(df dataframe.DataFrame, name string) (series.Series, error) {
	if df.Err != nil {
		return series.Series{}, df.Err
	}
	if !HasColumn(df, name) {
		return series.Series{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return df.Col(name), nil
}

func daysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// take builds a copy of s holding the rows listed in idx. An index of -1
// produces a missing value.
func take(s series.Series, idx []int) series.Series {
	switch s.Type() {
	case series.Float:
		vals := s.Float()
		out := make([]float64, len(idx))
		for i, j := range idx {
			if j < 0 {
				out[i] = math.NaN()
				continue
			}
			out[i] = vals[j]
		}
		return series.New(out, series.Float, s.Name)
	default:
		out := make([]string, len(idx))
		for i, j := range idx {
			if j < 0 || s.Elem(j).IsNA() {
				out[i] = "NaN"
				continue
			}
			if s.Type() == series.Int {
				v, _ := s.Elem(j).Int()
				out[i] = strconv.Itoa(v)
				continue
			}
			out[i] = s.Elem(j).String()
		}
		return series.New(out, s.Type(), s.Name)
	}
}
