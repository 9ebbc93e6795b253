package frame

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/geopower/internal/logger"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.uber.org/zap"
)

// CheckAllDates verifies that dates cover every point of a grid with step
// freq days between their first and last value. With checkDuplicates it also
// rejects repeated dates.
func CheckAllDates(dates []time.Time, freq int, checkDuplicates bool) error {
	if freq <= 0 {
		return fmt.Errorf("%w: frequency must be positive, got %d", ErrFrequencyMismatch, freq)
	}
	if len(dates) == 0 {
		return fmt.Errorf("%w: no dates", ErrMissingDates)
	}
	first, last := dates[0], dates[0]
	unique := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
		unique[d] = struct{}{}
	}
	span := daysBetween(first, last)
	if span%freq != 0 {
		return fmt.Errorf("%w: first and last date are %d days apart, not a multiple of %d", ErrFrequencyMismatch, span, freq)
	}
	expected := span/freq + 1
	if len(unique) < expected {
		return fmt.Errorf("%w: found %d of %d dates", ErrMissingDates, len(unique), expected)
	}
	if checkDuplicates && len(dates) > expected {
		return fmt.Errorf("%w: %d values for %d dates", ErrDuplicateDates, len(dates), expected)
	}
	return nil
}

// AddUniqueDates completes the date grid of df.
//
// It checks that colTime has no duplicate dates (within each combination of
// the groupBy columns), builds every date from the first to the last one
// every freqDays days, and repeats that grid for every combination of the
// groupBy values. Original rows are joined back onto the grid; added rows
// hold missing values outside the key columns. A date that does not sit on
// the grid is an error, since keeping it would leave the frame off-grid.
//
// Output columns are colTime, the groupBy columns, then the remaining
// columns of df in their original order. Rows are sorted by date.
func AddUniqueDates(ctx context.Context, df dataframe.DataFrame, colTime string, freqDays int, groupBy []string) (dataframe.DataFrame, error) {
	if freqDays <= 0 {
		return df, fmt.Errorf("%w: freqDays must be positive, got %d", ErrFrequencyMismatch, freqDays)
	}
	dates, err := DateColumn(df, colTime)
	if err != nil {
		return df, err
	}
	if len(dates) == 0 {
		return df, fmt.Errorf("%w: %q is empty", ErrMissingDates, colTime)
	}
	if len(groupBy) > 0 {
		if err := checkGroupBy(df, colTime, groupBy); err != nil {
			return df, err
		}
	}

	groupCols := make([]series.Series, len(groupBy))
	for i, g := range groupBy {
		groupCols[i] = df.Col(g)
	}
	rowKey := func(d time.Time, row int) string {
		parts := make([]string, 0, len(groupCols)+1)
		parts = append(parts, FormatDate(d))
		for _, s := range groupCols {
			parts = append(parts, s.Elem(row).String())
		}
		return strings.Join(parts, "\x1f")
	}

	byKey := make(map[string]int, len(dates))
	first, last := dates[0], dates[0]
	for i, d := range dates {
		k := rowKey(d, i)
		if _, dup := byKey[k]; dup {
			return df, fmt.Errorf("%w: %s in %q", ErrDuplicateDates, FormatDate(d), colTime)
		}
		byKey[k] = i
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	for _, d := range dates {
		if daysBetween(first, d)%freqDays != 0 {
			return df, fmt.Errorf("%w: %s is not on a %d-day grid starting %s",
				ErrFrequencyMismatch, FormatDate(d), freqDays, FormatDate(first))
		}
	}

	levels := make([][]string, len(groupCols))
	for i, s := range groupCols {
		levels[i] = uniqueInOrder(s)
	}

	var gridDates []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, freqDays) {
		gridDates = append(gridDates, d)
	}

	var (
		outDates []string
		outLevel = make([][]string, len(groupCols))
		rows     []int
	)
	for _, d := range gridDates {
		eachCombination(levels, func(combo []string) {
			parts := append([]string{FormatDate(d)}, combo...)
			j, ok := byKey[strings.Join(parts, "\x1f")]
			if !ok {
				j = -1
			}
			outDates = append(outDates, FormatDate(d))
			for i, v := range combo {
				outLevel[i] = append(outLevel[i], v)
			}
			rows = append(rows, j)
		})
	}

	cols := []series.Series{series.New(outDates, series.String, colTime)}
	for i, s := range groupCols {
		cols = append(cols, series.New(outLevel[i], s.Type(), s.Name))
	}
	keys := map[string]bool{colTime: true}
	for _, g := range groupBy {
		keys[g] = true
	}
	for _, name := range df.Names() {
		if keys[name] {
			continue
		}
		cols = append(cols, take(df.Col(name), rows))
	}
	out := dataframe.New(cols...)
	if out.Err != nil {
		return df, fmt.Errorf("build date grid: %w", out.Err)
	}
	if added := len(rows) - len(dates); added > 0 {
		logger.Warn(ctx, "rows added to complete the date grid; new rows hold missing values",
			zap.String("column", colTime), zap.Int("added", added))
	}
	return out, nil
}

func checkGroupBy(df dataframe.DataFrame, colTime string, groupBy []string) error {
	seen := map[string]bool{}
	for _, g := range groupBy {
		if !HasColumn(df, g) {
			return fmt.Errorf("%w: group-by column %q", ErrColumnNotFound, g)
		}
		if g == colTime {
			return fmt.Errorf("group-by column %q is the date column", g)
		}
		seen[g] = true
	}
	// group-by columns must be a strict subset of the frame's columns
	if len(seen) >= df.Ncol() {
		return fmt.Errorf("group-by columns must be a strict subset of the frame columns")
	}
	return nil
}

func uniqueInOrder(s series.Series) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range s.Records() {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// eachCombination calls fn with every element of the cartesian product of
// levels, rightmost level varying fastest.
func eachCombination(levels [][]string, fn func([]string)) {
	combo := make([]string, len(levels))
	var rec func(int)
	rec = func(i int) {
		if i == len(levels) {
			fn(append([]string(nil), combo...))
			return
		}
		for _, v := range levels[i] {
			combo[i] = v
			rec(i + 1)
		}
	}
	rec(0)
}

// SortByDate returns df with rows ordered by the dates in col. The sort is stable.
func SortByDate(df dataframe.DataFrame, col string) (dataframe.DataFrame, error) {
	dates, err := DateColumn(df, col)
	if err != nil {
		return df, err
	}
	idx := make([]int, len(dates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return dates[idx[a]].Before(dates[idx[b]]) })
	cols := make([]series.Series, 0, df.Ncol())
	for _, name := range df.Names() {
		cols = append(cols, take(df.Col(name), idx))
	}
	return dataframe.New(cols...), nil
}
