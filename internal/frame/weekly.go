package frame

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Aggregation names a reduction applied to a column within each week.
type Aggregation string

const (
	Sum    Aggregation = "sum"
	Mean   Aggregation = "mean"
	Median Aggregation = "median"
	Min    Aggregation = "min"
	Max    Aggregation = "max"
	Std    Aggregation = "std"
	Count  Aggregation = "count"
)

// ParseAggregation maps a name such as "sum" or "MEAN" to an Aggregation.
func ParseAggregation(s string) (Aggregation, error) {
	a := Aggregation(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case Sum, Mean, Median, Min, Max, Std, Count:
		return a, nil
	}
	return "", fmt.Errorf("unsupported aggregation %q (use sum|mean|median|min|max|std|count)", s)
}

// WeeklyOptions controls AggregateWeekly.
type WeeklyOptions struct {
	// WeekStartsOn names the first day of the week. Only "Monday" is
	// supported; empty means Monday.
	WeekStartsOn string
	// KeepIncompleteWeeks keeps weeks with fewer than 7 days. By default
	// they are dropped.
	KeepIncompleteWeeks bool
}

// WeekStart returns the first day of the week containing t. Only weeks
// starting on Monday are supported.
func WeekStart(t time.Time, startsOn time.Weekday) (time.Time, error) {
	if startsOn != time.Monday {
		return time.Time{}, fmt.Errorf("only weeks starting on Monday are supported, got %s", startsOn)
	}
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset), nil
}

func parseWeekday(s string) (time.Weekday, error) {
	if s == "" {
		return time.Monday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

type weekBucket struct {
	start time.Time
	rows  []int
}

// AggregateWeekly aggregates daily data of df into weeks. colDate must hold
// one row per day with no gaps and no duplicates. aggs maps column names to
// reductions; when empty every numeric column is summed. The returned frame
// has colDate set to the week start followed by the aggregated columns, and
// every date in it is a Monday.
func AggregateWeekly(df dataframe.DataFrame, colDate string, aggs map[string]Aggregation, opt WeeklyOptions) (dataframe.DataFrame, error) {
	startsOn, err := parseWeekday(opt.WeekStartsOn)
	if err != nil {
		return df, err
	}
	dates, err := DateColumn(df, colDate)
	if err != nil {
		return df, err
	}
	if err := CheckAllDates(dates, 1, true); err != nil {
		return df, fmt.Errorf("weekly aggregation needs daily data: %w", err)
	}

	targets, err := aggregationTargets(df, colDate, aggs)
	if err != nil {
		return df, err
	}

	buckets := map[time.Time]*weekBucket{}
	for i, d := range dates {
		ws, err := WeekStart(d, startsOn)
		if err != nil {
			return df, err
		}
		b := buckets[ws]
		if b == nil {
			b = &weekBucket{start: ws}
			buckets[ws] = b
		}
		b.rows = append(b.rows, i)
	}
	weeks := make([]*weekBucket, 0, len(buckets))
	for _, b := range buckets {
		if len(b.rows) < 7 && !opt.KeepIncompleteWeeks {
			continue
		}
		weeks = append(weeks, b)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].start.Before(weeks[j].start) })

	starts := make([]string, len(weeks))
	for i, w := range weeks {
		if w.start.Weekday() != startsOn {
			return df, fmt.Errorf("week %s does not start on %s", FormatDate(w.start), startsOn)
		}
		starts[i] = FormatDate(w.start)
	}
	cols := []series.Series{series.New(starts, series.String, colDate)}
	for _, t := range targets {
		vals := df.Col(t.name).Float()
		if t.agg == Count {
			counts := make([]int, len(weeks))
			for i, w := range weeks {
				counts[i] = len(pick(vals, w.rows))
			}
			cols = append(cols, series.New(counts, series.Int, t.name))
			continue
		}
		out := make([]float64, len(weeks))
		for i, w := range weeks {
			out[i] = reduce(t.agg, pick(vals, w.rows))
		}
		cols = append(cols, series.New(out, series.Float, t.name))
	}
	res := dataframe.New(cols...)
	if res.Err != nil {
		return df, fmt.Errorf("build weekly frame: %w", res.Err)
	}
	return res, nil
}

type aggTarget struct {
	name string
	agg  Aggregation
}

func aggregationTargets(df dataframe.DataFrame, colDate string, aggs map[string]Aggregation) ([]aggTarget, error) {
	var out []aggTarget
	if len(aggs) == 0 {
		types := df.Types()
		for i, name := range df.Names() {
			if name == colDate {
				continue
			}
			if types[i] == series.Float || types[i] == series.Int {
				out = append(out, aggTarget{name: name, agg: Sum})
			}
		}
		return out, nil
	}
	for col := range aggs {
		if !HasColumn(df, col) {
			return nil, fmt.Errorf("%w: aggregation column %q", ErrColumnNotFound, col)
		}
		if col == colDate {
			return nil, fmt.Errorf("cannot aggregate the date column %q", col)
		}
	}
	// keep frame order so the output is deterministic
	for _, name := range df.Names() {
		if a, ok := aggs[name]; ok {
			out = append(out, aggTarget{name: name, agg: a})
		}
	}
	return out, nil
}

// pick returns the non-missing values of vals at rows.
func pick(vals []float64, rows []int) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		if !math.IsNaN(vals[r]) {
			out = append(out, vals[r])
		}
	}
	return out
}

func reduce(a Aggregation, x []float64) float64 {
	if a == Sum {
		return floats.Sum(x)
	}
	if len(x) == 0 {
		return math.NaN()
	}
	switch a {
	case Mean:
		return stat.Mean(x, nil)
	case Median:
		return MedianOf(x)
	case Min:
		return floats.Min(x)
	case Max:
		return floats.Max(x)
	case Std:
		if len(x) < 2 {
			return math.NaN()
		}
		return stat.StdDev(x, nil)
	}
	return math.NaN()
}

// MedianOf returns the median of x, averaging the two middle values when
// len(x) is even. x is not modified. It returns NaN for an empty slice.
func MedianOf(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
