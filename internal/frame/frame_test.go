package frame

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

func day(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func dailyDates(from string, n int) []string {
	start := day(from)
	out := make([]string, n)
	for i := range out {
		out[i] = FormatDate(start.AddDate(0, 0, i))
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalFloats(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if math.IsNaN(want[i]) {
			if !math.IsNaN(got[i]) {
				t.Fatalf("[%d] = %v, want NaN", i, got[i])
			}
			continue
		}
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSanitiseName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Impr.  A.", "impr_a"},
		{"price [$]", "price"},
		{"Sales-Total (EUR)", "sales_total_eur"},
		{"__North  West__", "north_west"},
		{"already_clean", "already_clean"},
		{"Q?", "q"},
	}
	for _, c := range cases {
		if got := SanitiseName(c.in); got != c.want {
			t.Errorf("SanitiseName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitiseHeaderIsIdempotent(t *testing.T) {
	df := dataframe.New(
		series.New([]int{1, 3}, series.Int, "Impr.  A."),
		series.New([]int{2, 4}, series.Int, "price [$]"),
	)
	once, err := SanitiseHeader(df)
	if err != nil {
		t.Fatalf("sanitise: %v", err)
	}
	if !equalStrings(once.Names(), []string{"impr_a", "price"}) {
		t.Fatalf("names = %v", once.Names())
	}
	twice, err := SanitiseHeader(once)
	if err != nil {
		t.Fatalf("sanitise twice: %v", err)
	}
	if !equalStrings(twice.Names(), once.Names()) {
		t.Fatalf("not idempotent: %v vs %v", twice.Names(), once.Names())
	}
	if !equalStrings(df.Names(), []string{"Impr.  A.", "price [$]"}) {
		t.Fatalf("input frame was modified: %v", df.Names())
	}
}

func TestSanitiseHeaderCollision(t *testing.T) {
	df := dataframe.New(
		series.New([]int{1}, series.Int, "North West"),
		series.New([]int{2}, series.Int, "north-west"),
	)
	if _, err := SanitiseHeader(df); !errors.Is(err, ErrDuplicateColumns) {
		t.Fatalf("err = %v, want ErrDuplicateColumns", err)
	}
}

func TestAddUniqueDates(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"2022-03-05", "2022-03-09"}, series.String, "dates"),
		series.New([]float64{1, 3}, series.Float, "a"),
	)
	out, err := AddUniqueDates(context.Background(), df, "dates", 2, nil)
	if err != nil {
		t.Fatalf("AddUniqueDates: %v", err)
	}
	if !equalStrings(out.Col("dates").Records(), []string{"2022-03-05", "2022-03-07", "2022-03-09"}) {
		t.Fatalf("dates = %v", out.Col("dates").Records())
	}
	equalFloats(t, out.Col("a").Float(), []float64{1, math.NaN(), 3})
}

func TestAddUniqueDatesGroupBy(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"2022-03-05", "2022-03-07", "2022-03-05"}, series.String, "dates"),
		series.New([]int{1, 3, 2}, series.Int, "sales"),
		series.New([]string{"car", "car", "plane"}, series.String, "product"),
	)
	out, err := AddUniqueDates(context.Background(), df, "dates", 2, []string{"product"})
	if err != nil {
		t.Fatalf("AddUniqueDates: %v", err)
	}
	if !equalStrings(out.Names(), []string{"dates", "product", "sales"}) {
		t.Fatalf("names = %v", out.Names())
	}
	if !equalStrings(out.Col("dates").Records(), []string{"2022-03-05", "2022-03-05", "2022-03-07", "2022-03-07"}) {
		t.Fatalf("dates = %v", out.Col("dates").Records())
	}
	if !equalStrings(out.Col("product").Records(), []string{"car", "plane", "car", "plane"}) {
		t.Fatalf("product = %v", out.Col("product").Records())
	}
	equalFloats(t, out.Col("sales").Float(), []float64{1, 2, 3, math.NaN()})
	if !out.Col("sales").Elem(3).IsNA() {
		t.Fatalf("added row should be missing")
	}
}

func TestAddUniqueDatesErrors(t *testing.T) {
	ctx := context.Background()
	dup := dataframe.New(
		series.New([]string{"2022-03-05", "2022-03-05"}, series.String, "dates"),
		series.New([]float64{1, 2}, series.Float, "a"),
	)
	if _, err := AddUniqueDates(ctx, dup, "dates", 1, nil); !errors.Is(err, ErrDuplicateDates) {
		t.Fatalf("duplicate: err = %v", err)
	}

	offGrid := dataframe.New(
		series.New([]string{"2022-03-05", "2022-03-08"}, series.String, "dates"),
		series.New([]float64{1, 2}, series.Float, "a"),
	)
	if _, err := AddUniqueDates(ctx, offGrid, "dates", 2, nil); !errors.Is(err, ErrFrequencyMismatch) {
		t.Fatalf("off grid: err = %v", err)
	}

	if _, err := AddUniqueDates(ctx, offGrid, "dates", 1, []string{"nope"}); !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("unknown group: err = %v", err)
	}
	if _, err := AddUniqueDates(ctx, offGrid, "when", 1, nil); !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("unknown date column: err = %v", err)
	}
}

func TestCheckAllDates(t *testing.T) {
	weekly := []time.Time{day("2024-01-01"), day("2024-01-08"), day("2024-01-15")}
	cases := []struct {
		name  string
		dates []time.Time
		freq  int
		dups  bool
		want  error
	}{
		{"daily complete", []time.Time{day("2024-01-01"), day("2024-01-02"), day("2024-01-03")}, 1, true, nil},
		{"weekly complete", weekly, 7, true, nil},
		{"weekly span mismatch", weekly, 5, true, ErrFrequencyMismatch},
		{"gap", []time.Time{day("2024-01-01"), day("2024-01-03")}, 1, true, ErrMissingDates},
		{"duplicate", []time.Time{day("2024-01-01"), day("2024-01-02"), day("2024-01-02")}, 1, true, ErrDuplicateDates},
		{"duplicate allowed", []time.Time{day("2024-01-01"), day("2024-01-02"), day("2024-01-02")}, 1, false, nil},
		{"empty", nil, 1, true, ErrMissingDates},
	}
	for _, c := range cases {
		err := CheckAllDates(c.dates, c.freq, c.dups)
		if c.want == nil && err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
		if c.want != nil && !errors.Is(err, c.want) {
			t.Errorf("%s: err = %v, want %v", c.name, err, c.want)
		}
	}
}

func TestWeekStart(t *testing.T) {
	cases := map[string]string{
		"2024-01-01": "2024-01-01",
		"2024-01-03": "2024-01-01",
		"2024-01-07": "2024-01-01",
		"2024-01-08": "2024-01-08",
	}
	for in, want := range cases {
		got, err := WeekStart(day(in), time.Monday)
		if err != nil {
			t.Fatalf("WeekStart(%s): %v", in, err)
		}
		if FormatDate(got) != want {
			t.Errorf("WeekStart(%s) = %s, want %s", in, FormatDate(got), want)
		}
	}
	if _, err := WeekStart(day("2024-01-03"), time.Sunday); err == nil {
		t.Fatalf("expected error for Sunday-based weeks")
	}
}

func weeklyFixture() dataframe.DataFrame {
	// Saturday 2023-12-30 through Wednesday 2024-01-17
	dates := dailyDates("2023-12-30", 19)
	sales := make([]float64, len(dates))
	visits := make([]int, len(dates))
	for i := range dates {
		sales[i] = float64(i + 1)
		visits[i] = 10
	}
	return dataframe.New(
		series.New(dates, series.String, "date"),
		series.New(sales, series.Float, "sales"),
		series.New(visits, series.Int, "visits"),
	)
}

func TestAggregateWeeklyDropsIncompleteWeeks(t *testing.T) {
	out, err := AggregateWeekly(weeklyFixture(), "date", map[string]Aggregation{"sales": Sum, "visits": Mean}, WeeklyOptions{})
	if err != nil {
		t.Fatalf("AggregateWeekly: %v", err)
	}
	if !equalStrings(out.Names(), []string{"date", "sales", "visits"}) {
		t.Fatalf("names = %v", out.Names())
	}
	if !equalStrings(out.Col("date").Records(), []string{"2024-01-01", "2024-01-08"}) {
		t.Fatalf("weeks = %v", out.Col("date").Records())
	}
	equalFloats(t, out.Col("sales").Float(), []float64{42, 91})
	equalFloats(t, out.Col("visits").Float(), []float64{10, 10})

	weeks, err := DateColumn(out, "date")
	if err != nil {
		t.Fatalf("DateColumn: %v", err)
	}
	for _, w := range weeks {
		if w.Weekday() != time.Monday {
			t.Fatalf("%s is not a Monday", FormatDate(w))
		}
	}
}

func TestAggregateWeeklyKeepIncompleteAndDefaults(t *testing.T) {
	out, err := AggregateWeekly(weeklyFixture(), "date", nil, WeeklyOptions{KeepIncompleteWeeks: true})
	if err != nil {
		t.Fatalf("AggregateWeekly: %v", err)
	}
	if !equalStrings(out.Col("date").Records(), []string{"2023-12-25", "2024-01-01", "2024-01-08", "2024-01-15"}) {
		t.Fatalf("weeks = %v", out.Col("date").Records())
	}
	equalFloats(t, out.Col("sales").Float(), []float64{3, 42, 91, 54})
	equalFloats(t, out.Col("visits").Float(), []float64{20, 70, 70, 30})
}

func TestAggregateWeeklyRejectsGaps(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"2024-01-01", "2024-01-02", "2024-01-04"}, series.String, "date"),
		series.New([]float64{1, 2, 3}, series.Float, "sales"),
	)
	if _, err := AggregateWeekly(df, "date", nil, WeeklyOptions{}); !errors.Is(err, ErrMissingDates) {
		t.Fatalf("err = %v, want ErrMissingDates", err)
	}
	if _, err := AggregateWeekly(weeklyFixture(), "date", nil, WeeklyOptions{WeekStartsOn: "Sunday"}); err == nil {
		t.Fatalf("expected error for Sunday weeks")
	}
}

func TestReduce(t *testing.T) {
	x := []float64{4, 1, 3, 2}
	cases := []struct {
		agg  Aggregation
		want float64
	}{
		{Sum, 10}, {Mean, 2.5}, {Median, 2.5}, {Min, 1}, {Max, 4},
		{Std, math.Sqrt(5.0 / 3.0)},
	}
	for _, c := range cases {
		if got := reduce(c.agg, x); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("%s = %v, want %v", c.agg, got, c.want)
		}
	}
	if _, err := ParseAggregation("MEAN"); err != nil {
		t.Fatalf("ParseAggregation: %v", err)
	}
	if _, err := ParseAggregation("mode"); err == nil {
		t.Fatalf("expected error for unknown aggregation")
	}
}

func TestSortByDate(t *testing.T) {
	df := dataframe.New(
		series.New([]string{"2024-01-03", "2024-01-01", "2024-01-02"}, series.String, "date"),
		series.New([]float64{3, 1, 2}, series.Float, "v"),
	)
	out, err := SortByDate(df, "date")
	if err != nil {
		t.Fatalf("SortByDate: %v", err)
	}
	equalFloats(t, out.Col("v").Float(), []float64{1, 2, 3})
}

func TestMedianOf(t *testing.T) {
	x := []float64{4, 1, 3, 2}
	if got := MedianOf(x); got != 2.5 {
		t.Fatalf("even median = %v, want 2.5", got)
	}
	if x[0] != 4 {
		t.Fatalf("input reordered: %v", x)
	}
	if got := MedianOf([]float64{100, 1, 3, 2, 4}); got != 3 {
		t.Fatalf("odd median = %v, want 3", got)
	}
	if !math.IsNaN(MedianOf(nil)) {
		t.Fatalf("empty median should be NaN")
	}
}
