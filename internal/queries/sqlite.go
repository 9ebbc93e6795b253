package queries

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	_ "modernc.org/sqlite"
)

// Open opens the SQLite database at path and checks the connection.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

// Run executes query and returns its rows as a frame. Columns holding only
// integers become Int columns, columns holding only numbers become Float
// columns and everything else is a String column. NULL is a missing value.
func Run(ctx context.Context, db *sql.DB, query string) (dataframe.DataFrame, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read columns: %w", err)
	}
	cols := make([][]any, len(names))
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return dataframe.DataFrame{}, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range vals {
			cols[i] = append(cols[i], v)
		}
	}
	if err := rows.Err(); err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read rows: %w", err)
	}

	out := make([]series.Series, len(names))
	for i, name := range names {
		out[i] = toSeries(name, cols[i])
	}
	df := dataframe.New(out...)
	if df.Err != nil {
		return df, fmt.Errorf("build frame: %w", df.Err)
	}
	return df, nil
}

func toSeries(name string, vals []any) series.Series {
	allInt, allNum := true, true
	for _, v := range vals {
		switch v.(type) {
		case nil:
		case int64:
		case float64:
			allInt = false
		default:
			allInt, allNum = false, false
		}
	}
	switch {
	case allInt && len(vals) > 0:
		recs := make([]string, len(vals))
		for i, v := range vals {
			if v == nil {
				recs[i] = "NaN"
				continue
			}
			recs[i] = strconv.FormatInt(v.(int64), 10)
		}
		return series.New(recs, series.Int, name)
	case allNum && len(vals) > 0:
		fs := make([]float64, len(vals))
		for i, v := range vals {
			switch t := v.(type) {
			case int64:
				fs[i] = float64(t)
			case float64:
				fs[i] = t
			default:
				fs[i] = math.NaN()
			}
		}
		return series.New(fs, series.Float, name)
	}
	recs := make([]string, len(vals))
	for i, v := range vals {
		switch t := v.(type) {
		case nil:
			recs[i] = "NaN"
		case []byte:
			recs[i] = string(t)
		case string:
			recs[i] = t
		case time.Time:
			recs[i] = t.Format("2006-01-02")
		default:
			recs[i] = fmt.Sprint(t)
		}
	}
	return series.New(recs, series.String, name)
}
