package queries

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"

	"github.com/KaramelBytes/geopower/internal/logger"
	"go.uber.org/zap"
)

//go:embed sql
var embedded embed.FS

// Library holds named SQL templates. Names of queries in sub-directories are
// slash separated, such as "profiles/age_bands".
type Library struct {
	queries map[string]string
}

// NewLibrary loads the queries shipped with the binary.
func NewLibrary(ctx context.Context) (*Library, error) {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		return nil, err
	}
	return LoadLibrary(ctx, sub, ".")
}

// LoadLibrary loads every SQL file below dir in fsys.
func LoadLibrary(ctx context.Context, fsys fs.FS, dir string) (*Library, error) {
	return loadLibrary(ctx, fsys, dir, DefaultDirOptions())
}

// LoadLibraryDir loads every SQL file below a directory on disk. With
// opts.OnErrorContinue, files that fail to load are logged and skipped.
func LoadLibraryDir(ctx context.Context, dir string, opts DirOptions) (*Library, error) {
	return loadLibrary(ctx, os.DirFS(dir), ".", opts)
}

func loadLibrary(ctx context.Context, fsys fs.FS, dir string, opts DirOptions) (*Library, error) {
	coll, failed, err := ReadFromDir(fsys, dir, "sql", opts)
	if err != nil {
		return nil, err
	}
	if len(failed) > 0 {
		logger.Warn(ctx, "queries skipped", zap.Strings("files", failed))
	}
	lib := &Library{queries: map[string]string{}}
	flatten("", coll, lib.queries)
	logger.Debug(ctx, "available queries", zap.Strings("names", lib.Names()))
	return lib, nil
}

func flatten(prefix string, coll Collection, out map[string]string) {
	for k, v := range coll {
		name := path.Join(prefix, k)
		switch t := v.(type) {
		case string:
			out[name] = t
		case Collection:
			flatten(name, t, out)
		}
	}
}

// Merge adds the queries of other, overriding queries with the same name.
func (l *Library) Merge(other *Library) {
	for k, v := range other.queries {
		l.queries[k] = v
	}
}

// Names returns the query names in sorted order.
func (l *Library) Names() []string {
	out := make([]string, 0, len(l.queries))
	for k := range l.queries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Get returns the raw template of a query.
func (l *Library) Get(name string) (string, bool) {
	q, ok := l.queries[name]
	return q, ok
}

// Render renders the named query with params.
func (l *Library) Render(name string, params map[string]any) (string, error) {
	q, ok := l.queries[name]
	if !ok {
		return "", fmt.Errorf("unknown query %q", name)
	}
	return Render(q, params)
}
