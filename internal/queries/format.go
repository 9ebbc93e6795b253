// Package queries loads YAML and SQL files from directory trees, renders SQL
// templates written in Jinja syntax and runs them against SQLite.
package queries

import (
	"errors"
	"path"
	"strings"
)

var (
	ErrUnsupportedExtension = errors.New("unsupported extension")
	ErrWrongFormat          = errors.New("wrong file format")
)

// Format is a file format known to the loader.
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatSQL
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatSQL:
		return "sql"
	}
	return "unknown"
}

var extensions = map[string]Format{
	"yml":  FormatYAML,
	"yaml": FormatYAML,
	"sql":  FormatSQL,
}

// Extension classifies a bare extension ("yml", ".sql") or a file path
// ("conf/study.yaml").
func Extension(fileOrExt string) Format {
	s := strings.ToLower(fileOrExt)
	if f, ok := extensions[strings.TrimPrefix(s, ".")]; ok {
		return f
	}
	if f, ok := extensions[strings.TrimPrefix(path.Ext(s), ".")]; ok {
		return f
	}
	return FormatUnknown
}

// stem returns the base name of p without its last extension.
func stem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}
