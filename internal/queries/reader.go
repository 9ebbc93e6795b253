package queries

import (
	"fmt"
	"io/fs"
	"path"
	"reflect"

	"gopkg.in/yaml.v3"
)

// Reader decodes one file format.
type Reader interface {
	Format() Format
	Read(content []byte) (any, error)
}

var registry = map[Format]Reader{}

// Register adds a reader, replacing any previous reader for its format.
func Register(r Reader) {
	registry[r.Format()] = r
}

func init() {
	Register(yamlReader{})
	Register(sqlReader{})
}

type yamlReader struct{}

func (yamlReader) Format() Format { return FormatYAML }

func (yamlReader) Read(content []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(content, &v); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return v, nil
}

type sqlReader struct{}

func (sqlReader) Format() Format { return FormatSQL }

func (sqlReader) Read(content []byte) (any, error) {
	return string(content), nil
}

func readAs(fsys fs.FS, p string, want Format) (any, error) {
	if Extension(p) != want {
		return nil, fmt.Errorf("%w: %s is not a %s file", ErrWrongFormat, p, want)
	}
	r, ok := registry[want]
	if !ok {
		return nil, fmt.Errorf("%w: no reader for %s", ErrUnsupportedExtension, want)
	}
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	v, err := r.Read(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return v, nil
}

// ReadYAML decodes the YAML mapping stored at p. An empty file yields a nil
// map.
func ReadYAML(fsys fs.FS, p string) (map[string]any, error) {
	v, err := readAs(fsys, p, FormatYAML)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not hold a mapping", ErrWrongFormat, p)
	}
	return m, nil
}

// ReadSQL returns the text of the SQL file at p.
func ReadSQL(fsys fs.FS, p string) (string, error) {
	v, err := readAs(fsys, p, FormatSQL)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Collection maps file and directory stems to their content: a YAML mapping,
// SQL text or a nested Collection.
type Collection map[string]any

// DirOptions controls ReadFromDir.
type DirOptions struct {
	// OnErrorContinue records files that fail to load instead of aborting.
	OnErrorContinue bool
	// MaxDepth limits how many levels of sub-directories are read. Zero or
	// a negative value reads only the files directly in the directory.
	MaxDepth int
}

// DefaultDirOptions reads up to three levels of sub-directories and aborts on
// the first error.
func DefaultDirOptions() DirOptions {
	return DirOptions{MaxDepth: 3}
}

// ReadFromDir loads every file with extension ext below dir. Files with
// other extensions are ignored and empty items are skipped. The second
// return value lists the files that failed to load when OnErrorContinue is
// set.
func ReadFromDir(fsys fs.FS, dir, ext string, opts DirOptions) (Collection, []string, error) {
	format := Extension(ext)
	if format == FormatUnknown {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
	}
	return readDir(fsys, dir, format, opts.OnErrorContinue, opts.MaxDepth)
}

func readDir(fsys fs.FS, dir string, format Format, onErrorContinue bool, depth int) (Collection, []string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	coll := Collection{}
	var failed []string
	for _, e := range entries {
		p := path.Join(dir, e.Name())
		var item any
		switch {
		case e.IsDir():
			if depth <= 0 {
				continue
			}
			sub, subFailed, err := readDir(fsys, p, format, onErrorContinue, depth-1)
			if err != nil {
				return nil, nil, err
			}
			failed = append(failed, subFailed...)
			item = sub
		case Extension(p) == format:
			v, err := readAs(fsys, p, format)
			if err != nil {
				if onErrorContinue {
					failed = append(failed, p)
					continue
				}
				return nil, nil, err
			}
			item = v
		default:
			continue
		}
		if !isEmpty(item) {
			coll[stem(p)] = item
		}
	}
	return coll, failed, nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.String:
		return rv.Len() == 0
	}
	return rv.IsZero()
}
