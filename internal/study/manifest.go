package study

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/geopower/internal/source"
	"github.com/KaramelBytes/geopower/internal/utils"
	"github.com/go-gota/gota/dataframe"
)

const manifestFileName = "manifest.json"

// Manifest records one study run.
type Manifest struct {
	RunID      string    `json:"run_id"`
	Study      string    `json:"study"`
	Inputs     []string  `json:"inputs"`
	Query      string    `json:"query,omitempty"`
	Outputs    []string  `json:"outputs"`
	Examined   int       `json:"examined"`
	Designs    int       `json:"designs"`
	Truncated  bool      `json:"truncated"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Not serialized: run directory holding the outputs
	dir string `json:"-"`
}

// Dir returns the run directory.
func (m *Manifest) Dir() string { return m.dir }

// Save writes manifest.json using atomic write.
func (m *Manifest) Save() error {
	if m.dir == "" {
		return errors.New("run directory not set")
	}
	data, err := utils.PrettyJSON(m)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(m.dir, manifestFileName), data)
}

// LoadManifest reads the manifest of the run stored in dir.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, manifestFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("manifest not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	m.dir = dir
	return &m, nil
}

func (m *Manifest) write(name string, data []byte) error {
	if err := utils.SafeWriteFile(filepath.Join(m.dir, name), data); err != nil {
		return err
	}
	m.Outputs = append(m.Outputs, name)
	return nil
}

func (m *Manifest) writeFrame(df dataframe.DataFrame, name string) error {
	if err := source.WriteCSV(df, filepath.Join(m.dir, name)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	m.Outputs = append(m.Outputs, name)
	return nil
}
