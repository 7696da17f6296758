package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/scorepipe/internal/domain/model"
)

// Seed is the YAML document a Memory catalog is loaded from.
type Seed struct {
	Songs   []model.Song   `yaml:"songs"`
	Charts  []model.Chart  `yaml:"charts"`
	Folders []model.Folder `yaml:"folders"`
}

// Load indexes every entry of a seed document read from r.
func (m *Memory) Load(r io.Reader) error {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	for _, s := range seed.Songs {
		if s.ID == "" || s.Game == "" {
			return fmt.Errorf("%w: song needs id and game", ErrInvalidSeed)
		}
		m.AddSong(s)
	}
	for _, c := range seed.Charts {
		if err := m.AddChart(c); err != nil {
			return err
		}
	}
	for _, f := range seed.Folders {
		m.AddFolder(f)
	}
	return nil
}

// LoadFile loads a seed file from disk.
func (m *Memory) LoadFile(path string) error {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return fmt.Errorf("open catalog seed: %w", err)
	}
	defer func() { _ = f.Close() }()
	return m.Load(f)
}
