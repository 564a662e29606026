// Package resources looks up translation pipelines in a language-data
// bundle's modes.xml.
package resources

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattjoyce/lextrain/internal/pipe"
)

// ModesFile is the mode graph file inside a bundle.
const ModesFile = "modes.xml"

// BiltransProgram is the program that performs bilingual lookup.
const BiltransProgram = "lt-proc -b"

// ErrModeNotFound is returned for a direction the bundle does not declare.
var ErrModeNotFound = errors.New("mode not found")

//go:generate mockgen -destination=mocks/mock_discoverer.go -package=mocks github.com/mattjoyce/lextrain/internal/resources Discoverer

// Discoverer answers lookups keyed by direction ("sl-tl" or "tl-sl").
type Discoverer interface {
	// Modes lists every mode name the bundle declares.
	Modes() ([]string, error)
	// Autobil returns the bilingual dictionary used by the biltrans step.
	Autobil(direction string) (string, error)
	// AfterBiltrans returns the programs that run after bilingual lookup.
	AfterBiltrans(direction string) ([]pipe.Spec, error)
}

type modesDoc struct {
	Modes []mode `xml:"mode"`
}

type mode struct {
	Name     string    `xml:"name,attr"`
	Programs []program `xml:"pipeline>program"`
}

type program struct {
	Name  string `xml:"name,attr"`
	Files []struct {
		Name string `xml:"name,attr"`
	} `xml:"file"`
}

// Bundle reads modes.xml from a language-data directory on first use.
type Bundle struct {
	dir string

	once  sync.Once
	modes map[string]mode
	order []string
	err   error
}

var _ Discoverer = (*Bundle)(nil)

// NewBundle creates a discoverer over the bundle at dir.
func NewBundle(dir string) *Bundle {
	return &Bundle{dir: dir}
}

// Dir returns the bundle directory.
func (b *Bundle) Dir() string { return b.dir }

func (b *Bundle) load() error {
	b.once.Do(func() {
		path := filepath.Join(b.dir, ModesFile)
		data, err := os.ReadFile(path)
		if err != nil {
			b.err = fmt.Errorf("read %s: %w", path, err)
			return
		}
		var doc modesDoc
		if err := xml.Unmarshal(data, &doc); err != nil {
			b.err = fmt.Errorf("parse %s: %w", path, err)
			return
		}
		b.modes = make(map[string]mode, len(doc.Modes))
		for _, m := range doc.Modes {
			if _, dup := b.modes[m.Name]; !dup {
				b.order = append(b.order, m.Name)
			}
			b.modes[m.Name] = m
		}
	})
	return b.err
}

// Modes returns mode names in document order.
func (b *Bundle) Modes() ([]string, error) {
	if err := b.load(); err != nil {
		return nil, err
	}
	return append([]string(nil), b.order...), nil
}

func (b *Bundle) biltrans(direction string) (mode, int, error) {
	if err := b.load(); err != nil {
		return mode{}, 0, err
	}
	m, ok := b.modes[direction]
	if !ok {
		return mode{}, 0, fmt.Errorf("%w: %s in %s", ErrModeNotFound, direction, filepath.Join(b.dir, ModesFile))
	}
	for i, p := range m.Programs {
		if strings.Join(strings.Fields(p.Name), " ") == BiltransProgram {
			return m, i, nil
		}
	}
	return mode{}, 0, fmt.Errorf("mode %s has no %q program", direction, BiltransProgram)
}

// Autobil returns the first file of the mode's lt-proc -b program, joined
// to the bundle directory.
func (b *Bundle) Autobil(direction string) (string, error) {
	m, i, err := b.biltrans(direction)
	if err != nil {
		return "", err
	}
	files := m.Programs[i].Files
	if len(files) == 0 {
		return "", fmt.Errorf("mode %s: %q program lists no dictionary", direction, BiltransProgram)
	}
	return b.resolve(files[0].Name), nil
}

// AfterBiltrans returns one spec per program following lt-proc -b. Program
// names are split on whitespace, $N placeholders are dropped, and file
// arguments are resolved against the bundle directory.
func (b *Bundle) AfterBiltrans(direction string) ([]pipe.Spec, error) {
	m, i, err := b.biltrans(direction)
	if err != nil {
		return nil, err
	}

	var specs []pipe.Spec
	for _, p := range m.Programs[i+1:] {
		var words []string
		for _, w := range strings.Fields(p.Name) {
			if strings.HasPrefix(w, "$") {
				continue
			}
			words = append(words, w)
		}
		if len(words) == 0 {
			return nil, fmt.Errorf("mode %s: program with empty name", direction)
		}
		args := words[1:]
		for _, f := range p.Files {
			args = append(args, b.resolve(f.Name))
		}
		specs = append(specs, pipe.Command(words[0], args...))
	}
	return specs, nil
}

func (b *Bundle) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(b.dir, name)
}
