package vocab

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/geo-recog/internal/normalizer"
)

// Level is the administrative level of a vocabulary entry.
type Level string

const (
	LevelProvince Level = "province"
	LevelCity     Level = "city"
)

// Entry is one canonical administrative name with its code.
type Entry struct {
	Name  string `json:"name"`
	Code  string `json:"code"`
	Level Level  `json:"level"`
}

// Store holds the province table and the full province+city table.
// It is immutable after Load and safe for concurrent reads.
type Store struct {
	provinces []string
	all       []string
	entries   map[string]Entry
}

// Load reads both dictionary files from disk.
func Load(provincePath, fullPath string) (*Store, error) {
	pf, err := os.Open(provincePath)
	if err != nil {
		return nil, fmt.Errorf("open province dictionary: %w", err)
	}
	defer pf.Close()

	ff, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("open full dictionary: %w", err)
	}
	defer ff.Close()

	return LoadReaders(pf, ff)
}

// LoadReaders builds a Store from the province and full tables.
// The full table is read first so province records win on a name collision.
func LoadReaders(province, full io.Reader) (*Store, error) {
	s := &Store{entries: make(map[string]Entry)}

	all, err := s.read(full, "full", LevelCity)
	if err != nil {
		return nil, err
	}
	provinces, err := s.read(province, "province", LevelProvince)
	if err != nil {
		return nil, err
	}
	if len(provinces) == 0 {
		return nil, fmt.Errorf("province dictionary is empty")
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("full dictionary is empty")
	}

	s.all = all
	s.provinces = provinces
	return s, nil
}

func (s *Store) read(r io.Reader, source string, level Level) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		code, name, ok := strings.Cut(line, "=")
		code = strings.TrimSpace(code)
		name = normalizer.Canonical(name)
		if !ok || code == "" || name == "" {
			return nil, fmt.Errorf("%s dictionary line %d: want <code>=<name>, got %q", source, lineNo, line)
		}
		s.entries[name] = Entry{Name: name, Code: code, Level: level}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s dictionary: %w", source, err)
	}
	return names, nil
}

// Provinces returns the province vocabulary in file order.
func (s *Store) Provinces() []string {
	return append([]string(nil), s.provinces...)
}

// All returns the full province+city vocabulary in file order.
func (s *Store) All() []string {
	return append([]string(nil), s.all...)
}

// Entry looks up a canonical name.
func (s *Store) Entry(name string) (Entry, bool) {
	e, ok := s.entries[name]
	return e, ok
}

// Size returns the number of distinct names known to the store.
func (s *Store) Size() int {
	return len(s.entries)
}

// CodeFor prefers the city code and falls back to the province code.
// It returns nil when neither name maps to a code.
func (s *Store) CodeFor(city, province *string) *string {
	for _, name := range []*string{city, province} {
		if name == nil {
			continue
		}
		if e, ok := s.entries[*name]; ok {
			code := e.Code
			return &code
		}
	}
	return nil
}
