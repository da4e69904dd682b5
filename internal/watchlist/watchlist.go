// Package watchlist persists the user's hand-curated list of stock codes
// to a line-oriented text file, grounded on the Python original's
// read_stock_codes/write_stock_codes (blueprints/custom_stock.py): one
// code per non-empty line, the whole file rewritten on every mutation.
package watchlist

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zheewang/stockrealtime/internal/model"
)

// Store is a file-backed watch-list. All reads and writes go through its
// mutex so concurrent dashboard requests serialize rather than race on the
// underlying file.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a Store backed by path. The file is not required to exist
// yet: Load returns an empty list until the first Save.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the watch-list file, returning an empty, non-nil slice (not
// an error) if the file doesn't exist yet — matching read_stock_codes's
// "file not found, returning empty list" behavior.
func (s *Store) Load() ([]model.StockCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]model.StockCode, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return []model.StockCode{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	codes := []model.StockCode{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		codes = append(codes, model.StockCode(line))
	}
	return codes, scanner.Err()
}

// Save rewrites the watch-list file to exactly codes, one per line. The
// write goes to a temp file in the same directory and is renamed into
// place, so a reader never observes a half-written file.
func (s *Store) Save(codes []model.StockCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(codes)
}

// Add appends code to the watch-list if it isn't already present,
// mirroring custom_stock.py's "append if new stock_code not already in
// local_stock_codes" check in its add-stock handler.
func (s *Store) Add(code model.StockCode) ([]model.StockCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, existing := range codes {
		if existing == code {
			return codes, nil
		}
	}
	codes = append(codes, code)
	return codes, s.saveLocked(codes)
}

func (s *Store) saveLocked(codes []model.StockCode) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".watchlist-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := bufio.NewWriter(tmp)
	for _, code := range codes {
		if _, err := w.WriteString(string(code) + "\n"); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}
