package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// document is the persisted ledger layout.
type document struct {
	TradingData    map[string]*Record `json:"trading_data"`
	LastUpdateTime *Timestamp         `json:"last_update_time"`
}

// Store persists the ledger to a single JSON file.
type Store struct {
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads and validates the ledger. A missing file yields an empty ledger.
func (s *Store) Load() (*Ledger, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return Decode(data)
}

// Decode parses a ledger document. Unknown fields and invalid records fail.
func Decode(data []byte) (*Ledger, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New(), nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLedger, err)
	}

	l := New()
	for sym, r := range doc.TradingData {
		if r == nil {
			return nil, fmt.Errorf("%w: record %s is null", ErrInvalidLedger, sym)
		}
		r.Symbol = sym
		l.Records[sym] = r
	}
	if doc.LastUpdateTime != nil {
		l.LastUpdate = doc.LastUpdateTime.Time
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Encode renders the ledger document.
func Encode(l *Ledger) ([]byte, error) {
	doc := document{TradingData: l.Records}
	if doc.TradingData == nil {
		doc.TradingData = map[string]*Record{}
	}
	if !l.LastUpdate.IsZero() {
		ts := NewTimestamp(l.LastUpdate)
		doc.LastUpdateTime = &ts
	}
	return json.MarshalIndent(doc, "", "    ")
}

// Save stamps LastUpdate and writes the ledger atomically: the document is
// written to a temp file in the same directory, synced and renamed over the
// previous file.
func (s *Store) Save(l *Ledger, now time.Time) error {
	l.LastUpdate = now.UTC()
	data, err := Encode(l)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
