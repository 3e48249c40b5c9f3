package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidLedger is returned when a persisted ledger fails validation.
var ErrInvalidLedger = errors.New("invalid ledger")

// Ledger is the set of position records keyed by symbol. It is owned by a
// single cycle at a time and is not safe for concurrent use.
type Ledger struct {
	Records    map[string]*Record
	LastUpdate time.Time
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{Records: make(map[string]*Record)}
}

// Get returns the record for symbol, or nil.
func (l *Ledger) Get(symbol string) *Record {
	return l.Records[symbol]
}

// Has reports whether a record exists for symbol.
func (l *Ledger) Has(symbol string) bool {
	_, ok := l.Records[symbol]
	return ok
}

// Put stores r under its symbol, replacing any previous record.
func (l *Ledger) Put(r *Record) {
	if l.Records == nil {
		l.Records = make(map[string]*Record)
	}
	l.Records[r.Symbol] = r
}

// Delete removes the record for symbol and returns it.
func (l *Ledger) Delete(symbol string) *Record {
	r := l.Records[symbol]
	delete(l.Records, symbol)
	return r
}

// Symbols returns the recorded symbols in sorted order.
func (l *Ledger) Symbols() []string {
	out := make([]string, 0, len(l.Records))
	for s := range l.Records {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Len is the number of records.
func (l *Ledger) Len() int { return len(l.Records) }

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{Records: make(map[string]*Record, len(l.Records)), LastUpdate: l.LastUpdate}
	for s, r := range l.Records {
		c.Records[s] = r.Clone()
	}
	return c
}

// Validate checks every record.
func (l *Ledger) Validate() error {
	var errs []error
	for _, s := range l.Symbols() {
		r := l.Records[s]
		if r.Symbol != s {
			errs = append(errs, fmt.Errorf("record %s stored under %s", r.Symbol, s))
			continue
		}
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidLedger, errors.Join(errs...))
}
