package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	marketpkg "github.com/webclinic017/GDA-v2/pkg/market/binance"
)

var historyHeader = []string{"time", "open", "high", "low", "close", "volume"}

const historyTimeLayout = "2006-01-02 15:04:05"

// History stores candles per symbol and timeframe as CSV files named
// <exchange>_<SYMBOL>_<tf>.csv.
type History struct {
	dir      string
	exchange string
}

// NewHistory creates a history store rooted at dir.
func NewHistory(dir, exchange string) *History {
	return &History{dir: dir, exchange: exchange}
}

// Path is the file holding symbol candles of timeframe tf.
func (h *History) Path(symbol, tf string) string {
	return filepath.Join(h.dir, fmt.Sprintf("%s_%s_%s.csv", h.exchange, symbol, tf))
}

// Load reads stored candles. A missing file yields no candles.
func (h *History) Load(symbol, tf string) ([]marketpkg.Kline, error) {
	f, err := os.Open(h.Path(symbol, tf))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", h.Path(symbol, tf), err)
	}
	out := make([]marketpkg.Kline, 0, len(rows))
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == historyHeader[0] {
			continue
		}
		k, err := parseHistoryRow(symbol, row)
		if err != nil {
			return nil, fmt.Errorf("history %s line %d: %w", h.Path(symbol, tf), i+1, err)
		}
		out = append(out, k)
	}
	return out, nil
}

// Save replaces the stored candles of symbol/tf.
func (h *History) Save(symbol, tf string, ks []marketpkg.Kline) error {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	path := h.Path(symbol, tf)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create history: %w", err)
	}

	w := csv.NewWriter(f)
	_ = w.Write(historyHeader)
	for _, k := range ks {
		_ = w.Write([]string{
			k.OpenTime.UTC().Format(historyTimeLayout),
			formatFloat(k.Open),
			formatFloat(k.High),
			formatFloat(k.Low),
			formatFloat(k.Close),
			formatFloat(k.Volume),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	return os.Rename(tmp, path)
}

func parseHistoryRow(symbol string, row []string) (marketpkg.Kline, error) {
	if len(row) < len(historyHeader) {
		return marketpkg.Kline{}, fmt.Errorf("expected %d columns, got %d", len(historyHeader), len(row))
	}
	t, err := time.ParseInLocation(historyTimeLayout, row[0], time.UTC)
	if err != nil {
		return marketpkg.Kline{}, err
	}
	vals := make([]float64, 5)
	for i := range vals {
		if vals[i], err = strconv.ParseFloat(row[i+1], 64); err != nil {
			return marketpkg.Kline{}, err
		}
	}
	return marketpkg.Kline{
		Symbol:   symbol,
		OpenTime: t,
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sortByOpenTime(ks []marketpkg.Kline) {
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].OpenTime.Before(ks[j].OpenTime) })
}
