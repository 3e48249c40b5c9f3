package market

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/webclinic017/GDA-v2/internal/indicators"
	marketpkg "github.com/webclinic017/GDA-v2/pkg/market/binance"
)

// ParseTimeframe converts an exchange interval such as "1h" or "1d".
func ParseTimeframe(tf string) (time.Duration, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	switch tf[len(tf)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid timeframe %q", tf)
}

// Dedupe sorts candles by open time and keeps the first candle seen for
// each open time.
func Dedupe(ks []marketpkg.Kline) []marketpkg.Kline {
	seen := make(map[int64]bool, len(ks))
	out := make([]marketpkg.Kline, 0, len(ks))
	for _, k := range ks {
		key := k.OpenTime.UnixMilli()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	sortByOpenTime(out)
	return out
}

// Merge appends fresh candles to stored ones. Stored candles win on
// duplicate open times.
func Merge(stored, fresh []marketpkg.Kline) []marketpkg.Kline {
	all := make([]marketpkg.Kline, 0, len(stored)+len(fresh))
	all = append(all, stored...)
	all = append(all, fresh...)
	return Dedupe(all)
}

// Gaps counts the missing periods between the first and the last candle.
func Gaps(ks []marketpkg.Kline, step time.Duration) int {
	if len(ks) < 2 || step <= 0 {
		return 0
	}
	span := ks[len(ks)-1].OpenTime.Sub(ks[0].OpenTime)
	return int(span/step) + 1 - len(ks)
}

// ToBars lays candles on a regular grid of step and fills missing periods
// by linear interpolation. ks must be deduplicated and sorted.
func ToBars(ks []marketpkg.Kline, step time.Duration) indicators.Bars {
	var b indicators.Bars
	if len(ks) == 0 {
		return b
	}
	start := ks[0].OpenTime
	n := int(ks[len(ks)-1].OpenTime.Sub(start)/step) + 1

	b.Time = make([]time.Time, n)
	b.Open = nanSlice(n)
	b.High = nanSlice(n)
	b.Low = nanSlice(n)
	b.Close = nanSlice(n)
	b.Volume = nanSlice(n)
	for i := range b.Time {
		b.Time[i] = start.Add(time.Duration(i) * step)
	}
	for _, k := range ks {
		d := k.OpenTime.Sub(start)
		if d%step != 0 {
			continue
		}
		i := int(d / step)
		b.Open[i], b.High[i], b.Low[i], b.Close[i], b.Volume[i] = k.Open, k.High, k.Low, k.Close, k.Volume
	}
	b.Open = indicators.Interpolate(b.Open)
	b.High = indicators.Interpolate(b.High)
	b.Low = indicators.Interpolate(b.Low)
	b.Close = indicators.Interpolate(b.Close)
	b.Volume = indicators.Interpolate(b.Volume)
	return b
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
