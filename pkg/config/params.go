package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// TakeProfitMode selects which take-profit lifecycle runs after the stops.
type TakeProfitMode string

const (
	TakeProfitOff    TakeProfitMode = "off"
	TakeProfitMarket TakeProfitMode = "market"
	TakeProfitLimit  TakeProfitMode = "limit"
)

// EMAPair is a fast/slow EMA span pair.
type EMAPair struct {
	Short int `yaml:"s"`
	Long  int `yaml:"l"`
}

// TakeProfitLevel holds the arming threshold and reduction for one TP.
type TakeProfitLevel struct {
	PriceChangePct float64 `yaml:"price_pct_change"`
	ReductionPct   float64 `yaml:"pct_pos_reduction"`
}

// TakeProfitParams configures the optional take-profit lifecycle.
type TakeProfitParams struct {
	Mode  TakeProfitMode    `yaml:"mode"`
	Long  []TakeProfitLevel `yaml:"long"`
	Short []TakeProfitLevel `yaml:"short"`
}

// RetryParams configures the gateway retry policy.
type RetryParams struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// Params is the strategy parameter file.
type Params struct {
	StrategyName      string   `yaml:"strategy_name"`
	Exchange          string   `yaml:"exchange"`
	IncludedSymbols   []string `yaml:"included_symbols"`
	ExcludedSymbols   []string `yaml:"excluded_symbols"`
	TradingTF         string   `yaml:"trading_tf"`
	IndicatorTF       string   `yaml:"indicator_tf"`
	CandlesLimit      int      `yaml:"candles_limit"`
	MinimumDaysTraded int      `yaml:"minimum_days_traded"`

	EMAs1    EMAPair `yaml:"emas_1"`
	EMAs2    EMAPair `yaml:"emas_2"`
	ATR      int     `yaml:"atr"`
	NATRStop float64 `yaml:"n_atr_stops"`

	BalanceMult     float64 `yaml:"balance_mult"`
	AccountLeverage int     `yaml:"account_leverage"`

	TakeProfit TakeProfitParams `yaml:"take_profit"`
	Retry      RetryParams      `yaml:"retry"`

	SettleDelay  time.Duration `yaml:"settle_delay"`
	OrderDelay   time.Duration `yaml:"order_delay"`
	FetchWorkers int           `yaml:"fetch_workers"`
	CycleMinute  int           `yaml:"cycle_minute"`
	StatusTime   string        `yaml:"status_time"`
}

var statusTimeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// LoadParams reads the strategy YAML file, fills defaults and validates it.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	return ParseParams(data)
}

// ParseParams decodes params from YAML bytes. Unknown keys are rejected.
func ParseParams(data []byte) (*Params, error) {
	// cycle_minute 0 is a valid setting, so its default is preset.
	p := Params{CycleMinute: 1}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Params) applyDefaults() {
	if p.StrategyName == "" {
		p.StrategyName = "portfolio_ema_cross"
	}
	if p.Exchange == "" {
		p.Exchange = "binance"
	}
	if p.TradingTF == "" {
		p.TradingTF = "1h"
	}
	if p.IndicatorTF == "" {
		p.IndicatorTF = "1d"
	}
	if p.CandlesLimit == 0 {
		p.CandlesLimit = 1000
	}
	if p.MinimumDaysTraded == 0 {
		p.MinimumDaysTraded = 90
	}
	if p.EMAs1 == (EMAPair{}) {
		p.EMAs1 = EMAPair{Short: 5, Long: 15}
	}
	if p.EMAs2 == (EMAPair{}) {
		p.EMAs2 = EMAPair{Short: 10, Long: 20}
	}
	if p.ATR == 0 {
		p.ATR = 30
	}
	if p.NATRStop == 0 {
		p.NATRStop = 3
	}
	if p.BalanceMult == 0 {
		p.BalanceMult = 1
	}
	if p.AccountLeverage == 0 {
		p.AccountLeverage = 1
	}
	if p.TakeProfit.Mode == "" {
		p.TakeProfit.Mode = TakeProfitOff
	}
	if p.Retry.MaxAttempts == 0 {
		p.Retry.MaxAttempts = 5
	}
	if p.Retry.Backoff == 0 {
		p.Retry.Backoff = 2 * time.Second
	}
	if p.SettleDelay == 0 {
		p.SettleDelay = time.Second
	}
	if p.OrderDelay == 0 {
		p.OrderDelay = 500 * time.Millisecond
	}
	if p.FetchWorkers == 0 {
		p.FetchWorkers = 4
	}
	if p.StatusTime == "" {
		p.StatusTime = "09:00"
	}
}

// Validate checks the params for values the bot cannot run with.
func (p *Params) Validate() error {
	var errs []error
	if len(p.IncludedSymbols) == 0 {
		errs = append(errs, errors.New("included_symbols must not be empty"))
	}
	if p.EMAs1.Short <= 0 || p.EMAs1.Long <= 0 || p.EMAs2.Short <= 0 || p.EMAs2.Long <= 0 {
		errs = append(errs, errors.New("ema spans must be positive"))
	}
	if p.ATR <= 0 {
		errs = append(errs, errors.New("atr must be positive"))
	}
	if p.NATRStop <= 0 {
		errs = append(errs, errors.New("n_atr_stops must be positive"))
	}
	if p.BalanceMult <= 0 {
		errs = append(errs, errors.New("balance_mult must be positive"))
	}
	if p.MinimumDaysTraded < 0 {
		errs = append(errs, errors.New("minimum_days_traded must not be negative"))
	}
	if p.CandlesLimit <= p.MinimumDaysTraded {
		errs = append(errs, fmt.Errorf("candles_limit (%d) must exceed minimum_days_traded (%d)", p.CandlesLimit, p.MinimumDaysTraded))
	}
	switch p.TakeProfit.Mode {
	case TakeProfitOff:
	case TakeProfitMarket, TakeProfitLimit:
		if len(p.TakeProfit.Long) == 0 || len(p.TakeProfit.Long) != len(p.TakeProfit.Short) {
			errs = append(errs, errors.New("take_profit long/short levels must be set and of equal length"))
		}
		if len(p.TakeProfit.Long) > 2 {
			errs = append(errs, errors.New("at most 2 take-profit levels are supported"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown take_profit.mode %q", p.TakeProfit.Mode))
	}
	if p.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if p.CycleMinute < 0 || p.CycleMinute > 59 {
		errs = append(errs, errors.New("cycle_minute must be within 0..59"))
	}
	if !statusTimeRe.MatchString(p.StatusTime) {
		errs = append(errs, fmt.Errorf("status_time %q must be HH:MM", p.StatusTime))
	}
	return errors.Join(errs...)
}

// TakeProfitLevels returns the configured levels for longs or shorts.
func (p *Params) TakeProfitLevels(long bool) []TakeProfitLevel {
	if long {
		return p.TakeProfit.Long
	}
	return p.TakeProfit.Short
}
