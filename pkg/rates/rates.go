// Package rates provides monthly currency conversion rates loaded from a
// YAML configuration file.
package rates

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrRateUnavailable is returned when no conversion rate is configured for
// the requested month and currency pair.
var ErrRateUnavailable = errors.New("rates: no rate for month and currency pair")

// tableConfig represents the YAML rate file layout:
//
//	rates:
//	  2026-01:
//	    EUR:
//	      USD: "1.05"
//
// Rates are written as strings so they parse at full decimal precision.
type tableConfig struct {
	Rates map[string]map[string]map[string]string `yaml:"rates"`
}

// Table returns a conversion multiplier for a given month and currency pair.
type Table struct {
	rates map[string]decimal.Decimal
}

// Load creates a Table from a YAML rate file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate file: %w", err)
	}

	var config tableConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	table := &Table{rates: make(map[string]decimal.Decimal)}
	for month, pairs := range config.Rates {
		for from, targets := range pairs {
			for to, raw := range targets {
				rate, err := decimal.NewFromString(raw)
				if err != nil {
					return nil, fmt.Errorf("invalid rate %s/%s for %s: %w", from, to, month, err)
				}
				table.rates[rateKey(month, from, to)] = rate
			}
		}
	}

	return table, nil
}

// NewTable creates a Table from an in-memory rate map keyed by month and
// currency pair, e.g. {"2026-01": {"EUR/USD": "1.05"}}.
func NewTable(months map[string]map[string]string) (*Table, error) {
	table := &Table{rates: make(map[string]decimal.Decimal)}
	for month, pairs := range months {
		for pair, raw := range pairs {
			rate, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid rate %s for %s: %w", pair, month, err)
			}
			table.rates[month+"|"+pair] = rate
		}
	}
	return table, nil
}

// Rate returns the conversion multiplier from one currency to another for a
// month (YYYY-MM). A same-currency pair always converts at 1. When the pair
// is missing, the inverse pair is used if configured; otherwise
// ErrRateUnavailable.
func (t *Table) Rate(month, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	if rate, ok := t.rates[rateKey(month, from, to)]; ok {
		return rate, nil
	}

	if inverse, ok := t.rates[rateKey(month, to, from)]; ok && !inverse.IsZero() {
		return decimal.NewFromInt(1).DivRound(inverse, 10), nil
	}

	return decimal.Decimal{}, fmt.Errorf("%w: %s %s->%s", ErrRateUnavailable, month, from, to)
}

func rateKey(month, from, to string) string {
	return month + "|" + from + "/" + to
}
