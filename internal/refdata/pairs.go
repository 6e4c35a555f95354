// Package refdata loads tradable-pair reference data from a YAML file and
// seeds it into the pair store at startup.
package refdata

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"traderiser/internal/domain"
	"traderiser/internal/ports"
)

var knownTimeframes = map[domain.Timeframe]bool{
	domain.TimeframeM1:  true,
	domain.TimeframeM5:  true,
	domain.TimeframeM15: true,
	domain.TimeframeM30: true,
	domain.TimeframeH1:  true,
}

// PairSpec is a single pair definition as written in the YAML file.
type PairSpec struct {
	Symbol           string  `yaml:"symbol"`
	BaseCurrency     string  `yaml:"base_currency"`
	QuoteCurrency    string  `yaml:"quote_currency"`
	PipSize          float64 `yaml:"pip_size"`
	ContractSize     int     `yaml:"contract_size"`
	Spread           float64 `yaml:"spread"`
	BasePrice        float64 `yaml:"base_price"`
	DefaultTimeframe string  `yaml:"default_timeframe"`
}

// PairsFile is the top-level YAML document.
type PairsFile struct {
	Pairs []PairSpec `yaml:"pairs"`
}

// Load reads and validates the pairs file.
func Load(path string) ([]*domain.TradablePair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pairs file %q: %w", path, err)
	}

	var file PairsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pairs file %q: %w", path, err)
	}
	if len(file.Pairs) == 0 {
		return nil, fmt.Errorf("pairs file %q defines no pairs", path)
	}

	pairs := make([]*domain.TradablePair, 0, len(file.Pairs))
	seen := make(map[string]bool, len(file.Pairs))
	for i, spec := range file.Pairs {
		pair, err := toDomain(spec)
		if err != nil {
			return nil, fmt.Errorf("pairs file %q entry %d: %w", path, i, err)
		}
		if seen[pair.Symbol] {
			return nil, fmt.Errorf("pairs file %q: duplicate symbol %q", path, pair.Symbol)
		}
		seen[pair.Symbol] = true
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// Seed writes the pairs into the store, replacing existing definitions.
func Seed(ctx context.Context, store ports.PairStore, pairs []*domain.TradablePair) error {
	for _, pair := range pairs {
		if err := store.UpsertPair(ctx, pair); err != nil {
			return fmt.Errorf("failed to seed pair %q: %w", pair.Symbol, err)
		}
	}
	return nil
}

func toDomain(spec PairSpec) (*domain.TradablePair, error) {
	if spec.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if spec.PipSize <= 0 {
		return nil, fmt.Errorf("pair %q: pip_size must be positive", spec.Symbol)
	}
	if spec.ContractSize <= 0 {
		return nil, fmt.Errorf("pair %q: contract_size must be positive", spec.Symbol)
	}
	if spec.Spread < 0 {
		return nil, fmt.Errorf("pair %q: spread must not be negative", spec.Symbol)
	}
	if spec.BasePrice <= 0 {
		return nil, fmt.Errorf("pair %q: base_price must be positive", spec.Symbol)
	}

	timeframe := domain.Timeframe(spec.DefaultTimeframe)
	if spec.DefaultTimeframe == "" {
		timeframe = domain.TimeframeM1
	} else if !knownTimeframes[timeframe] {
		return nil, fmt.Errorf("pair %q: unknown default_timeframe %q", spec.Symbol, spec.DefaultTimeframe)
	}

	return &domain.TradablePair{
		Symbol:           spec.Symbol,
		BaseCurrency:     spec.BaseCurrency,
		QuoteCurrency:    spec.QuoteCurrency,
		PipSize:          spec.PipSize,
		ContractSize:     spec.ContractSize,
		Spread:           spec.Spread,
		BasePrice:        spec.BasePrice,
		DefaultTimeframe: timeframe,
	}, nil
}
