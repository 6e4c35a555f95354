package refdata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traderiser/internal/adapters/memory"
	"traderiser/internal/domain"
)

func writePairsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pairs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValid(t *testing.T) {
	path := writePairsFile(t, `
pairs:
  - symbol: EURUSD
    base_currency: EUR
    quote_currency: USD
    pip_size: 0.0001
    contract_size: 100000
    spread: 0.0001
    base_price: 1.1000
    default_timeframe: M1
  - symbol: USDJPY
    base_currency: USD
    quote_currency: JPY
    pip_size: 0.01
    contract_size: 100000
    spread: 0.02
    base_price: 148.50
`)

	pairs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	assert.Equal(t, "EURUSD", pairs[0].Symbol)
	assert.Equal(t, 0.0001, pairs[0].PipSize)
	assert.Equal(t, domain.TimeframeM1, pairs[0].DefaultTimeframe)

	// Missing timeframe falls back to M1.
	assert.Equal(t, domain.TimeframeM1, pairs[1].DefaultTimeframe)
	assert.Equal(t, 148.50, pairs[1].BasePrice)
}

func TestLoadRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty file", "pairs: []"},
		{"missing symbol", "pairs:\n  - pip_size: 0.0001\n    contract_size: 100000\n    base_price: 1.1"},
		{"zero pip size", "pairs:\n  - symbol: EURUSD\n    pip_size: 0\n    contract_size: 100000\n    base_price: 1.1"},
		{"negative spread", "pairs:\n  - symbol: EURUSD\n    pip_size: 0.0001\n    contract_size: 100000\n    spread: -0.1\n    base_price: 1.1"},
		{"zero base price", "pairs:\n  - symbol: EURUSD\n    pip_size: 0.0001\n    contract_size: 100000\n    base_price: 0"},
		{"unknown timeframe", "pairs:\n  - symbol: EURUSD\n    pip_size: 0.0001\n    contract_size: 100000\n    base_price: 1.1\n    default_timeframe: M7"},
		{"duplicate symbol", `
pairs:
  - symbol: EURUSD
    pip_size: 0.0001
    contract_size: 100000
    base_price: 1.1
  - symbol: EURUSD
    pip_size: 0.0001
    contract_size: 100000
    base_price: 1.1
`},
		{"not yaml", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writePairsFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	pairs := []*domain.TradablePair{
		{Symbol: "EURUSD", PipSize: 0.0001, ContractSize: 100000, Spread: 0.0001, BasePrice: 1.1, DefaultTimeframe: domain.TimeframeM1},
		{Symbol: "GBPUSD", PipSize: 0.0001, ContractSize: 100000, Spread: 0.0002, BasePrice: 1.27, DefaultTimeframe: domain.TimeframeM5},
	}
	require.NoError(t, Seed(ctx, store, pairs))

	stored, err := store.ListPairs(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	found, err := store.FindPair(ctx, "GBPUSD")
	require.NoError(t, err)
	assert.Equal(t, domain.TimeframeM5, found.DefaultTimeframe)
}
