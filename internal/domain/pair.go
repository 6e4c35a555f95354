package domain

// TradablePair is static reference data for a simulated instrument.
// Pairs are immutable during a run; they are seeded at startup and only read
// by the engines.
type TradablePair struct {
	Symbol           string    // e.g., "EURUSD"
	BaseCurrency     string    // e.g., "EUR"
	QuoteCurrency    string    // e.g., "USD"
	PipSize          float64   // smallest standardized price increment, e.g., 0.0001
	ContractSize     int       // units per lot, e.g., 100000
	Spread           float64   // quoted spread in price units
	BasePrice        float64   // anchor for the simulated random walk
	DefaultTimeframe Timeframe // timeframe used when an order does not specify one
}
