package pricing

import (
	"math/rand"
	"sync"
	"time"

	"traderiser/internal/domain"
)

const (
	// floorPrice is the minimum positive price a quote can take.
	floorPrice = 0.0001

	// favorableDelta is the fixed offset applied once a privileged position
	// passes its threshold (mirrored unfavorably for non-privileged ones).
	favorableDelta = 0.0020

	// jitterDelta is the small unfavorable dip a privileged position can see
	// before its threshold.
	jitterDelta = 0.0005

	// walkRange bounds the default random walk around the base price.
	walkRange = 0.0005

	// privilegedThresholdMinutes is the elapsed time after which a
	// privileged position's quotes become deterministically favorable,
	// before timeframe scaling.
	privilegedThresholdMinutes = 30.0

	// Non-privileged positions turn unfavorable after a randomized threshold
	// drawn uniformly from this range, before timeframe scaling.
	forcedLossMinMinutes = 10.0
	forcedLossMaxMinutes = 20.0

	jitterProbability = 0.1
)

// Config holds the simulator's injectable sources. A zero Config uses a
// time-seeded generator and the wall clock.
type Config struct {
	Rand *rand.Rand
	Now  func() time.Time
}

// Simulator produces simulated quotes for tradable pairs. It is safe for
// concurrent use; the random source is guarded internally.
type Simulator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// New creates a simulator from cfg, filling in defaults for nil sources.
func New(cfg Config) *Simulator {
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Simulator{rnd: rnd, now: now}
}

// Quote returns a simulated price for a position on pair entered at
// entryTime. Privileged positions drift to a guaranteed favorable price once
// enough time has passed; all other positions are forced to an unfavorable
// price after a randomized threshold. Thresholds scale with the timeframe
// length relative to M1.
func (s *Simulator) Quote(pair *domain.TradablePair, entryTime time.Time, timeframe domain.Timeframe, direction domain.Direction, privileged bool) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	minutes := s.now().Sub(entryTime).Minutes()
	scale := float64(timeframe.Minutes())

	if privileged {
		if minutes >= privilegedThresholdMinutes*scale {
			if direction == domain.Buy {
				return floor(pair.BasePrice + favorableDelta)
			}
			return floor(pair.BasePrice - favorableDelta)
		}
		if s.rnd.Float64() < jitterProbability {
			return floor(pair.BasePrice - jitterDelta)
		}
		return s.walk(pair)
	}

	threshold := (forcedLossMinMinutes + s.rnd.Float64()*(forcedLossMaxMinutes-forcedLossMinMinutes)) * scale
	if minutes >= threshold {
		if direction == domain.Buy {
			return floor(pair.BasePrice - favorableDelta)
		}
		return floor(pair.BasePrice + favorableDelta)
	}
	return s.walk(pair)
}

// EntryQuote returns a plain random-walk quote around the pair's base price,
// used when an order is placed.
func (s *Simulator) EntryQuote(pair *domain.TradablePair) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walk(pair)
}

// walk returns the bounded random walk around the base price.
// Caller must hold s.mu.
func (s *Simulator) walk(pair *domain.TradablePair) float64 {
	volatility := s.rnd.Float64()*2*walkRange - walkRange
	return floor(pair.BasePrice + volatility)
}

func floor(price float64) float64 {
	if price < floorPrice {
		return floorPrice
	}
	return price
}
