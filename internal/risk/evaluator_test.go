package risk

import (
	"math"
	"testing"
	"time"

	"traderiser/internal/domain"
)

var eurusd = &domain.TradablePair{
	Symbol:       "EURUSD",
	PipSize:      0.0001,
	ContractSize: 100000,
	Spread:       0.0001,
	BasePrice:    1.1000,
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func openPosition(direction domain.Direction) *domain.Position {
	return &domain.Position{
		ID:         1,
		AccountID:  1,
		PairSymbol: "EURUSD",
		Direction:  direction,
		Volume:     0.01,
		EntryPrice: 1.1000,
		EntryTime:  time.Now(),
		Leverage:   500,
		Status:     domain.StatusOpen,
	}
}

func TestFloatingPLLong(t *testing.T) {
	e := NewEvaluator()

	// 20 pips up on 0.01 lot: 20 * 0.01 * 100000 * 0.0001 = 2.00 gross,
	// minus spread cost 0.0001 * 0.01 * 100000 * 0.0001 = 0.00001.
	pl := e.FloatingPL(eurusd, domain.Buy, 0.01, 1.1000, 1.1020)
	want := 2.0 - 0.0001*0.01*100000*0.0001
	if !almostEqual(pl, want) {
		t.Errorf("FloatingPL = %v, want %v", pl, want)
	}
	if pl <= 0 {
		t.Errorf("expected positive floating P&L for a favorable long move, got %v", pl)
	}
}

func TestFloatingPLShortMirrorsLong(t *testing.T) {
	e := NewEvaluator()

	down := e.FloatingPL(eurusd, domain.Sell, 0.01, 1.1000, 1.0980)
	up := e.FloatingPL(eurusd, domain.Buy, 0.01, 1.1000, 1.1020)
	if !almostEqual(down, up) {
		t.Errorf("short gain %v should equal long gain %v for mirrored moves", down, up)
	}
}

func TestFloatingPLSignMatchesDirection(t *testing.T) {
	e := NewEvaluator()

	if pl := e.FloatingPL(eurusd, domain.Buy, 0.01, 1.1000, 1.0950); pl >= 0 {
		t.Errorf("long into a falling price should be negative, got %v", pl)
	}
	if pl := e.FloatingPL(eurusd, domain.Sell, 0.01, 1.1000, 1.0950); pl <= 0 {
		t.Errorf("short into a falling price should be positive, got %v", pl)
	}
}

func TestMargin(t *testing.T) {
	e := NewEvaluator()

	// 0.01 * 100000 * 1.1 / 500 = 2.2
	got := e.Margin(eurusd, 0.01, 1.1000, 500)
	if !almostEqual(got, 2.2) {
		t.Errorf("Margin = %v, want 2.2", got)
	}
}

func TestEvaluateStopLossWinsOverTakeProfit(t *testing.T) {
	e := NewEvaluator()
	pos := openPosition(domain.Buy)
	// Contradictory levels where the price satisfies both: SL must win.
	pos.StopLoss = 1.1050
	pos.TakeProfit = 1.1010

	a := e.Evaluate(pos, eurusd, 1.1020, 1000, false)
	if a.Trigger == nil || *a.Trigger != domain.CloseReasonStopLoss {
		t.Fatalf("expected stop-loss trigger, got %v", a.Trigger)
	}
}

func TestEvaluateTakeProfit(t *testing.T) {
	e := NewEvaluator()

	pos := openPosition(domain.Buy)
	pos.TakeProfit = 1.1015
	a := e.Evaluate(pos, eurusd, 1.1020, 1000, false)
	if a.Trigger == nil || *a.Trigger != domain.CloseReasonTakeProfit {
		t.Fatalf("expected take-profit trigger for long, got %v", a.Trigger)
	}

	pos = openPosition(domain.Sell)
	pos.TakeProfit = 1.0985
	a = e.Evaluate(pos, eurusd, 1.0980, 1000, false)
	if a.Trigger == nil || *a.Trigger != domain.CloseReasonTakeProfit {
		t.Fatalf("expected take-profit trigger for short, got %v", a.Trigger)
	}
}

func TestEvaluateStopLossDirections(t *testing.T) {
	e := NewEvaluator()

	pos := openPosition(domain.Buy)
	pos.StopLoss = 1.0990
	a := e.Evaluate(pos, eurusd, 1.0985, 1000, false)
	if a.Trigger == nil || *a.Trigger != domain.CloseReasonStopLoss {
		t.Fatalf("expected stop-loss trigger for long, got %v", a.Trigger)
	}

	pos = openPosition(domain.Sell)
	pos.StopLoss = 1.1010
	a = e.Evaluate(pos, eurusd, 1.1015, 1000, false)
	if a.Trigger == nil || *a.Trigger != domain.CloseReasonStopLoss {
		t.Fatalf("expected stop-loss trigger for short, got %v", a.Trigger)
	}
}

func TestEvaluateMarginCall(t *testing.T) {
	e := NewEvaluator()
	pos := openPosition(domain.Buy)

	// 55 pips down on 0.01 lot is about -55; balance 50 triggers the call.
	a := e.Evaluate(pos, eurusd, 1.0945, 50, false)
	if a.FloatingPL >= 0 {
		t.Fatalf("expected a loss, got %v", a.FloatingPL)
	}
	if a.Trigger == nil || *a.Trigger != domain.CloseReasonMarginCall {
		t.Fatalf("expected margin-call trigger, got %v", a.Trigger)
	}
}

func TestEvaluateMarginCallNeverForPrivileged(t *testing.T) {
	e := NewEvaluator()
	pos := openPosition(domain.Buy)

	a := e.Evaluate(pos, eurusd, 1.0945, 50, true)
	if a.Trigger != nil {
		t.Fatalf("privileged accounts must never be margin-called, got %v", *a.Trigger)
	}
}

func TestEvaluateNoTriggerKeepsOpen(t *testing.T) {
	e := NewEvaluator()
	pos := openPosition(domain.Buy)

	a := e.Evaluate(pos, eurusd, 1.1005, 1000, false)
	if a.Trigger != nil {
		t.Fatalf("expected no trigger, got %v", *a.Trigger)
	}
	if a.FloatingPL <= 0 {
		t.Errorf("expected positive floating P&L, got %v", a.FloatingPL)
	}
}
