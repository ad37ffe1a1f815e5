package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"LendLedger/internal/event"
	"LendLedger/internal/ingestion"
	fpmath "LendLedger/internal/math"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id": "550e8400-e29b-41d4-a716-446655440000",
		"user_id":    "660e8400-e29b-41d4-a716-446655440001",
		"reserve":    "DAI",
		"amount":     "1000000000000000000000",
		"sequence":   int64(1),
		"timestamp":  int64(1700000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "Deposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	d, ok := evt.(*event.Deposit)
	if !ok {
		t.Fatalf("expected *event.Deposit, got %T", evt)
	}
	if d.Reserve != "DAI" {
		t.Errorf("reserve: got %s, want DAI", d.Reserve)
	}
	if got := d.Amount.Dec(); got != "1000000000000000000000" {
		t.Errorf("amount: got %s, want 1000 DAI in wei", got)
	}
	if d.Sequence != 1 {
		t.Errorf("sequence: got %d, want 1", d.Sequence)
	}
	if d.Timestamp != 1700000000 {
		t.Errorf("timestamp: got %d, want 1700000000", d.Timestamp)
	}
	if d.EventType() != event.EventTypeDeposit {
		t.Errorf("event type: got %v, want Deposit", d.EventType())
	}
}

func TestParseDeposit_BadUUID(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id": "not-a-uuid",
		"user_id":    "660e8400-e29b-41d4-a716-446655440001",
		"reserve":    "DAI",
		"amount":     "100",
		"sequence":   int64(1),
		"timestamp":  int64(1700000000),
	}
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "Deposit"); err == nil {
		t.Fatal("expected error for bad deposit_id, got nil")
	}
}

func TestParseDeposit_MaxNotAllowed(t *testing.T) {
	payload := map[string]interface{}{
		"deposit_id": "550e8400-e29b-41d4-a716-446655440000",
		"user_id":    "660e8400-e29b-41d4-a716-446655440001",
		"reserve":    "DAI",
		"amount":     "max",
		"sequence":   int64(1),
		"timestamp":  int64(1700000000),
	}
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "Deposit"); err == nil {
		t.Fatal("expected error for max amount on deposit, got nil")
	}
}

func TestParseWithdraw_MaxSentinel(t *testing.T) {
	payload := map[string]interface{}{
		"withdrawal_id": "550e8400-e29b-41d4-a716-446655440000",
		"user_id":       "660e8400-e29b-41d4-a716-446655440001",
		"reserve":       "WETH",
		"amount":        "max",
		"sequence":      int64(7),
		"timestamp":     int64(1700000100),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "Withdraw")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	w, ok := evt.(*event.Withdraw)
	if !ok {
		t.Fatalf("expected *event.Withdraw, got %T", evt)
	}
	if !w.Amount.Eq(fpmath.MaxUint256()) {
		t.Errorf("amount: got %s, want max-uint sentinel", w.Amount.Dec())
	}
}

func TestParseBorrow_RateModes(t *testing.T) {
	base := func(mode string) map[string]interface{} {
		return map[string]interface{}{
			"borrow_id": "550e8400-e29b-41d4-a716-446655440000",
			"user_id":   "660e8400-e29b-41d4-a716-446655440001",
			"reserve":   "DAI",
			"amount":    "5000000000000000000000",
			"rate_mode": mode,
			"sequence":  int64(3),
			"timestamp": int64(1700000200),
		}
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, base("stable")), "Borrow")
	if err != nil {
		t.Fatalf("parse stable failed: %v", err)
	}
	if b := evt.(*event.Borrow); b.RateMode != event.RateModeStable {
		t.Errorf("rate mode: got %d, want stable", b.RateMode)
	}

	evt, err = ingestion.ParseRawEvent(rawFromJSON(t, base("variable")), "Borrow")
	if err != nil {
		t.Fatalf("parse variable failed: %v", err)
	}
	if b := evt.(*event.Borrow); b.RateMode != event.RateModeVariable {
		t.Errorf("rate mode: got %d, want variable", b.RateMode)
	}

	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, base("fixed")), "Borrow"); err == nil {
		t.Fatal("expected error for unknown rate mode, got nil")
	}
}

func TestParseLiquidationCall(t *testing.T) {
	payload := map[string]interface{}{
		"liquidation_id":        "550e8400-e29b-41d4-a716-446655440000",
		"collateral_reserve":    "WETH",
		"debt_reserve":          "DAI",
		"borrower":              "660e8400-e29b-41d4-a716-446655440001",
		"liquidator":            "770e8400-e29b-41d4-a716-446655440002",
		"debt_to_cover":         "4000000000000000000000",
		"receive_deposit_token": true,
		"sequence":              int64(9),
		"timestamp":             int64(1700000300),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "LiquidationCall")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	lc, ok := evt.(*event.LiquidationCall)
	if !ok {
		t.Fatalf("expected *event.LiquidationCall, got %T", evt)
	}
	if lc.CollateralReserve != "WETH" || lc.DebtReserve != "DAI" {
		t.Errorf("reserves: got %s/%s, want WETH/DAI", lc.CollateralReserve, lc.DebtReserve)
	}
	if !lc.ReceiveDepositToken {
		t.Error("receive_deposit_token: got false, want true")
	}
	if got := *lc.Asset(); got != "DAI" {
		t.Errorf("partition asset: got %s, want debt reserve DAI", got)
	}
}

func TestParsePriceUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"reserve":         "WETH",
		"price":           "1850000000000000000000",
		"price_sequence":  int64(120),
		"price_timestamp": int64(1700000400),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "PriceUpdate")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	pu := evt.(*event.PriceUpdate)
	if pu.PriceSequence != 120 {
		t.Errorf("price_sequence: got %d, want 120", pu.PriceSequence)
	}
	if got, want := pu.IdempotencyKey(), "WETH:price:120"; got != want {
		t.Errorf("idempotency key: got %s, want %s", got, want)
	}
}

func TestParsePriceUpdate_ZeroPrice(t *testing.T) {
	payload := map[string]interface{}{
		"reserve":         "WETH",
		"price":           "0",
		"price_sequence":  int64(121),
		"price_timestamp": int64(1700000401),
	}
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "PriceUpdate"); err == nil {
		t.Fatal("expected error for zero price, got nil")
	}
}

func TestParseReserveInit(t *testing.T) {
	payload := map[string]interface{}{
		"request_id": "550e8400-e29b-41d4-a716-446655440000",
		"reserve":    "STETH",
		"rebasing":   true,
		"config": map[string]interface{}{
			"decimals":              18,
			"loan_to_value":         7000,
			"liquidation_threshold": 7500,
			"liquidation_bonus":     10750,
			"reserve_factor":        1000,
			"active":                true,
			"borrowing_enabled":     false,
			"usable_as_collateral":  true,
		},
		"strategy": map[string]interface{}{
			"optimal_utilization": "800000000000000000000000000",
			"base_variable_rate":  "0",
			"variable_slope1":     "40000000000000000000000000",
			"variable_slope2":     "750000000000000000000000000",
			"stable_slope1":       "20000000000000000000000000",
			"stable_slope2":       "750000000000000000000000000",
			"market_stable_rate":  "39000000000000000000000000",
		},
		"sequence":  int64(0),
		"timestamp": int64(1700000000),
	}

	evt, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "ReserveInit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	ri := evt.(*event.ReserveInit)
	if !ri.Rebasing {
		t.Error("rebasing: got false, want true")
	}
	if ri.Config.LoanToValue != 7000 {
		t.Errorf("ltv: got %d, want 7000", ri.Config.LoanToValue)
	}
	if ri.Config.BorrowingEnabled {
		t.Error("borrowing_enabled: got true, want false")
	}
	if got := ri.Strategy.VariableSlope1.Dec(); got != "40000000000000000000000000" {
		t.Errorf("variable_slope1: got %s", got)
	}
}

func TestParseReserveInit_BadStrategyNumber(t *testing.T) {
	payload := map[string]interface{}{
		"request_id": "550e8400-e29b-41d4-a716-446655440000",
		"reserve":    "DAI",
		"config":     map[string]interface{}{"decimals": 18},
		"strategy": map[string]interface{}{
			"optimal_utilization": "not-a-number",
			"base_variable_rate":  "0",
			"variable_slope1":     "0",
			"variable_slope2":     "0",
			"stable_slope1":       "0",
			"stable_slope2":       "0",
			"market_stable_rate":  "0",
		},
		"sequence":  int64(0),
		"timestamp": int64(1700000000),
	}
	if _, err := ingestion.ParseRawEvent(rawFromJSON(t, payload), "ReserveInit"); err == nil {
		t.Fatal("expected error for bad strategy number, got nil")
	}
}

func TestParseUnknownEventType(t *testing.T) {
	raw := rawFromJSON(t, map[string]interface{}{})
	if _, err := ingestion.ParseRawEvent(raw, "TradeFill"); err == nil {
		t.Fatal("expected error for unknown event type, got nil")
	}
}
