package ingestion

import (
	"encoding/json"
	"fmt"

	"LendLedger/internal/event"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/rates"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into
// a typed event.Event. The ingestion shell validates, parses, and
// converts raw events before sending anything to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "Deposit":
		return parseDeposit(raw.Data)
	case "Withdraw":
		return parseWithdraw(raw.Data)
	case "Borrow":
		return parseBorrow(raw.Data)
	case "Repay":
		return parseRepay(raw.Data)
	case "SwapRateMode":
		return parseSwapRateMode(raw.Data)
	case "RebalanceStableRate":
		return parseRebalanceStableRate(raw.Data)
	case "SetCollateral":
		return parseSetCollateral(raw.Data)
	case "LiquidationCall":
		return parseLiquidationCall(raw.Data)
	case "FlashLoan":
		return parseFlashLoan(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	case "ReserveInit":
		return parseReserveInit(raw.Data)
	case "ReserveConfigUpdate":
		return parseReserveConfigUpdate(raw.Data)
	case "RebaseUnderlying":
		return parseRebaseUnderlying(raw.Data)
	case "SetPause":
		return parseSetPause(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// maxAmountSentinel on the wire requests the full balance (withdraw) or
// full debt (repay).
const maxAmountSentinel = "max"

// parseAmount decodes a decimal string amount in native token units.
// Wire amounts are strings: token amounts exceed int64 and JSON numbers
// lose precision past 2^53.
func parseAmount(s string, allowMax bool) (*uint256.Int, error) {
	if s == maxAmountSentinel {
		if !allowMax {
			return nil, fmt.Errorf("amount %q not allowed here", maxAmountSentinel)
		}
		return fpmath.MaxUint256(), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

func parseRateMode(s string) (int32, error) {
	switch s {
	case "stable":
		return event.RateModeStable, nil
	case "variable":
		return event.RateModeVariable, nil
	default:
		return event.RateModeNone, fmt.Errorf("unknown rate mode %q", s)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type depositJSON struct {
	DepositID string `json:"deposit_id"`
	UserID    string `json:"user_id"`
	Reserve   string `json:"reserve"`
	Amount    string `json:"amount"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseDeposit(data []byte) (*event.Deposit, error) {
	var j depositJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	depositID, err := uuid.Parse(j.DepositID)
	if err != nil {
		return nil, fmt.Errorf("parse deposit_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	amount, err := parseAmount(j.Amount, false)
	if err != nil {
		return nil, err
	}
	return &event.Deposit{
		DepositID: depositID,
		UserID:    userID,
		Reserve:   j.Reserve,
		Amount:    amount,
		Timestamp: j.Timestamp,
		Sequence:  j.Sequence,
	}, nil
}

type withdrawJSON struct {
	WithdrawalID string `json:"withdrawal_id"`
	UserID       string `json:"user_id"`
	Reserve      string `json:"reserve"`
	Amount       string `json:"amount"`
	Sequence     int64  `json:"sequence"`
	Timestamp    int64  `json:"timestamp"`
}

func parseWithdraw(data []byte) (*event.Withdraw, error) {
	var j withdrawJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdraw: %w", err)
	}
	withdrawalID, err := uuid.Parse(j.WithdrawalID)
	if err != nil {
		return nil, fmt.Errorf("parse withdrawal_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	amount, err := parseAmount(j.Amount, true)
	if err != nil {
		return nil, err
	}
	return &event.Withdraw{
		WithdrawalID: withdrawalID,
		UserID:       userID,
		Reserve:      j.Reserve,
		Amount:       amount,
		Timestamp:    j.Timestamp,
		Sequence:     j.Sequence,
	}, nil
}

type borrowJSON struct {
	BorrowID  string `json:"borrow_id"`
	UserID    string `json:"user_id"`
	Reserve   string `json:"reserve"`
	Amount    string `json:"amount"`
	RateMode  string `json:"rate_mode"` // "stable" or "variable"
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseBorrow(data []byte) (*event.Borrow, error) {
	var j borrowJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Borrow: %w", err)
	}
	borrowID, err := uuid.Parse(j.BorrowID)
	if err != nil {
		return nil, fmt.Errorf("parse borrow_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	amount, err := parseAmount(j.Amount, false)
	if err != nil {
		return nil, err
	}
	mode, err := parseRateMode(j.RateMode)
	if err != nil {
		return nil, err
	}
	return &event.Borrow{
		BorrowID:  borrowID,
		UserID:    userID,
		Reserve:   j.Reserve,
		Amount:    amount,
		RateMode:  mode,
		Timestamp: j.Timestamp,
		Sequence:  j.Sequence,
	}, nil
}

type repayJSON struct {
	RepayID   string `json:"repay_id"`
	UserID    string `json:"user_id"`
	Reserve   string `json:"reserve"`
	Amount    string `json:"amount"`
	RateMode  string `json:"rate_mode"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseRepay(data []byte) (*event.Repay, error) {
	var j repayJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Repay: %w", err)
	}
	repayID, err := uuid.Parse(j.RepayID)
	if err != nil {
		return nil, fmt.Errorf("parse repay_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	amount, err := parseAmount(j.Amount, true)
	if err != nil {
		return nil, err
	}
	mode, err := parseRateMode(j.RateMode)
	if err != nil {
		return nil, err
	}
	return &event.Repay{
		RepayID:   repayID,
		UserID:    userID,
		Reserve:   j.Reserve,
		Amount:    amount,
		RateMode:  mode,
		Timestamp: j.Timestamp,
		Sequence:  j.Sequence,
	}, nil
}

type swapRateModeJSON struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Reserve   string `json:"reserve"`
	RateMode  string `json:"rate_mode"` // mode being swapped FROM
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseSwapRateMode(data []byte) (*event.SwapRateMode, error) {
	var j swapRateModeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SwapRateMode: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	mode, err := parseRateMode(j.RateMode)
	if err != nil {
		return nil, err
	}
	return &event.SwapRateMode{
		RequestID: requestID,
		UserID:    userID,
		Reserve:   j.Reserve,
		RateMode:  mode,
		Timestamp: j.Timestamp,
		Sequence:  j.Sequence,
	}, nil
}

type rebalanceJSON struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Reserve   string `json:"reserve"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseRebalanceStableRate(data []byte) (*event.RebalanceStableRate, error) {
	var j rebalanceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RebalanceStableRate: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.RebalanceStableRate{
		RequestID: requestID,
		UserID:    userID,
		Reserve:   j.Reserve,
		Timestamp: j.Timestamp,
		Sequence:  j.Sequence,
	}, nil
}

type setCollateralJSON struct {
	RequestID       string `json:"request_id"`
	UserID          string `json:"user_id"`
	Reserve         string `json:"reserve"`
	UseAsCollateral bool   `json:"use_as_collateral"`
	Sequence        int64  `json:"sequence"`
	Timestamp       int64  `json:"timestamp"`
}

func parseSetCollateral(data []byte) (*event.SetCollateral, error) {
	var j setCollateralJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetCollateral: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user_id: %w", err)
	}
	return &event.SetCollateral{
		RequestID:       requestID,
		UserID:          userID,
		Reserve:         j.Reserve,
		UseAsCollateral: j.UseAsCollateral,
		Timestamp:       j.Timestamp,
		Sequence:        j.Sequence,
	}, nil
}

type liquidationCallJSON struct {
	LiquidationID       string `json:"liquidation_id"`
	CollateralReserve   string `json:"collateral_reserve"`
	DebtReserve         string `json:"debt_reserve"`
	Borrower            string `json:"borrower"`
	Liquidator          string `json:"liquidator"`
	DebtToCover         string `json:"debt_to_cover"`
	ReceiveDepositToken bool   `json:"receive_deposit_token"`
	Sequence            int64  `json:"sequence"`
	Timestamp           int64  `json:"timestamp"`
}

func parseLiquidationCall(data []byte) (*event.LiquidationCall, error) {
	var j liquidationCallJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidationCall: %w", err)
	}
	liquidationID, err := uuid.Parse(j.LiquidationID)
	if err != nil {
		return nil, fmt.Errorf("parse liquidation_id: %w", err)
	}
	borrower, err := uuid.Parse(j.Borrower)
	if err != nil {
		return nil, fmt.Errorf("parse borrower: %w", err)
	}
	liquidator, err := uuid.Parse(j.Liquidator)
	if err != nil {
		return nil, fmt.Errorf("parse liquidator: %w", err)
	}
	debtToCover, err := parseAmount(j.DebtToCover, true)
	if err != nil {
		return nil, err
	}
	return &event.LiquidationCall{
		LiquidationID:       liquidationID,
		CollateralReserve:   j.CollateralReserve,
		DebtReserve:         j.DebtReserve,
		Borrower:            borrower,
		Liquidator:          liquidator,
		DebtToCover:         debtToCover,
		ReceiveDepositToken: j.ReceiveDepositToken,
		Timestamp:           j.Timestamp,
		Sequence:            j.Sequence,
	}, nil
}

type flashLoanJSON struct {
	LoanID    string `json:"loan_id"`
	Initiator string `json:"initiator"`
	Reserve   string `json:"reserve"`
	Amount    string `json:"amount"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseFlashLoan(data []byte) (*event.FlashLoan, error) {
	var j flashLoanJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FlashLoan: %w", err)
	}
	loanID, err := uuid.Parse(j.LoanID)
	if err != nil {
		return nil, fmt.Errorf("parse loan_id: %w", err)
	}
	initiator, err := uuid.Parse(j.Initiator)
	if err != nil {
		return nil, fmt.Errorf("parse initiator: %w", err)
	}
	amount, err := parseAmount(j.Amount, false)
	if err != nil {
		return nil, err
	}
	return &event.FlashLoan{
		LoanID:    loanID,
		Initiator: initiator,
		Reserve:   j.Reserve,
		Amount:    amount,
		Timestamp: j.Timestamp,
		Sequence:  j.Sequence,
	}, nil
}

type priceUpdateJSON struct {
	Reserve        string `json:"reserve"`
	Price          string `json:"price"` // wad, base currency per whole token
	PriceSequence  int64  `json:"price_sequence"`
	PriceTimestamp int64  `json:"price_timestamp"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	price, err := parseAmount(j.Price, false)
	if err != nil {
		return nil, err
	}
	if price.IsZero() {
		return nil, fmt.Errorf("price must be positive")
	}
	return &event.PriceUpdate{
		Reserve:        j.Reserve,
		Price:          price,
		PriceSequence:  j.PriceSequence,
		PriceTimestamp: j.PriceTimestamp,
	}, nil
}

type reserveConfigJSON struct {
	Decimals             uint8 `json:"decimals"`
	LoanToValue          int64 `json:"loan_to_value"`
	LiquidationThreshold int64 `json:"liquidation_threshold"`
	LiquidationBonus     int64 `json:"liquidation_bonus"`
	ReserveFactor        int64 `json:"reserve_factor"`
	Active               bool  `json:"active"`
	Frozen               bool  `json:"frozen"`
	BorrowingEnabled     bool  `json:"borrowing_enabled"`
	StableBorrowEnabled  bool  `json:"stable_borrow_enabled"`
	UsableAsCollateral   bool  `json:"usable_as_collateral"`
}

func (j *reserveConfigJSON) toConfig() state.ReserveConfig {
	return state.ReserveConfig{
		Decimals:             j.Decimals,
		LoanToValue:          j.LoanToValue,
		LiquidationThreshold: j.LiquidationThreshold,
		LiquidationBonus:     j.LiquidationBonus,
		ReserveFactor:        j.ReserveFactor,
		Active:               j.Active,
		Frozen:               j.Frozen,
		BorrowingEnabled:     j.BorrowingEnabled,
		StableBorrowEnabled:  j.StableBorrowEnabled,
		UsableAsCollateral:   j.UsableAsCollateral,
	}
}

type strategyJSON struct {
	OptimalUtilization string `json:"optimal_utilization"` // ray
	BaseVariableRate   string `json:"base_variable_rate"`  // ray per year
	VariableSlope1     string `json:"variable_slope1"`
	VariableSlope2     string `json:"variable_slope2"`
	StableSlope1       string `json:"stable_slope1"`
	StableSlope2       string `json:"stable_slope2"`
	MarketStableRate   string `json:"market_stable_rate"`
}

func (j *strategyJSON) toConfig() (rates.StrategyConfig, error) {
	var cfg rates.StrategyConfig
	var err error

	parse := func(name, src string) *uint256.Int {
		if err != nil {
			return nil
		}
		var v *uint256.Int
		if v, err = uint256.FromDecimal(src); err != nil {
			err = fmt.Errorf("parse %s %q: %w", name, src, err)
			return nil
		}
		return v
	}

	cfg.OptimalUtilization = parse("optimal_utilization", j.OptimalUtilization)
	cfg.BaseVariableRate = parse("base_variable_rate", j.BaseVariableRate)
	cfg.VariableSlope1 = parse("variable_slope1", j.VariableSlope1)
	cfg.VariableSlope2 = parse("variable_slope2", j.VariableSlope2)
	cfg.StableSlope1 = parse("stable_slope1", j.StableSlope1)
	cfg.StableSlope2 = parse("stable_slope2", j.StableSlope2)
	cfg.MarketStableRate = parse("market_stable_rate", j.MarketStableRate)

	return cfg, err
}

type reserveInitJSON struct {
	RequestID string            `json:"request_id"`
	Reserve   string            `json:"reserve"`
	Rebasing  bool              `json:"rebasing"`
	Config    reserveConfigJSON `json:"config"`
	Strategy  strategyJSON      `json:"strategy"`
	Sequence  int64             `json:"sequence"`
	Timestamp int64             `json:"timestamp"`
}

func parseReserveInit(data []byte) (*event.ReserveInit, error) {
	var j reserveInitJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ReserveInit: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	strategy, err := j.Strategy.toConfig()
	if err != nil {
		return nil, err
	}
	return &event.ReserveInit{
		RequestID: requestID,
		Reserve:   j.Reserve,
		Rebasing:  j.Rebasing,
		Config:    j.Config.toConfig(),
		Strategy:  strategy,
		Timestamp: j.Timestamp,
		Sequence:  j.Sequence,
	}, nil
}

type reserveConfigUpdateJSON struct {
	RequestID string            `json:"request_id"`
	Reserve   string            `json:"reserve"`
	Config    reserveConfigJSON `json:"config"`
	Sequence  int64             `json:"sequence"`
	Timestamp int64             `json:"timestamp"`
}

func parseReserveConfigUpdate(data []byte) (*event.ReserveConfigUpdate, error) {
	var j reserveConfigUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ReserveConfigUpdate: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.ReserveConfigUpdate{
		RequestID: requestID,
		Reserve:   j.Reserve,
		Config:    j.Config.toConfig(),
		Timestamp: j.Timestamp,
		Sequence:  j.Sequence,
	}, nil
}

type rebaseJSON struct {
	RebaseID  string `json:"rebase_id"`
	Reserve   string `json:"reserve"`
	Factor    string `json:"factor"` // ray
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseRebaseUnderlying(data []byte) (*event.RebaseUnderlying, error) {
	var j rebaseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RebaseUnderlying: %w", err)
	}
	rebaseID, err := uuid.Parse(j.RebaseID)
	if err != nil {
		return nil, fmt.Errorf("parse rebase_id: %w", err)
	}
	factor, err := parseAmount(j.Factor, false)
	if err != nil {
		return nil, err
	}
	if factor.IsZero() {
		return nil, fmt.Errorf("rebase factor must be positive")
	}
	return &event.RebaseUnderlying{
		RebaseID:  rebaseID,
		Reserve:   j.Reserve,
		Factor:    factor,
		Timestamp: j.Timestamp,
		Sequence:  j.Sequence,
	}, nil
}

type setPauseJSON struct {
	RequestID string `json:"request_id"`
	Paused    bool   `json:"paused"`
	Sequence  int64  `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func parseSetPause(data []byte) (*event.SetPause, error) {
	var j setPauseJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SetPause: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.SetPause{
		RequestID: requestID,
		Paused:    j.Paused,
		Timestamp: j.Timestamp,
		Sequence:  j.Sequence,
	}, nil
}
