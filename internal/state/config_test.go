package state_test

import (
	"testing"

	"LendLedger/internal/state"
)

func TestValidateReserveConfig(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*state.ReserveConfig)
		wantErr bool
	}{
		{"valid", func(c *state.ReserveConfig) {}, false},
		{"ltv above max", func(c *state.ReserveConfig) { c.LoanToValue = 10_001; c.LiquidationThreshold = 10_001 }, true},
		{"threshold below ltv", func(c *state.ReserveConfig) { c.LiquidationThreshold = c.LoanToValue - 1 }, true},
		{"threshold above max", func(c *state.ReserveConfig) { c.LiquidationThreshold = 10_001 }, true},
		{"collateral without bonus", func(c *state.ReserveConfig) { c.LiquidationBonus = 10_000 }, true},
		{"reserve factor at scale", func(c *state.ReserveConfig) { c.ReserveFactor = 10_000 }, true},
		{"negative reserve factor", func(c *state.ReserveConfig) { c.ReserveFactor = -1 }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := state.ValidateReserveConfig(cfg)
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
