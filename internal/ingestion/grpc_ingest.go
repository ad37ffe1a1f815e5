package ingestion

import (
	"context"
	"fmt"
	"time"

	"LendLedger/internal/event"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// GRPCIngestService provides admin/manual event injection via gRPC.
// gRPC ingest is for admin operations and manual event injection, not
// for high-throughput ingestion (use NATS for that).
type GRPCIngestService struct {
	eventChan chan<- event.Event
}

func NewGRPCIngestService(eventChan chan<- event.Event) *GRPCIngestService {
	return &GRPCIngestService{eventChan: eventChan}
}

// InjectRaw parses a JSON payload as the named event type and enqueues
// it. Backs the HTTP ingest endpoints, which accept the same wire
// format as the NATS subjects.
func (s *GRPCIngestService) InjectRaw(ctx context.Context, eventType string, payload []byte) (event.Event, error) {
	raw := RawEvent{
		Subject:   eventType,
		Data:      payload,
		Timestamp: time.Now(),
	}
	evt, err := ParseRawEvent(raw, eventType)
	if err != nil {
		return nil, err
	}

	select {
	case s.eventChan <- evt:
		return evt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InjectDeposit manually injects a Deposit event.
func (s *GRPCIngestService) InjectDeposit(
	ctx context.Context,
	userID uuid.UUID,
	reserve string,
	amount *uint256.Int,
) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("amount must be positive")
	}

	now := time.Now()
	evt := &event.Deposit{
		DepositID: uuid.New(),
		UserID:    userID,
		Reserve:   reserve,
		Amount:    amount,
		Timestamp: now.Unix(),
		Sequence:  now.UnixMicro(), // Admin-injected: use timestamp as sequence
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectPriceUpdate manually injects an oracle price.
func (s *GRPCIngestService) InjectPriceUpdate(
	ctx context.Context,
	reserve string,
	price *uint256.Int,
	priceSequence int64,
) error {
	if price == nil || price.IsZero() {
		return fmt.Errorf("price must be positive")
	}

	evt := &event.PriceUpdate{
		Reserve:        reserve,
		Price:          price,
		PriceSequence:  priceSequence,
		PriceTimestamp: time.Now().Unix(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectRebase manually injects a rebase for a rebasing underlying.
func (s *GRPCIngestService) InjectRebase(
	ctx context.Context,
	reserve string,
	factor *uint256.Int,
) error {
	if factor == nil || factor.IsZero() {
		return fmt.Errorf("factor must be positive")
	}

	now := time.Now()
	evt := &event.RebaseUnderlying{
		RebaseID:  uuid.New(),
		Reserve:   reserve,
		Factor:    factor,
		Timestamp: now.Unix(),
		Sequence:  now.UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InjectPause manually toggles the global pause switch.
func (s *GRPCIngestService) InjectPause(ctx context.Context, paused bool) error {
	now := time.Now()
	evt := &event.SetPause{
		RequestID: uuid.New(),
		Paused:    paused,
		Timestamp: now.Unix(),
		Sequence:  now.UnixMicro(),
	}

	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
