// Package sweeper drains the storage-backing balance of tombstoned records.
//
// Reclaim trusts nothing but the record's header tag: once a record is closed
// its typed contents are gone, so the tag is the only thing left to check.
// That is safe only because the record store zero-fills every byte after the
// tag on close and purges drained accounts on commit. The destination of a
// reclaim is never validated. Who may call Reclaim is decided by the
// maintenance authority: without one, any caller can sweep any tombstone to
// any destination.
package sweeper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"
	"golang.org/x/time/rate"

	"custodyledger/core/events"
	"custodyledger/core/state"
	"custodyledger/core/types"
	"custodyledger/crypto"
	"custodyledger/native/lottery"
	"custodyledger/observability"
)

var (
	ErrInvalidDiscriminator = errors.New("sweeper: expected closed record discriminator")
	ErrRecordTooSmall       = errors.New("sweeper: record too small to carry a discriminator")
	ErrUnauthorizedSweeper  = errors.New("sweeper: caller is not the maintenance authority")
	ErrSelfDestination      = errors.New("sweeper: destination is the record being reclaimed")
	// ErrOverflow reports that the destination cannot absorb the balance.
	ErrOverflow = state.ErrBalanceOverflow
)

func init() {
	observability.RegisterFailureReasons(
		ErrInvalidDiscriminator, ErrRecordTooSmall, ErrUnauthorizedSweeper, ErrSelfDestination,
		state.ErrAccountNotFound, state.ErrBalanceOverflow, state.ErrInsufficientBalance,
	)
}

// Sweeper reclaims tombstoned records.
type Sweeper struct {
	authority crypto.Address
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates a sweeper. A zero authority leaves Reclaim open to every
// caller, which is logged loudly.
func New(authority crypto.Address, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{authority: authority, logger: logger}
	if authority.IsZero() {
		logger.Warn("sweeper running without a maintenance authority; any caller may reclaim closed records to any destination")
	}
	return s
}

// Privileged reports whether Reclaim is restricted to the maintenance
// authority.
func (s *Sweeper) Privileged() bool { return !s.authority.IsZero() }

// SetRateLimit paces SweepClosed. A non-positive rate removes the limit.
func (s *Sweeper) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		s.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Reclaim moves the whole balance of record to destination. The record must
// carry the closed tag; its remaining bytes are left as they are and the
// drained account is purged when the transaction commits.
func (s *Sweeper) Reclaim(tx *state.Tx, caller, record, destination crypto.Address) (moved *uint256.Int, err error) {
	start := time.Now()
	defer func() { observability.Ledger().Observe("sweeper", "reclaim", time.Since(start), err) }()

	if s.Privileged() && caller != s.authority {
		return nil, ErrUnauthorizedSweeper
	}
	if destination == record {
		return nil, ErrSelfDestination
	}
	acc, err := tx.Account(record)
	if err != nil {
		return nil, err
	}
	if len(acc.Data) <= lottery.DiscriminatorLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrRecordTooSmall, len(acc.Data))
	}
	if !bytes.Equal(acc.Data[:lottery.DiscriminatorLength], state.ClosedRecordTag[:]) {
		return nil, ErrInvalidDiscriminator
	}
	if err := tx.Transfer(record, destination, acc.Balance); err != nil {
		return nil, err
	}

	amount := acc.Balance.Dec()
	s.logger.Info("reclaimed closed record",
		slog.String("tx", tx.ID()),
		slog.String("record", record.String()),
		slog.String("destination", destination.String()),
		slog.String("amount", amount))
	tx.Emit(events.RecordReclaimed{
		TxID:        tx.ID(),
		Record:      record,
		Destination: destination,
		Caller:      caller,
		Amount:      amount,
	})
	return new(uint256.Int).Set(acc.Balance), nil
}

// SweepReport summarises one SweepClosed pass.
type SweepReport struct {
	Scanned   int
	Reclaimed []crypto.Address
	Failed    map[crypto.Address]error
}

// SweepClosed scans every record owned by program and reclaims the
// tombstoned ones, each in its own transaction. Live records are skipped.
func (s *Sweeper) SweepClosed(ctx context.Context, manager *state.Manager, program, caller, destination crypto.Address) (*SweepReport, error) {
	report := &SweepReport{Failed: make(map[crypto.Address]error)}
	var candidates []crypto.Address
	err := manager.ScanAccounts(program, func(addr crypto.Address, acc *types.Account) error {
		report.Scanned++
		if len(acc.Data) > lottery.DiscriminatorLength && bytes.Equal(acc.Data[:lottery.DiscriminatorLength], state.ClosedRecordTag[:]) {
			candidates = append(candidates, addr)
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	for _, addr := range candidates {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return report, err
			}
		} else if err := ctx.Err(); err != nil {
			return report, err
		}
		err := manager.Update(func(tx *state.Tx) error {
			_, err := s.Reclaim(tx, caller, addr, destination)
			return err
		})
		if err != nil {
			report.Failed[addr] = err
			s.logger.Warn("reclaim failed", slog.String("record", addr.String()), slog.Any("error", err))
			continue
		}
		report.Reclaimed = append(report.Reclaimed, addr)
	}
	return report, nil
}
