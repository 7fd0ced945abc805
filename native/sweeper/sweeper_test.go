package sweeper

import (
	"bytes"
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"custodyledger/core/events"
	"custodyledger/core/state"
	"custodyledger/crypto"
	"custodyledger/native/lottery"
	"custodyledger/native/token"
	"custodyledger/storage"
)

func testAddress(fill byte) crypto.Address {
	return crypto.MustAddress(bytes.Repeat([]byte{fill}, crypto.AddressLength))
}

var (
	program = testAddress(0xEE)
	payer   = testAddress(0x01)
	dest    = testAddress(0xD0)
)

func newManager(t *testing.T) (*state.Manager, *events.Collector) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	manager := state.NewManager(db)
	collector := &events.Collector{}
	manager.SetEmitter(collector)
	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		return tx.Deposit(payer, uint256.NewInt(100_000_000))
	}))
	return manager, collector
}

// tombstone leaves a closed record at addr holding extra units.
func tombstone(t *testing.T, manager *state.Manager, addr crypto.Address, extra uint64) {
	t.Helper()
	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		if err := tx.CreateRecord(addr, lottery.EntrySize, payer, program); err != nil {
			return err
		}
		if err := tx.CloseRecord(addr, program, payer); err != nil {
			return err
		}
		return tx.Transfer(payer, addr, uint256.NewInt(extra))
	}))
}

func balanceOf(t *testing.T, manager *state.Manager, addr crypto.Address) uint64 {
	t.Helper()
	var out uint64
	require.NoError(t, manager.View(func(tx *state.Tx) error {
		bal, err := tx.Balance(addr)
		out = bal.Uint64()
		return err
	}))
	return out
}

func TestReclaimMovesWholeBalance(t *testing.T) {
	manager, collector := newManager(t)
	record := testAddress(0x10)
	tombstone(t, manager, record, 4_321)

	s := New(crypto.Address{}, nil)
	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		moved, err := s.Reclaim(tx, testAddress(0x42), record, dest)
		if err != nil {
			return err
		}
		require.Equal(t, uint64(4_321), moved.Uint64())
		return nil
	}))
	require.Equal(t, uint64(4_321), balanceOf(t, manager, dest))
	require.Equal(t, uint64(0), balanceOf(t, manager, record))
	require.NoError(t, manager.View(func(tx *state.Tx) error {
		exists, err := tx.Exists(record)
		require.False(t, exists)
		return err
	}))
	require.Len(t, collector.OfType(events.TypeRecordReclaimed), 1)
}

func TestReclaimRejectsLiveRecord(t *testing.T) {
	manager, _ := newManager(t)
	record := testAddress(0x11)
	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		if err := tx.CreateRecord(record, lottery.EntrySize, payer, program); err != nil {
			return err
		}
		entry := &lottery.Entry{Initialized: true, User: payer, Timestamp: 1000}
		return tx.WriteData(record, program, entry.Encode())
	}))
	before := balanceOf(t, manager, record)

	err := manager.Update(func(tx *state.Tx) error {
		_, err := New(crypto.Address{}, nil).Reclaim(tx, payer, record, dest)
		return err
	})
	require.ErrorIs(t, err, ErrInvalidDiscriminator)
	require.Equal(t, before, balanceOf(t, manager, record))
	require.Equal(t, uint64(0), balanceOf(t, manager, dest))
}

func TestReclaimRejectsSmallRecord(t *testing.T) {
	manager, _ := newManager(t)
	record := testAddress(0x12)
	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		return tx.CreateRecord(record, lottery.DiscriminatorLength, payer, program)
	}))
	err := manager.Update(func(tx *state.Tx) error {
		_, err := New(crypto.Address{}, nil).Reclaim(tx, payer, record, dest)
		return err
	})
	require.ErrorIs(t, err, ErrRecordTooSmall)

	err = manager.Update(func(tx *state.Tx) error {
		_, err := New(crypto.Address{}, nil).Reclaim(tx, payer, testAddress(0x13), dest)
		return err
	})
	require.ErrorIs(t, err, state.ErrAccountNotFound)
}

func TestReclaimRequiresAuthorityWhenConfigured(t *testing.T) {
	manager, _ := newManager(t)
	record := testAddress(0x14)
	tombstone(t, manager, record, 10)
	authority := testAddress(0xAA)
	s := New(authority, nil)
	require.True(t, s.Privileged())

	err := manager.Update(func(tx *state.Tx) error {
		_, err := s.Reclaim(tx, testAddress(0x42), record, dest)
		return err
	})
	require.ErrorIs(t, err, ErrUnauthorizedSweeper)

	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		_, err := s.Reclaim(tx, authority, record, dest)
		return err
	}))
	require.Equal(t, uint64(10), balanceOf(t, manager, dest))
}

func TestReclaimOverflowLeavesBalances(t *testing.T) {
	manager, _ := newManager(t)
	record := testAddress(0x15)
	tombstone(t, manager, record, 10)
	max := new(uint256.Int).SetAllOne()
	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		return tx.Deposit(dest, max)
	}))

	err := manager.Update(func(tx *state.Tx) error {
		_, err := New(crypto.Address{}, nil).Reclaim(tx, payer, record, dest)
		return err
	})
	require.ErrorIs(t, err, ErrOverflow)
	require.Equal(t, uint64(10), balanceOf(t, manager, record))
}

func TestReclaimRejectsRecordAsDestination(t *testing.T) {
	manager, collector := newManager(t)
	record := testAddress(0x16)
	tombstone(t, manager, record, 4_321)

	err := manager.Update(func(tx *state.Tx) error {
		_, err := New(crypto.Address{}, nil).Reclaim(tx, payer, record, record)
		return err
	})
	require.ErrorIs(t, err, ErrSelfDestination)
	require.Equal(t, uint64(4_321), balanceOf(t, manager, record))
	require.Empty(t, collector.OfType(events.TypeRecordReclaimed))
}

func TestSweepClosedSkipsLiveRecords(t *testing.T) {
	manager, _ := newManager(t)
	closedA, closedB, live := testAddress(0x20), testAddress(0x21), testAddress(0x22)
	tombstone(t, manager, closedA, 7)
	tombstone(t, manager, closedB, 9)
	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		if err := tx.CreateRecord(live, lottery.EntrySize, payer, program); err != nil {
			return err
		}
		return tx.WriteData(live, program, (&lottery.Entry{User: payer}).Encode())
	}))

	s := New(crypto.Address{}, nil)
	s.SetRateLimit(1000, 1)
	report, err := s.SweepClosed(context.Background(), manager, program, payer, dest)
	require.NoError(t, err)
	require.Equal(t, 3, report.Scanned)
	require.ElementsMatch(t, []crypto.Address{closedA, closedB}, report.Reclaimed)
	require.Empty(t, report.Failed)
	require.Equal(t, uint64(16), balanceOf(t, manager, dest))
	require.NotZero(t, balanceOf(t, manager, live))
}

func TestSweepClosedStopsOnCancel(t *testing.T) {
	manager, _ := newManager(t)
	tombstone(t, manager, testAddress(0x30), 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New(crypto.Address{}, nil).SweepClosed(ctx, manager, program, payer, dest)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, report.Reclaimed)
	require.Equal(t, uint64(5), balanceOf(t, manager, testAddress(0x30)))
}

func TestRevivalCannotDoubleSpend(t *testing.T) {
	manager, collector := newManager(t)
	ledger := token.NewLedger()
	engine := lottery.NewEngine(program)
	mint, tokenAcct := testAddress(0xA0), testAddress(0x02)
	now := int64(1000)
	engine.SetIssuer(ledger)
	engine.SetRewardMint(mint)
	engine.SetNowFunc(func() int64 { return now })
	_, authority, err := lottery.MintAuthority(program)
	require.NoError(t, err)
	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		if _, err := ledger.CreateMint(tx, mint, authority, 0); err != nil {
			return err
		}
		_, err := ledger.OpenAccount(tx, tokenAcct, mint, payer)
		return err
	}))
	enter := func() error {
		return manager.Update(func(tx *state.Tx) error {
			_, err := engine.Enter(tx, payer, tokenAcct)
			return err
		})
	}
	entryAddr, _, err := lottery.EntryAddress(program, payer)
	require.NoError(t, err)

	require.NoError(t, enter())
	now = 1061
	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		if _, err := engine.Redeem(tx, entryAddr, payer, tokenAcct); err != nil {
			return err
		}
		return tx.Transfer(payer, entryAddr, uint256.NewInt(2_500))
	}))

	require.ErrorIs(t, enter(), lottery.ErrRecordAlreadyExists)
	err = manager.Update(func(tx *state.Tx) error {
		_, err := engine.Redeem(tx, entryAddr, payer, tokenAcct)
		return err
	})
	require.ErrorIs(t, err, lottery.ErrNotLiveEntry)

	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		_, err := New(crypto.Address{}, nil).Reclaim(tx, payer, entryAddr, dest)
		return err
	}))
	require.Equal(t, uint64(2_500), balanceOf(t, manager, dest))
	require.Equal(t, uint64(0), balanceOf(t, manager, entryAddr))

	now = 2000
	require.NoError(t, enter())
	now = 2061
	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		_, err := engine.Redeem(tx, entryAddr, payer, tokenAcct)
		return err
	}))
	require.Len(t, collector.OfType(events.TypeTokenMinted), 2)
}
