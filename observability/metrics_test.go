package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"custodyledger/core/events"
	"custodyledger/core/state"
	"custodyledger/storage"
)

var errTestSentinel = errors.New("test: registered failure")

func TestReasonUsesRegisteredSentinels(t *testing.T) {
	RegisterFailureReasons(errTestSentinel)

	require.Equal(t, errTestSentinel.Error(), reason(fmt.Errorf("wrapped: %w", errTestSentinel)))
	require.Equal(t, errTestSentinel.Error(), reason(errors.Join(errors.New("disk on fire 0x1f"), errTestSentinel)))
	require.Equal(t, context.Canceled.Error(), reason(fmt.Errorf("sweep: %w", context.Canceled)))
	require.Equal(t, "other", reason(errors.New("unregistered failure 42")))
	require.Equal(t, "other", reason(errors.Join(errors.New("a"), errors.New("b"))))
}

func TestCountingEmitterCountsCommittedUnits(t *testing.T) {
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	manager := state.NewManager(db)
	collector := &events.Collector{}
	manager.SetEmitter(CountingEmitter{Next: collector})

	rewardsBefore := testutil.ToFloat64(Ledger().rewards)
	reclaimedBefore := testutil.ToFloat64(Ledger().reclaimed)

	failure := errors.New("later step failed")
	err := manager.Update(func(tx *state.Tx) error {
		tx.Emit(events.LotteryRedeemed{Reward: 100, Refund: "0"})
		tx.Emit(events.RecordReclaimed{Amount: "4321"})
		return failure
	})
	require.ErrorIs(t, err, failure)
	require.Equal(t, rewardsBefore, testutil.ToFloat64(Ledger().rewards))
	require.Equal(t, reclaimedBefore, testutil.ToFloat64(Ledger().reclaimed))
	require.Empty(t, collector.Events())

	require.NoError(t, manager.Update(func(tx *state.Tx) error {
		tx.Emit(events.LotteryRedeemed{Reward: 100, Refund: "0"})
		tx.Emit(events.RecordReclaimed{Amount: "4321"})
		return nil
	}))
	require.Equal(t, rewardsBefore+100, testutil.ToFloat64(Ledger().rewards))
	require.Equal(t, reclaimedBefore+4321, testutil.ToFloat64(Ledger().reclaimed))
	require.Len(t, collector.Events(), 2)
}
