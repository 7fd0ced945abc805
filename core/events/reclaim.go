package events

import (
	"custodyledger/core/types"
	"custodyledger/crypto"
)

// TypeRecordReclaimed is emitted whenever the sweeper drains a tombstoned
// record.
const TypeRecordReclaimed = "record.reclaimed"

type RecordReclaimed struct {
	TxID        string
	Record      crypto.Address
	Destination crypto.Address
	Caller      crypto.Address
	Amount      string
}

func (RecordReclaimed) EventType() string { return TypeRecordReclaimed }

func (e RecordReclaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRecordReclaimed,
		TxID: e.TxID,
		Attributes: map[string]string{
			"record":      e.Record.String(),
			"destination": e.Destination.String(),
			"caller":      e.Caller.String(),
			"amount":      e.Amount,
		},
	}
}
