package events

import (
	"custodyledger/core/types"
	"custodyledger/crypto"
)

const TypeTokenMinted = "token.minted"

type TokenMinted struct {
	TxID        string
	Mint        crypto.Address
	Destination crypto.Address
	Authority   crypto.Address
	Amount      string
}

func (TokenMinted) EventType() string { return TypeTokenMinted }

func (e TokenMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenMinted,
		TxID: e.TxID,
		Attributes: map[string]string{
			"mint":        e.Mint.String(),
			"destination": e.Destination.String(),
			"authority":   e.Authority.String(),
			"amount":      e.Amount,
		},
	}
}
