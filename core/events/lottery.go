package events

import (
	"strconv"

	"custodyledger/core/types"
	"custodyledger/crypto"
)

const (
	TypeLotteryEntered  = "lottery.entered"
	TypeLotteryRedeemed = "lottery.redeemed"
)

type LotteryEntered struct {
	TxID         string
	Entry        crypto.Address
	User         crypto.Address
	TokenAccount crypto.Address
	Bump         uint8
	Timestamp    int64
}

func (LotteryEntered) EventType() string { return TypeLotteryEntered }

func (e LotteryEntered) Event() *types.Event {
	return &types.Event{
		Type: TypeLotteryEntered,
		TxID: e.TxID,
		Attributes: map[string]string{
			"entry":        e.Entry.String(),
			"user":         e.User.String(),
			"tokenAccount": e.TokenAccount.String(),
			"bump":         strconv.Itoa(int(e.Bump)),
			"timestamp":    strconv.FormatInt(e.Timestamp, 10),
		},
	}
}

type LotteryRedeemed struct {
	TxID         string
	Entry        crypto.Address
	User         crypto.Address
	TokenAccount crypto.Address
	Reward       uint64
	Refund       string
}

func (LotteryRedeemed) EventType() string { return TypeLotteryRedeemed }

func (e LotteryRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeLotteryRedeemed,
		TxID: e.TxID,
		Attributes: map[string]string{
			"entry":        e.Entry.String(),
			"user":         e.User.String(),
			"tokenAccount": e.TokenAccount.String(),
			"reward":       strconv.FormatUint(e.Reward, 10),
			"refund":       e.Refund,
		},
	}
}
