package types

import (
	"github.com/holiman/uint256"

	"custodyledger/crypto"
)

// Account is the unit of storage in the ledger. Balance is the rent deposit
// backing the account; Owner is the program allowed to mutate Data.
type Account struct {
	Balance *uint256.Int   `json:"balance"`
	Owner   crypto.Address `json:"owner"`
	Data    []byte         `json:"data"`
}
