package state

import "github.com/holiman/uint256"

// Rent prices record storage. A record is rent exempt when funded with
// (AccountOverhead + size) * PerByteYear * ExemptionYears units.
type Rent struct {
	AccountOverhead uint64
	PerByteYear     uint64
	ExemptionYears  uint64
}

func DefaultRent() Rent {
	return Rent{AccountOverhead: 128, PerByteYear: 3480, ExemptionYears: 2}
}

// MinimumBalance returns the rent-exempt deposit for a record of size bytes.
func (r Rent) MinimumBalance(size int) *uint256.Int {
	out := uint256.NewInt(r.AccountOverhead + uint64(size))
	out.Mul(out, uint256.NewInt(r.PerByteYear))
	return out.Mul(out, uint256.NewInt(r.ExemptionYears))
}
