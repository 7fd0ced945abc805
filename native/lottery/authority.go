package lottery

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"custodyledger/crypto"
)

var (
	entrySeed         = []byte("lottery-entry")
	mintAuthoritySeed = []byte("mint-authority")
)

// EntryAddress derives the record address for user under program. The
// address depends on nothing else, so a user can hold one entry at a time.
func EntryAddress(program, user crypto.Address) (crypto.Address, uint8, error) {
	return crypto.FindDerivedAddress(entrySeeds(user), program)
}

func entrySeeds(user crypto.Address) [][]byte {
	return [][]byte{entrySeed, user.Bytes()}
}

// MintAuthority returns the signer that issues rewards on the program's
// behalf. It is recomputed on every call and never stored.
func MintAuthority(program crypto.Address) (crypto.DerivedSigner, crypto.Address, error) {
	seeds := [][]byte{mintAuthoritySeed}
	addr, bump, err := crypto.FindDerivedAddress(seeds, program)
	if err != nil {
		return crypto.DerivedSigner{}, crypto.Address{}, err
	}
	return crypto.DerivedSigner{Program: program, Seeds: seeds, Bump: bump}, addr, nil
}

// DefaultProgram is the program id the daemon registers the engine under.
var DefaultProgram = crypto.MustAddress(ethcrypto.Keccak256([]byte("custodyledger/lottery")))
