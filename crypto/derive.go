package crypto

import (
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxSeeds bounds the number of seed tags accepted by derivation.
	MaxSeeds = 16
	// MaxSeedLength bounds the width of each seed tag.
	MaxSeedLength = 32
)

var derivedAddressMarker = []byte("DerivedAddress")

var (
	ErrMaxSeedsExceeded      = errors.New("crypto: too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("crypto: seed too long")
	// ErrInvalidSeeds reports that the seeds and bump hash onto the curve and
	// so could collide with a key-held identity.
	ErrInvalidSeeds = errors.New("crypto: derived address lies on the curve")
	ErrNoViableBump = errors.New("crypto: unable to find a viable bump")
)

// CreateDerivedAddress computes the address owned by program for the given
// seeds and bump. It is a pure function: the same inputs always give the same
// address and no lookup table is involved.
func CreateDerivedAddress(seeds [][]byte, bump uint8, program Address) (Address, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, ErrMaxSeedsExceeded
	}
	parts := make([][]byte, 0, len(seeds)+3)
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Address{}, ErrMaxSeedLengthExceeded
		}
		parts = append(parts, seed)
	}
	parts = append(parts, []byte{bump}, program[:], derivedAddressMarker)
	hash := crypto.Keccak256(parts...)
	addr := MustAddress(hash)
	if OnCurve(addr) {
		return Address{}, ErrInvalidSeeds
	}
	return addr, nil
}

// FindDerivedAddress searches bumps from 255 downwards and returns the first
// address that is off the curve together with the bump that produced it.
func FindDerivedAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, err := CreateDerivedAddress(seeds, uint8(bump), program)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}

// OnCurve reports whether addr is the x-coordinate of a secp256k1 point, in
// which case a private key for it may exist.
func OnCurve(addr Address) bool {
	buf := make([]byte, 1+AddressLength)
	buf[0] = 0x02
	copy(buf[1:], addr[:])
	_, err := crypto.DecompressPubkey(buf)
	return err == nil
}

// DerivedSigner proves authority over a derived address by carrying the
// inputs that reproduce it. Verifiers re-derive rather than trusting Address.
type DerivedSigner struct {
	Program Address
	Seeds   [][]byte
	Bump    uint8
}

// Address re-derives the signer's address.
func (s DerivedSigner) Address() (Address, error) {
	return CreateDerivedAddress(s.Seeds, s.Bump, s.Program)
}
