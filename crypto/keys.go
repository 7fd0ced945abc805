package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressLength is the width of every identity and storage address.
const AddressLength = 32

// AddressPrefix is the human-readable part used when rendering addresses.
const AddressPrefix = "cst"

var (
	ErrInvalidAddressLength = errors.New("crypto: address must be 32 bytes")
	ErrInvalidAddressPrefix = errors.New("crypto: unexpected address prefix")
)

// Address identifies a principal or a storage slot in the ledger.
type Address [AddressLength]byte

// ZeroAddress is the all-zero address. It never holds state.
var ZeroAddress Address

func BytesToAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, ErrInvalidAddressLength
	}
	copy(addr[:], b)
	return addr, nil
}

// MustAddress converts b into an Address and panics on a length mismatch.
func MustAddress(b []byte) Address {
	addr, err := BytesToAddress(b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

func (a Address) IsZero() bool { return a == ZeroAddress }

// Hex renders the address as 0x-prefixed hex.
func (a Address) Hex() string { return hexutil.Encode(a[:]) }

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddressPrefix, prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return BytesToAddress(conv)
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address returns the x-coordinate of the public key. Key-held identities
// therefore always lie on the curve, which is what separates them from
// derived addresses.
func (k *PublicKey) Address() Address {
	compressed := crypto.CompressPubkey(k.PublicKey)
	return MustAddress(compressed[1:])
}
