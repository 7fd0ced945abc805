package lottery

import (
	"bytes"
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"custodyledger/crypto"
)

// DiscriminatorLength is the width of the header tag that prefixes every
// stored record.
const DiscriminatorLength = 8

// EntrySize is the full persisted footprint of an Entry: tag, init flag,
// user, bump, timestamp and token account.
const EntrySize = DiscriminatorLength + 1 + crypto.AddressLength + 1 + 8 + crypto.AddressLength

// EntryDiscriminator tags live Entry records.
var EntryDiscriminator = func() [DiscriminatorLength]byte {
	var tag [DiscriminatorLength]byte
	copy(tag[:], ethcrypto.Keccak256([]byte("account:LotteryEntry")))
	return tag
}()

// Entry is one user's ticket. User and TokenAccount never change after
// creation and Timestamp is written exactly once.
type Entry struct {
	// Initialized is written on creation and not consulted by any check.
	Initialized  bool
	User         crypto.Address
	Bump         uint8
	Timestamp    int64
	TokenAccount crypto.Address
}

// Encode renders the entry in its fixed on-store layout.
func (e *Entry) Encode() []byte {
	buf := make([]byte, EntrySize)
	off := copy(buf, EntryDiscriminator[:])
	if e.Initialized {
		buf[off] = 1
	}
	off++
	off += copy(buf[off:], e.User[:])
	buf[off] = e.Bump
	off++
	binary.LittleEndian.PutUint64(buf[off:], uint64(e.Timestamp))
	off += 8
	copy(buf[off:], e.TokenAccount[:])
	return buf
}

// DecodeEntry parses a live entry. Any header other than EntryDiscriminator,
// including the closed tombstone, is rejected with ErrNotLiveEntry.
func DecodeEntry(data []byte) (*Entry, error) {
	if len(data) < DiscriminatorLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidRecord, len(data))
	}
	if !bytes.Equal(data[:DiscriminatorLength], EntryDiscriminator[:]) {
		return nil, ErrNotLiveEntry
	}
	if len(data) != EntrySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidRecord, len(data))
	}
	off := DiscriminatorLength
	var entry Entry
	switch data[off] {
	case 0:
	case 1:
		entry.Initialized = true
	default:
		return nil, fmt.Errorf("%w: bad init flag %d", ErrInvalidRecord, data[off])
	}
	off++
	off += copy(entry.User[:], data[off:off+crypto.AddressLength])
	entry.Bump = data[off]
	off++
	entry.Timestamp = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	copy(entry.TokenAccount[:], data[off:])
	return &entry, nil
}
