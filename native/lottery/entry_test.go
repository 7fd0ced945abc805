package lottery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"custodyledger/core/state"
)

func TestEntryLayout(t *testing.T) {
	require.Equal(t, 82, EntrySize)

	entry := &Entry{
		Initialized:  true,
		User:         newTestAddress(0x11),
		Bump:         254,
		Timestamp:    1_700_000_000,
		TokenAccount: newTestAddress(0x22),
	}
	data := entry.Encode()
	require.Len(t, data, EntrySize)
	require.Equal(t, EntryDiscriminator[:], data[:DiscriminatorLength])
	require.Equal(t, byte(1), data[8])
	require.Equal(t, byte(254), data[41])

	decoded, err := DecodeEntry(data)
	require.NoError(t, err)
	require.Equal(t, entry, decoded)
}

func TestDecodeEntryRejectsTombstone(t *testing.T) {
	data := make([]byte, EntrySize)
	copy(data, state.ClosedRecordTag[:])
	_, err := DecodeEntry(data)
	require.ErrorIs(t, err, ErrNotLiveEntry)
}

func TestDecodeEntryRejectsMalformed(t *testing.T) {
	_, err := DecodeEntry([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidRecord)

	short := (&Entry{}).Encode()[:EntrySize-1]
	_, err = DecodeEntry(short)
	require.ErrorIs(t, err, ErrInvalidRecord)

	badFlag := (&Entry{}).Encode()
	badFlag[DiscriminatorLength] = 7
	_, err = DecodeEntry(badFlag)
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestEntryAddressIsPerUser(t *testing.T) {
	program := newTestAddress(0xEE)
	a, bumpA, err := EntryAddress(program, newTestAddress(0x01))
	require.NoError(t, err)
	b, _, err := EntryAddress(program, newTestAddress(0x02))
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	again, bumpAgain, err := EntryAddress(program, newTestAddress(0x01))
	require.NoError(t, err)
	require.Equal(t, a, again)
	require.Equal(t, bumpA, bumpAgain)

	_, authority, err := MintAuthority(program)
	require.NoError(t, err)
	require.NotEqual(t, a, authority)
}
