package token

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"custodyledger/core/events"
	"custodyledger/core/state"
	"custodyledger/crypto"
)

var (
	ErrMintNotFound          = errors.New("token: mint not found")
	ErrMintExists            = errors.New("token: mint already exists")
	ErrAccountNotFound       = errors.New("token: account not found")
	ErrAccountExists         = errors.New("token: account already exists")
	ErrMintMismatch          = errors.New("token: account mint mismatch")
	ErrUnauthorizedAuthority = errors.New("token: signer is not the mint authority")
	ErrInvalidAmount         = errors.New("token: amount must be positive")
	ErrOverflow              = errors.New("token: amount overflow")
)

var (
	mintPrefix    = []byte("token/mint:")
	accountPrefix = []byte("token/account:")
)

func mintKey(id crypto.Address) []byte {
	return append(append([]byte(nil), mintPrefix...), id[:]...)
}

func accountKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), accountPrefix...), addr[:]...)
}

// Mint describes a reward asset and the only identity allowed to issue it.
type Mint struct {
	ID        crypto.Address
	Authority crypto.Address
	Supply    *uint256.Int
	Decimals  uint8
}

// Account holds a balance of exactly one mint.
type Account struct {
	Address crypto.Address
	Mint    crypto.Address
	Owner   crypto.Address
	Amount  *uint256.Int
}

// Ledger issues reward units. It keeps no state of its own; everything lives
// in the transaction passed to each call.
type Ledger struct {
	logger *slog.Logger
}

func NewLedger() *Ledger {
	return &Ledger{logger: slog.Default()}
}

// SetLogger overrides the structured logger. Passing nil restores the
// process default.
func (l *Ledger) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	l.logger = logger
}

// CreateMint registers a new mint whose issuance is controlled by authority.
func (l *Ledger) CreateMint(tx *state.Tx, id, authority crypto.Address, decimals uint8) (*Mint, error) {
	if _, ok, err := l.loadMint(tx, id); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrMintExists, id)
	}
	mint := &Mint{ID: id, Authority: authority, Supply: new(uint256.Int), Decimals: decimals}
	if err := l.storeMint(tx, mint); err != nil {
		return nil, err
	}
	return mint, nil
}

// OpenAccount creates an empty token account for owner holding mint.
func (l *Ledger) OpenAccount(tx *state.Tx, addr, mint, owner crypto.Address) (*Account, error) {
	if _, ok, err := l.loadMint(tx, mint); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMintNotFound, mint)
	}
	if _, ok, err := l.loadAccount(tx, addr); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountExists, addr)
	}
	acc := &Account{Address: addr, Mint: mint, Owner: owner, Amount: new(uint256.Int)}
	if err := l.storeAccount(tx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Mint returns the mint registered under id.
func (l *Ledger) Mint(tx *state.Tx, id crypto.Address) (*Mint, error) {
	mint, ok, err := l.loadMint(tx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMintNotFound, id)
	}
	return mint, nil
}

// Account returns the token account stored at addr.
func (l *Ledger) Account(tx *state.Tx, addr crypto.Address) (*Account, error) {
	acc, ok, err := l.loadAccount(tx, addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return acc, nil
}

// Issue mints amount new units of mintID into destination. The signer must
// re-derive to the mint's registered authority and the destination must hold
// the same mint.
func (l *Ledger) Issue(tx *state.Tx, mintID, destination crypto.Address, signer crypto.DerivedSigner, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	mint, err := l.Mint(tx, mintID)
	if err != nil {
		return err
	}
	authority, err := signer.Address()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorizedAuthority, err)
	}
	if authority != mint.Authority {
		return fmt.Errorf("%w: %s", ErrUnauthorizedAuthority, authority)
	}
	acc, err := l.Account(tx, destination)
	if err != nil {
		return err
	}
	if acc.Mint != mint.ID {
		return fmt.Errorf("%w: account holds %s", ErrMintMismatch, acc.Mint)
	}
	supply, overflow := new(uint256.Int).AddOverflow(mint.Supply, amount)
	if overflow {
		return ErrOverflow
	}
	balance, overflow := new(uint256.Int).AddOverflow(acc.Amount, amount)
	if overflow {
		return ErrOverflow
	}
	mint.Supply = supply
	acc.Amount = balance
	if err := l.storeMint(tx, mint); err != nil {
		return err
	}
	if err := l.storeAccount(tx, acc); err != nil {
		return err
	}
	l.logger.Info("minting tokens",
		slog.String("tx", tx.ID()),
		slog.String("mint", mint.ID.String()),
		slog.String("destination", destination.String()),
		slog.String("amount", amount.Dec()))
	tx.Emit(events.TokenMinted{
		TxID:        tx.ID(),
		Mint:        mint.ID,
		Destination: destination,
		Authority:   authority,
		Amount:      amount.Dec(),
	})
	return nil
}

func (l *Ledger) loadMint(tx *state.Tx, id crypto.Address) (*Mint, bool, error) {
	data, ok, err := tx.GetValue(mintKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	mint := new(Mint)
	if err := rlp.DecodeBytes(data, mint); err != nil {
		return nil, false, fmt.Errorf("token: decode mint: %w", err)
	}
	if mint.Supply == nil {
		mint.Supply = new(uint256.Int)
	}
	return mint, true, nil
}

func (l *Ledger) storeMint(tx *state.Tx, mint *Mint) error {
	encoded, err := rlp.EncodeToBytes(mint)
	if err != nil {
		return err
	}
	return tx.PutValue(mintKey(mint.ID), encoded)
}

func (l *Ledger) loadAccount(tx *state.Tx, addr crypto.Address) (*Account, bool, error) {
	data, ok, err := tx.GetValue(accountKey(addr))
	if err != nil || !ok {
		return nil, false, err
	}
	acc := new(Account)
	if err := rlp.DecodeBytes(data, acc); err != nil {
		return nil, false, fmt.Errorf("token: decode account: %w", err)
	}
	if acc.Amount == nil {
		acc.Amount = new(uint256.Int)
	}
	return acc, true, nil
}

func (l *Ledger) storeAccount(tx *state.Tx, acc *Account) error {
	encoded, err := rlp.EncodeToBytes(acc)
	if err != nil {
		return err
	}
	return tx.PutValue(accountKey(acc.Address), encoded)
}
