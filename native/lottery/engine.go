package lottery

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"

	"custodyledger/core/events"
	"custodyledger/core/state"
	"custodyledger/crypto"
	"custodyledger/native/token"
	"custodyledger/observability"
)

const (
	// CooldownSeconds must strictly elapse between entry and redemption.
	CooldownSeconds int64 = 60
	// RewardAmount is minted to the bound token account on redemption.
	RewardAmount uint64 = 100
)

var (
	ErrRecordAlreadyExists  = errors.New("lottery: entry already exists")
	ErrRecordNotFound       = errors.New("lottery: entry not found")
	ErrNotLiveEntry         = errors.New("lottery: record is not a live entry")
	ErrInvalidRecord        = errors.New("lottery: malformed entry record")
	ErrAddressMismatch      = errors.New("lottery: entry address does not match its seeds")
	ErrOwnershipMismatch    = errors.New("lottery: caller does not own entry")
	ErrTokenAccountMismatch = errors.New("lottery: token account does not match entry")
	ErrTooEarlyToRedeem     = errors.New("lottery: too early to redeem winnings")
	errNilIssuer            = errors.New("lottery engine: issuer not configured")
	errNilRewardMint        = errors.New("lottery engine: reward mint not configured")
)

func init() {
	observability.RegisterFailureReasons(
		ErrRecordAlreadyExists, ErrRecordNotFound, ErrNotLiveEntry, ErrInvalidRecord,
		ErrAddressMismatch, ErrOwnershipMismatch, ErrTokenAccountMismatch, ErrTooEarlyToRedeem,
		errNilIssuer, errNilRewardMint,
		token.ErrMintNotFound, token.ErrAccountNotFound, token.ErrMintMismatch,
		token.ErrUnauthorizedAuthority, token.ErrOverflow,
		state.ErrInsufficientBalance, state.ErrBalanceOverflow, state.ErrIllegalOwner,
	)
}

// Issuer mints reward units. It is satisfied by *token.Ledger.
type Issuer interface {
	Account(tx *state.Tx, addr crypto.Address) (*token.Account, error)
	Issue(tx *state.Tx, mint, destination crypto.Address, signer crypto.DerivedSigner, amount *uint256.Int) error
}

// Redemption summarises a successful redeem.
type Redemption struct {
	Entry        crypto.Address
	TokenAccount crypto.Address
	Reward       uint64
	Refund       *uint256.Int
}

// Engine owns the Entry record type: it creates entries and closes them on
// redemption.
type Engine struct {
	program    crypto.Address
	rewardMint crypto.Address
	issuer     Issuer
	logger     *slog.Logger
	nowFn      func() int64
}

// NewEngine creates an engine for entries owned by program.
func NewEngine(program crypto.Address) *Engine {
	return &Engine{
		program: program,
		logger:  slog.Default(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// Program returns the id that owns entry records.
func (e *Engine) Program() crypto.Address { return e.program }

// SetIssuer configures the reward issuer.
func (e *Engine) SetIssuer(issuer Issuer) { e.issuer = issuer }

// SetRewardMint configures the mint rewards are issued from.
func (e *Engine) SetRewardMint(mint crypto.Address) { e.rewardMint = mint }

// SetLogger overrides the structured logger. Passing nil restores the
// process default.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Enter creates the entry for user bound to tokenAccount. The user pays the
// record's rent deposit.
func (e *Engine) Enter(tx *state.Tx, user, tokenAccount crypto.Address) (entry *Entry, err error) {
	start := time.Now()
	defer func() { observability.Ledger().Observe("lottery", "enter", time.Since(start), err) }()

	if e.issuer == nil {
		return nil, errNilIssuer
	}
	addr, bump, err := EntryAddress(e.program, user)
	if err != nil {
		return nil, err
	}
	if _, err := e.issuer.Account(tx, tokenAccount); err != nil {
		return nil, err
	}
	if err := tx.CreateRecord(addr, EntrySize, user, e.program); err != nil {
		if errors.Is(err, state.ErrAccountInUse) {
			return nil, fmt.Errorf("%w: %s", ErrRecordAlreadyExists, addr)
		}
		return nil, err
	}
	entry = &Entry{
		Initialized:  true,
		User:         user,
		Bump:         bump,
		Timestamp:    e.now(),
		TokenAccount: tokenAccount,
	}
	if err := tx.WriteData(addr, e.program, entry.Encode()); err != nil {
		return nil, err
	}

	e.logger.Info("lottery entry initialized",
		slog.String("tx", tx.ID()),
		slog.String("entry", addr.String()),
		slog.String("user", user.String()),
		slog.Int64("timestamp", entry.Timestamp))
	tx.Emit(events.LotteryEntered{
		TxID:         tx.ID(),
		Entry:        addr,
		User:         user,
		TokenAccount: tokenAccount,
		Bump:         bump,
		Timestamp:    entry.Timestamp,
	})
	return entry, nil
}

// Entry loads the live entry for user.
func (e *Engine) Entry(tx *state.Tx, user crypto.Address) (*Entry, crypto.Address, error) {
	addr, _, err := EntryAddress(e.program, user)
	if err != nil {
		return nil, crypto.Address{}, err
	}
	entry, err := e.load(tx, addr)
	if err != nil {
		return nil, addr, err
	}
	return entry, addr, nil
}

func (e *Engine) load(tx *state.Tx, addr crypto.Address) (*Entry, error) {
	acc, err := tx.Account(addr)
	if err != nil {
		if errors.Is(err, state.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, addr)
		}
		return nil, err
	}
	if acc.Owner != e.program {
		return nil, fmt.Errorf("%w: owned by %s", ErrInvalidRecord, acc.Owner)
	}
	return DecodeEntry(acc.Data)
}

// Redeem pays out the entry stored at entryAddr and closes it. The caller
// must be the entry's user, must present the token account bound at entry
// time and the cooldown must have strictly elapsed. On any failure the
// transaction must be rolled back; the entry then stays redeemable.
func (e *Engine) Redeem(tx *state.Tx, entryAddr, user, tokenAccount crypto.Address) (out *Redemption, err error) {
	start := time.Now()
	defer func() { observability.Ledger().Observe("lottery", "redeem", time.Since(start), err) }()

	if e.issuer == nil {
		return nil, errNilIssuer
	}
	if e.rewardMint.IsZero() {
		return nil, errNilRewardMint
	}
	entry, err := e.load(tx, entryAddr)
	if err != nil {
		return nil, err
	}
	if entry.User != user {
		return nil, ErrOwnershipMismatch
	}
	expected, err := crypto.CreateDerivedAddress(entrySeeds(user), entry.Bump, e.program)
	if err != nil || expected != entryAddr {
		return nil, ErrAddressMismatch
	}
	if entry.TokenAccount != tokenAccount {
		return nil, ErrTokenAccountMismatch
	}
	now := e.now()
	if now-entry.Timestamp <= CooldownSeconds {
		return nil, fmt.Errorf("%w: %ds elapsed", ErrTooEarlyToRedeem, now-entry.Timestamp)
	}

	signer, _, err := MintAuthority(e.program)
	if err != nil {
		return nil, err
	}
	e.logger.Info("minting reward",
		slog.String("tx", tx.ID()),
		slog.Uint64("amount", RewardAmount),
		slog.String("tokenAccount", tokenAccount.String()))
	if err := e.issuer.Issue(tx, e.rewardMint, tokenAccount, signer, uint256.NewInt(RewardAmount)); err != nil {
		return nil, err
	}

	refund, err := tx.Balance(entryAddr)
	if err != nil {
		return nil, err
	}
	if err := tx.CloseRecord(entryAddr, e.program, user); err != nil {
		return nil, err
	}

	tx.Emit(events.LotteryRedeemed{
		TxID:         tx.ID(),
		Entry:        entryAddr,
		User:         user,
		TokenAccount: tokenAccount,
		Reward:       RewardAmount,
		Refund:       refund.Dec(),
	})
	return &Redemption{
		Entry:        entryAddr,
		TokenAccount: tokenAccount,
		Reward:       RewardAmount,
		Refund:       refund,
	}, nil
}
