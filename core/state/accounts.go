package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"custodyledger/core/types"
	"custodyledger/crypto"
)

// ClosedRecordTag is written over the header of every record closed through
// CloseRecord. Bytes after the tag are zero-filled.
var ClosedRecordTag = [8]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// SystemProgram owns plain balance-holding accounts.
var SystemProgram crypto.Address

func ensureAccountDefaults(account *types.Account) {
	if account.Balance == nil {
		account.Balance = new(uint256.Int)
	}
}

func (tx *Tx) loadAccount(addr crypto.Address) (*types.Account, error) {
	data, err := tx.get(accountKey(addr))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return decodeAccount(data)
}

func (tx *Tx) storeAccount(addr crypto.Address, account *types.Account) error {
	if addr.IsZero() {
		return fmt.Errorf("state: zero address cannot hold state")
	}
	ensureAccountDefaults(account)
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return err
	}
	if err := tx.put(accountKey(addr), encoded); err != nil {
		return err
	}
	tx.touched[addr] = struct{}{}
	return nil
}

// Account returns a copy of the account stored at addr.
func (tx *Tx) Account(addr crypto.Address) (*types.Account, error) {
	acc, err := tx.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return acc, nil
}

// Exists reports whether an account is stored at addr.
func (tx *Tx) Exists(addr crypto.Address) (bool, error) {
	acc, err := tx.loadAccount(addr)
	if err != nil {
		return false, err
	}
	return acc != nil, nil
}

// Balance returns the balance held at addr; missing accounts hold zero.
func (tx *Tx) Balance(addr crypto.Address) (*uint256.Int, error) {
	acc, err := tx.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(acc.Balance), nil
}

// Deposit credits addr with newly introduced units. It is used when seeding
// balances from genesis.
func (tx *Tx) Deposit(addr crypto.Address, amount *uint256.Int) error {
	acc, err := tx.loadAccount(addr)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = &types.Account{Balance: new(uint256.Int), Owner: SystemProgram}
	}
	if _, overflow := acc.Balance.AddOverflow(acc.Balance, amount); overflow {
		return ErrBalanceOverflow
	}
	return tx.storeAccount(addr, acc)
}

// Transfer moves amount from one account to another. The destination is
// created as a system account when missing. Either both sides change or
// neither does.
func (tx *Tx) Transfer(from, to crypto.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	src, err := tx.loadAccount(from)
	if err != nil {
		return err
	}
	if src == nil || src.Balance.Lt(amount) {
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, from)
	}
	if from == to {
		return nil
	}
	dst, err := tx.loadAccount(to)
	if err != nil {
		return err
	}
	if dst == nil {
		dst = &types.Account{Balance: new(uint256.Int), Owner: SystemProgram}
	}
	credited, overflow := new(uint256.Int).AddOverflow(dst.Balance, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	src.Balance = new(uint256.Int).Sub(src.Balance, amount)
	dst.Balance = credited
	if err := tx.storeAccount(from, src); err != nil {
		return err
	}
	return tx.storeAccount(to, dst)
}

// CreateRecord allocates a zeroed record of size bytes at addr owned by
// owner. The payer tops the address up to the rent-exempt minimum; units
// already sitting at a bare system account count toward it. An address that
// carries data or belongs to another program is occupied.
func (tx *Tx) CreateRecord(addr crypto.Address, size int, payer, owner crypto.Address) error {
	if size <= 0 {
		return fmt.Errorf("state: record size must be positive")
	}
	existing, err := tx.loadAccount(addr)
	if err != nil {
		return err
	}
	held := new(uint256.Int)
	if existing != nil {
		if len(existing.Data) > 0 || existing.Owner != SystemProgram {
			return fmt.Errorf("%w: %s", ErrAccountInUse, addr)
		}
		held.Set(existing.Balance)
	}
	required := tx.m.rent.MinimumBalance(size)
	if held.Lt(required) {
		if err := tx.Transfer(payer, addr, new(uint256.Int).Sub(required, held)); err != nil {
			return err
		}
	}
	acc, err := tx.loadAccount(addr)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = &types.Account{Balance: new(uint256.Int)}
	}
	acc.Owner = owner
	acc.Data = make([]byte, size)
	return tx.storeAccount(addr, acc)
}

// ReadRaw returns a copy of the record bytes stored at addr.
func (tx *Tx) ReadRaw(addr crypto.Address) ([]byte, error) {
	acc, err := tx.Account(addr)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), acc.Data...), nil
}

// WriteData replaces the record bytes at addr. Only the owning program may
// write and the record cannot change size.
func (tx *Tx) WriteData(addr, owner crypto.Address, data []byte) error {
	acc, err := tx.Account(addr)
	if err != nil {
		return err
	}
	if acc.Owner != owner {
		return fmt.Errorf("%w: %s", ErrIllegalOwner, addr)
	}
	if len(data) != len(acc.Data) {
		return fmt.Errorf("%w: have %d want %d", ErrDataSizeMismatch, len(data), len(acc.Data))
	}
	acc.Data = append([]byte(nil), data...)
	return tx.storeAccount(addr, acc)
}

// CloseRecord tombstones the record at addr and refunds its whole balance
// to refundTo. The tag is written and every byte after it is zeroed, so no
// typed contents survive even if the account is later re-funded.
func (tx *Tx) CloseRecord(addr, owner, refundTo crypto.Address) error {
	acc, err := tx.Account(addr)
	if err != nil {
		return err
	}
	if acc.Owner != owner {
		return fmt.Errorf("%w: %s", ErrIllegalOwner, addr)
	}
	if err := tx.Transfer(addr, refundTo, acc.Balance); err != nil {
		return err
	}
	acc, err = tx.Account(addr)
	if err != nil {
		return err
	}
	data := make([]byte, len(acc.Data))
	copy(data, ClosedRecordTag[:])
	acc.Data = data
	return tx.storeAccount(addr, acc)
}
