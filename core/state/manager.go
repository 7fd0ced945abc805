package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"

	"custodyledger/core/events"
	"custodyledger/core/types"
	"custodyledger/crypto"
	"custodyledger/storage"
)

var (
	ErrAccountNotFound     = errors.New("state: account not found")
	ErrAccountInUse        = errors.New("state: account already in use")
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	ErrBalanceOverflow     = errors.New("state: balance overflow")
	ErrIllegalOwner        = errors.New("state: account not owned by program")
	ErrDataSizeMismatch    = errors.New("state: data size mismatch")
	ErrTxClosed            = errors.New("state: transaction already finished")
)

var accountPrefix = []byte("acct:")

func accountKey(addr crypto.Address) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return buf
}

// Manager owns the ledger's backing store and serialises transactions
// against it. Only one Tx is open at any time.
type Manager struct {
	db      storage.Database
	rent    Rent
	emitter events.Emitter
	mu      sync.Mutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, rent: DefaultRent(), emitter: events.NoopEmitter{}}
}

// SetEmitter configures where committed events are delivered. Passing nil
// resets the emitter to a no-op implementation.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// SetRent overrides the rent schedule applied to new records.
func (m *Manager) SetRent(r Rent) { m.rent = r }

// Rent returns the active rent schedule.
func (m *Manager) Rent() Rent { return m.rent }

// Begin opens a transaction. The caller must finish it with Commit or
// Rollback; until then every other Begin blocks.
func (m *Manager) Begin() *Tx {
	m.mu.Lock()
	return &Tx{
		id:      uuid.New(),
		m:       m,
		writes:  make(map[string][]byte),
		touched: make(map[crypto.Address]struct{}),
	}
}

// Update runs fn inside a transaction and commits it when fn returns nil.
// Any error discards every write made by fn.
func (m *Manager) Update(fn func(tx *Tx) error) error {
	tx := m.Begin()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// View runs fn inside a transaction that is always rolled back.
func (m *Manager) View(fn func(tx *Tx) error) error {
	tx := m.Begin()
	defer tx.Rollback()
	return fn(tx)
}

// ScanAccounts walks committed accounts owned by owner in address order.
func (m *Manager) ScanAccounts(owner crypto.Address, fn func(addr crypto.Address, acc *types.Account) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Iterate(accountPrefix, func(key, value []byte) error {
		addr, err := crypto.BytesToAddress(key[len(accountPrefix):])
		if err != nil {
			return fmt.Errorf("state: malformed account key %x: %w", key, err)
		}
		acc, err := decodeAccount(value)
		if err != nil {
			return err
		}
		if acc.Owner != owner {
			return nil
		}
		return fn(addr, acc)
	})
}

// Tx buffers writes in memory until Commit flushes them as a single atomic
// batch.
type Tx struct {
	id      uuid.UUID
	m       *Manager
	writes  map[string][]byte // nil marks a deletion
	touched map[crypto.Address]struct{}
	pending []events.Event
	done    bool
}

// ID returns the identifier stamped on events produced by the transaction.
func (tx *Tx) ID() string { return tx.id.String() }

// Rent returns the manager's rent schedule.
func (tx *Tx) Rent() Rent { return tx.m.rent }

// Emit queues an event. Queued events reach the manager's emitter only if
// the transaction commits.
func (tx *Tx) Emit(evt events.Event) {
	if tx.done || evt == nil {
		return
	}
	tx.pending = append(tx.pending, evt)
}

// Commit purges every touched account whose balance dropped to zero and then
// writes the buffered changes atomically.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxClosed
	}
	defer tx.finish()

	touched := make([]crypto.Address, 0, len(tx.touched))
	for addr := range tx.touched {
		touched = append(touched, addr)
	}
	sort.Slice(touched, func(i, j int) bool { return bytes.Compare(touched[i][:], touched[j][:]) < 0 })
	for _, addr := range touched {
		acc, err := tx.loadAccount(addr)
		if err != nil {
			return err
		}
		if acc != nil && acc.Balance.IsZero() {
			tx.writes[string(accountKey(addr))] = nil
		}
	}

	batch := storage.NewBatch()
	for key, value := range tx.writes {
		if value == nil {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), value)
	}
	if err := tx.m.db.Write(batch); err != nil {
		return err
	}
	for _, evt := range tx.pending {
		tx.m.emitter.Emit(evt)
	}
	return nil
}

// Rollback discards all buffered writes. Calling it on a finished
// transaction is a no-op.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.finish()
}

func (tx *Tx) finish() {
	tx.done = true
	tx.writes = nil
	tx.touched = nil
	tx.pending = nil
	tx.m.mu.Unlock()
}

func (tx *Tx) get(key []byte) ([]byte, error) {
	if tx.done {
		return nil, ErrTxClosed
	}
	if value, ok := tx.writes[string(key)]; ok {
		if value == nil {
			return nil, nil
		}
		return value, nil
	}
	value, err := tx.m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (tx *Tx) put(key, value []byte) error {
	if tx.done {
		return ErrTxClosed
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	tx.writes[string(key)] = stored
	return nil
}

func (tx *Tx) del(key []byte) error {
	if tx.done {
		return ErrTxClosed
	}
	tx.writes[string(key)] = nil
	return nil
}

// GetValue reads a module-owned value. The boolean is false when absent.
func (tx *Tx) GetValue(key []byte) ([]byte, bool, error) {
	value, err := tx.get(key)
	if err != nil {
		return nil, false, err
	}
	if value == nil {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// PutValue stores a module-owned value. Keys must not use the account
// namespace.
func (tx *Tx) PutValue(key, value []byte) error {
	if bytes.HasPrefix(key, accountPrefix) {
		return fmt.Errorf("state: key %q collides with account namespace", key)
	}
	return tx.put(key, value)
}

// DeleteValue removes a module-owned value.
func (tx *Tx) DeleteValue(key []byte) error {
	if bytes.HasPrefix(key, accountPrefix) {
		return fmt.Errorf("state: key %q collides with account namespace", key)
	}
	return tx.del(key)
}

func decodeAccount(data []byte) (*types.Account, error) {
	acc := new(types.Account)
	if err := rlp.DecodeBytes(data, acc); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	ensureAccountDefaults(acc)
	return acc, nil
}
