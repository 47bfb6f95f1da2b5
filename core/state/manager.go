package state

import (
	"errors"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"dope/storage"
)

var errNilDatabase = errors.New("state: database not configured")

// Manager hosts the protocol ledger. Writes are staged in memory until Commit
// flushes them to the backing database as a single atomic batch; Rollback
// discards them. Reads always observe staged writes first, so an operation
// sees its own mutations before it commits.
//
// Manager is not safe for concurrent use; the settlement engine serialises
// access.
type Manager struct {
	db      storage.Database
	pending map[string]stagedValue
}

type stagedValue struct {
	value   []byte
	deleted bool
}

// NewManager creates a state manager over db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, pending: make(map[string]stagedValue)}
}

// NewMemoryManager is a convenience for tests and ephemeral simulations.
func NewMemoryManager() *Manager {
	return NewManager(storage.NewMemDB())
}

func hashKey(prefix string, parts ...[]byte) []byte {
	buf := make([]byte, 0, len(prefix)+32*len(parts))
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, ':')
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	if m == nil || m.db == nil {
		return nil, false, errNilDatabase
	}
	if staged, ok := m.pending[string(key)]; ok {
		if staged.deleted {
			return nil, false, nil
		}
		return staged.value, true, nil
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *Manager) put(key, value []byte) {
	m.pending[string(key)] = stagedValue{value: append([]byte(nil), value...)}
}

func (m *Manager) delete(key []byte) {
	m.pending[string(key)] = stagedValue{deleted: true}
}

func (m *Manager) getRLP(key []byte, out interface{}) (bool, error) {
	data, ok, err := m.get(key)
	if err != nil || !ok || len(data) == 0 {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode record: %w", err)
	}
	return true, nil
}

func (m *Manager) putRLP(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode record: %w", err)
	}
	m.put(key, encoded)
	return nil
}

// Dirty reports whether uncommitted writes are staged.
func (m *Manager) Dirty() bool {
	return m != nil && len(m.pending) > 0
}

// Commit atomically flushes staged writes to the database.
func (m *Manager) Commit() error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	if len(m.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m.pending))
	for key := range m.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := new(storage.Batch)
	for _, key := range keys {
		staged := m.pending[key]
		if staged.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), staged.value)
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.pending = make(map[string]stagedValue)
	return nil
}

// Rollback discards every staged write.
func (m *Manager) Rollback() {
	if m == nil {
		return
	}
	m.pending = make(map[string]stagedValue)
}

// Close releases the backing database.
func (m *Manager) Close() {
	if m == nil || m.db == nil {
		return
	}
	m.db.Close()
}
