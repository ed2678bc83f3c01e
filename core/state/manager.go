package state

import (
	"bytes"
	"errors"
	"math/big"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"colend/crypto"
	"colend/storage"
)

// KV is the narrow key-value surface the manager operates on. It is satisfied
// by storage.Database and by *Overlay, so the same accessors serve committed
// reads and in-flight transactions.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// Manager reads and writes ledger state as RLP values under keccak-hashed
// prefixed keys. It carries no caching or locking of its own; the node
// serialises mutating access.
type Manager struct {
	kv KV
}

// NewManager creates a state manager over the provided key-value store.
func NewManager(kv KV) *Manager {
	return &Manager{kv: kv}
}

var (
	balancePrefix   = []byte("balance:")
	allowancePrefix = []byte("allowance:")
	rolePrefix      = []byte("role:")
	genesisKey      = []byte("genesis/applied")
)

func hashKey(parts ...[]byte) []byte {
	var buf bytes.Buffer
	for _, part := range parts {
		buf.Write(part)
	}
	return ethcrypto.Keccak256(buf.Bytes())
}

func balanceKey(addr []byte, symbol string) []byte {
	return hashKey(balancePrefix, []byte(symbol), []byte{':'}, addr)
}

func allowanceKey(owner, spender []byte, symbol string) []byte {
	return hashKey(allowancePrefix, []byte(symbol), []byte{':'}, owner, []byte{':'}, spender)
}

func roleKey(role string) []byte {
	return hashKey(rolePrefix, []byte(role))
}

// get returns the raw value for key, mapping a missing key to (nil, nil).
func (m *Manager) get(key []byte) ([]byte, error) {
	data, err := m.kv.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (m *Manager) loadRLP(key []byte, out interface{}) (bool, error) {
	data, err := m.get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) storeRLP(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kv.Put(key, encoded)
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Balance returns the transferable balance for (addr, symbol). Missing
// entries read as zero.
func (m *Manager) Balance(addr crypto.Address, symbol string) (*big.Int, error) {
	symbol = normalizeSymbol(symbol)
	var stored big.Int
	ok, err := m.loadRLP(balanceKey(addr.Bytes(), symbol), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &stored, nil
}

// SetBalance overwrites the transferable balance for (addr, symbol).
func (m *Manager) SetBalance(addr crypto.Address, symbol string, amount *big.Int) error {
	symbol = normalizeSymbol(symbol)
	return m.storeRLP(balanceKey(addr.Bytes(), symbol), nonNil(amount))
}

// Allowance returns the amount spender may draw from owner in symbol.
func (m *Manager) Allowance(owner, spender crypto.Address, symbol string) (*big.Int, error) {
	symbol = normalizeSymbol(symbol)
	var stored big.Int
	ok, err := m.loadRLP(allowanceKey(owner.Bytes(), spender.Bytes(), symbol), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return &stored, nil
}

// SetAllowance overwrites the allowance from owner to spender in symbol.
func (m *Manager) SetAllowance(owner, spender crypto.Address, symbol string, amount *big.Int) error {
	symbol = normalizeSymbol(symbol)
	return m.storeRLP(allowanceKey(owner.Bytes(), spender.Bytes(), symbol), nonNil(amount))
}

func (m *Manager) roleMembers(role string) ([][]byte, error) {
	var members [][]byte
	if _, err := m.loadRLP(roleKey(role), &members); err != nil {
		return nil, err
	}
	return members, nil
}

// HasRole reports whether addr is a member of role.
func (m *Manager) HasRole(role string, addr []byte) bool {
	members, err := m.roleMembers(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

// SetRole adds addr to role. Member lists stay sorted and deduplicated so the
// stored encoding is deterministic.
func (m *Manager) SetRole(role string, addr []byte) error {
	members, err := m.roleMembers(role)
	if err != nil {
		return err
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	sort.Slice(members, func(i, j int) bool { return bytes.Compare(members[i], members[j]) < 0 })
	return m.storeRLP(roleKey(role), members)
}

// UnsetRole removes addr from role.
func (m *Manager) UnsetRole(role string, addr []byte) error {
	members, err := m.roleMembers(role)
	if err != nil {
		return err
	}
	filtered := members[:0]
	for _, member := range members {
		if !bytes.Equal(member, addr) {
			filtered = append(filtered, member)
		}
	}
	if len(filtered) == len(members) {
		return nil
	}
	return m.storeRLP(roleKey(role), filtered)
}

// GenesisApplied reports whether bootstrap state has been seeded.
func (m *Manager) GenesisApplied() (bool, error) {
	var applied bool
	ok, err := m.loadRLP(hashKey(genesisKey), &applied)
	if err != nil {
		return false, err
	}
	return ok && applied, nil
}

// MarkGenesisApplied records that bootstrap state has been seeded.
func (m *Manager) MarkGenesisApplied() error {
	return m.storeRLP(hashKey(genesisKey), true)
}

// RoleMembers returns the sorted member list for role.
func (m *Manager) RoleMembers(role string) ([]crypto.Address, error) {
	members, err := m.roleMembers(role)
	if err != nil {
		return nil, err
	}
	addrs := make([]crypto.Address, 0, len(members))
	for _, member := range members {
		addr, err := crypto.NewAddress(member)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
